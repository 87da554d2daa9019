package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sams-labs/synckit/internal/core/domain"
	"github.com/sams-labs/synckit/internal/core/ports/driven"
	"github.com/sams-labs/synckit/internal/core/ports/driving"
	"github.com/sams-labs/synckit/internal/logger"
)

// lastSyncKey is the scalar metadata key recording the last fully
// successful drain.
const lastSyncKey = "meta/last_sync_time"

// pausedKey marks the engine as paused across restarts. Presence of
// the key is the flag; the value is ignored.
const pausedKey = "meta/paused"

// Ensure Orchestrator implements the interface.
var _ driving.Engine = (*Orchestrator)(nil)

// Orchestrator is the state machine that drains the outbox when
// connectivity allows, invoking the conflict resolver and refreshing
// the cache store. It is the caller-facing engine surface.
//
// States: Idle, Syncing, Backoff, Disabled. At most one drain session
// is active at any time; all drains execute on the orchestrator's
// control goroutine, and caller API calls arriving from other
// goroutines are serialised through the mutex and the request channel.
type Orchestrator struct {
	cfg       domain.Config
	queue     *Outbox
	cache     *CacheStore
	gate      *CapabilityGate
	resolver  *ConflictResolver
	monitor   *ConnectivityMonitor
	transport driven.Transport
	kv        driven.KVStore
	clock     driven.Clock

	events chan domain.Event

	mu           sync.Mutex
	state        domain.SyncState
	attempt      int
	active       *domain.SyncSession
	activeCancel context.CancelFunc
	last         *domain.SyncSession

	syncCh    chan syncRequest
	wakeCh    chan struct{}
	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type syncRequest struct {
	reply chan string
}

// NewOrchestrator wires the engine from its parts and starts the
// control loop.
func NewOrchestrator(
	cfg domain.Config,
	queue *Outbox,
	cache *CacheStore,
	gate *CapabilityGate,
	resolver *ConflictResolver,
	monitor *ConnectivityMonitor,
	transport driven.Transport,
	kv driven.KVStore,
	clock driven.Clock,
) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		queue:     queue,
		cache:     cache,
		gate:      gate,
		resolver:  resolver,
		monitor:   monitor,
		transport: transport,
		kv:        kv,
		clock:     clock,
		events:    make(chan domain.Event, cfg.EventBuffer),
		state:     domain.SyncIdle,
		syncCh:    make(chan syncRequest),
		wakeCh:    make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	if _, err := kv.Get(context.Background(), pausedKey); err == nil {
		o.state = domain.SyncDisabled
	}
	queue.SetPermanentFailureHandler(func(id string, cause error) {
		o.emit(domain.Event{Type: domain.EventActionFailed, ActionID: id, Err: cause.Error()})
	})
	go o.run()
	return o
}

// Enqueue implements driving.Engine. The action is durably persisted
// before Enqueue returns.
func (o *Orchestrator) Enqueue(ctx context.Context, kind domain.ActionKind, payload any) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}
	if !o.monitor.Current().Online && !o.gate.Allowed(kind) {
		return "", fmt.Errorf("%w: %s", domain.ErrPermissionDenied, kind)
	}

	raw, err := domain.EncodePayload(payload)
	if err != nil {
		return "", err
	}
	// Round-trip through the codec to validate the payload shape and to
	// derive the entity key in canonical pointer form.
	typed, err := domain.DecodePayload(kind, raw)
	if err != nil {
		return "", fmt.Errorf("payload does not match kind %s: %w", kind, err)
	}

	// Record the entity version observed now; the resolver compares it
	// against the remote version at drain time.
	var baseVersion string
	if key := domain.EntityKey(kind, typed); key != "" {
		baseVersion = o.cache.Version(ctx, key)
	}

	return o.queue.Enqueue(ctx, kind, raw, baseVersion)
}

// GetCached implements driving.Engine.
func (o *Orchestrator) GetCached(ctx context.Context, key string) ([]byte, bool) {
	return o.cache.Get(ctx, key)
}

// ForceSync implements driving.Engine. While a session is already in
// flight this is a no-op returning that session's identifier.
func (o *Orchestrator) ForceSync(ctx context.Context) (string, error) {
	o.mu.Lock()
	if o.state == domain.SyncDisabled {
		o.mu.Unlock()
		return "", domain.ErrSyncDisabled
	}
	if o.state == domain.SyncSyncing && o.active != nil {
		id := o.active.ID
		o.mu.Unlock()
		return id, nil
	}
	o.mu.Unlock()

	req := syncRequest{reply: make(chan string, 1)}
	select {
	case o.syncCh <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-o.stopCh:
		return "", domain.ErrClosed
	}

	select {
	case id := <-req.reply:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-o.stopCh:
		return "", domain.ErrClosed
	}
}

// Status implements driving.Engine.
func (o *Orchestrator) Status(_ context.Context) driving.Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := driving.Status{
		State:      o.state,
		Online:     o.monitor.Current().Online,
		QueueDepth: o.queue.Depth(),
	}
	if o.last != nil {
		last := *o.last
		st.LastSession = &last
	}
	if o.active != nil {
		st.ActiveSession = o.active.ID
	}
	return st
}

// Pause implements driving.Engine. The queue is retained untouched;
// any pending backoff timer is cancelled; an in-flight session winds
// down and its actions return to pending.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	o.state = domain.SyncDisabled
	cancel := o.activeCancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := o.kv.Set(context.Background(), pausedKey, []byte("1")); err != nil {
		logger.Warn("Persisting paused flag: %v", err)
	}
	o.wake()
	logger.Info("sync paused")
}

// Resume implements driving.Engine.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	if o.state == domain.SyncDisabled {
		o.state = domain.SyncIdle
		o.attempt = 0
	}
	o.mu.Unlock()

	if err := o.kv.Delete(context.Background(), pausedKey); err != nil {
		logger.Warn("Clearing paused flag: %v", err)
	}
	o.wake()
	logger.Info("sync resumed")
}

// Clear implements driving.Engine. Cancels in-flight work and drops the
// queue, the cache and the last-sync marker. Used on logout.
func (o *Orchestrator) Clear(ctx context.Context) error {
	o.mu.Lock()
	cancel := o.activeCancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if err := o.queue.Clear(ctx); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	if err := o.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	if err := o.kv.Delete(ctx, lastSyncKey); err != nil {
		return fmt.Errorf("clear last sync: %w", err)
	}
	return nil
}

// Events implements driving.Engine.
func (o *Orchestrator) Events() <-chan domain.Event {
	return o.events
}

// LastSyncTime returns the recorded time of the last fully successful
// drain, or the zero time when none is recorded.
func (o *Orchestrator) LastSyncTime(ctx context.Context) time.Time {
	data, err := o.kv.Get(ctx, lastSyncKey)
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, string(data))
	if err != nil {
		return time.Time{}
	}
	return t
}

// ConflictRecords returns the resolver's retained conflict audit trail.
func (o *Orchestrator) ConflictRecords() []domain.ConflictRecord {
	return o.resolver.Records()
}

// QueueSnapshot returns a copy of the outbox contents for inspection,
// in insertion order.
func (o *Orchestrator) QueueSnapshot() []domain.QueuedAction {
	return o.queue.Snapshot()
}

// Close implements driving.Engine. Safe to call more than once.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		cancel := o.activeCancel
		o.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		close(o.stopCh)
		<-o.done
		_ = o.monitor.Close()
		// All emitters run on the control goroutine, which has exited.
		close(o.events)
	})
	return nil
}

// run is the control loop. All state transitions and drains happen
// here.
func (o *Orchestrator) run() {
	defer close(o.done)

	transitions := o.monitor.Transitions()
	var backoffTimer <-chan time.Time
	tick := o.clock.After(o.cfg.SyncInterval)

	for {
		select {
		case <-o.stopCh:
			return

		case online, ok := <-transitions:
			if !ok {
				transitions = nil
				continue
			}
			if online {
				o.emit(domain.Event{Type: domain.EventOnlineRestored})
				backoffTimer = nil
				o.trySync(nil)
			} else {
				o.emit(domain.Event{Type: domain.EventWentOffline})
			}

		case <-tick:
			tick = o.clock.After(o.cfg.SyncInterval)
			if o.currentState() == domain.SyncIdle && o.monitor.Current().Online {
				o.trySync(nil)
			}

		case req := <-o.syncCh:
			o.trySync(req.reply)

		case <-backoffTimer:
			backoffTimer = nil
			if o.monitor.Current().Online {
				o.trySync(nil)
			}

		case <-o.wakeCh:
			if o.currentState() == domain.SyncDisabled {
				backoffTimer = nil
				continue
			}
			if o.monitor.Current().Online {
				o.trySync(nil)
			}
		}

		if backoffTimer == nil && o.monitor.Current().Online {
			if delay, ok := o.backoffDelay(); ok {
				backoffTimer = o.clock.After(delay)
			}
		}
	}
}

func (o *Orchestrator) currentState() domain.SyncState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// backoffDelay returns the next retry delay while in backoff:
// base × 2^(attempt-1), capped at the configured maximum.
func (o *Orchestrator) backoffDelay() (time.Duration, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != domain.SyncBackoff {
		return 0, false
	}
	delay := o.cfg.BackoffBase
	for i := 1; i < o.attempt && delay < o.cfg.BackoffMax; i++ {
		delay *= 2
	}
	if delay > o.cfg.BackoffMax {
		delay = o.cfg.BackoffMax
	}
	return delay, true
}

// trySync starts a drain session if the preconditions hold. Runs on the
// control goroutine only. The reply channel, when non-nil, receives the
// session ID (or "" when no session was needed) exactly once.
func (o *Orchestrator) trySync(reply chan string) {
	deliver := func(id string) {
		if reply != nil {
			reply <- id
		}
	}

	o.mu.Lock()
	if o.state == domain.SyncDisabled || o.state == domain.SyncSyncing {
		var id string
		if o.active != nil {
			id = o.active.ID
		}
		o.mu.Unlock()
		deliver(id)
		return
	}
	if !o.monitor.Current().Online {
		o.mu.Unlock()
		deliver("")
		return
	}
	if o.queue.Depth() == 0 && len(o.cache.ExpiredKeys(context.Background())) == 0 {
		// Nothing queued, nothing stale.
		o.mu.Unlock()
		deliver("")
		return
	}

	session := &domain.SyncSession{
		ID:        uuid.NewString(),
		StartedAt: o.clock.Now(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.state = domain.SyncSyncing
	o.active = session
	o.activeCancel = cancel
	o.mu.Unlock()

	deliver(session.ID)

	started := *session
	o.emit(domain.Event{Type: domain.EventSyncStarted, Session: &started})
	logger.Info("sync session %s started", session.ID)

	o.runSession(ctx, session)
	cancel()
}

// runSession drains the snapshot taken at session start. Entries
// enqueued mid-drain have a later sequence than the cutoff and are
// deferred to the next cycle.
func (o *Orchestrator) runSession(ctx context.Context, session *domain.SyncSession) {
	cutoff := o.queue.Cutoff()
	transportDown := false

drain:
	for {
		batch := o.queue.DequeueBatch(o.cfg.BatchSize, cutoff)
		if len(batch) == 0 {
			break
		}
		for _, action := range batch {
			if ctx.Err() != nil {
				break drain
			}
			if o.processAction(ctx, session, action) {
				transportDown = true
				break drain
			}
		}
	}

	if !transportDown && ctx.Err() == nil {
		o.refreshExpired(ctx, session)
	}

	// No entry is ever left in-flight, whatever ended the session.
	o.queue.ReleaseAll(context.Background())

	session.EndedAt = o.clock.Now()

	o.mu.Lock()
	o.active = nil
	o.activeCancel = nil
	closed := *session
	o.last = &closed
	clean := !transportDown && ctx.Err() == nil
	switch {
	case o.state == domain.SyncDisabled:
		// Paused mid-session; stay disabled.
	case transportDown:
		o.state = domain.SyncBackoff
		o.attempt++
	default:
		o.state = domain.SyncIdle
		o.attempt = 0
	}
	o.mu.Unlock()

	if clean {
		o.persistLastSync()
	}

	o.emit(domain.Event{Type: domain.EventSyncCompleted, Session: &closed})
	logger.Info("sync session %s ended: %d succeeded, %d failed, %d conflicts",
		session.ID, session.Succeeded, session.Failed, session.Conflicts)
}

// processAction pushes one action through conflict resolution and
// transmission. Returns true on a transport-wide outage, which aborts
// the remaining batch; per-action failures are isolated and return
// false.
func (o *Orchestrator) processAction(ctx context.Context, session *domain.SyncSession, action domain.QueuedAction) bool {
	if err := o.queue.MarkInFlight(ctx, action.ID); err != nil {
		return false // entry vanished (evicted or cleared); skip
	}

	actx, cancel := context.WithTimeout(ctx, o.cfg.ActionTimeout)
	defer cancel()

	typed, err := domain.DecodePayload(action.Kind, action.Payload)
	if err != nil {
		logger.Warn("sync: dropping action %s with corrupted payload: %v", action.ID, err)
		o.failAction(ctx, session, action.ID, fmt.Errorf("%w: %v", domain.ErrPermanent, err))
		return false
	}
	key := domain.EntityKey(action.Kind, typed)

	// Conflict detection: fetch the authoritative entity when the
	// action recorded an observed version.
	var remote *domain.CachedEntity
	if action.BaseVersion != "" && key != "" {
		remote, err = o.transport.Fetch(actx, key)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotFound):
			remote = nil // entity gone remotely; let the remote decide
		case errors.Is(err, domain.ErrUnavailable):
			o.releaseAction(action.ID)
			return true
		case errors.Is(err, context.Canceled):
			o.releaseAction(action.ID)
			return false
		default:
			o.failAction(ctx, session, action.ID, classify(actx, err))
			return false
		}
	}

	res, err := o.resolver.Resolve(action, key, remote)
	if err != nil {
		o.failAction(ctx, session, action.ID, fmt.Errorf("%w: %v", domain.ErrPermanent, err))
		return false
	}
	if res.Conflict {
		session.Conflicts++
	}

	switch res.Outcome {
	case domain.OutcomeDiscarded:
		// Server wins: drop the local mutation and refresh the cache
		// from the authoritative value.
		if res.Remote != nil {
			if err := o.cache.PutEntity(ctx, res.Remote); err != nil {
				logger.Warn("sync: cache refresh for %s: %v", key, err)
			}
		}
		if err := o.queue.Discard(ctx, action.ID); err != nil {
			logger.Warn("sync: discard %s: %v", action.ID, err)
		}
		logger.Debug("sync: discarded %s (%s) after conflict on %s", action.ID, action.Kind, key)
		return false

	case domain.OutcomeMerged:
		action.Payload = res.Merged
	}

	result, err := o.transport.Send(actx, action)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnavailable):
			o.releaseAction(action.ID)
			return true
		case errors.Is(err, context.Canceled):
			o.releaseAction(action.ID)
			return false
		default:
			o.failAction(ctx, session, action.ID, classify(actx, err))
			return false
		}
	}

	// Success: the remote's answer refreshes the cache.
	if key != "" && result != nil {
		payload := result.Payload
		if payload == nil && res.Outcome == domain.OutcomeMerged {
			payload = res.Merged
		}
		if payload != nil {
			if err := o.cache.Put(ctx, key, payload, result.RemoteVersion, 0); err != nil {
				logger.Warn("sync: cache refresh for %s: %v", key, err)
			}
		}
	}

	if err := o.queue.MarkSucceeded(ctx, action.ID); err != nil {
		logger.Warn("sync: mark succeeded %s: %v", action.ID, err)
	}
	session.Succeeded++
	return false
}

// refreshExpired re-fetches cache entries whose TTL elapsed. Fetch
// failures are logged and skipped; a missing remote entity evicts the
// local copy.
func (o *Orchestrator) refreshExpired(ctx context.Context, session *domain.SyncSession) {
	for _, key := range o.cache.ExpiredKeys(ctx) {
		if ctx.Err() != nil {
			return
		}
		actx, cancel := context.WithTimeout(ctx, o.cfg.ActionTimeout)
		entity, err := o.transport.Fetch(actx, key)
		cancel()
		switch {
		case err == nil:
			if entity != nil {
				if err := o.cache.PutEntity(ctx, entity); err != nil {
					logger.Warn("sync: refresh %s: %v", key, err)
				}
			}
		case errors.Is(err, domain.ErrNotFound):
			_ = o.cache.Evict(ctx, key)
		default:
			logger.Warn("sync: refresh %s: %v", key, err)
		}
	}
	_ = session // counters unchanged: refreshes are not queued actions
}

func (o *Orchestrator) failAction(ctx context.Context, session *domain.SyncSession, id string, cause error) {
	session.Failed++
	if _, err := o.queue.MarkFailed(ctx, id, cause); err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Warn("sync: mark failed %s: %v", id, err)
	}
}

func (o *Orchestrator) releaseAction(id string) {
	if err := o.queue.Release(context.Background(), id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Warn("sync: release %s: %v", id, err)
	}
}

func (o *Orchestrator) persistLastSync() {
	now := o.clock.Now().Format(time.RFC3339Nano)
	if err := o.kv.Set(context.Background(), lastSyncKey, []byte(now)); err != nil {
		logger.Warn("sync: persist last sync time: %v", err)
	}
}

func (o *Orchestrator) emit(evt domain.Event) {
	evt.At = o.clock.Now()
	select {
	case o.events <- evt:
	default:
		logger.Warn("events: buffer full, dropping %s", evt.Type)
	}
}

func (o *Orchestrator) wake() {
	select {
	case o.wakeCh <- struct{}{}:
	default:
	}
}

// classify maps an unwrapped transport error into the retry taxonomy.
// Timeouts are transient per the retry policy; errors the transport
// already classified pass through; anything else is assumed transient.
func classify(actx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(actx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	if domain.IsTransient(err) || domain.IsPermanent(err) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrTransient, err)
}
