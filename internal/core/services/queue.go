package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/sams-labs/synckit/internal/core/domain"
	"github.com/sams-labs/synckit/internal/core/ports/driven"
	"github.com/sams-labs/synckit/internal/logger"
)

// outboxPrefix namespaces outbox records in the durable store.
const outboxPrefix = "outbox/"

// queueEntry is the persisted envelope for one queued action. Seq is a
// monotonic insertion counter used as the stable FIFO tie-break when
// enqueue timestamps collide.
type queueEntry struct {
	domain.QueuedAction
	Seq int64 `json:"seq"`
}

// Outbox is the durable, priority-ordered, bounded log of pending
// state-changing operations.
//
// The outbox exclusively owns the QueuedAction lifecycle: creation,
// retry increments and deletion. Status transitions are driven by the
// sync orchestrator through MarkInFlight/MarkSucceeded/MarkFailed.
// All methods are safe for concurrent use; enqueues during an active
// drain do not disturb a snapshot already taken.
type Outbox struct {
	kv         driven.KVStore
	clock      driven.Clock
	capacity   int
	maxRetries int
	priorities map[domain.ActionKind]int

	// onPermanentFailure fires exactly once when an entry is removed
	// after exhausting retries or on a permanent rejection.
	onPermanentFailure func(id string, err error)

	mu      sync.Mutex
	entries map[string]*queueEntry
	seq     int64
}

// NewOutbox creates an outbox over the durable store and loads any
// surviving records. Corrupted records are dropped and logged; the rest
// of the log is preserved. Entries found in-flight (crash mid-drain)
// are returned to pending.
func NewOutbox(ctx context.Context, kv driven.KVStore, clock driven.Clock, cfg domain.Config) (*Outbox, error) {
	q := &Outbox{
		kv:         kv,
		clock:      clock,
		capacity:   cfg.QueueCapacity,
		maxRetries: cfg.MaxRetries,
		priorities: domain.DefaultPriorities,
		entries:    make(map[string]*queueEntry),
	}
	if err := q.load(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

// SetPermanentFailureHandler registers the callback invoked when an
// entry is permanently removed. Must be called before draining starts.
func (q *Outbox) SetPermanentFailureHandler(fn func(id string, err error)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onPermanentFailure = fn
}

func (q *Outbox) load(ctx context.Context) error {
	keys, err := q.kv.List(ctx, outboxPrefix)
	if err != nil {
		return fmt.Errorf("list outbox: %w", err)
	}

	for _, key := range keys {
		data, err := q.kv.Get(ctx, key)
		if err != nil {
			logger.Warn("outbox: dropping unreadable entry %s: %v", key, err)
			_ = q.kv.Delete(ctx, key)
			continue
		}

		var entry queueEntry
		if err := json.Unmarshal(data, &entry); err != nil || !entry.Kind.Valid() {
			logger.Warn("outbox: dropping corrupted entry %s", key)
			_ = q.kv.Delete(ctx, key)
			continue
		}

		// A crash mid-drain leaves entries in-flight. They were never
		// confirmed, so they go back to pending for the next session.
		if entry.Status == domain.StatusInFlight {
			entry.Status = domain.StatusPending
			q.persistLocked(ctx, &entry)
		}

		if entry.Seq >= q.seq {
			q.seq = entry.Seq + 1
		}
		q.entries[entry.ID] = &entry
	}
	return nil
}

// Enqueue assigns an ID and priority, persists the action durably and
// inserts it. The durable write happens before Enqueue returns success,
// so a crash immediately after return never loses the action.
func (q *Outbox) Enqueue(ctx context.Context, kind domain.ActionKind, payload []byte, baseVersion string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	entry := &queueEntry{
		QueuedAction: domain.QueuedAction{
			ID:          uuid.NewString(),
			Kind:        kind,
			Payload:     payload,
			EnqueuedAt:  q.clock.Now(),
			Priority:    q.priorities[kind],
			MaxRetries:  q.maxRetries,
			Status:      domain.StatusPending,
			BaseVersion: baseVersion,
		},
		Seq: q.seq,
	}
	q.seq++

	if err := q.persistLocked(ctx, entry); err != nil {
		return "", fmt.Errorf("persist action: %w", err)
	}
	q.entries[entry.ID] = entry
	q.evictOverflowLocked(ctx)

	return entry.ID, nil
}

// evictOverflowLocked enforces the capacity bound by removing the
// lowest-priority, oldest entries first. Entries that have already
// begun transmission are never evicted.
func (q *Outbox) evictOverflowLocked(ctx context.Context) {
	if len(q.entries) <= q.capacity {
		return
	}

	candidates := make([]*queueEntry, 0, len(q.entries))
	for _, e := range q.entries {
		if e.Status != domain.StatusInFlight {
			candidates = append(candidates, e)
		}
	}
	// Lowest priority first; oldest first within a priority.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		if !candidates[i].EnqueuedAt.Equal(candidates[j].EnqueuedAt) {
			return candidates[i].EnqueuedAt.Before(candidates[j].EnqueuedAt)
		}
		return candidates[i].Seq < candidates[j].Seq
	})

	for _, victim := range candidates {
		if len(q.entries) <= q.capacity {
			break
		}
		logger.Warn("outbox: capacity %d exceeded, evicting %s (%s, priority %d)",
			q.capacity, victim.ID, victim.Kind, victim.Priority)
		delete(q.entries, victim.ID)
		_ = q.kv.Delete(ctx, outboxPrefix+victim.ID)
	}
}

// Depth returns the number of unresolved entries.
func (q *Outbox) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Cutoff returns the current insertion sequence. A drain session takes
// its cutoff at session start so entries enqueued mid-drain are
// deferred to the next cycle.
func (q *Outbox) Cutoff() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq
}

// DequeueBatch returns up to limit pending entries enqueued before the
// cutoff, ordered by priority descending then enqueue time ascending
// (stable FIFO tie-break). The returned slice is a point-in-time
// snapshot of copies: concurrent enqueues do not affect it.
func (q *Outbox) DequeueBatch(limit int, cutoff int64) []domain.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make([]*queueEntry, 0, len(q.entries))
	for _, e := range q.entries {
		if e.Status == domain.StatusPending && e.Seq < cutoff {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		if !pending[i].EnqueuedAt.Equal(pending[j].EnqueuedAt) {
			return pending[i].EnqueuedAt.Before(pending[j].EnqueuedAt)
		}
		return pending[i].Seq < pending[j].Seq
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	batch := make([]domain.QueuedAction, len(pending))
	for i, e := range pending {
		batch[i] = e.QueuedAction
	}
	return batch
}

// MarkInFlight transitions an entry from pending to in-flight.
func (q *Outbox) MarkInFlight(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	entry.Status = domain.StatusInFlight
	return q.persistLocked(ctx, entry)
}

// MarkSucceeded removes the entry. Done is terminal and not retained.
func (q *Outbox) MarkSucceeded(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(ctx, id)
}

// Discard removes the entry without a failure event. Used when the
// conflict resolver rules the local mutation out in favour of remote
// state: that is a resolution, not a failure.
func (q *Outbox) Discard(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(ctx, id)
}

// MarkFailed applies the failure policy to an entry.
//
// Transient errors increment the retry count; once it reaches the
// entry's retry budget the entry is removed and the permanent-failure
// callback fires exactly once. Permanent errors remove the entry
// immediately without touching the retry count. Returns true when the
// entry was removed.
func (q *Outbox) MarkFailed(ctx context.Context, id string, cause error) (bool, error) {
	removed, err := q.markFailed(ctx, id, cause)
	if removed {
		// Notify outside the lock so the handler may call back in.
		q.mu.Lock()
		fn := q.onPermanentFailure
		q.mu.Unlock()
		if fn != nil {
			fn(id, cause)
		} else {
			logger.Warn("outbox: action %s permanently failed: %v", id, cause)
		}
	}
	return removed, err
}

func (q *Outbox) markFailed(ctx context.Context, id string, cause error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[id]
	if !ok {
		return false, domain.ErrNotFound
	}

	if domain.IsPermanent(cause) {
		if err := q.removeLocked(ctx, id); err != nil {
			return false, err
		}
		return true, nil
	}

	entry.RetryCount++
	if entry.RetryCount >= entry.MaxRetries {
		if err := q.removeLocked(ctx, id); err != nil {
			return false, err
		}
		return true, nil
	}

	entry.Status = domain.StatusPending
	return false, q.persistLocked(ctx, entry)
}

// Release returns an in-flight entry to pending without counting a
// retry. Used when a drain is aborted by a transport-wide outage or a
// pause: the action was never answered, so its budget is untouched.
func (q *Outbox) Release(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[id]
	if !ok {
		return domain.ErrNotFound
	}
	if entry.Status != domain.StatusInFlight {
		return nil
	}
	entry.Status = domain.StatusPending
	return q.persistLocked(ctx, entry)
}

// ReleaseAll returns every in-flight entry to pending. No entry is ever
// left in-flight after a pause or abort.
func (q *Outbox) ReleaseAll(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, entry := range q.entries {
		if entry.Status == domain.StatusInFlight {
			entry.Status = domain.StatusPending
			if err := q.persistLocked(ctx, entry); err != nil {
				logger.Warn("outbox: release %s: %v", entry.ID, err)
			}
		}
	}
}

// Clear drops every entry. Used on logout.
func (q *Outbox) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id := range q.entries {
		if err := q.removeLocked(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns copies of all entries, for status display.
func (q *Outbox) Snapshot() []domain.QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	all := make([]*queueEntry, 0, len(q.entries))
	for _, e := range q.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seq < all[j].Seq })

	out := make([]domain.QueuedAction, len(all))
	for i, e := range all {
		out[i] = e.QueuedAction
	}
	return out
}

func (q *Outbox) persistLocked(ctx context.Context, entry *queueEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return q.kv.Set(ctx, outboxPrefix+entry.ID, data)
}

func (q *Outbox) removeLocked(ctx context.Context, id string) error {
	if err := q.kv.Delete(ctx, outboxPrefix+id); err != nil {
		return err
	}
	delete(q.entries, id)
	return nil
}

