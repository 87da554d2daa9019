package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sams-labs/synckit/internal/adapters/driven/storage/memory"
	"github.com/sams-labs/synckit/internal/core/domain"
	"github.com/sams-labs/synckit/internal/core/ports/driven"
)

const eventually = 3 * time.Second
const pollInterval = 5 * time.Millisecond

// testConfig keeps timers short enough for tests and long enough to be
// deterministic. The periodic tick is pushed out of the way so drains
// only happen when a test asks for one.
func testConfig() domain.Config {
	cfg := domain.DefaultConfig()
	cfg.QueueCapacity = 100
	cfg.MaxRetries = 2
	cfg.BatchSize = 10
	cfg.ActionTimeout = time.Second
	cfg.DefaultTTL = time.Hour
	cfg.DebounceWindow = 5 * time.Millisecond
	cfg.SyncInterval = time.Hour
	cfg.BackoffBase = 10 * time.Millisecond
	cfg.BackoffMax = 40 * time.Millisecond
	cfg.EventBuffer = 128
	return cfg
}

// eventRecorder drains the engine event channel into a slice.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func recordEvents(o *Orchestrator) *eventRecorder {
	r := &eventRecorder{}
	go func() {
		for evt := range o.Events() {
			r.mu.Lock()
			r.events = append(r.events, evt)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *eventRecorder) count(et domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evt := range r.events {
		if evt.Type == et {
			n++
		}
	}
	return n
}

// lastSession returns the session attached to the newest event of the
// given type, or nil.
func (r *eventRecorder) lastSession(et domain.EventType) *domain.SyncSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == et {
			return r.events[i].Session
		}
	}
	return nil
}

type engineFixture struct {
	t         *testing.T
	engine    *Orchestrator
	transport *fakeTransport
	source    *fakeSource
	kv        *memory.KVStore
	events    *eventRecorder
	cfg       domain.Config
}

func newEngineFixture(t *testing.T, online bool, mutate func(*domain.Config, *EngineDeps)) *engineFixture {
	t.Helper()

	f := &engineFixture{
		t:         t,
		transport: &fakeTransport{},
		source:    newFakeSource(online),
		kv:        memory.NewKVStore(),
		cfg:       testConfig(),
	}
	deps := EngineDeps{
		Store:        f.kv,
		Transport:    f.transport,
		Connectivity: f.source,
		Keys:         staticKeys{},
	}
	if mutate != nil {
		mutate(&f.cfg, &deps)
	}

	engine, err := NewEngine(context.Background(), f.cfg, deps)
	require.NoError(t, err)
	f.engine = engine
	f.events = recordEvents(engine)

	t.Cleanup(func() {
		_ = f.engine.Close()
		_ = f.source.Close()
	})
	return f
}

func (f *engineFixture) enqueueAck(alertID string) string {
	f.t.Helper()
	id, err := f.engine.Enqueue(context.Background(), domain.KindAcknowledgeAlert,
		&domain.AcknowledgeAlertPayload{AlertID: alertID, UserID: "u1"})
	require.NoError(f.t, err)
	return id
}

func (f *engineFixture) waitDepth(depth int) {
	f.t.Helper()
	require.Eventually(f.t, func() bool {
		return f.engine.Status(context.Background()).QueueDepth == depth
	}, eventually, pollInterval, "queue depth never reached %d", depth)
}

func (f *engineFixture) waitState(state domain.SyncState) {
	f.t.Helper()
	require.Eventually(f.t, func() bool {
		return f.engine.Status(context.Background()).State == state
	}, eventually, pollInterval, "state never reached %s", state)
}

func (f *engineFixture) waitSessionCompleted(sessions int) {
	f.t.Helper()
	require.Eventually(f.t, func() bool {
		return f.events.count(domain.EventSyncCompleted) >= sessions
	}, eventually, pollInterval)
}

// cacheStore returns a cache view over the fixture's store, for seeding
// and inspecting entries around the engine.
func (f *engineFixture) cacheStore() *CacheStore {
	return NewCacheStore(f.kv, staticKeys{}, driven.SystemClock{}, f.cfg.DefaultTTL)
}

func TestEngineDrainsQueueOnForceSync(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, nil)

	f.enqueueAck("a1")
	f.enqueueAck("a2")

	id, err := f.engine.ForceSync(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	f.waitDepth(0)
	f.waitSessionCompleted(1)

	assert.Equal(t, 2, f.transport.sentCount())
	session := f.events.lastSession(domain.EventSyncCompleted)
	require.NotNil(t, session)
	assert.Equal(t, id, session.ID)
	assert.Equal(t, 2, session.Succeeded)
	assert.Equal(t, 0, session.Failed)

	// A clean full drain records the sync time.
	assert.False(t, f.engine.LastSyncTime(ctx).IsZero())
	f.waitState(domain.SyncIdle)
}

func TestEngineForceSyncNothingToDo(t *testing.T) {
	f := newEngineFixture(t, true, nil)

	id, err := f.engine.ForceSync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, 0, f.events.count(domain.EventSyncStarted))
}

func TestEngineSingleActiveSession(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	f := newEngineFixture(t, true, nil)
	f.transport.setSendFn(func(domain.QueuedAction) (*driven.SendResult, error) {
		<-release
		return &driven.SendResult{RemoteVersion: "v1"}, nil
	})

	f.enqueueAck("a1")

	first, err := f.engine.ForceSync(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// Every concurrent ForceSync while the session runs reports the same
	// session; no second session starts.
	var wg sync.WaitGroup
	ids := make([]string, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := f.engine.ForceSync(ctx)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()
	close(release)

	for _, id := range ids {
		assert.Equal(t, first, id)
	}
	f.waitSessionCompleted(1)
	assert.Equal(t, 1, f.events.count(domain.EventSyncStarted))
}

func TestEngineTransientFailureRetriesWithinSession(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, nil)

	var calls int
	var mu sync.Mutex
	f.transport.setSendFn(func(domain.QueuedAction) (*driven.SendResult, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil, domain.ErrTransient
		}
		return &driven.SendResult{RemoteVersion: "v1"}, nil
	})

	f.enqueueAck("a1")
	_, err := f.engine.ForceSync(ctx)
	require.NoError(t, err)

	f.waitDepth(0)
	f.waitSessionCompleted(1)

	session := f.events.lastSession(domain.EventSyncCompleted)
	require.NotNil(t, session)
	assert.Equal(t, 1, session.Succeeded)
	assert.Equal(t, 1, session.Failed)
	assert.Equal(t, 0, f.events.count(domain.EventActionFailed), "retry within budget is not a permanent failure")
}

func TestEngineRetryBudgetExhaustion(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, nil)
	f.transport.setSendFn(func(domain.QueuedAction) (*driven.SendResult, error) {
		return nil, domain.ErrTransient
	})

	id := f.enqueueAck("a1")
	_, err := f.engine.ForceSync(ctx)
	require.NoError(t, err)

	f.waitDepth(0)
	f.waitSessionCompleted(1)

	require.Eventually(t, func() bool {
		return f.events.count(domain.EventActionFailed) == 1
	}, eventually, pollInterval, "exactly one permanent-failure event")

	f.events.mu.Lock()
	var failedID string
	for _, evt := range f.events.events {
		if evt.Type == domain.EventActionFailed {
			failedID = evt.ActionID
		}
	}
	f.events.mu.Unlock()
	assert.Equal(t, id, failedID)
}

func TestEnginePermanentRejectionDropsAction(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, nil)
	f.transport.setSendFn(func(domain.QueuedAction) (*driven.SendResult, error) {
		return nil, domain.ErrPermanent
	})

	f.enqueueAck("a1")
	_, err := f.engine.ForceSync(ctx)
	require.NoError(t, err)

	f.waitDepth(0)
	f.waitSessionCompleted(1)

	assert.Equal(t, 1, f.events.count(domain.EventActionFailed))
	session := f.events.lastSession(domain.EventSyncCompleted)
	require.NotNil(t, session)
	assert.Equal(t, 1, session.Failed, "single attempt, no retries")
}

func TestEngineTransportOutageBacksOffAndRecovers(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, nil)
	f.transport.setSendFn(func(domain.QueuedAction) (*driven.SendResult, error) {
		return nil, domain.ErrUnavailable
	})

	f.enqueueAck("a1")
	_, err := f.engine.ForceSync(ctx)
	require.NoError(t, err)

	f.waitState(domain.SyncBackoff)

	// The action went back to pending with its retry budget untouched.
	snapshot := f.engine.QueueSnapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, domain.StatusPending, snapshot[0].Status)
	assert.Equal(t, 0, snapshot[0].RetryCount)

	// Transport heals; the backoff timer drives the retry unattended.
	f.transport.setSendFn(nil)
	f.waitDepth(0)
	f.waitState(domain.SyncIdle)

	// An aborted session must not claim a successful sync.
	sessions := f.events.count(domain.EventSyncCompleted)
	assert.GreaterOrEqual(t, sessions, 2)
}

func TestEngineOfflineQueuesAndDrainsOnReconnect(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, false, nil)

	// Alert operations queue while offline.
	f.enqueueAck("a1")

	// ForceSync cannot run offline; it reports no session.
	id, err := f.engine.ForceSync(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, 1, f.engine.Status(ctx).QueueDepth)

	// Reconnect: the debounced transition triggers the drain.
	f.source.Set(true)
	f.waitDepth(0)

	require.Eventually(t, func() bool {
		return f.events.count(domain.EventOnlineRestored) == 1
	}, eventually, pollInterval)
	assert.Equal(t, 1, f.transport.sentCount())
}

func TestEngineCapabilityGateOffline(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, false, nil)

	_, err := f.engine.Enqueue(ctx, domain.KindAddServer,
		&domain.AddServerPayload{Name: "db", Host: "db-01", Port: 22})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, 0, f.engine.Status(ctx).QueueDepth)

	// The same kind queues fine while online.
	online := newEngineFixture(t, true, nil)
	_, err = online.engine.Enqueue(ctx, domain.KindAddServer,
		&domain.AddServerPayload{Name: "db", Host: "db-01", Port: 22})
	assert.NoError(t, err)
}

func TestEngineCapabilityOverride(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, false, func(_ *domain.Config, deps *EngineDeps) {
		deps.CapabilityOverrides = map[domain.ActionKind]bool{domain.KindAddServer: true}
	})

	_, err := f.engine.Enqueue(ctx, domain.KindAddServer,
		&domain.AddServerPayload{Name: "db", Host: "db-01", Port: 22})
	assert.NoError(t, err)
}

func TestEngineEnqueueRejectsUnknownKind(t *testing.T) {
	f := newEngineFixture(t, true, nil)
	_, err := f.engine.Enqueue(context.Background(), domain.ActionKind("bogus"), struct{}{})
	assert.ErrorIs(t, err, domain.ErrUnknownKind)
}

func TestEnginePauseHoldsQueueUntilResume(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, nil)

	f.engine.Pause()
	f.waitState(domain.SyncDisabled)

	// Queueing still works while paused.
	f.enqueueAck("a1")

	_, err := f.engine.ForceSync(ctx)
	assert.ErrorIs(t, err, domain.ErrSyncDisabled)
	assert.Equal(t, 1, f.engine.Status(ctx).QueueDepth)

	f.engine.Resume()
	f.waitDepth(0)
	f.waitState(domain.SyncIdle)
}

func TestEnginePauseSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, nil)

	f.engine.Pause()
	f.waitState(domain.SyncDisabled)
	require.NoError(t, f.engine.Close())

	// A new engine over the same store comes up paused.
	source := newFakeSource(true)
	defer source.Close()
	reopened, err := NewEngine(ctx, f.cfg, EngineDeps{
		Store:        f.kv,
		Transport:    f.transport,
		Connectivity: source,
		Keys:         staticKeys{},
	})
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, domain.SyncDisabled, reopened.Status(ctx).State)
}

func TestEngineConflictServerWins(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, nil)

	// The client last saw v1; the remote has moved to v2.
	require.NoError(t, f.cacheStore().Put(ctx, "alert/a1", []byte(`{"severity":"warning"}`), "v1", 0))
	remote := &domain.CachedEntity{
		Key:     "alert/a1",
		Payload: []byte(`{"severity":"critical"}`),
		Version: "v2",
		TTL:     time.Hour,
	}
	f.transport.setFetchFn(func(key string) (*domain.CachedEntity, error) {
		return remote, nil
	})

	f.enqueueAck("a1")
	_, err := f.engine.ForceSync(ctx)
	require.NoError(t, err)

	f.waitDepth(0)
	f.waitSessionCompleted(1)

	// The local mutation was discarded, never transmitted.
	assert.Equal(t, 0, f.transport.sentCount())
	assert.Equal(t, 0, f.events.count(domain.EventActionFailed), "a discard is a resolution, not a failure")

	session := f.events.lastSession(domain.EventSyncCompleted)
	require.NotNil(t, session)
	assert.Equal(t, 1, session.Conflicts)

	// The cache now holds the authoritative value.
	payload, ok := f.engine.GetCached(ctx, "alert/a1")
	require.True(t, ok)
	assert.JSONEq(t, `{"severity":"critical"}`, string(payload))

	records := f.engine.ConflictRecords()
	require.Len(t, records, 1)
	assert.Equal(t, domain.OutcomeDiscarded, records[0].Outcome)
}

func TestEngineConflictClientWins(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, func(cfg *domain.Config, _ *EngineDeps) {
		cfg.Strategy = domain.ClientWins
	})

	require.NoError(t, f.cacheStore().Put(ctx, "alert/a1", []byte(`{"severity":"warning"}`), "v1", 0))
	f.transport.setFetchFn(func(key string) (*domain.CachedEntity, error) {
		return &domain.CachedEntity{Key: key, Payload: []byte(`{}`), Version: "v2"}, nil
	})

	f.enqueueAck("a1")
	_, err := f.engine.ForceSync(ctx)
	require.NoError(t, err)

	f.waitDepth(0)
	f.waitSessionCompleted(1)

	// The local mutation went through despite the drift.
	assert.Equal(t, 1, f.transport.sentCount())
	records := f.engine.ConflictRecords()
	require.Len(t, records, 1)
	assert.Equal(t, domain.OutcomeApplied, records[0].Outcome)
}

func TestEngineConflictMerge(t *testing.T) {
	ctx := context.Background()
	merged := []byte(`{"severity":"critical","acked":true}`)
	f := newEngineFixture(t, true, func(cfg *domain.Config, deps *EngineDeps) {
		cfg.Strategy = domain.MergeStrategy
		deps.Merges = map[string]MergeFunc{
			"alert": func(local, remote []byte) ([]byte, error) { return merged, nil },
		}
	})

	require.NoError(t, f.cacheStore().Put(ctx, "alert/a1", []byte(`{"severity":"warning"}`), "v1", 0))
	f.transport.setFetchFn(func(key string) (*domain.CachedEntity, error) {
		return &domain.CachedEntity{Key: key, Payload: []byte(`{"severity":"critical"}`), Version: "v2"}, nil
	})

	f.enqueueAck("a1")
	_, err := f.engine.ForceSync(ctx)
	require.NoError(t, err)

	f.waitDepth(0)
	f.waitSessionCompleted(1)

	// The merged payload is what went over the wire.
	sent := f.transport.sentActions()
	require.Len(t, sent, 1)
	assert.Equal(t, merged, sent[0].Payload)

	records := f.engine.ConflictRecords()
	require.Len(t, records, 1)
	assert.Equal(t, domain.OutcomeMerged, records[0].Outcome)
}

func TestEngineRefreshesExpiredCacheEntries(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, nil)

	// An entry with a nanosecond TTL is expired by the time we sync.
	require.NoError(t, f.cacheStore().Put(ctx, "server/s1", []byte(`{"port":22}`), "v1", time.Nanosecond))

	fresh := &domain.CachedEntity{
		Key:     "server/s1",
		Payload: []byte(`{"port":2222}`),
		Version: "v2",
		TTL:     time.Hour,
	}
	f.transport.setFetchFn(func(key string) (*domain.CachedEntity, error) {
		return fresh, nil
	})

	id, err := f.engine.ForceSync(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id, "stale cache alone justifies a session")

	require.Eventually(t, func() bool {
		payload, ok := f.engine.GetCached(ctx, "server/s1")
		return ok && string(payload) == `{"port":2222}`
	}, eventually, pollInterval)
}

func TestEngineClearDropsQueueCacheAndMarker(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, true, nil)

	f.enqueueAck("a1")
	_, err := f.engine.ForceSync(ctx)
	require.NoError(t, err)
	f.waitDepth(0)
	require.False(t, f.engine.LastSyncTime(ctx).IsZero())

	f.enqueueAck("a2")
	require.NoError(t, f.cacheStore().Put(ctx, "alert/a9", []byte(`{}`), "v1", 0))

	require.NoError(t, f.engine.Clear(ctx))

	assert.Equal(t, 0, f.engine.Status(ctx).QueueDepth)
	_, ok := f.engine.GetCached(ctx, "alert/a9")
	assert.False(t, ok)
	assert.True(t, f.engine.LastSyncTime(ctx).IsZero())
}

func TestEngineForceSyncAfterClose(t *testing.T) {
	f := newEngineFixture(t, true, nil)
	require.NoError(t, f.engine.Close())

	_, err := f.engine.ForceSync(context.Background())
	assert.ErrorIs(t, err, domain.ErrClosed)
}
