package services

import (
	"context"
	"sync"
	"time"

	"github.com/sams-labs/synckit/internal/core/domain"
	"github.com/sams-labs/synckit/internal/core/ports/driven"
)

// --- Shared fakes for service tests ---

// fakeClock reports a settable time. After falls through to the real
// timer so components that sleep still make progress; tests that need
// expiry manipulate Now instead of waiting.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// staticKeys returns a fixed 32-byte key.
type staticKeys struct{}

func (staticKeys) Key(_ context.Context) ([]byte, error) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key, nil
}

// fakeSource is a hand-driven connectivity source.
type fakeSource struct {
	mu     sync.Mutex
	online bool
	out    chan bool
	closed bool
}

func newFakeSource(online bool) *fakeSource {
	return &fakeSource{online: online, out: make(chan bool, 1)}
}

func (s *fakeSource) Set(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.online = online
	select {
	case <-s.out:
	default:
	}
	s.out <- online
}

func (s *fakeSource) Subscribe() <-chan bool { return s.out }

func (s *fakeSource) Current() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
	return nil
}

// fakeTransport records sends and delegates behaviour to programmable
// functions. The zero value accepts everything.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []domain.QueuedAction
	sendFn func(action domain.QueuedAction) (*driven.SendResult, error)
	// fetchFn serves conflict-detection and refresh fetches by key.
	fetchFn func(key string) (*domain.CachedEntity, error)
}

func (t *fakeTransport) Send(_ context.Context, action domain.QueuedAction) (*driven.SendResult, error) {
	t.mu.Lock()
	fn := t.sendFn
	t.mu.Unlock()

	var result *driven.SendResult
	var err error
	if fn != nil {
		result, err = fn(action)
	} else {
		result = &driven.SendResult{RemoteVersion: "v1"}
	}
	if err == nil {
		t.mu.Lock()
		t.sent = append(t.sent, action)
		t.mu.Unlock()
	}
	return result, err
}

func (t *fakeTransport) Fetch(_ context.Context, key string) (*domain.CachedEntity, error) {
	t.mu.Lock()
	fn := t.fetchFn
	t.mu.Unlock()
	if fn != nil {
		return fn(key)
	}
	return nil, domain.ErrNotFound
}

func (t *fakeTransport) setSendFn(fn func(domain.QueuedAction) (*driven.SendResult, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendFn = fn
}

func (t *fakeTransport) setFetchFn(fn func(key string) (*domain.CachedEntity, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetchFn = fn
}

func (t *fakeTransport) sentActions() []domain.QueuedAction {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.QueuedAction, len(t.sent))
	copy(out, t.sent)
	return out
}

func (t *fakeTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}
