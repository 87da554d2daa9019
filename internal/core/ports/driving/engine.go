// Package driving defines the interfaces the sync engine exposes to the
// caller/UI layer.
package driving

import (
	"context"

	"github.com/sams-labs/synckit/internal/core/domain"
)

// Engine is the caller-facing surface of the offline sync engine.
type Engine interface {
	// Enqueue queues a state-changing operation. The payload must be the
	// typed payload struct for kind. Returns the assigned action ID, or
	// domain.ErrPermissionDenied when the kind is not allowed offline
	// and the device is currently offline. The action is durably
	// persisted before Enqueue returns.
	Enqueue(ctx context.Context, kind domain.ActionKind, payload any) (string, error)

	// GetCached returns the cached payload for key, or ok=false when the
	// entry is missing or older than its TTL. A miss is the caller's
	// signal to trigger a fresh remote fetch, not an error.
	GetCached(ctx context.Context, key string) ([]byte, bool)

	// ForceSync starts a drain session if one is not already active and
	// returns the session ID. While a session is in flight, ForceSync is
	// a no-op returning that session's ID.
	ForceSync(ctx context.Context) (string, error)

	// Status reports the orchestrator state and the most recent session.
	Status(ctx context.Context) Status

	// Pause disables syncing. The queue is retained untouched; pending
	// backoff timers are cancelled; queueing remains available.
	Pause()

	// Resume re-enables syncing.
	Resume()

	// Clear drops the queue and the cache, cancelling any in-flight
	// work. Used on logout.
	Clear(ctx context.Context) error

	// Events returns a channel of caller-visible notifications.
	Events() <-chan domain.Event

	// Close shuts the engine down, releasing timers and goroutines.
	Close() error
}

// Status is a point-in-time snapshot of the engine for the caller/UI.
type Status struct {
	// State is the orchestrator state machine state.
	State domain.SyncState

	// Online is the debounced connectivity reading.
	Online bool

	// QueueDepth is the number of unresolved actions in the outbox.
	QueueDepth int

	// LastSession is the most recently closed drain session, if any.
	LastSession *domain.SyncSession

	// ActiveSession is the in-flight session ID while State is syncing.
	ActiveSession string
}
