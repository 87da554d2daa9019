package driven

import (
	"context"

	"github.com/sams-labs/synckit/internal/core/domain"
)

// SendResult is the remote authority's answer to one applied action.
type SendResult struct {
	// RemoteVersion is the entity version token after the action was
	// applied remotely.
	RemoteVersion string

	// Payload optionally carries the authoritative entity body, used to
	// refresh the local cache.
	Payload []byte
}

// Transport abstracts the wire protocol to the remote authority. One
// idempotent endpoint exists per action kind, keyed by the action's ID,
// so a retried call after a timeout is not double-applied.
//
// Errors must be classified with the domain taxonomy: wrap
// domain.ErrTransient for failures worth retrying and
// domain.ErrPermanent for remote rejections.
type Transport interface {
	// Send applies the action remotely and returns the resulting entity
	// version.
	Send(ctx context.Context, action domain.QueuedAction) (*SendResult, error)

	// Fetch reads the current authoritative state of an entity. Used for
	// conflict detection and ServerWins cache refresh.
	Fetch(ctx context.Context, key string) (*domain.CachedEntity, error)
}
