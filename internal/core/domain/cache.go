package domain

import "time"

// CachedEntity is a durable snapshot of a remote entity held for display
// while offline.
type CachedEntity struct {
	// Key identifies the entity, e.g. "alert/1234" or "server/web-01".
	Key string `json:"key"`

	// Payload is the entity body as received from the remote. Opaque to
	// the cache store.
	Payload []byte `json:"payload"`

	// Version is the opaque token (ETag equivalent) the remote issued
	// with this snapshot. Used for conflict detection.
	Version string `json:"version"`

	// StoredAt is when the snapshot was written locally.
	StoredAt time.Time `json:"stored_at"`

	// TTL bounds the snapshot's useful life. An entity is never returned
	// to a caller once now - StoredAt > TTL.
	TTL time.Duration `json:"ttl"`
}

// Expired reports whether the entity has outlived its TTL at the given
// instant.
func (e *CachedEntity) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.TTL
}
