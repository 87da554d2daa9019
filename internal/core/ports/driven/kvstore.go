package driven

import "context"

// KVStore is the abstract durable key-value store the engine persists
// into. Implementations must guarantee atomic single-key writes: a
// reader never observes a partially written value.
//
// The engine keeps two logical collections under key prefixes — the
// outbox log and the cache table — plus scalar metadata such as the
// last successful sync time.
type KVStore interface {
	// Get returns the value for key, or domain.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set atomically writes value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases underlying resources.
	Close() error
}
