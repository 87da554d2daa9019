package driven

import "context"

// KeyProvider supplies the symmetric key for cache encryption. It stands
// in for the platform keychain or secure enclave, decoupling the engine
// from any specific key-management mechanism.
type KeyProvider interface {
	// Key returns a 32-byte key suitable for AES-256.
	Key(ctx context.Context) ([]byte, error)
}
