// Package keys provides a file-backed key provider. On platforms with
// a real keychain the port would be satisfied by a native adapter; the
// file implementation keeps the key material out of the database and
// readable only by the owning user.
package keys

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sams-labs/synckit/internal/core/ports/driven"
)

const keySize = 32

// Ensure FileProvider implements the interface.
var _ driven.KeyProvider = (*FileProvider)(nil)

// FileProvider stores a single symmetric key in a 0600 file and caches
// it in memory after first read.
type FileProvider struct {
	path string

	mu  sync.Mutex
	key []byte
}

// NewFileProvider creates a provider backed by the file at path. If
// path is empty, defaults to ~/.synckit/cache.key. The key is generated
// on first use.
func NewFileProvider(path string) (*FileProvider, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".synckit", "cache.key")
	}
	return &FileProvider{path: path}, nil
}

// Key returns the 32-byte cache key, generating and persisting it on
// first call.
func (p *FileProvider) Key(_ context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key != nil {
		return p.key, nil
	}

	data, err := os.ReadFile(p.path)
	switch {
	case err == nil:
		if len(data) != keySize {
			return nil, fmt.Errorf("key file %s: expected %d bytes, got %d", p.path, keySize, len(data))
		}
		p.key = data
		return p.key, nil
	case os.IsNotExist(err):
		// fall through to generation
	default:
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	if err := os.WriteFile(p.path, key, 0600); err != nil {
		return nil, fmt.Errorf("writing key file: %w", err)
	}

	p.key = key
	return p.key, nil
}
