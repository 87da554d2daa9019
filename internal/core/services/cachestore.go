package services

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sams-labs/synckit/internal/core/domain"
	"github.com/sams-labs/synckit/internal/core/ports/driven"
	"github.com/sams-labs/synckit/internal/logger"
)

// cachePrefix namespaces cache records in the durable store.
const cachePrefix = "cache/"

// cacheRecord is the persisted envelope for one cached entity. Blob is
// the payload after the compress-then-encrypt pipeline.
type cacheRecord struct {
	Key      string        `json:"key"`
	Blob     []byte        `json:"blob"`
	Version  string        `json:"version"`
	StoredAt time.Time     `json:"stored_at"`
	TTL      time.Duration `json:"ttl"`
}

// CacheStore is the durable, TTL-bounded snapshot store for remote
// entities.
//
// The write pipeline is fixed as compress, then encrypt, then persist:
// encrypted bytes do not compress effectively, so the order is not
// configurable. Reads apply the reverse pipeline. Each entity is a
// single key in the durable store, so the store's atomic single-key
// write guarantee makes entries atomic: a reader never observes a
// partial write.
type CacheStore struct {
	kv         driven.KVStore
	keys       driven.KeyProvider
	clock      driven.Clock
	defaultTTL time.Duration

	// mu guards read/write pairs on the same key so a reader never
	// races an in-progress overwrite.
	mu sync.RWMutex
}

// NewCacheStore creates a cache store over the durable store.
func NewCacheStore(kv driven.KVStore, keys driven.KeyProvider, clock driven.Clock, defaultTTL time.Duration) *CacheStore {
	return &CacheStore{
		kv:         kv,
		keys:       keys,
		clock:      clock,
		defaultTTL: defaultTTL,
	}
}

// Put stores a snapshot of a remote entity. A zero ttl selects the
// store's default.
func (c *CacheStore) Put(ctx context.Context, key string, payload []byte, version string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	blob, err := c.seal(ctx, payload)
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}

	record := cacheRecord{
		Key:      key,
		Blob:     blob,
		Version:  version,
		StoredAt: c.clock.Now(),
		TTL:      ttl,
	}
	data, err := json.Marshal(&record)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv.Set(ctx, cachePrefix+key, data)
}

// PutEntity stores an already-assembled entity snapshot.
func (c *CacheStore) PutEntity(ctx context.Context, entity *domain.CachedEntity) error {
	return c.Put(ctx, entity.Key, entity.Payload, entity.Version, entity.TTL)
}

// Get returns the cached payload, or ok=false when the entry is missing
// or older than its TTL. A miss is the caller's signal to trigger a
// fresh remote fetch, not an error. Undecryptable or corrupted entries
// are evicted and logged, then reported as a miss.
func (c *CacheStore) Get(ctx context.Context, key string) ([]byte, bool) {
	entity, ok := c.GetEntity(ctx, key)
	if !ok {
		return nil, false
	}
	return entity.Payload, true
}

// GetEntity returns the full cached entity, applying the same TTL and
// corruption rules as Get. The conflict resolver uses the version.
func (c *CacheStore) GetEntity(ctx context.Context, key string) (*domain.CachedEntity, bool) {
	c.mu.RLock()
	data, err := c.kv.Get(ctx, cachePrefix+key)
	c.mu.RUnlock()
	if err != nil {
		return nil, false
	}

	var record cacheRecord
	if err := json.Unmarshal(data, &record); err != nil {
		logger.Warn("cache: evicting corrupted entry %s", key)
		_ = c.Evict(ctx, key)
		return nil, false
	}

	if (&domain.CachedEntity{StoredAt: record.StoredAt, TTL: record.TTL}).Expired(c.clock.Now()) {
		return nil, false
	}

	payload, err := c.open(ctx, record.Blob)
	if err != nil {
		logger.Warn("cache: evicting undecryptable entry %s: %v", key, err)
		_ = c.Evict(ctx, key)
		return nil, false
	}

	return &domain.CachedEntity{
		Key:      record.Key,
		Payload:  payload,
		Version:  record.Version,
		StoredAt: record.StoredAt,
		TTL:      record.TTL,
	}, true
}

// Version returns the stored version token for key without decrypting
// the payload. Expired entries still report their version: the version
// records what the client last observed, which is exactly what conflict
// detection needs.
func (c *CacheStore) Version(ctx context.Context, key string) string {
	c.mu.RLock()
	data, err := c.kv.Get(ctx, cachePrefix+key)
	c.mu.RUnlock()
	if err != nil {
		return ""
	}
	var record cacheRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return ""
	}
	return record.Version
}

// ExpiredKeys returns the keys of physically present entries whose TTL
// has elapsed. The orchestrator refreshes them from the remote.
func (c *CacheStore) ExpiredKeys(ctx context.Context) []string {
	c.mu.RLock()
	keys, err := c.kv.List(ctx, cachePrefix)
	c.mu.RUnlock()
	if err != nil {
		return nil
	}

	now := c.clock.Now()
	var expired []string
	for _, storeKey := range keys {
		c.mu.RLock()
		data, err := c.kv.Get(ctx, storeKey)
		c.mu.RUnlock()
		if err != nil {
			continue
		}
		var record cacheRecord
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		if (&domain.CachedEntity{StoredAt: record.StoredAt, TTL: record.TTL}).Expired(now) {
			expired = append(expired, record.Key)
		}
	}
	return expired
}

// Evict removes a single entry. Used on forced refresh.
func (c *CacheStore) Evict(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv.Delete(ctx, cachePrefix+key)
}

// Clear removes every entry. Used on logout.
func (c *CacheStore) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.kv.List(ctx, cachePrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := c.kv.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// seal runs the fixed write pipeline: gzip, then AES-GCM. The nonce is
// prepended to the ciphertext.
func (c *CacheStore) seal(ctx context.Context, payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	gcm, err := c.cipher(ctx)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, buf.Bytes(), nil), nil
}

// open runs the reverse pipeline: decrypt, then decompress.
func (c *CacheStore) open(ctx context.Context, blob []byte) ([]byte, error) {
	gcm, err := c.cipher(ctx)
	if err != nil {
		return nil, err
	}
	if len(blob) < gcm.NonceSize() {
		return nil, domain.ErrCorruptedEntry
	}
	nonce, ciphertext := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	compressed, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptedEntry, err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptedEntry, err)
	}
	defer zr.Close()
	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptedEntry, err)
	}
	return payload, nil
}

func (c *CacheStore) cipher(ctx context.Context) (cipher.AEAD, error) {
	key, err := c.keys.Key(ctx)
	if err != nil {
		return nil, fmt.Errorf("key provider: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
