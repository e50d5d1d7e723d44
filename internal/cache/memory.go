package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryProvider implements Provider with an in-process expiring map. It suits single
// replica deployments and tests.
type MemoryProvider struct {
	mu    sync.Mutex
	store *gocache.Cache
}

// NewMemoryProvider creates a memory cache whose expired entries are purged every cleanupInterval.
func NewMemoryProvider(cleanupInterval time.Duration) *MemoryProvider {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryProvider{store: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// Get returns a copy of the stored bytes or ErrCacheMiss.
func (m *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := m.store.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), value.([]byte)...), nil
}

// Set stores a copy of value; a non-positive ttl never expires.
func (m *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.store.Set(key, append([]byte(nil), value...), expiration(ttl))
	return nil
}

// SetNX stores value only if key is absent or expired.
func (m *MemoryProvider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Add(key, append([]byte(nil), value...), expiration(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

// Del removes a key.
func (m *MemoryProvider) Del(_ context.Context, key string) error {
	m.store.Delete(key)
	return nil
}

// Close flushes all entries.
func (m *MemoryProvider) Close() error {
	m.store.Flush()
	return nil
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}
