package cache

import (
	"context"
	"sync"
	"time"
)

// KeyPrefix namespaces every chatrelay-owned cache key so the whole
// namespace can be invalidated without touching unrelated cache usage.
const KeyPrefix = "crl:"

// Config configures a KeyedStore.
type Config struct {
	Capacity        int           // max entries (default 4096)
	DefaultTTL      time.Duration // TTL applied when a Set passes ttl <= 0
	CleanupInterval time.Duration // expired-entry sweep interval (default 1m)
}

// KeyedStore is the namespaced key-value cache with per-key TTL used
// for session shadows and conversation state. It is best-effort by
// contract: operations never fail, callers degrade to the durable
// store when a key is absent.
type KeyedStore struct {
	lru *lruCache

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewKeyedStore creates a keyed store and starts its cleanup loop.
func NewKeyedStore(cfg Config) *KeyedStore {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &KeyedStore{
		lru:    newLRUCache(cfg.Capacity, cfg.DefaultTTL),
		ctx:    ctx,
		cancel: cancel,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.lru.cleanupExpired()
			}
		}
	}()

	return s
}

// Get retrieves a value. Absent and expired keys both report !ok.
func (s *KeyedStore) Get(_ context.Context, key string) ([]byte, bool) {
	return s.lru.get(KeyPrefix + key)
}

// Set stores a value with the given TTL. ttl <= 0 applies the default.
func (s *KeyedStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	s.lru.set(KeyPrefix+key, value, ttl)
}

// Delete removes a single key. Unknown keys are a no-op.
func (s *KeyedStore) Delete(_ context.Context, key string) {
	s.lru.delete(KeyPrefix + key)
}

// DeletePrefix removes every key under the given sub-prefix and
// returns how many entries were dropped.
func (s *KeyedStore) DeletePrefix(_ context.Context, prefix string) int {
	return s.lru.deletePrefix(KeyPrefix + prefix)
}

// Clear drops the entire chatrelay namespace.
func (s *KeyedStore) Clear(ctx context.Context) int {
	return s.DeletePrefix(ctx, "")
}

// Size returns the number of live entries.
func (s *KeyedStore) Size() int {
	return s.lru.size()
}

// Close stops the cleanup loop.
func (s *KeyedStore) Close() {
	s.cancel()
	s.wg.Wait()
}
