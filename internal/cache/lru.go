// Package cache provides caching implementations for Fathom.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCache is a thread-safe LRU cache with per-entry TTL.
// Used as the Community tier cache and as L1 in two-phase caching.
type LRUCache struct {
	items   *lru.Cache[string, cacheEntry]
	maxSize int
	now     func() time.Time
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewLRUCache creates a new LRU cache with the specified max size.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	// lru.New only errors on a non-positive size, guarded above.
	items, _ := lru.New[string, cacheEntry](maxSize)
	return &LRUCache{
		items:   items,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get retrieves a value from cache. A miss or expired entry returns nil, nil.
func (c *LRUCache) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := c.items.Get(key)
	if !ok {
		return nil, nil
	}
	if c.now().After(entry.expiresAt) {
		c.items.Remove(key)
		return nil, nil
	}
	return entry.value, nil
}

// Set stores a value in cache with TTL. Least recently used entries are
// evicted once the cache is full.
func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.items.Add(key, cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	})
	return nil
}

// Delete removes a value from cache.
func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.items.Remove(key)
	return nil
}

// Ping checks cache health.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close cleans up the cache.
func (c *LRUCache) Close() error {
	c.items.Purge()
	return nil
}

// Stats returns cache statistics.
func (c *LRUCache) Stats() (size int, capacity int) {
	return c.items.Len(), c.maxSize
}
