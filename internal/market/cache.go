package market

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how long a fetched resolution is reused.
const DefaultCacheTTL = 15 * time.Minute

// Cache stores resolutions keyed by CacheKey(platform, marketID).
type Cache interface {
	Get(ctx context.Context, key string) (*Resolution, bool)
	Set(ctx context.Context, key string, r *Resolution)
	Clear(ctx context.Context) error
}

// CacheKey builds the "platform:marketID" cache key.
func CacheKey(platform Platform, marketID string) string {
	return string(platform) + ":" + marketID
}

// MemoryCache is a process-local TTL cache. Writers for the same key within
// a TTL window store the same value, so last-writer-wins is safe.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	resolution Resolution
	fetchedAt  time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of the entry if it is younger than the TTL.
func (c *MemoryCache) Get(_ context.Context, key string) (*Resolution, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.fetchedAt) >= c.ttl {
		return nil, false
	}
	return entry.resolution.clone(), true
}

func (c *MemoryCache) Set(_ context.Context, key string, r *Resolution) {
	if r == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		resolution: *r.clone(),
		fetchedAt:  c.now(),
	}
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
	return nil
}

// Len returns the number of entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
