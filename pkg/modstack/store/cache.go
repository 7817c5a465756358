package store

import (
	"context"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sync/singleflight"

	"github.com/jamesainslie/modstack/pkg/modstack/resource"
)

// DefaultCacheCapacity bounds a Cache built with capacity 0.
const DefaultCacheCapacity = 4096

// DefaultIdleTimeout is how long an unused entry survives by default.
const DefaultIdleTimeout = 5 * time.Minute

// Cache holds resolved values keyed by canonical or nested path. It is
// bounded by entry count, drops entries unused for longer than the idle
// timeout, and collapses concurrent fetches of the same key. Values are
// immutable, so a value handed out stays valid after eviction.
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache
	used  map[string]time.Time
	idle  time.Duration
	now   func() time.Time
	group singleflight.Group

	hits   int64
	misses int64
}

// NewCache returns a cache holding at most capacity values. An idle
// timeout of zero disables idle eviction.
func NewCache(capacity int, idle time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	c := &Cache{
		lru:  lru.New(capacity),
		used: make(map[string]time.Time),
		idle: idle,
		now:  time.Now,
	}
	c.lru.OnEvicted = func(key lru.Key, _ any) {
		delete(c.used, key.(string))
	}
	return c
}

// Get returns the value cached for key. An entry found idle past the
// timeout is dropped and reported missing.
func (c *Cache) Get(key string) (resource.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache) getLocked(key string) (resource.Value, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	now := c.now()
	if c.idle > 0 && now.Sub(c.used[key]) > c.idle {
		c.lru.Remove(key)
		c.misses++
		return nil, false
	}
	c.used[key] = now
	c.hits++
	return v.(resource.Value), true
}

// Add caches v under key.
func (c *Cache) Add(key string, v resource.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, v)
	c.used[key] = c.now()
}

// GetOrFetch returns the cached value for key or calls fetch to produce
// it. Concurrent callers for one key share a single fetch; a failed
// fetch caches nothing.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch func() (resource.Value, error)) (resource.Value, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fetch()
		if err != nil {
			return nil, err
		}
		c.Add(key, v)
		return v, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(resource.Value), nil
	}
}

// EvictIdle drops every entry unused for longer than the idle timeout
// and returns how many were dropped.
func (c *Cache) EvictIdle() int {
	if c.idle <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	var n int
	for key, at := range c.used {
		if now.Sub(at) > c.idle {
			c.lru.Remove(key)
			n++
		}
	}
	return n
}

// Len returns the number of cached values.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// CacheStats counts lookups since the cache was created.
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: c.lru.Len(), Hits: c.hits, Misses: c.misses}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Clear()
	clear(c.used)
}
