// Package cache provides a size-bounded LRU cache with optional TTL
// expiration, used to memoize fairness evaluations keyed by content hash.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a thread-safe LRU cache with per-entry expiration. A ttl of 0
// disables expiration and entries live until evicted by size pressure.
type Cache[K comparable, V any] struct {
	inner   *lru.Cache[K, *entry[V]]
	ttl     time.Duration
	mu      sync.RWMutex
	hits    uint64
	misses  uint64
	evicted uint64
}

type entry[V any] struct {
	val V
	exp time.Time
}

// New creates a cache holding at most size entries. Size must be positive.
func New[K comparable, V any](size int, ttl time.Duration) (*Cache[K, V], error) {
	inner, err := lru.New[K, *entry[V]](size)
	if err != nil {
		return nil, err
	}
	return &Cache[K, V]{inner: inner, ttl: ttl}, nil
}

// Get returns the value for key if present and not expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.inner.Get(key)
	if !ok || (c.ttl > 0 && time.Now().After(e.exp)) {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return e.val, true
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if c.ttl > 0 {
		exp = time.Now().Add(c.ttl)
	}
	if c.inner.Add(key, &entry[V]{val: value, exp: exp}) {
		c.evicted++
	}
}

// Delete removes key from the cache.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(key)
}

// Len returns the number of resident entries, expired or not.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inner.Len()
}

// Purge drops every entry.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Purge()
}

// Stats holds cache counters for observability endpoints.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Evicted uint64  `json:"evicted"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Evicted: c.evicted,
		Size:    c.inner.Len(),
		HitRate: rate,
	}
}

// CleanupExpired removes expired entries and reports how many were dropped.
// O(n) over resident keys, so callers should run it on a slow tick.
func (c *Cache[K, V]) CleanupExpired() int {
	if c.ttl == 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, key := range c.inner.Keys() {
		if e, ok := c.inner.Peek(key); ok && now.After(e.exp) {
			c.inner.Remove(key)
			removed++
		}
	}
	return removed
}
