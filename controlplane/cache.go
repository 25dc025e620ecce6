package controlplane

import (
	"sync"
	"time"

	"github.com/aponysus/nodecall/scope"
)

type cacheEntry struct {
	ctx       *scope.Context
	expiresAt time.Time
	found     bool // false for a negative entry
}

// ContextCache is a thread-safe TTL cache of built Contexts keyed by
// operation identity. Caching the built Context keeps strategy state, such
// as circuit breakers, alive between calls.
type ContextCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	nowFn   func() time.Time
}

func NewContextCache() *ContextCache {
	return &ContextCache{entries: make(map[string]cacheEntry)}
}

// Get reports whether a live entry exists for id and whether it is a
// negative one.
func (c *ContextCache) Get(id string) (ctx *scope.Context, foundInCache bool, isNegativeCache bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false, false
	}
	return entry.ctx, true, !entry.found
}

func (c *ContextCache) Set(id string, ctx *scope.Context, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = cacheEntry{ctx: ctx, expiresAt: c.now().Add(ttl), found: true}
}

// SetMissing records that the source has no policy for id.
func (c *ContextCache) SetMissing(id string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = cacheEntry{expiresAt: c.now().Add(ttl)}
}

func (c *ContextCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

func (c *ContextCache) now() time.Time {
	if c.nowFn != nil {
		return c.nowFn()
	}
	return time.Now()
}
