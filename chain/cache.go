package chain

import (
	"sync"

	"github.com/aponysus/nodecall/strategy"
)

// cache holds decorated invocations by identity. Entries never expire: the
// Context a chain is built from cannot change.
type cache struct {
	mu      sync.RWMutex
	entries map[string]strategy.Invocation
}

func newCache() *cache {
	return &cache{entries: make(map[string]strategy.Invocation)}
}

func (c *cache) get(key string) (strategy.Invocation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inv, ok := c.entries[key]
	return inv, ok
}

// set stores inv unless another goroutine got there first, and returns the
// stored entry.
func (c *cache) set(key string, inv strategy.Invocation) strategy.Invocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing
	}
	c.entries[key] = inv
	return inv
}

func (c *cache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cached reports how many shared invocations the chain holds.
func (ch *Chain) Cached() int { return ch.cache.len() }
