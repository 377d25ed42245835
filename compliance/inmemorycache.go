package compliance

import (
	"sync"
	"time"
)

type cacheEntry struct {
	playbook Playbook
	cachedAt time.Time
}

// InMemoryPlaybookCache is a simple map-backed PlaybookCache. Thread-safe.
type InMemoryPlaybookCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	config  CacheConfig
}

// NewInMemoryPlaybookCache creates an empty in-memory cache.
func NewInMemoryPlaybookCache(config CacheConfig) *InMemoryPlaybookCache {
	return &InMemoryPlaybookCache{
		entries: make(map[string]cacheEntry),
		config:  config,
	}
}

// Get returns a copy of the cached playbook, or nil on miss or expiry.
// Returning a copy keeps callers from mutating the cached value.
func (c *InMemoryPlaybookCache) Get(id string) *Playbook {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil
	}
	if c.config.TTL > 0 && time.Since(entry.cachedAt) > c.config.TTL {
		return nil
	}

	cp := clonePlaybook(&entry.playbook)
	return &cp
}

// Set stores a copy of the playbook.
func (c *InMemoryPlaybookCache) Set(pb *Playbook) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[pb.ID] = cacheEntry{
		playbook: clonePlaybook(pb),
		cachedAt: time.Now(),
	}
}

// Invalidate evicts one playbook.
func (c *InMemoryPlaybookCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
}
