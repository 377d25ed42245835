package compliance

import "time"

// PlaybookCache caches loaded playbooks so a check does not have to rebuild
// the full rule set from the store on every request. Implementations can be
// swapped for Redis or similar later.
type PlaybookCache interface {
	// Get returns the cached playbook, or nil on miss or expiry.
	Get(id string) *Playbook

	// Set stores a playbook in the cache.
	Set(pb *Playbook)

	// Invalidate evicts one playbook, forcing a reload on next Get.
	Invalidate(id string)
}

// CacheConfig controls cache behavior.
type CacheConfig struct {
	// TTL is the time-to-live for cached entries. Zero means entries live
	// until invalidated.
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults: no TTL, invalidate on
// mutation only.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
