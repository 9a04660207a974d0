package calendar

import (
	"sync"
	"time"
)

// CacheEntry is one memoized expansion.
type CacheEntry struct {
	Key        string
	Days       []Day
	InsertedAt time.Time
}

// ExpansionCache memoizes rule expansions for a fixed TTL. Expiry is judged
// against the injected clock so tests can move time explicitly.
type ExpansionCache struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
	ttl     time.Duration
	clock   Clock
}

// DefaultCacheTTL matches how long an edit dialog typically stays open.
const DefaultCacheTTL = 5 * time.Minute

// NewExpansionCache creates a cache. A nil clock means time.Now; a
// non-positive ttl means DefaultCacheTTL.
func NewExpansionCache(ttl time.Duration, clock Clock) *ExpansionCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &ExpansionCache{
		entries: make(map[string]CacheEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns a copy of the cached days if present and not expired.
func (c *ExpansionCache) Get(key string) ([]Day, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.expired(entry, c.clock()) {
		c.mu.Lock()
		// Re-check: a concurrent Set may have refreshed it.
		if cur, ok := c.entries[key]; ok && c.expired(cur, c.clock()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return append([]Day(nil), entry.Days...), true
}

// Set stores a copy of days under key.
func (c *ExpansionCache) Set(key string, days []Day) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = CacheEntry{
		Key:        key,
		Days:       append([]Day(nil), days...),
		InsertedAt: c.clock(),
	}
}

// Purge drops expired entries and returns how many were removed.
func (c *ExpansionCache) Purge() int {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if c.expired(entry, now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (c *ExpansionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *ExpansionCache) expired(e CacheEntry, now time.Time) bool {
	return now.Sub(e.InsertedAt) >= c.ttl
}
