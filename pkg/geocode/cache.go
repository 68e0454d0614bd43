package geocode

import (
	"sync"
	"time"
)

type memoEntry struct {
	result   Result
	cachedAt time.Time
}

// memoCache memoizes lookups in memory. Non-matches are cached too so a
// bad location string does not hammer the geocoder on every job row.
type memoCache struct {
	mu      sync.Mutex
	entries map[string]memoEntry
	now     func() time.Time
}

func newMemoCache(now func() time.Time) *memoCache {
	return &memoCache{
		entries: make(map[string]memoEntry),
		now:     now,
	}
}

func (c *memoCache) get(key string, ttl time.Duration) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.cachedAt) > ttl {
		delete(c.entries, key)
		return nil, false
	}
	r := e.result
	return &r, true
}

func (c *memoCache) put(key string, r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoEntry{result: *r, cachedAt: c.now()}
}
