package fetch

import (
	"sync"
	"time"
)

// responseCache stores fetched bodies for a fixed TTL so repeated fetches of
// the same URL within a run (or across quota re-sweeps) hit the source site
// only once.
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	body     []byte
	storedAt time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *responseCache) get(url string) ([]byte, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, url)
		return nil, false
	}
	return e.body, true
}

func (c *responseCache) put(url string, body []byte) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = cacheEntry{body: body, storedAt: c.now()}
}
