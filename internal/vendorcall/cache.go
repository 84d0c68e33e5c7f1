package vendorcall

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Cache is a TTL response cache keyed by normalized request
// parameters. Hits bypass budget accounting and the network entirely.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	resp      *Response
	expiresAt time.Time
}

// NewCache creates a cache with a fixed entry TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached response for the request, if fresh.
func (c *Cache) Get(req Request) (*Response, bool) {
	key := req.cacheKey()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.resp, true
}

// Put stores the response under the request's normalized key.
func (c *Cache) Put(req Request, resp *Response) {
	key := req.cacheKey()

	c.mu.Lock()
	c.entries[key] = cacheEntry{resp: resp, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Purge drops expired entries. Called opportunistically by the
// gateway; correctness only needs the freshness check in Get.
func (c *Cache) Purge() {
	now := c.now()

	c.mu.Lock()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// cacheKey builds provider|endpoint|k=v|... with sorted params so that
// equivalent requests share an entry.
func (r Request) cacheKey() string {
	parts := make([]string, 0, len(r.Params)+2)
	parts = append(parts, r.Provider, r.Endpoint)

	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+r.Params[k])
	}
	return strings.Join(parts, "|")
}
