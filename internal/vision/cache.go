package vision

import (
	"sync"
	"time"
)

type cacheEntry struct {
	text    string
	expires time.Time
}

// Cache remembers descriptions per picture digest for a TTL, along with the most recent one so
// it can be repeated on request.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	items map[string]cacheEntry
	last  cacheEntry
}

// NewCache returns a cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]cacheEntry),
	}
}

// Lookup returns the unexpired description stored under key.
func (c *Cache) Lookup(key string) (string, bool) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || !now.Before(entry.expires) {
		return "", false
	}
	return entry.text, true
}

// Store records text under key and makes it the most recent result.
func (c *Cache) Store(key, text string) {
	now := c.now()
	entry := cacheEntry{text: text, expires: now.Add(c.ttl)}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.items {
		if !now.Before(e.expires) {
			delete(c.items, k)
		}
	}
	c.items[key] = entry
	c.last = entry
}

// Last returns the most recent description while it is still fresh.
func (c *Cache) Last() (string, bool) {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last.text == "" || !now.Before(c.last.expires) {
		return "", false
	}
	return c.last.text, true
}
