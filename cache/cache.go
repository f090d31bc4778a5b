// Package cache keeps recently fetched documents in memory.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Page is a fetched document.
type Page struct {
	Body     []byte
	FinalURL string
}

// entry holds a cached page with its creation timestamp.
type entry struct {
	page      Page
	createdAt time.Time
}

// Cache is a simple in-memory page cache keyed by request URL.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	maxAge     time.Duration
	now        func() time.Time
}

// New creates a Cache holding at most maxEntries pages for maxAge each.
// A non-positive maxEntries or maxAge disables caching.
func New(maxEntries int, maxAge time.Duration) *Cache {
	return &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Key generates a cache key from the request URL.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Get returns the page cached for url if it is younger than maxAge.
func (c *Cache) Get(url string) (Page, bool) {
	if !c.enabled() {
		return Page{}, false
	}
	key := Key(url)

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return Page{}, false
	}

	if c.now().Sub(e.createdAt) > c.maxAge {
		c.mu.Lock()
		if cur, ok := c.store[key]; ok && cur == e {
			delete(c.store, key)
		}
		c.mu.Unlock()
		return Page{}, false
	}
	return e.page, true
}

// Set stores page under url. If the cache is at capacity, expired entries
// are dropped first and then, if still full, an arbitrary one.
func (c *Cache) Set(url string, page Page) {
	if !c.enabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(url)
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		c.evictLocked()
	}
	c.store[key] = &entry{page: page, createdAt: c.now()}
}

// Len returns the number of stored pages, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

func (c *Cache) enabled() bool {
	return c.maxEntries > 0 && c.maxAge > 0
}

func (c *Cache) evictLocked() {
	cutoff := c.now().Add(-c.maxAge)
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
	if len(c.store) < c.maxEntries {
		return
	}
	// Map iteration order is random.
	for k := range c.store {
		delete(c.store, k)
		return
	}
}
