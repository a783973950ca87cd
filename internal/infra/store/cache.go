package store

import (
	"sync"
	"time"

	"mcpreg/internal/domain"
)

// serverCache is a read-through layer over the committed state. It is never
// the source of truth: every write path invalidates before readers return.
type serverCache struct {
	mu      sync.Mutex
	size    int
	ttl     time.Duration
	entries map[domain.ServerID]cacheEntry
}

type cacheEntry struct {
	server    domain.Server
	expiresAt time.Time
}

func newServerCache(size int, ttl time.Duration) *serverCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &serverCache{
		size:    size,
		ttl:     ttl,
		entries: make(map[domain.ServerID]cacheEntry, size),
	}
}

func (c *serverCache) get(id domain.ServerID) (domain.Server, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok {
		return domain.Server{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, id)
		return domain.Server{}, false
	}
	return entry.server.Clone(), true
}

func (c *serverCache) put(server domain.Server) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.size {
		c.evictOldestLocked()
	}
	c.entries[server.ID] = cacheEntry{
		server:    server.Clone(),
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *serverCache) invalidate(id domain.ServerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

func (c *serverCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[domain.ServerID]cacheEntry, c.size)
}

func (c *serverCache) evictOldestLocked() {
	var oldest domain.ServerID
	var oldestAt time.Time
	for id, entry := range c.entries {
		if oldestAt.IsZero() || entry.expiresAt.Before(oldestAt) {
			oldest = id
			oldestAt = entry.expiresAt
		}
	}
	if oldest != "" {
		delete(c.entries, oldest)
	}
}
