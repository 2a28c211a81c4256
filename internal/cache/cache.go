// Package cache implements a small in-memory cache for extraction results,
// keyed by screenshot content and the requesting user. Entries expire after a
// TTL and the cache holds at most a fixed number of entries, evicting the
// oldest insertion first.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type entry struct {
	value    string
	storedAt time.Time
}

// ContentCache is a fixed-capacity FIFO cache with per-entry TTL.
//
// Eviction order is insertion order: overwriting an existing key refreshes
// its value and timestamp but keeps its original position. Expired entries
// read as absent yet still occupy their slot until evicted by capacity.
type ContentCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]*entry
	order   []string
}

// New returns a ContentCache holding at most max entries, each readable for
// ttl after its last write.
func New(max int, ttl time.Duration) *ContentCache {
	if max < 1 {
		max = 1
	}
	return &ContentCache{
		ttl:     ttl,
		max:     max,
		entries: make(map[string]*entry, max),
		order:   make([]string, 0, max),
	}
}

// Key derives the cache key for a piece of content on behalf of a user.
// The same bytes submitted by different users produce different keys.
func Key(userID string, content []byte) string {
	sum := sha256.Sum256(content)
	return userID + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached value for key. Expired entries report a miss but
// are not removed; they age out through capacity eviction.
func (c *ContentCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if time.Since(e.storedAt) > c.ttl {
		return "", false
	}
	return e.value, true
}

// Put stores value under key. An existing key is refreshed in place; a new
// key evicts the oldest insertion once the cache is full.
func (c *ContentCache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.storedAt = time.Now()
		return
	}
	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = &entry{value: value, storedAt: time.Now()}
	c.order = append(c.order, key)
}

// Len reports the number of entries currently held, expired ones included.
func (c *ContentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
