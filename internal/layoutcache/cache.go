// Package layoutcache memoizes schedule layouts by the content hash of
// their input, so repeated renders of an unchanged week reuse one result.
package layoutcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"weekgrid/internal/model"
	"weekgrid/internal/schedule"
)

const defaultMaxEntries = 64

type entry struct {
	layout schedule.Layout
	used   uint64
}

// Cache is safe for concurrent use. Least recently used entries are evicted
// once the size limit is reached.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	maxEntries int

	tick         uint64
	hits, misses int
}

// New returns a Cache holding up to maxEntries layouts (64 when <= 0).
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Cache{entries: make(map[string]*entry), maxEntries: maxEntries}
}

// Key hashes the full meeting set together with the options. Meeting order
// is part of the key: it decides tie-breaks and dedup winners.
func Key(meetings []model.RawMeeting, opts schedule.Options) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	// Encoding plain strings, ints and floats cannot fail.
	_ = enc.Encode(meetings)
	_ = enc.Encode(opts)
	return hex.EncodeToString(h.Sum(nil))
}

// Build returns the cached layout for this input, computing it on a miss.
// Callers must treat the returned Layout as read-only.
func (c *Cache) Build(meetings []model.RawMeeting, opts schedule.Options) (schedule.Layout, bool) {
	key := Key(meetings, opts)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.tick++
		e.used = c.tick
		c.hits++
		c.mu.Unlock()
		return e.layout, true
	}
	c.misses++
	c.mu.Unlock()

	layout := schedule.Build(meetings, opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.tick++
	c.entries[key] = &entry{layout: layout, used: c.tick}
	return layout, false
}

func (c *Cache) evictOldest() {
	var (
		oldestKey string
		oldest    uint64
	)
	for k, e := range c.entries {
		if oldestKey == "" || e.used < oldest {
			oldestKey, oldest = k, e.used
		}
	}
	delete(c.entries, oldestKey)
}

// Purge drops every entry, e.g. after the layout options changed.
func (c *Cache) Purge() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// Stats reports entry count and hit/miss counters.
func (c *Cache) Stats() (entries, hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), c.hits, c.misses
}
