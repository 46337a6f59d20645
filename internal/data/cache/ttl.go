// Package cache provides a small in-process TTL cache used in front of the
// price API so repeated reads inside a snapshot window never leave the
// process.
package cache

import (
	"sync"
	"time"
)

// TTLCache is a bounded key/value cache with per-entry expiry and
// least-recently-used eviction once the entry cap is reached.
type TTLCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	maxEntries int
	stats      Stats

	stopCh   chan struct{}
	stopOnce sync.Once
}

type cacheEntry struct {
	value    any
	expires  time.Time
	accessed time.Time
}

// Stats counts cache outcomes since creation
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

// HitRatio returns hits over total lookups, 0 when nothing has been asked yet
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// New creates a cache holding at most maxEntries live entries and starts the
// background sweep for expired ones. Call Stop when the cache is retired.
func New(maxEntries int) *TTLCache {
	c := &TTLCache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		stopCh:     make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Get returns the live value for key, if any. Expired entries count as
// misses and are removed on the spot.
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, key)
		c.stats.Misses++
		return nil, false
	}

	entry.accessed = time.Now()
	c.stats.Hits++
	return entry.value, true
}

// Set stores value under key for ttl, evicting the least recently used entry
// when the cache is full
func (c *TTLCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLRU()
	}

	now := time.Now()
	c.entries[key] = &cacheEntry{
		value:    value,
		expires:  now.Add(ttl),
		accessed: now,
	}
}

// Stats returns a snapshot of the cache counters
func (c *TTLCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// Clear drops every entry and resets the counters
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.stats = Stats{}
}

// Stop shuts down the background sweep. Safe to call more than once.
func (c *TTLCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// evictLRU removes the least recently accessed entry; caller holds the lock
func (c *TTLCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.accessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.accessed
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.stats.Evictions++
	}
}

func (c *TTLCache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *TTLCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
		}
	}
}
