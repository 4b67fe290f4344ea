package tiles

import (
	"container/list"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Cache is a concurrent-safe LRU cache of raster tiles keyed by
// "layer/date/z/x/y". Entries older than the TTL are dropped on read.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	recency    *list.List // front = most recently used
	maxEntries int
	ttl        time.Duration
	hits       atomic.Int64
	misses     atomic.Int64

	nowFunc func() time.Time
}

type tileEntry struct {
	key      string
	data     []byte
	storedAt time.Time
}

// CacheStats is the payload of the /tiles/stats endpoint.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewCache creates a Cache holding at most maxEntries tiles for ttl each.
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Cache{
		entries:    make(map[string]*list.Element, maxEntries),
		recency:    list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
		nowFunc:    time.Now,
	}
}

// Get returns a cached tile, or nil on miss or expiry.
func (c *Cache) Get(key string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil
	}

	entry := el.Value.(*tileEntry)
	if c.nowFunc().Sub(entry.storedAt) > c.ttl {
		c.remove(el)
		c.misses.Add(1)
		return nil
	}

	c.recency.MoveToFront(el)
	c.hits.Add(1)
	return entry.data
}

// Put stores a tile, evicting the least recently used entry at capacity.
func (c *Cache) Put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*tileEntry)
		entry.data = data
		entry.storedAt = now
		c.recency.MoveToFront(el)
		return
	}

	for len(c.entries) >= c.maxEntries {
		oldest := c.recency.Back()
		if oldest == nil {
			break
		}
		c.remove(oldest)
	}

	c.entries[key] = c.recency.PushFront(&tileEntry{key: key, data: data, storedAt: now})
}

// Invalidate drops every cached tile of a layer.
func (c *Cache) Invalidate(layer string) {
	prefix := layer + "/"

	c.mu.Lock()
	defer c.mu.Unlock()

	for el := c.recency.Front(); el != nil; {
		next := el.Next()
		if strings.HasPrefix(el.Value.(*tileEntry).key, prefix) {
			c.remove(el)
		}
		el = next
	}
}

// Stats returns cache performance statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:    entries,
		MaxEntries: c.maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

// remove must be called with mu held.
func (c *Cache) remove(el *list.Element) {
	c.recency.Remove(el)
	delete(c.entries, el.Value.(*tileEntry).key)
}
