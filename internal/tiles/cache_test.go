package tiles

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_BasicGetPut(t *testing.T) {
	cache := NewCache(100, time.Hour)

	assert.Nil(t, cache.Get("osm/10/512/256"))

	data := []byte("png-tile")
	cache.Put("osm/10/512/256", data)
	assert.Equal(t, data, cache.Get("osm/10/512/256"))
	assert.Nil(t, cache.Get("osm/10/512/257"))
}

func TestCache_TTLExpiration(t *testing.T) {
	now := time.Now()
	cache := NewCache(100, time.Minute)
	cache.nowFunc = func() time.Time { return now }

	cache.Put("osm/1/0/0", []byte("tile"))
	assert.NotNil(t, cache.Get("osm/1/0/0"))

	now = now.Add(2 * time.Minute)
	assert.Nil(t, cache.Get("osm/1/0/0"))

	cache.mu.Lock()
	_, exists := cache.entries["osm/1/0/0"]
	cache.mu.Unlock()
	assert.False(t, exists, "expired entry is removed")
}

func TestCache_LRUEviction(t *testing.T) {
	cache := NewCache(3, time.Hour)

	cache.Put("a", []byte("1"))
	cache.Put("b", []byte("2"))
	cache.Put("c", []byte("3"))
	cache.Get("a")
	cache.Put("d", []byte("4"))

	assert.NotNil(t, cache.Get("a"), "recently read entry survives")
	assert.Nil(t, cache.Get("b"))
	assert.NotNil(t, cache.Get("c"))
	assert.NotNil(t, cache.Get("d"))
}

func TestCache_UpdateExisting(t *testing.T) {
	cache := NewCache(2, time.Hour)
	cache.Put("a", []byte("old"))
	cache.Put("a", []byte("new"))

	assert.Equal(t, []byte("new"), cache.Get("a"))
	assert.Equal(t, 1, cache.Stats().Entries)
}

func TestCache_RefreshMovesToFront(t *testing.T) {
	cache := NewCache(2, time.Hour)
	cache.Put("a", []byte("1"))
	cache.Put("b", []byte("2"))
	cache.Put("a", []byte("1b"))
	cache.Put("c", []byte("3"))

	assert.Equal(t, []byte("1b"), cache.Get("a"), "rewritten entry counts as recent")
	assert.Nil(t, cache.Get("b"))
	assert.NotNil(t, cache.Get("c"))
}

func TestCache_IndexMatchesRecencyList(t *testing.T) {
	now := time.Now()
	cache := NewCache(4, time.Minute)
	cache.nowFunc = func() time.Time { return now }

	for _, k := range []string{"osm/1/0/0", "osm/1/0/1", "gibs/1/0/0", "gibs/1/0/1", "osm/1/1/1", "gibs/1/1/1"} {
		cache.Put(k, []byte("t"))
	}
	cache.Invalidate("gibs")
	assert.Equal(t, 1, cache.Stats().Entries)
	now = now.Add(2 * time.Minute)
	cache.Put("osm/2/0/0", []byte("t"))
	assert.Nil(t, cache.Get("osm/1/1/1"))

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.Len(t, cache.entries, 1)
	assert.Equal(t, len(cache.entries), cache.recency.Len())
	for el := cache.recency.Front(); el != nil; el = el.Next() {
		key := el.Value.(*tileEntry).key
		assert.Same(t, el, cache.entries[key])
	}
}

func TestCache_Invalidate(t *testing.T) {
	cache := NewCache(10, time.Hour)
	cache.Put("MODIS_Terra_NDVI_16Day/2024-09-01/3/1/1", []byte("x"))
	cache.Put("MODIS_Terra_NDVI_16Day/2023-09-01/3/1/1", []byte("x"))
	cache.Put("osm/3/1/1", []byte("x"))

	cache.Invalidate("MODIS_Terra_NDVI_16Day")
	assert.Nil(t, cache.Get("MODIS_Terra_NDVI_16Day/2024-09-01/3/1/1"))
	assert.NotNil(t, cache.Get("osm/3/1/1"))
	assert.Equal(t, 1, cache.Stats().Entries)
}

func TestCache_Stats(t *testing.T) {
	cache := NewCache(10, time.Hour)
	cache.Put("a", []byte("1"))
	cache.Get("a")
	cache.Get("a")
	cache.Get("b")

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 10, stats.MaxEntries)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache(50, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := tileKey("osm", "", i%5, j%10, 0)
				cache.Put(key, []byte("t"))
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()

	stats := cache.Stats()
	require.LessOrEqual(t, stats.Entries, 50)
}
