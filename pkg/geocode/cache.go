package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Cache stores encoded search results by key.
type Cache interface {
	// Get returns the stored value; found is false on a miss.
	Get(ctx context.Context, key string) (val []byte, found bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// cachedResult is the stored form of a search outcome. A nil Place records
// a non-match.
type cachedResult struct {
	Place *Place `json:"place,omitempty"`
}

// cacheKey returns the SHA-256 hex of the normalized query.
func cacheKey(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

func (g *geocoder) cached(ctx context.Context, key string) (*Place, bool) {
	if g.cache == nil {
		return nil, false
	}
	data, found, err := g.cache.Get(ctx, key)
	if err != nil {
		zap.L().Warn("geocode: cache read failed", zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	var r cachedResult
	if err := json.Unmarshal(data, &r); err != nil {
		zap.L().Warn("geocode: cache entry corrupt", zap.Error(err))
		return nil, false
	}
	zap.L().Debug("geocode cache hit", zap.String("key", key[:12]), zap.Bool("matched", r.Place != nil))
	return r.Place, true
}

func (g *geocoder) store(ctx context.Context, key string, place *Place) {
	if g.cache == nil {
		return
	}
	data, err := json.Marshal(cachedResult{Place: place})
	if err != nil {
		return
	}
	if err := g.cache.Set(ctx, key, data, g.cacheTTL); err != nil {
		zap.L().Warn("geocode: cache write failed", zap.Error(err))
	}
}

// MemoryCache is a process-local Cache with per-entry expiry.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int

	nowFunc func() time.Time
}

type memoryEntry struct {
	val       []byte
	expiresAt time.Time
}

// NewMemoryCache creates a MemoryCache holding at most maxEntries values.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		nowFunc:    time.Now,
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && c.nowFunc().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.val, true, nil
}

// Set implements Cache. When full, expired entries are dropped first and then
// an arbitrary entry is evicted.
func (c *MemoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		for k, e := range c.entries {
			if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
		for k := range c.entries {
			if len(c.entries) < c.maxEntries {
				break
			}
			delete(c.entries, k)
		}
	}

	var expires time.Time
	if ttl > 0 {
		expires = now.Add(ttl)
	}
	c.entries[key] = memoryEntry{val: val, expiresAt: expires}
	return nil
}

// RedisCache is a Cache backed by redis, shared across instances.
type RedisCache struct {
	rc     *redis.Client
	prefix string
}

// NewRedisCache wraps a redis client. Keys are stored under prefix.
func NewRedisCache(rc *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "geocode:"
	}
	return &RedisCache{rc: rc, prefix: prefix}
}

// OpenRedis opens a redis client for addr. It does not dial until first use.
func OpenRedis(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.rc.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "geocode: redis get")
	}
	return val, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := c.rc.Set(ctx, c.prefix+key, val, ttl).Err(); err != nil {
		return eris.Wrap(err, "geocode: redis set")
	}
	return nil
}
