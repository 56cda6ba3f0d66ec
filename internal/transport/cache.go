package transport

import (
	"context"
	"errors"
	"time"

	"github.com/bluele/gcache"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
)

// Cache stores fetched feed bodies. A miss and a backend failure look the
// same to the caller: the feed is fetched again.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, body []byte, ttl time.Duration)
}

// MemoryCache is a process-local LRU with per-entry expiry.
type MemoryCache struct {
	lru gcache.Cache
}

// NewMemoryCache holds at most size bodies.
func NewMemoryCache(size int) *MemoryCache {
	return newMemoryCache(size, gcache.NewRealClock())
}

func newMemoryCache(size int, clock gcache.Clock) *MemoryCache {
	if size <= 0 {
		size = 64
	}
	return &MemoryCache{lru: gcache.New(size).LRU().Clock(clock).Build()}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	v, err := m.lru.Get(key)
	if err != nil {
		return nil, false
	}
	body, ok := v.([]byte)
	return body, ok
}

func (m *MemoryCache) Set(_ context.Context, key string, body []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	_ = m.lru.SetWithExpire(key, body, ttl)
}

// RedisCache shares fetched bodies between crowdcast instances.
type RedisCache struct {
	cache  *cache.Cache[string]
	prefix string
}

// NewRedisCache wraps client. Keys are namespaced under prefix.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "crowdcast:feed:"
	}
	rs := redisstore.NewRedis(client, store.WithExpiration(time.Minute))
	return &RedisCache{cache: cache.New[string](rs), prefix: prefix}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	v, err := r.cache.Get(ctx, r.prefix+key)
	if err != nil || v == "" {
		return nil, false
	}
	return []byte(v), true
}

func (r *RedisCache) Set(ctx context.Context, key string, body []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	_ = r.cache.Set(ctx, r.prefix+key, string(body), store.WithExpiration(ttl))
}

// ErrUnknownCacheBackend is returned by NewCache for an unrecognised name.
var ErrUnknownCacheBackend = errors.New("unknown cache backend")

// NewCache builds the backend named by cfg.
func NewCache(cfg CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryCache(cfg.Size), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisCache(client, cfg.Prefix), nil
	default:
		return nil, ErrUnknownCacheBackend
	}
}

// CacheConfig selects and sizes the feed cache.
type CacheConfig struct {
	Backend       string
	Size          int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
}
