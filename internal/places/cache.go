package places

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores resolved place names and search results. Implementations must treat failures as misses.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// NoopCache never stores anything.
type NoopCache struct{}

// Get always misses.
func (NoopCache) Get(context.Context, string) (string, bool) { return "", false }

// Set discards the value.
func (NoopCache) Set(context.Context, string, string, time.Duration) {}

// RedisCache keeps geocoding results in Redis so rate-limited providers are hit once per place.
type RedisCache struct {
	client redis.Cmdable
}

// NewRedisCache constructs a RedisCache.
func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the cached value for key.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			recordCacheError()
		}
		return "", false
	}
	return value, true
}

// Set stores value under key for ttl.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		recordCacheError()
	}
}
