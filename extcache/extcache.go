// Package extcache provides an optional Redis-backed cache an application
// can use alongside the client executor to share state across process
// instances, such as circuit breaker state or idempotency markers for
// batch retries. It is
// a narrow collaborator, not a general cache: callers get and set
// string blobs under a namespaced key and nothing more.
package extcache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the narrow interface applications program against, so tests
// can substitute an in-memory fake without pulling in a real Redis
// server. No other package of this module imports it.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisCache implements Cache over go-redis/v9.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCache wraps an existing *redis.Client. keyPrefix namespaces
// every key this cache touches so it can safely share a Redis instance
// with other applications.
func NewRedisCache(client *redis.Client, keyPrefix string) *RedisCache {
	return &RedisCache{client: client, keyPrefix: keyPrefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, c.keyPrefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, c.keyPrefix+key, value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.keyPrefix+key).Err()
}
