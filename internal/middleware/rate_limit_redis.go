package middleware

import (
	"context"
	"errors"
	"time"

	"checkout-relay-backend/pkg/cache"
)

const redisRateLimitPrefix = "ratelimit:"

// RedisRateLimitStore shares fixed-window counters between processes through Redis.
type RedisRateLimitStore struct {
	cache *cache.Cache
}

func NewRedisRateLimitStore(c *cache.Cache) (*RedisRateLimitStore, error) {
	if !c.Enabled() {
		return nil, errors.New("redis rate limit store requires an enabled cache")
	}
	return &RedisRateLimitStore{cache: c}, nil
}

func (s *RedisRateLimitStore) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	return s.cache.IncrementWindow(ctx, redisRateLimitPrefix+key, window)
}
