package pricecache

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Cache memoizes lookup-key to remote-price-ID resolutions in Redis so
// repeated checkouts for the same (count, period) pair skip the provider
// list call. It is advisory only: the provider lookup key remains the
// source of truth, so a cold or unavailable cache is never an error.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

// New connects to Redis and verifies the connection.
func New(redisURL string, ttl time.Duration) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{redis: client, ttl: ttl}, nil
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.redis.Close()
}

func key(lookupKey string) string { return "price:" + lookupKey }

// Get returns the cached price ID for a lookup key, if any. A nil cache or
// a Redis failure reads as a miss.
func (c *Cache) Get(ctx context.Context, lookupKey string) (string, bool) {
	if c == nil {
		return "", false
	}
	val, err := c.redis.Get(ctx, key(lookupKey)).Result()
	if err != nil || val == "" {
		return "", false
	}
	return val, true
}

// Set records a resolved price ID. Failures are ignored; the next request
// simply resolves through the provider again.
func (c *Cache) Set(ctx context.Context, lookupKey, priceID string) {
	if c == nil {
		return
	}
	c.redis.Set(ctx, key(lookupKey), priceID, c.ttl)
}
