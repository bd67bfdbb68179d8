package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether the client behind a key may proceed. Keys are
// client IPs; resetSec is only meaningful when allowed is false.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, resetSec int, err error)
	Close() error
}

// RedisLimiter counts requests per key in fixed minute windows, shared
// across instances.
type RedisLimiter struct {
	redis *redis.Client
	rpm   int
}

func NewRedisLimiter(redisURL string, rpm int) (*RedisLimiter, error) {
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
	return &RedisLimiter{redis: client, rpm: rpm}, nil
}

func (l *RedisLimiter) Close() error { return l.redis.Close() }

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	now := time.Now().UTC()
	window := now.Unix() / 60
	rk := fmt.Sprintf("rl:%s:%d", key, window)
	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, rk)
	pipe.Expire(ctx, rk, time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}
	if int(incr.Val()) > l.rpm {
		return false, 60 - int(now.Unix()%60), nil
	}
	return true, 0, nil
}

// MemoryLimiter is the single-instance fallback when no Redis URL is
// configured. Per-key token buckets are kept forever; acceptable for the
// expected client cardinality.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rpm     int
}

func NewMemoryLimiter(rpm int) *MemoryLimiter {
	return &MemoryLimiter{buckets: make(map[string]*rate.Limiter), rpm: rpm}
}

func (l *MemoryLimiter) Close() error { return nil }

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, int, error) {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Limit(float64(l.rpm)/60.0), l.rpm)
		l.buckets[key] = b
	}
	l.mu.Unlock()

	if b.Allow() {
		return true, 0, nil
	}
	return false, 60, nil
}
