package cache

import (
	"context"
	"time"
)

// Store represents a shared cache used across processes, such as rate-limit counters.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*DatabaseStore)(nil)
)
