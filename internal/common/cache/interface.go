package cache

import (
	"context"
	"time"
)

// Cache is the subset of Redis operations the broker relies on.
// Get and MGet report a missing key as an empty string, not an error.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	MGet(ctx context.Context, keys ...string) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Set operations
	SAdd(ctx context.Context, key string, members ...interface{}) error
	SPopN(ctx context.Context, key string, count int64) ([]string, error)
	SMembers(ctx context.Context, key string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}
