package cache

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"math/big"
	"time"

	"golang.org/x/sync/singleflight"
)

// NullCacheValue marks a cached absence.
const NullCacheValue = "$NULL$"

// Loader reads JSON encoded values of T through the cache.
// Empty results are stored as NullCacheValue for EmptyTTL so lookups of absent
// rows stop at the cache. Concurrent misses on one key share a single load.
// Without a Cache every call goes to the loader function.
type Loader[T any] struct {
	Cache    Cache
	TTL      time.Duration
	EmptyTTL time.Duration
	IsEmpty  func(T) bool

	group singleflight.Group
}

// Load returns the value under key, calling fn on a miss.
func (l *Loader[T]) Load(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if l.Cache != nil {
		if cached, err := l.Cache.Get(ctx, key); err == nil && cached != "" {
			if cached == NullCacheValue {
				return zero, nil
			}
			var v T
			if err := json.Unmarshal([]byte(cached), &v); err == nil {
				return v, nil
			}
		}
	}

	res, err, _ := l.group.Do(key, func() (interface{}, error) {
		v, err := fn(ctx)
		if err != nil {
			return zero, err
		}
		l.store(ctx, key, v)
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return res.(T), nil
}

// Forget drops key from the cache.
func (l *Loader[T]) Forget(ctx context.Context, key string) {
	if l.Cache != nil {
		_ = l.Cache.Del(ctx, key)
	}
}

func (l *Loader[T]) store(ctx context.Context, key string, v T) {
	if l.Cache == nil {
		return
	}
	if l.IsEmpty != nil && l.IsEmpty(v) {
		_ = l.Cache.Set(ctx, key, NullCacheValue, JitterTTL(l.EmptyTTL))
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = l.Cache.Set(ctx, key, string(payload), JitterTTL(l.TTL))
}

// JitterTTL shortens ttl by up to 10% so keys written together do not expire together.
func JitterTTL(ttl time.Duration) time.Duration {
	maxJitter := int64(ttl / 10)
	if maxJitter <= 0 {
		return ttl
	}
	n, err := rand.Int(rand.Reader, big.NewInt(maxJitter+1))
	if err != nil {
		return ttl
	}
	return ttl - time.Duration(n.Int64())
}
