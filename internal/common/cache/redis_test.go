package cache

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCacheGetMissing(t *testing.T) {
	c, _ := newTestCache(t)
	v, err := c.Get(context.Background(), "missing")
	if err != nil || v != "" {
		t.Fatalf("expected empty miss, got %q %v", v, err)
	}
}

func TestRedisCacheMGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	if err := c.Set(ctx, "a", "1", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	values, err := c.MGet(ctx, "a", "b")
	if err != nil {
		t.Fatalf("mget: %v", err)
	}
	if len(values) != 2 || values[0] != "1" || values[1] != "" {
		t.Fatalf("unexpected values %v", values)
	}
}

func TestRedisCacheSetOps(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	if err := c.SAdd(ctx, "dirty", "1", "2", "2"); err != nil {
		t.Fatalf("sadd: %v", err)
	}
	members, err := c.SMembers(ctx, "dirty")
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	sort.Strings(members)
	if len(members) != 2 || members[0] != "1" || members[1] != "2" {
		t.Fatalf("unexpected members %v", members)
	}
	popped, err := c.SPopN(ctx, "dirty", 10)
	if err != nil {
		t.Fatalf("spop: %v", err)
	}
	if len(popped) != 2 {
		t.Fatalf("expected 2 popped, got %v", popped)
	}
}

func TestLoaderCachesValueAndAbsence(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	calls := 0
	load := func(v int) func(context.Context) (int, error) {
		return func(context.Context) (int, error) {
			calls++
			return v, nil
		}
	}
	loader := &Loader[int]{Cache: c, TTL: time.Minute, EmptyTTL: time.Second, IsEmpty: func(v int) bool { return v == 0 }}

	for i := 0; i < 2; i++ {
		got, err := loader.Load(ctx, "k", load(42))
		if err != nil || got != 42 {
			t.Fatalf("expected 42, got %d %v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one load, got %d", calls)
	}

	calls = 0
	for i := 0; i < 2; i++ {
		got, err := loader.Load(ctx, "empty", load(0))
		if err != nil || got != 0 {
			t.Fatalf("expected zero, got %d %v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected absence to be cached, got %d loads", calls)
	}
	if v, _ := mr.Get("empty"); v != NullCacheValue {
		t.Fatalf("expected null marker, got %q", v)
	}

	loader.Forget(ctx, "k")
	if mr.Exists("k") {
		t.Fatalf("expected key to be forgotten")
	}
}

func TestLoaderPropagatesErrorWithoutCaching(t *testing.T) {
	c, mr := newTestCache(t)
	boom := errors.New("boom")
	loader := &Loader[int]{Cache: c, TTL: time.Minute}
	_, err := loader.Load(context.Background(), "k", func(context.Context) (int, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if mr.Exists("k") {
		t.Fatalf("failed load must not be cached")
	}
}

func TestLoaderWithoutCache(t *testing.T) {
	loader := &Loader[[]string]{}
	calls := 0
	for i := 0; i < 2; i++ {
		got, err := loader.Load(context.Background(), "k", func(context.Context) ([]string, error) {
			calls++
			return []string{"a"}, nil
		})
		if err != nil || len(got) != 1 {
			t.Fatalf("unexpected result %v %v", got, err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected every call to load without a cache, got %d", calls)
	}
}

func TestJitterTTL(t *testing.T) {
	ttl := 10 * time.Second
	for i := 0; i < 20; i++ {
		got := JitterTTL(ttl)
		if got > ttl || got < 9*time.Second {
			t.Fatalf("jitter out of range: %v", got)
		}
	}
}
