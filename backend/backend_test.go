package backend_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	cache "github.com/krisalay/omnifocus-mcp-cache"
	"github.com/krisalay/omnifocus-mcp-cache/backend"
	"github.com/krisalay/omnifocus-mcp-cache/engine"
	"github.com/krisalay/omnifocus-mcp-cache/expiration"
	"github.com/krisalay/omnifocus-mcp-cache/partition"
	"github.com/krisalay/omnifocus-mcp-cache/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(cat types.Category, key string, v any) *types.CacheEntry {
	now := time.Now()
	return &types.CacheEntry{
		Key:            key,
		Category:       cat,
		Value:          v,
		CreatedAt:      now,
		LastAccessedAt: now,
		TTL:            time.Minute,
	}
}

// exerciseStore runs the behavior every partition store must share.
func exerciseStore(t *testing.T, s partition.Store) {
	t.Helper()
	ctx := context.Background()

	_, ok := s.Get(ctx, "missing")
	assert.False(t, ok)

	s.Put(ctx, "a", entry(types.CategoryTasks, "a", "one"))
	s.Put(ctx, "b", entry(types.CategoryTasks, "b", "two"))

	got, ok := s.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, types.CategoryTasks, got.Category)
	assert.Equal(t, time.Minute, got.TTL)

	s.Delete(ctx, "a")
	_, ok = s.Get(ctx, "a")
	assert.False(t, ok)
	s.Delete(ctx, "a")

	s.Clear(ctx)
	_, ok = s.Get(ctx, "b")
	assert.False(t, ok)

	s.Put(ctx, "c", entry(types.CategoryTasks, "c", "three"))
	_, ok = s.Get(ctx, "c")
	assert.True(t, ok, "store must accept writes after Clear")

	require.NoError(t, s.Close())
}

func TestMemoryStore(t *testing.T) {
	s, err := partition.MemoryStores(types.CategoryTasks)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestRistrettoStore(t *testing.T) {
	s, err := backend.NewRistrettoStore(0)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestGCacheStore(t *testing.T) {
	for _, ev := range []string{"LRU", "LFU", "ARC", "FIFO"} {
		ev := ev
		t.Run(ev, func(t *testing.T) {
			s, err := backend.NewGCacheStore(ev, 16)
			require.NoError(t, err)
			exerciseStore(t, s)
		})
	}

	t.Run("unbounded", func(t *testing.T) {
		s, err := backend.NewGCacheStore("LRU", 0)
		require.NoError(t, err)
		exerciseStore(t, s)
	})
}

func TestGCacheStoreBound(t *testing.T) {
	ctx := context.Background()
	s, err := backend.NewGCacheStore("LRU", 2)
	require.NoError(t, err)

	s.Put(ctx, "a", entry(types.CategoryTags, "a", 1))
	s.Put(ctx, "b", entry(types.CategoryTags, "b", 2))
	s.Put(ctx, "c", entry(types.CategoryTags, "c", 3))

	assert.Equal(t, 2, s.Len())
	_, ok := s.Get(ctx, "a")
	assert.False(t, ok)
}

func TestGCacheRejectsUnknownEviction(t *testing.T) {
	_, err := backend.NewGCacheStore("MRU", 8)
	assert.Error(t, err)
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore(t *testing.T) {
	_, client := setupRedis(t)
	s := backend.NewRedisStore(client, "test", types.CategoryTasks, time.Second, nil)
	exerciseStore(t, s)
}

func TestRedisStoreKeysAndExpiry(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	s := backend.NewRedisStore(client, "test", types.CategoryTags, 30*time.Second, nil)

	s.Put(ctx, "k", entry(types.CategoryTags, "k", map[string]int{"n": 1}))

	assert.Regexp(t, `^test:tags:[0-9a-f]{8}-0:k$`, s.Key("k"))
	assert.True(t, mr.Exists(s.Key("k")))
	assert.Equal(t, time.Minute+30*time.Second, mr.TTL(s.Key("k")))

	got, ok := s.Get(ctx, "k")
	require.True(t, ok)
	assert.JSONEq(t, `{"n":1}`, string(got.Value.(json.RawMessage)))

	mr.FastForward(2 * time.Minute)
	_, ok = s.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisClearIsPerCategory(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	tasks := backend.NewRedisStore(client, "test", types.CategoryTasks, 0, nil)
	tags := backend.NewRedisStore(client, "test", types.CategoryTags, 0, nil)

	for i := 0; i < 250; i++ {
		key := fmt.Sprintf("k%d", i)
		tasks.Put(ctx, key, entry(types.CategoryTasks, key, i))
	}
	tags.Put(ctx, "keep", entry(types.CategoryTags, "keep", true))

	tasks.Clear(ctx)

	assert.Equal(t, []string{tags.Key("keep")}, mr.Keys())
}

func TestRedisClearSurvivesFailedDelete(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	var logs bytes.Buffer
	stores := func(cat types.Category) (partition.Store, error) {
		return backend.NewRedisStore(client, "test", cat, 0, log.New(&logs, "", 0)), nil
	}
	c, err := cache.New(cache.Options{Stores: stores}, engine.NewCacheEngine(expiration.ExpireAfterWrite{}, nil, nil, nil))
	require.NoError(t, err)

	c.Set(ctx, types.CategoryTasks, "k", "before-write")
	_, ok := c.Get(ctx, types.CategoryTasks, "k")
	require.True(t, ok)

	mr.SetError("LOADING transient")
	c.Invalidate(ctx, types.CategoryTasks)
	mr.SetError("")

	_, ok = c.Get(ctx, types.CategoryTasks, "k")
	assert.False(t, ok, "invalidated entry must not be served after a failed clear")
	assert.Contains(t, logs.String(), "LOADING")
	assert.Len(t, mr.Keys(), 1, "undeleted entry is left behind, unreachable")

	c.Set(ctx, types.CategoryTasks, "k", "after-write")
	got, ok := c.Get(ctx, types.CategoryTasks, "k")
	require.True(t, ok)
	assert.Equal(t, json.RawMessage(`"after-write"`), got)
}

func TestRedisErrorsDegradeToMisses(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()

	var logs bytes.Buffer
	s := backend.NewRedisStore(client, "test", types.CategoryTasks, 0, log.New(&logs, "", 0))

	mr.Close()

	s.Put(ctx, "k", entry(types.CategoryTasks, "k", 1))
	_, ok := s.Get(ctx, "k")
	assert.False(t, ok)
	s.Clear(ctx)

	assert.Contains(t, logs.String(), "redis")
}

func TestNewFactory(t *testing.T) {
	for _, kind := range []backend.Kind{backend.Memory, backend.Ristretto, backend.GCache} {
		kind := kind
		t.Run(string(kind), func(t *testing.T) {
			f, closer, err := backend.NewFactory(backend.Config{Kind: kind, MaxEntries: 8, Eviction: "LRU"}, nil)
			require.NoError(t, err)
			defer closer.Close()

			s, err := f(types.CategoryProjects)
			require.NoError(t, err)
			exerciseStore(t, s)
		})
	}

	_, _, err := backend.NewFactory(backend.Config{Kind: "etcd"}, nil)
	assert.Error(t, err)

	_, _, err = backend.NewFactory(backend.Config{Kind: backend.Redis, Redis: backend.RedisConfig{Addr: "127.0.0.1:1"}}, nil)
	assert.Error(t, err, "unreachable redis fails at startup")
}

func TestPartitionBound(t *testing.T) {
	assert.Equal(t, 10, backend.Config{Kind: backend.Memory, MaxEntries: 10}.PartitionBound())
	assert.Equal(t, 0, backend.Config{Kind: backend.GCache, MaxEntries: 10}.PartitionBound())
}

type project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestCategoryCacheOverRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	stores, closer, err := backend.NewFactory(backend.Config{
		Kind:  backend.Redis,
		Redis: backend.RedisConfig{Addr: mr.Addr(), Prefix: "ofmcp", Grace: time.Second},
	}, nil)
	require.NoError(t, err)
	defer closer.Close()

	c, err := cache.New(cache.Options{Stores: stores}, engine.NewCacheEngine(expiration.ExpireAfterWrite{}, nil, nil, nil))
	require.NoError(t, err)

	c.Set(ctx, types.CategoryProjects, "list", []project{{ID: "p1", Name: "Garden"}})

	got, ok := cache.GetAs[[]project](ctx, c, types.CategoryProjects, "list")
	require.True(t, ok)
	assert.Equal(t, "Garden", got[0].Name)

	c.Invalidate(ctx, types.CategoryProjects)
	_, ok = c.Get(ctx, types.CategoryProjects, "list")
	assert.False(t, ok)
}
