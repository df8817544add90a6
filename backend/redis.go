package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/krisalay/omnifocus-mcp-cache/types"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "ofmcp"
	scanBatch     = 100
	dialTimeout   = 3 * time.Second
)

// envelope is the JSON persisted for every entry.
type envelope struct {
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	TTL       time.Duration   `json:"ttl_ns"`
}

func dialRedis(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("backend: redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

/*
RedisStore keeps one category under <prefix>:<category>:<instance>-<gen>:<key>.

Values are stored as JSON and come back as json.RawMessage; cache.GetAs decodes them.
Redis is best effort: every failure is logged and reads degrade to misses.

BEHAVIOR:
  - instance is random per store, so entries left by an earlier process are never read.
  - Clear bumps gen before deleting, so cleared entries are unreachable even when DEL fails.
*/
type RedisStore struct {
	client   redis.Cmdable
	category types.Category
	prefix   string
	instance string
	gen      atomic.Uint64
	grace    time.Duration
	logger   *log.Logger
}

func NewRedisStore(client redis.Cmdable, prefix string, cat types.Category, grace time.Duration, logger *log.Logger) *RedisStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &RedisStore{
		client:   client,
		category: cat,
		prefix:   prefix + ":" + string(cat) + ":",
		instance: uuid.NewString()[:8],
		grace:    grace,
		logger:   logger,
	}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + s.instance + "-" + strconv.FormatUint(s.gen.Load(), 10) + ":" + k
}

// Key returns the redis key an entry is currently stored under.
func (s *RedisStore) Key(k string) string { return s.key(k) }

func (s *RedisStore) Get(ctx context.Context, key string) (*types.CacheEntry, bool) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Printf("redis get %s: %v", s.key(key), err)
		}
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Printf("redis decode %s: %v", s.key(key), err)
		return nil, false
	}

	return &types.CacheEntry{
		Key:            key,
		Category:       s.category,
		Value:          env.Value,
		CreatedAt:      env.CreatedAt,
		LastAccessedAt: env.CreatedAt,
		TTL:            env.TTL,
	}, true
}

func (s *RedisStore) Put(ctx context.Context, key string, ent *types.CacheEntry) {
	value, err := json.Marshal(ent.Value)
	if err != nil {
		s.logger.Printf("redis encode %s: %v", s.key(key), err)
		return
	}
	raw, err := json.Marshal(envelope{Value: value, CreatedAt: ent.CreatedAt, TTL: ent.TTL})
	if err != nil {
		s.logger.Printf("redis encode %s: %v", s.key(key), err)
		return
	}

	var expiry time.Duration
	if ent.TTL > 0 {
		expiry = ent.TTL + s.grace
	}
	if err := s.client.Set(ctx, s.key(key), raw, expiry).Err(); err != nil {
		s.logger.Printf("redis set %s: %v", s.key(key), err)
	}
}

func (s *RedisStore) Delete(ctx context.Context, key string) {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		s.logger.Printf("redis del %s: %v", s.key(key), err)
	}
}

// Clear moves the store to a new generation, then deletes every key of the category with SCAN + DEL.
func (s *RedisStore) Clear(ctx context.Context) {
	s.gen.Add(1)

	iter := s.client.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()

	batch := make([]string, 0, scanBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			s.logger.Printf("redis clear %s*: %v", s.prefix, err)
		}
		batch = batch[:0]
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			flush()
		}
	}
	flush()

	if err := iter.Err(); err != nil {
		s.logger.Printf("redis scan %s*: %v", s.prefix, err)
	}
}

// Close is a no-op: the client is shared by every category and closed by the factory's Closer.
func (s *RedisStore) Close() error { return nil }
