// Package backend builds the stores that back each category partition.
package backend

import (
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/krisalay/omnifocus-mcp-cache/partition"
	"github.com/krisalay/omnifocus-mcp-cache/types"
)

// Kind names a storage backend.
type Kind string

const (
	Memory    Kind = "memory"
	Ristretto Kind = "ristretto"
	GCache    Kind = "gcache"
	Redis     Kind = "redis"
)

// Config selects and tunes the backend.
type Config struct {
	Kind Kind

	// MaxEntries bounds each category; 0 means unbounded.
	MaxEntries int

	// Eviction is LRU, LFU or FIFO; gcache additionally accepts ARC.
	Eviction string

	Redis RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces every key: <prefix>:<category>:<key>.
	Prefix string

	// Grace is added to the category TTL for the server-side expiry, so redis never drops an
	// entry the cache would still consider valid.
	Grace time.Duration
}

// PartitionBound is the size bound the cache itself must enforce. Only the memory backend
// relies on the cache's eviction policies; the others bound themselves.
func (c Config) PartitionBound() int {
	if c.Kind == Memory || c.Kind == "" {
		return c.MaxEntries
	}
	return 0
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

/*
NewFactory returns the StoreFactory for cfg.Kind and a Closer for whatever the backend shares
across categories (the redis connection pool).
*/
func NewFactory(cfg Config, logger *log.Logger) (partition.StoreFactory, io.Closer, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	switch Kind(strings.ToLower(string(cfg.Kind))) {
	case Memory, "":
		return partition.MemoryStores, nopCloser{}, nil

	case Ristretto:
		return func(_ types.Category) (partition.Store, error) {
			return NewRistrettoStore(cfg.MaxEntries)
		}, nopCloser{}, nil

	case GCache:
		if _, err := gcacheBuilder(cfg.Eviction, cfg.MaxEntries); err != nil {
			return nil, nil, err
		}
		return func(_ types.Category) (partition.Store, error) {
			return NewGCacheStore(cfg.Eviction, cfg.MaxEntries)
		}, nopCloser{}, nil

	case Redis:
		client, err := dialRedis(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return func(cat types.Category) (partition.Store, error) {
			return NewRedisStore(client, cfg.Redis.Prefix, cat, cfg.Redis.Grace, logger), nil
		}, client, nil

	default:
		return nil, nil, fmt.Errorf("backend: unknown kind %q", cfg.Kind)
	}
}
