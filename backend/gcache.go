package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/bluele/gcache"
	"github.com/krisalay/omnifocus-mcp-cache/types"
)

// GCacheStore keeps one category in a gcache instance.
type GCacheStore struct {
	cache gcache.Cache
}

func gcacheBuilder(eviction string, size int) (*gcache.CacheBuilder, error) {
	// gcache refuses a non-positive size for anything but the simple cache.
	if size <= 0 {
		return gcache.New(0).Simple(), nil
	}

	b := gcache.New(size)
	switch strings.ToUpper(eviction) {
	case "", "LRU":
		return b.LRU(), nil
	case "LFU":
		return b.LFU(), nil
	case "ARC":
		return b.ARC(), nil
	case "FIFO", "SIMPLE":
		return b.Simple(), nil
	default:
		return nil, fmt.Errorf("backend: gcache does not support eviction %q", eviction)
	}
}

func NewGCacheStore(eviction string, size int) (*GCacheStore, error) {
	b, err := gcacheBuilder(eviction, size)
	if err != nil {
		return nil, err
	}
	return &GCacheStore{cache: b.Build()}, nil
}

func (s *GCacheStore) Get(_ context.Context, key string) (*types.CacheEntry, bool) {
	v, err := s.cache.Get(key)
	if err != nil {
		// gcache.KeyNotFoundError: without a loader nothing else is returned.
		return nil, false
	}
	ent, ok := v.(*types.CacheEntry)
	return ent, ok
}

func (s *GCacheStore) Put(_ context.Context, key string, ent *types.CacheEntry) {
	_ = s.cache.Set(key, ent)
}

func (s *GCacheStore) Delete(_ context.Context, key string) {
	s.cache.Remove(key)
}

func (s *GCacheStore) Clear(context.Context) {
	s.cache.Purge()
}

// Len counts entries, expired ones included.
func (s *GCacheStore) Len() int {
	return s.cache.Len(false)
}

func (s *GCacheStore) Close() error { return nil }
