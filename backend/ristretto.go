package backend

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/krisalay/omnifocus-mcp-cache/types"
)

// unboundedCost is the capacity used when no bound is configured.
const unboundedCost = 1 << 20

/*
RistrettoStore keeps one category in a ristretto cache. Every entry costs 1, so MaxCost is
an entry count. Ristretto's admission policy may refuse a write under pressure: a refused write
is simply a future miss.
*/
type RistrettoStore struct {
	cache *ristretto.Cache[string, *types.CacheEntry]
}

func NewRistrettoStore(maxEntries int) (*RistrettoStore, error) {
	maxCost := int64(maxEntries)
	if maxCost <= 0 {
		maxCost = unboundedCost
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, *types.CacheEntry]{
		NumCounters:        maxCost * 10,
		MaxCost:            maxCost,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("backend: ristretto: %w", err)
	}
	return &RistrettoStore{cache: c}, nil
}

func (s *RistrettoStore) Get(_ context.Context, key string) (*types.CacheEntry, bool) {
	return s.cache.Get(key)
}

// Put waits for the write buffer so the next Get observes the entry.
func (s *RistrettoStore) Put(_ context.Context, key string, ent *types.CacheEntry) {
	s.cache.Set(key, ent, 1)
	s.cache.Wait()
}

func (s *RistrettoStore) Delete(_ context.Context, key string) {
	s.cache.Del(key)
}

func (s *RistrettoStore) Clear(context.Context) {
	s.cache.Clear()
}

func (s *RistrettoStore) Close() error {
	s.cache.Close()
	return nil
}
