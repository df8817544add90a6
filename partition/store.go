package partition

import (
	"context"
	"sync/atomic"

	"github.com/krisalay/omnifocus-mcp-cache/types"
)

/*
This file defines how entries are actually stored inside a partition.

Store is the pluggable part: the default is the in-process copy-on-write map below; the
backend package provides ristretto, gcache and redis implementations. A Store is NOT asked to
understand TTLs: the engine decides expiry from the entry timestamps.
*/
type Store interface {

	// Get retrieves an entry by key.
	Get(ctx context.Context, key string) (*types.CacheEntry, bool)

	// Put inserts or replaces an entry.
	Put(ctx context.Context, key string, ent *types.CacheEntry)

	// Delete removes an entry. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string)

	// Clear removes every entry of the partition.
	Clear(ctx context.Context)

	// Close releases resources held by the store.
	Close() error
}

// StoreFactory builds the Store backing one category.
type StoreFactory func(category types.Category) (Store, error)

// MemoryStores is the default StoreFactory.
func MemoryStores(types.Category) (Store, error) {
	return NewCOWStore(), nil
}

/*
cowStore is a Copy-On-Write implementation of Store.

- Readers always see an immutable snapshot and never lock
- Writers build a NEW map and swap it in atomically
- Clear is a single swap to an empty map, so invalidating a category is O(1)

Writers are serialized by the owning partition's mutex.
*/
type cowStore struct {
	data atomic.Pointer[map[string]*types.CacheEntry]
}

func NewCOWStore() *cowStore {
	s := &cowStore{}
	empty := make(map[string]*types.CacheEntry)
	s.data.Store(&empty)
	return s
}

func (s *cowStore) snapshot() map[string]*types.CacheEntry {
	return *s.data.Load()
}

func (s *cowStore) Get(_ context.Context, key string) (*types.CacheEntry, bool) {
	ent, ok := s.snapshot()[key]
	return ent, ok
}

// Put copies the current map, adds the entry and swaps.
func (s *cowStore) Put(_ context.Context, key string, ent *types.CacheEntry) {
	old := s.snapshot()
	n := make(map[string]*types.CacheEntry, len(old)+1)
	for k, v := range old {
		n[k] = v
	}
	n[key] = ent
	s.data.Store(&n)
}

func (s *cowStore) Delete(_ context.Context, key string) {
	old := s.snapshot()
	if _, ok := old[key]; !ok {
		return
	}
	n := make(map[string]*types.CacheEntry, len(old))
	for k, v := range old {
		if k != key {
			n[k] = v
		}
	}
	s.data.Store(&n)
}

func (s *cowStore) Clear(context.Context) {
	empty := make(map[string]*types.CacheEntry)
	s.data.Store(&empty)
}

// Len returns how many entries are physically present (expired ones included).
func (s *cowStore) Len() int {
	return len(s.snapshot())
}

func (s *cowStore) Close() error { return nil }
