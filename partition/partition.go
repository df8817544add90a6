package partition

import (
	"context"
	"sync"
	"time"

	"github.com/krisalay/omnifocus-mcp-cache/eviction"
	"github.com/krisalay/omnifocus-mcp-cache/types"
)

/*
Partition is the slice of the cache that belongs to ONE category.

Each partition:
  - Holds the entries of its category in its own Store
  - Has its own TTL, fixed at construction
  - Has its own (optional) eviction policy and size bound
  - Has its own mutex, so invalidating one category never blocks another
  - Counts invalidations in an epoch, so a load that started before an invalidation
    can detect that its result is already stale
*/
type Partition struct {
	Category types.Category
	TTL      time.Duration

	// Store holds the actual key → entry data.
	Store Store

	// Eviction is nil for unbounded partitions.
	Eviction   eviction.Policy
	MaxEntries int

	// Mu serializes every mutation of this partition (store, eviction, epoch).
	Mu sync.Mutex

	epoch uint64
}

func New(category types.Category, ttl time.Duration, store Store, maxEntries int, policy eviction.PolicyType) *Partition {
	p := &Partition{
		Category:   category,
		TTL:        ttl,
		Store:      store,
		MaxEntries: maxEntries,
	}
	if maxEntries > 0 {
		p.Eviction = eviction.NewEvictionPolicy(policy)
	}
	return p
}

// Epoch returns the invalidation counter. Callers must hold Mu.
func (p *Partition) Epoch() uint64 { return p.epoch }

// Clear drops every entry and advances the epoch. Callers must hold Mu.
func (p *Partition) Clear(ctx context.Context) {
	p.Store.Clear(ctx)
	if p.Eviction != nil {
		p.Eviction.Reset()
	}
	p.epoch++
}

// Remove drops one key. Callers must hold Mu.
func (p *Partition) Remove(ctx context.Context, key string) {
	p.Store.Delete(ctx, key)
	if p.Eviction != nil {
		p.Eviction.Remove(key)
	}
}

/*
Put stores an entry, evicting first when the partition is full. Callers must hold Mu.
It returns the evicted key, or "" when nothing was evicted.
*/
func (p *Partition) Put(ctx context.Context, key string, ent *types.CacheEntry) string {
	var evicted string
	if p.Eviction != nil {
		if _, exists := p.Store.Get(ctx, key); !exists && p.Eviction.Len() >= p.MaxEntries {
			evicted = p.Eviction.Evict()
			if evicted != "" {
				p.Store.Delete(ctx, evicted)
			}
		}
		p.Eviction.OnPut(key)
	}
	p.Store.Put(ctx, key, ent)
	return evicted
}

// Touch records a successful read for eviction bookkeeping. Callers must hold Mu.
func (p *Partition) Touch(key string) {
	if p.Eviction != nil {
		p.Eviction.OnGet(key)
	}
}
