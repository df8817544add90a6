package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	api "github.com/krisalay/omnifocus-mcp-cache/api"
	"github.com/krisalay/omnifocus-mcp-cache/engine"
	evict "github.com/krisalay/omnifocus-mcp-cache/eviction"
	"github.com/krisalay/omnifocus-mcp-cache/partition"
	"github.com/krisalay/omnifocus-mcp-cache/types"
	"golang.org/x/sync/singleflight"
)

var _ api.Cache = (*CategoryCache)(nil)

// DefaultTTL applies to categories without an explicit TTL.
const DefaultTTL = 5 * time.Minute

// Options configures a CategoryCache. The zero value is usable.
type Options struct {
	// DefaultTTL applies to categories missing from TTLs.
	DefaultTTL time.Duration

	// TTLs are per-category lifetimes, fixed at construction.
	TTLs map[types.Category]time.Duration

	// MaxEntries bounds every partition; 0 means unbounded.
	MaxEntries int

	// Eviction picks victims when MaxEntries is reached.
	Eviction evict.PolicyType

	// Stores builds the backing store of each category. nil => in-memory copy-on-write maps.
	Stores partition.StoreFactory
}

/*
CategoryCache is the main cache implementation.
This struct is the orchestrator that connects:
- one partition per category (store + TTL + eviction + mutex)
- the engine (expiration, clock, metrics, logging)
- singleflight for read-through loads
*/
type CategoryCache struct {
	// mu guards the partitions map itself, not the partitions.
	mu         sync.Mutex
	partitions map[types.Category]*partition.Partition

	engine *engine.CacheEngine
	opts   Options

	// sf prevents multiple goroutines from running the same expensive load simultaneously.
	sf singleflight.Group
}

/*
New builds the cache and eagerly creates the partitions of the built-in categories and of
every category named in opts.TTLs, so backend misconfiguration fails at startup.
*/
func New(opts Options, eng *engine.CacheEngine) (*CategoryCache, error) {
	if eng == nil {
		return nil, errors.New("cache: engine is required")
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.Eviction == "" {
		opts.Eviction = evict.LRU
	}
	if opts.MaxEntries > 0 && !opts.Eviction.Valid() {
		return nil, fmt.Errorf("cache: unknown eviction policy %q", opts.Eviction)
	}
	if opts.Stores == nil {
		opts.Stores = partition.MemoryStores
	}

	c := &CategoryCache{
		partitions: make(map[types.Category]*partition.Partition),
		engine:     eng,
		opts:       opts,
	}

	wanted := types.BuiltinCategories()
	for cat, ttl := range opts.TTLs {
		if err := cat.Validate(); err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		if ttl < 0 {
			return nil, fmt.Errorf("cache: negative TTL for category %q", cat)
		}
		wanted = append(wanted, cat)
	}
	for _, cat := range wanted {
		if _, ok := c.partitions[cat]; ok {
			continue
		}
		store, err := opts.Stores(cat)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("cache: store for category %q: %w", cat, err)
		}
		c.partitions[cat] = c.newPartition(cat, store)
	}
	return c, nil
}

func (c *CategoryCache) newPartition(cat types.Category, store partition.Store) *partition.Partition {
	return partition.New(cat, c.TTL(cat), store, c.opts.MaxEntries, c.opts.Eviction)
}

/*
partition returns the partition of a category, creating it on first use.
Malformed category names panic: they are programming errors, not runtime conditions.
*/
func (c *CategoryCache) partition(cat types.Category) *partition.Partition {
	cat.MustValidate()

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.partitions[cat]; ok {
		return p
	}
	store, err := c.opts.Stores(cat)
	if err != nil {
		c.engine.Logger.Printf("store for new category %q unavailable, using memory: %v", cat, err)
		store = partition.NewCOWStore()
	}
	p := c.newPartition(cat, store)
	c.partitions[cat] = p
	return p
}

func mustKey(key string) {
	if key == "" {
		panic("cache: empty key")
	}
}

/*
Get retrieves a value from the cache.
*/
func (c *CategoryCache) Get(ctx context.Context, cat types.Category, key string) (any, bool) {
	mustKey(key)
	p := c.partition(cat)

	p.Mu.Lock()
	defer p.Mu.Unlock()

	ent, ok := p.Store.Get(ctx, key)
	if !ok {
		c.engine.Metrics.Miss(cat)
		return nil, false
	}

	// Expired entries are logically absent; drop them while we are here.
	if c.engine.IsExpired(ent) {
		p.Remove(ctx, key)
		c.engine.Metrics.Expire(cat)
		c.engine.Metrics.Miss(cat)
		return nil, false
	}

	c.engine.OnRead(ent)
	p.Touch(key)
	return ent.Value, true
}

/*
Set stores a value with the category TTL, stamped with the engine clock.
*/
func (c *CategoryCache) Set(ctx context.Context, cat types.Category, key string, value any) {
	mustKey(key)
	p := c.partition(cat)

	p.Mu.Lock()
	defer p.Mu.Unlock()

	c.put(ctx, p, key, value)
}

// put requires p.Mu.
func (c *CategoryCache) put(ctx context.Context, p *partition.Partition, key string, value any) {
	ent := &types.CacheEntry{
		Key:      key,
		Category: p.Category,
		Value:    value,
		TTL:      p.TTL,
	}
	c.engine.OnWrite(ent)

	if evicted := p.Put(ctx, key, ent); evicted != "" {
		c.engine.Metrics.Eviction(p.Category)
	}
}

/*
GetOrLoad reads the cache and falls back to load on a miss.

singleflight ensures that:
  - If 10 goroutines miss the same (category, key), only ONE of them runs load.
  - The flight key carries the partition epoch, so a caller arriving AFTER an
    invalidation never joins a load that started BEFORE it.

A load that finishes after its category was invalidated still answers its callers, but its
result is not stored: it may reflect the state before the write that caused the invalidation.
*/
func (c *CategoryCache) GetOrLoad(ctx context.Context, cat types.Category, key string, load types.LoadFunc) (any, bool, error) {
	if v, ok := c.Get(ctx, cat, key); ok {
		return v, true, nil
	}

	p := c.partition(cat)
	p.Mu.Lock()
	epoch := p.Epoch()
	p.Mu.Unlock()

	flight := string(cat) + "\x00" + strconv.FormatUint(epoch, 10) + "\x00" + key
	v, err, _ := c.sf.Do(flight, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}

		p.Mu.Lock()
		defer p.Mu.Unlock()
		if p.Epoch() == epoch {
			c.put(ctx, p, key, v)
		} else {
			c.engine.Logger.Printf("discarding load of %s/%s: category invalidated meanwhile", cat, key)
		}
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v, false, nil
}

/*
Invalidate drops every entry of one category.
*/
func (c *CategoryCache) Invalidate(ctx context.Context, cat types.Category) {
	p := c.partition(cat)

	p.Mu.Lock()
	p.Clear(ctx)
	p.Mu.Unlock()

	c.engine.Metrics.Invalidation(cat)
}

/*
InvalidateAll drops every category, one partition lock at a time.
*/
func (c *CategoryCache) InvalidateAll(ctx context.Context) {
	for _, cat := range c.Categories() {
		c.Invalidate(ctx, cat)
	}
}

// TTL returns the time-to-live configured for a category.
func (c *CategoryCache) TTL(cat types.Category) time.Duration {
	if ttl, ok := c.opts.TTLs[cat]; ok {
		return ttl
	}
	return c.opts.DefaultTTL
}

// Categories returns the categories that currently have a partition, sorted.
func (c *CategoryCache) Categories() []types.Category {
	c.mu.Lock()
	defer c.mu.Unlock()

	cats := make([]types.Category, 0, len(c.partitions))
	for cat := range c.partitions {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

/*
Close releases every partition store.
*/
func (c *CategoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for cat, p := range c.partitions {
		if err := p.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", cat, err))
		}
	}
	return errors.Join(errs...)
}
