package engine

import (
	"io"
	"log"
	"time"

	"github.com/krisalay/omnifocus-mcp-cache/expiration"
	"github.com/krisalay/omnifocus-mcp-cache/types"
)

/*
CacheEngine is the "brain" of the cache system.
It is responsible for the "behavior" of the cache, NOT storage.
This acts as the policy layer.

It decides:
- When an entry is expired
- How timestamps are stamped on reads/writes
- What time it is (injectable, so freshness windows are testable)
- How metrics are recorded
- Where diagnostics are logged

It does NOT:
- Store data
- Route keys to categories
- Handle locking
- Decide eviction order
*/
type CacheEngine struct {

	// Expiration controls when a cache entry should be considered "too old".
	// If this is nil, entries never expire based on time.
	Expiration expiration.Strategy

	// Metrics records hits, misses, evictions, expirations and invalidations.
	Metrics types.Metrics

	// Now is the clock. Tests replace it to move time without sleeping.
	Now func() time.Time

	// Logger receives cache diagnostics.
	Logger *log.Logger
}

/*
NewCacheEngine creates a CacheEngine.
nil arguments get safe defaults: no-op metrics, wall clock, discarded logs.
*/
func NewCacheEngine(
	exp expiration.Strategy,
	metrics types.Metrics,
	now func() time.Time,
	logger *log.Logger,
) *CacheEngine {

	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &CacheEngine{
		Expiration: exp,
		Metrics:    metrics,
		Now:        now,
		Logger:     logger,
	}
}

/*
IsExpired checks whether a cache entry is expired.

BEHAVIOR:
---------
- Delegates the decision to the configured Expiration strategy
- Uses the engine clock
- Returns false if no expiration strategy is configured
*/
func (e *CacheEngine) IsExpired(ent *types.CacheEntry) bool {
	return e.Expiration != nil &&
		e.Expiration.IsExpired(ent, e.Now())
}

// OnRead is called every time the cache returns a value.
func (e *CacheEngine) OnRead(ent *types.CacheEntry) {
	e.Metrics.Hit(ent.Category)
	if e.Expiration != nil {
		e.Expiration.OnAccess(ent, e.Now())
	}
}

/*
OnWrite is called whenever something is written to the cache.
It stamps the entry so the TTL window starts now.
*/
func (e *CacheEngine) OnWrite(ent *types.CacheEntry) {
	now := e.Now()
	if e.Expiration != nil {
		e.Expiration.OnWrite(ent, now)
		return
	}
	ent.CreatedAt = now
	ent.LastAccessedAt = now
}
