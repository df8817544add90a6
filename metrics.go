package cache

import (
	"sync"
	"sync/atomic"

	"github.com/krisalay/omnifocus-mcp-cache/types"
)

var _ types.Metrics = (*Counters)(nil)

// CategoryStats is a point-in-time view of one category's counters.
type CategoryStats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Evictions     int64   `json:"evictions"`
	Expirations   int64   `json:"expirations"`
	Invalidations int64   `json:"invalidations"`
	HitRatio      float64 `json:"hit_ratio"`
}

// Stats is what the cache_stats tool reports.
type Stats struct {
	Categories map[types.Category]CategoryStats `json:"categories"`
	Refreshes  int64                            `json:"resource_refreshes"`
}

type counters struct {
	hits, misses, evictions, expirations, invalidations atomic.Int64
}

/*
Counters is the in-process Metrics implementation.
Counting is lock-free; only the first event of a new category takes the lock.
*/
type Counters struct {
	mu        sync.RWMutex
	perCat    map[types.Category]*counters
	refreshes atomic.Int64
}

func NewCounters() *Counters {
	return &Counters{perCat: make(map[types.Category]*counters)}
}

func (m *Counters) of(cat types.Category) *counters {
	m.mu.RLock()
	c, ok := m.perCat[cat]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.perCat[cat]; !ok {
		c = &counters{}
		m.perCat[cat] = c
	}
	return c
}

func (m *Counters) Hit(cat types.Category)          { m.of(cat).hits.Add(1) }
func (m *Counters) Miss(cat types.Category)         { m.of(cat).misses.Add(1) }
func (m *Counters) Eviction(cat types.Category)     { m.of(cat).evictions.Add(1) }
func (m *Counters) Expire(cat types.Category)       { m.of(cat).expirations.Add(1) }
func (m *Counters) Invalidation(cat types.Category) { m.of(cat).invalidations.Add(1) }
func (m *Counters) Refresh()                        { m.refreshes.Add(1) }

// Snapshot copies the current counters.
func (m *Counters) Snapshot() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Categories: make(map[types.Category]CategoryStats, len(m.perCat)),
		Refreshes:  m.refreshes.Load(),
	}
	for cat, c := range m.perCat {
		cs := CategoryStats{
			Hits:          c.hits.Load(),
			Misses:        c.misses.Load(),
			Evictions:     c.evictions.Load(),
			Expirations:   c.expirations.Load(),
			Invalidations: c.invalidations.Load(),
		}
		if total := cs.Hits + cs.Misses; total > 0 {
			cs.HitRatio = float64(cs.Hits) / float64(total)
		}
		s.Categories[cat] = cs
	}
	return s
}
