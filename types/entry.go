package types

import "time"

// CacheEntry is owned by the partition that stores it and is never handed
// out to callers; only Value leaves the cache.
type CacheEntry struct {
	Key            string
	Category       Category
	Value          any
	CreatedAt      time.Time
	LastAccessedAt time.Time
	TTL            time.Duration // zero => never expires
}

// Age reports how old the entry is at the given instant.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}
