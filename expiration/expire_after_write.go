package expiration

import (
	"time"

	"github.com/krisalay/omnifocus-mcp-cache/types"
)

/*
ExpireAfterWrite implements a fixed time-to-live measured from the moment the entry was written.
Reads do NOT extend the lifetime: an entry is valid while now - CreatedAt <= TTL, no matter how
often it is used. This bounds the staleness of every cached answer by its category TTL.
*/
type ExpireAfterWrite struct{}

// IsExpired reports whether the entry is past its TTL. A zero TTL never expires.
func (ExpireAfterWrite) IsExpired(ent *types.CacheEntry, now time.Time) bool {
	return ent.TTL > 0 && ent.Age(now) > ent.TTL
}

// OnAccess only records the access time.
func (ExpireAfterWrite) OnAccess(ent *types.CacheEntry, now time.Time) {
	ent.LastAccessedAt = now
}

/*
OnWrite stamps a freshly written entry.
- CreatedAt restarts the TTL window
- LastAccessedAt starts at the write time
*/
func (ExpireAfterWrite) OnWrite(ent *types.CacheEntry, now time.Time) {
	ent.CreatedAt = now
	ent.LastAccessedAt = now
}
