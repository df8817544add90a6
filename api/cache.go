package cache

import (
	"context"
	"time"

	"github.com/krisalay/omnifocus-mcp-cache/types"
)

/*
Cache defines the PUBLIC API of the category cache.
This is a contract that guarantees certain behaviors, without exposing internals.
Partitioning, storage backends, eviction, expiration, locking and metrics are hidden
behind this interface.

None of these operations fail under normal operation: they manipulate in-memory
structures (or a best-effort remote store whose errors degrade into misses).
*/
type Cache interface {

	/*
		Get retrieves the value stored under (category, key).

		BEHAVIOR:
		-------------------
		1. If the entry exists and now - CreatedAt <= TTL:
		   - Return the value (cache hit)

		2. If the entry does NOT exist or is expired:
		   - Return ok=false (cache miss). Absence is NOT an error.
		   - An expired entry found on the way is dropped.
	*/
	Get(ctx context.Context, category types.Category, key string) (any, bool)

	/*
		Set stores a value with CreatedAt = now and the category's TTL,
		overwriting any prior entry for the same key.
	*/
	Set(ctx context.Context, category types.Category, key string, value any)

	/*
		GetOrLoad is the read-through path.

		BEHAVIOR:
		---------
		- Hit: return the cached value, cached=true
		- Miss: run load ONCE no matter how many goroutines miss together
		- load error: return it, store NOTHING
		- load success: store it, unless the category was invalidated while load was running
	*/
	GetOrLoad(ctx context.Context, category types.Category, key string, load types.LoadFunc) (value any, cached bool, err error)

	/*
		Invalidate drops every entry of ONE category.
		Other categories are untouched. Invalidating an empty category is a no-op.
	*/
	Invalidate(ctx context.Context, category types.Category)

	/*
		InvalidateAll drops every entry of every category.
		Used when the effect of a change cannot be mapped to specific categories.
	*/
	InvalidateAll(ctx context.Context)

	// TTL returns the time-to-live configured for a category.
	TTL(category types.Category) time.Duration

	// Close releases the partition stores.
	Close() error
}
