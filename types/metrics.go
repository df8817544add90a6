package types

// This file defines how the cache reports what it is doing.

/*
Metrics is an interface that defines what the cache wants to measure.
Each method represents an event in the cache lifecycle, tagged with the category it happened in.
*/
type Metrics interface {

	// Hit is called when the cache returns a valid value.
	Hit(Category)

	// Miss is called when the key is absent (or expired) and the caller has to fetch.
	Miss(Category)

	// Eviction is called when a key is removed because its partition is full.
	Eviction(Category)

	// Expire is called when a lookup finds an entry past its TTL and drops it.
	Expire(Category)

	// Invalidation is called when a whole category is dropped.
	Invalidation(Category)

	// Refresh is called when the resource snapshot is (re)loaded.
	Refresh()
}

/*
NoopMetrics is a "do nothing" implementation of Metrics.
It lets every component hold a non-nil Metrics without nil checks.
*/
type NoopMetrics struct{}

func (NoopMetrics) Hit(Category)          {}
func (NoopMetrics) Miss(Category)         {}
func (NoopMetrics) Eviction(Category)     {}
func (NoopMetrics) Expire(Category)       {}
func (NoopMetrics) Invalidation(Category) {}
func (NoopMetrics) Refresh()              {}
