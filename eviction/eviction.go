package eviction

/*
This file defines how a category partition decides what to remove when it reaches its
configured maximum number of entries. Partitions without a bound carry no policy at all.
*/

/*
Policy is the interface that all eviction strategies must follow.

The partition does NOT care how eviction works internally. It calls these methods while
holding its own mutex, so implementations are not safe for concurrent use on their own.
*/
type Policy interface {

	// OnGet is called whenever a key is read from the partition.
	// LRU moves it to the front, LFU bumps its counter, FIFO ignores it.
	OnGet(string)

	// OnPut is called whenever a key is stored (new or overwritten).
	OnPut(string)

	// Remove is called when a key is dropped for a reason other than eviction
	// (expiry found on lookup, explicit delete).
	Remove(string)

	// Evict picks the victim when the partition is full and forgets it.
	// It returns "" when nothing is tracked.
	Evict() string

	// Len returns how many keys are tracked.
	Len() int

	// Reset forgets every key. Called when the whole category is invalidated.
	Reset()
}

// PolicyType is a simple identifier for supported eviction strategies.
type PolicyType string

const (
	// LRU (Least Recently Used): evicts the key that has NOT been read for the longest time.
	LRU PolicyType = "LRU"

	// LFU (Least Frequently Used): evicts the key read the fewest times.
	LFU PolicyType = "LFU"

	// FIFO (First In First Out): evicts the oldest inserted key, regardless of access.
	FIFO PolicyType = "FIFO"
)

// NewEvictionPolicy is a small factory function.
// An unknown policy type is a configuration bug and panics.
func NewEvictionPolicy(t PolicyType) Policy {
	switch t {
	case LRU:
		return newLRU()
	case LFU:
		return newLFU()
	case FIFO:
		return newFIFO()
	default:
		panic("unknown eviction policy: " + string(t))
	}
}

// Valid reports whether t names a supported policy.
func (t PolicyType) Valid() bool {
	switch t {
	case LRU, LFU, FIFO:
		return true
	}
	return false
}
