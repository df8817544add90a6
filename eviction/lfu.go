// This file implements LFU eviction.

package eviction

type lfu struct {
	// freq is the access count of every tracked key.
	freq map[string]int

	// buckets groups keys by access count.
	buckets map[int]map[string]struct{}

	// minFreq is the smallest populated bucket, or 0 when nothing is tracked.
	minFreq int
}

func newLFU() *lfu {
	return &lfu{
		freq:    make(map[string]int),
		buckets: make(map[int]map[string]struct{}),
	}
}

// OnGet moves the key one bucket up.
func (l *lfu) OnGet(k string) {
	f, ok := l.freq[k]
	if !ok {
		return
	}
	l.unbucket(k, f)
	l.freq[k] = f + 1
	l.bucket(k, f+1)
	if l.minFreq == f && len(l.buckets[f]) == 0 {
		l.minFreq = f + 1
	}
}

// OnPut tracks a new key with frequency 1. Overwrites keep their count.
func (l *lfu) OnPut(k string) {
	if _, ok := l.freq[k]; ok {
		return
	}
	l.freq[k] = 1
	l.bucket(k, 1)
	l.minFreq = 1
}

// Evict removes one key from the least-frequent bucket. Ties are broken arbitrarily.
func (l *lfu) Evict() string {
	for k := range l.buckets[l.minFreq] {
		l.Remove(k)
		return k
	}
	return ""
}

func (l *lfu) Remove(k string) {
	f, ok := l.freq[k]
	if !ok {
		return
	}
	delete(l.freq, k)
	l.unbucket(k, f)
	if f == l.minFreq && len(l.buckets[f]) == 0 {
		l.recomputeMin()
	}
}

func (l *lfu) Len() int { return len(l.freq) }

func (l *lfu) Reset() {
	l.freq = make(map[string]int)
	l.buckets = make(map[int]map[string]struct{})
	l.minFreq = 0
}

func (l *lfu) bucket(k string, f int) {
	if l.buckets[f] == nil {
		l.buckets[f] = make(map[string]struct{})
	}
	l.buckets[f][k] = struct{}{}
}

func (l *lfu) unbucket(k string, f int) {
	delete(l.buckets[f], k)
	if len(l.buckets[f]) == 0 {
		delete(l.buckets, f)
	}
}

// recomputeMin scans the buckets. Only needed after removing the last key at minFreq.
func (l *lfu) recomputeMin() {
	l.minFreq = 0
	for f := range l.buckets {
		if l.minFreq == 0 || f < l.minFreq {
			l.minFreq = f
		}
	}
}
