// This file implements FIFO eviction.

package eviction

type fifo struct {
	// queue keeps keys in insertion order; index 0 is the oldest.
	queue []string

	// set tracks membership so repeated puts do not requeue a key.
	set map[string]struct{}
}

func newFIFO() *fifo {
	return &fifo{set: make(map[string]struct{})}
}

// OnGet: FIFO ignores reads completely.
func (f *fifo) OnGet(string) {}

// OnPut only cares about the FIRST insertion. Overwriting a key keeps its place in line.
func (f *fifo) OnPut(k string) {
	if _, ok := f.set[k]; ok {
		return
	}
	f.queue = append(f.queue, k)
	f.set[k] = struct{}{}
}

// Evict pops the oldest key.
func (f *fifo) Evict() string {
	if len(f.queue) == 0 {
		return ""
	}
	k := f.queue[0]
	f.queue = f.queue[1:]
	delete(f.set, k)
	return k
}

// Remove drops a key while preserving the order of the others.
func (f *fifo) Remove(k string) {
	if _, ok := f.set[k]; !ok {
		return
	}
	delete(f.set, k)
	for i, v := range f.queue {
		if v == k {
			f.queue = append(f.queue[:i], f.queue[i+1:]...)
			break
		}
	}
}

func (f *fifo) Len() int { return len(f.set) }

func (f *fifo) Reset() {
	f.queue = nil
	f.set = make(map[string]struct{})
}
