// This file implements LRU eviction.

package eviction

// lruNode is one tracked key in a doubly-linked usage list.
type lruNode struct {
	key  string
	prev *lruNode // more recently used neighbour
	next *lruNode // less recently used neighbour
}

type lru struct {
	// nodes gives O(1) access to a key's position in the list.
	nodes map[string]*lruNode

	// head is the MOST recently used key, tail the LEAST.
	head *lruNode
	tail *lruNode
}

func newLRU() *lru {
	return &lru{nodes: make(map[string]*lruNode)}
}

// OnGet marks the key as most recently used.
func (l *lru) OnGet(k string) {
	if n, ok := l.nodes[k]; ok {
		l.unlink(n)
		l.pushFront(n)
	}
}

// OnPut tracks a new key as most recently used; an overwrite counts as a use.
func (l *lru) OnPut(k string) {
	if n, ok := l.nodes[k]; ok {
		l.unlink(n)
		l.pushFront(n)
		return
	}
	n := &lruNode{key: k}
	l.nodes[k] = n
	l.pushFront(n)
}

// Evict removes the least recently used key (the tail).
func (l *lru) Evict() string {
	if l.tail == nil {
		return ""
	}
	n := l.tail
	l.unlink(n)
	delete(l.nodes, n.key)
	return n.key
}

func (l *lru) Remove(k string) {
	if n, ok := l.nodes[k]; ok {
		l.unlink(n)
		delete(l.nodes, k)
	}
}

func (l *lru) Len() int { return len(l.nodes) }

func (l *lru) Reset() {
	l.nodes = make(map[string]*lruNode)
	l.head, l.tail = nil, nil
}

func (l *lru) pushFront(n *lruNode) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
}

// unlink detaches n and repairs head/tail.
func (l *lru) unlink(n *lruNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
}
