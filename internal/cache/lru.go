// Package cache implements the bounded LRU cache that sits in front of page
// materialization, keyed by (PageID, LSN) so that versioned reads at
// different LSNs cache independently.
package cache

import (
	"container/list"
	"sync"

	"github.com/linux/projects/logstore/internal/record"
)

// Key identifies one cached, materialized page version.
type Key struct {
	PageID record.PageID
	LSN    record.LSN
}

type entry struct {
	key  Key
	data []byte
}

// LRU is a fixed-capacity, strictly-LRU cache mapping (PageID, LSN) to
// materialized page bytes. It uses a container/list plus a map so that both
// lookups-with-promotion and eviction are O(1) — no remove-then-reinsert.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	index    map[Key]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates an LRU cache with the given capacity (in pages). A capacity of
// zero or less disables caching: every Get misses and Put is a no-op.
func New(capacity int) *LRU {
	return &LRU{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[Key]*list.Element),
	}
}

// Get returns the cached bytes for key and moves it to most-recently-used.
// The returned slice is a copy; callers may mutate it freely.
func (c *LRU) Get(key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.ll.MoveToFront(elem)
	c.hits++

	e := elem.Value.(*entry)
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, true
}

// Put inserts or updates key, evicting the least-recently-used entry if the
// cache is at capacity.
func (c *LRU) Put(key Key, data []byte) {
	if c.capacity <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)

	if elem, ok := c.index[key]; ok {
		elem.Value.(*entry).data = stored
		c.ll.MoveToFront(elem)
		return
	}

	if c.ll.Len() >= c.capacity {
		c.evictLocked()
	}

	elem := c.ll.PushFront(&entry{key: key, data: stored})
	c.index[key] = elem
}

// evictLocked removes the least-recently-used entry. Caller must hold mu.
func (c *LRU) evictLocked() {
	back := c.ll.Back()
	if back == nil {
		return
	}
	c.ll.Remove(back)
	delete(c.index, back.Value.(*entry).key)
	c.evictions++
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Size      int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Stats returns current hit/miss/eviction counters.
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      c.ll.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
