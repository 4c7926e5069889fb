// Package idempotency implements the idempotency ledger (spec §4.13): the
// same Idempotency-Key replayed with an identical request hash returns the
// stored response; a different hash is a conflict; a previously unseen key
// computes and stores a fresh entry. Cache is a bounded LRU by default
// (cache_max_size, default 1000); store/memory or store/postgres (via
// supportability.Store) is the durable record, this package is only the
// fast-path lookup cache in front of it.
package idempotency

import (
	"container/list"
	"sync"

	"github.com/sgajbi/lotus-advise-sub000/internal/supportability"
)

// Cache is a bounded least-recently-used cache of idempotency records,
// modeled on the teacher's bounded-queue patterns (fixed capacity, oldest
// evicted first) rather than an unbounded map.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type entry struct {
	key    string
	record supportability.IdempotencyRecord
}

// NewCache builds an LRU cache with the given capacity (spec §4.13
// cache_max_size). A non-positive capacity means unbounded.
func NewCache(capacity int) *Cache {
	return &Cache{capacity: capacity, ll: list.New(), items: map[string]*list.Element{}}
}

// Get returns the cached record for key, if present, promoting it to
// most-recently-used.
func (c *Cache) Get(key string) (supportability.IdempotencyRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return supportability.IdempotencyRecord{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).record, true
}

// Put inserts or updates key's record, evicting the least-recently-used
// entry if capacity is exceeded.
func (c *Cache) Put(rec supportability.IdempotencyRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[rec.Key]; ok {
		el.Value.(*entry).record = rec
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&entry{key: rec.Key, record: rec})
	c.items[rec.Key] = el

	if c.capacity > 0 {
		for c.ll.Len() > c.capacity {
			oldest := c.ll.Back()
			if oldest == nil {
				break
			}
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).key)
		}
	}
}

// Len reports the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
