// Package cache holds the in-process caches of the query path.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache is a fixed-capacity LRU cache whose entries also expire after a TTL.
type LRUCache[K comparable, V any] struct {
	cache    map[K]*list.Element
	order    *list.List
	capacity int
	ttl      time.Duration
	now      func() time.Time
	mu       sync.Mutex

	hits   uint64
	misses uint64
}

type entry[K comparable, V any] struct {
	expiresAt time.Time
	key       K
	value     V
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
}

// NewLRUCache creates a new LRU cache. A non-positive ttl disables expiry.
func NewLRUCache[K comparable, V any](capacity int, ttl time.Duration) *LRUCache[K, V] {
	if capacity <= 0 {
		capacity = 256
	}
	return &LRUCache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		cache:    make(map[K]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get retrieves a value and marks it most recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.cache[key]
	if !ok {
		c.misses++
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if c.expired(e) {
		c.remove(el)
		c.misses++
		return zero, false
	}

	c.order.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Set stores a value, evicting the least recently used entry when full.
func (c *LRUCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}

	if el, ok := c.cache[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}

	for len(c.cache) >= c.capacity {
		c.remove(c.order.Back())
	}
	c.cache[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
}

// Remove deletes key and reports whether it was present.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.cache[key]; ok {
		c.remove(el)
		return true
	}
	return false
}

// Clear removes all entries. Hit and miss counters are kept.
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[K]*list.Element)
	c.order.Init()
}

// CleanupExpired removes all expired entries and returns how many were dropped.
func (c *LRUCache[K, V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if c.expired(el.Value.(*entry[K, V])) {
			c.remove(el)
			n++
		}
		el = prev
	}
	return n
}

func (c *LRUCache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:     len(c.cache),
		Capacity: c.capacity,
		Hits:     c.hits,
		Misses:   c.misses,
	}
}

// Must be called with lock held.
func (c *LRUCache[K, V]) expired(e *entry[K, V]) bool {
	return !e.expiresAt.IsZero() && c.now().After(e.expiresAt)
}

// Must be called with lock held.
func (c *LRUCache[K, V]) remove(el *list.Element) {
	if el == nil {
		return
	}
	c.order.Remove(el)
	delete(c.cache, el.Value.(*entry[K, V]).key)
}
