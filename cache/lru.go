// Package cache provides a TTL-aware LRU cache used as the backing store
// for the engine's result cache. Entries expire lazily on lookup; no
// background sweeper is required, though CleanupExpired is available for
// callers that want one.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a fixed-capacity cache with per-entry TTL. Safe for concurrent
// use; all critical sections are O(1) map and list operations.
type LRU[K comparable, V any] struct {
	mu         sync.Mutex
	entries    map[K]*list.Element
	order      *list.List
	capacity   int
	defaultTTL time.Duration
}

type lruEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// NewLRU creates a cache holding at most capacity entries, expiring them
// after defaultTTL. Non-positive arguments fall back to 1000 entries and
// five minutes.
func NewLRU[K comparable, V any](capacity int, defaultTTL time.Duration) *LRU[K, V] {
	if capacity <= 0 {
		capacity = 1000
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &LRU[K, V]{
		entries:    make(map[K]*list.Element),
		order:      list.New(),
		capacity:   capacity,
		defaultTTL: defaultTTL,
	}
}

// Get returns the live value for key. Expired entries are removed on the
// spot and reported as a miss.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}

	entry := elem.Value.(*lruEntry[K, V])
	if time.Now().After(entry.expiresAt) {
		c.remove(elem)
		var zero V
		return zero, false
	}

	c.order.MoveToFront(elem)
	return entry.value, true
}

// Set stores value under key with the default TTL, evicting the least
// recently used entries when the cache is full.
func (c *LRU[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value under key with an explicit TTL.
func (c *LRU[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*lruEntry[K, V])
		entry.value = value
		entry.expiresAt = time.Now().Add(ttl)
		c.order.MoveToFront(elem)
		return
	}

	for len(c.entries) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.remove(oldest)
	}

	elem := c.order.PushFront(&lruEntry[K, V]{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})
	c.entries[key] = elem
}

// Remove deletes key from the cache, reporting whether it was present.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.remove(elem)
		return true
	}
	return false
}

// Len returns the number of stored entries, including any that have
// expired but not yet been looked up.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*list.Element)
	c.order.Init()
}

// CleanupExpired removes all expired entries and returns how many were
// dropped. Optional; Get already expires entries lazily.
func (c *LRU[K, V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var expired []*list.Element
	for _, elem := range c.entries {
		if now.After(elem.Value.(*lruEntry[K, V]).expiresAt) {
			expired = append(expired, elem)
		}
	}
	for _, elem := range expired {
		c.remove(elem)
	}
	return len(expired)
}

// remove must be called with the lock held.
func (c *LRU[K, V]) remove(elem *list.Element) {
	entry := elem.Value.(*lruEntry[K, V])
	c.order.Remove(elem)
	delete(c.entries, entry.key)
}
