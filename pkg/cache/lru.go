package cache

import (
	"sync"
)

// node is a doubly linked list entry
type node[K comparable, V any] struct {
	key   K
	value V
	prev  *node[K, V]
	next  *node[K, V]
}

// LRUCache is a thread-safe LRU cache
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*node[K, V]
	head     *node[K, V] // most recently used
	tail     *node[K, V] // least recently used
}

// NewLRUCache creates an LRU cache with given capacity
func NewLRUCache[K comparable, V any](capacity int) *LRUCache[K, V] {
	if capacity <= 0 {
		capacity = 1000 // default
	}

	c := &LRUCache[K, V]{
		capacity: capacity,
		items:    make(map[K]*node[K, V], capacity),
		head:     &node[K, V]{},
		tail:     &node[K, V]{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head

	return c
}

// Get retrieves value and marks as recently used
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, exists := c.items[key]
	if !exists {
		var zero V
		return zero, false
	}

	c.moveToFront(n)
	return n.value, true
}

// Put adds or updates a key-value pair
func (c *LRUCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, exists := c.items[key]; exists {
		n.value = value
		c.moveToFront(n)
		return
	}
	if len(c.items) >= c.capacity {
		c.evictTail()
	}
	n := &node[K, V]{key: key, value: value}
	c.addToFront(n)
	c.items[key] = n
}

// Delete removes key, reporting whether it was present
func (c *LRUCache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, exists := c.items[key]
	if !exists {
		return false
	}
	c.removeNode(n)
	delete(c.items, key)
	return true
}

// Peek retrieves value WITHOUT marking as recently used
func (c *LRUCache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, exists := c.items[key]
	if !exists {
		var zero V
		return zero, false
	}
	return n.value, true
}

// Clear empties the cache
func (c *LRUCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*node[K, V], c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head
}

func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRUCache[K, V]) moveToFront(n *node[K, V]) {
	c.removeNode(n)
	c.addToFront(n)
}

// removeNode unlinks n from the list (doesn't delete from map)
func (c *LRUCache[K, V]) removeNode(n *node[K, V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

// addToFront links n right after the dummy head
func (c *LRUCache[K, V]) addToFront(n *node[K, V]) {
	first := c.head.next

	n.next = first
	n.prev = c.head

	c.head.next = n
	first.prev = n
}

func (c *LRUCache[K, V]) evictTail() {
	lru := c.tail.prev
	if lru == c.head {
		return
	}
	c.removeNode(lru)
	delete(c.items, lru.key)
}
