// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cache provides the recency cache backing glyph bitmap
// memoization. Recreating an entry means re-running the rasterizer, so
// the cache stays as full as its soft limit allows and sheds exactly
// one least-recently-used entry per overflowing insert.
package cache

// Cache is a generic LRU cache with a soft limit and hit/miss
// accounting. It is not safe for concurrent use: the glyph pipeline
// mutates all cache state from the single prepare goroutine.
type Cache[K comparable, V any] struct {
	entries   map[K]*entry[V]
	softLimit int
	tick      uint64 // monotonic, stamps recency; unique per access

	hits   uint64
	misses uint64
}

type entry[V any] struct {
	value V
	atime uint64
}

// New creates a cache with the given soft limit. A softLimit of 0
// means unlimited.
func New[K comparable, V any](softLimit int) *Cache[K, V] {
	return &Cache[K, V]{
		entries:   make(map[K]*entry[V]),
		softLimit: softLimit,
	}
}

// Get retrieves a value, refreshing its recency and counting the
// access as a hit or miss.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.tick++
	e.atime = c.tick
	return e.value, true
}

// Set stores a value. When the cache exceeds the soft limit the least
// recently used entry is evicted; recency ties are impossible because
// every access gets a distinct tick, so eviction order is fully
// deterministic.
func (c *Cache[K, V]) Set(key K, value V) {
	c.tick++
	c.entries[key] = &entry[V]{value: value, atime: c.tick}

	for c.softLimit > 0 && len(c.entries) > c.softLimit {
		c.evictOldest()
	}
}

// Delete removes an entry. Returns true if the entry existed.
func (c *Cache[K, V]) Delete(key K) bool {
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		return true
	}
	return false
}

// Clear removes all entries. Hit and miss counts survive, covering
// the lifetime of the cache rather than its current contents.
func (c *Cache[K, V]) Clear() {
	c.entries = make(map[K]*entry[V])
	c.tick = 0
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int { return len(c.entries) }

// Capacity returns the soft limit of the cache.
func (c *Cache[K, V]) Capacity() int { return c.softLimit }

// Stats reports lifetime hits and misses.
func (c *Cache[K, V]) Stats() (hits, misses uint64) {
	return c.hits, c.misses
}

// evictOldest removes the entry with the smallest access tick.
func (c *Cache[K, V]) evictOldest() {
	var (
		oldestKey K
		oldest    uint64
		found     bool
	)
	for key, e := range c.entries {
		if !found || e.atime < oldest {
			oldestKey, oldest, found = key, e.atime, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}
