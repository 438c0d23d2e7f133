/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key      K
	value    V
	deadline time.Time // zero if the entry never expires
}

func (e *entry[K, V]) expired(now time.Time) bool {
	return !e.deadline.IsZero() && !now.Before(e.deadline)
}

// LRUCache is a size-bounded map which forgets the least recently used keys first.
// Entries may also expire after the TTL. All methods are safe for concurrent use.
type LRUCache[K comparable, V any] struct {
	capacity   int
	ttl        time.Duration
	slidingTTL bool
	metrics    MetricsCollector

	mu sync.Mutex
	// order keeps *entry values, the most recently used one is at the front.
	order *list.List
	index map[K]*list.Element
}

// Options represents options for the cache.
type Options struct {
	// TTL is the time-to-live for the cache entries. Zero means no expiration.
	// Expired entries are dropped lazily on access or by RunPeriodicCleanup.
	TTL time.Duration

	// ExpireAfterAccess makes every successful read renew the entry TTL,
	// so an entry lives while it's used.
	ExpireAfterAccess bool
}

// New creates a new LRUCache without expiration.
func New[K comparable, V any](maxEntries int, metricsCollector MetricsCollector) (*LRUCache[K, V], error) {
	return NewWithOpts[K, V](maxEntries, metricsCollector, Options{})
}

// NewWithOpts creates a new LRUCache. metricsCollector may be nil.
func NewWithOpts[K comparable, V any](maxEntries int, metricsCollector MetricsCollector, opts Options) (*LRUCache[K, V], error) {
	switch {
	case maxEntries <= 0:
		return nil, errors.New("maxEntries must be greater than 0")
	case opts.TTL < 0:
		return nil, errors.New("TTL must be greater or equal to 0 (no expiration)")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetricsCollector
	}
	return &LRUCache[K, V]{
		capacity:   maxEntries,
		ttl:        opts.TTL,
		slidingTTL: opts.ExpireAfterAccess,
		metrics:    metricsCollector,
		order:      list.New(),
		index:      make(map[K]*list.Element, maxEntries),
	}, nil
}

// Get returns the value stored for the key.
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.lookup(key, time.Now()); e != nil {
		return e.value, true
	}
	return value, false
}

// Add stores the value, replacing the previous one. The least recently used entry is evicted if the cache is full.
func (c *LRUCache[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if elem, ok := c.index[key]; ok {
		e := elem.Value.(*entry[K, V])
		e.value, e.deadline = value, c.deadline(now)
		c.order.MoveToFront(elem)
		return
	}
	c.insert(key, value, now)
}

// GetOrAdd returns the stored value or stores the one returned by valueProvider.
// valueProvider is called under the cache lock, so only one value is ever created for a key.
func (c *LRUCache[K, V]) GetOrAdd(key K, valueProvider func() V) (value V, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e := c.lookup(key, now); e != nil {
		return e.value, true
	}
	value = valueProvider()
	c.insert(key, value, now)
	return value, false
}

// Remove deletes the key and reports whether it was present.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[key]
	if ok {
		c.unlink(elem)
		c.metrics.SetAmount(len(c.index))
	}
	return ok
}

// Len returns the number of entries including expired ones that are not dropped yet.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// MaxEntries returns the maximum number of entries kept in the cache.
func (c *LRUCache[K, V]) MaxEntries() int {
	return c.capacity
}

// TTL returns the time-to-live of the cache entries, zero means no expiration.
func (c *LRUCache[K, V]) TTL() time.Duration {
	return c.ttl
}

// RunPeriodicCleanup drops expired entries every cleanupInterval until ctx is done.
func (c *LRUCache[K, V]) RunPeriodicCleanup(ctx context.Context, cleanupInterval time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.removeExpired(now)
		}
	}
}

func (c *LRUCache[K, V]) removeExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*entry[K, V]).expired(now) {
			c.unlink(elem)
			removed++
		}
		elem = prev
	}
	if removed != 0 {
		c.metrics.AddExpirations(removed)
	}
	c.metrics.SetAmount(len(c.index))
	return removed
}

func (c *LRUCache[K, V]) deadline(now time.Time) time.Time {
	if c.ttl == 0 {
		return time.Time{}
	}
	return now.Add(c.ttl)
}

// lookup returns nil if the key is absent or expired. Must be called with c.mu held.
func (c *LRUCache[K, V]) lookup(key K, now time.Time) *entry[K, V] {
	elem, ok := c.index[key]
	if !ok {
		c.metrics.IncMisses()
		return nil
	}
	e := elem.Value.(*entry[K, V])
	if e.expired(now) {
		c.unlink(elem)
		c.metrics.AddExpirations(1)
		c.metrics.SetAmount(len(c.index))
		c.metrics.IncMisses()
		return nil
	}
	if c.slidingTTL {
		e.deadline = c.deadline(now)
	}
	c.order.MoveToFront(elem)
	c.metrics.IncHits()
	return e
}

// insert adds an absent key. Must be called with c.mu held.
func (c *LRUCache[K, V]) insert(key K, value V, now time.Time) {
	c.index[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, deadline: c.deadline(now)})
	if len(c.index) > c.capacity {
		c.unlink(c.order.Back())
		c.metrics.AddEvictions(1)
	}
	c.metrics.SetAmount(len(c.index))
}

func (c *LRUCache[K, V]) unlink(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.index, elem.Value.(*entry[K, V]).key)
}
