// Package cache implements the Decision Cache: a fixed-capacity
// URL-fingerprint to Decision mapping with LRU eviction, generalizing this
// codebase's container/list-backed LRU (pattern cache keyed by a hashed
// string, atomic hit/miss counters, RWMutex-guarded map+list pair) from a
// regex cache into a decision cache keyed by an xxhash URL fingerprint.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/shieldcore/filterengine/pkg/decision"
)

// DefaultCapacity is used when a non-positive capacity is supplied.
const DefaultCapacity = 65536

// Fingerprint returns the 64-bit, non-cryptographic, collision-tolerant hash
// of a URL used as the cache key.
func Fingerprint(url string) uint64 {
	return xxhash.Sum64String(url)
}

type entry struct {
	fingerprint uint64
	url         string // kept alongside the fingerprint to resolve collisions
	decision    decision.Decision
	ruleVersion uint64
	element     *list.Element
}

// Cache is a bounded, concurrent URL-fingerprint to Decision cache. Lookups
// take a read lock (the LRU touch on hit briefly upgrades to a write lock,
// matching the reader-preferring critical section this design calls for);
// insertions and evictions take a short exclusive section.
type Cache struct {
	mu       sync.RWMutex
	entries  map[uint64]*entry
	order    *list.List
	capacity int

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New constructs an empty Cache with the given capacity (DefaultCapacity if
// capacity <= 0).
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		entries:  make(map[uint64]*entry, capacity),
		order:    list.New(),
		capacity: capacity,
	}
}

// Get looks up url's fingerprint. A hit whose stored ruleVersion is stale
// relative to currentVersion is treated as a miss ("entries
// with stale rule_version are treated as misses and lazily replaced"); the
// stale entry is left in place for Put to overwrite rather than removed here,
// avoiding a second lock upgrade on the hot path.
func (c *Cache) Get(url string, currentVersion uint64) (decision.Decision, bool) {
	fp := Fingerprint(url)

	c.mu.RLock()
	e, ok := c.entries[fp]
	c.mu.RUnlock()

	if !ok || e.url != url || e.ruleVersion != currentVersion {
		c.misses.Add(1)
		return decision.Decision{}, false
	}

	c.mu.Lock()
	c.order.MoveToFront(e.element)
	c.mu.Unlock()

	c.hits.Add(1)
	return e.decision, true
}

// Put inserts or overwrites the cached decision for url, evicting the least
// recently used entry if the cache is at capacity. A collision against an
// existing differently-urled fingerprint simply overwrites that slot, per
// the "ties resolved by storing the URL string alongside" (the
// collided entry is treated as replaced, not chained).
func (c *Cache) Put(url string, d decision.Decision, ruleVersion uint64) {
	fp := Fingerprint(url)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[fp]; ok {
		e.url = url
		e.decision = d
		e.ruleVersion = ruleVersion
		c.order.MoveToFront(e.element)
		return
	}

	if len(c.entries) >= c.capacity {
		c.evictLocked()
	}

	elem := c.order.PushFront(fp)
	c.entries[fp] = &entry{
		fingerprint: fp,
		url:         url,
		decision:    d,
		ruleVersion: ruleVersion,
		element:     elem,
	}
}

func (c *Cache) evictLocked() {
	back := c.order.Back()
	if back == nil {
		return
	}
	fp := back.Value.(uint64)
	c.order.Remove(back)
	delete(c.entries, fp)
}

// Stats is a point-in-time snapshot of cache counters, published into the
// Metrics record .
type Stats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// Stats returns the current hit/miss/size snapshot.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   size,
	}
}

// Clear empties the cache without resetting hit/miss counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*entry, c.capacity)
	c.order.Init()
}
