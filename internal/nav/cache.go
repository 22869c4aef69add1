package nav

import (
	"container/list"
	"sync"
	"time"

	"github.com/voxelforge/mobai/internal/mathx"
)

// cacheKey identifies a reusable path. The agent radius is bucketed
// to half-cell granularity so near-identical agents share entries.
type cacheKey struct {
	start, goal  Cell
	pathType     PathType
	radiusBucket int32
}

func makeCacheKey(g *Grid, req Request) cacheKey {
	return cacheKey{
		start:        g.CellOf(req.Start),
		goal:         g.CellOf(req.Goal),
		pathType:     req.Type,
		radiusBucket: int32(req.AgentRadius / (g.cellSize / 2)),
	}
}

type cacheEntry struct {
	key       cacheKey
	waypoints []mathx.Vec3
	storedAt  time.Time
	version   uint64
	hits      uint64
	elem      *list.Element
}

// pathCache is an LRU keyed by (start, goal, type, radius bucket).
// Entries are only served while the grid version still matches, and
// a minimum residency keeps bursty traffic from thrashing eviction.
type pathCache struct {
	mu           sync.Mutex
	entries      map[cacheKey]*cacheEntry
	order        *list.List // front = most recent
	capacity     int
	ttl          time.Duration
	minResidency time.Duration

	hits, misses, stale uint64
}

func newPathCache(capacity int, ttl time.Duration) *pathCache {
	if capacity <= 0 {
		capacity = 256
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &pathCache{
		entries:      make(map[cacheKey]*cacheEntry, capacity),
		order:        list.New(),
		capacity:     capacity,
		ttl:          ttl,
		minResidency: time.Second,
	}
}

// get returns a live entry for key at the given grid version.
func (c *pathCache) get(key cacheKey, version uint64, now time.Time) ([]mathx.Vec3, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if e.version != version || now.Sub(e.storedAt) > c.ttl {
		c.stale++
		c.order.Remove(e.elem)
		delete(c.entries, key)
		return nil, false
	}
	e.hits++
	c.hits++
	c.order.MoveToFront(e.elem)
	return e.waypoints, true
}

// put stores a successful path. Eviction drops the least recently
// used entry that has been resident at least minResidency; if every
// candidate is younger, the oldest goes anyway.
func (c *pathCache) put(key cacheKey, waypoints []mathx.Vec3, version uint64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.waypoints = waypoints
		e.storedAt = now
		e.version = version
		c.order.MoveToFront(e.elem)
		return
	}

	for len(c.entries) >= c.capacity {
		evicted := false
		for el := c.order.Back(); el != nil; el = el.Prev() {
			e := el.Value.(*cacheEntry)
			if now.Sub(e.storedAt) >= c.minResidency {
				c.order.Remove(el)
				delete(c.entries, e.key)
				evicted = true
				break
			}
		}
		if !evicted {
			el := c.order.Back()
			e := el.Value.(*cacheEntry)
			c.order.Remove(el)
			delete(c.entries, e.key)
		}
	}

	e := &cacheEntry{key: key, waypoints: waypoints, storedAt: now, version: version}
	e.elem = c.order.PushFront(e)
	c.entries[key] = e
}

// invalidateVersion drops every entry not stored at version.
func (c *pathCache) invalidateVersion(version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.version != version {
			c.order.Remove(e.elem)
			delete(c.entries, k)
		}
	}
}

func (c *pathCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CacheStats reports cache effectiveness counters.
type CacheStats struct {
	Hits, Misses, Stale uint64
	Entries             int
}

func (c *pathCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Stale: c.stale, Entries: len(c.entries)}
}
