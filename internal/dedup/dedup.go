// Package dedup is the per-node Dedup Cache (C5): a (prefix, origin) ->
// last-seen-time map with a configurable skip window, LRU-bounded at
// DEDUP_MAX, that suppresses duplicate legitimate observations while never
// caching (or skipping) attacks.
package dedup

import (
	"container/list"
	"sync"
	"time"

	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

type key struct {
	prefix string
	origin models.ASN
}

type record struct {
	key      key
	lastSeen int64
	elem     *list.Element
}

// Cache is one node's dedup cache. window is RPKI_WINDOW for validators or
// NONRPKI_WINDOW for observers (spec.md §4.5).
type Cache struct {
	window int64
	max    int

	mu      sync.Mutex
	entries map[key]*record
	lru     *list.List // front = least-recently-used

	stats models.DedupStats
}

// New creates an empty dedup cache with the given skip window and LRU bound.
func New(window time.Duration, max int) *Cache {
	return &Cache{
		window:  int64(window.Seconds()),
		max:     max,
		entries: make(map[key]*record),
		lru:     list.New(),
	}
}

// ShouldSkip reports whether obs should be suppressed: true iff
// (now - last_seen) < window AND classification is not an attack. Ground
// truth is never consulted — only the detector's classification for the
// current observation (spec.md §3, §4.5, §8 "Attack bypass").
func (c *Cache) ShouldSkip(obs models.Observation, now int64, isAttack bool) bool {
	if isAttack {
		c.mu.Lock()
		c.stats.Bypassed++
		c.mu.Unlock()
		return false
	}

	k := key{prefix: obs.Prefix, origin: obs.OriginASN}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.entries[k]
	if !ok {
		return false
	}
	skip := now-rec.lastSeen < c.window
	if skip {
		c.stats.Skipped++
	}
	return skip
}

// Record updates last_seen for (prefix, origin) to now, evicting the
// least-recently-used entry first if the cache is at DEDUP_MAX.
func (c *Cache) Record(obs models.Observation, now int64) {
	k := key{prefix: obs.Prefix, origin: obs.OriginASN}

	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.entries[k]; ok {
		rec.lastSeen = now
		c.lru.MoveToBack(rec.elem)
		c.stats.Recorded++
		return
	}

	rec := &record{key: k, lastSeen: now}
	rec.elem = c.lru.PushBack(rec)
	c.entries[k] = rec
	c.stats.Recorded++

	if len(c.entries) > c.max {
		front := c.lru.Front()
		if front != nil {
			evicted := front.Value.(*record)
			c.lru.Remove(front)
			delete(c.entries, evicted.key)
		}
	}
}

// Stats returns a snapshot of the cache's monotone counters.
func (c *Cache) Stats() models.DedupStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.stats
	snap.LastUpdated = time.Now()
	return snap
}

// Len reports the number of cached (prefix, origin) keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
