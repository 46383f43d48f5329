// Package knowledge is the per-node Knowledge Base (C4): a time-windowed
// store of observed (prefix, origin, timestamp) tuples, indexed by prefix
// for fast has_compatible lookups, bounded by KB_MAX and periodically
// swept of entries older than KB_WINDOW.
//
// Owned exclusively by one node runtime (spec.md §3, §5) — no internal
// locking is required for the hot path; the single background reaper
// goroutine (grounded on internal/api/ratelimit.go's cleanupLoop ticker
// pattern) takes the same mutex the node runtime would take if it ever
// needed to, so the type stays safe to share across the reaper and
// occasional test-driven concurrent access.
package knowledge

import (
	"container/list"
	"sync"
	"time"

	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

// Entry is one stored (prefix, origin, observed_at) tuple plus the trust
// score recorded at insertion time (spec.md §3).
type Entry struct {
	Prefix     string
	Origin     models.ASN
	ObservedAt int64
	TrustScore float64

	elem *list.Element // insertion-order position, for oldest-first eviction
}

// Oracle is the single capability other components use to query knowledge
// (spec.md §9: "KnowledgeOracle.has_compatible(prefix, origin)"), so tests
// can substitute a fixed-response fake.
type Oracle interface {
	HasCompatible(prefix string, origin models.ASN) models.VoteVerdict
}

// Base is one node's knowledge base.
type Base struct {
	window  int64 // KB_WINDOW in seconds
	max     int   // KB_MAX

	mu      sync.Mutex
	byPrefix map[string][]*Entry
	order    *list.List // oldest-first, for KB_MAX eviction
	nowFn    func() int64
}

// New creates an empty knowledge base. nowFn supplies the current logical
// time (typically the shared simulation clock's Now).
func New(window time.Duration, max int, nowFn func() int64) *Base {
	return &Base{
		window:   int64(window.Seconds()),
		max:      max,
		byPrefix: make(map[string][]*Entry),
		order:    list.New(),
		nowFn:    nowFn,
	}
}

// Add appends an observed tuple. On overflow past KB_MAX, the oldest entry
// is evicted first (spec.md §4.4, §7 KBOverflow).
func (b *Base) Add(prefix string, origin models.ASN, observedAt int64, trustScore float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := &Entry{Prefix: prefix, Origin: origin, ObservedAt: observedAt, TrustScore: trustScore}
	e.elem = b.order.PushBack(e)
	b.byPrefix[prefix] = append(b.byPrefix[prefix], e)

	if b.order.Len() > b.max {
		b.evictOldestLocked()
	}
}

func (b *Base) evictOldestLocked() {
	front := b.order.Front()
	if front == nil {
		return
	}
	oldest := front.Value.(*Entry)
	b.order.Remove(front)
	b.removeFromPrefixLocked(oldest)
}

func (b *Base) removeFromPrefixLocked(e *Entry) {
	entries := b.byPrefix[e.Prefix]
	for i, other := range entries {
		if other == e {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(b.byPrefix, e.Prefix)
	} else {
		b.byPrefix[e.Prefix] = entries
	}
}

// HasCompatible implements Oracle: APPROVE if a matching (prefix, origin)
// entry exists within the window, REJECT if the prefix matches but the
// origin differs within the window, otherwise NO_KNOWLEDGE (spec.md §4.4).
func (b *Base) HasCompatible(prefix string, origin models.ASN) models.VoteVerdict {
	now := b.nowFn()
	tolerance := b.window

	b.mu.Lock()
	defer b.mu.Unlock()

	entries, ok := b.byPrefix[prefix]
	if !ok {
		return models.VerdictNoKnowledge
	}

	sawMismatch := false
	for _, e := range entries {
		if now-e.ObservedAt > tolerance {
			continue
		}
		if e.Origin == origin {
			return models.VerdictApprove
		}
		sawMismatch = true
	}
	if sawMismatch {
		return models.VerdictReject
	}
	return models.VerdictNoKnowledge
}

// Evict removes every entry older than the window. Intended to be called
// periodically (KB_CLEANUP) by a single low-priority reaper goroutine
// shared process-wide, not one timer per node (spec.md §9).
func (b *Base) Evict() int {
	now := b.nowFn()
	tolerance := b.window

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for e := b.order.Front(); e != nil; {
		next := e.Next()
		entry := e.Value.(*Entry)
		if now-entry.ObservedAt > tolerance {
			b.order.Remove(e)
			b.removeFromPrefixLocked(entry)
			removed++
		}
		e = next
	}
	return removed
}

// Len reports the current number of stored entries.
func (b *Base) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.order.Len()
}
