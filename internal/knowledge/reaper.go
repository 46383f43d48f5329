package knowledge

import (
	"sync"
	"time"
)

// Reaper periodically evicts stale entries from a registered set of
// knowledge bases using a single goroutine and ticker, instead of one
// per-node timer (spec.md §9), grounded on internal/api/ratelimit.go's
// cleanupLoop.
type Reaper struct {
	period time.Duration

	mu    sync.Mutex
	bases []*Base

	stop chan struct{}
	once sync.Once
}

// NewReaper creates a reaper that sweeps every registered base each period.
func NewReaper(period time.Duration) *Reaper {
	return &Reaper{period: period, stop: make(chan struct{})}
}

// Register adds a base to the sweep set.
func (r *Reaper) Register(b *Base) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bases = append(r.bases, b)
}

// Run blocks, sweeping every period until Stop is called. Intended to be
// launched in its own goroutine by the orchestrator.
func (r *Reaper) Run() {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			bases := make([]*Base, len(r.bases))
			copy(bases, r.bases)
			r.mu.Unlock()
			for _, b := range bases {
				b.Evict()
			}
		}
	}
}

// Stop ends the sweep loop.
func (r *Reaper) Stop() {
	r.once.Do(func() { close(r.stop) })
}
