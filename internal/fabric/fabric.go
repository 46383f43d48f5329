// Package fabric is the in-memory Message Fabric (C7): a single
// process-wide asynchronous transport with a bounded worker pool,
// generalized from the teacher's internal/api/websocket.go Hub (one
// broadcaster goroutine over a buffered channel, fanning out to a
// mutex-guarded client map) into N pool workers fed by a sharded job
// queue. Messages between the same (sender, recipient) pair are always
// routed to the same worker and therefore delivered in send order; pairs
// routed to different workers carry no ordering guarantee relative to
// each other, matching spec.md §4.7.
package fabric

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

// Handler processes a message delivered to the node it was registered for.
type Handler func(from models.ASN, msg Message)

type job struct {
	from, to models.ASN
	msg      Message
}

// Fabric is the process-wide message bus.
type Fabric struct {
	queues []chan job

	mu       sync.RWMutex
	handlers map[models.ASN]Handler

	closed int32
	wg     sync.WaitGroup

	sent, delivered, dropped int64
}

// New starts a fabric with the given worker pool size, queueDepth per
// worker queue. Matches spec.md §4.7's default of max(48, 2*cores) — the
// caller (orchestrator) computes that and passes it in.
func New(workers, queueDepth int) *Fabric {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	f := &Fabric{
		queues:   make([]chan job, workers),
		handlers: make(map[models.ASN]Handler),
	}
	for i := range f.queues {
		f.queues[i] = make(chan job, queueDepth)
		f.wg.Add(1)
		go f.runWorker(f.queues[i])
	}
	return f
}

// Register installs the handler a node uses to receive messages addressed
// to it. Re-registering the same AS replaces its handler.
func (f *Fabric) Register(as models.ASN, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[as] = h
}

// Send delivers msg from -> to asynchronously. If the fabric is shut down
// or to has no registered handler, the message is dropped and counted.
func (f *Fabric) Send(from, to models.ASN, msg Message) {
	if atomic.LoadInt32(&f.closed) != 0 {
		atomic.AddInt64(&f.dropped, 1)
		return
	}
	atomic.AddInt64(&f.sent, 1)
	q := f.queues[workerIndex(from, to, len(f.queues))]
	select {
	case q <- job{from: from, to: to, msg: msg}:
	default:
		atomic.AddInt64(&f.dropped, 1)
	}
}

// Broadcast sends msg from -> each AS in subset.
func (f *Fabric) Broadcast(from models.ASN, subset []models.ASN, msg Message) {
	for _, to := range subset {
		f.Send(from, to, msg)
	}
}

func (f *Fabric) runWorker(q chan job) {
	defer f.wg.Done()
	for j := range q {
		f.mu.RLock()
		h, ok := f.handlers[j.to]
		f.mu.RUnlock()
		if !ok {
			atomic.AddInt64(&f.dropped, 1)
			continue
		}
		h(j.from, j.msg)
		atomic.AddInt64(&f.delivered, 1)
	}
}

// Shutdown stops accepting new sends, closes every worker queue, and waits
// for in-flight messages to drain up to ctx's deadline.
func (f *Fabric) Shutdown(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&f.closed, 0, 1) {
		return nil
	}
	for _, q := range f.queues {
		close(q)
	}
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the fabric's monotone counters.
func (f *Fabric) Stats() models.FabricStats {
	return models.FabricStats{
		Sent:        uint64(atomic.LoadInt64(&f.sent)),
		Delivered:   uint64(atomic.LoadInt64(&f.delivered)),
		Dropped:     uint64(atomic.LoadInt64(&f.dropped)),
		LastUpdated: time.Now(),
	}
}

// workerIndex deterministically maps a (from, to) pair onto one of n
// worker queues so every message between the same pair serializes through
// the same FIFO channel.
func workerIndex(from, to models.ASN, n int) int {
	h := uint64(from)*1000003 + uint64(to)
	return int(h % uint64(n))
}
