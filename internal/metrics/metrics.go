// Package metrics implements the Metrics Collector (C15): monotone
// per-node and per-fabric counters plus a periodically-sampled TPS/lag
// time series.
//
// Grounded on internal/heuristics/alert_system.go's counters-plus-
// periodic-sweep shape (a mutex-guarded map of running counts, refreshed
// by a ticker-driven background goroutine), adapted from alert severity
// tallies to simulation throughput counters.
package metrics

import (
	"sync"
	"time"

	"github.com/bgp-sentry/pop-simulator/internal/blockstore"
	"github.com/bgp-sentry/pop-simulator/internal/config"
	"github.com/bgp-sentry/pop-simulator/internal/fabric"
	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

// Collector is the process-wide metrics sink. It satisfies both
// node.StatsSink and consensus.Stats structurally, so node runtimes and
// consensus Engines can report through the same instance without this
// package importing either.
type Collector struct {
	cfg   config.Config
	fab   *fabric.Fabric
	store *blockstore.Store

	mu    sync.Mutex
	nodes map[models.ASN]*models.PerNodeStats

	errMu  sync.Mutex
	errors map[models.ErrorKind]uint64

	seriesMu     sync.Mutex
	series       []models.TPSSample
	lastTxCount  int
	lastSampleAt time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a collector. fab and store are read-only references used
// for fabric counters and the TPS/lag sampler.
func New(cfg config.Config, fab *fabric.Fabric, store *blockstore.Store) *Collector {
	return &Collector{
		cfg:          cfg,
		fab:          fab,
		store:        store,
		nodes:        make(map[models.ASN]*models.PerNodeStats),
		errors:       make(map[models.ErrorKind]uint64),
		lastSampleAt: time.Now(),
	}
}

// Start launches the periodic TPS/lag sampler (spec.md §4.15 "Periodic
// sampling (every METRICS_PERIOD)").
func (c *Collector) Start() {
	c.stop = make(chan struct{})
	c.wg.Add(1)
	go c.sampleLoop()
}

// Stop ends the sampler. Idempotent.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		if c.stop != nil {
			close(c.stop)
		}
	})
	c.wg.Wait()
}

func (c *Collector) entry(as models.ASN) *models.PerNodeStats {
	e, ok := c.nodes[as]
	if !ok {
		e = &models.PerNodeStats{AS: as}
		c.nodes[as] = e
	}
	return e
}

// IncObservationsProcessed implements node.StatsSink.
func (c *Collector) IncObservationsProcessed(as models.ASN) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(as)
	e.ObservationsProcessed++
	e.LastUpdated = time.Now().UTC()
}

// IncAttacksDetected implements both node.StatsSink and consensus.Stats.
func (c *Collector) IncAttacksDetected(as models.ASN) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(as)
	e.AttacksDetected++
	e.LastUpdated = time.Now().UTC()
}

// IncBufferDrops implements node.StatsSink.
func (c *Collector) IncBufferDrops(as models.ASN) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(as)
	e.BufferDrops++
	e.LastUpdated = time.Now().UTC()
}

// IncTxCreated implements consensus.Stats.
func (c *Collector) IncTxCreated(merger models.ASN) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(merger)
	e.TxCreated++
	e.LastUpdated = time.Now().UTC()
}

// IncDedupSkips implements consensus.Stats.
func (c *Collector) IncDedupSkips(as models.ASN) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(as)
	e.DedupSkips++
	e.LastUpdated = time.Now().UTC()
}

// IncError implements consensus.Stats (and is reused by any other
// component wired with this collector): it tallies the closed
// models.ErrorKind enum (spec.md §7), the single place those ten kinds'
// counters live.
func (c *Collector) IncError(kind models.ErrorKind) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	c.errors[kind]++
}

// ErrorCounts returns a snapshot of every observed error kind's count.
func (c *Collector) ErrorCounts() map[models.ErrorKind]uint64 {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	out := make(map[models.ErrorKind]uint64, len(c.errors))
	for k, v := range c.errors {
		out[k] = v
	}
	return out
}

// NodeStats returns a snapshot of one AS's counters.
func (c *Collector) NodeStats(as models.ASN) models.PerNodeStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.entry(as)
}

// AllNodeStats returns a snapshot of every tracked AS's counters.
func (c *Collector) AllNodeStats() map[models.ASN]models.PerNodeStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[models.ASN]models.PerNodeStats, len(c.nodes))
	for as, e := range c.nodes {
		out[as] = *e
	}
	return out
}

// FabricStats returns the message fabric's sent/delivered/dropped counters.
func (c *Collector) FabricStats() models.FabricStats {
	return c.fab.Stats()
}

// ConsensusLog tallies terminal PoP outcomes by walking the committed
// chain (spec.md §6). Cheap relative to consensus/commit work, so no
// separate push-counter is maintained for it.
func (c *Collector) ConsensusLog() models.ConsensusLog {
	var log models.ConsensusLog
	for _, b := range c.store.Blocks() {
		for _, tx := range b.Transactions {
			switch tx.ConsensusStatus {
			case models.StatusConfirmed:
				log.Confirmed++
			case models.StatusInsufficientConsensus:
				log.InsufficientConsensus++
			case models.StatusSingleWitness:
				log.SingleWitness++
			case models.StatusTimedOut:
				log.TimedOut++
			}
		}
	}
	return log
}

// Series returns a snapshot of the TPS/lag time series collected so far.
func (c *Collector) Series() []models.TPSSample {
	c.seriesMu.Lock()
	defer c.seriesMu.Unlock()
	return append([]models.TPSSample(nil), c.series...)
}

func (c *Collector) sampleLoop() {
	defer c.wg.Done()
	period := c.cfg.MetricsPeriod
	if period <= 0 {
		period = 5 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sampleOnce()
		case <-c.stop:
			return
		}
	}
}

// sampleOnce appends one TPS/lag sample. TPS is committed-transaction
// throughput over the wall-clock interval since the last sample; lag is
// how stale the chain tip is (time since the latest block was appended),
// a proxy for how far consensus is falling behind real-time replay.
func (c *Collector) sampleOnce() {
	blocks := c.store.Blocks()
	txCount := 0
	for _, b := range blocks {
		txCount += len(b.Transactions)
	}

	now := time.Now()

	c.seriesMu.Lock()
	elapsed := now.Sub(c.lastSampleAt).Seconds()
	var tps float64
	if elapsed > 0 {
		tps = float64(txCount-c.lastTxCount) / elapsed
	}
	var lag float64
	if len(blocks) > 0 {
		lag = now.Sub(blocks[len(blocks)-1].CreatedAt).Seconds()
	}
	c.series = append(c.series, models.TPSSample{At: now.UTC(), TPS: tps, LagSecs: lag})
	c.lastTxCount = txCount
	c.lastSampleAt = now
	c.seriesMu.Unlock()
}
