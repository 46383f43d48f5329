// Package node implements the Node Runtime (C13): one logical runtime per
// AS driving its observation stream through the clock, an ingest buffer
// with probabilistic backpressure, and either the PoP consensus engine
// (validators) or a direct detector-to-rating path (observers).
//
// Grounded on internal/mempool/poller.go's ticker+context feeder loop,
// split into a clock-paced feeder goroutine and a single processing
// goroutine connected by a bounded channel — the same producer/bounded-
// channel/single-consumer shape as internal/api/websocket.go's Hub,
// generalized from a broadcast channel to a per-node ingest buffer.
package node

import (
	"sync"

	"github.com/bgp-sentry/pop-simulator/internal/clock"
	"github.com/bgp-sentry/pop-simulator/internal/config"
	"github.com/bgp-sentry/pop-simulator/internal/consensus"
	"github.com/bgp-sentry/pop-simulator/internal/detector"
	"github.com/bgp-sentry/pop-simulator/internal/rating"
	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

// StatsSink is the metrics-facing capability a runtime reports to. Kept
// as an interface so this package never imports internal/metrics
// directly (same import-cycle-avoidance idiom as consensus.Rewarder).
type StatsSink interface {
	IncObservationsProcessed(as models.ASN)
	IncAttacksDetected(as models.ASN)
	IncBufferDrops(as models.ASN)
}

// Runtime drives one AS's replayed observation stream (spec.md §4.13).
type Runtime struct {
	self        models.ASN
	cfg         config.Config
	clk         *clock.Clock
	isValidator bool

	det    *detector.Detector
	engine *consensus.Engine // nil for observer runtimes
	rater  *rating.Engine
	stats  StatsSink

	buf    chan models.Observation
	policy *BufferPolicy

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a node runtime. engine must be non-nil for validator
// runtimes and nil for observer runtimes.
func New(self models.ASN, cfg config.Config, clk *clock.Clock, isValidator bool, det *detector.Detector, engine *consensus.Engine, rater *rating.Engine, stats StatsSink) *Runtime {
	capacity := cfg.IngestBufferMax
	if capacity < 1 {
		capacity = 1
	}
	return &Runtime{
		self:        self,
		cfg:         cfg,
		clk:         clk,
		isValidator: isValidator,
		det:         det,
		engine:      engine,
		rater:       rater,
		stats:       stats,
		buf:         make(chan models.Observation, capacity),
		policy:      NewBufferPolicy(int64(self) + 1),
		stop:        make(chan struct{}),
	}
}

// Start launches the feeder and processor goroutines over stream. Not
// safe to call twice.
func (r *Runtime) Start(stream []models.Observation) {
	r.wg.Add(2)
	go r.feed(stream)
	go r.process()
}

// Wait blocks until both goroutines have returned, whether because the
// stream was exhausted or Stop was called.
func (r *Runtime) Wait() {
	r.wg.Wait()
}

// Stop signals both goroutines to exit as soon as they next check in.
// Idempotent.
func (r *Runtime) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// feed paces replay against the shared clock, one observation at a
// time, applying the ingest buffer's admission policy before handing
// each observation to the processor (spec.md §4.13 validator pseudocode,
// generalized to both variants since buffering applies to either).
func (r *Runtime) feed(stream []models.Observation) {
	defer r.wg.Done()
	defer close(r.buf)

	for _, obs := range stream {
		select {
		case <-r.stop:
			return
		default:
		}

		if !r.clk.WaitUntil(obs.Timestamp) {
			return // clock shutdown
		}

		if r.policy.ShouldDrop(len(r.buf), cap(r.buf), obs.IsAttackGroundTruth) {
			if r.stats != nil {
				r.stats.IncBufferDrops(r.self)
			}
			continue
		}

		select {
		case r.buf <- obs:
		case <-r.stop:
			return
		}
	}
}

// process is the node's single logical runtime thread (spec.md §5): it
// drains the ingest buffer in order, driving consensus for validators or
// the detector-to-rating path for observers.
func (r *Runtime) process() {
	defer r.wg.Done()
	for {
		select {
		case obs, ok := <-r.buf:
			if !ok {
				return
			}
			r.handle(obs)
		case <-r.stop:
			return
		}
	}
}

func (r *Runtime) handle(obs models.Observation) {
	if r.stats != nil {
		r.stats.IncObservationsProcessed(r.self)
	}

	if r.isValidator {
		r.engine.SubmitLocal(obs)
		return
	}

	detection := r.det.Classify(obs)
	if detection.IsAttack() {
		if r.stats != nil {
			r.stats.IncAttacksDetected(r.self)
		}
		if r.rater != nil {
			r.rater.ApplyPenalty(obs.OriginASN, detection.Kind)
		}
		return
	}
	if r.rater != nil {
		r.rater.RecordLegitimate(obs.OriginASN)
	}
}
