// Package orchestrator is the simulation entrypoint (C14): it builds
// every singleton (fabric, registry, block store, ledger, rating
// engine, metrics collector) plus one node.Runtime per AS, starts them
// against a replayed models.Dataset, waits for exhaustion or a deadline,
// and emits a final models.BlockchainSnapshot.
//
// Grounded on cmd/engine/main.go's construct-wire-start sequence
// (db -> bitcoin client -> websocket hub -> poller/scanner -> router),
// generalized from a long-lived HTTP service startup to a bounded
// simulation run: the orchestrator owns the same "build every
// collaborator, thread one context.Context through everything, defer
// every Shutdown" shape, just with a start/run/drain lifecycle instead
// of r.Run(":port").
package orchestrator

import (
	"context"
	"log"
	"math"
	"runtime"
	"time"

	"github.com/bgp-sentry/pop-simulator/internal/attackvote"
	"github.com/bgp-sentry/pop-simulator/internal/blockstore"
	"github.com/bgp-sentry/pop-simulator/internal/clock"
	"github.com/bgp-sentry/pop-simulator/internal/config"
	"github.com/bgp-sentry/pop-simulator/internal/consensus"
	"github.com/bgp-sentry/pop-simulator/internal/dedup"
	"github.com/bgp-sentry/pop-simulator/internal/detector"
	"github.com/bgp-sentry/pop-simulator/internal/fabric"
	"github.com/bgp-sentry/pop-simulator/internal/knowledge"
	"github.com/bgp-sentry/pop-simulator/internal/ledger"
	"github.com/bgp-sentry/pop-simulator/internal/metrics"
	"github.com/bgp-sentry/pop-simulator/internal/node"
	"github.com/bgp-sentry/pop-simulator/internal/rating"
	"github.com/bgp-sentry/pop-simulator/internal/registry"
	"github.com/bgp-sentry/pop-simulator/internal/signer"
	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

// fabricQueueDepth is the per-worker job queue depth, matching the
// teacher's Hub broadcast channel capacity in internal/api/websocket.go.
const fabricQueueDepth = 256

// fabricWorkerCount resolves cfg.FabricWorkers == 0 to spec.md §4.7's
// documented default of max(48, 2*GOMAXPROCS).
func fabricWorkerCount(cfg config.Config) int {
	if cfg.FabricWorkers > 0 {
		return cfg.FabricWorkers
	}
	if n := 2 * runtime.GOMAXPROCS(0); n > 48 {
		return n
	}
	return 48
}

// Orchestrator owns every process-wide singleton and per-AS runtime for
// one simulation run.
type Orchestrator struct {
	cfg config.Config

	clk     *clock.Clock
	reg     *registry.Registry
	fab     *fabric.Fabric
	store   *blockstore.Store
	ledger  *ledger.Ledger
	rater   *rating.Engine
	metrics *metrics.Collector
	reaper  *knowledge.Reaper

	consensusEngines map[models.ASN]*consensus.Engine
	attackEngines    map[models.ASN]*attackvote.Engine
	replicas         map[models.ASN]*blockstore.Replica
	runtimes         map[models.ASN]*node.Runtime
	streams          map[models.ASN][]models.Observation
}

// New builds every collaborator and runtime but starts nothing.
// persistPath, if non-empty, enables the block store's snapshot writer.
func New(cfg config.Config, ds models.Dataset, persistPath string) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := registry.New(ds.Classification, cfg.TMin, cfg.TCap)

	sig, err := signer.NewEngine(reg.Validators())
	if err != nil {
		return nil, err
	}

	fab := fabric.New(fabricWorkerCount(cfg), fabricQueueDepth)
	clk := clock.New(ds.Span.Start, cfg.SpeedMultiplier)
	store := blockstore.New(cfg, persistPath)
	genesis := store.Genesis()

	ledg := ledger.New(cfg)
	rater := rating.New(cfg, clk.Now)
	met := metrics.New(cfg, fab, store)
	reaper := knowledge.NewReaper(cfg.KBCleanup)

	rules, err := detector.NewStaticRules(ds.VRP)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:              cfg,
		clk:              clk,
		reg:              reg,
		fab:              fab,
		store:            store,
		ledger:           ledg,
		rater:            rater,
		metrics:          met,
		reaper:           reaper,
		consensusEngines: make(map[models.ASN]*consensus.Engine, len(reg.Validators())),
		attackEngines:    make(map[models.ASN]*attackvote.Engine, len(reg.Validators())),
		replicas:         make(map[models.ASN]*blockstore.Replica, len(reg.Validators())),
		runtimes:         make(map[models.ASN]*node.Runtime, len(ds.Streams)),
		streams:          ds.Streams,
	}

	rep := consensus.NewReputationTracker()

	for _, v := range reg.Validators() {
		kb := knowledge.New(cfg.KBWindow, cfg.KBMax, clk.Now)
		reaper.Register(kb)
		ded := dedup.New(cfg.RPKIWindow, cfg.DedupMax)
		det := detector.New(rules, cfg)

		replica := blockstore.NewReplica(v)
		if err := replica.ApplyReplicated(genesis); err != nil {
			return nil, err
		}

		attackEng := attackvote.New(v, cfg, reg, fab, clk, store, det, ledg, rater)
		consEng := consensus.New(v, cfg, reg, sig, fab, clk, store, kb, ded, det, rep, ledg, attackEng)
		consEng.SetStats(met)

		o.consensusEngines[v] = consEng
		o.attackEngines[v] = attackEng
		o.replicas[v] = replica

		fab.Register(v, o.composeHandler(replica, consEng, attackEng))

		o.runtimes[v] = node.New(v, cfg, clk, true, det, consEng, rater, met)
	}

	for _, a := range reg.Observers() {
		det := detector.New(rules, cfg)
		o.runtimes[a] = node.New(a, cfg, clk, false, det, nil, rater, met)
	}

	go reaper.Run()
	met.Start()

	return o, nil
}

// composeHandler is the single fabric.Handler registered per validator
// AS (fabric.Register accepts only one handler per AS): it applies
// BlockReplicate to that validator's Replica first, then fans the same
// message out to the PoP consensus Engine and the attack-verdict Engine,
// each of which ignores message kinds it doesn't own.
func (o *Orchestrator) composeHandler(replica *blockstore.Replica, consEng *consensus.Engine, attackEng *attackvote.Engine) fabric.Handler {
	return func(from models.ASN, msg fabric.Message) {
		if br, ok := msg.(fabric.BlockReplicate); ok {
			if err := replica.ApplyReplicated(br.Block); err != nil {
				if o.metrics != nil {
					o.metrics.IncError(models.ErrKindChainDivergence)
				}
			}
		}
		consEng.Handle(from, msg)
		attackEng.Handle(from, msg)
	}
}

// Run starts every node.Runtime against its dataset stream, blocks until
// every stream is exhausted and the transactions still pending by then
// have reached their consensus deadlines, or until ctx is cancelled
// (spec.md §4.14's "dataset exhaustion or deadline"), then drains the
// fabric and returns the final snapshot. Run is not safe to call twice.
func (o *Orchestrator) Run(ctx context.Context) models.BlockchainSnapshot {
	for as, rt := range o.runtimes {
		rt.Start(o.streams[as])
	}

	done := make(chan struct{})
	go func() {
		for _, rt := range o.runtimes {
			rt.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		// Transactions created near the end of the streams, and the attack
		// verdicts they trigger, may still be collecting votes: wait on the
		// logical clock until all of them have reached their deadlines.
		grace := o.cfg.RegularTimeout + 2*o.cfg.AttackTimeout + time.Second
		settled := make(chan struct{})
		go func() {
			o.clk.WaitUntil(o.clk.Now() + int64(math.Ceil(grace.Seconds())))
			close(settled)
		}()
		select {
		case <-settled:
		case <-ctx.Done():
		}
	case <-ctx.Done():
		log.Printf("[Orchestrator] deadline reached, signalling shutdown")
		for _, rt := range o.runtimes {
			rt.Stop()
		}
		<-done
	}

	o.Shutdown()
	return o.Snapshot()
}

// Shutdown stops every validator engine, the knowledge-base reaper, the
// metrics sampler, and drains the fabric. Idempotent per component
// (each Stop() is itself idempotent).
func (o *Orchestrator) Shutdown() {
	for _, eng := range o.consensusEngines {
		eng.Stop()
	}
	for _, eng := range o.attackEngines {
		eng.Stop()
	}
	o.reaper.Stop()
	o.metrics.Stop()
	o.clk.Shutdown()

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.fab.Shutdown(drainCtx); err != nil {
		log.Printf("[Orchestrator] fabric drain: %v", err)
	}
}

// Snapshot assembles the external, top-level BlockchainSnapshot
// (spec.md §6): the primary chain re-verified from genesis, plus every
// validator replica's divergence-free status.
func (o *Orchestrator) Snapshot() models.BlockchainSnapshot {
	blocks := o.store.Blocks()
	wire := make([]models.Wire, len(blocks))
	for i, b := range blocks {
		wire[i] = b.ToWire()
	}

	integrity := o.store.VerifyIntegrity()

	validity := make(map[models.ASN]bool, len(o.replicas))
	for as, r := range o.replicas {
		validity[as] = r.Status().Divergences == 0
	}

	return models.BlockchainSnapshot{
		Blocks:          wire,
		IntegrityOK:     integrity.OK,
		IntegrityErrors: integrity.Errors,
		ReplicaValidity: validity,
	}
}

// Metrics returns the process-wide metrics collector for callers that
// want a live snapshot mid-run or after Run returns.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Ledger returns the process-wide token ledger.
func (o *Orchestrator) Ledger() *ledger.Ledger {
	return o.ledger
}

// Rating returns the process-wide trust rating engine.
func (o *Orchestrator) Rating() *rating.Engine {
	return o.rater
}

// Store returns the process-wide block store, for callers (e.g.
// internal/telemetry) that need chain height alongside the metrics
// collector.
func (o *Orchestrator) Store() *blockstore.Store {
	return o.store
}
