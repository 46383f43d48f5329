// Package attackvote implements the secondary Attack-Verdict Consensus
// (C10): when a validator's PoP engine commits a transaction flagged
// is_attack, it broadcasts an AttackProposal and collects peer
// AttackVotes, resolving to CONFIRMED/NOT_ATTACK/DISPUTED. Structured as
// one Engine per validator AS, mirroring internal/consensus's per-chain
// receiver shape (hhy5277-dexon-consensus's core/consensus.go lineage).
package attackvote

import (
	"log"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/bgp-sentry/pop-simulator/internal/blockstore"
	"github.com/bgp-sentry/pop-simulator/internal/clock"
	"github.com/bgp-sentry/pop-simulator/internal/config"
	"github.com/bgp-sentry/pop-simulator/internal/detector"
	"github.com/bgp-sentry/pop-simulator/internal/fabric"
	"github.com/bgp-sentry/pop-simulator/internal/registry"
	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

// Ledger is the treasury-facing capability this package needs. Kept as an
// interface so attackvote never imports internal/ledger directly (same
// import-cycle-avoidance idiom as internal/consensus.Rewarder).
type Ledger interface {
	AwardAttackDetection(proposer models.ASN)
	AwardAttackVote(voter models.ASN)
}

// Rater is the trust-rating-facing capability the verdict outcome drives.
type Rater interface {
	ApplyPenalty(attacker models.ASN, kind models.AttackKind)
	PenalizeFalseReport(proposer models.ASN)
}

// Engine is one validator's attack-verdict consensus state machine. Only
// the validator that proposed (i.e. committed) a transaction tracks its
// verdictContext; every other validator just answers AttackProposal.
type Engine struct {
	self models.ASN
	cfg  config.Config

	reg   *registry.Registry
	fab   *fabric.Fabric
	clk   *clock.Clock
	store *blockstore.Store
	det   *detector.Detector

	ledger Ledger
	rater  Rater

	mu      sync.Mutex
	pending map[string]*verdictContext

	recompute chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New builds a validator's attack-verdict Engine. It is not registered
// with the fabric by this constructor — the orchestrator composes
// Engine.Handle with consensus.Engine.Handle into one per-AS registration.
func New(self models.ASN, cfg config.Config, reg *registry.Registry, fab *fabric.Fabric, clk *clock.Clock, store *blockstore.Store, det *detector.Detector, ledger Ledger, rater Rater) *Engine {
	e := &Engine{
		self:      self,
		cfg:       cfg,
		reg:       reg,
		fab:       fab,
		clk:       clk,
		store:     store,
		det:       det,
		ledger:    ledger,
		rater:     rater,
		pending:   make(map[string]*verdictContext),
		recompute: make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
	e.wg.Add(1)
	go e.timeoutLoop()
	return e
}

// Stop ends the timeout loop. Idempotent.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.wg.Wait()
}

// Handle dispatches one fabric message addressed to this validator's
// attack-verdict consensus.
func (e *Engine) Handle(from models.ASN, msg fabric.Message) {
	switch m := msg.(type) {
	case fabric.AttackProposal:
		e.handleAttackProposal(from, m)
	case fabric.AttackVote:
		e.handleAttackVote(from, m)
	}
}

// OnAttackCommitted implements consensus.AttackNotifier: it starts the
// secondary verdict vote for a just-committed is_attack transaction
// (spec.md §4.10). Called from the PoP engine's own AS, so self == the
// transaction's proposer.
func (e *Engine) OnAttackCommitted(tx models.Transaction) {
	deadline := e.clk.Now() + int64(math.Ceil(e.cfg.AttackTimeout.Seconds()))

	e.mu.Lock()
	e.pending[tx.TxID] = newVerdictContext(tx, deadline)
	e.mu.Unlock()
	e.wake()

	var peers []models.ASN
	for _, v := range e.reg.Validators() {
		if v != e.self {
			peers = append(peers, v)
		}
	}
	e.fab.Broadcast(e.self, peers, fabric.AttackProposal{Tx: tx})
}

// handleAttackProposal re-runs this validator's own detector over the
// proposal's observation and casts YES if it independently agrees the
// observation is an attack, NO otherwise (spec.md §4.10: "Peers vote
// YES/NO based on their own attack detector run on the same observation").
func (e *Engine) handleAttackProposal(from models.ASN, prop fabric.AttackProposal) {
	tx := prop.Tx
	obs := models.Observation{
		ObserverAS: tx.ObserverAS,
		Prefix:     tx.Prefix,
		OriginASN:  tx.OriginASN,
		ASPath:     tx.ASPath,
		Timestamp:  tx.ObservationTimestamp,
		State:      models.StateAnnounce,
	}
	detection := e.det.Classify(obs)

	vote := fabric.AttackVote{TxID: tx.TxID, Yes: detection.IsAttack()}
	e.fab.Send(e.self, from, vote)
}

// handleAttackVote is the aggregation path: records a peer's vote and
// resolves once ATTACK_CONSENSUS_MIN_VOTES is reached.
func (e *Engine) handleAttackVote(from models.ASN, vote fabric.AttackVote) {
	e.mu.Lock()
	ctx, ok := e.pending[vote.TxID]
	if !ok {
		e.mu.Unlock()
		return
	}
	if ctx.voted[from] {
		e.mu.Unlock()
		return // replay
	}
	ctx.voted[from] = true
	if vote.Yes {
		ctx.yes++
		ctx.yesVoters = append(ctx.yesVoters, from)
	} else {
		ctx.no++
	}

	total := ctx.yes + ctx.no
	var resolved *verdictContext
	if total >= e.cfg.AttackConsensusMinVotes {
		delete(e.pending, vote.TxID)
		resolved = ctx
	}
	e.mu.Unlock()

	if resolved != nil {
		e.resolve(resolved)
	}
}

// timeoutLoop mirrors internal/consensus's wake-on-recompute pattern.
func (e *Engine) timeoutLoop() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		deadline, ok := e.earliestDeadlineLocked()
		e.mu.Unlock()

		if !ok {
			select {
			case <-e.recompute:
				continue
			case <-e.stop:
				return
			}
		}

		done := make(chan bool, 1)
		go func() { done <- e.clk.WaitUntil(deadline) }()

		select {
		case reached := <-done:
			if !reached {
				return
			}
			e.processExpired()
		case <-e.recompute:
			continue
		case <-e.stop:
			return
		}
	}
}

func (e *Engine) earliestDeadlineLocked() (int64, bool) {
	best := int64(0)
	found := false
	for _, ctx := range e.pending {
		if !found || ctx.deadline < best {
			best = ctx.deadline
			found = true
		}
	}
	return best, found
}

func (e *Engine) wake() {
	select {
	case e.recompute <- struct{}{}:
	default:
	}
}

func (e *Engine) processExpired() {
	now := e.clk.Now()

	e.mu.Lock()
	var expired []*verdictContext
	for txID, ctx := range e.pending {
		if ctx.deadline <= now {
			expired = append(expired, ctx)
			delete(e.pending, txID)
		}
	}
	e.mu.Unlock()

	for _, ctx := range expired {
		e.resolve(ctx)
	}
}

// resolve applies the majority-vote outcome (spec.md §4.10), writes the
// attack_verdict block, and dispatches rating/ledger side effects.
func (e *Engine) resolve(ctx *verdictContext) {
	tx := ctx.tx
	total := ctx.yes + ctx.no

	var outcome models.AttackVerdictOutcome
	var confidence float64
	switch {
	case total == 0:
		outcome = models.OutcomeDisputed
	case ctx.yes > ctx.no:
		outcome = models.OutcomeConfirmed
		confidence = float64(ctx.yes) / float64(total)
	case ctx.no > ctx.yes:
		outcome = models.OutcomeNotAttack
	default:
		outcome = models.OutcomeDisputed
	}

	voters := make([]models.ASN, 0, len(ctx.voted))
	for as := range ctx.voted {
		voters = append(voters, as)
	}

	verdict := models.AttackVerdict{
		VerdictID:    models.NewVerdictID(e.self, tx.Prefix, uuid.NewString()),
		AttackKind:   tx.AttackKind,
		AttackerAS:   tx.OriginASN,
		VictimPrefix: tx.Prefix,
		ProposerAS:   tx.MergerAS,
		YesCount:     ctx.yes,
		NoCount:      ctx.no,
		Voters:       voters,
		Confidence:   confidence,
		Outcome:      outcome,
	}

	switch outcome {
	case models.OutcomeConfirmed:
		if e.rater != nil {
			e.rater.ApplyPenalty(tx.OriginASN, tx.AttackKind)
		}
		if e.ledger != nil {
			e.ledger.AwardAttackDetection(tx.MergerAS)
			for _, voter := range ctx.yesVoters {
				e.ledger.AwardAttackVote(voter)
			}
		}
	case models.OutcomeNotAttack:
		if e.rater != nil {
			e.rater.PenalizeFalseReport(tx.MergerAS)
		}
	case models.OutcomeDisputed:
		// Record only, per spec.md §4.10 — no reward or penalty.
	}

	block := e.store.CommitAttackVerdict(verdict)
	log.Printf("[AttackVote] AS%d: verdict %s for tx %s -> %s (block %d)", e.self, verdict.VerdictID, tx.TxID, outcome, block.BlockNumber)

	go e.replicate(block)
}

// replicate dispatches the attack_verdict block to every other validator's
// replica, the same BlockReplicate fan-out internal/consensus uses for its
// own commits (consensus.go's replicate) — block numbers are assigned
// monotonically on the one shared primary Store, so skipping this would
// leave every other replica permanently rejecting every later block.
func (e *Engine) replicate(block models.Block) {
	for _, v := range e.reg.Validators() {
		if v == e.self {
			continue
		}
		e.fab.Send(e.self, v, fabric.BlockReplicate{Block: block})
	}
}
