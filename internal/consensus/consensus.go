// Package consensus implements the Proof of Population (PoP) consensus
// protocol (C9): per-validator creation/voting/aggregation/timeout/commit
// paths over the message fabric. Grounded on hhy5277-dexon-consensus's
// per-chain BA receiver shape (one Engine instance per validator AS,
// driven by inbound messages plus a timeout goroutine) adapted to the
// teacher's channel/ticker idiom rather than DEXON's DKG/TSIG machinery.
package consensus

import (
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bgp-sentry/pop-simulator/internal/blockstore"
	"github.com/bgp-sentry/pop-simulator/internal/clock"
	"github.com/bgp-sentry/pop-simulator/internal/config"
	"github.com/bgp-sentry/pop-simulator/internal/dedup"
	"github.com/bgp-sentry/pop-simulator/internal/detector"
	"github.com/bgp-sentry/pop-simulator/internal/fabric"
	"github.com/bgp-sentry/pop-simulator/internal/knowledge"
	"github.com/bgp-sentry/pop-simulator/internal/registry"
	"github.com/bgp-sentry/pop-simulator/internal/signer"
	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

// Rewarder is the ledger-facing capability the commit path needs. Kept as
// an interface so this package never imports internal/ledger (avoiding an
// import cycle and keeping the reward policy swappable in tests).
type Rewarder interface {
	AwardCommit(merger models.ASN)
	AwardApprove(voter models.ASN, multiplier float64)
}

// AttackNotifier is the attack-verdict-consensus-facing capability the
// commit path triggers when a committed transaction is an attack.
type AttackNotifier interface {
	OnAttackCommitted(tx models.Transaction)
}

// Stats is the metrics-facing capability the creation path reports
// through, if wired. Kept as an interface (and optional via SetStats)
// so this package never imports internal/metrics directly.
type Stats interface {
	IncTxCreated(merger models.ASN)
	IncDedupSkips(as models.ASN)
	IncAttacksDetected(as models.ASN)
	IncError(kind models.ErrorKind)
}

// Engine is one validator's PoP consensus state machine. Only validator
// ASes (per the Registry) get an Engine; observers never do.
type Engine struct {
	self models.ASN
	cfg  config.Config

	reg    *registry.Registry
	signer *signer.Engine
	fab    *fabric.Fabric
	clk    *clock.Clock
	store  *blockstore.Store

	kb  *knowledge.Base
	ded *dedup.Cache
	det *detector.Detector

	rep      *reputation
	rewarder Rewarder
	attack   AttackNotifier
	stats    Stats

	rng *rand.Rand

	mu        sync.Mutex
	pending   map[string]*txContext
	committed *committedSet

	recompute chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New builds a validator's consensus Engine. It does not register with the
// fabric (see Handle). rep is shared across every validator's Engine in the
// process (reputation is a network-wide property of each voter).
func New(self models.ASN, cfg config.Config, reg *registry.Registry, sig *signer.Engine, fab *fabric.Fabric, clk *clock.Clock, store *blockstore.Store, kb *knowledge.Base, ded *dedup.Cache, det *detector.Detector, rep *reputation, rewarder Rewarder, attack AttackNotifier) *Engine {
	e := &Engine{
		self:      self,
		cfg:       cfg,
		reg:       reg,
		signer:    sig,
		fab:       fab,
		clk:       clk,
		store:     store,
		kb:        kb,
		ded:       ded,
		det:       det,
		rep:       rep,
		rewarder:  rewarder,
		attack:    attack,
		rng:       rand.New(rand.NewSource(int64(self) + 1)),
		pending:   make(map[string]*txContext),
		committed: newCommittedSet(cfg.CommittedMax),
		recompute: make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
	e.wg.Add(1)
	go e.timeoutLoop()
	return e
}

// NewReputationTracker creates the shared, process-wide reputation
// instance passed to every validator's Engine.
func NewReputationTracker() *reputation {
	return newReputation()
}

// SetStats wires an optional metrics sink after construction (the
// orchestrator builds the metrics.Collector after the validator Engines
// it will later report through).
func (e *Engine) SetStats(s Stats) {
	e.stats = s
}

// Stop ends the timeout loop. Idempotent.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.wg.Wait()
}

// Handle dispatches one fabric message addressed to this validator. The
// orchestrator registers this (composed with attackvote's handler) as the
// single per-AS fabric callback — Engine itself does not call
// fabric.Register, since one AS can receive both PoP and attack-verdict
// message kinds and only one handler may be registered per AS.
func (e *Engine) Handle(from models.ASN, msg fabric.Message) {
	switch m := msg.(type) {
	case fabric.VoteRequest:
		e.handleVoteRequest(from, m)
	case fabric.VoteResponse:
		e.handleVoteResponse(from, m)
	case fabric.BlockReplicate:
		// Replica application is the orchestrator/node's concern via
		// blockstore.Replica; the consensus Engine only originates
		// BlockReplicate (see replicate), it does not consume it.
	}
}

// SubmitLocal is submit_local(obs): the creation path, spec.md §4.9.
func (e *Engine) SubmitLocal(obs models.Observation) {
	detection := e.det.Classify(obs)

	if detection.IsAttack() && e.stats != nil {
		e.stats.IncAttacksDetected(e.self)
	}

	now := e.clk.Now()
	if e.ded.ShouldSkip(obs, now, detection.IsAttack()) {
		if e.stats != nil {
			e.stats.IncDedupSkips(e.self)
		}
		return
	}
	if !detection.IsAttack() {
		e.ded.Record(obs, now)
	}
	e.kb.Add(obs.Prefix, obs.OriginASN, obs.Timestamp, 0)

	txID := models.NewTxID(e.self, obs.Timestamp, uuid.NewString())
	tx := models.Transaction{
		TxID:                 txID,
		MergerAS:             e.self,
		ObserverAS:           obs.ObserverAS,
		Prefix:               obs.Prefix,
		OriginASN:            obs.OriginASN,
		ASPath:               obs.ASPath,
		ObservationTimestamp: obs.Timestamp,
		CreatedAt:            time.Now().UTC(),
		IsAttack:             detection.IsAttack(),
		AttackKind:           detection.Kind,
		ConsensusStatus:      models.StatusPending,
	}
	sig, err := e.signer.Sign(e.self, tx.CanonicalPayload())
	if err != nil {
		log.Printf("[Consensus] AS%d: signing tx %s: %v", e.self, txID, err)
		return
	}
	tx.SignatureMerger = sig
	if e.stats != nil {
		e.stats.IncTxCreated(e.self)
	}

	timeout := e.cfg.RegularTimeout
	if tx.IsAttack {
		timeout = e.cfg.AttackTimeout
	}
	deadline := now + int64(math.Ceil(timeout.Seconds()))

	e.mu.Lock()
	e.pending[txID] = newTxContext(tx, deadline)
	e.mu.Unlock()
	e.wake()

	peers := e.reg.PeersOf(e.self, e.cfg.MaxBroadcastPeers, e.rng)
	for _, p := range peers {
		e.rep.recordRequestReceived(p)
	}
	e.fab.Broadcast(e.self, peers, fabric.VoteRequest{Tx: tx})
}

// handleVoteRequest is the voting path, spec.md §4.9.
func (e *Engine) handleVoteRequest(from models.ASN, req fabric.VoteRequest) {
	tx := req.Tx

	e.mu.Lock()
	alreadyCommitted := e.committed.Has(tx.TxID)
	e.mu.Unlock()
	if alreadyCommitted {
		return
	}

	verdict := e.kb.HasCompatible(tx.Prefix, tx.OriginASN)
	if verdict == models.VerdictNoKnowledge {
		// Abstain: no signature, no response sent (spec.md §4.9 step 2).
		return
	}

	payload := models.VoteCanonicalPayload(tx.TxID, e.self, verdict)
	sig, err := e.signer.Sign(e.self, payload)
	if err != nil {
		log.Printf("[Consensus] AS%d: signing vote for %s: %v", e.self, tx.TxID, err)
		return
	}
	e.rep.recordVoteCast(e.self)

	vote := models.Vote{TxID: tx.TxID, VoterAS: e.self, Verdict: verdict, Signature: sig, EmittedAt: time.Now().UTC()}
	e.fab.Send(e.self, from, fabric.VoteResponse{Vote: vote})
}

// handleVoteResponse is the aggregation path, spec.md §4.9.
func (e *Engine) handleVoteResponse(from models.ASN, resp fabric.VoteResponse) {
	vote := resp.Vote

	e.mu.Lock()
	ctx, ok := e.pending[vote.TxID]
	if !ok {
		committed := e.committed.Has(vote.TxID)
		e.mu.Unlock()
		if !committed {
			log.Printf("[Consensus] AS%d: vote for unknown tx %s", e.self, vote.TxID)
			if e.stats != nil {
				e.stats.IncError(models.ErrKindUnknownTx)
			}
		}
		return
	}
	if ctx.voted[vote.VoterAS] {
		e.mu.Unlock()
		if e.stats != nil {
			e.stats.IncError(models.ErrKindReplayVote)
		}
		return // replay
	}

	payload := models.VoteCanonicalPayload(vote.TxID, vote.VoterAS, vote.Verdict)
	if err := e.signer.Verify(vote.VoterAS, vote.Signature, payload); err != nil {
		e.mu.Unlock()
		e.rep.recordBadSignature(vote.VoterAS)
		if e.stats != nil {
			e.stats.IncError(models.ErrKindSignatureInvalid)
		}
		return
	}

	ctx.voted[vote.VoterAS] = true
	ctx.votes = append(ctx.votes, vote)
	switch vote.Verdict {
	case models.VerdictApprove:
		ctx.approvals++
	case models.VerdictReject:
		ctx.rejections++
	case models.VerdictNoKnowledge:
		ctx.noKnowledge++
	}

	shouldCommit := ctx.approvals >= e.reg.Threshold()
	var committedTx models.Transaction
	if shouldCommit {
		committedTx = e.commitLocked(ctx, models.StatusConfirmed)
	}
	e.mu.Unlock()

	if shouldCommit {
		e.afterCommit(committedTx)
	}
}

// timeoutLoop wakes at the nearest pending deadline (or is interrupted
// early by e.recompute when a nearer deadline is registered) and resolves
// every expired entry, spec.md §4.9 "Timeout path".
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
	var expired []string
	for txID, ctx := range e.pending {
		if ctx.deadline <= now {
			expired = append(expired, txID)
		}
	}
	sortTxIDs(expired)

	var toNotify []models.Transaction
	for _, txID := range expired {
		ctx := e.pending[txID]
		var status models.ConsensusStatus
		switch {
		case ctx.approvals >= e.reg.Threshold():
			status = models.StatusConfirmed
		case ctx.approvals >= 1:
			status = models.StatusInsufficientConsensus
		default:
			status = models.StatusSingleWitness
		}
		tx := e.commitLocked(ctx, status)
		toNotify = append(toNotify, tx)
	}
	e.mu.Unlock()

	for _, tx := range toNotify {
		e.afterCommit(tx)
	}
}

// commitLocked performs the commit path (spec.md §4.9) for ctx under
// e.mu, removing it from pending and adding it to the committed set. It
// returns the finalized transaction; ledger rewards and async replication
// are dispatched by the caller outside the lock (afterCommit).
func (e *Engine) commitLocked(ctx *txContext, status models.ConsensusStatus) models.Transaction {
	ctx.tx.ConsensusStatus = status
	ctx.tx.Signatures = ctx.votes

	delete(e.pending, ctx.tx.TxID)
	e.committed.Add(ctx.tx.TxID)

	if status == models.StatusConfirmed {
		e.rep.recordCommit(approversOf(ctx.tx))
	}

	return ctx.tx
}

// afterCommit runs the parts of the commit path that must not hold e.mu:
// pushing the block into the store (and, for attack transactions, the
// secondary verdict pipeline), dispatching BlockReplicate asynchronously,
// and awarding ledger rewards.
func (e *Engine) afterCommit(tx models.Transaction) {
	block, committed := e.store.CommitTransaction(tx)

	// The Store is shared across every validator's Engine, so by the time
	// this goroutine runs, other validators may have appended later
	// blocks — re-reading the tip would replicate the wrong block. Only
	// replicate the block this call actually produced; with BATCH_SIZE >
	// 1, tx may still be pending (committed == false) until a later call
	// or the batch timeout flushes it, which publishes its own block via
	// Store.Commits() instead.
	if committed {
		go e.replicate(block)
	}

	if e.rewarder != nil && tx.ConsensusStatus == models.StatusConfirmed {
		e.rewarder.AwardCommit(tx.MergerAS)
		for _, approver := range approversOf(tx) {
			e.rewarder.AwardApprove(approver, e.rep.Multiplier(approver))
		}
	}

	if tx.IsAttack && e.attack != nil {
		e.attack.OnAttackCommitted(tx)
	}
}

func approversOf(tx models.Transaction) []models.ASN {
	out := make([]models.ASN, 0, len(tx.Signatures))
	for _, v := range tx.Signatures {
		if v.Verdict == models.VerdictApprove {
			out = append(out, v.VoterAS)
		}
	}
	return out
}

// replicate dispatches BlockReplicate to every other validator in the
// background, off the commit critical path (spec.md §4.9 commit path).
func (e *Engine) replicate(block models.Block) {
	for _, v := range e.reg.Validators() {
		if v == e.self {
			continue
		}
		e.fab.Send(e.self, v, fabric.BlockReplicate{Block: block})
	}
}

func sortTxIDs(ids []string) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}
