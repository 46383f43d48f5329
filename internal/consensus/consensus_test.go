package consensus

import (
	"context"
	"sync"
	"testing"
	"time"

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

const cleanPrefix = "93.184.216.0/24"

type fakeRewarder struct {
	mu        sync.Mutex
	commits   []models.ASN
	approvals []models.ASN
}

func (f *fakeRewarder) AwardCommit(merger models.ASN) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, merger)
}

func (f *fakeRewarder) AwardApprove(voter models.ASN, multiplier float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvals = append(f.approvals, voter)
}

type fakeAttackNotifier struct {
	mu  sync.Mutex
	txs []models.Transaction
}

func (f *fakeAttackNotifier) OnAttackCommitted(tx models.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, tx)
}

// testNetwork wires up N validators sharing a registry/fabric/store/clock,
// mirroring the orchestrator's wiring for just the consensus subsystem.
type testNetwork struct {
	cfg      config.Config
	reg      *registry.Registry
	sig      *signer.Engine
	fab      *fabric.Fabric
	clk      *clock.Clock
	store    *blockstore.Store
	rewarder *fakeRewarder
	notifier *fakeAttackNotifier
	engines  map[models.ASN]*Engine
}

func newTestNetwork(t *testing.T, validators []models.ASN) *testNetwork {
	t.Helper()
	cfg := config.Default()
	cfg.MaxBroadcastPeers = len(validators)
	cfg.RegularTimeout = 300 * time.Millisecond
	cfg.AttackTimeout = 500 * time.Millisecond

	classification := make(models.Classification, len(validators))
	for _, v := range validators {
		classification[v] = true
	}
	reg := registry.New(classification, cfg.TMin, cfg.TCap)

	sig, err := signer.NewEngine(validators)
	if err != nil {
		t.Fatalf("signer.NewEngine: %v", err)
	}

	fab := fabric.New(8, 64)
	t.Cleanup(func() { fab.Shutdown(context.Background()) })

	clk := clock.New(1000, 1) // real-time pacing keeps deadline math simple in tests
	t.Cleanup(clk.Shutdown)

	store := blockstore.New(cfg, "")
	store.Genesis()

	vrp := models.VRPTable{cleanPrefix: models.ASN(9999)}
	rules, err := detector.NewStaticRules(vrp)
	if err != nil {
		t.Fatalf("NewStaticRules: %v", err)
	}

	rewarder := &fakeRewarder{}
	notifier := &fakeAttackNotifier{}
	rep := NewReputationTracker()

	net := &testNetwork{cfg: cfg, reg: reg, sig: sig, fab: fab, clk: clk, store: store, rewarder: rewarder, notifier: notifier, engines: make(map[models.ASN]*Engine)}

	for _, v := range validators {
		kb := knowledge.New(cfg.KBWindow, cfg.KBMax, clk.Now)
		ded := dedup.New(cfg.RPKIWindow, cfg.DedupMax)
		det := detector.New(rules, cfg)
		eng := New(v, cfg, reg, sig, fab, clk, store, kb, ded, det, rep, rewarder, notifier)
		fab.Register(v, eng.Handle)
		net.engines[v] = eng
		t.Cleanup(eng.Stop)
	}

	return net
}

func (n *testNetwork) primeKnowledge(prefix string, origin models.ASN, at int64) {
	for _, eng := range n.engines {
		eng.kb.Add(prefix, origin, at, 0)
	}
}

func TestSubmitLocalReachesConsensusAndCommits(t *testing.T) {
	validators := []models.ASN{1, 2, 3, 4, 5}
	net := newTestNetwork(t, validators)

	origin := models.ASN(9999)
	net.primeKnowledge(cleanPrefix, origin, net.clk.Now())

	obs := models.Observation{
		ObserverAS: models.ASN(1),
		Prefix:     cleanPrefix,
		OriginASN:  origin,
		Timestamp:  net.clk.Now(),
		State:      models.StateAnnounce,
	}
	net.engines[models.ASN(1)].SubmitLocal(obs)

	deadline := time.After(2 * time.Second)
	for {
		blocks := net.store.Blocks()
		if len(blocks) >= 2 {
			if blocks[1].Transactions[0].ConsensusStatus != models.StatusConfirmed {
				t.Fatalf("ConsensusStatus = %v, want CONFIRMED", blocks[1].Transactions[0].ConsensusStatus)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("transaction never committed, chain height = %d", len(blocks))
		case <-time.After(10 * time.Millisecond):
		}
	}

	net.rewarder.mu.Lock()
	defer net.rewarder.mu.Unlock()
	if len(net.rewarder.commits) != 1 || net.rewarder.commits[0] != models.ASN(1) {
		t.Fatalf("commits = %v, want [1]", net.rewarder.commits)
	}
	if len(net.rewarder.approvals) == 0 {
		t.Fatal("expected at least one approve-vote reward")
	}
}

func TestSubmitLocalWithNoKnowledgeTimesOutSingleWitness(t *testing.T) {
	validators := []models.ASN{1, 2, 3}
	net := newTestNetwork(t, validators)
	// No priming: every peer has NO_KNOWLEDGE and abstains.

	obs := models.Observation{
		ObserverAS: models.ASN(1),
		Prefix:     cleanPrefix,
		OriginASN:  models.ASN(9999),
		Timestamp:  net.clk.Now(),
		State:      models.StateAnnounce,
	}
	net.engines[models.ASN(1)].SubmitLocal(obs)

	deadline := time.After(2 * time.Second)
	for {
		blocks := net.store.Blocks()
		if len(blocks) >= 2 {
			status := blocks[1].Transactions[0].ConsensusStatus
			if status != models.StatusSingleWitness {
				t.Fatalf("ConsensusStatus = %v, want SINGLE_WITNESS", status)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("transaction never resolved by timeout, chain height = %d", len(blocks))
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestVoteReplayIsIgnored(t *testing.T) {
	validators := []models.ASN{1, 2, 3}
	net := newTestNetwork(t, validators)
	net.primeKnowledge(cleanPrefix, models.ASN(9999), net.clk.Now())

	obs := models.Observation{
		ObserverAS: models.ASN(1),
		Prefix:     cleanPrefix,
		OriginASN:  models.ASN(9999),
		Timestamp:  net.clk.Now(),
		State:      models.StateAnnounce,
	}

	merger := net.engines[models.ASN(1)]
	merger.SubmitLocal(obs)

	time.Sleep(50 * time.Millisecond)

	merger.mu.Lock()
	var ctx *txContext
	for _, c := range merger.pending {
		ctx = c
	}
	merger.mu.Unlock()
	if ctx == nil {
		t.Skip("transaction already committed before replay could be tested")
	}

	sig, _ := net.sig.Sign(models.ASN(2), models.VoteCanonicalPayload(ctx.tx.TxID, models.ASN(2), models.VerdictApprove))
	dup := models.Vote{TxID: ctx.tx.TxID, VoterAS: models.ASN(2), Verdict: models.VerdictApprove, Signature: sig}
	merger.handleVoteResponse(models.ASN(2), fabric.VoteResponse{Vote: dup})
	merger.handleVoteResponse(models.ASN(2), fabric.VoteResponse{Vote: dup})

	merger.mu.Lock()
	defer merger.mu.Unlock()
	if c, ok := merger.pending[ctx.tx.TxID]; ok {
		fromAS2 := 0
		for _, v := range c.votes {
			if v.VoterAS == models.ASN(2) {
				fromAS2++
			}
		}
		if fromAS2 != 1 {
			t.Fatalf("votes from AS2 = %d, want 1 (replay must be discarded)", fromAS2)
		}
	}
}
