package attackvote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bgp-sentry/pop-simulator/internal/blockstore"
	"github.com/bgp-sentry/pop-simulator/internal/clock"
	"github.com/bgp-sentry/pop-simulator/internal/config"
	"github.com/bgp-sentry/pop-simulator/internal/detector"
	"github.com/bgp-sentry/pop-simulator/internal/fabric"
	"github.com/bgp-sentry/pop-simulator/internal/registry"
	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

const hijackedPrefix = "203.0.113.0/24"
const legitOrigin = models.ASN(555)

type fakeLedger struct {
	mu        sync.Mutex
	detects   []models.ASN
	voteAward []models.ASN
}

func (f *fakeLedger) AwardAttackDetection(proposer models.ASN) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detects = append(f.detects, proposer)
}

func (f *fakeLedger) AwardAttackVote(voter models.ASN) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voteAward = append(f.voteAward, voter)
}

type fakeRater struct {
	mu        sync.Mutex
	penalized []models.ASN
	falsePos  []models.ASN
}

func (f *fakeRater) ApplyPenalty(attacker models.ASN, kind models.AttackKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.penalized = append(f.penalized, attacker)
}

func (f *fakeRater) PenalizeFalseReport(proposer models.ASN) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.falsePos = append(f.falsePos, proposer)
}

type testNet struct {
	cfg     config.Config
	reg     *registry.Registry
	fab     *fabric.Fabric
	clk     *clock.Clock
	store   *blockstore.Store
	ledger  *fakeLedger
	rater   *fakeRater
	engines map[models.ASN]*Engine
}

func newTestNet(t *testing.T, validators []models.ASN, vrp models.VRPTable) *testNet {
	t.Helper()
	cfg := config.Default()
	cfg.AttackConsensusMinVotes = len(validators) - 1
	cfg.AttackTimeout = 300 * time.Millisecond

	classification := make(models.Classification, len(validators))
	for _, v := range validators {
		classification[v] = true
	}
	reg := registry.New(classification, cfg.TMin, cfg.TCap)

	fab := fabric.New(8, 64)
	t.Cleanup(func() { fab.Shutdown(context.Background()) })

	clk := clock.New(1000, 1)
	t.Cleanup(clk.Shutdown)

	store := blockstore.New(cfg, "")
	store.Genesis()

	rules, err := detector.NewStaticRules(vrp)
	if err != nil {
		t.Fatalf("NewStaticRules: %v", err)
	}

	ledger := &fakeLedger{}
	rater := &fakeRater{}

	net := &testNet{cfg: cfg, reg: reg, fab: fab, clk: clk, store: store, ledger: ledger, rater: rater, engines: make(map[models.ASN]*Engine)}
	for _, v := range validators {
		det := detector.New(rules, cfg)
		eng := New(v, cfg, reg, fab, clk, store, det, ledger, rater)
		fab.Register(v, eng.Handle)
		net.engines[v] = eng
		t.Cleanup(eng.Stop)
	}
	return net
}

func hijackTx(proposer, attacker models.ASN, prefix string) models.Transaction {
	return models.Transaction{
		TxID:                 "tx-" + prefix,
		MergerAS:             proposer,
		ObserverAS:           proposer,
		Prefix:               prefix,
		OriginASN:            attacker,
		ObservationTimestamp: 1000,
		IsAttack:             true,
		AttackKind:           models.AttackPrefixHijack,
		ConsensusStatus:      models.StatusConfirmed,
	}
}

func TestConfirmedOutcomeAwardsAndPenalizes(t *testing.T) {
	validators := []models.ASN{1, 2, 3, 4}
	vrp := models.VRPTable{hijackedPrefix: legitOrigin}
	net := newTestNet(t, validators, vrp)

	attacker := models.ASN(666)
	tx := hijackTx(models.ASN(1), attacker, hijackedPrefix)
	net.engines[models.ASN(1)].OnAttackCommitted(tx)

	deadline := time.After(2 * time.Second)
	for {
		blocks := net.store.Blocks()
		if len(blocks) >= 2 {
			v := blocks[1].AttackVerdicts[0]
			if v.Outcome != models.OutcomeConfirmed {
				t.Fatalf("outcome = %v, want CONFIRMED", v.Outcome)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("verdict never committed, chain height = %d", len(blocks))
		case <-time.After(10 * time.Millisecond):
		}
	}

	net.rater.mu.Lock()
	defer net.rater.mu.Unlock()
	if len(net.rater.penalized) != 1 || net.rater.penalized[0] != attacker {
		t.Fatalf("penalized = %v, want [%d]", net.rater.penalized, attacker)
	}

	net.ledger.mu.Lock()
	defer net.ledger.mu.Unlock()
	if len(net.ledger.detects) != 1 || net.ledger.detects[0] != models.ASN(1) {
		t.Fatalf("detects = %v, want [1]", net.ledger.detects)
	}
}

func TestNotAttackOutcomePenalizesProposer(t *testing.T) {
	validators := []models.ASN{1, 2, 3, 4}
	// Empty VRP table: no peer's detector ever flags an attack, so every
	// peer votes NO regardless of what the proposer (falsely) claimed.
	net := newTestNet(t, validators, models.VRPTable{})

	tx := hijackTx(models.ASN(1), models.ASN(777), "93.184.216.0/24")
	net.engines[models.ASN(1)].OnAttackCommitted(tx)

	deadline := time.After(2 * time.Second)
	for {
		blocks := net.store.Blocks()
		if len(blocks) >= 2 {
			v := blocks[1].AttackVerdicts[0]
			if v.Outcome != models.OutcomeNotAttack {
				t.Fatalf("outcome = %v, want NOT_ATTACK", v.Outcome)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("verdict never committed, chain height = %d", len(blocks))
		case <-time.After(10 * time.Millisecond):
		}
	}

	net.rater.mu.Lock()
	defer net.rater.mu.Unlock()
	if len(net.rater.falsePos) != 1 || net.rater.falsePos[0] != models.ASN(1) {
		t.Fatalf("falsePos = %v, want [1]", net.rater.falsePos)
	}
}

func TestReplayVoteIsIgnored(t *testing.T) {
	validators := []models.ASN{1, 2, 3}
	net := newTestNet(t, validators, models.VRPTable{})
	proposer := net.engines[models.ASN(1)]

	tx := hijackTx(models.ASN(1), models.ASN(888), "192.0.2.0/24")
	proposer.mu.Lock()
	proposer.pending[tx.TxID] = newVerdictContext(tx, net.clk.Now()+100)
	proposer.mu.Unlock()

	proposer.handleAttackVote(models.ASN(2), fabric.AttackVote{TxID: tx.TxID, Yes: true})
	proposer.handleAttackVote(models.ASN(2), fabric.AttackVote{TxID: tx.TxID, Yes: true})

	proposer.mu.Lock()
	defer proposer.mu.Unlock()
	ctx, ok := proposer.pending[tx.TxID]
	if !ok {
		t.Fatal("context should still be pending")
	}
	if ctx.yes != 1 {
		t.Fatalf("yes = %d, want 1 (replay must be ignored)", ctx.yes)
	}
}
