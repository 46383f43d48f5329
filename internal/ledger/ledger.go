// Package ledger is the Token Ledger (C12): an atomic treasury + per-AS
// balance sheet. Every mutation is a single lock-protected operation, so
// the conservation invariant (treasury + Σbalances + burned == total
// supply, spec.md §3) holds at every observable point.
//
// Grounded on internal/db/postgres.go's explicit-transaction style
// (begin, mutate, commit-or-rollback as one atomic unit) generalized from
// a SQL transaction to an in-process mutex, since the ledger here is
// in-memory rather than persisted.
package ledger

import (
	"log"
	"sync"

	"github.com/bgp-sentry/pop-simulator/internal/config"
	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

// Ledger is the single process-wide token ledger.
type Ledger struct {
	cfg config.Config

	mu               sync.Mutex
	treasury         uint64
	balances         map[models.ASN]uint64
	totalDistributed uint64
	totalBurned      uint64
}

// New creates a ledger with the treasury seeded at cfg.TotalSupply
// (spec.md §6 TOTAL_SUPPLY).
func New(cfg config.Config) *Ledger {
	return &Ledger{
		cfg:      cfg,
		treasury: cfg.TotalSupply,
		balances: make(map[models.ASN]uint64),
	}
}

// credit moves amount from the treasury to as's balance. A treasury
// shortfall is logged and absorbed — the consensus outcome that
// triggered the award still stands (spec.md §4.12).
func (l *Ledger) credit(as models.ASN, amount uint64) {
	if amount == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.treasury < amount {
		log.Printf("[Ledger] treasury exhausted: cannot award %d to AS%d (treasury=%d)", amount, as, l.treasury)
		return
	}
	l.treasury -= amount
	l.balances[as] += amount
	l.totalDistributed += amount
}

// AwardCommit pays the base commit reward to a transaction's merger
// (spec.md §4.9 commit path).
func (l *Ledger) AwardCommit(merger models.ASN) {
	l.credit(merger, l.cfg.RewardBlockCommit)
}

// AwardApprove pays an APPROVE voter's per-vote reward, scaled by their
// current {accuracy, participation, quality} multiplier (spec.md §4.9
// commit path).
func (l *Ledger) AwardApprove(voter models.ASN, multiplier float64) {
	amount := uint64(float64(l.cfg.RewardVoteApprove) * multiplier)
	l.credit(voter, amount)
}

// AwardAttackDetection pays the attack-detection bonus
// (RewardAttackDetection) to a confirmed attack's proposer (spec.md
// §4.10). YES voters are paid separately through AwardAttackVote.
func (l *Ledger) AwardAttackDetection(as models.ASN) {
	l.credit(as, l.cfg.RewardAttackDetection)
}

// AwardAttackVote pays the flat per-approve reward to a YES voter on a
// confirmed attack verdict.
func (l *Ledger) AwardAttackVote(voter models.ASN) {
	l.credit(voter, l.cfg.RewardVoteApprove)
}

// Debit removes amount from as's balance into the burned pool (used by a
// future slashing policy; exercised today only by tests, per spec.md
// §4.12's general atomic-debit contract). Fails with ErrLedgerUnderflow
// if as's balance can't cover it.
func (l *Ledger) Debit(as models.ASN, amount uint64) error {
	if amount == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[as] < amount {
		return models.ErrLedgerUnderflow
	}
	l.balances[as] -= amount
	l.totalBurned += amount
	return nil
}

// Conserved checks the conservation invariant: treasury + Σbalances +
// burned == total supply. Intended for debug-build assertions and tests
// (spec.md §3, §4.12).
func (l *Ledger) Conserved() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := l.treasury + l.totalBurned
	for _, bal := range l.balances {
		sum += bal
	}
	return sum == l.cfg.TotalSupply
}

// Report returns the external snapshot (spec.md §6).
func (l *Ledger) Report() models.LedgerReport {
	l.mu.Lock()
	defer l.mu.Unlock()
	balances := make(map[models.ASN]uint64, len(l.balances))
	for as, bal := range l.balances {
		balances[as] = bal
	}
	return models.LedgerReport{
		Treasury:         l.treasury,
		TotalDistributed: l.totalDistributed,
		Balances:         balances,
	}
}

// State returns the full internal snapshot, including the burned total
// (spec.md §3's LedgerState).
func (l *Ledger) State() models.LedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	balances := make(map[models.ASN]uint64, len(l.balances))
	for as, bal := range l.balances {
		balances[as] = bal
	}
	return models.LedgerState{
		Treasury:         l.treasury,
		Balances:         balances,
		TotalDistributed: l.totalDistributed,
		TotalBurned:      l.totalBurned,
	}
}

// Balance returns a single AS's current balance.
func (l *Ledger) Balance(as models.ASN) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[as]
}
