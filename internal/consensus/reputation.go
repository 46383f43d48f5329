package consensus

import (
	"sync"

	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

// reputation tracks the three independent per-validator multipliers the
// commit path applies to per-approve-vote rewards (spec.md §4.9: "voter's
// {accuracy, participation, quality} multipliers"), grounded on
// internal/heuristics/cluster_engine.go's style of several independent
// maps keyed by the same identifier rather than one combined struct.
type reputation struct {
	mu sync.Mutex

	approveVotesOnWinningSide map[models.ASN]int
	totalCountedVotes         map[models.ASN]int
	requestsReceived          map[models.ASN]int
	votesCast                 map[models.ASN]int
	badSignatures             map[models.ASN]int
}

func newReputation() *reputation {
	return &reputation{
		approveVotesOnWinningSide: make(map[models.ASN]int),
		totalCountedVotes:         make(map[models.ASN]int),
		requestsReceived:          make(map[models.ASN]int),
		votesCast:                 make(map[models.ASN]int),
		badSignatures:             make(map[models.ASN]int),
	}
}

func (r *reputation) recordRequestReceived(as models.ASN) {
	r.mu.Lock()
	r.requestsReceived[as]++
	r.mu.Unlock()
}

func (r *reputation) recordVoteCast(as models.ASN) {
	r.mu.Lock()
	r.votesCast[as]++
	r.mu.Unlock()
}

func (r *reputation) recordBadSignature(as models.ASN) {
	r.mu.Lock()
	r.badSignatures[as]++
	r.mu.Unlock()
}

// recordCommit credits every approving voter's accuracy once the
// transaction they voted on reaches CONFIRMED.
func (r *reputation) recordCommit(approvers []models.ASN) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, as := range approvers {
		r.approveVotesOnWinningSide[as]++
		r.totalCountedVotes[as]++
	}
}

// accuracy is the fraction of an AS's counted votes that ended up on a
// committed transaction's winning (APPROVE) side.
func (r *reputation) accuracy(as models.ASN) float64 {
	total := r.totalCountedVotes[as]
	if total == 0 {
		return 1.0
	}
	return float64(r.approveVotesOnWinningSide[as]) / float64(total)
}

// participation is the fraction of VoteRequests an AS actually answered.
func (r *reputation) participation(as models.ASN) float64 {
	total := r.requestsReceived[as]
	if total == 0 {
		return 1.0
	}
	ratio := float64(r.votesCast[as]) / float64(total)
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

// quality is 1 minus the bad-signature rate among an AS's cast votes.
func (r *reputation) quality(as models.ASN) float64 {
	cast := r.votesCast[as]
	if cast == 0 {
		return 1.0
	}
	bad := float64(r.badSignatures[as]) / float64(cast)
	if bad > 1 {
		bad = 1
	}
	return 1 - bad
}

// Multiplier combines accuracy/participation/quality into the single
// scalar the ledger's per-approve-vote reward is multiplied by, clamped to
// a sane range so a cold-start validator (all ratios default to 1.0)
// gets the full reward and a consistently unreliable one trends toward
// half.
func (r *reputation) Multiplier(as models.ASN) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := (r.accuracy(as) + r.participation(as) + r.quality(as)) / 3
	if m < 0.5 {
		m = 0.5
	}
	if m > 1.5 {
		m = 1.5
	}
	return m
}
