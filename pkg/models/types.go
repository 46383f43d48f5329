// Package models holds the data types shared across every simulator
// component: observations in, blocks and transactions through consensus,
// trust and ledger state out.
package models

// ASN identifies an Autonomous System.
type ASN uint32

// StateChange distinguishes a BGP announcement from a withdrawal, used by
// the route-flapping detector to count distinct state changes.
type StateChange int

const (
	StateAnnounce StateChange = iota
	StateWithdraw
)

func (s StateChange) String() string {
	if s == StateWithdraw {
		return "WITHDRAW"
	}
	return "ANNOUNCE"
}

// VoteVerdict is a signer's opinion on a transaction during the voting path.
type VoteVerdict string

const (
	VerdictApprove     VoteVerdict = "APPROVE"
	VerdictNoKnowledge VoteVerdict = "NO_KNOWLEDGE"
	VerdictReject      VoteVerdict = "REJECT"
)

// ConsensusStatus is the lifecycle state of a PoP transaction.
type ConsensusStatus string

const (
	StatusPending               ConsensusStatus = "PENDING"
	StatusConfirmed             ConsensusStatus = "CONFIRMED"
	StatusInsufficientConsensus ConsensusStatus = "INSUFFICIENT_CONSENSUS"
	StatusSingleWitness         ConsensusStatus = "SINGLE_WITNESS"
	StatusTimedOut              ConsensusStatus = "TIMED_OUT"
)

// BlockType identifies the kind of payload a block carries.
type BlockType string

const (
	BlockGenesis       BlockType = "genesis"
	BlockTransaction   BlockType = "transaction"
	BlockBatch         BlockType = "batch"
	BlockAttackVerdict BlockType = "attack_verdict"
)

// AttackKind enumerates the attack classes the detector recognizes.
type AttackKind string

const (
	AttackNone             AttackKind = "NONE"
	AttackPrefixHijack     AttackKind = "PREFIX_HIJACK"
	AttackSubprefixHijack  AttackKind = "SUBPREFIX_HIJACK"
	AttackBogonInjection   AttackKind = "BOGON_INJECTION"
	AttackRouteFlapping    AttackKind = "ROUTE_FLAPPING"
)

// Severity mirrors the teacher's info/low/medium/high/critical ladder
// (internal/heuristics/alert_system.go ThreatAssessment.Severity).
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AttackVerdictOutcome is the result of the secondary attack-verdict vote (C10).
type AttackVerdictOutcome string

const (
	OutcomeConfirmed AttackVerdictOutcome = "CONFIRMED"
	OutcomeNotAttack AttackVerdictOutcome = "NOT_ATTACK"
	OutcomeDisputed  AttackVerdictOutcome = "DISPUTED"
)
