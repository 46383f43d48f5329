package models

import "time"

// AttackDetection is the Attack Detector's classification of a single
// observation (C6). Severity follows the teacher's info/low/medium/high/
// critical ladder (internal/heuristics/alert_system.go).
type AttackDetection struct {
	Kind     AttackKind
	Severity Severity
}

// IsAttack reports whether the detection represents an actual attack class.
func (d AttackDetection) IsAttack() bool {
	return d.Kind != AttackNone && d.Kind != ""
}

// AttackVerdict is the outcome of the secondary attack-verdict consensus
// (C10), recorded in-chain as an attack_verdict block. Spec.md §3.
type AttackVerdict struct {
	VerdictID    string               `json:"verdictId"`
	AttackKind   AttackKind           `json:"attackKind"`
	AttackerAS   ASN                  `json:"attackerAs"`
	VictimPrefix string               `json:"victimPrefix,omitempty"`
	ProposerAS   ASN                  `json:"proposerAs"`
	YesCount     int                  `json:"yesCount"`
	NoCount      int                  `json:"noCount"`
	Voters       []ASN                `json:"voters"`
	Confidence   float64              `json:"confidence"`
	Outcome      AttackVerdictOutcome `json:"outcome"`
	CreatedAt    time.Time            `json:"createdAt"`
}

// CanonicalPayload is the field-ordered encoding used as the Merkle leaf
// for an attack_verdict block (spec.md §3's Merkle root over
// "canonically-encoded transaction payloads" generalizes to verdicts).
func (v *AttackVerdict) CanonicalPayload() []byte {
	return canonicalConcat(
		v.VerdictID,
		string(v.AttackKind),
		asnString(v.AttackerAS),
		v.VictimPrefix,
		string(v.Outcome),
	)
}

// DetectionRecord is an external output: every observation's classification
// decision for a given node (spec.md §6).
type DetectionRecord struct {
	ObserverAS ASN
	Prefix     string
	OriginASN  ASN
	Timestamp  int64
	Kind       AttackKind
	Severity   Severity
	Skipped    bool // true if the dedup cache suppressed transaction creation
}
