package models

import "time"

// Vote is a signer's response to a VoteRequest during PoP consensus.
type Vote struct {
	TxID      string      `json:"txId"`
	VoterAS   ASN         `json:"voterAs"`
	Verdict   VoteVerdict `json:"verdict"`
	Signature []byte      `json:"signature,omitempty"`
	EmittedAt time.Time   `json:"emittedAt"`
}

// Transaction is a PoP consensus record built from a single observation.
// Before commit it is exclusively owned by the merger's pending pool; once
// ConsensusStatus != PENDING it is immutable and lives in the block store.
type Transaction struct {
	TxID                 string          `json:"txId"`
	MergerAS             ASN             `json:"mergerAs"`
	ObserverAS           ASN             `json:"observerAs"`
	Prefix               string          `json:"prefix"`
	OriginASN            ASN             `json:"originAsn"`
	ASPath               []ASN           `json:"asPath"`
	ObservationTimestamp int64           `json:"observationTimestamp"`
	CreatedAt            time.Time       `json:"createdAt"`
	IsAttack             bool            `json:"isAttack"`
	AttackKind           AttackKind      `json:"attackKind,omitempty"`
	SignatureMerger      []byte          `json:"signatureMerger"`
	Signatures           []Vote          `json:"signatures"`
	ConsensusStatus      ConsensusStatus `json:"consensusStatus"`
}

// ApproveCount returns the number of distinct APPROVE votes collected so far.
func (t *Transaction) ApproveCount() int {
	n := 0
	for _, v := range t.Signatures {
		if v.Verdict == VerdictApprove {
			n++
		}
	}
	return n
}

// CanonicalPayload is the field-ordered byte concatenation signed by the
// merger: (tx_id, merger_as, prefix, origin_asn, observation_timestamp).
// Spec.md §4.3.
func (t *Transaction) CanonicalPayload() []byte {
	return canonicalConcat(
		t.TxID,
		asnString(t.MergerAS),
		t.Prefix,
		asnString(t.OriginASN),
		int64String(t.ObservationTimestamp),
	)
}

// VoteCanonicalPayload is the payload a voter signs: (tx_id, voter_as, verdict_code).
func VoteCanonicalPayload(txID string, voter ASN, verdict VoteVerdict) []byte {
	return canonicalConcat(txID, asnString(voter), string(verdict))
}
