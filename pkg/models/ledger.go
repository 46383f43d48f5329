package models

// LedgerState is the token ledger's point-in-time snapshot. Invariant
// (spec.md §3): Treasury + Σ(Balances) + TotalBurned == TOTAL_SUPPLY at
// every step.
type LedgerState struct {
	Treasury         uint64         `json:"treasury"`
	Balances         map[ASN]uint64 `json:"balances"`
	TotalDistributed uint64         `json:"totalDistributed"`
	TotalBurned      uint64         `json:"totalBurned"`
}

// LedgerReport is the external output (spec.md §6).
type LedgerReport struct {
	Treasury         uint64         `json:"treasury"`
	TotalDistributed uint64         `json:"totalDistributed"`
	Balances         map[ASN]uint64 `json:"balances"`
}
