package models

import "time"

// DedupStats are monotone counters for the per-node dedup cache (C5).
type DedupStats struct {
	Recorded  uint64    `json:"recorded"`
	Skipped   uint64    `json:"skipped"`
	Bypassed  uint64    `json:"bypassed"` // attacks that bypassed the skip window
	LastUpdated time.Time `json:"lastUpdated"`
}

// FabricStats/MessageBusStats are monotone counters for the message fabric (C7).
type MessageBusStats struct {
	Sent        uint64    `json:"sent"`
	Delivered   uint64    `json:"delivered"`
	Dropped     uint64    `json:"dropped"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// FabricStats is the external-output alias of MessageBusStats (spec.md §6).
type FabricStats = MessageBusStats

// PerNodeStats are monotone per-AS counters (C15).
type PerNodeStats struct {
	AS                  ASN       `json:"as"`
	ObservationsProcessed uint64  `json:"observationsProcessed"`
	AttacksDetected       uint64  `json:"attacksDetected"`
	TxCreated             uint64  `json:"txCreated"`
	DedupSkips            uint64  `json:"dedupSkips"`
	BufferDrops           uint64  `json:"bufferDrops"`
	LastUpdated           time.Time `json:"lastUpdated"`
}

// ConsensusLog counts terminal PoP outcomes (spec.md §6).
type ConsensusLog struct {
	Confirmed             uint64 `json:"confirmed"`
	InsufficientConsensus uint64 `json:"insufficientConsensus"`
	SingleWitness         uint64 `json:"singleWitness"`
	TimedOut              uint64 `json:"timedOut"`
}

// CryptoSummary describes the signature scheme in use (spec.md §6).
type CryptoSummary struct {
	Scheme   string `json:"scheme"`
	KeyCount int    `json:"keyCount"`
}

// TPSSample is one periodic sample of the TPS/lag time series (C15).
type TPSSample struct {
	At       time.Time `json:"at"`
	TPS      float64   `json:"tps"`
	LagSecs  float64   `json:"lagSecs"`
}

// BlockchainSnapshot is the external, top-level output (spec.md §6).
type BlockchainSnapshot struct {
	Blocks           []Wire          `json:"blocks"`
	IntegrityOK      bool            `json:"integrityOk"`
	IntegrityErrors  []string        `json:"integrityErrors,omitempty"`
	ReplicaValidity  map[ASN]bool    `json:"replicaValidity"`
}
