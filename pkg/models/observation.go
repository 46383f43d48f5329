package models

// Observation is a single BGP route announcement or withdrawal as replayed
// from the dataset. Owned by the dataset stream; the node runtime only reads it.
type Observation struct {
	ObserverAS          ASN
	Prefix              string
	OriginASN           ASN
	ASPath              []ASN
	Timestamp           int64 // logical seconds since epoch
	State               StateChange
	IsAttackGroundTruth bool
	AttackLabel         string
}

// VRPTable maps an authorized prefix to its authorized origin AS, as loaded
// from the (out-of-scope) ROA dataset. Treated as immutable by the core.
type VRPTable map[string]ASN

// Classification records, per AS, whether it runs as a PoP validator
// (RPKI-deployed) or as an observer. Loaded once by the (out-of-scope)
// dataset collaborator and treated as immutable for the run.
type Classification map[ASN]bool

// DatasetSpan is the logical timestamp range a replayed dataset covers.
type DatasetSpan struct {
	Start int64
	End   int64
}

// Dataset is the external collaborator's output: a stream of observations
// grouped by observer AS, a validator/observer classification, and a VRP
// table. The core treats all of it as immutable; parsing/loading it from
// CAIDA/ROA JSON is out of scope (spec.md §1/§6).
type Dataset struct {
	Span           DatasetSpan
	Classification Classification
	VRP            VRPTable
	Streams        map[ASN][]Observation
}
