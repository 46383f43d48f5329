// Package config holds the simulator's single configuration record
// (spec.md §6) plus environment-variable overrides in the style of
// cmd/engine/main.go's requireEnv/getEnvOrDefault helpers.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the recognized set of runtime options (spec.md §6). All
// durations are stored as time.Duration; the defaults mirror the spec's
// seconds literally.
type Config struct {
	// Consensus
	TMin              int
	TCap              int
	RegularTimeout    time.Duration
	AttackTimeout     time.Duration
	MaxBroadcastPeers int

	// Dedup / knowledge
	RPKIWindow    time.Duration
	NonRPKIWindow time.Duration
	KBWindow      time.Duration
	KBCleanup     time.Duration

	// Detection
	FlapWindow              time.Duration
	FlapThreshold           int
	FlapDedup               time.Duration
	AttackConsensusMinVotes int

	// Capacity
	KBMax          int
	PendingMax     int
	CommittedMax   int
	DedupMax       int
	IngestBufferMax int

	// Ledger
	TotalSupply           uint64
	RewardBlockCommit     uint64
	RewardVoteApprove     uint64
	RewardAttackDetection uint64

	// Rating
	InitialScore                float64
	Penalty                     map[string]float64 // keyed by AttackKind string
	RepeatPenaltyWindow         int64               // logical seconds ("30 simulated days")
	RepeatPenaltySurcharge      float64
	PersistentAttackerThreshold int
	PersistentAttackerSurcharge float64
	LegitStreakThreshold        int
	LegitStreakReward           float64
	PeriodicBonusInterval       int64 // logical seconds
	PeriodicBonusAmount         float64
	FalseReportPenalty          float64

	// Simulation
	SpeedMultiplier float64
	BatchSize       int
	BatchTimeout    time.Duration
	MetricsPeriod   time.Duration

	// Worker pool
	FabricWorkers int // 0 = auto: max(48, 2*GOMAXPROCS)
}

// Default returns the spec's documented defaults (spec.md §6).
func Default() Config {
	return Config{
		TMin:              3,
		TCap:              5,
		RegularTimeout:    3 * time.Second,
		AttackTimeout:     5 * time.Second,
		MaxBroadcastPeers: 5,

		RPKIWindow:    300 * time.Second,
		NonRPKIWindow: 120 * time.Second,
		KBWindow:      480 * time.Second,
		KBCleanup:     60 * time.Second,

		FlapWindow:              60 * time.Second,
		FlapThreshold:           5,
		FlapDedup:               2 * time.Second,
		AttackConsensusMinVotes: 3,

		KBMax:           50000,
		PendingMax:      5000,
		CommittedMax:    50000,
		DedupMax:        100000,
		IngestBufferMax: 1000,

		TotalSupply:           10_000_000,
		RewardBlockCommit:     10,
		RewardVoteApprove:     1,
		RewardAttackDetection: 100,

		InitialScore: 50,
		Penalty: map[string]float64{
			"PREFIX_HIJACK":    30,
			"SUBPREFIX_HIJACK": 25,
			"BOGON_INJECTION":  20,
			"ROUTE_FLAPPING":   10,
		},
		RepeatPenaltyWindow:         30 * 86400,
		RepeatPenaltySurcharge:      10,
		PersistentAttackerThreshold: 3,
		PersistentAttackerSurcharge: 20,
		LegitStreakThreshold:        20,
		LegitStreakReward:           5,
		PeriodicBonusInterval:       7 * 86400,
		PeriodicBonusAmount:         2,
		FalseReportPenalty:          15,

		SpeedMultiplier: 1.0,
		BatchSize:       1,
		BatchTimeout:    500 * time.Millisecond,
		MetricsPeriod:   5 * time.Second,

		FabricWorkers: 0,
	}
}

// Validate rejects configuration that spec.md §8 says must be rejected
// (e.g. a non-positive speed multiplier) plus other internally-inconsistent
// values. Never panics; every rejection is a returned error.
func (c Config) Validate() error {
	if c.SpeedMultiplier <= 0 {
		return fmt.Errorf("config: SPEED_MULTIPLIER must be > 0, got %v", c.SpeedMultiplier)
	}
	if c.TMin < 1 {
		return fmt.Errorf("config: T_MIN must be >= 1, got %d", c.TMin)
	}
	if c.TCap < c.TMin {
		return fmt.Errorf("config: T_CAP (%d) must be >= T_MIN (%d)", c.TCap, c.TMin)
	}
	if c.MaxBroadcastPeers < 1 {
		return fmt.Errorf("config: MAX_BROADCAST_PEERS must be >= 1, got %d", c.MaxBroadcastPeers)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("config: BATCH_SIZE must be >= 1, got %d", c.BatchSize)
	}
	return nil
}

// Override applies a small set of environment-variable overrides, the way
// cmd/engine/main.go reads DATABASE_URL/BTC_RPC_HOST. Only non-empty
// environment values take effect; everything else keeps the Default()
// (or caller-supplied) value.
func (c Config) Override() Config {
	if v := os.Getenv("POP_SPEED_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.SpeedMultiplier = f
		}
	}
	if v := os.Getenv("POP_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchSize = n
		}
	}
	if v := os.Getenv("POP_FABRIC_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.FabricWorkers = n
		}
	}
	return c
}
