// cmd/simulate is the minimal wiring entrypoint for the PoP simulator
// (spec.md §1/§6): it is not the out-of-scope "CLI / experiment driver"
// collaborator — it accepts an in-memory models.Dataset (here a small
// synthetic stand-in for the real CAIDA/ROA-derived dataset, since
// parsing those formats is out of scope) and does no argument parsing
// beyond environment variables for optional connection strings, the
// same posture cmd/engine/main.go takes for DATABASE_URL/BTC_RPC_*.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/bgp-sentry/pop-simulator/internal/config"
	"github.com/bgp-sentry/pop-simulator/internal/orchestrator"
	"github.com/bgp-sentry/pop-simulator/internal/report"
	"github.com/bgp-sentry/pop-simulator/internal/telemetry"
	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

func main() {
	log.Println("Starting Proof of Population BGP-Sentry Simulator...")

	cfg := config.Default().Override()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("FATAL: invalid configuration: %v", err)
	}

	ds := demoDataset()

	o, err := orchestrator.New(cfg, ds, getEnvOrDefault("POP_SNAPSHOT_PATH", ""))
	if err != nil {
		log.Fatalf("FATAL: failed to build orchestrator: %v", err)
	}

	var reportSink report.Sink = report.NewMemorySink()
	if dbURL := os.Getenv("REPORT_DATABASE_URL"); dbURL != "" {
		pg, err := report.Connect(dbURL)
		if err != nil {
			log.Printf("Warning: failed to connect run-history sink, falling back to in-memory: %v", err)
		} else {
			defer pg.Close()
			if err := pg.InitSchema(context.Background()); err != nil {
				log.Printf("Warning: run-history schema init failed: %v", err)
			}
			reportSink = pg
		}
	}
	runID := uuid.NewString()

	var telemetrySrv *telemetry.Server
	if getEnvOrDefault("TELEMETRY_ENABLED", "") == "true" {
		telemetrySrv = telemetry.NewServer(o.Metrics(), o.Store(), o.Ledger(), o.Rating(), 5*time.Second)
		telemetrySrv.Start()
		defer telemetrySrv.Stop()

		port := getEnvOrDefault("TELEMETRY_PORT", "5340")
		r := telemetrySrv.Router()
		go func() {
			if err := r.Run(":" + port); err != nil {
				log.Printf("Warning: telemetry server exited: %v", err)
			}
		}()
		log.Printf("Telemetry feed running on :%s (disable with TELEMETRY_ENABLED=false)", port)
	}

	deadline := 30 * time.Second
	if v := os.Getenv("POP_RUN_DEADLINE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			deadline = d
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	go recordPeriodically(ctx, reportSink, runID, o, cfg.MetricsPeriod)

	validatorCount := 0
	for _, isValidator := range ds.Classification {
		if isValidator {
			validatorCount++
		}
	}
	log.Printf("Running simulation (%d validators, %d observers, deadline %s)...",
		validatorCount, len(ds.Classification)-validatorCount, deadline)

	snap := o.Run(ctx)

	log.Printf("Simulation complete: %d blocks, integrity_ok=%v", len(snap.Blocks), snap.IntegrityOK)
	if !snap.IntegrityOK {
		log.Printf("Integrity errors: %v", snap.IntegrityErrors)
	}
	for as, ok := range snap.ReplicaValidity {
		if !ok {
			log.Printf("Warning: validator AS%d's replica reports a chain divergence", as)
		}
	}
}

// recordPeriodically samples the orchestrator's consensus/ledger/rating
// state into reportSink every period, the same MetricsPeriod cadence
// metrics.Collector's own sampler runs on, until ctx is done.
func recordPeriodically(ctx context.Context, sink report.Sink, runID string, o *orchestrator.Orchestrator, period time.Duration) {
	if period <= 0 {
		period = 5 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snap := report.Snapshot{
				At:        time.Now().UTC(),
				Consensus: o.Metrics().ConsensusLog(),
				Ledger:    o.Ledger().Report(),
				Rating:    o.Rating().Report(),
			}
			if err := sink.Record(ctx, runID, snap); err != nil {
				log.Printf("Warning: run-history record failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// demoDataset is a small, deterministic synthetic stand-in for the
// out-of-scope CAIDA/ROA-derived dataset: four validators, two
// observers, one legitimate announcement and one hijack attempt.
func demoDataset() models.Dataset {
	const prefix = "93.184.216.0/24"
	const legitOrigin = models.ASN(64500)
	const attacker = models.ASN(64666)

	validators := []models.ASN{1, 2, 3, 4}
	observers := []models.ASN{101, 102}

	classification := make(models.Classification, len(validators)+len(observers))
	for _, v := range validators {
		classification[v] = true
	}
	for _, a := range observers {
		classification[a] = false
	}

	streams := map[models.ASN][]models.Observation{
		1: {
			{ObserverAS: 1, Prefix: prefix, OriginASN: legitOrigin, Timestamp: 0, State: models.StateAnnounce},
		},
		101: {
			{ObserverAS: 101, Prefix: prefix, OriginASN: attacker, Timestamp: 1, State: models.StateAnnounce, IsAttackGroundTruth: true, AttackLabel: "PREFIX_HIJACK"},
		},
		102: {
			{ObserverAS: 102, Prefix: prefix, OriginASN: legitOrigin, Timestamp: 2, State: models.StateAnnounce},
		},
	}

	return models.Dataset{
		Span:           models.DatasetSpan{Start: 0, End: 10},
		Classification: classification,
		VRP:            models.VRPTable{prefix: legitOrigin},
		Streams:        streams,
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
