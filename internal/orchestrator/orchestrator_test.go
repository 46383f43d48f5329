package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/bgp-sentry/pop-simulator/internal/config"
	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

func smallDataset() models.Dataset {
	prefix := "93.184.216.0/24"
	origin := models.ASN(9999)

	validators := []models.ASN{1, 2, 3, 4}
	classification := make(models.Classification, len(validators)+1)
	for _, v := range validators {
		classification[v] = true
	}
	classification[models.ASN(100)] = false // one observer

	streams := map[models.ASN][]models.Observation{
		1: {
			{ObserverAS: 1, Prefix: prefix, OriginASN: origin, Timestamp: 0, State: models.StateAnnounce},
		},
		100: {
			{ObserverAS: 100, Prefix: prefix, OriginASN: models.ASN(4242), Timestamp: 0, State: models.StateAnnounce},
		},
	}

	return models.Dataset{
		Span:           models.DatasetSpan{Start: 0, End: 10},
		Classification: classification,
		VRP:            models.VRPTable{prefix: origin},
		Streams:        streams,
	}
}

func TestRunCommitsAndProducesCleanSnapshot(t *testing.T) {
	cfg := config.Default()
	cfg.RegularTimeout = 300 * time.Millisecond
	cfg.AttackTimeout = 500 * time.Millisecond
	cfg.MaxBroadcastPeers = 4
	cfg.MetricsPeriod = 50 * time.Millisecond

	o, err := New(cfg, smallDataset(), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	snap := o.Run(ctx)

	if len(snap.Blocks) < 2 {
		t.Fatalf("len(snap.Blocks) = %d, want >= 2 (genesis + at least one commit)", len(snap.Blocks))
	}
	if !snap.IntegrityOK {
		t.Fatalf("IntegrityOK = false, errors: %v", snap.IntegrityErrors)
	}
	for as, ok := range snap.ReplicaValidity {
		if !ok {
			t.Errorf("validator AS%d replica reports a divergence", as)
		}
	}

	// The observer's attacker (not the VRP's authorized origin) should
	// have been penalized by the rating engine via the direct
	// detector-to-rating path.
	score := o.Rating().Score(models.ASN(4242))
	if score.Score >= cfg.InitialScore {
		t.Fatalf("attacker score = %v, want < initial %v", score.Score, cfg.InitialScore)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SpeedMultiplier = 0

	if _, err := New(cfg, smallDataset(), ""); err == nil {
		t.Fatal("expected an error for a non-positive speed multiplier")
	}
}
