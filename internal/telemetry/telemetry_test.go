package telemetry

import (
	"testing"
	"time"

	"github.com/bgp-sentry/pop-simulator/internal/blockstore"
	"github.com/bgp-sentry/pop-simulator/internal/config"
	"github.com/bgp-sentry/pop-simulator/internal/fabric"
	"github.com/bgp-sentry/pop-simulator/internal/ledger"
	"github.com/bgp-sentry/pop-simulator/internal/metrics"
	"github.com/bgp-sentry/pop-simulator/internal/rating"
	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	fab := fabric.New(4, 32)
	store := blockstore.New(cfg, "")
	store.Genesis()
	collector := metrics.New(cfg, fab, store)
	ledg := ledger.New(cfg)
	now := int64(0)
	rater := rating.New(cfg, func() int64 { return now })
	return NewServer(collector, store, ledg, rater, 20*time.Millisecond)
}

func TestSnapshotReflectsCollaboratorState(t *testing.T) {
	s := newTestServer(t)
	s.collector.IncObservationsProcessed(models.ASN(64500))

	snap := s.snapshot()
	if snap.Height != 1 {
		t.Fatalf("Height = %d, want 1 (genesis only)", snap.Height)
	}
	if len(snap.Nodes) != 1 {
		t.Fatalf("len(Nodes) = %d, want 1", len(snap.Nodes))
	}
}

func TestStartAndStopDoesNotDeadlock(t *testing.T) {
	s := newTestServer(t)
	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.Stop()
}

func TestRouterExposesHealthzAndMetrics(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()
	if r == nil {
		t.Fatal("Router() returned nil")
	}
	routes := r.Routes()
	var hasHealthz, hasMetrics, hasWS bool
	for _, rt := range routes {
		switch rt.Path {
		case "/healthz":
			hasHealthz = true
		case "/metrics":
			hasMetrics = true
		case "/ws":
			hasWS = true
		}
	}
	if !hasHealthz || !hasMetrics || !hasWS {
		t.Fatalf("missing expected routes: %+v", routes)
	}
}
