package report

import (
	"context"
	"testing"
	"time"

	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

func TestMemorySinkAppendsPerRun(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	snap1 := Snapshot{At: time.Unix(0, 0), Consensus: models.ConsensusLog{Confirmed: 1}}
	snap2 := Snapshot{At: time.Unix(1, 0), Consensus: models.ConsensusLog{Confirmed: 2}}

	if err := sink.Record(ctx, "run-a", snap1); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := sink.Record(ctx, "run-a", snap2); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := sink.Record(ctx, "run-b", snap1); err != nil {
		t.Fatalf("Record: %v", err)
	}

	histA := sink.History("run-a")
	if len(histA) != 2 {
		t.Fatalf("len(histA) = %d, want 2", len(histA))
	}
	if histA[0].Consensus.Confirmed != 1 || histA[1].Consensus.Confirmed != 2 {
		t.Fatalf("unexpected ordering: %+v", histA)
	}

	histB := sink.History("run-b")
	if len(histB) != 1 {
		t.Fatalf("len(histB) = %d, want 1", len(histB))
	}
}

func TestHistorySnapshotIsIndependentOfInternalSlice(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()
	_ = sink.Record(ctx, "run-a", Snapshot{At: time.Unix(0, 0)})

	got := sink.History("run-a")
	got = append(got, Snapshot{At: time.Unix(99, 0)})

	if len(sink.History("run-a")) != 1 {
		t.Fatal("History leaked a reference into the internal slice")
	}
}
