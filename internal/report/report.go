// Package report is the optional run-history persistence layer: periodic
// ConsensusLog/LedgerReport/RatingReport snapshots, recorded through a
// Sink interface so the orchestrator never depends on a concrete
// storage backend.
//
// Grounded on internal/db/postgres.go's explicit pgxpool transaction +
// "ON CONFLICT ... DO UPDATE" upsert style (SaveAnalysisResult,
// SaveAnonSetWindow), generalized from per-transaction forensics rows to
// one upserted row per sample of a simulation run, keyed by run ID and
// sample time.
package report

import (
	"context"
	"sync"
	"time"

	"github.com/bgp-sentry/pop-simulator/pkg/models"
)

// Snapshot is one point-in-time sample of run-level state, the unit a
// Sink persists.
type Snapshot struct {
	At        time.Time
	Consensus models.ConsensusLog
	Ledger    models.LedgerReport
	Rating    models.RatingReport
}

// Sink persists periodic Snapshots. Implementations must not block the
// caller indefinitely; ctx governs how long a Record call may run.
type Sink interface {
	Record(ctx context.Context, runID string, snap Snapshot) error
}

// MemorySink is the default Sink: an in-process, mutex-guarded slice.
// This is what every test in this package (and cmd/simulate, by
// default) exercises — the same role internal/db.PostgresStore plays as
// an optional collaborator the teacher's engine runs without.
type MemorySink struct {
	mu    sync.Mutex
	byRun map[string][]Snapshot
}

// NewMemorySink creates an empty in-process sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{byRun: make(map[string][]Snapshot)}
}

// Record appends snap to runID's history.
func (m *MemorySink) Record(_ context.Context, runID string, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byRun[runID] = append(m.byRun[runID], snap)
	return nil
}

// History returns a copy of every snapshot recorded for runID, oldest first.
func (m *MemorySink) History(runID string) []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, len(m.byRun[runID]))
	copy(out, m.byRun[runID])
	return out
}
