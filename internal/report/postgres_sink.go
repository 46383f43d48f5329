package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink persists Snapshots to a `pop_run_snapshots` table, one
// upserted row per (run_id, at) pair — the same
// "INSERT ... ON CONFLICT DO UPDATE" shape as internal/db.PostgresStore's
// SaveAnalysisResult/SaveAnonSetWindow. Wired and compiles but, like
// PostgresStore in cmd/engine/main.go, is only reachable with a live
// database; cmd/simulate's default Sink is MemorySink.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// Connect opens the pool and verifies connectivity, mirroring
// internal/db.Connect.
func Connect(connStr string) (*PostgresSink, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("report: unable to connect to database: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("report: ping failed: %w", err)
	}
	log.Println("[Report] connected to PostgreSQL run-history sink")
	return &PostgresSink{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresSink) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema creates the snapshot table if it doesn't exist.
func (s *PostgresSink) InitSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS pop_run_snapshots (
			run_id     TEXT NOT NULL,
			at         TIMESTAMPTZ NOT NULL,
			consensus  JSONB NOT NULL,
			ledger     JSONB NOT NULL,
			rating     JSONB NOT NULL,
			PRIMARY KEY (run_id, at)
		);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Record upserts one snapshot row.
func (s *PostgresSink) Record(ctx context.Context, runID string, snap Snapshot) error {
	consensusJSON, err := json.Marshal(snap.Consensus)
	if err != nil {
		return fmt.Errorf("report: marshal consensus log: %w", err)
	}
	ledgerJSON, err := json.Marshal(snap.Ledger)
	if err != nil {
		return fmt.Errorf("report: marshal ledger report: %w", err)
	}
	ratingJSON, err := json.Marshal(snap.Rating)
	if err != nil {
		return fmt.Errorf("report: marshal rating report: %w", err)
	}

	const upsert = `
		INSERT INTO pop_run_snapshots (run_id, at, consensus, ledger, rating)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, at) DO UPDATE
		SET consensus = EXCLUDED.consensus, ledger = EXCLUDED.ledger, rating = EXCLUDED.rating;
	`
	_, err = s.pool.Exec(ctx, upsert, runID, snap.At, consensusJSON, ledgerJSON, ratingJSON)
	if err != nil {
		return fmt.Errorf("report: upsert snapshot: %w", err)
	}
	return nil
}
