package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema holds the two tables the loop persists: the authoritative
// fingerprint -> lifecycle mapping and the per-run trajectory log.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		fingerprint TEXT PRIMARY KEY,
		candidate   JSONB NOT NULL,
		state       TEXT NOT NULL,
		calibration JSONB,
		obligation  JSONB,
		run_id      TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_state ON ledger_entries (state)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_run ON ledger_entries (run_id)`,
	`CREATE TABLE IF NOT EXISTS training_rounds (
		run_id           TEXT NOT NULL,
		round_index      INT NOT NULL,
		theta_in         JSONB NOT NULL,
		theta_out        JSONB NOT NULL,
		reward           DOUBLE PRECISION NOT NULL,
		dual             DOUBLE PRECISION NOT NULL,
		null_rate        DOUBLE PRECISION NOT NULL,
		proposal_rewards JSONB NOT NULL,
		degenerate       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (run_id, round_index)
	)`,
}

// Migrate applies the schema idempotently
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d failed: %w", i, err)
		}
	}
	return nil
}
