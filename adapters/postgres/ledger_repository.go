package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"godisc/domain/candidate"
	"godisc/domain/core"
	"godisc/ports"
)

// LedgerRepository implements the certification ledger on PostgreSQL.
// The compare-and-swap transition is expressed as a conditional UPDATE so
// concurrent runs targeting the same fingerprint serialize on the row.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository creates a PostgreSQL ledger repository
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Create registers a candidate in the proposed state. ON CONFLICT keeps the
// call idempotent: an existing fingerprint is returned untouched.
func (r *LedgerRepository) Create(ctx context.Context, c candidate.Candidate, runID core.RunID) (*candidate.LedgerEntry, error) {
	candJSON, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal candidate: %w", err)
	}

	fp := c.Fingerprint()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (fingerprint, candidate, state, run_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (fingerprint) DO NOTHING`,
		fp.String(), candJSON, string(candidate.StateProposed), runID.String())
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	return r.Get(ctx, fp)
}

// Transition performs the compare-and-swap state change
func (r *LedgerRepository) Transition(ctx context.Context, fp core.Fingerprint, from, to candidate.LifecycleState) (bool, error) {
	if !candidate.CanTransition(from, to) {
		return false, core.NewTransitionError(string(from), string(to))
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE ledger_entries
		SET state = $1, updated_at = NOW()
		WHERE fingerprint = $2 AND state = $3`,
		string(to), fp.String(), string(from))
	if err != nil {
		return false, fmt.Errorf("transition: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		// Distinguish missing entry from CAS failure
		if _, getErr := r.Get(ctx, fp); getErr != nil {
			return false, getErr
		}
		return false, nil
	}
	return true, nil
}

// AttachCalibration records the calibration result on the entry
func (r *LedgerRepository) AttachCalibration(ctx context.Context, fp core.Fingerprint, rec candidate.CalibrationRecord) error {
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal calibration: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE ledger_entries SET calibration = $1, updated_at = NOW() WHERE fingerprint = $2`,
		recJSON, fp.String())
	if err != nil {
		return fmt.Errorf("attach calibration: %w", err)
	}
	return requireRow(res)
}

// AttachObligation records the verification obligation on the entry
func (r *LedgerRepository) AttachObligation(ctx context.Context, fp core.Fingerprint, ob candidate.VerificationObligation) error {
	obJSON, err := json.Marshal(ob)
	if err != nil {
		return fmt.Errorf("marshal obligation: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE ledger_entries SET obligation = $1, updated_at = NOW() WHERE fingerprint = $2`,
		obJSON, fp.String())
	if err != nil {
		return fmt.Errorf("attach obligation: %w", err)
	}
	return requireRow(res)
}

// Get returns the entry for a fingerprint
func (r *LedgerRepository) Get(ctx context.Context, fp core.Fingerprint) (*candidate.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT fingerprint, candidate, state, calibration, obligation, run_id, created_at, updated_at
		FROM ledger_entries WHERE fingerprint = $1`, fp.String())
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrEntryNotFound
	}
	return entry, err
}

// List returns entries matching the filter
func (r *LedgerRepository) List(ctx context.Context, filter ports.LedgerFilter) ([]candidate.LedgerEntry, error) {
	query := `
		SELECT fingerprint, candidate, state, calibration, obligation, run_id, created_at, updated_at
		FROM ledger_entries WHERE 1=1`
	args := []interface{}{}

	if filter.State != nil {
		args = append(args, string(*filter.State))
		query += fmt.Sprintf(" AND state = $%d", len(args))
	}
	if filter.RunID != nil {
		args = append(args, filter.RunID.String())
		query += fmt.Sprintf(" AND run_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []candidate.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*candidate.LedgerEntry, error) {
	var (
		entry                     candidate.LedgerEntry
		fpStr, state, runID       string
		candJSON                  []byte
		calibrationJSON, obJSON   []byte
		createdAt, updatedAt      sql.NullTime
	)
	if err := row.Scan(&fpStr, &candJSON, &state, &calibrationJSON, &obJSON, &runID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	entry.Fingerprint = core.Fingerprint(fpStr)
	entry.State = candidate.LifecycleState(state)
	entry.RunID = core.RunID(runID)
	if createdAt.Valid {
		entry.CreatedAt = core.NewTimestamp(createdAt.Time)
	}
	if updatedAt.Valid {
		entry.UpdatedAt = core.NewTimestamp(updatedAt.Time)
	}

	if err := json.Unmarshal(candJSON, &entry.Candidate); err != nil {
		return nil, fmt.Errorf("unmarshal candidate: %w", err)
	}
	if len(calibrationJSON) > 0 {
		var rec candidate.CalibrationRecord
		if err := json.Unmarshal(calibrationJSON, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal calibration: %w", err)
		}
		entry.Calibration = &rec
	}
	if len(obJSON) > 0 {
		var ob candidate.VerificationObligation
		if err := json.Unmarshal(obJSON, &ob); err != nil {
			return nil, fmt.Errorf("unmarshal obligation: %w", err)
		}
		entry.Obligation = &ob
	}
	return &entry, nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrEntryNotFound
	}
	return nil
}
