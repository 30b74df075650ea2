package ports

import (
	"context"

	"godisc/domain/candidate"
	"godisc/domain/core"
)

// LedgerPort is the single serialization point of the loop. Transition is a
// compare-and-swap: it succeeds only when the entry's current state equals
// from, otherwise it fails without side effect so callers can detect races.
type LedgerPort interface {
	// Create registers a fingerprint in the proposed state. Idempotent:
	// creating an existing fingerprint returns the existing entry.
	Create(ctx context.Context, c candidate.Candidate, runID core.RunID) (*candidate.LedgerEntry, error)

	// Transition performs the CAS state change. A false return with nil
	// error means the entry was not in the expected state.
	Transition(ctx context.Context, fp core.Fingerprint, from, to candidate.LifecycleState) (bool, error)

	// AttachCalibration records the calibration result on the entry
	AttachCalibration(ctx context.Context, fp core.Fingerprint, rec candidate.CalibrationRecord) error

	// AttachObligation records the verification obligation on the entry
	AttachObligation(ctx context.Context, fp core.Fingerprint, ob candidate.VerificationObligation) error

	// Get returns the entry for a fingerprint
	Get(ctx context.Context, fp core.Fingerprint) (*candidate.LedgerEntry, error)

	// List returns entries, optionally filtered by state
	List(ctx context.Context, filter LedgerFilter) ([]candidate.LedgerEntry, error)
}

// LedgerFilter narrows List queries
type LedgerFilter struct {
	State *candidate.LifecycleState
	RunID *core.RunID
	Limit int
}
