package candidate

import (
	"godisc/domain/core"
)

// LifecycleState tracks a candidate through the certification pipeline
type LifecycleState string

const (
	StateProposed    LifecycleState = "proposed"
	StateCalibrating LifecycleState = "calibrating"
	StateCalibrated  LifecycleState = "calibrated"
	StateVerifying   LifecycleState = "verifying"
	StateCertified   LifecycleState = "certified"
	StateRejected    LifecycleState = "rejected"
	StateStale       LifecycleState = "stale"
)

// Terminal reports whether the state admits no forward transition.
// Stale is terminal too: a stale entry is a logical delete kept for audit.
func (s LifecycleState) Terminal() bool {
	return s == StateCertified || s == StateRejected || s == StateStale
}

// forward lists the monotonic transitions. Stale is handled separately:
// any non-stale state may go stale when its simulation config is invalidated.
var forward = map[LifecycleState][]LifecycleState{
	StateProposed:    {StateCalibrating},
	StateCalibrating: {StateCalibrated, StateRejected},
	StateCalibrated:  {StateVerifying, StateRejected},
	StateVerifying:   {StateCertified, StateRejected},
}

// CanTransition reports whether from -> to is a legal lifecycle move
func CanTransition(from, to LifecycleState) bool {
	if to == StateStale {
		return from != StateStale
	}
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LedgerEntry is the authoritative lifecycle record for one fingerprint.
// All state changes must go through the ledger's compare-and-swap.
type LedgerEntry struct {
	Fingerprint core.Fingerprint   `json:"fingerprint"`
	Candidate   Candidate          `json:"candidate"`
	State       LifecycleState     `json:"state"`
	Calibration *CalibrationRecord `json:"calibration,omitempty"`
	Obligation  *VerificationObligation `json:"obligation,omitempty"`
	RunID       core.RunID         `json:"run_id,omitempty"`
	CreatedAt   core.Timestamp     `json:"created_at"`
	UpdatedAt   core.Timestamp     `json:"updated_at"`
}

// Clone returns a deep copy of the entry. A shallow struct copy would share
// the calibration and obligation records through their pointers; callers
// holding a clone must not be able to reach ledger state.
func (e LedgerEntry) Clone() LedgerEntry {
	out := e
	out.Candidate = e.Candidate.Clone()
	if e.Calibration != nil {
		rec := e.Calibration.Clone()
		out.Calibration = &rec
	}
	if e.Obligation != nil {
		ob := e.Obligation.Clone()
		out.Obligation = &ob
	}
	return out
}
