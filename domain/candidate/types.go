package candidate

import (
	"fmt"
	"math"

	"godisc/domain/core"
)

// Regime tags the generative model a batch was drawn from
type Regime string

const (
	RegimeNull        Regime = "null"
	RegimeAlternative Regime = "alternative"
)

// ResampleMethod identifies the bootstrap scheme used during calibration
type ResampleMethod string

const (
	ResampleIID   ResampleMethod = "iid"
	ResampleBlock ResampleMethod = "block"
)

// SimConfig fixes the simulation settings a candidate is calibrated under.
// Dependence is an explicit flag; the bootstrap method is never inferred
// from the data.
type SimConfig struct {
	SampleSize int   `json:"sample_size"`
	Dependence bool  `json:"dependence"`
	BlockLen   int   `json:"block_len,omitempty"` // 0 = ceil(n^(1/3)) default
	BaseSeed   int64 `json:"base_seed"`
}

// EffectiveBlockLen returns the block length used by the block bootstrap
func (sc SimConfig) EffectiveBlockLen() int {
	if sc.BlockLen > 0 {
		return sc.BlockLen
	}
	return int(math.Ceil(math.Cbrt(float64(sc.SampleSize))))
}

// Candidate is an immutable (family, theta, alpha, sim config) tuple.
// Any field change yields a different fingerprint and hence a new candidate.
type Candidate struct {
	Family core.FamilyID `json:"family"`
	Theta  []float64     `json:"theta"`
	Alpha  float64       `json:"alpha"`
	Sim    SimConfig     `json:"sim"`
}

// Clone returns a copy with a detached theta slice
func (c Candidate) Clone() Candidate {
	out := c
	out.Theta = append([]float64(nil), c.Theta...)
	return out
}

// Validate checks the candidate's structural constraints
func (c Candidate) Validate() error {
	if c.Family == "" {
		return fmt.Errorf("candidate: %w", core.ErrFamilyNotFound)
	}
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return core.ErrInvalidAlpha
	}
	if c.Sim.SampleSize < 2 {
		return core.ErrSampleTooSmall
	}
	return nil
}

// Fingerprint computes the content fingerprint over all identity fields
func (c Candidate) Fingerprint() core.Fingerprint {
	var enc core.CanonicalEncoder
	enc.WriteString(c.Family.String())
	enc.WriteFloats(c.Theta)
	enc.WriteFloat(c.Alpha)
	enc.WriteInt(int64(c.Sim.SampleSize))
	enc.WriteBool(c.Sim.Dependence)
	enc.WriteInt(int64(c.Sim.BlockLen))
	enc.WriteInt(c.Sim.BaseSeed)
	return enc.Fingerprint()
}

// CalibrationRecord holds the estimated critical value for one candidate.
// Uncalibrated records are valid outputs: the reward shaper treats them as
// strong constraint violations rather than hard failures.
type CalibrationRecord struct {
	Fingerprint     core.Fingerprint `json:"fingerprint"`
	CriticalValue   float64          `json:"critical_value"`
	Method          ResampleMethod   `json:"method"`
	BlockLen        int              `json:"block_len,omitempty"`
	Resamples       int              `json:"resamples"`
	ValidationRate  float64          `json:"validation_rate"`
	Uncalibrated    bool             `json:"uncalibrated"`
	NullSummary     NullSummary      `json:"null_summary"`
	ResampleIndices []int            `json:"-"` // first resample's index draw, kept for replay audits
	CalibratedAt    core.Timestamp   `json:"calibrated_at"`
}

// Clone returns a copy with a detached resample index slice
func (r CalibrationRecord) Clone() CalibrationRecord {
	out := r
	out.ResampleIndices = append([]int(nil), r.ResampleIndices...)
	return out
}

// NullSummary describes the bootstrap null distribution the critical value
// was read from
type NullSummary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// TrainingRound is one step of an optimizer run. Round i's ThetaOut is
// round i+1's ThetaIn.
type TrainingRound struct {
	RunID    core.RunID `json:"run_id"`
	Index    int        `json:"index"`
	ThetaIn  []float64  `json:"theta_in"`
	ThetaOut []float64  `json:"theta_out"`
	Reward   float64    `json:"reward"`
	Dual     float64    `json:"dual"`
	NullRate float64    `json:"null_rate"`
	// ProposalRewards keeps the per-proposal rewards in strategy order so a
	// resumed run can replay strategy updates without recalibrating.
	ProposalRewards []float64 `json:"proposal_rewards"`
	Degenerate      bool      `json:"degenerate"`
}

// ObligationOutcome is the verification gate's view of a proof attempt
type ObligationOutcome string

const (
	OutcomePending      ObligationOutcome = "pending"
	OutcomeAccepted     ObligationOutcome = "accepted"
	OutcomeRejected     ObligationOutcome = "rejected"
	OutcomeBackendError ObligationOutcome = "backend_error"
)

// Terminal reports whether the outcome can no longer change
func (o ObligationOutcome) Terminal() bool {
	return o == OutcomeAccepted || o == OutcomeRejected
}

// RejectionReason distinguishes why an obligation ended rejected
type RejectionReason string

const (
	ReasonProofRejected    RejectionReason = "proof_rejected"
	ReasonBackendExhausted RejectionReason = "backend_exhausted"
)

// VerificationObligation records one certified-candidate attempt. The
// statement template is instantiated with (theta, critical value, alpha, n)
// and submitted verbatim; the certificate reference is stored opaque.
type VerificationObligation struct {
	ID             core.ObligationID `json:"id"`
	Candidate      Candidate         `json:"candidate"`
	Calibration    CalibrationRecord `json:"calibration"`
	Statement      string            `json:"statement"`
	Outcome        ObligationOutcome `json:"outcome"`
	Reason         RejectionReason   `json:"reason,omitempty"`
	CertificateRef string            `json:"certificate_ref,omitempty"`
	Attempts       int               `json:"attempts"`
	CreatedAt      core.Timestamp    `json:"created_at"`
	ResolvedAt     core.Timestamp    `json:"resolved_at,omitempty"`
}

// Clone returns a deep copy of the obligation and its embedded records
func (o VerificationObligation) Clone() VerificationObligation {
	out := o
	out.Candidate = o.Candidate.Clone()
	out.Calibration = o.Calibration.Clone()
	return out
}

// Matches verifies the obligation was built against exactly this candidate
// and calibration record. Certification must not proceed on a stale record.
func (o VerificationObligation) Matches(c Candidate, rec CalibrationRecord) bool {
	if o.Candidate.Fingerprint() != c.Fingerprint() {
		return false
	}
	if o.Calibration.CriticalValue != rec.CriticalValue {
		return false
	}
	return o.Candidate.Alpha == c.Alpha && thetaEqual(o.Candidate.Theta, c.Theta)
}

func thetaEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			return false
		}
	}
	return true
}
