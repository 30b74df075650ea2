package verify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"godisc/domain/candidate"
	"godisc/domain/core"
	"godisc/ports"
)

// statementTemplate is the fixed proof obligation shape. The gate only
// substitutes the free parameters; it never edits the claim itself.
const statementTemplate = `theorem type_one_error_bound
  family   := %s
  theta    := %s
  critical := %.17g
  alpha    := %.17g
  n        := %d
  claim    := P_null[T(theta, X_1..X_n) > critical] <= alpha
`

// Gate submits proof obligations and runs the pending -> terminal state
// machine. Backend errors retry up to the ceiling, then the obligation is
// rejected with a reason that distinguishes "prover unavailable" from
// "proof failed".
type Gate struct {
	backend      ports.ProofBackendPort
	timeout      time.Duration
	retryCeiling int
}

// NewGate creates a verification gate
func NewGate(backend ports.ProofBackendPort, timeout time.Duration, retryCeiling int) *Gate {
	if retryCeiling < 1 {
		retryCeiling = 1
	}
	return &Gate{backend: backend, timeout: timeout, retryCeiling: retryCeiling}
}

// Statement instantiates the proof statement for a candidate and its
// calibration record
func Statement(c candidate.Candidate, rec candidate.CalibrationRecord) string {
	thetaParts := make([]string, len(c.Theta))
	for i, v := range c.Theta {
		thetaParts[i] = fmt.Sprintf("%.17g", v)
	}
	return fmt.Sprintf(statementTemplate,
		c.Family.String(),
		"["+strings.Join(thetaParts, ", ")+"]",
		rec.CriticalValue,
		c.Alpha,
		c.Sim.SampleSize,
	)
}

// Verify creates an obligation for the candidate and drives it to a
// terminal outcome. Each backend attempt is bounded by the configured
// timeout so proof search cannot block callers indefinitely; verification
// is expected to run out-of-band from training rounds.
func (g *Gate) Verify(ctx context.Context, c candidate.Candidate, rec candidate.CalibrationRecord) (*candidate.VerificationObligation, error) {
	ob := &candidate.VerificationObligation{
		ID:          core.ObligationID(core.NewID()),
		Candidate:   c,
		Calibration: rec,
		Statement:   Statement(c, rec),
		Outcome:     candidate.OutcomePending,
		CreatedAt:   core.Now(),
	}

	for ob.Attempts < g.retryCeiling {
		select {
		case <-ctx.Done():
			return ob, ctx.Err()
		default:
		}

		ob.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		verdict, err := g.backend.Submit(attemptCtx, ob.Statement)
		cancel()

		if err != nil {
			ob.Outcome = candidate.OutcomeBackendError
			log.Printf("[VerificationGate] obligation %s attempt %d/%d backend error: %v",
				ob.ID, ob.Attempts, g.retryCeiling, err)
			if errors.Is(err, context.Canceled) {
				return ob, err
			}
			// backend-error goes back to pending for the next attempt
			ob.Outcome = candidate.OutcomePending
			continue
		}

		ob.ResolvedAt = core.Now()
		if verdict.Accepted {
			ob.Outcome = candidate.OutcomeAccepted
			ob.CertificateRef = verdict.CertificateRef
			log.Printf("[VerificationGate] obligation %s accepted (certificate %s)", ob.ID, verdict.CertificateRef)
		} else {
			ob.Outcome = candidate.OutcomeRejected
			ob.Reason = candidate.ReasonProofRejected
			log.Printf("[VerificationGate] obligation %s rejected: %s", ob.ID, verdict.Reason)
		}
		return ob, nil
	}

	// Ceiling exhausted: terminal rejected, but with a reason code that
	// downstream consumers can tell apart from a failed proof.
	ob.Outcome = candidate.OutcomeRejected
	ob.Reason = candidate.ReasonBackendExhausted
	ob.ResolvedAt = core.Now()
	log.Printf("[VerificationGate] obligation %s exhausted %d attempts", ob.ID, g.retryCeiling)
	return ob, nil
}
