package verify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"godisc/domain/candidate"
	"godisc/domain/core"
	"godisc/internal/testkit"
	"godisc/ports"
)

func gateCandidate() (candidate.Candidate, candidate.CalibrationRecord) {
	c := candidate.Candidate{
		Family: core.FamilyID("scaled_mean"),
		Theta:  []float64{1.5},
		Alpha:  0.05,
		Sim:    candidate.SimConfig{SampleSize: 100, BaseSeed: 7},
	}
	rec := candidate.CalibrationRecord{Fingerprint: c.Fingerprint(), CriticalValue: 0.164}
	return c, rec
}

func TestStatementFormat(t *testing.T) {
	c, rec := gateCandidate()
	stmt := Statement(c, rec)

	for _, want := range []string{
		"theorem type_one_error_bound",
		"family   := scaled_mean",
		"theta    := [1.5]",
		"alpha    := 0.05",
		"n        := 100",
		"P_null[T(theta, X_1..X_n) > critical] <= alpha",
	} {
		if !strings.Contains(stmt, want) {
			t.Errorf("statement missing %q:\n%s", want, stmt)
		}
	}
}

func TestVerifyAccepted(t *testing.T) {
	backend := testkit.AcceptingBackend()
	gate := NewGate(backend, time.Second, 3)
	c, rec := gateCandidate()

	ob, err := gate.Verify(context.Background(), c, rec)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ob.Outcome != candidate.OutcomeAccepted {
		t.Errorf("outcome = %s, want accepted", ob.Outcome)
	}
	if ob.CertificateRef == "" {
		t.Error("accepted obligation must carry a certificate reference")
	}
	if ob.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", ob.Attempts)
	}
	if backend.Statements[0] != ob.Statement {
		t.Error("the stored statement must be the one submitted")
	}
}

func TestVerifyRejected(t *testing.T) {
	backend := testkit.NewScriptedBackend(testkit.ScriptedResponse{
		Verdict: &ports.ProofVerdict{Accepted: false, Reason: "bound does not hold"},
	})
	gate := NewGate(backend, time.Second, 3)
	c, rec := gateCandidate()

	ob, err := gate.Verify(context.Background(), c, rec)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ob.Outcome != candidate.OutcomeRejected {
		t.Errorf("outcome = %s, want rejected", ob.Outcome)
	}
	if ob.Reason != candidate.ReasonProofRejected {
		t.Errorf("reason = %s, want proof_rejected", ob.Reason)
	}
	// a definitive rejection is final, no retries
	if backend.Attempts() != 1 {
		t.Errorf("backend saw %d attempts, want 1", backend.Attempts())
	}
}

func TestVerifyRetryCeiling(t *testing.T) {
	backend := testkit.NewScriptedBackend(testkit.ScriptedResponse{
		Err: core.ErrBackendUnavailable,
	})
	gate := NewGate(backend, time.Second, 3)
	c, rec := gateCandidate()

	ob, err := gate.Verify(context.Background(), c, rec)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if backend.Attempts() != 3 {
		t.Errorf("backend saw %d attempts, want exactly 3", backend.Attempts())
	}
	if ob.Attempts != 3 {
		t.Errorf("obligation records %d attempts, want 3", ob.Attempts)
	}
	if ob.Outcome != candidate.OutcomeRejected {
		t.Errorf("outcome = %s, want rejected", ob.Outcome)
	}
	if ob.Reason != candidate.ReasonBackendExhausted {
		t.Errorf("reason = %s, want backend_exhausted", ob.Reason)
	}
}

func TestVerifyRecoversAfterTransientError(t *testing.T) {
	backend := testkit.NewScriptedBackend(
		testkit.ScriptedResponse{Err: core.ErrBackendUnavailable},
		testkit.ScriptedResponse{Verdict: &ports.ProofVerdict{Accepted: true, CertificateRef: "cert-1"}},
	)
	gate := NewGate(backend, time.Second, 3)
	c, rec := gateCandidate()

	ob, err := gate.Verify(context.Background(), c, rec)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ob.Outcome != candidate.OutcomeAccepted {
		t.Errorf("outcome = %s, want accepted after retry", ob.Outcome)
	}
	if ob.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", ob.Attempts)
	}
}

func TestVerifyAttemptTimeout(t *testing.T) {
	// the backend never answers; each attempt must be cut off by the gate's
	// per-attempt timeout and counted against the ceiling
	backend := testkit.NewScriptedBackend(testkit.ScriptedResponse{Block: true})
	gate := NewGate(backend, 10*time.Millisecond, 2)
	c, rec := gateCandidate()

	ob, err := gate.Verify(context.Background(), c, rec)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ob.Outcome != candidate.OutcomeRejected || ob.Reason != candidate.ReasonBackendExhausted {
		t.Errorf("outcome = %s/%s, want rejected/backend_exhausted", ob.Outcome, ob.Reason)
	}
	if backend.Attempts() != 2 {
		t.Errorf("backend saw %d attempts, want 2", backend.Attempts())
	}
}

func TestVerifyCancellation(t *testing.T) {
	backend := testkit.NewScriptedBackend(testkit.ScriptedResponse{Block: true})
	gate := NewGate(backend, time.Minute, 5)
	c, rec := gateCandidate()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := gate.Verify(ctx, c, rec)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled verify must surface context.Canceled, got %v", err)
	}
}
