package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"godisc/adapters/families"
	"godisc/domain/candidate"
	"godisc/internal/calibrate"
	apperrors "godisc/internal/errors"
	"godisc/internal/optimizer"
	"godisc/internal/shaper"
	"godisc/internal/testkit"
	"godisc/internal/verify"
	"godisc/ports"
)

func newTestService(t *testing.T, backend ports.ProofBackendPort) (*DiscoveryService, *testkit.TestKit) {
	t.Helper()
	kit := testkit.NewTestKit()
	calibrator := kit.Calibrator(calibrate.Options{
		Resamples:         200,
		Epsilon:           0.05,
		ValidationBatches: 50,
		Workers:           4,
	})
	rewardShaper := shaper.NewShaper(0.05, 0.2)
	gate := verify.NewGate(backend, time.Second, 3)
	svc := NewDiscoveryService(calibrator, rewardShaper, kit.Source, kit.Registry,
		kit.RNG, testkit.NewMemoryTrajectoryLog(), gate, kit.Ledger)
	return svc, kit
}

func meanDiscoveryRequest() DiscoveryRequest {
	return DiscoveryRequest{
		Family:       families.FamilyScaledMean,
		InitialTheta: []float64{1.0},
		Alpha:        0.05,
		Sim:          candidate.SimConfig{SampleSize: 30, BaseSeed: 42},
		Rounds:       3,
		Patience:     0,
		Tolerance:    1e-3,
		Epsilon:      0.2,
		Seed:         1234,
		Strategy:     optimizer.NewEvolutionStrategy(4, 0.2),
	}
}

func TestDiscoverCertifies(t *testing.T) {
	svc, kit := newTestService(t, testkit.AcceptingBackend())

	result, err := svc.Discover(context.Background(), meanDiscoveryRequest())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, candidate.StateCertified, result.Entry.State)
	require.NotNil(t, result.Entry.Calibration)
	assert.False(t, result.Entry.Calibration.Uncalibrated)

	require.NotNil(t, result.Obligation)
	assert.Equal(t, candidate.OutcomeAccepted, result.Obligation.Outcome)
	assert.NotEmpty(t, result.Obligation.CertificateRef)

	// the certified entry's obligation must match its own calibration record
	entry, err := kit.Ledger.Get(context.Background(), result.Entry.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, entry.Obligation)
	assert.True(t, entry.Obligation.Matches(entry.Candidate, *entry.Calibration))

	assert.Positive(t, result.Run.Rounds)
}

func TestDiscoverNoFeasibleCandidate(t *testing.T) {
	svc, kit := newTestService(t, testkit.AcceptingBackend())

	req := meanDiscoveryRequest()
	req.Family = families.FamilyConstant // degenerate everywhere

	_, err := svc.Discover(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNoFeasibleCandidate, apperrors.GetCode(err))

	// the seed entry must land in rejected, not linger mid-pipeline
	seed := candidate.Candidate{Family: req.Family, Theta: req.InitialTheta, Alpha: req.Alpha, Sim: req.Sim}
	entry, getErr := kit.Ledger.Get(context.Background(), seed.Fingerprint())
	require.NoError(t, getErr)
	assert.Equal(t, candidate.StateRejected, entry.State)
}

func TestDiscoverCertificationDenied(t *testing.T) {
	backend := testkit.NewScriptedBackend(testkit.ScriptedResponse{
		Verdict: &ports.ProofVerdict{Accepted: false, Reason: "bound not provable"},
	})
	svc, _ := newTestService(t, backend)

	result, err := svc.Discover(context.Background(), meanDiscoveryRequest())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeCertificationDenied, apperrors.GetCode(err))

	// a denied certification still reports what was searched and rejected
	require.NotNil(t, result)
	assert.Equal(t, candidate.StateRejected, result.Entry.State)
	require.NotNil(t, result.Obligation)
	assert.Equal(t, candidate.OutcomeRejected, result.Obligation.Outcome)
	assert.Equal(t, candidate.ReasonProofRejected, result.Obligation.Reason)
}

func TestDiscoverValidatesInput(t *testing.T) {
	svc, _ := newTestService(t, testkit.AcceptingBackend())

	req := meanDiscoveryRequest()
	req.Alpha = 1.5
	_, err := svc.Discover(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
}

func TestDiscoverRejectsDuplicateRun(t *testing.T) {
	svc, _ := newTestService(t, testkit.AcceptingBackend())
	req := meanDiscoveryRequest()

	_, err := svc.Discover(context.Background(), req)
	require.NoError(t, err)

	// the seed fingerprint is now terminal; a rerun must back off
	req.Strategy = optimizer.NewEvolutionStrategy(4, 0.2)
	_, err = svc.Discover(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeLedgerRace, apperrors.GetCode(err))
}

func TestInvalidateSimConfig(t *testing.T) {
	svc, kit := newTestService(t, testkit.AcceptingBackend())

	result, err := svc.Discover(context.Background(), meanDiscoveryRequest())
	require.NoError(t, err)

	require.NoError(t, svc.InvalidateSimConfig(context.Background(), result.Entry.Fingerprint))

	entry, err := kit.Ledger.Get(context.Background(), result.Entry.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, candidate.StateStale, entry.State)

	// invalidating twice is a no-op
	require.NoError(t, svc.InvalidateSimConfig(context.Background(), result.Entry.Fingerprint))
}
