package calibrate

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"godisc/adapters/families"
	"godisc/adapters/source"
	"godisc/domain/candidate"
	"godisc/domain/core"
	"godisc/internal/rng"
)

func newTestCalibrator(opts Options) *Calibrator {
	return NewCalibrator(
		source.NewGaussianSource(0, 0.5, 1),
		families.NewDefaultRegistry(),
		rng.NewStreamAdapter(),
		opts,
	)
}

func meanCandidate(n int, seed int64) candidate.Candidate {
	return candidate.Candidate{
		Family: families.FamilyScaledMean,
		Theta:  []float64{1.0},
		Alpha:  0.05,
		Sim:    candidate.SimConfig{SampleSize: n, BaseSeed: seed},
	}
}

func TestCalibrateScaledMean(t *testing.T) {
	cal := newTestCalibrator(Options{Resamples: 2000, Epsilon: 0.02, Workers: 4})
	cand := meanCandidate(100, 42)

	rec, err := cal.Calibrate(context.Background(), cand, core.RunID("run-1"), 0)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}

	// the centered bootstrap null of the sample mean at n=100 is roughly
	// N(0, 1/100); the 95th percentile lands near 1.645/10 = 0.164
	if rec.CriticalValue < 0.08 || rec.CriticalValue > 0.28 {
		t.Errorf("critical value %f outside the plausible band for a mean statistic", rec.CriticalValue)
	}
	if rec.Method != candidate.ResampleIID {
		t.Errorf("method = %s, want iid for independent data", rec.Method)
	}
	if rec.Resamples != 2000 {
		t.Errorf("resamples = %d, want 2000", rec.Resamples)
	}
	if rec.ValidationRate < 0 || rec.ValidationRate > 1 {
		t.Errorf("validation rate %f out of [0,1]", rec.ValidationRate)
	}
	if rec.Fingerprint != cand.Fingerprint() {
		t.Error("record must carry the candidate's fingerprint")
	}
	if len(rec.ResampleIndices) != 100 {
		t.Errorf("stored index draw has %d entries, want n=100", len(rec.ResampleIndices))
	}
	if rec.NullSummary.StdDev <= 0 {
		t.Error("null summary must have positive spread")
	}
}

func TestCalibrateSmallSampleCriticalValue(t *testing.T) {
	// standard-normal mean family, n=30, alpha=0.05, B=2000: the critical
	// value must track 1.645/sqrt(30) = 0.300 and the validation rejection
	// rate must sit near alpha. Averaging over independent rounds keeps the
	// assertions inside bootstrap sampling error.
	const trials = 40
	cal := newTestCalibrator(Options{Resamples: 2000, Epsilon: 0.02, ValidationBatches: 400, Workers: 8})

	sumCritical, sumRate := 0.0, 0.0
	for round := 0; round < trials; round++ {
		rec, err := cal.Calibrate(context.Background(), meanCandidate(30, 42), core.RunID("run-small"), round)
		if err != nil {
			t.Fatalf("calibrate round %d: %v", round, err)
		}
		sumCritical += rec.CriticalValue
		sumRate += rec.ValidationRate
	}

	meanCritical := sumCritical / trials
	meanRate := sumRate / trials

	want := 1.645 / math.Sqrt(30)
	if math.Abs(meanCritical-want) > 0.05 {
		t.Errorf("mean critical value %.4f, want %.4f within bootstrap sampling error", meanCritical, want)
	}
	if meanRate < 0.03 || meanRate > 0.07 {
		t.Errorf("mean validation rate %.4f outside [0.03, 0.07]", meanRate)
	}
}

func TestCalibrateRateWithinSlackAcrossTrials(t *testing.T) {
	// at fixed B the validation rejection rate must stay within alpha+epsilon
	// on at least 95% of independent calibrations
	const (
		trials  = 40
		alpha   = 0.05
		epsilon = 0.05
	)
	cal := newTestCalibrator(Options{Resamples: 500, Epsilon: epsilon, ValidationBatches: 200, Workers: 8})

	violations := 0
	for round := 0; round < trials; round++ {
		rec, err := cal.Calibrate(context.Background(), meanCandidate(100, 7), core.RunID("run-slack"), round)
		if err != nil {
			t.Fatalf("calibrate round %d: %v", round, err)
		}
		if rec.ValidationRate > alpha+epsilon {
			violations++
		}
		if rec.Uncalibrated != (rec.ValidationRate > alpha+epsilon) {
			t.Errorf("round %d: uncalibrated flag disagrees with rate %.4f", round, rec.ValidationRate)
		}
	}

	if violations > trials/20 {
		t.Errorf("%d of %d calibrations exceeded alpha+epsilon, want at most 5%%", violations, trials)
	}
}

func TestCalibrateDeterministic(t *testing.T) {
	opts := Options{Resamples: 400, Epsilon: 0.02, ValidationBatches: 50, Workers: 8}
	cand := meanCandidate(50, 7)

	a, err := newTestCalibrator(opts).Calibrate(context.Background(), cand, core.RunID("run-x"), 3)
	if err != nil {
		t.Fatalf("first calibrate: %v", err)
	}
	b, err := newTestCalibrator(opts).Calibrate(context.Background(), cand, core.RunID("run-x"), 3)
	if err != nil {
		t.Fatalf("second calibrate: %v", err)
	}

	if a.CriticalValue != b.CriticalValue {
		t.Errorf("same (run, round, seed) must reproduce the critical value: %v vs %v", a.CriticalValue, b.CriticalValue)
	}
	if len(a.ResampleIndices) != len(b.ResampleIndices) {
		t.Fatal("index draws differ in length")
	}
	for i := range a.ResampleIndices {
		if a.ResampleIndices[i] != b.ResampleIndices[i] {
			t.Fatalf("index draw diverges at position %d", i)
		}
	}
	if a.ValidationRate != b.ValidationRate {
		t.Errorf("validation rates differ: %v vs %v", a.ValidationRate, b.ValidationRate)
	}
}

func TestCalibrateSeedSensitivity(t *testing.T) {
	opts := Options{Resamples: 400, Epsilon: 0.02, ValidationBatches: 50, Workers: 4}
	cal := newTestCalibrator(opts)

	a, err := cal.Calibrate(context.Background(), meanCandidate(50, 1), core.RunID("run-x"), 0)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	b, err := cal.Calibrate(context.Background(), meanCandidate(50, 2), core.RunID("run-x"), 0)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if a.CriticalValue == b.CriticalValue {
		t.Error("different base seeds should produce different critical values")
	}
}

func TestCalibrateDegenerate(t *testing.T) {
	cal := newTestCalibrator(Options{Resamples: 300, Epsilon: 0.02, Workers: 4})
	cand := candidate.Candidate{
		Family: families.FamilyConstant,
		Theta:  []float64{1.0},
		Alpha:  0.05,
		Sim:    candidate.SimConfig{SampleSize: 50, BaseSeed: 9},
	}

	_, err := cal.Calibrate(context.Background(), cand, core.RunID("run-d"), 0)
	if !errors.Is(err, core.ErrDegenerateStatistic) {
		t.Errorf("constant family must fail with ErrDegenerateStatistic, got %v", err)
	}
	if !core.IsCalibrationFailure(err) {
		t.Error("degenerate statistic must classify as a calibration failure")
	}
}

func TestCalibrateBlockBootstrap(t *testing.T) {
	ar1, err := source.NewAR1Source(0.6, 0.5, 1)
	if err != nil {
		t.Fatalf("ar1 source: %v", err)
	}
	cal := NewCalibrator(ar1, families.NewDefaultRegistry(), rng.NewStreamAdapter(),
		Options{Resamples: 400, Epsilon: 0.02, ValidationBatches: 50, Workers: 4})

	cand := meanCandidate(100, 11)
	cand.Sim.Dependence = true

	rec, err := cal.Calibrate(context.Background(), cand, core.RunID("run-b"), 0)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if rec.Method != candidate.ResampleBlock {
		t.Errorf("method = %s, want block when dependence is flagged", rec.Method)
	}
	if rec.BlockLen != 5 {
		t.Errorf("block length = %d, want ceil(100^(1/3)) = 5", rec.BlockLen)
	}
}

func TestCalibrateArityMismatch(t *testing.T) {
	cal := newTestCalibrator(Options{Resamples: 300, Workers: 2})
	cand := meanCandidate(50, 1)
	cand.Theta = []float64{1.0, 2.0}

	_, err := cal.Calibrate(context.Background(), cand, core.RunID("run-a"), 0)
	if !errors.Is(err, core.ErrInvalidArity) {
		t.Errorf("arity mismatch must fail with ErrInvalidArity, got %v", err)
	}
}

func TestCalibrateUnknownFamily(t *testing.T) {
	cal := newTestCalibrator(Options{Resamples: 300, Workers: 2})
	cand := meanCandidate(50, 1)
	cand.Family = core.FamilyID("no_such_family")

	_, err := cal.Calibrate(context.Background(), cand, core.RunID("run-a"), 0)
	if !errors.Is(err, core.ErrFamilyNotFound) {
		t.Errorf("unknown family must fail with ErrFamilyNotFound, got %v", err)
	}
}

func TestUpperQuantileExact(t *testing.T) {
	// 100 values 1..100, alpha=0.05: position (1-0.05)*100 = 95 exactly,
	// so the quantile is the 95th order statistic
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i + 1)
	}
	if got := upperQuantile(values, 0.05); got != 95 {
		t.Errorf("upperQuantile = %f, want 95", got)
	}
}

func TestUpperQuantileInterpolated(t *testing.T) {
	// 10 values 1..10, alpha=0.05: position 9.5 interpolates midway between
	// the 9th and 10th order statistics
	values := []float64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}
	if got := upperQuantile(values, 0.05); math.Abs(got-9.5) > 1e-12 {
		t.Errorf("upperQuantile = %f, want 9.5", got)
	}
}

func TestUpperQuantileBounds(t *testing.T) {
	values := []float64{3, 1, 2}
	// alpha near 1 clamps at the smallest order statistic
	if got := upperQuantile(values, 0.999); got != 1 {
		t.Errorf("lower clamp = %f, want 1", got)
	}
	// alpha near 0 clamps at the largest
	if got := upperQuantile(values, 1e-9); math.Abs(got-3) > 1e-6 {
		t.Errorf("upper clamp = %f, want 3", got)
	}
}

func TestBlockIndicesShape(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	idx := blockIndices(r, 20, 4)
	if len(idx) != 20 {
		t.Fatalf("block resample has %d indices, want 20", len(idx))
	}
	for i, v := range idx {
		if v < 0 || v >= 20 {
			t.Fatalf("index %d out of range at %d", v, i)
		}
	}
	// within a block, consecutive indices advance by one modulo n
	for i := 1; i < 4; i++ {
		if idx[i] != (idx[i-1]+1)%20 {
			// the first block is always full length, so this must hold
			t.Errorf("first block is not contiguous: %v", idx[:4])
			break
		}
	}
}

func TestIIDIndicesShape(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	idx := iidIndices(r, 50)
	if len(idx) != 50 {
		t.Fatalf("iid resample has %d indices, want 50", len(idx))
	}
	for _, v := range idx {
		if v < 0 || v >= 50 {
			t.Fatalf("index %d out of range", v)
		}
	}
}
