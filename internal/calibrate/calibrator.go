package calibrate

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/semaphore"

	"godisc/domain/candidate"
	"godisc/domain/core"
	"godisc/internal"
	"godisc/ports"
)

// MinResamples is the practical floor for percentile-bootstrap stability
const MinResamples = 200

// Options configure a Calibrator
type Options struct {
	Resamples         int
	Epsilon           float64 // slack on the validation rejection rate
	ValidationBatches int     // held-out batches used to estimate the rejection rate
	Workers           int64   // bound on concurrent resample evaluations
}

// Calibrator estimates a critical value controlling Type-I error for a
// candidate by bootstrap resampling under the null regime.
type Calibrator struct {
	source   ports.SampleSourcePort
	registry ports.FamilyRegistryPort
	rng      ports.RNGPort
	opts     Options
}

// NewCalibrator creates a calibrator with the given collaborators
func NewCalibrator(source ports.SampleSourcePort, registry ports.FamilyRegistryPort, rng ports.RNGPort, opts Options) *Calibrator {
	if opts.Resamples < MinResamples {
		opts.Resamples = MinResamples
	}
	if opts.ValidationBatches <= 0 {
		opts.ValidationBatches = 200
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Calibrator{source: source, registry: registry, rng: rng, opts: opts}
}

// Calibrate estimates the (1-alpha) critical value for the candidate.
// Round scopes the seeding so the optimizer loop can replay a round and
// reproduce the exact resampling indices.
//
// A validation rate above alpha+epsilon does not fail the call: the record
// comes back flagged Uncalibrated and the reward shaper treats that as a
// strong constraint violation. A degenerate statistic (fewer than 2 distinct
// resample values) is fatal for the candidate and must not be retried.
func (c *Calibrator) Calibrate(ctx context.Context, cand candidate.Candidate, runID core.RunID, round int) (*candidate.CalibrationRecord, error) {
	if err := cand.Validate(); err != nil {
		return nil, err
	}
	if c.opts.Resamples < MinResamples {
		return nil, core.ErrTooFewResamples
	}

	evaluator, err := c.registry.Lookup(ctx, cand.Family)
	if err != nil {
		return nil, fmt.Errorf("family lookup failed: %w", err)
	}
	if got := len(cand.Theta); got != evaluator.Arity() {
		return nil, fmt.Errorf("%w: got %d, family wants %d", core.ErrInvalidArity, got, evaluator.Arity())
	}

	n := cand.Sim.SampleSize
	batchSeed := c.rng.SeedFor(runID.String(), round, "calibration-batch", cand.Sim.BaseSeed)
	batch, err := c.source.Draw(ctx, candidate.RegimeNull, n, batchSeed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInsufficientData, err)
	}
	if len(batch) < n {
		return nil, fmt.Errorf("%w: got %d of %d observations", core.ErrInsufficientData, len(batch), n)
	}

	indexRNG, err := c.rng.Stream(ctx, runID.String(), round, "bootstrap", cand.Sim.BaseSeed)
	if err != nil {
		return nil, fmt.Errorf("bootstrap stream: %w", err)
	}

	method := candidate.ResampleIID
	blockLen := 0
	if cand.Sim.Dependence {
		method = candidate.ResampleBlock
		blockLen = cand.Sim.EffectiveBlockLen()
	}

	// Index sets are drawn sequentially from one stream so replay is
	// bit-for-bit; only statistic evaluation runs in parallel.
	indexSets := make([][]int, c.opts.Resamples)
	for b := range indexSets {
		if method == candidate.ResampleBlock {
			indexSets[b] = blockIndices(indexRNG, n, blockLen)
		} else {
			indexSets[b] = iidIndices(indexRNG, n)
		}
	}

	null, err := c.evaluateResamples(ctx, evaluator, cand.Theta, batch, indexSets)
	if err != nil {
		return nil, err
	}
	if distinctCount(null) < 2 {
		return nil, core.ErrDegenerateStatistic
	}

	observed, err := evaluator.Evaluate(cand.Theta, batch)
	if err != nil {
		return nil, core.NewCalibrationError("statistic evaluation failed", err)
	}
	// Each resample statistic is centered on the observed batch statistic.
	// The centered values approximate the sampling distribution of T around
	// its null value; an uncentered quantile would inherit this batch's own
	// draw noise and the validation rate would overshoot alpha.
	for b := range null {
		null[b] -= observed
	}

	critical := upperQuantile(null, cand.Alpha)

	rate, err := c.validationRate(ctx, cand, evaluator, critical, runID, round)
	if err != nil {
		return nil, err
	}

	summary := nullSummary(null)
	record := &candidate.CalibrationRecord{
		Fingerprint:     cand.Fingerprint(),
		CriticalValue:   critical,
		Method:          method,
		BlockLen:        blockLen,
		Resamples:       c.opts.Resamples,
		ValidationRate:  rate,
		Uncalibrated:    rate > cand.Alpha+c.opts.Epsilon,
		NullSummary:     summary,
		ResampleIndices: indexSets[0],
		CalibratedAt:    core.Now(),
	}

	if record.Uncalibrated {
		internal.DefaultLogger.Warn("[Calibrator] candidate %s uncalibrated: validation rate %.4f > %.4f",
			record.Fingerprint.String()[:12], rate, cand.Alpha+c.opts.Epsilon)
	} else {
		internal.DefaultLogger.Debug("[Calibrator] candidate %s critical=%.6f rate=%.4f",
			record.Fingerprint.String()[:12], critical, rate)
	}
	return record, nil
}

// evaluateResamples computes the statistic for every index set with a
// bounded worker pool and a full join before any quantile work. Exact
// order-statistic interpolation needs the complete sample; a running
// quantile would not do.
func (c *Calibrator) evaluateResamples(ctx context.Context, evaluator ports.EvaluatorPort, theta, batch []float64, indexSets [][]int) ([]float64, error) {
	sem := semaphore.NewWeighted(c.opts.Workers)
	null := make([]float64, len(indexSets))
	errs := make([]error, len(indexSets))

	var wg sync.WaitGroup
	for b := range indexSets {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(b int) {
			defer wg.Done()
			defer sem.Release(1)
			resample := make([]float64, len(indexSets[b]))
			for i, idx := range indexSets[b] {
				resample[i] = batch[idx]
			}
			null[b], errs[b] = evaluator.Evaluate(theta, resample)
		}(b)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, core.NewCalibrationError("statistic evaluation failed", err)
		}
	}
	return null, nil
}

// validationRate estimates the null rejection rate at the critical value on
// held-out batches, disjoint from the calibration batch by seed purpose.
func (c *Calibrator) validationRate(ctx context.Context, cand candidate.Candidate, evaluator ports.EvaluatorPort, critical float64, runID core.RunID, round int) (float64, error) {
	rejections := make([]float64, c.opts.ValidationBatches)
	for v := 0; v < c.opts.ValidationBatches; v++ {
		seed := c.rng.SeedFor(runID.String(), round, fmt.Sprintf("validation-%d", v), cand.Sim.BaseSeed)
		batch, err := c.source.Draw(ctx, candidate.RegimeNull, cand.Sim.SampleSize, seed)
		if err != nil {
			return 0, fmt.Errorf("%w: validation draw %d: %v", core.ErrInsufficientData, v, err)
		}
		stat, err := evaluator.Evaluate(cand.Theta, batch)
		if err != nil {
			return 0, core.NewCalibrationError("validation evaluation failed", err)
		}
		if stat > critical {
			rejections[v] = 1
		}
	}
	rate, err := stats.Mean(rejections)
	if err != nil {
		return 0, core.NewCalibrationError("validation rate", err)
	}
	return rate, nil
}

// iidIndices draws n indices with replacement
func iidIndices(rng *rand.Rand, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.Intn(n)
	}
	return idx
}

// blockIndices draws contiguous blocks of length blockLen (circular wrap)
// until n indices are filled, preserving local dependence structure
func blockIndices(rng *rand.Rand, n, blockLen int) []int {
	idx := make([]int, 0, n)
	for len(idx) < n {
		start := rng.Intn(n)
		for j := 0; j < blockLen && len(idx) < n; j++ {
			idx = append(idx, (start+j)%n)
		}
	}
	return idx
}

// upperQuantile returns the (1-alpha) quantile by linear interpolation
// between the order statistics at 1-indexed positions floor((1-alpha)*B)
// and ceil((1-alpha)*B), the deterministic tie-break.
func upperQuantile(values []float64, alpha float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	b := float64(len(sorted))
	pos := (1 - alpha) * b
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 1 {
		lo = 1
	}
	if hi < 1 {
		hi = 1
	}
	if hi > len(sorted) {
		hi = len(sorted)
	}
	if lo > len(sorted) {
		lo = len(sorted)
	}
	if lo == hi {
		return sorted[lo-1]
	}
	weight := pos - float64(lo)
	return sorted[lo-1]*(1-weight) + sorted[hi-1]*weight
}

func distinctCount(values []float64) int {
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
		if len(seen) >= 2 {
			return len(seen)
		}
	}
	return len(seen)
}

func nullSummary(null []float64) candidate.NullSummary {
	mean, _ := stats.Mean(null)
	sd, _ := stats.StandardDeviationSample(null)
	min, _ := stats.Min(null)
	max, _ := stats.Max(null)
	return candidate.NullSummary{Mean: mean, StdDev: sd, Min: min, Max: max}
}
