package families

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"godisc/domain/core"
)

// Built-in family identifiers
const (
	FamilyScaledMean    core.FamilyID = "scaled_mean"
	FamilyWeightedMean  core.FamilyID = "weighted_mean"
	FamilyVarianceRatio core.FamilyID = "variance_ratio"
	FamilyConstant      core.FamilyID = "constant"
)

// ScaledMeanFamily computes T = theta[0] * mean(x). With theta fixed at 1
// on standard-normal data this is the classic sample-mean test.
type ScaledMeanFamily struct{}

// NewScaledMeanFamily creates the scaled sample-mean family
func NewScaledMeanFamily() *ScaledMeanFamily { return &ScaledMeanFamily{} }

// Arity is the fixed theta length for this family
func (f *ScaledMeanFamily) Arity() int { return 1 }

// Evaluate computes the statistic; pure function of its inputs
func (f *ScaledMeanFamily) Evaluate(theta []float64, sample []float64) (float64, error) {
	if len(theta) != 1 {
		return 0, fmt.Errorf("scaled_mean wants 1 parameter, got %d", len(theta))
	}
	mean, err := stats.Mean(sample)
	if err != nil {
		return 0, err
	}
	return theta[0] * mean, nil
}

// WeightedMeanFamily computes T = theta[0]*mean(x) + theta[1]*median(x),
// a two-parameter location family whose weights the search can trade off
// between efficiency (mean) and robustness (median).
type WeightedMeanFamily struct{}

// NewWeightedMeanFamily creates the mean/median blend family
func NewWeightedMeanFamily() *WeightedMeanFamily { return &WeightedMeanFamily{} }

// Arity is the fixed theta length for this family
func (f *WeightedMeanFamily) Arity() int { return 2 }

// Evaluate computes the statistic; pure function of its inputs
func (f *WeightedMeanFamily) Evaluate(theta []float64, sample []float64) (float64, error) {
	if len(theta) != 2 {
		return 0, fmt.Errorf("weighted_mean wants 2 parameters, got %d", len(theta))
	}
	mean, err := stats.Mean(sample)
	if err != nil {
		return 0, err
	}
	median, err := stats.Median(sample)
	if err != nil {
		return 0, err
	}
	return theta[0]*mean + theta[1]*median, nil
}

// VarianceRatioFamily computes T = theta[0] * sqrt(n) * (var(x) - 1),
// sensitive to scale departures from a unit-variance null.
type VarianceRatioFamily struct{}

// NewVarianceRatioFamily creates the variance-departure family
func NewVarianceRatioFamily() *VarianceRatioFamily { return &VarianceRatioFamily{} }

// Arity is the fixed theta length for this family
func (f *VarianceRatioFamily) Arity() int { return 1 }

// Evaluate computes the statistic; pure function of its inputs
func (f *VarianceRatioFamily) Evaluate(theta []float64, sample []float64) (float64, error) {
	if len(theta) != 1 {
		return 0, fmt.Errorf("variance_ratio wants 1 parameter, got %d", len(theta))
	}
	variance, err := stats.SampleVariance(sample)
	if err != nil {
		return 0, err
	}
	return theta[0] * math.Sqrt(float64(len(sample))) * (variance - 1), nil
}

// ConstantFamily ignores the sample entirely: T = theta[0]. Every resample
// produces the same value, which makes it the canonical degenerate family
// for exercising calibration failure paths.
type ConstantFamily struct{}

// NewConstantFamily creates the degenerate constant family
func NewConstantFamily() *ConstantFamily { return &ConstantFamily{} }

// Arity is the fixed theta length for this family
func (f *ConstantFamily) Arity() int { return 1 }

// Evaluate returns theta[0] regardless of the sample
func (f *ConstantFamily) Evaluate(theta []float64, sample []float64) (float64, error) {
	if len(theta) != 1 {
		return 0, fmt.Errorf("constant wants 1 parameter, got %d", len(theta))
	}
	return theta[0], nil
}
