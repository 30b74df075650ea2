package source

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"godisc/domain/candidate"
)

// AR1Source simulates a stationary AR(1) process for dependence-aware
// calibration paths. Null is mean zero; the alternative shifts the level.
// Candidates drawn from this source should set the dependence flag so the
// calibrator uses the block bootstrap.
type AR1Source struct {
	Phi   float64 // autoregressive coefficient, |phi| < 1
	Delta float64
	Sigma float64 // innovation standard deviation
}

// NewAR1Source creates an AR(1) source
func NewAR1Source(phi, delta, sigma float64) (*AR1Source, error) {
	if math.Abs(phi) >= 1 {
		return nil, fmt.Errorf("AR(1) requires |phi| < 1, got %v", phi)
	}
	if sigma <= 0 {
		sigma = 1
	}
	return &AR1Source{Phi: phi, Delta: delta, Sigma: sigma}, nil
}

// Draw produces n observations from the tagged regime, deterministic in seed
func (s *AR1Source) Draw(ctx context.Context, regime candidate.Regime, n int, seed int64) ([]float64, error) {
	if n < 1 {
		return nil, fmt.Errorf("draw size must be positive, got %d", n)
	}

	level := 0.0
	switch regime {
	case candidate.RegimeNull:
	case candidate.RegimeAlternative:
		level = s.Delta
	default:
		return nil, fmt.Errorf("unknown regime %q", regime)
	}

	innov := distuv.Normal{Mu: 0, Sigma: s.Sigma, Src: rand.NewPCG(uint64(seed), 0)}

	// Start from the stationary distribution so early observations are not
	// biased toward zero.
	stationarySD := s.Sigma / math.Sqrt(1-s.Phi*s.Phi)
	batch := make([]float64, n)
	x := innov.Rand() / s.Sigma * stationarySD
	for i := range batch {
		batch[i] = level + x
		x = s.Phi*x + innov.Rand()
	}
	return batch, nil
}
