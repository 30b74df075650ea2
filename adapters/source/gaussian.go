package source

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"godisc/domain/candidate"
)

// GaussianSource simulates i.i.d. normal observations. The null regime is
// N(mu0, sigma); the alternative shifts the mean by delta.
type GaussianSource struct {
	Mu0   float64
	Delta float64
	Sigma float64
}

// NewGaussianSource creates a standard-normal null with a shifted alternative
func NewGaussianSource(mu0, delta, sigma float64) *GaussianSource {
	if sigma <= 0 {
		sigma = 1
	}
	return &GaussianSource{Mu0: mu0, Delta: delta, Sigma: sigma}
}

// Draw produces n observations from the tagged regime, deterministic in seed
func (s *GaussianSource) Draw(ctx context.Context, regime candidate.Regime, n int, seed int64) ([]float64, error) {
	if n < 1 {
		return nil, fmt.Errorf("draw size must be positive, got %d", n)
	}

	mu := s.Mu0
	switch regime {
	case candidate.RegimeNull:
	case candidate.RegimeAlternative:
		mu += s.Delta
	default:
		return nil, fmt.Errorf("unknown regime %q", regime)
	}

	dist := distuv.Normal{Mu: mu, Sigma: s.Sigma, Src: rand.NewPCG(uint64(seed), 0)}
	batch := make([]float64, n)
	for i := range batch {
		batch[i] = dist.Rand()
	}
	return batch, nil
}
