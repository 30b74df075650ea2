package ports

import (
	"context"

	"godisc/domain/candidate"
)

// SampleSourcePort produces finite batches from a tagged generative regime.
// Draws must be deterministic given the seed.
type SampleSourcePort interface {
	Draw(ctx context.Context, regime candidate.Regime, n int, seed int64) ([]float64, error)
}
