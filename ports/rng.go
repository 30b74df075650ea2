package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// Stream creates a deterministic RNG for a specific (run, round, purpose)
	// triple. Identical inputs must yield identical draw sequences so that
	// replay reproduces resampling indices bit-for-bit.
	Stream(ctx context.Context, runID string, round int, purpose string, baseSeed int64) (*rand.Rand, error)

	// SeedFor derives the scalar seed a Stream would use, for handing to
	// collaborators that seed themselves (e.g. the sample source).
	SeedFor(runID string, round int, purpose string, baseSeed int64) int64
}
