package rng

import (
	"context"
	"hash/fnv"
	"math/rand"
)

// StreamAdapter derives deterministic RNG streams from a (run, round,
// purpose) triple. Replaying a round with the same inputs reproduces the
// exact draw sequence, which is what makes resampling indices auditable.
type StreamAdapter struct{}

// NewStreamAdapter creates a deterministic stream adapter
func NewStreamAdapter() *StreamAdapter {
	return &StreamAdapter{}
}

// Stream creates a deterministic RNG for a specific (run, round, purpose) triple
func (a *StreamAdapter) Stream(ctx context.Context, runID string, round int, purpose string, baseSeed int64) (*rand.Rand, error) {
	return rand.New(rand.NewSource(a.SeedFor(runID, round, purpose, baseSeed))), nil
}

// SeedFor derives the scalar seed a Stream would use
func (a *StreamAdapter) SeedFor(runID string, round int, purpose string, baseSeed int64) int64 {
	h := fnv.New64a()
	h.Write([]byte(runID))
	h.Write([]byte{0})
	h.Write([]byte(purpose))
	h.Write([]byte{0})
	var roundBytes [8]byte
	for i := 0; i < 8; i++ {
		roundBytes[i] = byte(round >> (8 * i))
	}
	h.Write(roundBytes[:])
	return baseSeed ^ int64(h.Sum64())
}
