package ports

import (
	"context"

	"godisc/domain/core"
)

// EvaluatorPort computes a real-valued statistic from theta and a sample.
// Implementations must be pure functions for reproducibility.
type EvaluatorPort interface {
	Evaluate(theta []float64, sample []float64) (float64, error)

	// Arity is the fixed theta length for this family
	Arity() int
}

// FamilyRegistryPort resolves statistic families by identifier.
// Registration replaces the source material's subclassing pattern:
// an interface table keyed by family ID, not inheritance.
type FamilyRegistryPort interface {
	Lookup(ctx context.Context, family core.FamilyID) (EvaluatorPort, error)
	Register(family core.FamilyID, evaluator EvaluatorPort) error
	Families() []core.FamilyID
}
