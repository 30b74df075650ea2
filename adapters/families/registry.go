package families

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"godisc/domain/core"
	"godisc/ports"
)

// Registry maps family identifiers to statistic evaluators. New families
// register an implementation; there is no subclassing involved.
type Registry struct {
	mu       sync.RWMutex
	families map[core.FamilyID]ports.EvaluatorPort
}

// NewRegistry creates an empty family registry
func NewRegistry() *Registry {
	return &Registry{families: make(map[core.FamilyID]ports.EvaluatorPort)}
}

// NewDefaultRegistry creates a registry with the built-in families
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(FamilyWeightedMean, NewWeightedMeanFamily())
	_ = r.Register(FamilyScaledMean, NewScaledMeanFamily())
	_ = r.Register(FamilyVarianceRatio, NewVarianceRatioFamily())
	_ = r.Register(FamilyConstant, NewConstantFamily())
	return r
}

// Lookup resolves a family by identifier
func (r *Registry) Lookup(ctx context.Context, family core.FamilyID) (ports.EvaluatorPort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	evaluator, ok := r.families[family]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrFamilyNotFound, family)
	}
	return evaluator, nil
}

// Register adds a family; re-registering an identifier is an error
func (r *Registry) Register(family core.FamilyID, evaluator ports.EvaluatorPort) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.families[family]; exists {
		return fmt.Errorf("family %s already registered", family)
	}
	r.families[family] = evaluator
	return nil
}

// Families lists registered identifiers in stable order
func (r *Registry) Families() []core.FamilyID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.FamilyID, 0, len(r.families))
	for id := range r.families {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
