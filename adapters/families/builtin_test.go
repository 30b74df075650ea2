package families

import (
	"context"
	"errors"
	"math"
	"testing"

	"godisc/domain/core"
)

func TestScaledMean(t *testing.T) {
	f := NewScaledMeanFamily()
	got, err := f.Evaluate([]float64{2.0}, []float64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got != 5.0 {
		t.Errorf("2 * mean(1..4) = %f, want 5", got)
	}

	if _, err := f.Evaluate([]float64{1, 2}, []float64{1}); err == nil {
		t.Error("wrong arity must error")
	}
}

func TestWeightedMean(t *testing.T) {
	f := NewWeightedMeanFamily()
	got, err := f.Evaluate([]float64{1.0, 1.0}, []float64{1, 2, 3})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// mean = 2, median = 2
	if got != 4.0 {
		t.Errorf("mean + median = %f, want 4", got)
	}
}

func TestVarianceRatio(t *testing.T) {
	f := NewVarianceRatioFamily()
	// sample variance of {-1, 1} is 2: T = 1 * sqrt(2) * (2 - 1)
	got, err := f.Evaluate([]float64{1.0}, []float64{-1, 1})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if math.Abs(got-math.Sqrt2) > 1e-12 {
		t.Errorf("variance ratio = %f, want sqrt(2)", got)
	}
}

func TestConstantIgnoresSample(t *testing.T) {
	f := NewConstantFamily()
	a, _ := f.Evaluate([]float64{3.5}, []float64{1, 2, 3})
	b, _ := f.Evaluate([]float64{3.5}, []float64{100, 200})
	if a != 3.5 || b != 3.5 {
		t.Errorf("constant family must return theta[0]: %f, %f", a, b)
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()

	ids := r.Families()
	if len(ids) != 4 {
		t.Fatalf("default registry has %d families, want 4", len(ids))
	}

	for _, id := range []core.FamilyID{FamilyScaledMean, FamilyWeightedMean, FamilyVarianceRatio, FamilyConstant} {
		if _, err := r.Lookup(context.Background(), id); err != nil {
			t.Errorf("lookup %s: %v", id, err)
		}
	}

	if _, err := r.Lookup(context.Background(), core.FamilyID("missing")); !errors.Is(err, core.ErrFamilyNotFound) {
		t.Errorf("missing family must be ErrFamilyNotFound, got %v", err)
	}

	if err := r.Register(FamilyScaledMean, NewScaledMeanFamily()); err == nil {
		t.Error("re-registering a family must error")
	}
}
