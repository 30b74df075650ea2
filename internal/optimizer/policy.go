package optimizer

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// PolicyGradientStrategy treats theta as the action of a Gaussian policy
// and follows an antithetic finite-difference estimate of the reward
// gradient: pairs theta +/- sigma*u score the direction u.
type PolicyGradientStrategy struct {
	pairs    int
	sigma    float64
	stepSize float64
	theta    []float64
	dirs     [][]float64
	noise    distuv.Normal
}

// NewPolicyGradientStrategy creates a policy-update strategy with the given
// number of antithetic pairs
func NewPolicyGradientStrategy(pairs int, sigma, stepSize float64) *PolicyGradientStrategy {
	if pairs < 1 {
		pairs = 1
	}
	return &PolicyGradientStrategy{pairs: pairs, sigma: sigma, stepSize: stepSize}
}

// Name identifies the strategy
func (p *PolicyGradientStrategy) Name() string { return "policy_gradient" }

// Reset initializes the strategy at theta with a deterministic seed
func (p *PolicyGradientStrategy) Reset(seed int64, theta []float64) {
	p.theta = append([]float64(nil), theta...)
	p.noise = distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(uint64(seed), 0)}
	p.dirs = nil
}

// Propose returns 2*pairs antithetic perturbations around the current theta
func (p *PolicyGradientStrategy) Propose() [][]float64 {
	p.dirs = make([][]float64, p.pairs)
	proposals := make([][]float64, 0, 2*p.pairs)
	for k := 0; k < p.pairs; k++ {
		dir := make([]float64, len(p.theta))
		for i := range dir {
			dir[i] = p.noise.Rand()
		}
		p.dirs[k] = dir

		plus := make([]float64, len(p.theta))
		minus := make([]float64, len(p.theta))
		for i := range p.theta {
			plus[i] = p.theta[i] + p.sigma*dir[i]
			minus[i] = p.theta[i] - p.sigma*dir[i]
		}
		proposals = append(proposals, plus, minus)
	}
	return proposals
}

// Update ascends the estimated gradient
func (p *PolicyGradientStrategy) Update(rewards []float64) []float64 {
	grad := make([]float64, len(p.theta))
	for k := 0; k < p.pairs; k++ {
		delta := (rewards[2*k] - rewards[2*k+1]) / (2 * p.sigma)
		for i := range grad {
			grad[i] += delta * p.dirs[k][i]
		}
	}
	for i := range p.theta {
		p.theta[i] += p.stepSize * grad[i] / float64(p.pairs)
	}
	return append([]float64(nil), p.theta...)
}
