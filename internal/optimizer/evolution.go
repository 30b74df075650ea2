package optimizer

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// EvolutionStrategy is a rank-and-perturb population search: perturb the
// current theta with Gaussian noise, rank proposals by reward, and
// recombine the top half with rank-proportional weights. No gradients.
type EvolutionStrategy struct {
	population int
	sigma      float64
	theta      []float64
	proposals  [][]float64
	noise      distuv.Normal
}

// NewEvolutionStrategy creates a rank-and-perturb strategy
func NewEvolutionStrategy(population int, sigma float64) *EvolutionStrategy {
	if population < 2 {
		population = 2
	}
	return &EvolutionStrategy{population: population, sigma: sigma}
}

// Name identifies the strategy
func (e *EvolutionStrategy) Name() string { return "rank_and_perturb" }

// Reset initializes the strategy at theta with a deterministic seed
func (e *EvolutionStrategy) Reset(seed int64, theta []float64) {
	e.theta = append([]float64(nil), theta...)
	e.noise = distuv.Normal{Mu: 0, Sigma: e.sigma, Src: rand.NewPCG(uint64(seed), 0)}
	e.proposals = nil
}

// Propose returns the perturbed population for this round. The first
// proposal is always the unperturbed current theta so a good incumbent is
// never lost to noise.
func (e *EvolutionStrategy) Propose() [][]float64 {
	e.proposals = make([][]float64, e.population)
	e.proposals[0] = append([]float64(nil), e.theta...)
	for p := 1; p < e.population; p++ {
		perturbed := make([]float64, len(e.theta))
		for i := range perturbed {
			perturbed[i] = e.theta[i] + e.noise.Rand()
		}
		e.proposals[p] = perturbed
	}
	return e.proposals
}

// Update recombines the top half of the ranked population
func (e *EvolutionStrategy) Update(rewards []float64) []float64 {
	type ranked struct {
		idx    int
		reward float64
	}
	order := make([]ranked, len(rewards))
	for i, r := range rewards {
		order[i] = ranked{idx: i, reward: r}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].reward > order[j].reward
	})

	elite := len(order) / 2
	if elite < 1 {
		elite = 1
	}

	next := make([]float64, len(e.theta))
	totalWeight := 0.0
	for rank := 0; rank < elite; rank++ {
		weight := float64(elite - rank)
		totalWeight += weight
		for i, v := range e.proposals[order[rank].idx] {
			next[i] += weight * v
		}
	}
	for i := range next {
		next[i] /= totalWeight
	}

	e.theta = next
	return append([]float64(nil), e.theta...)
}
