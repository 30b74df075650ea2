package optimizer

// Strategy is the capability the loop depends on: propose parameter
// vectors, learn from their rewards, and replay deterministically from a
// seed. Gradient-based and evolutionary updates both fit this contract;
// the loop never looks inside.
type Strategy interface {
	// Name identifies the strategy in logs and trajectory audits
	Name() string

	// Reset initializes the strategy at theta with a deterministic seed.
	// Resetting with the same seed and theta must replay identically.
	Reset(seed int64, theta []float64)

	// Propose returns the parameter vectors to evaluate this round.
	// Callers must not mutate the returned slices.
	Propose() [][]float64

	// Update consumes one reward per proposed vector (same order) and
	// returns the strategy's new current theta.
	Update(rewards []float64) []float64
}
