package optimizer

import (
	"context"
	"fmt"
	"log"
	"math"

	"godisc/domain/candidate"
	"godisc/domain/core"
	"godisc/internal"
	"godisc/internal/calibrate"
	"godisc/internal/shaper"
	"godisc/ports"
)

// DegenerateReward is the worst-possible sentinel assigned to proposals
// whose calibration failed. The strategy sees them score last; the loop
// never crashes on them.
const DegenerateReward = -1e9

// RunRequest defines one optimization run
type RunRequest struct {
	RunID        core.RunID
	Family       core.FamilyID
	InitialTheta []float64
	Alpha        float64
	Sim          candidate.SimConfig
	Rounds       int
	Patience     int
	Tolerance    float64
	Epsilon      float64
	Seed         int64

	// History, when non-empty, is a trajectory prefix to resume from.
	// Strategy updates are replayed from the recorded per-proposal rewards
	// so the continued trajectory is identical to an uninterrupted run.
	History []candidate.TrainingRound
}

// RunResult holds the converged parameters and the full trajectory
type RunResult struct {
	RunID       core.RunID
	ThetaFinal  []float64
	Calibration *candidate.CalibrationRecord
	History     []candidate.TrainingRound
	Feasible    bool
	Rounds      int
}

// Loop drives theta through successive strategy updates. It owns the dual
// state for its run; nothing else may touch lambda.
type Loop struct {
	calibrator *calibrate.Calibrator
	shaper     *shaper.Shaper
	source     ports.SampleSourcePort
	registry   ports.FamilyRegistryPort
	rng        ports.RNGPort
	trajectory ports.TrajectoryLogPort
	strategy   Strategy

	dual shaper.DualState
}

// NewLoop creates an optimizer loop around a strategy
func NewLoop(calibrator *calibrate.Calibrator, rewardShaper *shaper.Shaper, source ports.SampleSourcePort, registry ports.FamilyRegistryPort, rng ports.RNGPort, trajectory ports.TrajectoryLogPort, strategy Strategy) *Loop {
	return &Loop{
		calibrator: calibrator,
		shaper:     rewardShaper,
		source:     source,
		registry:   registry,
		rng:        rng,
		trajectory: trajectory,
		strategy:   strategy,
	}
}

// Run executes the round protocol until the budget is spent or the early
// stop fires. Early stop needs BOTH a reward plateau and a near-zero
// running violation: an infeasible plateau keeps running or fails.
func (l *Loop) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.Rounds <= 0 {
		return nil, fmt.Errorf("round budget must be positive")
	}

	evaluator, err := l.registry.Lookup(ctx, req.Family)
	if err != nil {
		return nil, err
	}
	if len(req.InitialTheta) != evaluator.Arity() {
		return nil, fmt.Errorf("%w: got %d, family wants %d", core.ErrInvalidArity, len(req.InitialTheta), evaluator.Arity())
	}

	// Fresh run: lambda and the running null rate reset here and nowhere else.
	l.dual = shaper.DualState{}
	l.strategy.Reset(req.Seed, req.InitialTheta)

	theta := append([]float64(nil), req.InitialTheta...)
	history := make([]candidate.TrainingRound, 0, req.Rounds)
	startRound := 0

	if len(req.History) > 0 {
		theta, startRound = l.replayPrefix(req.History)
		history = append(history, req.History...)
		log.Printf("[OptimizerLoop] run %s resumed at round %d", req.RunID, startRound)
	}

	var (
		best         *candidate.CalibrationRecord
		bestTheta    []float64
		bestFeasible = math.Inf(-1)
		rewardWindow []float64
	)

	for round := startRound; round < req.Rounds; round++ {
		select {
		case <-ctx.Done():
			// Cancellation stops new rounds; completed work stands.
			return nil, ctx.Err()
		default:
		}

		proposals := l.strategy.Propose()
		rewards := make([]float64, len(proposals))
		states := make([]shaper.DualState, len(proposals))
		degenerate := false

		for p, proposalTheta := range proposals {
			cand := candidate.Candidate{
				Family: req.Family,
				Theta:  proposalTheta,
				Alpha:  req.Alpha,
				Sim:    req.Sim,
			}

			rec, err := l.calibrator.Calibrate(ctx, cand, req.RunID, round)
			if err != nil {
				if core.IsCalibrationFailure(err) {
					internal.DefaultLogger.Debug("[OptimizerLoop] run %s round %d proposal %d degenerate: %v", req.RunID, round, p, err)
					rewards[p] = DegenerateReward
					states[p] = l.dual
					degenerate = true
					continue
				}
				return nil, fmt.Errorf("round %d: %w", round, err)
			}

			statAlt, statNull, err := l.rollouts(ctx, req.RunID, cand, evaluator, round, p)
			if err != nil {
				// An evaluation failure spoils this proposal, not the run.
				// Only an unreachable source aborts.
				if core.IsCalibrationFailure(err) {
					internal.DefaultLogger.Debug("[OptimizerLoop] run %s round %d proposal %d rollout failed: %v", req.RunID, round, p, err)
					rewards[p] = DegenerateReward
					states[p] = l.dual
					degenerate = true
					continue
				}
				return nil, fmt.Errorf("round %d rollouts: %w", round, err)
			}

			// Each proposal is scored against a copy of the dual state;
			// only the selected proposal's state is committed below.
			sig, next := l.shaper.Shape(cand, *rec, statAlt, statNull, l.dual)
			rewards[p] = sig.Reward
			states[p] = next

			if !rec.Uncalibrated && sig.Violation <= req.Epsilon && sig.Reward > bestFeasible {
				best = rec
				bestTheta = append([]float64(nil), proposalTheta...)
				bestFeasible = sig.Reward
			}
		}

		selected := argmax(rewards)
		l.dual = states[selected]

		thetaOut := l.strategy.Update(rewards)

		tr := candidate.TrainingRound{
			RunID:           req.RunID,
			Index:           round,
			ThetaIn:         theta,
			ThetaOut:        thetaOut,
			Reward:          rewards[selected],
			Dual:            l.dual.Lambda,
			NullRate:        l.dual.NullRate,
			ProposalRewards: rewards,
			Degenerate:      degenerate && rewards[selected] == DegenerateReward,
		}
		history = append(history, tr)
		if l.trajectory != nil {
			if err := l.trajectory.Append(ctx, tr); err != nil {
				return nil, fmt.Errorf("trajectory append: %w", err)
			}
		}
		theta = thetaOut

		rewardWindow = append(rewardWindow, rewards[selected])
		if l.shouldStop(rewardWindow, req.Patience, req.Tolerance, req.Epsilon, tr.NullRate, req.Alpha) {
			log.Printf("[OptimizerLoop] run %s early stop at round %d (reward plateau, violation within epsilon)", req.RunID, round)
			break
		}
	}

	if best == nil {
		return nil, fmt.Errorf("run %s: %w", req.RunID, core.ErrNoFeasibleCandidate)
	}

	return &RunResult{
		RunID:       req.RunID,
		ThetaFinal:  bestTheta,
		Calibration: best,
		History:     history,
		Feasible:    true,
		Rounds:      len(history),
	}, nil
}

// replayPrefix fast-forwards the strategy through the recorded prefix using
// the stored per-proposal rewards; no calibration is repeated.
func (l *Loop) replayPrefix(prefix []candidate.TrainingRound) ([]float64, int) {
	theta := prefix[len(prefix)-1].ThetaOut
	for _, round := range prefix {
		l.strategy.Propose()
		l.strategy.Update(round.ProposalRewards)
		l.dual.Lambda = round.Dual
		l.dual.NullRate = round.NullRate
		l.dual.Primed = true
	}
	return append([]float64(nil), theta...), len(prefix)
}

// rollouts draws one fresh alternative batch and one fresh null batch for
// the proposal, disjoint from the calibration batches by seed purpose.
func (l *Loop) rollouts(ctx context.Context, runID core.RunID, cand candidate.Candidate, evaluator ports.EvaluatorPort, round, proposal int) (float64, float64, error) {
	altSeed := l.rng.SeedFor(runID.String(), round, fmt.Sprintf("rollout-alt-%d", proposal), cand.Sim.BaseSeed)
	nullSeed := l.rng.SeedFor(runID.String(), round, fmt.Sprintf("rollout-null-%d", proposal), cand.Sim.BaseSeed)

	altBatch, err := l.source.Draw(ctx, candidate.RegimeAlternative, cand.Sim.SampleSize, altSeed)
	if err != nil {
		return 0, 0, err
	}
	nullBatch, err := l.source.Draw(ctx, candidate.RegimeNull, cand.Sim.SampleSize, nullSeed)
	if err != nil {
		return 0, 0, err
	}

	statAlt, err := evaluator.Evaluate(cand.Theta, altBatch)
	if err != nil {
		return 0, 0, core.NewCalibrationError("rollout evaluation failed", err)
	}
	statNull, err := evaluator.Evaluate(cand.Theta, nullBatch)
	if err != nil {
		return 0, 0, core.NewCalibrationError("rollout evaluation failed", err)
	}
	return statAlt, statNull, nil
}

// shouldStop checks the two-part early-stop condition
func (l *Loop) shouldStop(window []float64, patience int, tolerance, epsilon, nullRate, alpha float64) bool {
	if patience <= 0 || len(window) < 2*patience {
		return false
	}
	recent := window[len(window)-patience:]
	prior := window[len(window)-2*patience : len(window)-patience]
	improvement := mean(recent) - mean(prior)
	if improvement > tolerance {
		return false
	}
	// A pure reward plateau is not convergence; the constraint must hold too.
	violation := math.Max(0, nullRate-alpha)
	return violation <= epsilon
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
