package shaper

import (
	"math"

	"godisc/domain/candidate"
)

// Signal is the scalar training feedback for one round
type Signal struct {
	Reward     float64
	RejectAlt  bool
	RejectNull bool
	NullRate   float64 // running EWMA of the null rejection indicator
	Violation  float64
	Dual       float64 // lambda after this round's ascent step
}

// DualState is the one deliberate piece of cross-round mutable state in the
// loop. It is owned by a single optimizer run, reset when a fresh run
// starts, and passed by value through Shape. Never share it across runs.
type DualState struct {
	Lambda   float64
	NullRate float64
	Primed   bool // whether NullRate has absorbed at least one observation
}

// Shaper combines power reward with a chance-constraint penalty enforced
// by dual ascent.
type Shaper struct {
	eta   float64 // dual step size; a configuration input, never auto-tuned
	decay float64 // EWMA decay for the running null rejection rate
}

// NewShaper creates a reward shaper with the given dual step size and
// EWMA decay
func NewShaper(eta, decay float64) *Shaper {
	return &Shaper{eta: eta, decay: decay}
}

// Shape computes the training signal from one fresh alternative rollout and
// one fresh null rollout, both disjoint from the calibration batches.
//
// The violation uses the running null rejection rate rather than the single
// binary draw: one indicator is far too noisy an estimate of a rate. The
// dual variable ascends on the constraint and is clamped at zero; a
// negative lambda would turn the penalty into a bonus.
func (s *Shaper) Shape(cand candidate.Candidate, rec candidate.CalibrationRecord, statAlt, statNull float64, state DualState) (Signal, DualState) {
	rejectAlt := statAlt > rec.CriticalValue
	rejectNull := statNull > rec.CriticalValue

	nullInd := 0.0
	if rejectNull {
		nullInd = 1.0
	}
	if rec.Uncalibrated {
		// An uncalibrated record is a known Type-I breach; count it as a
		// certain null rejection regardless of this round's draw.
		nullInd = 1.0
	}

	if state.Primed {
		state.NullRate = (1-s.decay)*state.NullRate + s.decay*nullInd
	} else {
		state.NullRate = nullInd
		state.Primed = true
	}

	violation := math.Max(0, state.NullRate-cand.Alpha)

	reward := 0.0
	if rejectAlt {
		reward = 1.0
	}
	reward -= state.Lambda * violation

	state.Lambda = math.Max(0, state.Lambda+s.eta*(state.NullRate-cand.Alpha))

	return Signal{
		Reward:     reward,
		RejectAlt:  rejectAlt,
		RejectNull: rejectNull,
		NullRate:   state.NullRate,
		Violation:  violation,
		Dual:       state.Lambda,
	}, state
}
