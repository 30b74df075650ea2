package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"godisc/domain/candidate"
	"godisc/domain/core"
	"godisc/internal/calibrate"
	apperrors "godisc/internal/errors"
	"godisc/internal/optimizer"
	"godisc/internal/shaper"
	"godisc/internal/verify"
	"godisc/ports"
)

// DiscoveryService orchestrates the full search -> calibrate -> verify
// pipeline and routes every lifecycle change through the ledger.
type DiscoveryService struct {
	calibrator *calibrate.Calibrator
	shaper     *shaper.Shaper
	source     ports.SampleSourcePort
	registry   ports.FamilyRegistryPort
	rng        ports.RNGPort
	trajectory ports.TrajectoryLogPort
	gate       *verify.Gate
	ledger     ports.LedgerPort
}

// DiscoveryRequest defines one discovery attempt
type DiscoveryRequest struct {
	Family       core.FamilyID
	InitialTheta []float64
	Alpha        float64
	Sim          candidate.SimConfig
	Rounds       int
	Patience     int
	Tolerance    float64
	Epsilon      float64
	Seed         int64
	Strategy     optimizer.Strategy
}

// DiscoveryResult holds the certified (or rejected) outcome
type DiscoveryResult struct {
	RunID      core.RunID
	Entry      *candidate.LedgerEntry
	Obligation *candidate.VerificationObligation
	Run        *optimizer.RunResult
	RuntimeMs  int64
}

// NewDiscoveryService creates a discovery service
func NewDiscoveryService(calibrator *calibrate.Calibrator, rewardShaper *shaper.Shaper, source ports.SampleSourcePort, registry ports.FamilyRegistryPort, rng ports.RNGPort, trajectory ports.TrajectoryLogPort, gate *verify.Gate, ledgerPort ports.LedgerPort) *DiscoveryService {
	return &DiscoveryService{
		calibrator: calibrator,
		shaper:     rewardShaper,
		source:     source,
		registry:   registry,
		rng:        rng,
		trajectory: trajectory,
		gate:       gate,
		ledger:     ledgerPort,
	}
}

// Discover runs the loop end to end. A failed search surfaces
// NO_FEASIBLE_CANDIDATE; a feasible candidate whose proof the backend
// rejects surfaces CERTIFICATION_DENIED. The two are never conflated.
func (s *DiscoveryService) Discover(ctx context.Context, req DiscoveryRequest) (*DiscoveryResult, error) {
	start := time.Now()
	runID := core.RunID(core.NewID())

	seed := candidate.Candidate{Family: req.Family, Theta: req.InitialTheta, Alpha: req.Alpha, Sim: req.Sim}
	if err := seed.Validate(); err != nil {
		return nil, apperrors.WithCode(apperrors.CodeInvalidInput, err)
	}

	seedEntry, err := s.ledger.Create(ctx, seed, runID)
	if err != nil {
		return nil, apperrors.Wrap(err, "ledger create failed")
	}
	if seedEntry.State.Terminal() {
		return nil, apperrors.LedgerRace(fmt.Sprintf("fingerprint %s already terminal (%s)", seedEntry.Fingerprint, seedEntry.State))
	}
	if ok, err := s.ledger.Transition(ctx, seedEntry.Fingerprint, candidate.StateProposed, candidate.StateCalibrating); err != nil {
		return nil, apperrors.Wrap(err, "ledger transition failed")
	} else if !ok {
		// Another run owns this fingerprint; back off.
		return nil, apperrors.LedgerRace(fmt.Sprintf("fingerprint %s not in proposed state", seedEntry.Fingerprint))
	}

	log.Printf("[DiscoveryService] run %s searching family %s (alpha=%.3f, n=%d, rounds=%d)",
		runID, req.Family, req.Alpha, req.Sim.SampleSize, req.Rounds)

	loop := optimizer.NewLoop(s.calibrator, s.shaper, s.source, s.registry, s.rng, s.trajectory, req.Strategy)
	runResult, err := loop.Run(ctx, optimizer.RunRequest{
		RunID:        runID,
		Family:       req.Family,
		InitialTheta: req.InitialTheta,
		Alpha:        req.Alpha,
		Sim:          req.Sim,
		Rounds:       req.Rounds,
		Patience:     req.Patience,
		Tolerance:    req.Tolerance,
		Epsilon:      req.Epsilon,
		Seed:         req.Seed,
	})
	if err != nil {
		if errors.Is(err, core.ErrNoFeasibleCandidate) {
			if _, terr := s.ledger.Transition(ctx, seedEntry.Fingerprint, candidate.StateCalibrating, candidate.StateRejected); terr != nil {
				log.Printf("[DiscoveryService] run %s: reject transition failed: %v", runID, terr)
			}
			return nil, apperrors.WithCode(apperrors.CodeNoFeasibleCandidate, err)
		}
		return nil, apperrors.Wrap(err, "optimizer run failed")
	}

	winner := candidate.Candidate{Family: req.Family, Theta: runResult.ThetaFinal, Alpha: req.Alpha, Sim: req.Sim}
	winnerFP, err := s.promoteWinner(ctx, winner, seedEntry.Fingerprint, runID, *runResult.Calibration)
	if err != nil {
		return nil, err
	}

	obligation, err := s.certify(ctx, winnerFP, winner, *runResult.Calibration)
	if err != nil {
		return nil, err
	}

	entry, err := s.ledger.Get(ctx, winnerFP)
	if err != nil {
		return nil, apperrors.Wrap(err, "ledger read failed")
	}

	result := &DiscoveryResult{
		RunID:      runID,
		Entry:      entry,
		Obligation: obligation,
		Run:        runResult,
		RuntimeMs:  time.Since(start).Milliseconds(),
	}
	if entry.State != candidate.StateCertified {
		return result, apperrors.New(apperrors.CodeCertificationDenied, core.ErrCertificationDenied.Error())
	}
	log.Printf("[DiscoveryService] run %s certified %s in %dms", runID, winnerFP.String()[:12], result.RuntimeMs)
	return result, nil
}

// promoteWinner moves the converged candidate to the calibrated state. The
// seed entry is closed out when the search moved past it.
func (s *DiscoveryService) promoteWinner(ctx context.Context, winner candidate.Candidate, seedFP core.Fingerprint, runID core.RunID, rec candidate.CalibrationRecord) (core.Fingerprint, error) {
	winnerFP := winner.Fingerprint()

	if winnerFP != seedFP {
		if _, err := s.ledger.Create(ctx, winner, runID); err != nil {
			return "", apperrors.Wrap(err, "ledger create for winner failed")
		}
		if ok, err := s.ledger.Transition(ctx, winnerFP, candidate.StateProposed, candidate.StateCalibrating); err != nil {
			return "", apperrors.Wrap(err, "winner transition failed")
		} else if !ok {
			return "", apperrors.LedgerRace(fmt.Sprintf("winner %s not in proposed state", winnerFP))
		}
		if ok, err := s.ledger.Transition(ctx, seedFP, candidate.StateCalibrating, candidate.StateRejected); err != nil || !ok {
			log.Printf("[DiscoveryService] seed entry %s close-out skipped (ok=%v err=%v)", seedFP.String()[:12], ok, err)
		}
	}

	if err := s.ledger.AttachCalibration(ctx, winnerFP, rec); err != nil {
		return "", apperrors.Wrap(err, "attach calibration failed")
	}
	if ok, err := s.ledger.Transition(ctx, winnerFP, candidate.StateCalibrating, candidate.StateCalibrated); err != nil {
		return "", apperrors.Wrap(err, "calibrated transition failed")
	} else if !ok {
		return "", apperrors.LedgerRace(fmt.Sprintf("winner %s not in calibrating state", winnerFP))
	}
	return winnerFP, nil
}

// certify submits the proof obligation and applies the gate's guarantee:
// no certified entry without an accepted obligation whose fields exactly
// match the entry's own candidate and calibration record.
func (s *DiscoveryService) certify(ctx context.Context, fp core.Fingerprint, winner candidate.Candidate, rec candidate.CalibrationRecord) (*candidate.VerificationObligation, error) {
	if ok, err := s.ledger.Transition(ctx, fp, candidate.StateCalibrated, candidate.StateVerifying); err != nil {
		return nil, apperrors.Wrap(err, "verifying transition failed")
	} else if !ok {
		return nil, apperrors.LedgerRace(fmt.Sprintf("candidate %s not in calibrated state", fp))
	}

	obligation, err := s.gate.Verify(ctx, winner, rec)
	if obligation != nil {
		if attachErr := s.ledger.AttachObligation(ctx, fp, *obligation); attachErr != nil {
			log.Printf("[DiscoveryService] attach obligation failed: %v", attachErr)
		}
	}
	if err != nil {
		return obligation, apperrors.BackendUnavailable(err)
	}

	if obligation.Outcome == candidate.OutcomeAccepted {
		// Guard against a stale record: the obligation must match what the
		// ledger holds right now, not what was submitted.
		entry, err := s.ledger.Get(ctx, fp)
		if err != nil {
			return obligation, apperrors.Wrap(err, "ledger read failed")
		}
		if entry.Calibration == nil || !obligation.Matches(entry.Candidate, *entry.Calibration) {
			log.Printf("[DiscoveryService] obligation %s does not match current calibration; refusing certification", obligation.ID)
			if _, terr := s.ledger.Transition(ctx, fp, candidate.StateVerifying, candidate.StateRejected); terr != nil {
				return obligation, apperrors.Wrap(terr, "reject transition failed")
			}
			return obligation, apperrors.WithCode(apperrors.CodeCertificationDenied, core.ErrRecordMismatch)
		}
		if ok, err := s.ledger.Transition(ctx, fp, candidate.StateVerifying, candidate.StateCertified); err != nil {
			return obligation, apperrors.Wrap(err, "certified transition failed")
		} else if !ok {
			return obligation, apperrors.LedgerRace(fmt.Sprintf("candidate %s left verifying state", fp))
		}
		return obligation, nil
	}

	if _, terr := s.ledger.Transition(ctx, fp, candidate.StateVerifying, candidate.StateRejected); terr != nil {
		return obligation, apperrors.Wrap(terr, "reject transition failed")
	}
	return obligation, nil
}

// InvalidateSimConfig marks an entry stale when its governing simulation
// configuration no longer holds. Stale is a logical delete kept for audit.
func (s *DiscoveryService) InvalidateSimConfig(ctx context.Context, fp core.Fingerprint) error {
	entry, err := s.ledger.Get(ctx, fp)
	if err != nil {
		return err
	}
	if entry.State == candidate.StateStale {
		return nil
	}
	ok, err := s.ledger.Transition(ctx, fp, entry.State, candidate.StateStale)
	if err != nil {
		return err
	}
	if !ok {
		return core.NewLedgerRaceError(fp.String(), string(entry.State), "changed")
	}
	return nil
}
