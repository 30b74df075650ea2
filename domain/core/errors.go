package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound          = errors.New("resource not found")
	ErrEntryNotFound     = fmt.Errorf("%w: ledger entry", ErrNotFound)
	ErrFamilyNotFound    = fmt.Errorf("%w: statistic family", ErrNotFound)
	ErrRunNotFound       = fmt.Errorf("%w: run", ErrNotFound)
	ErrObligationMissing = fmt.Errorf("%w: verification obligation", ErrNotFound)

	// Calibration errors
	ErrCalibrationFailure = errors.New("calibration failure")
	ErrDegenerateStatistic = fmt.Errorf("%w: fewer than 2 distinct resample values", ErrCalibrationFailure)
	ErrInsufficientData    = fmt.Errorf("%w: sample source could not produce requested draws", ErrCalibrationFailure)

	// Candidate validity errors
	ErrInvalidAlpha   = errors.New("alpha must be in (0, 1)")
	ErrInvalidArity   = errors.New("theta arity does not match family")
	ErrSampleTooSmall = errors.New("sample size must be at least 2")
	ErrTooFewResamples = errors.New("resample count below stability floor")

	// Lifecycle errors
	ErrLedgerRace         = errors.New("ledger state changed concurrently")
	ErrInvalidTransition  = errors.New("invalid lifecycle transition")
	ErrObligationTerminal = errors.New("obligation already terminal")

	// Verification errors
	ErrBackendUnavailable = errors.New("proof backend unavailable")
	ErrBackendExhausted   = errors.New("proof backend retry ceiling exhausted")
	ErrRecordMismatch     = errors.New("obligation does not match candidate calibration")

	// Run outcome errors
	ErrNoFeasibleCandidate = errors.New("no feasible candidate within round budget")
	ErrCertificationDenied = errors.New("proof backend rejected a feasible candidate")
)

// Error constructors with context
func NewCalibrationError(reason string, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w: %s: %v", ErrCalibrationFailure, reason, cause)
	}
	return fmt.Errorf("%w: %s", ErrCalibrationFailure, reason)
}

func NewTransitionError(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func NewLedgerRaceError(fingerprint, expected, actual string) error {
	return fmt.Errorf("%w: fingerprint %s expected %s, found %s", ErrLedgerRace, fingerprint, expected, actual)
}

// Error checking helpers
func IsCalibrationFailure(err error) bool {
	return errors.Is(err, ErrCalibrationFailure)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsLedgerRace(err error) bool {
	return errors.Is(err, ErrLedgerRace)
}

func IsBackendError(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) ||
		errors.Is(err, ErrBackendExhausted)
}
