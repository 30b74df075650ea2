package ledger

import (
	"context"
	"log"
	"sync"

	"godisc/domain/candidate"
	"godisc/domain/core"
	"godisc/ports"
)

// MemoryLedger is the in-process certification ledger. Its compare-and-swap
// transition is the only cross-run synchronization primitive in the system.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[core.Fingerprint]*candidate.LedgerEntry
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[core.Fingerprint]*candidate.LedgerEntry)}
}

// Create registers a candidate in the proposed state. Idempotent: an
// existing fingerprint returns the existing entry untouched.
func (m *MemoryLedger) Create(ctx context.Context, c candidate.Candidate, runID core.RunID) (*candidate.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fp := c.Fingerprint()
	if existing, ok := m.entries[fp]; ok {
		copied := existing.Clone()
		return &copied, nil
	}

	entry := &candidate.LedgerEntry{
		Fingerprint: fp,
		Candidate:   c.Clone(),
		State:       candidate.StateProposed,
		RunID:       runID,
		CreatedAt:   core.Now(),
		UpdatedAt:   core.Now(),
	}
	m.entries[fp] = entry
	log.Printf("[Ledger] registered %s as proposed", fp.String()[:12])

	copied := entry.Clone()
	return &copied, nil
}

// Transition performs the compare-and-swap state change. It returns false
// with no side effect when the entry is not in the expected state, letting
// a racing caller re-read and back off.
func (m *MemoryLedger) Transition(ctx context.Context, fp core.Fingerprint, from, to candidate.LifecycleState) (bool, error) {
	if !candidate.CanTransition(from, to) {
		return false, core.NewTransitionError(string(from), string(to))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[fp]
	if !ok {
		return false, core.ErrEntryNotFound
	}
	if entry.State != from {
		return false, nil
	}

	entry.State = to
	entry.UpdatedAt = core.Now()
	log.Printf("[Ledger] %s: %s -> %s", fp.String()[:12], from, to)
	return true, nil
}

// AttachCalibration records the calibration result on the entry
func (m *MemoryLedger) AttachCalibration(ctx context.Context, fp core.Fingerprint, rec candidate.CalibrationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[fp]
	if !ok {
		return core.ErrEntryNotFound
	}
	recCopy := rec.Clone()
	entry.Calibration = &recCopy
	entry.UpdatedAt = core.Now()
	return nil
}

// AttachObligation records the verification obligation on the entry
func (m *MemoryLedger) AttachObligation(ctx context.Context, fp core.Fingerprint, ob candidate.VerificationObligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[fp]
	if !ok {
		return core.ErrEntryNotFound
	}
	obCopy := ob.Clone()
	entry.Obligation = &obCopy
	entry.UpdatedAt = core.Now()
	return nil
}

// Get returns a copy of the entry for a fingerprint
func (m *MemoryLedger) Get(ctx context.Context, fp core.Fingerprint) (*candidate.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[fp]
	if !ok {
		return nil, core.ErrEntryNotFound
	}
	copied := entry.Clone()
	return &copied, nil
}

// List returns entries matching the filter
func (m *MemoryLedger) List(ctx context.Context, filter ports.LedgerFilter) ([]candidate.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []candidate.LedgerEntry
	for _, entry := range m.entries {
		if filter.State != nil && entry.State != *filter.State {
			continue
		}
		if filter.RunID != nil && entry.RunID != *filter.RunID {
			continue
		}
		out = append(out, entry.Clone())
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
