package testkit

import (
	"context"
	"sort"
	"sync"

	"godisc/adapters/families"
	"godisc/adapters/source"
	"godisc/domain/candidate"
	"godisc/domain/core"
	"godisc/internal/calibrate"
	"godisc/internal/ledger"
	"godisc/internal/rng"
	"godisc/ports"
)

// TestKit bundles the deterministic collaborators most tests need: a
// seeded standard-normal source, the built-in family registry, the stream
// RNG adapter, and an in-memory ledger.
type TestKit struct {
	Source   *source.GaussianSource
	Registry *families.Registry
	RNG      *rng.StreamAdapter
	Ledger   *ledger.MemoryLedger
}

// NewTestKit creates a kit with a standard-normal null and a +0.5 shift
// alternative
func NewTestKit() *TestKit {
	return &TestKit{
		Source:   source.NewGaussianSource(0, 0.5, 1),
		Registry: families.NewDefaultRegistry(),
		RNG:      rng.NewStreamAdapter(),
		Ledger:   ledger.NewMemoryLedger(),
	}
}

// Calibrator builds a calibrator over the kit's collaborators
func (k *TestKit) Calibrator(opts calibrate.Options) *calibrate.Calibrator {
	return calibrate.NewCalibrator(k.Source, k.Registry, k.RNG, opts)
}

// MeanCandidate returns the standard sample-mean candidate used across tests
func (k *TestKit) MeanCandidate(n int, alpha float64, seed int64) candidate.Candidate {
	return candidate.Candidate{
		Family: families.FamilyScaledMean,
		Theta:  []float64{1},
		Alpha:  alpha,
		Sim:    candidate.SimConfig{SampleSize: n, BaseSeed: seed},
	}
}

// ScriptedBackend is a proof backend that replays a fixed script of
// verdicts and errors, recording every statement it receives.
type ScriptedBackend struct {
	mu         sync.Mutex
	script     []ScriptedResponse
	Statements []string
}

// ScriptedResponse is one step of a backend script
type ScriptedResponse struct {
	Verdict *ports.ProofVerdict
	Err     error
	Block   bool // block until the context expires, simulating proof search that never returns
}

// NewScriptedBackend creates a backend replaying the given responses; the
// last response repeats once the script is exhausted.
func NewScriptedBackend(script ...ScriptedResponse) *ScriptedBackend {
	return &ScriptedBackend{script: script}
}

// Submit replays the next scripted response
func (b *ScriptedBackend) Submit(ctx context.Context, statement string) (*ports.ProofVerdict, error) {
	b.mu.Lock()
	b.Statements = append(b.Statements, statement)
	idx := len(b.Statements) - 1
	if idx >= len(b.script) {
		idx = len(b.script) - 1
	}
	step := b.script[idx]
	b.mu.Unlock()

	if step.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Verdict, nil
}

// Attempts returns how many submissions the backend has seen
func (b *ScriptedBackend) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Statements)
}

// AcceptingBackend returns a backend that always accepts
func AcceptingBackend() *ScriptedBackend {
	return NewScriptedBackend(ScriptedResponse{
		Verdict: &ports.ProofVerdict{Accepted: true, CertificateRef: "cert-test-0001"},
	})
}

// MemoryTrajectoryLog is an in-memory trajectory log
type MemoryTrajectoryLog struct {
	mu     sync.Mutex
	rounds map[core.RunID][]candidate.TrainingRound
}

// NewMemoryTrajectoryLog creates an empty trajectory log
func NewMemoryTrajectoryLog() *MemoryTrajectoryLog {
	return &MemoryTrajectoryLog{rounds: make(map[core.RunID][]candidate.TrainingRound)}
}

// Append stores one training round
func (m *MemoryTrajectoryLog) Append(ctx context.Context, round candidate.TrainingRound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[round.RunID] = append(m.rounds[round.RunID], round)
	return nil
}

// Rounds returns the ordered trajectory for a run
func (m *MemoryTrajectoryLog) Rounds(ctx context.Context, runID core.RunID) ([]candidate.TrainingRound, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]candidate.TrainingRound(nil), m.rounds[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}
