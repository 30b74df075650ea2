package ports

import (
	"context"

	"godisc/domain/candidate"
	"godisc/domain/core"
)

// TrajectoryLogPort persists the ordered TrainingRound sequence per run,
// sufficient to resume a run or audit a certification.
type TrajectoryLogPort interface {
	Append(ctx context.Context, round candidate.TrainingRound) error
	Rounds(ctx context.Context, runID core.RunID) ([]candidate.TrainingRound, error)
}
