package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"godisc/domain/candidate"
	"godisc/domain/core"
)

// TrajectoryRepository persists the per-run TrainingRound sequence,
// sufficient to resume a run or audit a certification.
type TrajectoryRepository struct {
	db *sqlx.DB
}

// NewTrajectoryRepository creates a PostgreSQL trajectory repository
func NewTrajectoryRepository(db *sqlx.DB) *TrajectoryRepository {
	return &TrajectoryRepository{db: db}
}

// Append stores one training round; (run_id, round_index) is unique so a
// replayed append of the same round is a no-op rather than a duplicate.
func (r *TrajectoryRepository) Append(ctx context.Context, round candidate.TrainingRound) error {
	thetaIn, err := json.Marshal(round.ThetaIn)
	if err != nil {
		return fmt.Errorf("marshal theta_in: %w", err)
	}
	thetaOut, err := json.Marshal(round.ThetaOut)
	if err != nil {
		return fmt.Errorf("marshal theta_out: %w", err)
	}
	proposalRewards, err := json.Marshal(round.ProposalRewards)
	if err != nil {
		return fmt.Errorf("marshal proposal_rewards: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO training_rounds (
			run_id, round_index, theta_in, theta_out, reward, dual,
			null_rate, proposal_rewards, degenerate, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (run_id, round_index) DO NOTHING`,
		round.RunID.String(), round.Index, thetaIn, thetaOut, round.Reward,
		round.Dual, round.NullRate, proposalRewards, round.Degenerate)
	if err != nil {
		return fmt.Errorf("append training round: %w", err)
	}
	return nil
}

// Rounds returns the ordered trajectory for a run
func (r *TrajectoryRepository) Rounds(ctx context.Context, runID core.RunID) ([]candidate.TrainingRound, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, round_index, theta_in, theta_out, reward, dual,
		       null_rate, proposal_rewards, degenerate
		FROM training_rounds WHERE run_id = $1 ORDER BY round_index ASC`,
		runID.String())
	if err != nil {
		return nil, fmt.Errorf("query trajectory: %w", err)
	}
	defer rows.Close()

	var rounds []candidate.TrainingRound
	for rows.Next() {
		var (
			round                               candidate.TrainingRound
			runIDStr                            string
			thetaIn, thetaOut, proposalRewards  []byte
		)
		if err := rows.Scan(&runIDStr, &round.Index, &thetaIn, &thetaOut,
			&round.Reward, &round.Dual, &round.NullRate, &proposalRewards, &round.Degenerate); err != nil {
			return nil, err
		}
		round.RunID = core.RunID(runIDStr)
		if err := json.Unmarshal(thetaIn, &round.ThetaIn); err != nil {
			return nil, fmt.Errorf("unmarshal theta_in: %w", err)
		}
		if err := json.Unmarshal(thetaOut, &round.ThetaOut); err != nil {
			return nil, fmt.Errorf("unmarshal theta_out: %w", err)
		}
		if err := json.Unmarshal(proposalRewards, &round.ProposalRewards); err != nil {
			return nil, fmt.Errorf("unmarshal proposal_rewards: %w", err)
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}
