package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creator-rewards/internal/models"
	"github.com/jackc/pgx/v5"
)

// checkpointID pins the single cursor row. One listener deployment, one row.
const checkpointID = 1

// CheckpointRepository persists the ingestion cursor. The cursor only ever
// moves forward: Advance is a guarded update that ignores smaller rounds, so
// a delayed write from an older tick can never rewind the checkpoint.
type CheckpointRepository struct {
	db *PostgresDB
}

// NewCheckpointRepository creates a new checkpoint repository
func NewCheckpointRepository(db *PostgresDB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Get retrieves the checkpoint, creating the zero row on first use.
func (r *CheckpointRepository) Get(ctx context.Context) (*models.Checkpoint, error) {
	query := `
		SELECT last_processed_round, heartbeat_at, updated_at
		FROM listener_checkpoint
		WHERE id = $1
	`

	var cp models.Checkpoint
	err := r.db.Pool().QueryRow(ctx, query, checkpointID).Scan(
		&cp.LastProcessedRound,
		&cp.HeartbeatAt,
		&cp.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := r.init(ctx); err != nil {
				return nil, err
			}
			return &models.Checkpoint{}, nil
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	return &cp, nil
}

func (r *CheckpointRepository) init(ctx context.Context) error {
	query := `
		INSERT INTO listener_checkpoint (id, last_processed_round, heartbeat_at, updated_at)
		VALUES ($1, 0, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.Pool().Exec(ctx, query, checkpointID); err != nil {
		return fmt.Errorf("failed to initialize checkpoint: %w", err)
	}
	return nil
}

// Advance moves the cursor to round if and only if round is greater than the
// stored value. Returns true when the cursor moved.
func (r *CheckpointRepository) Advance(ctx context.Context, round uint64) (bool, error) {
	query := `
		UPDATE listener_checkpoint
		SET last_processed_round = $2, updated_at = NOW()
		WHERE id = $1 AND last_processed_round < $2
	`

	result, err := r.db.Pool().Exec(ctx, query, checkpointID, round)
	if err != nil {
		return false, fmt.Errorf("failed to advance checkpoint: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// Heartbeat stamps the liveness column. Called once per poll tick whether or
// not the tick found new transactions.
func (r *CheckpointRepository) Heartbeat(ctx context.Context, at time.Time) error {
	query := `
		UPDATE listener_checkpoint
		SET heartbeat_at = $2
		WHERE id = $1
	`

	if _, err := r.db.Pool().Exec(ctx, query, checkpointID, at); err != nil {
		return fmt.Errorf("failed to stamp heartbeat: %w", err)
	}
	return nil
}
