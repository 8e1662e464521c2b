package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creator-rewards/internal/models"
	"github.com/creator-rewards/internal/types"
	"github.com/jackc/pgx/v5"
)

// ActionRepository persists reward actions and drives their state machine.
//
// Two constraints carry the exactly-once guarantee:
//   - unique (tip_tx_id, kind) makes re-planning a tip a no-op
//   - Claim is a conditional update on status = 'pending', so two workers
//     can never both win the same action
type ActionRepository struct {
	db *PostgresDB
}

// NewActionRepository creates a new action repository
func NewActionRepository(db *PostgresDB) *ActionRepository {
	return &ActionRepository{db: db}
}

const actionColumns = `
	id, tip_tx_id, kind, status, attempts, next_retry_at,
	last_error_class, last_error, template_id, tier_name,
	created_at, updated_at
`

// CreateBatch inserts actions for a tip, ignoring (tip_tx_id, kind) pairs that
// already exist. Safe to call again for the same tip after a crash.
func (r *ActionRepository) CreateBatch(ctx context.Context, actions []*models.RewardAction) error {
	if len(actions) == 0 {
		return nil
	}

	query := `
		INSERT INTO reward_actions (
			id, tip_tx_id, kind, status, attempts, next_retry_at,
			template_id, tier_name, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tip_tx_id, kind) DO NOTHING
	`

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, a := range actions {
		_, err := tx.Exec(ctx, query,
			a.ID,
			a.TipTxID,
			a.Kind,
			a.Status,
			a.Attempts,
			a.NextRetryAt,
			a.TemplateID,
			a.TierName,
			a.CreatedAt,
			a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert reward action: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reward actions: %w", err)
	}
	return nil
}

// Get retrieves an action by id.
func (r *ActionRepository) Get(ctx context.Context, id string) (*models.RewardAction, error) {
	query := `SELECT ` + actionColumns + ` FROM reward_actions WHERE id = $1`

	action, err := scanAction(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reward action not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get reward action: %w", err)
	}
	return action, nil
}

// Claim atomically transitions an action from pending to in_progress and
// increments its attempt counter. Returns false when some other worker claimed
// it first (or it already reached a terminal state).
func (r *ActionRepository) Claim(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE reward_actions
		SET status = $2, attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`

	result, err := r.db.Pool().Exec(ctx, query, id, types.ActionInProgress, types.ActionPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim reward action: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// Complete marks an action done and, when it was the tip's last outstanding
// action, flips the tip's processed flag. Both writes land in one transaction
// so a crash between them cannot strand a half-finished tip.
func (r *ActionRepository) Complete(ctx context.Context, id, tipTxID string) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := tx.Exec(ctx, `
		UPDATE reward_actions
		SET status = $2, last_error_class = '', last_error = '', updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, types.ActionDone, types.ActionInProgress)
	if err != nil {
		return fmt.Errorf("failed to complete reward action: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("reward action %s is not in progress", id)
	}

	if err := markTipIfSettled(ctx, tx, tipTxID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit action completion: %w", err)
	}
	return nil
}

// Fail records a failed attempt. A pending decision reschedules the action at
// nextRetryAt; a failed_permanent decision abandons it and, when the tip has
// no other outstanding actions, settles the tip in the same transaction.
func (r *ActionRepository) Fail(ctx context.Context, id, tipTxID string, status types.ActionStatus, nextRetryAt time.Time, class types.ErrorClass, errMsg string) error {
	if status != types.ActionPending && status != types.ActionFailedPermanent {
		return fmt.Errorf("invalid failure status %q", status)
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := tx.Exec(ctx, `
		UPDATE reward_actions
		SET status = $2, next_retry_at = $3, last_error_class = $4,
		    last_error = $5, updated_at = NOW()
		WHERE id = $1 AND status = $6
	`, id, status, nextRetryAt, class, errMsg, types.ActionInProgress)
	if err != nil {
		return fmt.Errorf("failed to record action failure: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("reward action %s is not in progress", id)
	}

	if status == types.ActionFailedPermanent {
		if err := markTipIfSettled(ctx, tx, tipTxID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit action failure: %w", err)
	}
	return nil
}

// markTipIfSettled flips the tip's processed flag when every action derived
// from it has reached a terminal state.
func markTipIfSettled(ctx context.Context, tx pgx.Tx, tipTxID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE tip_records
		SET processed = true
		WHERE tx_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM reward_actions
			WHERE tip_tx_id = $1 AND status NOT IN ($2, $3)
		  )
	`, tipTxID, types.ActionDone, types.ActionFailedPermanent)
	if err != nil {
		return fmt.Errorf("failed to settle tip record: %w", err)
	}
	return nil
}

// ListDue returns pending actions whose retry time has arrived, oldest due
// first. Backed by the partial index on (status, next_retry_at).
func (r *ActionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.RewardAction, error) {
	query := `
		SELECT ` + actionColumns + `
		FROM reward_actions
		WHERE status = $1 AND next_retry_at <= $2
		ORDER BY next_retry_at
		LIMIT $3
	`

	rows, err := r.db.Pool().Query(ctx, query, types.ActionPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due actions: %w", err)
	}
	defer rows.Close()

	return collectActions(rows)
}

// ListByTip returns all actions derived from a tip.
func (r *ActionRepository) ListByTip(ctx context.Context, tipTxID string) ([]*models.RewardAction, error) {
	query := `
		SELECT ` + actionColumns + `
		FROM reward_actions
		WHERE tip_tx_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Pool().Query(ctx, query, tipTxID)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions for tip: %w", err)
	}
	defer rows.Close()

	return collectActions(rows)
}

// ReclaimStale returns in_progress actions older than the cutoff to pending.
// Covers workers that died mid-attempt; the attempt they consumed still
// counts. Returns the number of actions reclaimed.
func (r *ActionRepository) ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		UPDATE reward_actions
		SET status = $1, next_retry_at = NOW(), updated_at = NOW()
		WHERE status = $2 AND updated_at < $3
	`

	result, err := r.db.Pool().Exec(ctx, query, types.ActionPending, types.ActionInProgress, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale actions: %w", err)
	}

	return result.RowsAffected(), nil
}

// CountByStatus returns the number of actions in the given status.
func (r *ActionRepository) CountByStatus(ctx context.Context, status types.ActionStatus) (int64, error) {
	var count int64
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM reward_actions WHERE status = $1`, status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count actions: %w", err)
	}
	return count, nil
}

func scanAction(row pgx.Row) (*models.RewardAction, error) {
	var a models.RewardAction
	err := row.Scan(
		&a.ID,
		&a.TipTxID,
		&a.Kind,
		&a.Status,
		&a.Attempts,
		&a.NextRetryAt,
		&a.LastErrorClass,
		&a.LastError,
		&a.TemplateID,
		&a.TierName,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectActions(rows pgx.Rows) ([]*models.RewardAction, error) {
	var actions []*models.RewardAction
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reward action: %w", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reward actions: %w", err)
	}
	return actions, nil
}
