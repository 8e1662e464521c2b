package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/creator-rewards/internal/models"
	"github.com/jackc/pgx/v5"
)

// TipRepository handles tip record persistence. The tx_id primary key is the
// dedup boundary for the whole pipeline: replayed indexer batches collapse
// into no-op inserts here.
type TipRepository struct {
	db *PostgresDB
}

// NewTipRepository creates a new tip repository
func NewTipRepository(db *PostgresDB) *TipRepository {
	return &TipRepository{db: db}
}

// Insert records a tip if its tx_id has not been seen. Returns true when the
// row was inserted, false when the tip was a duplicate.
func (r *TipRepository) Insert(ctx context.Context, tip *models.TipRecord) (bool, error) {
	query := `
		INSERT INTO tip_records (
			tx_id, fan_wallet, creator_wallet, app_id,
			amount_micro, memo, round, detected_at, processed
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false)
		ON CONFLICT (tx_id) DO NOTHING
	`

	result, err := r.db.Pool().Exec(ctx, query,
		tip.TxID,
		tip.FanWallet,
		tip.CreatorWallet,
		tip.AppID,
		tip.AmountMicro,
		tip.Memo,
		tip.Round,
		tip.DetectedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert tip record: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// Get retrieves a tip record by transaction id.
func (r *TipRepository) Get(ctx context.Context, txID string) (*models.TipRecord, error) {
	query := `
		SELECT tx_id, fan_wallet, creator_wallet, app_id,
		       amount_micro, memo, round, detected_at, processed
		FROM tip_records
		WHERE tx_id = $1
	`

	var tip models.TipRecord
	err := r.db.Pool().QueryRow(ctx, query, txID).Scan(
		&tip.TxID,
		&tip.FanWallet,
		&tip.CreatorWallet,
		&tip.AppID,
		&tip.AmountMicro,
		&tip.Memo,
		&tip.Round,
		&tip.DetectedAt,
		&tip.Processed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tip record not found for tx %s", txID)
		}
		return nil, fmt.Errorf("failed to get tip record: %w", err)
	}

	return &tip, nil
}

// ListUnprocessed returns tips whose reward actions have not all reached a
// terminal state, oldest first. Used on startup to resume work that a crash
// left behind.
func (r *TipRepository) ListUnprocessed(ctx context.Context, limit int) ([]*models.TipRecord, error) {
	query := `
		SELECT tx_id, fan_wallet, creator_wallet, app_id,
		       amount_micro, memo, round, detected_at, processed
		FROM tip_records
		WHERE processed = false
		ORDER BY round, tx_id
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed tips: %w", err)
	}
	defer rows.Close()

	var tips []*models.TipRecord
	for rows.Next() {
		var tip models.TipRecord
		err := rows.Scan(
			&tip.TxID,
			&tip.FanWallet,
			&tip.CreatorWallet,
			&tip.AppID,
			&tip.AmountMicro,
			&tip.Memo,
			&tip.Round,
			&tip.DetectedAt,
			&tip.Processed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tip record: %w", err)
		}
		tips = append(tips, &tip)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tip records: %w", err)
	}

	return tips, nil
}

// CountUnprocessed returns the number of tips still awaiting terminal actions.
func (r *TipRepository) CountUnprocessed(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM tip_records WHERE processed = false`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unprocessed tips: %w", err)
	}
	return count, nil
}
