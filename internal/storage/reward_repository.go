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

// RewardRepository persists the outcomes of reward actions: loyalty counters,
// memberships, and minted collectibles.
type RewardRepository struct {
	db *PostgresDB
}

// NewRewardRepository creates a new reward repository
func NewRewardRepository(db *PostgresDB) *RewardRepository {
	return &RewardRepository{db: db}
}

// IncrementLoyalty bumps the (fan, creator) counter by one tip in a single
// atomic upsert. The badge credit rides in the same statement, computed from
// the post-increment count, so two concurrent tips can never read the same
// count and both skip (or both claim) the badge.
//
// Returns the updated counter and whether this tip earned a badge.
func (r *RewardRepository) IncrementLoyalty(ctx context.Context, fanWallet, creatorWallet string, amountMicro uint64, badgeInterval int) (*models.LoyaltyCounter, bool, error) {
	if badgeInterval <= 0 {
		return nil, false, fmt.Errorf("badge interval must be positive, got %d", badgeInterval)
	}

	query := `
		INSERT INTO loyalty_counters (
			fan_wallet, creator_wallet, tip_count, total_amount_micro,
			badges_earned, updated_at
		)
		VALUES ($1, $2, 1, $3, CASE WHEN $4 = 1 THEN 1 ELSE 0 END, NOW())
		ON CONFLICT (fan_wallet, creator_wallet)
		DO UPDATE SET
			tip_count = loyalty_counters.tip_count + 1,
			total_amount_micro = loyalty_counters.total_amount_micro + EXCLUDED.total_amount_micro,
			badges_earned = loyalty_counters.badges_earned +
				CASE WHEN (loyalty_counters.tip_count + 1) % $4 = 0 THEN 1 ELSE 0 END,
			updated_at = NOW()
		RETURNING tip_count, total_amount_micro, badges_earned, updated_at
	`

	counter := &models.LoyaltyCounter{
		FanWallet:     fanWallet,
		CreatorWallet: creatorWallet,
	}
	err := r.db.Pool().QueryRow(ctx, query,
		fanWallet, creatorWallet, amountMicro, badgeInterval,
	).Scan(
		&counter.TipCount,
		&counter.TotalAmountMicro,
		&counter.BadgesEarned,
		&counter.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to increment loyalty counter: %w", err)
	}

	badgeEarned := counter.TipCount%int64(badgeInterval) == 0
	return counter, badgeEarned, nil
}

// GetLoyalty retrieves the loyalty counter for a (fan, creator) pair. Returns
// nil when the fan has never tipped the creator.
func (r *RewardRepository) GetLoyalty(ctx context.Context, fanWallet, creatorWallet string) (*models.LoyaltyCounter, error) {
	query := `
		SELECT fan_wallet, creator_wallet, tip_count, total_amount_micro,
		       badges_earned, updated_at
		FROM loyalty_counters
		WHERE fan_wallet = $1 AND creator_wallet = $2
	`

	var counter models.LoyaltyCounter
	err := r.db.Pool().QueryRow(ctx, query, fanWallet, creatorWallet).Scan(
		&counter.FanWallet,
		&counter.CreatorWallet,
		&counter.TipCount,
		&counter.TotalAmountMicro,
		&counter.BadgesEarned,
		&counter.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get loyalty counter: %w", err)
	}

	return &counter, nil
}

// GetActiveMembership returns the fan's active membership with the creator,
// or nil when none exists.
func (r *RewardRepository) GetActiveMembership(ctx context.Context, fanWallet, creatorWallet string) (*models.Membership, error) {
	query := `
		SELECT id, fan_wallet, creator_wallet, tier_name, asset_ref,
		       source_tip_tx_id, expires_at, is_active, issued_at
		FROM memberships
		WHERE fan_wallet = $1 AND creator_wallet = $2 AND is_active = true
	`

	var m models.Membership
	err := r.db.Pool().QueryRow(ctx, query, fanWallet, creatorWallet).Scan(
		&m.ID,
		&m.FanWallet,
		&m.CreatorWallet,
		&m.TierName,
		&m.AssetRef,
		&m.SourceTipTxID,
		&m.ExpiresAt,
		&m.IsActive,
		&m.IssuedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active membership: %w", err)
	}

	return &m, nil
}

// IssueMembership grants or renews a membership in one transaction. A renewal
// extends from the old expiry, not from now, so renewing early never costs the
// fan remaining time: the old row is deactivated and a new row is inserted
// with expires_at = old expiry + tier duration. Already-expired memberships
// restart from now.
//
// The unique index on source_tip_tx_id makes a retried issue for the same tip
// a no-op; the existing row is returned.
func (r *RewardRepository) IssueMembership(ctx context.Context, m *models.Membership, duration time.Duration) (*models.Membership, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Retry of an already-completed issue
	existing, err := membershipBySourceTip(ctx, tx, m.SourceTipTxID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	expiresAt := now.Add(duration)

	var current models.Membership
	err = tx.QueryRow(ctx, `
		SELECT id, expires_at
		FROM memberships
		WHERE fan_wallet = $1 AND creator_wallet = $2 AND is_active = true
		FOR UPDATE
	`, m.FanWallet, m.CreatorWallet).Scan(&current.ID, &current.ExpiresAt)
	switch {
	case err == nil:
		if current.ExpiresAt.After(now) {
			expiresAt = current.ExpiresAt.Add(duration)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE memberships SET is_active = false WHERE id = $1`, current.ID,
		); err != nil {
			return nil, fmt.Errorf("failed to deactivate old membership: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		// First membership for this pair
	default:
		return nil, fmt.Errorf("failed to look up active membership: %w", err)
	}

	issued := &models.Membership{
		FanWallet:     m.FanWallet,
		CreatorWallet: m.CreatorWallet,
		TierName:      m.TierName,
		AssetRef:      m.AssetRef,
		SourceTipTxID: m.SourceTipTxID,
		ExpiresAt:     expiresAt,
		IsActive:      true,
		IssuedAt:      now,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO memberships (
			fan_wallet, creator_wallet, tier_name, asset_ref,
			source_tip_tx_id, expires_at, is_active, issued_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, true, $7)
		RETURNING id
	`,
		issued.FanWallet,
		issued.CreatorWallet,
		issued.TierName,
		issued.AssetRef,
		issued.SourceTipTxID,
		issued.ExpiresAt,
		issued.IssuedAt,
	).Scan(&issued.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit membership issue: %w", err)
	}
	return issued, nil
}

func membershipBySourceTip(ctx context.Context, tx pgx.Tx, sourceTipTxID string) (*models.Membership, error) {
	var m models.Membership
	err := tx.QueryRow(ctx, `
		SELECT id, fan_wallet, creator_wallet, tier_name, asset_ref,
		       source_tip_tx_id, expires_at, is_active, issued_at
		FROM memberships
		WHERE source_tip_tx_id = $1
	`, sourceTipTxID).Scan(
		&m.ID,
		&m.FanWallet,
		&m.CreatorWallet,
		&m.TierName,
		&m.AssetRef,
		&m.SourceTipTxID,
		&m.ExpiresAt,
		&m.IsActive,
		&m.IssuedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up membership by source tip: %w", err)
	}
	return &m, nil
}

// ExpireMemberships deactivates memberships whose expiry has passed. Returns
// the number of rows deactivated.
func (r *RewardRepository) ExpireMemberships(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Pool().Exec(ctx, `
		UPDATE memberships
		SET is_active = false
		WHERE is_active = true AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire memberships: %w", err)
	}
	return result.RowsAffected(), nil
}

// InsertToken records a minted collectible. The unique index on
// source_tip_tx_id makes a retried record a no-op; returns true when the row
// was inserted.
func (r *RewardRepository) InsertToken(ctx context.Context, t *models.CollectibleToken) (bool, error) {
	query := `
		INSERT INTO collectible_tokens (
			asset_ref, owner_wallet, template_id, source_tip_tx_id,
			kind, delivery_status, delivery_tx_id, is_burned, is_locked, minted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $9)
		ON CONFLICT (source_tip_tx_id) DO NOTHING
		RETURNING id
	`

	err := r.db.Pool().QueryRow(ctx, query,
		t.AssetRef,
		t.OwnerWallet,
		t.TemplateID,
		t.SourceTipTxID,
		t.Kind,
		t.DeliveryStatus,
		t.DeliveryTxID,
		t.IsLocked,
		t.MintedAt,
	).Scan(&t.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert collectible token: %w", err)
	}

	return true, nil
}

// GetTokenBySourceTip retrieves the collectible minted for a tip, or nil.
func (r *RewardRepository) GetTokenBySourceTip(ctx context.Context, sourceTipTxID string) (*models.CollectibleToken, error) {
	query := `
		SELECT id, asset_ref, owner_wallet, template_id, source_tip_tx_id,
		       kind, delivery_status, delivery_tx_id, is_burned, is_locked, minted_at
		FROM collectible_tokens
		WHERE source_tip_tx_id = $1
	`

	var t models.CollectibleToken
	err := r.db.Pool().QueryRow(ctx, query, sourceTipTxID).Scan(
		&t.ID,
		&t.AssetRef,
		&t.OwnerWallet,
		&t.TemplateID,
		&t.SourceTipTxID,
		&t.Kind,
		&t.DeliveryStatus,
		&t.DeliveryTxID,
		&t.IsBurned,
		&t.IsLocked,
		&t.MintedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get collectible token: %w", err)
	}

	return &t, nil
}

// ListPendingClaims returns a fan's collectibles awaiting claim.
func (r *RewardRepository) ListPendingClaims(ctx context.Context, ownerWallet string) ([]*models.CollectibleToken, error) {
	query := `
		SELECT id, asset_ref, owner_wallet, template_id, source_tip_tx_id,
		       kind, delivery_status, delivery_tx_id, is_burned, is_locked, minted_at
		FROM collectible_tokens
		WHERE owner_wallet = $1 AND delivery_status = $2 AND is_burned = false
		ORDER BY minted_at
	`

	rows, err := r.db.Pool().Query(ctx, query, ownerWallet, types.DeliveryPendingClaim)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending claims: %w", err)
	}
	defer rows.Close()

	var tokens []*models.CollectibleToken
	for rows.Next() {
		var t models.CollectibleToken
		err := rows.Scan(
			&t.ID,
			&t.AssetRef,
			&t.OwnerWallet,
			&t.TemplateID,
			&t.SourceTipTxID,
			&t.Kind,
			&t.DeliveryStatus,
			&t.DeliveryTxID,
			&t.IsBurned,
			&t.IsLocked,
			&t.MintedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collectible token: %w", err)
		}
		tokens = append(tokens, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collectible tokens: %w", err)
	}

	return tokens, nil
}

// MarkTokenDelivered transitions a pending_claim token to delivered, recording
// the transfer transaction. Conditional on the current status so a double
// claim cannot overwrite the first delivery.
func (r *RewardRepository) MarkTokenDelivered(ctx context.Context, tokenID int64, deliveryTxID string) (bool, error) {
	result, err := r.db.Pool().Exec(ctx, `
		UPDATE collectible_tokens
		SET delivery_status = $2, delivery_tx_id = $3
		WHERE id = $1 AND delivery_status = $4 AND is_burned = false
	`, tokenID, types.DeliveryDelivered, deliveryTxID, types.DeliveryPendingClaim)
	if err != nil {
		return false, fmt.Errorf("failed to mark token delivered: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// BurnToken marks a token burned. Idempotent.
func (r *RewardRepository) BurnToken(ctx context.Context, tokenID int64) error {
	if _, err := r.db.Pool().Exec(ctx, `
		UPDATE collectible_tokens SET is_burned = true WHERE id = $1
	`, tokenID); err != nil {
		return fmt.Errorf("failed to burn token: %w", err)
	}
	return nil
}

// SetTokenLocked toggles the transfer lock on a token.
func (r *RewardRepository) SetTokenLocked(ctx context.Context, tokenID int64, locked bool) error {
	if _, err := r.db.Pool().Exec(ctx, `
		UPDATE collectible_tokens SET is_locked = $2 WHERE id = $1
	`, tokenID, locked); err != nil {
		return fmt.Errorf("failed to set token lock: %w", err)
	}
	return nil
}
