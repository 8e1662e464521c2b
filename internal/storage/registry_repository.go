package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/creator-rewards/internal/models"
	"github.com/jackc/pgx/v5"
)

// RegistryRepository reads the creator registry: deployed contract instances,
// reward templates, and membership tiers. The listener treats all of it as
// read-only; rows are managed by the creator-facing surface.
type RegistryRepository struct {
	db *PostgresDB
}

// NewRegistryRepository creates a new registry repository
func NewRegistryRepository(db *PostgresDB) *RegistryRepository {
	return &RegistryRepository{db: db}
}

// GetContract retrieves a contract instance by application id. Returns nil
// when the app id is unknown.
func (r *RegistryRepository) GetContract(ctx context.Context, appID uint64) (*models.CreatorContract, error) {
	query := `
		SELECT app_id, creator_wallet, active, deployed_at
		FROM creator_contracts
		WHERE app_id = $1
	`

	var c models.CreatorContract
	err := r.db.Pool().QueryRow(ctx, query, appID).Scan(
		&c.AppID,
		&c.CreatorWallet,
		&c.Active,
		&c.DeployedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get creator contract: %w", err)
	}

	return &c, nil
}

// ListActiveContracts returns every contract instance the listener should
// watch.
func (r *RegistryRepository) ListActiveContracts(ctx context.Context) ([]*models.CreatorContract, error) {
	query := `
		SELECT app_id, creator_wallet, active, deployed_at
		FROM creator_contracts
		WHERE active = true
		ORDER BY app_id
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list creator contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*models.CreatorContract
	for rows.Next() {
		var c models.CreatorContract
		if err := rows.Scan(&c.AppID, &c.CreatorWallet, &c.Active, &c.DeployedAt); err != nil {
			return nil, fmt.Errorf("failed to scan creator contract: %w", err)
		}
		contracts = append(contracts, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating creator contracts: %w", err)
	}

	return contracts, nil
}

// GetCreatorConfig loads everything the planner needs for one creator:
// reward templates and membership tiers.
func (r *RegistryRepository) GetCreatorConfig(ctx context.Context, creatorWallet string) (*models.CreatorConfig, error) {
	cfg := &models.CreatorConfig{CreatorWallet: creatorWallet}

	templateRows, err := r.db.Pool().Query(ctx, `
		SELECT id, creator_wallet, name, kind, threshold_micro, metadata_url, created_at
		FROM reward_templates
		WHERE creator_wallet = $1
		ORDER BY threshold_micro DESC, created_at
	`, creatorWallet)
	if err != nil {
		return nil, fmt.Errorf("failed to list reward templates: %w", err)
	}
	defer templateRows.Close()

	for templateRows.Next() {
		var t models.RewardTemplate
		err := templateRows.Scan(
			&t.ID,
			&t.CreatorWallet,
			&t.Name,
			&t.Kind,
			&t.ThresholdMicro,
			&t.MetadataURL,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reward template: %w", err)
		}
		cfg.Templates = append(cfg.Templates, t)
	}
	if err := templateRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reward templates: %w", err)
	}

	tierRows, err := r.db.Pool().Query(ctx, `
		SELECT id, creator_wallet, name, price_micro, duration_days
		FROM membership_tiers
		WHERE creator_wallet = $1
		ORDER BY price_micro
	`, creatorWallet)
	if err != nil {
		return nil, fmt.Errorf("failed to list membership tiers: %w", err)
	}
	defer tierRows.Close()

	for tierRows.Next() {
		var t models.MembershipTier
		if err := tierRows.Scan(&t.ID, &t.CreatorWallet, &t.Name, &t.PriceMicro, &t.DurationDays); err != nil {
			return nil, fmt.Errorf("failed to scan membership tier: %w", err)
		}
		cfg.Tiers = append(cfg.Tiers, t)
	}
	if err := tierRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating membership tiers: %w", err)
	}

	return cfg, nil
}

// GetTier retrieves a creator's membership tier by name. Returns nil when the
// tier does not exist.
func (r *RegistryRepository) GetTier(ctx context.Context, creatorWallet, name string) (*models.MembershipTier, error) {
	query := `
		SELECT id, creator_wallet, name, price_micro, duration_days
		FROM membership_tiers
		WHERE creator_wallet = $1 AND name = $2
	`

	var t models.MembershipTier
	err := r.db.Pool().QueryRow(ctx, query, creatorWallet, name).Scan(
		&t.ID, &t.CreatorWallet, &t.Name, &t.PriceMicro, &t.DurationDays,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership tier: %w", err)
	}

	return &t, nil
}

// GetTemplate retrieves a reward template by id. Returns nil when it does not
// exist.
func (r *RegistryRepository) GetTemplate(ctx context.Context, id int64) (*models.RewardTemplate, error) {
	query := `
		SELECT id, creator_wallet, name, kind, threshold_micro, metadata_url, created_at
		FROM reward_templates
		WHERE id = $1
	`

	var t models.RewardTemplate
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&t.ID,
		&t.CreatorWallet,
		&t.Name,
		&t.Kind,
		&t.ThresholdMicro,
		&t.MetadataURL,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reward template: %w", err)
	}

	return &t, nil
}
