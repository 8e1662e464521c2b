// Package worker executes reward actions and runs the listener's background
// loops: the poll supervisor, the mint worker pool, and the retry dispatcher.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/creator-rewards/internal/assets"
	"github.com/creator-rewards/internal/logging"
	"github.com/creator-rewards/internal/models"
	"github.com/creator-rewards/internal/types"
)

// Executor performs the side effect for one reward action kind. Every
// executor must be safe to re-run for the same action: retries and stale
// reclaims will call it again with the same inputs.
type Executor interface {
	Execute(ctx context.Context, action *models.RewardAction, tip *models.TipRecord) error
}

// LoyaltyStore is the slice of the reward repository the loyalty executor
// needs.
type LoyaltyStore interface {
	IncrementLoyalty(ctx context.Context, fanWallet, creatorWallet string, amountMicro uint64, badgeInterval int) (*models.LoyaltyCounter, bool, error)
}

// LoyaltyExecutor applies a tip to the fan's loyalty counter. Tips below the
// qualifying minimum complete without touching the counter.
type LoyaltyExecutor struct {
	store         LoyaltyStore
	minMicro      uint64
	badgeInterval int
	logger        *logging.Logger
}

// NewLoyaltyExecutor creates a loyalty executor.
func NewLoyaltyExecutor(store LoyaltyStore, minMicro uint64, badgeInterval int, logger *logging.Logger) *LoyaltyExecutor {
	return &LoyaltyExecutor{
		store:         store,
		minMicro:      minMicro,
		badgeInterval: badgeInterval,
		logger:        logger.WithField("executor", "loyalty"),
	}
}

// Execute increments the loyalty counter for the tip.
func (e *LoyaltyExecutor) Execute(ctx context.Context, action *models.RewardAction, tip *models.TipRecord) error {
	if tip.AmountMicro < e.minMicro {
		e.logger.WithFields(map[string]interface{}{
			"txId":        tip.TxID,
			"amountMicro": tip.AmountMicro,
		}).Debug("tip below loyalty minimum, counter unchanged")
		return nil
	}

	counter, badgeEarned, err := e.store.IncrementLoyalty(ctx, tip.FanWallet, tip.CreatorWallet, tip.AmountMicro, e.badgeInterval)
	if err != nil {
		return types.NewTransientActionError("increment loyalty", err)
	}

	if badgeEarned {
		e.logger.WithFields(map[string]interface{}{
			"fanWallet":     tip.FanWallet,
			"creatorWallet": tip.CreatorWallet,
			"tipCount":      counter.TipCount,
			"badgesEarned":  counter.BadgesEarned,
		}).Info("loyalty badge earned")
	}

	return nil
}

// TierLookup resolves a creator's membership tier by name.
type TierLookup interface {
	GetTier(ctx context.Context, creatorWallet, name string) (*models.MembershipTier, error)
}

// MembershipStore is the slice of the reward repository the membership
// executor needs.
type MembershipStore interface {
	IssueMembership(ctx context.Context, m *models.Membership, duration time.Duration) (*models.Membership, error)
}

// MembershipExecutor mints a membership pass and records the grant. Issuance
// keys on the source tip, so a retried action converges on the same row.
type MembershipExecutor struct {
	tiers  TierLookup
	store  MembershipStore
	svc    assets.AssetService
	logger *logging.Logger
}

// NewMembershipExecutor creates a membership executor.
func NewMembershipExecutor(tiers TierLookup, store MembershipStore, svc assets.AssetService, logger *logging.Logger) *MembershipExecutor {
	return &MembershipExecutor{
		tiers:  tiers,
		store:  store,
		svc:    svc,
		logger: logger.WithField("executor", "membership"),
	}
}

// Execute issues or renews the membership pinned into the action.
func (e *MembershipExecutor) Execute(ctx context.Context, action *models.RewardAction, tip *models.TipRecord) error {
	tier, err := e.tiers.GetTier(ctx, tip.CreatorWallet, action.TierName)
	if err != nil {
		return types.NewTransientActionError("look up membership tier", err)
	}
	if tier == nil {
		// The tier was deleted after planning; no retry can bring it back
		return types.NewPermanentActionError("look up membership tier",
			fmt.Errorf("tier %q no longer exists for creator %s", action.TierName, tip.CreatorWallet))
	}

	// The membership pass is soulbound; the asset service dedups on the
	// reference, so a re-mint after a crash returns the original asset.
	mint, err := e.svc.MintCollectible(ctx, &assets.MintRequest{
		OwnerWallet: tip.FanWallet,
		Name:        fmt.Sprintf("%s membership", tier.Name),
		Soulbound:   true,
		Reference:   tip.TxID,
	})
	if err != nil {
		return err
	}

	duration := time.Duration(tier.DurationDays) * 24 * time.Hour
	membership, err := e.store.IssueMembership(ctx, &models.Membership{
		FanWallet:     tip.FanWallet,
		CreatorWallet: tip.CreatorWallet,
		TierName:      tier.Name,
		AssetRef:      mint.AssetRef,
		SourceTipTxID: tip.TxID,
	}, duration)
	if err != nil {
		return types.NewTransientActionError("issue membership", err)
	}

	e.logger.WithFields(map[string]interface{}{
		"fanWallet":     tip.FanWallet,
		"creatorWallet": tip.CreatorWallet,
		"tier":          tier.Name,
		"expiresAt":     membership.ExpiresAt,
	}).Info("membership issued")

	return nil
}

// TemplateLookup resolves a reward template by id.
type TemplateLookup interface {
	GetTemplate(ctx context.Context, id int64) (*models.RewardTemplate, error)
}

// TokenStore is the slice of the reward repository the mint executor needs.
type TokenStore interface {
	GetTokenBySourceTip(ctx context.Context, sourceTipTxID string) (*models.CollectibleToken, error)
	InsertToken(ctx context.Context, t *models.CollectibleToken) (bool, error)
}

// MintExecutor mints the collectible pinned into the action and delivers it
// per the configured strategy.
type MintExecutor struct {
	templates TemplateLookup
	tokens    TokenStore
	svc       assets.AssetService
	delivery  assets.DeliveryStrategy
	logger    *logging.Logger
}

// NewMintExecutor creates a mint executor.
func NewMintExecutor(templates TemplateLookup, tokens TokenStore, svc assets.AssetService, delivery assets.DeliveryStrategy, logger *logging.Logger) *MintExecutor {
	return &MintExecutor{
		templates: templates,
		tokens:    tokens,
		svc:       svc,
		delivery:  delivery,
		logger:    logger.WithField("executor", "mint"),
	}
}

// Execute mints and delivers the collectible for the tip.
func (e *MintExecutor) Execute(ctx context.Context, action *models.RewardAction, tip *models.TipRecord) error {
	// A crash after the token row landed leaves nothing to redo
	existing, err := e.tokens.GetTokenBySourceTip(ctx, tip.TxID)
	if err != nil {
		return types.NewTransientActionError("check existing token", err)
	}
	if existing != nil {
		return nil
	}

	template, err := e.templates.GetTemplate(ctx, action.TemplateID)
	if err != nil {
		return types.NewTransientActionError("look up reward template", err)
	}
	if template == nil {
		return types.NewPermanentActionError("look up reward template",
			fmt.Errorf("template %d no longer exists", action.TemplateID))
	}

	mint, err := e.svc.MintCollectible(ctx, &assets.MintRequest{
		OwnerWallet: tip.FanWallet,
		Name:        template.Name,
		MetadataURL: template.MetadataURL,
		Soulbound:   template.Kind == types.TemplateSoulbound,
		Reference:   tip.TxID,
	})
	if err != nil {
		return err
	}

	result, err := e.delivery.Deliver(ctx, mint.AssetRef, tip.FanWallet)
	if err != nil {
		return err
	}

	inserted, err := e.tokens.InsertToken(ctx, &models.CollectibleToken{
		AssetRef:       mint.AssetRef,
		OwnerWallet:    tip.FanWallet,
		TemplateID:     template.ID,
		SourceTipTxID:  tip.TxID,
		Kind:           template.Kind,
		DeliveryStatus: result.Status,
		DeliveryTxID:   result.DeliveryTxID,
		IsLocked:       template.Kind == types.TemplateSoulbound,
		MintedAt:       time.Now().UTC(),
	})
	if err != nil {
		return types.NewTransientActionError("record collectible token", err)
	}
	if !inserted {
		// Lost a race with a concurrent retry that already recorded the mint
		return nil
	}

	e.logger.WithFields(map[string]interface{}{
		"txId":     tip.TxID,
		"assetRef": mint.AssetRef,
		"template": template.Name,
		"delivery": result.Status,
	}).Info("collectible minted")

	return nil
}
