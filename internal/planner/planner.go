// Package planner maps recorded tips to reward action intents.
//
// Plan is a pure function over in-memory inputs: no database, no network.
// Everything it decides is pinned into the resulting intents so retries
// execute against the decision made at planning time, not against whatever
// the creator's configuration looks like later.
package planner

import (
	"github.com/creator-rewards/internal/event"
	"github.com/creator-rewards/internal/models"
	"github.com/creator-rewards/internal/types"
)

// PriceToleranceMicro is the slack allowed when matching a membership tip
// against the tier price, covering wallet fee rounding on the paid amount.
const PriceToleranceMicro uint64 = 1_000

// ActionIntent is one planned reward action, not yet persisted.
type ActionIntent struct {
	Kind         types.RewardKind
	TemplateID   int64              // collectible mints only
	TemplateKind types.TemplateKind // collectible mints only
	TierName     string             // membership issues only
}

// Plan computes the reward actions for a recorded tip.
//
// A tip whose memo matches the membership convention and whose amount meets a
// configured tier price yields exactly one MEMBERSHIP_ISSUE intent; membership
// purchases never also earn generic-tip rewards. Any other tip is generic: it
// always yields a LOYALTY_INCREMENT, plus a COLLECTIBLE_MINT when a template
// threshold is met.
func Plan(tip *models.TipRecord, cfg *models.CreatorConfig) []ActionIntent {
	if cfg == nil {
		cfg = &models.CreatorConfig{}
	}

	if tier := matchTier(tip, cfg); tier != nil {
		return []ActionIntent{{
			Kind:     types.RewardMembershipIssue,
			TierName: tier.Name,
		}}
	}

	intents := []ActionIntent{{Kind: types.RewardLoyaltyIncrement}}

	if tmpl := matchTemplate(tip.AmountMicro, cfg.Templates); tmpl != nil {
		intents = append(intents, ActionIntent{
			Kind:         types.RewardCollectibleMint,
			TemplateID:   tmpl.ID,
			TemplateKind: tmpl.Kind,
		})
	}

	return intents
}

// matchTier returns the membership tier a tip purchases, or nil when the memo
// is not a membership memo, the named tier does not exist, or the amount falls
// short of the tier price. A failed match degrades the tip to a generic tip.
func matchTier(tip *models.TipRecord, cfg *models.CreatorConfig) *models.MembershipTier {
	if !event.IsMembershipMemo(tip.Memo) {
		return nil
	}
	name := event.MembershipTierName(tip.Memo)
	if name == "" {
		return nil
	}
	for i := range cfg.Tiers {
		tier := &cfg.Tiers[i]
		if tier.Name != name {
			continue
		}
		if tip.AmountMicro+PriceToleranceMicro >= tier.PriceMicro {
			return tier
		}
		return nil
	}
	return nil
}

// matchTemplate selects the template with the highest threshold that the
// amount meets. Equal thresholds resolve to the earliest-created template.
func matchTemplate(amountMicro uint64, templates []models.RewardTemplate) *models.RewardTemplate {
	var best *models.RewardTemplate
	for i := range templates {
		tmpl := &templates[i]
		if tmpl.ThresholdMicro > amountMicro {
			continue
		}
		if best == nil || tmpl.ThresholdMicro > best.ThresholdMicro {
			best = tmpl
			continue
		}
		if tmpl.ThresholdMicro == best.ThresholdMicro && earlier(tmpl, best) {
			best = tmpl
		}
	}
	return best
}

func earlier(a, b *models.RewardTemplate) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
