package planner

import (
	"testing"
	"time"

	"github.com/creator-rewards/internal/models"
	"github.com/creator-rewards/internal/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *models.CreatorConfig {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &models.CreatorConfig{
		CreatorWallet: "CREATORWALLET",
		Templates: []models.RewardTemplate{
			{ID: 1, Name: "supporter", Kind: types.TemplateSoulbound, ThresholdMicro: 1_000_000, CreatedAt: base},
			{ID: 2, Name: "fan", Kind: types.TemplateSoulbound, ThresholdMicro: 2_000_000, CreatedAt: base.Add(time.Hour)},
			{ID: 3, Name: "super fan", Kind: types.TemplateTradable, ThresholdMicro: 5_000_000, CreatedAt: base.Add(2 * time.Hour)},
		},
		Tiers: []models.MembershipTier{
			{ID: 1, Name: "GOLD", PriceMicro: 10_000_000, DurationDays: 30},
			{ID: 2, Name: "SILVER", PriceMicro: 5_000_000, DurationDays: 30},
		},
	}
}

func tip(amountMicro uint64, memo string) *models.TipRecord {
	return &models.TipRecord{
		TxID:          "TIP-1",
		FanWallet:     "FANWALLET",
		CreatorWallet: "CREATORWALLET",
		AmountMicro:   amountMicro,
		Memo:          memo,
	}
}

func TestPlan_ThresholdSelection(t *testing.T) {
	tests := []struct {
		name         string
		amountMicro  uint64
		wantTemplate int64 // 0 means no mint intent
	}{
		{"below all thresholds", 500_000, 0},
		{"exactly lowest", 1_000_000, 1},
		{"between thresholds picks highest met", 3_000_000, 2},
		{"exactly highest", 5_000_000, 3},
		{"above highest", 20_000_000, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intents := Plan(tip(tt.amountMicro, "nice!"), testConfig())

			require.NotEmpty(t, intents)
			assert.Equal(t, types.RewardLoyaltyIncrement, intents[0].Kind)

			if tt.wantTemplate == 0 {
				assert.Len(t, intents, 1)
				return
			}
			require.Len(t, intents, 2)
			assert.Equal(t, types.RewardCollectibleMint, intents[1].Kind)
			assert.Equal(t, tt.wantTemplate, intents[1].TemplateID)
		})
	}
}

func TestPlan_EqualThresholdsPickEarliestCreated(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := &models.CreatorConfig{
		Templates: []models.RewardTemplate{
			{ID: 9, Name: "newer", ThresholdMicro: 2_000_000, CreatedAt: base.Add(time.Hour)},
			{ID: 4, Name: "older", ThresholdMicro: 2_000_000, CreatedAt: base},
		},
	}

	intents := Plan(tip(3_000_000, ""), cfg)
	require.Len(t, intents, 2)
	assert.Equal(t, int64(4), intents[1].TemplateID)
}

func TestPlan_EqualThresholdsAndTimesPickLowerID(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := &models.CreatorConfig{
		Templates: []models.RewardTemplate{
			{ID: 9, ThresholdMicro: 2_000_000, CreatedAt: base},
			{ID: 4, ThresholdMicro: 2_000_000, CreatedAt: base},
		},
	}

	intents := Plan(tip(3_000_000, ""), cfg)
	require.Len(t, intents, 2)
	assert.Equal(t, int64(4), intents[1].TemplateID)
}

func TestPlan_MembershipMemoIsExclusive(t *testing.T) {
	// The amount also crosses every template threshold; membership wins alone
	intents := Plan(tip(10_000_000, "MEMBERSHIP:GOLD"), testConfig())

	require.Len(t, intents, 1)
	assert.Equal(t, types.RewardMembershipIssue, intents[0].Kind)
	assert.Equal(t, "GOLD", intents[0].TierName)
}

func TestPlan_MembershipWithinPriceTolerance(t *testing.T) {
	intents := Plan(tip(10_000_000-PriceToleranceMicro, "MEMBERSHIP:GOLD"), testConfig())

	require.Len(t, intents, 1)
	assert.Equal(t, types.RewardMembershipIssue, intents[0].Kind)
}

func TestPlan_MembershipUnderpaidDegradesToGenericTip(t *testing.T) {
	intents := Plan(tip(8_000_000, "MEMBERSHIP:GOLD"), testConfig())

	require.Len(t, intents, 2)
	assert.Equal(t, types.RewardLoyaltyIncrement, intents[0].Kind)
	assert.Equal(t, types.RewardCollectibleMint, intents[1].Kind)
}

func TestPlan_MembershipUnknownTierDegradesToGenericTip(t *testing.T) {
	intents := Plan(tip(10_000_000, "MEMBERSHIP:PLATINUM"), testConfig())

	require.Len(t, intents, 2)
	assert.Equal(t, types.RewardLoyaltyIncrement, intents[0].Kind)
}

func TestPlan_NilConfigYieldsLoyaltyOnly(t *testing.T) {
	intents := Plan(tip(50_000_000, "thanks"), nil)

	require.Len(t, intents, 1)
	assert.Equal(t, types.RewardLoyaltyIncrement, intents[0].Kind)
}

func TestPlan_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	cfg := testConfig()

	properties.Property("generic tips always plan a loyalty increment first", prop.ForAll(
		func(amount uint64) bool {
			intents := Plan(tip(amount, "free text"), cfg)
			return len(intents) >= 1 && intents[0].Kind == types.RewardLoyaltyIncrement
		},
		gen.UInt64(),
	))

	properties.Property("a planned mint template threshold never exceeds the amount", prop.ForAll(
		func(amount uint64) bool {
			intents := Plan(tip(amount, ""), cfg)
			for _, intent := range intents {
				if intent.Kind != types.RewardCollectibleMint {
					continue
				}
				for _, tmpl := range cfg.Templates {
					if tmpl.ID == intent.TemplateID {
						return tmpl.ThresholdMicro <= amount
					}
				}
				return false
			}
			return true
		},
		gen.UInt64(),
	))

	properties.Property("membership intents never mix with other kinds", prop.ForAll(
		func(amount uint64, tier string) bool {
			intents := Plan(tip(amount, "MEMBERSHIP:"+tier), cfg)
			for _, intent := range intents {
				if intent.Kind == types.RewardMembershipIssue {
					return len(intents) == 1
				}
			}
			return true
		},
		gen.UInt64(),
		gen.OneConstOf("GOLD", "SILVER", "PLATINUM", ""),
	))

	properties.TestingRun(t)
}
