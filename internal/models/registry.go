package models

import (
	"time"

	"github.com/creator-rewards/internal/types"
)

// CreatorContract is one deployed per-creator tip contract instance.
type CreatorContract struct {
	AppID         uint64    `json:"appId"`
	CreatorWallet string    `json:"creatorWallet"`
	Active        bool      `json:"active"`
	DeployedAt    time.Time `json:"deployedAt"`
}

// RewardTemplate is a creator-configured collectible design with a tip
// threshold. The planner selects the highest threshold that the tip amount
// meets; ties go to the earliest-created template.
type RewardTemplate struct {
	ID             int64              `json:"id"`
	CreatorWallet  string             `json:"creatorWallet"`
	Name           string             `json:"name"`
	Kind           types.TemplateKind `json:"kind"`
	ThresholdMicro uint64             `json:"thresholdMicro"`
	MetadataURL    string             `json:"metadataUrl"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// MembershipTier is a creator-configured membership offering, purchased by
// tipping with a MEMBERSHIP:<NAME> memo at the tier price.
type MembershipTier struct {
	ID            int64  `json:"id"`
	CreatorWallet string `json:"creatorWallet"`
	Name          string `json:"name"`
	PriceMicro    uint64 `json:"priceMicro"`
	DurationDays  int    `json:"durationDays"`
}

// CreatorConfig bundles everything the reward planner needs to know about a
// creator. It is a pure value: the planner never touches the database.
type CreatorConfig struct {
	CreatorWallet string           `json:"creatorWallet"`
	Templates     []RewardTemplate `json:"templates"`
	Tiers         []MembershipTier `json:"tiers"`
}
