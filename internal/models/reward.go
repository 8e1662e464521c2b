package models

import (
	"time"

	"github.com/creator-rewards/internal/types"
)

// LoyaltyCounter tracks one fan's tipping relationship with one creator.
// Updated only through atomic single-row increments, never re-derived from
// tip history.
type LoyaltyCounter struct {
	FanWallet        string    `json:"fanWallet"`
	CreatorWallet    string    `json:"creatorWallet"`
	TipCount         int64     `json:"tipCount"`
	TotalAmountMicro uint64    `json:"totalAmountMicro"`
	BadgesEarned     int64     `json:"badgesEarned"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Membership is a time-bound membership grant. At most one active row exists
// per (fan, creator) pair.
type Membership struct {
	ID            int64     `json:"id"`
	FanWallet     string    `json:"fanWallet"`
	CreatorWallet string    `json:"creatorWallet"`
	TierName      string    `json:"tierName"`
	AssetRef      string    `json:"assetRef,omitempty"`
	SourceTipTxID string    `json:"sourceTipTxId"`
	ExpiresAt     time.Time `json:"expiresAt"`
	IsActive      bool      `json:"isActive"`
	IssuedAt      time.Time `json:"issuedAt"`
}

// CollectibleToken is one minted collectible. SourceTipTxID is unique: a tip
// can never yield two tokens, no matter how the mint is retried.
type CollectibleToken struct {
	ID             int64                `json:"id"`
	AssetRef       string               `json:"assetRef"`
	OwnerWallet    string               `json:"ownerWallet"`
	TemplateID     int64                `json:"templateId"`
	SourceTipTxID  string               `json:"sourceTipTxId"`
	Kind           types.TemplateKind   `json:"kind"`
	DeliveryStatus types.DeliveryStatus `json:"deliveryStatus"`
	DeliveryTxID   string               `json:"deliveryTxId,omitempty"`
	IsBurned       bool                 `json:"isBurned"`
	IsLocked       bool                 `json:"isLocked"`
	MintedAt       time.Time            `json:"mintedAt"`
}
