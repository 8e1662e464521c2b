package models

import (
	"time"

	"github.com/creator-rewards/internal/types"
	"github.com/google/uuid"
)

// RewardAction is one unit of side-effect work derived from a tip. At most one
// action exists per (tip_tx_id, kind) pair; the unique constraint on that pair
// is what makes replays of the planner harmless.
type RewardAction struct {
	ID             string             `json:"id"`
	TipTxID        string             `json:"tipTxId"`
	Kind           types.RewardKind   `json:"kind"`
	Status         types.ActionStatus `json:"status"`
	Attempts       int                `json:"attempts"`
	NextRetryAt    time.Time          `json:"nextRetryAt"`
	LastErrorClass types.ErrorClass   `json:"lastErrorClass,omitempty"`
	LastError      string             `json:"lastError,omitempty"`

	// TemplateID and TierName pin the planner's decision so a retry months
	// later does not re-plan against changed creator configuration.
	TemplateID int64  `json:"templateId,omitempty"`
	TierName   string `json:"tierName,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRewardAction creates a pending action for a tip, due immediately.
func NewRewardAction(tipTxID string, kind types.RewardKind) *RewardAction {
	now := time.Now().UTC()
	return &RewardAction{
		ID:          uuid.NewString(),
		TipTxID:     tipTxID,
		Kind:        kind,
		Status:      types.ActionPending,
		NextRetryAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
