package models

import (
	"time"

	"github.com/creator-rewards/internal/types"
)

// TipRecord is the durable record of one confirmed tip event.
// Rows are append-only except for the processed flag, which flips true only
// after every derived reward action has terminally succeeded or been
// permanently abandoned.
type TipRecord struct {
	TxID          string    `json:"txId"`
	FanWallet     string    `json:"fanWallet"`
	CreatorWallet string    `json:"creatorWallet"`
	AppID         uint64    `json:"appId"`
	AmountMicro   uint64    `json:"amountMicro"`
	Memo          string    `json:"memo"`
	Round         uint64    `json:"round"`
	DetectedAt    time.Time `json:"detectedAt"`
	Processed     bool      `json:"processed"`
}

// FromTipEvent builds a TipRecord from a normalized tip event.
func FromTipEvent(ev *types.TipEvent) *TipRecord {
	detected := ev.DetectedAt
	if detected.IsZero() {
		detected = time.Now().UTC()
	}
	return &TipRecord{
		TxID:          ev.TxID,
		FanWallet:     ev.FanWallet,
		CreatorWallet: ev.CreatorWallet,
		AppID:         ev.AppID,
		AmountMicro:   ev.AmountMicro,
		Memo:          ev.Memo,
		Round:         ev.Round,
		DetectedAt:    detected,
	}
}
