package models

import "time"

// Checkpoint is the durable ingestion cursor. One row per deployment.
// LastProcessedRound never moves backward; the repository enforces this with
// a guarded update.
type Checkpoint struct {
	LastProcessedRound uint64    `json:"lastProcessedRound"`
	HeartbeatAt        time.Time `json:"heartbeatAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}
