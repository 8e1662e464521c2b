// Package retry defines the backoff policy for failed reward actions.
package retry

import (
	"time"

	"github.com/creator-rewards/internal/types"
)

// Policy decides what happens to a reward action after a failed attempt.
// Transient failures walk a fixed backoff schedule until the attempt cap;
// permanent failures are abandoned after a single attempt.
type Policy struct {
	Backoff     []time.Duration
	MaxAttempts int
}

// DefaultPolicy returns the standard schedule: 60s, 120s, 240s, capped at
// four attempts total.
func DefaultPolicy() *Policy {
	return &Policy{
		Backoff:     []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second},
		MaxAttempts: 4,
	}
}

// Decision is the scheduler's verdict for one failed attempt.
type Decision struct {
	Status      types.ActionStatus
	NextRetryAt time.Time // meaningful only when Status is ActionPending
}

// Decide maps a failure on attempt number `attempts` (1-based, including the
// failing attempt) with the given error class to the action's next state.
func (p *Policy) Decide(attempts int, class types.ErrorClass, now time.Time) Decision {
	if class == types.ErrorClassPermanent {
		// Retrying a permanent failure cannot succeed
		return Decision{Status: types.ActionFailedPermanent}
	}
	if attempts >= p.MaxAttempts {
		return Decision{Status: types.ActionFailedPermanent}
	}
	return Decision{
		Status:      types.ActionPending,
		NextRetryAt: now.Add(p.delay(attempts)),
	}
}

// delay returns the backoff before retry number `attempts`+1. Attempts past
// the schedule reuse its last entry.
func (p *Policy) delay(attempts int) time.Duration {
	if len(p.Backoff) == 0 {
		return time.Minute
	}
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	return p.Backoff[idx]
}
