// Package types defines the shared domain types for the tip listener
// and reward-issuance pipeline.
package types

import (
	"errors"
	"fmt"
	"time"
)

// RewardKind identifies one unit of reward side-effect work derived from a tip.
type RewardKind string

const (
	RewardLoyaltyIncrement RewardKind = "loyalty_increment"
	RewardMembershipIssue  RewardKind = "membership_issue"
	RewardCollectibleMint  RewardKind = "collectible_mint"
)

// ActionStatus is the lifecycle state of a reward action.
// Transitions are monotonic: an action never regresses from a terminal state.
type ActionStatus string

const (
	ActionPending         ActionStatus = "pending"
	ActionInProgress      ActionStatus = "in_progress"
	ActionDone            ActionStatus = "done"
	ActionFailedPermanent ActionStatus = "failed_permanent"
)

// Terminal reports whether the status is final.
func (s ActionStatus) Terminal() bool {
	return s == ActionDone || s == ActionFailedPermanent
}

// ErrorClass categorizes a reward action failure for the retry scheduler.
type ErrorClass string

const (
	ErrorClassNone      ErrorClass = ""
	ErrorClassTransient ErrorClass = "transient"
	ErrorClassPermanent ErrorClass = "permanent"
)

// TemplateKind distinguishes non-transferable from tradable collectibles.
type TemplateKind string

const (
	TemplateSoulbound TemplateKind = "soulbound"
	TemplateTradable  TemplateKind = "tradable"
)

// DeliveryStatus tracks how a minted collectible reached (or did not reach)
// its recipient.
type DeliveryStatus string

const (
	DeliveryDelivered    DeliveryStatus = "delivered"
	DeliveryPendingClaim DeliveryStatus = "pending_claim"
	DeliveryFailed       DeliveryStatus = "failed"
)

// RawTransaction is one confirmed transaction as returned by the indexer,
// before normalization.
type RawTransaction struct {
	TxID       string
	Round      uint64
	IntraRound int
	AppID      uint64
	Payload    []byte
}

// TipEvent is a decoded on-chain tip log.
type TipEvent struct {
	TxID          string
	Round         uint64
	AppID         uint64
	FanWallet     string
	CreatorWallet string
	AmountMicro   uint64
	Memo          string
	DetectedAt    time.Time
}

// TransientFetchError indicates the indexer query failed in a way that the
// next poll tick can safely retry (network error, timeout, 5xx).
type TransientFetchError struct {
	Op  string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch error during %s: %v", e.Op, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// PermanentFetchError indicates the indexer returned a response this client
// cannot interpret. Retrying the same request cannot succeed.
type PermanentFetchError struct {
	Op  string
	Err error
}

func (e *PermanentFetchError) Error() string {
	return fmt.Sprintf("permanent fetch error during %s: %v", e.Op, e.Err)
}

func (e *PermanentFetchError) Unwrap() error { return e.Err }

// DecodeError indicates a single log payload could not be decoded. The event
// is skipped and logged; it never halts the batch.
type DecodeError struct {
	TxID   string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode tip log for tx %s: %s", e.TxID, e.Reason)
}

// ActionError carries the error class a failed reward action is filed under.
type ActionError struct {
	Class ErrorClass
	Op    string
	Err   error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s action error during %s: %v", e.Class, e.Op, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// NewTransientActionError wraps err as a retryable action failure.
func NewTransientActionError(op string, err error) *ActionError {
	return &ActionError{Class: ErrorClassTransient, Op: op, Err: err}
}

// NewPermanentActionError wraps err as a non-retryable action failure.
func NewPermanentActionError(op string, err error) *ActionError {
	return &ActionError{Class: ErrorClassPermanent, Op: op, Err: err}
}

// ClassifyActionError extracts the error class from err. Unknown failures
// default to transient so they stay retryable rather than being abandoned.
func ClassifyActionError(err error) ErrorClass {
	if err == nil {
		return ErrorClassNone
	}
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Class
	}
	return ErrorClassTransient
}

// IsTransientFetch reports whether err is a TransientFetchError.
func IsTransientFetch(err error) bool {
	var te *TransientFetchError
	return errors.As(err, &te)
}

// IsDecodeError reports whether err is a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
