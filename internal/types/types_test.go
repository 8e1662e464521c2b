package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionStatus_Terminal(t *testing.T) {
	tests := []struct {
		status ActionStatus
		want   bool
	}{
		{ActionPending, false},
		{ActionInProgress, false},
		{ActionDone, true},
		{ActionFailedPermanent, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.Terminal(), "status %s", tt.status)
	}
}

func TestClassifyActionError(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil error", nil, ErrorClassNone},
		{"transient action error", NewTransientActionError("mint", base), ErrorClassTransient},
		{"permanent action error", NewPermanentActionError("mint", base), ErrorClassPermanent},
		{"wrapped action error", fmt.Errorf("outer: %w", NewPermanentActionError("mint", base)), ErrorClassPermanent},
		{"unknown error defaults to transient", base, ErrorClassTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyActionError(tt.err))
		})
	}
}

func TestActionError_Unwrap(t *testing.T) {
	base := errors.New("boom")
	err := NewTransientActionError("mint", base)

	assert.True(t, errors.Is(err, base))
	assert.Contains(t, err.Error(), "mint")
	assert.Contains(t, err.Error(), "transient")
}

func TestIsTransientFetch(t *testing.T) {
	transient := &TransientFetchError{Op: "request", Err: errors.New("timeout")}
	permanent := &PermanentFetchError{Op: "decode", Err: errors.New("bad json")}

	assert.True(t, IsTransientFetch(transient))
	assert.True(t, IsTransientFetch(fmt.Errorf("wrapped: %w", transient)))
	assert.False(t, IsTransientFetch(permanent))
	assert.False(t, IsTransientFetch(nil))
}

func TestIsDecodeError(t *testing.T) {
	decode := &DecodeError{TxID: "TX-1", Reason: "too short"}

	assert.True(t, IsDecodeError(decode))
	assert.False(t, IsDecodeError(errors.New("other")))
	assert.Contains(t, decode.Error(), "TX-1")
}
