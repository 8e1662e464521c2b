package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreaker(timeout time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(&Config{
		Name:             "test",
		MaxFailures:      3,
		FailureThreshold: 0.5,
		Timeout:          timeout,
		HalfOpenMaxCalls: 2,
	})
}

func TestExecute_PassesThroughWhenClosed(t *testing.T) {
	cb := testBreaker(time.Minute)

	err := cb.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestExecute_ReturnsFunctionError(t *testing.T) {
	cb := testBreaker(time.Minute)
	boom := errors.New("boom")

	err := cb.Execute(context.Background(), func() error { return boom })
	assert.Equal(t, boom, err)
}

func TestExecute_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := testBreaker(time.Minute)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return boom })
	}

	assert.Equal(t, StateOpen, cb.GetState())

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.Equal(t, ErrCircuitOpen, err)
}

func TestExecute_HalfOpenRecovery(t *testing.T) {
	cb := testBreaker(10 * time.Millisecond)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return boom })
	}
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(20 * time.Millisecond)

	// Successful probes close the circuit again
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	cb := testBreaker(10 * time.Millisecond)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return boom })
	}
	time.Sleep(20 * time.Millisecond)

	_ = cb.Execute(context.Background(), func() error { return boom })
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestGetStats(t *testing.T) {
	cb := testBreaker(time.Minute)
	boom := errors.New("boom")

	_ = cb.Execute(context.Background(), func() error { return nil })
	_ = cb.Execute(context.Background(), func() error { return boom })

	stats := cb.GetStats()
	assert.Equal(t, "test", stats.Name)
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, 2, stats.TotalCalls)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 1, stats.Successes)
	assert.Equal(t, 0.5, stats.FailureRate)
}

func TestReset(t *testing.T) {
	cb := testBreaker(time.Minute)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return boom })
	}
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()

	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 0, cb.GetStats().TotalCalls)
}
