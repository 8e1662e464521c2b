package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics() (*ListenerMetrics, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	return NewListenerMetrics(registry), registry
}

func TestSnapshot_CountsAndRounds(t *testing.T) {
	m, _ := newTestMetrics()

	m.SetRunning(true)
	m.RecordTipProcessed()
	m.RecordTipProcessed()
	m.RecordMintFailed()
	m.RecordRetrySuccess()
	m.RecordRetryFail()
	m.RecordIndexerError()
	m.SetLastProcessedRound(100)
	m.SetCurrentRound(130)
	m.Heartbeat()

	snap := m.Snapshot()

	assert.True(t, snap.Running)
	assert.Equal(t, int64(2), snap.TipsProcessedTotal)
	assert.Equal(t, int64(1), snap.FailedMintsCount)
	assert.Equal(t, int64(1), snap.RetrySuccessCount)
	assert.Equal(t, int64(1), snap.RetryFailCount)
	assert.Equal(t, int64(1), snap.IndexerQueryErrors)
	assert.Equal(t, uint64(100), snap.LastProcessedRound)
	assert.Equal(t, uint64(30), snap.ListenerLagRounds)
	assert.Less(t, snap.HeartbeatAgeSeconds, 1.0)
	assert.Greater(t, snap.TipsPerMinute, 0.0)
}

func TestSnapshot_LagNeverNegative(t *testing.T) {
	m, _ := newTestMetrics()

	m.SetLastProcessedRound(200)
	m.SetCurrentRound(150)

	snap := m.Snapshot()
	assert.Equal(t, uint64(0), snap.ListenerLagRounds)
}

func TestPrometheusMirrors(t *testing.T) {
	m, registry := newTestMetrics()

	m.RecordTipProcessed()
	m.RecordMintFailed()
	m.SetLastProcessedRound(42)

	families, err := registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["tips_processed_total"])
	assert.True(t, names["failed_mints_total"])
	assert.True(t, names["listener_last_processed_round"])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.promTips))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.promLastRound))
}
