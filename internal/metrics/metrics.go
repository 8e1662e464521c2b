// Package metrics tracks listener throughput and resilience counters and
// exposes the liveness heartbeat consumed by the status endpoint.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ListenerMetrics holds in-memory counters for the status snapshot and
// mirrors them into Prometheus. Safe for concurrent use.
type ListenerMetrics struct {
	mu                 sync.Mutex
	running            bool
	tipsProcessedTotal int64
	failedMintsCount   int64
	retrySuccessCount  int64
	retryFailCount     int64
	indexerQueryErrors int64
	lastProcessedRound uint64
	currentRound       uint64
	lastHeartbeat      time.Time
	tipWindow          []time.Time

	promTips         prometheus.Counter
	promFailedMints  prometheus.Counter
	promRetrySuccess prometheus.Counter
	promRetryFail    prometheus.Counter
	promIndexerErrs  prometheus.Counter
	promLastRound    prometheus.Gauge
	promLagRounds    prometheus.Gauge
}

const tipWindowSpan = time.Minute

// NewListenerMetrics creates metrics registered on reg. Pass nil to register
// on the default Prometheus registry.
func NewListenerMetrics(reg prometheus.Registerer) *ListenerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &ListenerMetrics{
		lastHeartbeat: time.Now(),
		promTips: factory.NewCounter(prometheus.CounterOpts{
			Name: "tips_processed_total",
			Help: "Total tip events recorded by the listener.",
		}),
		promFailedMints: factory.NewCounter(prometheus.CounterOpts{
			Name: "failed_mints_total",
			Help: "Reward actions abandoned as permanently failed.",
		}),
		promRetrySuccess: factory.NewCounter(prometheus.CounterOpts{
			Name: "retry_success_total",
			Help: "Reward actions that succeeded on a retry attempt.",
		}),
		promRetryFail: factory.NewCounter(prometheus.CounterOpts{
			Name: "retry_fail_total",
			Help: "Failed retry attempts for reward actions.",
		}),
		promIndexerErrs: factory.NewCounter(prometheus.CounterOpts{
			Name: "indexer_query_errors_total",
			Help: "Transient indexer query failures.",
		}),
		promLastRound: factory.NewGauge(prometheus.GaugeOpts{
			Name: "listener_last_processed_round",
			Help: "Checkpoint round the listener has fully recorded.",
		}),
		promLagRounds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "listener_lag_rounds",
			Help: "Rounds between the ledger head and the checkpoint.",
		}),
	}
}

// SetRunning records whether the poll loop is active.
func (m *ListenerMetrics) SetRunning(running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = running
}

// RecordTipProcessed counts one newly recorded tip.
func (m *ListenerMetrics) RecordTipProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tipsProcessedTotal++
	now := time.Now()
	m.tipWindow = append(m.tipWindow, now)
	m.pruneWindow(now)
	m.promTips.Inc()
}

// RecordMintFailed counts a permanently failed reward action.
func (m *ListenerMetrics) RecordMintFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedMintsCount++
	m.promFailedMints.Inc()
}

// RecordRetrySuccess counts an action that succeeded after at least one retry.
func (m *ListenerMetrics) RecordRetrySuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retrySuccessCount++
	m.promRetrySuccess.Inc()
}

// RecordRetryFail counts a failed retry attempt.
func (m *ListenerMetrics) RecordRetryFail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryFailCount++
	m.promRetryFail.Inc()
}

// RecordIndexerError counts a transient indexer query failure.
func (m *ListenerMetrics) RecordIndexerError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexerQueryErrors++
	m.promIndexerErrs.Inc()
}

// SetLastProcessedRound records the checkpoint round.
func (m *ListenerMetrics) SetLastProcessedRound(round uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastProcessedRound = round
	m.promLastRound.Set(float64(round))
	m.updateLagLocked()
}

// SetCurrentRound records the ledger head round for lag reporting.
func (m *ListenerMetrics) SetCurrentRound(round uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentRound = round
	m.updateLagLocked()
}

// Heartbeat stamps the liveness signal. Called once per poll tick.
func (m *ListenerMetrics) Heartbeat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastHeartbeat = time.Now()
}

func (m *ListenerMetrics) updateLagLocked() {
	if m.currentRound > m.lastProcessedRound {
		m.promLagRounds.Set(float64(m.currentRound - m.lastProcessedRound))
	} else {
		m.promLagRounds.Set(0)
	}
}

func (m *ListenerMetrics) pruneWindow(now time.Time) {
	cutoff := now.Add(-tipWindowSpan)
	kept := m.tipWindow[:0]
	for _, t := range m.tipWindow {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	m.tipWindow = kept
}

// StatusSnapshot is the listener state surfaced through the status endpoint.
type StatusSnapshot struct {
	Running             bool    `json:"running"`
	LastProcessedRound  uint64  `json:"lastProcessedRound"`
	HeartbeatAgeSeconds float64 `json:"heartbeatAgeSeconds"`
	TipsProcessedTotal  int64   `json:"tipsProcessedTotal"`
	FailedMintsCount    int64   `json:"failedMintsCount"`
	RetrySuccessCount   int64   `json:"retrySuccessCount"`
	RetryFailCount      int64   `json:"retryFailCount"`
	IndexerQueryErrors  int64   `json:"indexerQueryErrors"`
	ListenerLagRounds   uint64  `json:"listenerLagRounds"`
	TipsPerMinute       float64 `json:"tipsPerMinute"`
}

// Snapshot returns a point-in-time copy of the counters.
func (m *ListenerMetrics) Snapshot() StatusSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.pruneWindow(now)

	var lag uint64
	if m.currentRound > m.lastProcessedRound {
		lag = m.currentRound - m.lastProcessedRound
	}

	var tipsPerMinute float64
	if len(m.tipWindow) > 0 {
		elapsed := now.Sub(m.tipWindow[0]).Seconds()
		if elapsed > 0 {
			tipsPerMinute = float64(len(m.tipWindow)) * (60.0 / elapsed)
		}
	}

	return StatusSnapshot{
		Running:             m.running,
		LastProcessedRound:  m.lastProcessedRound,
		HeartbeatAgeSeconds: now.Sub(m.lastHeartbeat).Seconds(),
		TipsProcessedTotal:  m.tipsProcessedTotal,
		FailedMintsCount:    m.failedMintsCount,
		RetrySuccessCount:   m.retrySuccessCount,
		RetryFailCount:      m.retryFailCount,
		IndexerQueryErrors:  m.indexerQueryErrors,
		ListenerLagRounds:   lag,
		TipsPerMinute:       tipsPerMinute,
	}
}
