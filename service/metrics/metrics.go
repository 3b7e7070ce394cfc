package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec

	// Session metrics
	sessionTransitionsTotal *prometheus.CounterVec

	// Transfer metrics
	transferSubmissionsTotal *prometheus.CounterVec

	// Polling metrics
	historyPollsTotal    *prometheus.CounterVec
	historyPollDuration  *prometheus.HistogramVec
	balanceRefreshTotal  *prometheus.CounterVec
	historyEntriesPerPoll *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		sessionTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_session_transitions_total",
				Help: "Total number of wallet session state transitions",
			},
			[]string{"from", "to"},
		),
		transferSubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transfer_submissions_total",
				Help: "Total number of transfer submissions by outcome",
			},
			[]string{"outcome"},
		),
		historyPollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "history_polls_total",
				Help: "Total number of transaction history poll cycles by status",
			},
			[]string{"status"},
		),
		historyPollDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "history_poll_duration_seconds",
				Help:    "Duration of transaction history poll cycles in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		balanceRefreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "balance_refreshes_total",
				Help: "Total number of balance refreshes by status",
			},
			[]string{"status"},
		),
		historyEntriesPerPoll: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "history_entries_per_poll",
				Help:    "Number of activity entries returned per poll cycle",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 10, 25},
			},
			[]string{"endpoint"},
		),
	}
}

// RecordRPCCall records a Solana RPC call with its duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, durationSeconds float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordSessionTransition records a session state transition.
func (m *Metrics) RecordSessionTransition(from, to string) {
	m.sessionTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordTransferSubmission records a transfer submission outcome ("success" or "failure").
func (m *Metrics) RecordTransferSubmission(outcome string) {
	m.transferSubmissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordHistoryPoll records a history poll cycle with its duration.
func (m *Metrics) RecordHistoryPoll(status string, durationSeconds float64) {
	m.historyPollsTotal.WithLabelValues(status).Inc()
	m.historyPollDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordHistoryEntries records how many entries a poll cycle returned.
func (m *Metrics) RecordHistoryEntries(endpoint string, count float64) {
	m.historyEntriesPerPoll.WithLabelValues(endpoint).Observe(count)
}

// RecordBalanceRefresh records a balance refresh attempt.
func (m *Metrics) RecordBalanceRefresh(status string) {
	m.balanceRefreshTotal.WithLabelValues(status).Inc()
}
