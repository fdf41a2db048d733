package monitoring

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "acp"

// Metrics holds the node's Prometheus collectors
type Metrics struct {
	dispatchAttempts *prometheus.CounterVec
	dispatchFailures *prometheus.CounterVec
	confirmation     *prometheus.HistogramVec
	events           *prometheus.CounterVec
	queueDepth       prometheus.Gauge
	x402Polls        *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		dispatchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_attempts_total",
			Help:      "Operations submitted, counted once per attempt.",
		}, []string{"chain_id", "operation"}),
		dispatchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Batches that failed after every attempt.",
		}, []string{"chain_id"}),
		confirmation: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confirmation_seconds",
			Help:      "Time from submission to accepted confirmation.",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"chain_id"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_events_total",
			Help:      "Job events processed by outcome.",
		}, []string{"type", "outcome"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_event_queue_depth",
			Help:      "Job events waiting for a worker.",
		}),
		x402Polls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "x402_budget_polls_total",
			Help:      "Budget-received checks by result.",
		}, []string{"received"}),
	}
}

// DispatchAttempt counts one submitted operation
func (m *Metrics) DispatchAttempt(chainID uint64, label string) {
	m.dispatchAttempts.WithLabelValues(chainLabel(chainID), label).Inc()
}

// DispatchFailed counts one batch that exhausted its attempts
func (m *Metrics) DispatchFailed(chainID uint64) {
	m.dispatchFailures.WithLabelValues(chainLabel(chainID)).Inc()
}

// ConfirmationObserved records how long a batch took to confirm
func (m *Metrics) ConfirmationObserved(chainID uint64, seconds float64) {
	m.confirmation.WithLabelValues(chainLabel(chainID)).Observe(seconds)
}

// EventHandled counts one processed job event
func (m *Metrics) EventHandled(eventType string, outcome string) {
	m.events.WithLabelValues(eventType, outcome).Inc()
}

// QueueDepth sets the number of waiting events
func (m *Metrics) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// X402Poll counts one budget-received check
func (m *Metrics) X402Poll(received bool) {
	m.x402Polls.WithLabelValues(strconv.FormatBool(received)).Inc()
}

func chainLabel(chainID uint64) string {
	return strconv.FormatUint(chainID, 10)
}
