package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics captures engine-level counters for engagement operations,
// payouts and dispute transitions.
type EscrowMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	payouts    *prometheus.CounterVec
	disputes   *prometheus.CounterVec
}

var (
	escrowMetricsOnce sync.Once
	escrowRegistry    *EscrowMetrics
)

// Escrow returns the lazily-initialised escrow metrics registry.
func Escrow() *EscrowMetrics {
	escrowMetricsOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "smartescrow",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Total engagement operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "smartescrow",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for engagement operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "smartescrow",
				Subsystem: "router",
				Name:      "payouts_total",
				Help:      "Count of routed payouts segmented by destination kind.",
			}, []string{"kind"}),
			disputes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "smartescrow",
				Subsystem: "disputes",
				Name:      "transitions_total",
				Help:      "Count of dispute lifecycle transitions segmented by transition.",
			}, []string{"transition"}),
		}
		prometheus.MustRegister(
			escrowRegistry.operations,
			escrowRegistry.latency,
			escrowRegistry.payouts,
			escrowRegistry.disputes,
		)
	})
	return escrowRegistry
}

// ObserveOperation records the outcome of an engagement operation. Rejected
// operations are counted under the "rejected" outcome.
func (m *EscrowMetrics) ObserveOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "committed"
	if err != nil {
		outcome = "rejected"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordPayout increments the payout counter. Kinds should be stable strings
// such as "push", "pull", "fee" or "resolver".
func (m *EscrowMetrics) RecordPayout(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unspecified"
	}
	m.payouts.WithLabelValues(kind).Inc()
}

// RecordDispute increments the dispute transition counter (lock, resolve,
// rule, unlock).
func (m *EscrowMetrics) RecordDispute(transition string) {
	if m == nil {
		return
	}
	if transition == "" {
		transition = "unspecified"
	}
	m.disputes.WithLabelValues(transition).Inc()
}

// OperationCount exposes the counter for the supplied labels so tests and
// diagnostics can read it.
func (m *EscrowMetrics) OperationCount(operation, outcome string) prometheus.Counter {
	return m.operations.WithLabelValues(operation, outcome)
}

// PayoutCount exposes the payout counter for kind.
func (m *EscrowMetrics) PayoutCount(kind string) prometheus.Counter {
	return m.payouts.WithLabelValues(kind)
}

// DisputeCount exposes the dispute transition counter.
func (m *EscrowMetrics) DisputeCount(transition string) prometheus.Counter {
	return m.disputes.WithLabelValues(transition)
}
