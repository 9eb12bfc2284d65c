// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "groupbuy"

var (
	// SweepRuns counts sweep executions by job and outcome (ok, error, skipped).
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_runs_total",
		Help:      "Sweep job executions by outcome.",
	}, []string{"job", "outcome"})

	// SweepDuration observes how long each sweep run takes.
	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Sweep job run duration.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})

	// GroupTransitions counts committed status changes.
	GroupTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "group_transitions_total",
		Help:      "Committed group status transitions.",
	}, []string{"from", "to", "source"})

	// JoinAttempts counts join outcomes: joined, retried or the failure kind.
	JoinAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "join_attempts_total",
		Help:      "Group join attempts by outcome.",
	}, []string{"outcome"})

	// Refunds counts refund attempts by outcome.
	Refunds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refunds_total",
		Help:      "Deposit refund attempts by outcome.",
	}, []string{"outcome"})

	// NotificationFailures counts notifications that could not be delivered.
	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_failures_total",
		Help:      "Notifications dropped after a delivery error.",
	}, []string{"kind"})
)

// Transition records a group status change.
func Transition(from, to, source string) {
	GroupTransitions.WithLabelValues(from, to, source).Inc()
}
