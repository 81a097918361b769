// Package observability exposes service-level Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tags",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity persisted to Postgres.",
	})

	membershipCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tags",
		Subsystem: "membership",
		Name:      "requests_total",
		Help:      "Join and leave requests grouped by operation and outcome.",
	}, []string{"op", "outcome"})

	reconcileCorrections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tags",
		Subsystem: "membership",
		Name:      "reconcile_corrections_total",
		Help:      "Local membership entries corrected against the store.",
	})

	submissionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tags",
		Subsystem: "submission",
		Name:      "requests_total",
		Help:      "Activity submissions grouped by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		activityPersistGauge,
		membershipCounter,
		reconcileCorrections,
		submissionCounter,
	)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordMembership counts a join or leave outcome.
func RecordMembership(op, outcome string) {
	membershipCounter.WithLabelValues(op, outcome).Inc()
}

// RecordReconcileCorrections counts entries fixed by reconciliation.
func RecordReconcileCorrections(n int) {
	if n > 0 {
		reconcileCorrections.Add(float64(n))
	}
}

// RecordSubmission counts a submission outcome.
func RecordSubmission(outcome string) {
	submissionCounter.WithLabelValues(outcome).Inc()
}

// MembershipCount exposes the join/leave counter for tests.
func MembershipCount(op, outcome string) prometheus.Counter {
	return membershipCounter.WithLabelValues(op, outcome)
}
