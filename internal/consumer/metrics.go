package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeHandled   = "handled"
	outcomeFailed    = "failed"
	outcomeMalformed = "malformed"
)

var (
	recordsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tags",
		Subsystem: "consumer",
		Name:      "records_total",
		Help:      "Kafka records seen by the consumer grouped by topic, event type and outcome.",
	}, []string{"topic", "event_type", "outcome"})

	handleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tags",
		Subsystem: "consumer",
		Name:      "handle_duration_seconds",
		Help:      "Time spent in a single handler invocation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"topic"})

	lastHandledGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tags",
		Subsystem: "consumer",
		Name:      "last_handled_timestamp_seconds",
		Help:      "Publish time of the most recent handled record per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(recordsCounter, handleDuration, lastHandledGauge)
}

func recordOutcome(topic, eventType, outcome string) {
	recordsCounter.WithLabelValues(topic, eventType, outcome).Inc()
}

func observeHandle(topic string, elapsed time.Duration) {
	handleDuration.WithLabelValues(topic).Observe(elapsed.Seconds())
}

func recordLastHandled(msg Message) {
	if !msg.Timestamp.IsZero() {
		lastHandledGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}
