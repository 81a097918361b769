package places

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	providerCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tags",
		Subsystem: "places",
		Name:      "provider_requests_total",
		Help:      "Geocoding provider calls grouped by operation and outcome.",
	}, []string{"op", "outcome"})

	providerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tags",
		Subsystem: "places",
		Name:      "provider_latency_seconds",
		Help:      "Latency of geocoding provider calls.",
		Buckets:   prometheus.ExponentialBuckets(0.025, 2, 9),
	}, []string{"op"})

	staleCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tags",
		Subsystem: "places",
		Name:      "stale_search_results_total",
		Help:      "Search results discarded because a newer query was issued or the session closed.",
	})

	cacheErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tags",
		Subsystem: "places",
		Name:      "cache_errors_total",
		Help:      "Geocoding cache reads or writes that failed and were treated as misses.",
	})
)

func init() {
	prometheus.MustRegister(providerCounter, providerLatency, staleCounter, cacheErrorCounter)
}

func recordProvider(op, outcome string, elapsed time.Duration) {
	providerCounter.WithLabelValues(op, outcome).Inc()
	providerLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func recordStale() {
	staleCounter.Inc()
}

func recordCacheError() {
	cacheErrorCounter.Inc()
}
