package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Relay results.
const (
	relayPublished = "published"
	relayParked    = "parked"
)

// Replay actions taken on a parked event.
const (
	replayReplayed    = "replayed"
	replayDeferred    = "deferred"
	replayQuarantined = "quarantined"
)

var (
	relayedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tags",
		Subsystem: "relay",
		Name:      "events_total",
		Help:      "Activity and membership events leaving the outbox, by whether they reached the bus or were parked for replay.",
	}, []string{"event_type", "result"})

	relayBatchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tags",
		Subsystem: "relay",
		Name:      "batch_seconds",
		Help:      "Wall time of one relay pass over claimed outbox rows.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	replayedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tags",
		Subsystem: "replay",
		Name:      "events_total",
		Help:      "Parked events handled by the replay worker, by the action taken.",
	}, []string{"event_type", "action"})

	parkedBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tags",
		Subsystem: "replay",
		Name:      "parked_events",
		Help:      "Parked events still eligible for replay.",
	})
)

func init() {
	prometheus.MustRegister(relayedEvents, relayBatchSeconds, replayedEvents, parkedBacklog)
}

func recordRelayed(msg Message, result string) {
	relayedEvents.WithLabelValues(msg.EventType, result).Inc()
}

func recordReplay(entry dlqEntry, action string) {
	replayedEvents.WithLabelValues(entry.EventType, action).Inc()
}

func refreshParkedBacklog(ctx context.Context, pool *pgxpool.Pool) {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&count); err != nil {
		return
	}
	parkedBacklog.Set(float64(count))
}
