//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/tags/internal/events"
	"example.com/tags/internal/outbox"
	"example.com/tags/internal/persistence/postgres"
)

type syncApplier struct {
	mu      sync.Mutex
	applied []events.MembershipChanged
}

func (s *syncApplier) Apply(evt events.MembershipChanged) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, evt)
}

func (s *syncApplier) snapshot() []events.MembershipChanged {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.MembershipChanged(nil), s.applied...)
}

func TestKafkaMembershipEventsReachTracker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.Run(ctx, "confluentinc/confluent-local:7.5.0", kafkaContainer.WithClusterID("tags-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             events.TopicMembership,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	producer := outbox.NewKafkaProducer(brokers)
	defer producer.Close()
	require.NoError(t, producer.EnsureTopics(ctx, 1, 1, events.TopicMembership))
	require.NoError(t, producer.EnsureTopics(ctx, 1, 1, events.TopicMembership), "existing topics are left untouched")

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "tags-integration",
		Topic:       events.TopicMembership,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	applier := &syncApplier{}
	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = NewProcessor(reader, NewMembershipHandler(applier)).Run(consumerCtx)
	}()

	joined, err := json.Marshal(events.MembershipChanged{ActivityID: "a-1", UserID: "bob", Joined: true, OccurredAt: time.Now().UTC()})
	require.NoError(t, err)
	left, err := json.Marshal(events.MembershipChanged{ActivityID: "a-1", UserID: "bob", OccurredAt: time.Now().UTC()})
	require.NoError(t, err)

	require.NoError(t, producer.WriteMessages(ctx, events.TopicMembership,
		membershipKafkaRecord(events.TypeParticipantJoined, joined),
		membershipKafkaRecord(events.TypeParticipantLeft, left),
	))

	require.Eventually(t, func() bool {
		return len(applier.snapshot()) == 2
	}, 60*time.Second, 250*time.Millisecond)

	applied := applier.snapshot()
	require.True(t, applied[0].Joined)
	require.False(t, applied[1].Joined)
}

func TestAuditHandlerStoresEventOnce(t *testing.T) {
	ctx := context.Background()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("tags"),
		postgrescontainer.WithUsername("tags"),
		postgrescontainer.WithPassword("tags"),
		postgrescontainer.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))

	handler := NewAuditHandler(pool)
	payload := json.RawMessage(`{"activity_id":"a-1","created_by":"alice"}`)
	msg := Message{
		EventType:     events.TypeActivityCreated,
		SchemaID:      42,
		SchemaSubject: events.TopicActivities + "-value",
		Topic:         events.TopicActivities,
		Partition:     0,
		Offset:        5,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}

	require.NoError(t, handler.Handle(ctx, msg))
	require.NoError(t, handler.Handle(ctx, msg), "redelivery is ignored")

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM activity_event_log`).Scan(&count))
	require.Equal(t, 1, count)

	var stored []byte
	require.NoError(t, pool.QueryRow(ctx, `SELECT payload FROM activity_event_log LIMIT 1`).Scan(&stored))
	require.JSONEq(t, string(payload), string(stored))
}

func membershipKafkaRecord(eventType string, payload []byte) kafka.Message {
	return kafka.Message{
		Key:   []byte("a-1"),
		Value: framed(7, string(payload)),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "aggregate_id", Value: []byte("a-1")},
			{Key: "schema_subject", Value: []byte(events.TopicMembership + "-value")},
		},
	}
}
