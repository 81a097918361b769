package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/tags/internal/config"
	"example.com/tags/internal/consumer"
	persistence "example.com/tags/internal/persistence/postgres"
	httptransport "example.com/tags/internal/transport/http"
)

const (
	handleAttempts = 3
	handleTimeout  = 10 * time.Second
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := persistence.Migrate(ctx, pool); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	audit := consumer.NewAuditHandler(pool)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		metricsSrv := httptransport.NewServer(httptransport.MetricsDefaults(cfg.MetricsAddress), promhttp.Handler())
		if err := httptransport.Run(ctx, metricsSrv, 10*time.Second, log.New(log.Writer(), "[consumer-metrics] ", log.LstdFlags)); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()

	for _, topic := range cfg.ConsumerTopics {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumeTopic(ctx, cfg, topic, audit)
		}()
	}

	<-ctx.Done()
	log.Println("consumer shutdown requested")
	wg.Wait()
}

// consumeTopic records every event of topic in the audit log until ctx ends.
func consumeTopic(ctx context.Context, cfg config.Config, topic string, handler consumer.Handler) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           topic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	defer reader.Close()

	proc := consumer.NewProcessor(reader, handler,
		consumer.WithLogger(log.New(log.Writer(), "[consumer "+topic+"] ", log.LstdFlags|log.Lshortfile)),
		consumer.WithHandleAttempts(handleAttempts),
		consumer.WithHandleTimeout(handleTimeout),
	)

	log.Printf("consumer started (topic=%s, group=%s)", topic, cfg.ConsumerGroupID)
	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("consumer stopped with error (topic=%s): %v", topic, err)
	}
}
