package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/tags/internal/config"
	"example.com/tags/internal/outbox"
	httptransport "example.com/tags/internal/transport/http"
)

const defaultDLQBatchSize = 50

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)

	metricsLogger := log.New(log.Writer(), "[dlq-metrics] ", log.LstdFlags)
	metricsSrv := httptransport.NewServer(httptransport.MetricsDefaults(cfg.MetricsAddress), promhttp.Handler())
	metricsDone := make(chan struct{})
	go func() {
		defer close(metricsDone)
		if err := httptransport.Run(ctx, metricsSrv, 10*time.Second, metricsLogger); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()

	log.Printf("DLQ manager started (interval=%s, maxRetries=%d)", cfg.DLQPollInterval, cfg.DLQMaxRetries)
	if err := manager.Run(ctx, cfg.DLQPollInterval, defaultDLQBatchSize); err != nil {
		log.Printf("dlq manager stopped: %v", err)
	}

	log.Println("dlq manager received shutdown signal")
	<-metricsDone
}
