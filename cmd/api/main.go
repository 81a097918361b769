package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/segmentio/kafka-go"

	"example.com/tags/internal/api"
	"example.com/tags/internal/auth"
	"example.com/tags/internal/config"
	"example.com/tags/internal/consumer"
	"example.com/tags/internal/directory"
	"example.com/tags/internal/events"
	"example.com/tags/internal/identity"
	"example.com/tags/internal/membership"
	"example.com/tags/internal/outbox"
	persistence "example.com/tags/internal/persistence/postgres"
	"example.com/tags/internal/places"
	"example.com/tags/internal/submission"
	httptransport "example.com/tags/internal/transport/http"
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

	var (
		geoCache places.Cache      = places.NoopCache{}
		denylist identity.Denylist = identity.NewMemoryDenylist()
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid redis url: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Printf("redis unavailable, geocode cache disabled and revocations kept in memory: %v", err)
		} else {
			geoCache = places.NewRedisCache(rdb)
			denylist = identity.NewRedisDenylist(rdb)
		}
		pingCancel()
	}

	store := persistence.NewStore(pool)
	tracker := membership.NewTracker(store)
	resolver := places.NewResolver(places.Options{
		ReverseURL:    cfg.Geocode.ReverseURL,
		ReverseKey:    cfg.Geocode.ReverseKey,
		SearchURL:     cfg.Geocode.SearchURL,
		UserAgent:     cfg.Geocode.UserAgent,
		CountryCodes:  cfg.Geocode.CountryCodes,
		Timeout:       cfg.Geocode.Timeout,
		RatePerSecond: cfg.Geocode.RatePerSecond,
		CacheTTL:      cfg.Geocode.CacheTTL,
	}, geoCache)

	tokens := auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, TTL: cfg.JWTTTL}
	ids := identity.NewService(store, tokens, denylist)
	unsubscribe := ids.OnAuthStateChange(func(ev identity.Event) {
		if ev.Kind != identity.SignedIn && ev.Kind != identity.SignedUp {
			return
		}
		// Listeners run on the request goroutine.
		go func(userID string) {
			reconcileCtx, reconcileCancel := context.WithTimeout(ctx, cfg.StoreTimeout)
			defer reconcileCancel()
			if _, err := tracker.Reconcile(reconcileCtx, userID); err != nil {
				log.Printf("sign-in reconcile failed: %v", err)
			}
		}(ev.UserID)
	})
	defer unsubscribe()

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	topicsCtx, topicsCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := producer.EnsureTopics(topicsCtx, 3, 1, events.TopicActivities, events.TopicMembership); err != nil {
		log.Printf("kafka topics not verified, relying on auto-creation: %v", err)
	}
	topicsCancel()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	var workers sync.WaitGroup

	reconciler := membership.NewReconciler(tracker, cfg.ReconcileInterval, cfg.StoreTimeout)
	workers.Add(1)
	go func() {
		defer workers.Done()
		if err := reconciler.Run(ctx); err != nil {
			log.Printf("reconciler stopped: %v", err)
		}
	}()

	// Every API instance follows membership events under its own group so each one sees all of them.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         instanceGroupID("tags-api"),
		Topic:           events.TopicMembership,
		StartOffset:     kafka.LastOffset,
		MinBytes:        1,
		MaxBytes:        10e6,
		MaxWait:         500 * time.Millisecond,
		CommitInterval:  time.Second,
		ReadLagInterval: -1,
	})
	membershipEvents := consumer.NewProcessor(reader, consumer.NewMembershipHandler(tracker),
		consumer.WithLogger(log.New(log.Writer(), "[membership-events] ", log.LstdFlags|log.Lshortfile)),
	)
	workers.Add(1)
	go func() {
		defer workers.Done()
		defer reader.Close()
		if err := membershipEvents.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("membership consumer stopped: %v", err)
		}
	}()

	handler := api.NewHandler(api.Deps{
		Identity:       ids,
		Directory:      directory.New(store),
		Activities:     store,
		Tracker:        tracker,
		Submissions:    submission.NewService(store),
		Places:         resolver,
		SearchDebounce: cfg.Geocode.Debounce,
		StoreTimeout:   cfg.StoreTimeout,
	})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	authMiddleware := auth.NewMiddleware(tokens, ids.Revocations())
	requestLogger := log.New(log.Writer(), "[http] ", log.LstdFlags)

	server := httptransport.NewServer(httptransport.APIDefaults(cfg.HTTPAddress),
		httptransport.LogRequests(requestLogger, corsMiddleware.Handler(authMiddleware.Wrap(mux))))

	if err := httptransport.Run(ctx, server, 15*time.Second, requestLogger); err != nil {
		log.Printf("server error: %v", err)
	}
	cancel()

	dispatcher.Wait()
	workers.Wait()
	log.Println("tags api stopped")
}

func instanceGroupID(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return base + "-membership-" + host
}
