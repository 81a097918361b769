package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", "")
	t.Setenv("GEOCODE_REVERSE_KEY", "")

	cfg := Load()

	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 400*time.Millisecond, cfg.Geocode.Debounce)
	require.Equal(t, "in", cfg.Geocode.CountryCodes)
	require.Empty(t, cfg.Geocode.ReverseKey)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	t.Setenv("SEARCH_DEBOUNCE", "250ms")
	t.Setenv("OUTBOX_BATCH_SIZE", "7")
	t.Setenv("GEOCODE_RATE_PER_SECOND", "2.5")
	t.Setenv("DLQ_MAX_RETRIES", "not-a-number")

	cfg := Load()

	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 250*time.Millisecond, cfg.Geocode.Debounce)
	require.Equal(t, 7, cfg.OutboxBatchSize)
	require.InDelta(t, 2.5, cfg.Geocode.RatePerSecond, 0.0001)
	require.Equal(t, 5, cfg.DLQMaxRetries)
}
