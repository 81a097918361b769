//go:build integration

package identity

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisDenylistSharesRevocations(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })

	first := NewRedisDenylist(client)
	second := NewRedisDenylist(client)

	revoked, err := second.IsRevoked(ctx, "jti-42")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, first.Revoke(ctx, "jti-42", time.Minute))

	revoked, err = second.IsRevoked(ctx, "jti-42")
	require.NoError(t, err)
	require.True(t, revoked)

	ttl, err := client.TTL(ctx, denylistPrefix+"jti-42").Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
}
