//go:build integration

package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/shopcart/internal/domain/auth"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	endpoint, err := c.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())
	return rdb
}

func TestSessionStore(t *testing.T) {
	rdb := startRedis(t)
	store := NewSessionStore(rdb)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	store.now = func() time.Time { return now }

	sess := &auth.Session{ID: "s1", ShopID: "shop", UserID: "u1", ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, store.Create(ctx, sess))
	require.Error(t, store.Create(ctx, sess))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "shop", got.ShopID)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.ExpiresAt.Equal(sess.ExpiresAt))

	ttl, err := rdb.TTL(ctx, keyPrefix+"s1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Minute)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, auth.ErrSessionExpired)

	store.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = store.Get(ctx, "s1")
	require.ErrorIs(t, err, auth.ErrSessionExpired)
}
