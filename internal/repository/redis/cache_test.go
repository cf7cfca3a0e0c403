package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buddiesfinder/internal/client"
	"buddiesfinder/internal/models"
	"buddiesfinder/internal/security"
)

func newTestClient(t *testing.T) (*client.RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return client.NewRedisClientFrom(rdb), mr
}

func TestSessionCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestClient(t)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	cache := NewSessionCache(rc, 30*time.Minute)
	cache.now = func() time.Time { return now.Add(10 * time.Minute) }

	account := &models.Account{ID: 7, Role: models.RoleAdmin}
	snap := security.NewAuthenticatedSnapshot(account, "tok", now)
	require.NoError(t, cache.Save(ctx, "sid", snap))

	assert.Equal(t, 20*time.Minute+expiredSessionGrace, mr.TTL(sessionDataPrefix+"sid"))

	got, err := cache.Load(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.AccountID)
	assert.Equal(t, models.RoleAdmin, got.Role)
	assert.Equal(t, "tok", got.SessionToken)
	require.NotNil(t, got.CreatedAt)
	assert.True(t, got.CreatedAt.Equal(now))

	require.NoError(t, cache.Delete(ctx, "sid"))
	_, err = cache.Load(ctx, "sid")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionCacheOutlivesAbsoluteDeadline(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestClient(t)
	now := time.Now().UTC()
	cache := NewSessionCache(rc, 30*time.Minute)

	snap := security.NewAuthenticatedSnapshot(&models.Account{ID: 7}, "tok", now)
	require.NoError(t, cache.Save(ctx, "sid", snap))

	mr.FastForward(31 * time.Minute)
	got, err := cache.Load(ctx, "sid")
	require.NoError(t, err, "snapshot survives past the deadline so it can be classified")
	assert.Equal(t, "tok", got.SessionToken)

	mr.FastForward(expiredSessionGrace)
	_, err = cache.Load(ctx, "sid")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionCachePendingSnapshot(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestClient(t)
	cache := NewSessionCache(rc, 30*time.Minute)

	require.NoError(t, cache.Save(ctx, "pending", security.NewPendingSnapshot(42)))
	assert.Equal(t, pendingSessionTTL, mr.TTL(sessionDataPrefix+"pending"))

	got, err := cache.Load(ctx, "pending")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.PendingAccountID)
	assert.False(t, got.Authenticated())
}

func TestSessionCacheDropsCorruptEntries(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestClient(t)
	cache := NewSessionCache(rc, 30*time.Minute)

	require.NoError(t, mr.Set(sessionDataPrefix+"bad", "{not json"))
	_, err := cache.Load(ctx, "bad")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.False(t, mr.Exists(sessionDataPrefix+"bad"))
}

func TestSlidingWindowRateLimit(t *testing.T) {
	ctx := context.Background()
	rc, _ := newTestClient(t)
	limiter := NewRateLimitCache(rc)
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	for i := 1; i <= 3; i++ {
		allowed, count, err := limiter.SlidingWindowRateLimit(ctx, "reset:alice", 3, 15*time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, i, count)
	}

	allowed, count, err := limiter.SlidingWindowRateLimit(ctx, "reset:alice", 3, 15*time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 3, count)

	allowed, _, err = limiter.SlidingWindowRateLimit(ctx, "reset:bob", 3, 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "keys are independent")

	now = now.Add(16 * time.Minute)
	allowed, count, err = limiter.SlidingWindowRateLimit(ctx, "reset:alice", 3, 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, count)

	require.NoError(t, limiter.Reset(ctx, "reset:alice"))
}
