package sessions

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestRedisStore_CreateThenGet(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, "")

	id, err := store.Create(ctx, adminPrincipal())
	require.NoError(t, err)

	got, ok, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, adminPrincipal(), got)

	assert.True(t, mr.Exists(DefaultRedisPrefix+":"+id))
	assert.Equal(t, DefaultTTL, mr.TTL(DefaultRedisPrefix+":"+id))
}

func TestRedisStore_ExpiredKeyIsAbsent(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, "test", WithTTL(time.Minute))

	id, err := store.Create(ctx, userPrincipal())
	require.NoError(t, err)

	mr.FastForward(time.Minute + time.Second)

	_, ok, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisStore_StaleBlobIsDeletedOnGet(t *testing.T) {
	_, rdb := newTestRedis(t)
	clock := newFakeClock()
	store := NewRedisStore(rdb, "test", WithClock(clock.Now), WithTTL(time.Minute))

	id, err := store.Create(ctx, userPrincipal())
	require.NoError(t, err)

	// Key still alive in Redis, but this instance's clock is past ExpiresAt
	clock.Advance(2 * time.Minute)

	_, ok, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	n, _ := store.Len(ctx)
	assert.Zero(t, n)
}

func TestRedisStore_CorruptBlobIsAbsent(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, "test")

	require.NoError(t, mr.Set("test:broken", "{not json"))

	_, ok, err := store.Get(ctx, "broken")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("test:broken"))
}

func TestRedisStore_DeleteAndLen(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, "test")

	assert.NoError(t, store.Delete(ctx, "never-existed"))

	first, err := store.Create(ctx, adminPrincipal())
	require.NoError(t, err)
	_, err = store.Create(ctx, userPrincipal())
	require.NoError(t, err)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.Delete(ctx, first))
	_, ok, _ := store.Get(ctx, first)
	assert.False(t, ok)

	n, _ = store.Len(ctx)
	assert.Equal(t, 1, n)

	removed, err := store.Sweep(ctx)
	assert.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRedisStore_BackendFailure(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, "test")
	mr.Close()

	_, err := store.Create(ctx, adminPrincipal())
	assert.Error(t, err)

	_, ok, err := store.Get(ctx, "anything")
	assert.Error(t, err)
	assert.False(t, ok)
}
