package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/railzwaylabs/renewal/internal/renewal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client), s
}

func TestRedisLockerExclusive(t *testing.T) {
	l, s := newRedisLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "sub-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, s.Exists(keyPrefix+"sub-1"))

	_, err = l.Acquire(ctx, "sub-1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrRenewalInProgress)

	other, err := l.Acquire(ctx, "sub-2", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	assert.False(t, s.Exists(keyPrefix+"sub-1"))

	again, err := l.Acquire(ctx, "sub-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedisLockerExpiredLockIsNotStolenOnRelease(t *testing.T) {
	l, s := newRedisLocker(t)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "sub-1", time.Second)
	require.NoError(t, err)

	s.FastForward(2 * time.Second)

	fresh, err := l.Acquire(ctx, "sub-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	assert.True(t, s.Exists(keyPrefix+"sub-1"))

	require.NoError(t, fresh(ctx))
	assert.False(t, s.Exists(keyPrefix+"sub-1"))
}

func TestLocalLocker(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "sub-1", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "sub-1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrRenewalInProgress)

	require.NoError(t, release(ctx))
	release, err = l.Acquire(ctx, "sub-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestLocalLockerExpires(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	_, err := l.Acquire(ctx, "sub-1", time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	release, err := l.Acquire(ctx, "sub-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestProvide(t *testing.T) {
	_, isLocal := Provide(nil).(*LocalLocker)
	assert.True(t, isLocal)
}

func TestLocalLockerStaleReleaseKeepsNewLease(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "sub-1", time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	fresh, err := l.Acquire(ctx, "sub-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, stale(ctx))

	_, err = l.Acquire(ctx, "sub-1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrRenewalInProgress)
	require.NoError(t, fresh(ctx))
}
