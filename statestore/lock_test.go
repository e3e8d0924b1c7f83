package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/videomoments/pipeline/kv"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newLockTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(kv.NewFromRedisClient(rdb)), mr
}

func TestAcquireLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	s, _ := newLockTestStore(t)

	ok, err := s.AcquireLock(ctx, "video1", "req1", "worker-a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.AcquireLock(ctx, "video1", "req2", "worker-b")
	require.NoError(t, err)
	require.False(t, ok)

	info, err := s.IsLocked(ctx, "video1")
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, "req1", info.RequestID)
	require.Equal(t, "worker-a", info.OwnerID)
}

func TestReleaseLockFreesItForAnotherOwner(t *testing.T) {
	ctx := context.Background()
	s, _ := newLockTestStore(t)

	_, err := s.AcquireLock(ctx, "video1", "req1", "worker-a")
	require.NoError(t, err)

	require.NoError(t, s.ReleaseLock(ctx, "video1"))

	info, err := s.IsLocked(ctx, "video1")
	require.NoError(t, err)
	require.Nil(t, info)

	ok, err := s.AcquireLock(ctx, "video1", "req2", "worker-b")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRefreshLockExtendsTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newLockTestStore(t)

	_, err := s.AcquireLock(ctx, "video1", "req1", "worker-a")
	require.NoError(t, err)

	mr.FastForward(29 * time.Minute)
	ok, err := s.RefreshLock(ctx, "video1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(29 * time.Minute)
	info, err := s.IsLocked(ctx, "video1")
	require.NoError(t, err)
	require.NotNil(t, info, "refreshed lock must still be held after the original TTL would have expired")
}

func TestCancellationFlagLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newLockTestStore(t)

	cancelled, err := s.CheckCancellation(ctx, "video1")
	require.NoError(t, err)
	require.False(t, cancelled)

	require.NoError(t, s.SetCancellation(ctx, "video1"))

	cancelled, err = s.CheckCancellation(ctx, "video1")
	require.NoError(t, err)
	require.True(t, cancelled)

	require.NoError(t, s.ClearCancellation(ctx, "video1"))

	cancelled, err = s.CheckCancellation(ctx, "video1")
	require.NoError(t, err)
	require.False(t, cancelled)
}
