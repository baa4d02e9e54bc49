package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRedis struct {
	values map[string]string
}

func (m *memoryRedis) Claim(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = token
	return true, nil
}

func (m *memoryRedis) ForgetIfOwner(_ context.Context, key, token string) (bool, error) {
	if m.values[key] != token {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockIsExclusiveAcrossHolders(t *testing.T) {
	store := &memoryRedis{values: map[string]string{}}
	ctx := context.Background()
	first, err := NewRedisLock(store, "cp:lock:reconcile", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "cp:lock:reconcile", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = first.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok, "a holder cannot re-enter")

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, second.Release(ctx), "releasing an unheld lock is a no-op")
	require.Contains(t, store.values, "cp:lock:reconcile")

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockLeavesTakenOverLeaseAlone(t *testing.T) {
	store := &memoryRedis{values: map[string]string{}}
	ctx := context.Background()
	lock, err := NewRedisLock(store, "k", time.Minute)
	require.NoError(t, err)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// lease expired and another process took it
	store.values["k"] = "someone-else"
	require.NoError(t, lock.Release(ctx))
	require.Equal(t, "someone-else", store.values["k"])
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", time.Minute)
	require.Error(t, err)
	_, err = NewRedisLock(&memoryRedis{}, "", time.Minute)
	require.Error(t, err)
	lock, err := NewRedisLock(&memoryRedis{}, "k", 0)
	require.NoError(t, err)
	require.Equal(t, defaultLockTTL, lock.ttl)
}
