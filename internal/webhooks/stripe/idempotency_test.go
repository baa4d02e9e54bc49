package stripewebhook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
	ttls map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Claim(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = token
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) Keep(_ context.Context, key, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = token
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	delete(m.ttls, key)
	return nil
}

func TestIdempotencyGuardClaimsOnce(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe_webhook")
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	require.True(t, seen)

	require.Contains(t, store.keys, "cp:idempotency:stripe_webhook:evt_1")

	require.NoError(t, guard.Release(ctx, "evt_1"))
	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	require.False(t, seen)

	_, err = guard.CheckAndMark(ctx, "")
	require.Error(t, err)
}

func TestIdempotencyGuardHoldsFullTTLOnlyAfterComplete(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewIdempotencyGuard(store, 720*time.Hour, "stripe_webhook")
	require.NoError(t, err)
	ctx := context.Background()
	key := "cp:idempotency:stripe_webhook:evt_1"

	_, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	require.Equal(t, DefaultInFlightLease, store.ttls[key])

	require.NoError(t, guard.Complete(ctx, "evt_1"))
	require.Equal(t, 720*time.Hour, store.ttls[key])

	short, err := NewIdempotencyGuard(newMemoryStore(), time.Second, "x")
	require.NoError(t, err)
	require.Equal(t, time.Second, short.lease, "the lease never outlives the ttl")
}

func TestNewIdempotencyGuardValidates(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Hour, "x")
	require.Error(t, err)
	_, err = NewIdempotencyGuard(newMemoryStore(), -time.Second, "x")
	require.Error(t, err)
	_, err = NewIdempotencyGuard(newMemoryStore(), time.Hour, "")
	require.Error(t, err)
}
