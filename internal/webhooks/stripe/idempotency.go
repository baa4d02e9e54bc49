package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/clubpay-backend/pkg/redis"
)

// DefaultInFlightLease bounds how long a delivery that never finishes keeps
// Stripe's retries out.
const DefaultInFlightLease = 2 * time.Minute

const claimToken = "1"

type claimStore interface {
	Claim(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Keep(ctx context.Context, key, token string, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

// IdempotencyGuard remembers Stripe event ids. A claim starts as a short
// in-flight lease and only holds for ttl once Complete is called. Ledger dedup
// stays authoritative; the guard short-circuits redeliveries before any
// processor fetch.
type IdempotencyGuard struct {
	store claimStore
	ttl   time.Duration
	lease time.Duration
	scope string
}

func NewIdempotencyGuard(store claimStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("claim store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	case scope == "":
		return nil, errors.New("scope is required")
	}
	lease := DefaultInFlightLease
	if ttl > 0 && ttl < lease {
		lease = ttl
	}
	return &IdempotencyGuard{store: store, ttl: ttl, lease: lease, scope: scope}, nil
}

// CheckAndMark takes the in-flight lease on eventID and reports whether an
// earlier delivery already holds it.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	claimed, err := g.store.Claim(ctx, g.key(eventID), claimToken, g.lease)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", eventID, err)
	}
	return !claimed, nil
}

// Complete marks eventID processed for the full ttl.
func (g *IdempotencyGuard) Complete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	if err := g.store.Keep(ctx, g.key(eventID), claimToken, g.ttl); err != nil {
		return fmt.Errorf("complete %s: %w", eventID, err)
	}
	return nil
}

// Release drops the claim so Stripe's retry is processed again.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Forget(ctx, g.key(eventID))
}

func (g *IdempotencyGuard) key(eventID string) string {
	return redis.IdempotencyKey(g.scope, eventID)
}
