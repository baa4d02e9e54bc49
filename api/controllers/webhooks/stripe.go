package webhooks

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/clubpay-backend/api/responses"
	stripewebhook "github.com/angelmondragon/clubpay-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/clubpay-backend/pkg/errors"
	"github.com/angelmondragon/clubpay-backend/pkg/logger"
	"github.com/angelmondragon/clubpay-backend/pkg/metrics"
)

const maxPayloadBytes = 64 << 10

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (stripewebhook.Outcome, error)
}

type stripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type eventVerifier interface {
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

type outcomeObserver interface {
	Observe(eventType, outcome string, elapsed time.Duration)
}

// StripeWebhookParams wires the Stripe webhook endpoint. Metrics may be nil.
type StripeWebhookParams struct {
	Service  StripeWebhookService
	Verifier eventVerifier
	Guard    stripeWebhookGuard
	Metrics  outcomeObserver
	Logger   *logger.Logger
}

// StripeWebhook verifies a Stripe delivery and hands it to the event
// handlers. Any non-2xx response makes Stripe redeliver, so the event id is
// released unless handling returns cleanly, panics included.
func StripeWebhook(params StripeWebhookParams) http.HandlerFunc {
	svc, verifier, guard, logg := params.Service, params.Verifier, params.Guard, params.Logger
	observe := func(eventType stripe.EventType, outcome string, started time.Time) {
		if params.Metrics != nil {
			params.Metrics.Observe(string(eventType), outcome, time.Since(started))
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		started := time.Now()

		if svc == nil || verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := verifier.ConstructEvent(payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature"))
			return
		}
		if logg != nil {
			ctx = logg.WithStripeEvent(ctx, event.ID, string(event.Type))
		}

		claimed := false
		if guard != nil && stripewebhook.Supported(event.Type) {
			seen, err := guard.CheckAndMark(ctx, event.ID)
			switch {
			case err != nil:
				// ledger dedup still holds without the guard
				if logg != nil {
					logg.Error(ctx, "stripe webhook idempotency check failed", err)
				}
			case seen:
				observe(event.Type, metrics.OutcomeDuplicate, started)
				if logg != nil {
					logg.Info(ctx, "stripe event already processed")
				}
				responses.WriteSuccess(w, map[string]string{"outcome": metrics.OutcomeDuplicate})
				return
			default:
				claimed = true
			}
		}

		handled := false
		if claimed {
			defer func() {
				settle(context.WithoutCancel(ctx), guard, event.ID, handled, logg)
			}()
		}

		outcome, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			observe(event.Type, metrics.OutcomeFailed, started)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		handled = true
		observe(event.Type, string(outcome), started)
		if logg != nil {
			logg.Info(logg.WithField(ctx, "outcome", string(outcome)), "stripe event handled")
		}
		responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
	}
}

// settle turns the in-flight claim into a processed marker, or drops it so
// Stripe's retry runs again.
func settle(ctx context.Context, guard stripeWebhookGuard, eventID string, handled bool, logg *logger.Logger) {
	if handled {
		if err := guard.Complete(ctx, eventID); err != nil && logg != nil {
			logg.Error(ctx, "complete stripe event claim", err)
		}
		return
	}
	if err := guard.Release(ctx, eventID); err != nil && logg != nil {
		logg.Error(ctx, "release stripe event claim", err)
	}
}
