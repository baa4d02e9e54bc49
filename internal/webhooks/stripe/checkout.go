package stripewebhook

import (
	"context"
	"time"

	"github.com/angelmondragon/clubpay-backend/internal/classifier"
	"github.com/angelmondragon/clubpay-backend/internal/duration"
	"github.com/angelmondragon/clubpay-backend/internal/payments"
)

// HandleCheckoutCompleted applies a completed checkout session. Sessions have
// no settlement timestamp, so the handling time is used as paidAt.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, sessionID string) (Outcome, error) {
	session, err := s.gateway.CheckoutSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if !session.Paid {
		return s.ignore(ctx, "checkout session not paid")
	}

	switch intent := classifier.Classify(session.Metadata).(type) {
	case classifier.SponsorGame:
		email, err := s.optionalEmail(ctx, session.CustomerID, session.CustomerEmail)
		if err != nil {
			return "", err
		}
		return s.applySponsorship(ctx, intent, checkoutPayment(session, email, s.now()))
	case classifier.Membership:
		email, err := s.customerEmail(ctx, session.CustomerID, session.CustomerEmail)
		if err != nil {
			return "", err
		}
		periods, err := s.periods(ctx, session.LineItems)
		if err != nil {
			return "", err
		}
		return s.applyMembership(ctx, intent, duration.Sum(periods...), checkoutPayment(session, email, s.now()))
	case classifier.Unclassified:
		return s.ignore(ctx, "checkout session unclassified: "+intent.Reason)
	default:
		return s.ignore(ctx, "checkout session intent "+string(intent.Kind())+" has no checkout handler")
	}
}

// periods reads each line item's membership contribution, fetching prices
// the listing only referenced by id.
func (s *Service) periods(ctx context.Context, items []payments.LineItem) ([]duration.LineItem, error) {
	out := payments.Periods(items)
	for i, item := range items {
		if !item.PeriodUnresolved {
			continue
		}
		price, err := s.gateway.Price(ctx, item.PriceID)
		if err != nil {
			return nil, err
		}
		out[i] = price.Period
	}
	return out, nil
}

// checkoutPayment keys the charge on the payment intent, which for
// subscription checkouts is the first invoice's. The session id is the last
// resort.
func checkoutPayment(session *payments.CheckoutSession, email string, paidAt time.Time) payment {
	externalID := session.PaymentIntentID
	if externalID == "" {
		externalID = session.ID
	}
	return payment{
		Email:       email,
		AmountPence: session.AmountTotal,
		PaidAt:      paidAt.UTC(),
		ExternalID:  externalID,
	}
}
