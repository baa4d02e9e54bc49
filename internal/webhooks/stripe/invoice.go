package stripewebhook

import (
	"context"

	"github.com/angelmondragon/clubpay-backend/internal/classifier"
	"github.com/angelmondragon/clubpay-backend/internal/duration"
	"github.com/angelmondragon/clubpay-backend/internal/payments"
)

// HandleInvoicePaid applies subscription renewals. The first invoice of a
// subscription is skipped because its checkout session already extended the
// membership.
func (s *Service) HandleInvoicePaid(ctx context.Context, invoiceID string) (Outcome, error) {
	inv, err := s.gateway.Invoice(ctx, invoiceID)
	if err != nil {
		return "", err
	}
	if !inv.Paid {
		return s.ignore(ctx, "invoice not paid")
	}
	if inv.BillingReason == payments.BillingReasonSubscriptionCreate {
		return s.ignore(ctx, "first subscription invoice is owned by checkout")
	}

	var sub *payments.Subscription
	if inv.SubscriptionID != "" {
		sub, err = s.gateway.Subscription(ctx, inv.SubscriptionID)
		if err != nil {
			return "", err
		}
	}
	subscriptionMetadata := inv.SubscriptionMetadata
	if sub != nil && len(sub.Metadata) > 0 {
		subscriptionMetadata = sub.Metadata
	}

	resolution := s.resolver.Resolve(inv.Metadata, subscriptionMetadata)
	if resolution.Conflict {
		s.warn(ctx, "invoice and subscription metadata disagree", map[string]any{
			"invoice_id":      inv.ID,
			"subscription_id": inv.SubscriptionID,
			"precedence":      string(s.resolver.Precedence()),
			"resolved_from":   string(resolution.Source),
		})
	}

	intent := resolution.Intent
	if _, unclassified := intent.(classifier.Unclassified); unclassified && sub != nil {
		// renewal invoices routinely carry no metadata at all
		intent = classifier.Membership{Renewal: true}
	}

	switch intent := intent.(type) {
	case classifier.Membership:
		email, err := s.customerEmail(ctx, inv.CustomerID, inv.CustomerEmail)
		if err != nil {
			return "", err
		}
		d, err := s.invoiceDuration(ctx, sub)
		if err != nil {
			return "", err
		}
		return s.applyMembership(ctx, intent, d, invoicePayment(inv, email))
	case classifier.SponsorGame:
		email, err := s.optionalEmail(ctx, inv.CustomerID, inv.CustomerEmail)
		if err != nil {
			return "", err
		}
		return s.applySponsorship(ctx, intent, invoicePayment(inv, email))
	case classifier.Unclassified:
		return s.ignore(ctx, "invoice unclassified: "+intent.Reason)
	default:
		return s.ignore(ctx, "invoice intent "+string(intent.Kind())+" has no invoice handler")
	}
}

// invoiceDuration is one billing period of the subscription. A standalone
// invoice counts as a one-off purchase.
func (s *Service) invoiceDuration(ctx context.Context, sub *payments.Subscription) (duration.Duration, error) {
	if sub == nil || len(sub.Items) == 0 {
		return duration.Sum(duration.LineItem{}), nil
	}
	periods, err := s.periods(ctx, sub.Items)
	if err != nil {
		return duration.Duration{}, err
	}
	return duration.Sum(periods...), nil
}

func invoicePayment(inv *payments.Invoice, email string) payment {
	externalID := inv.PaymentIntentID
	if externalID == "" {
		externalID = inv.ID
	}
	return payment{
		Email:       email,
		AmountPence: inv.AmountPaid,
		PaidAt:      inv.PaidAt.UTC(),
		ExternalID:  externalID,
	}
}
