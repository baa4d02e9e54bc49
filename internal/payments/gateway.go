// Package payments is the read side of the payment processor. Handlers and the
// reconciliation job only ever see these domain shapes; money-bearing fields
// always come from a fresh fetch, never from a webhook payload.
package payments

import (
	"context"
	"time"

	"github.com/angelmondragon/clubpay-backend/internal/duration"
)

// Gateway retrieves authoritative objects from the payment processor.
type Gateway interface {
	CheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	Invoice(ctx context.Context, id string) (*Invoice, error)
	Subscription(ctx context.Context, id string) (*Subscription, error)
	PaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	Customer(ctx context.Context, id string) (*Customer, error)
	CustomersByEmail(ctx context.Context, email string) ([]Customer, error)
	// ListCharges walks the customer's complete charge history, newest first,
	// stopping at the first error returned by fn.
	ListCharges(ctx context.Context, customerID string, fn func(Charge) error) error
	Price(ctx context.Context, id string) (*Price, error)
}

type CheckoutSession struct {
	ID              string
	Paid            bool
	PaymentIntentID string
	SubscriptionID  string
	CustomerID      string
	CustomerEmail   string
	AmountTotal     int64
	Created         time.Time
	Metadata        map[string]string
	LineItems       []LineItem
}

// LineItem is one purchased price. Period is its membership contribution;
// PeriodUnresolved marks a price that arrived as a bare id, whose period needs
// a Price lookup.
type LineItem struct {
	Description      string
	PriceID          string
	AmountTotal      int64
	Period           duration.LineItem
	PeriodUnresolved bool
}

type Invoice struct {
	ID                   string
	Paid                 bool
	BillingReason        string
	CustomerID           string
	CustomerEmail        string
	SubscriptionID       string
	PaymentIntentID      string
	AmountPaid           int64
	PaidAt               time.Time
	Description          string
	Metadata             map[string]string
	SubscriptionMetadata map[string]string
}

// BillingReasonSubscriptionCreate marks the first invoice of a subscription.
const BillingReasonSubscriptionCreate = "subscription_create"

type Subscription struct {
	ID         string
	CustomerID string
	Status     string
	Metadata   map[string]string
	Items      []LineItem
}

type PaymentIntent struct {
	ID           string
	Succeeded    bool
	CustomerID   string
	ReceiptEmail string
	Amount       int64
	Description  string
	Created      time.Time
	Metadata     map[string]string
}

type Customer struct {
	ID      string
	Email   string
	Name    string
	Deleted bool
}

// Charge is one entry of a customer's charge history. PaymentIntentMetadata is
// nil for legacy charges without a payment intent.
type Charge struct {
	ID                    string
	Succeeded             bool
	PaymentIntentID       string
	Amount                int64
	Description           string
	Created               time.Time
	Metadata              map[string]string
	PaymentIntentMetadata map[string]string
}

type Price struct {
	ID          string
	ProductName string
	UnitAmount  int64
	Period      duration.LineItem
}

// Periods extracts the duration inputs of a set of line items.
func Periods(items []LineItem) []duration.LineItem {
	out := make([]duration.LineItem, 0, len(items))
	for _, item := range items {
		out = append(out, item.Period)
	}
	return out
}
