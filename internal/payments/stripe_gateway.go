package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/clubpay-backend/internal/duration"
	pkgstripe "github.com/angelmondragon/clubpay-backend/pkg/stripe"
)

const listPageSize = 100

// StripeGateway implements Gateway over the injected Stripe client.
type StripeGateway struct {
	api     *stripe.Client
	timeout time.Duration
}

// NewStripeGateway wraps the process-wide Stripe client.
func NewStripeGateway(client *pkgstripe.Client) (*StripeGateway, error) {
	if client == nil || client.API() == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &StripeGateway{api: client.API(), timeout: client.Timeout()}, nil
}

func (g *StripeGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

func (g *StripeGateway) CheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionRetrieveParams{}
	params.AddExpand("customer")
	params.AddExpand("payment_intent")
	// subscription checkouts are paid through their first invoice
	params.AddExpand("invoice.payments")
	params.AddExpand("subscription.latest_invoice.payments")
	session, err := g.api.V1CheckoutSessions.Retrieve(ctx, id, params)
	if err != nil {
		return nil, classify(err, "retrieve checkout session")
	}

	out := mapCheckoutSession(session)
	lineParams := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(id)}
	lineParams.Limit = stripe.Int64(listPageSize)
	lineParams.AddExpand("data.price")
	for item, err := range g.api.V1CheckoutSessions.ListLineItems(ctx, lineParams) {
		if err != nil {
			return nil, classify(err, "list checkout line items")
		}
		out.LineItems = append(out.LineItems, mapLineItem(item))
	}
	return out, nil
}

func (g *StripeGateway) Invoice(ctx context.Context, id string) (*Invoice, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.InvoiceRetrieveParams{}
	params.AddExpand("customer")
	params.AddExpand("payments")
	inv, err := g.api.V1Invoices.Retrieve(ctx, id, params)
	if err != nil {
		return nil, classify(err, "retrieve invoice")
	}
	return mapInvoice(inv), nil
}

func (g *StripeGateway) Subscription(ctx context.Context, id string) (*Subscription, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.SubscriptionRetrieveParams{}
	params.AddExpand("items.data.price")
	sub, err := g.api.V1Subscriptions.Retrieve(ctx, id, params)
	if err != nil {
		return nil, classify(err, "retrieve subscription")
	}
	return mapSubscription(sub), nil
}

func (g *StripeGateway) PaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	pi, err := g.api.V1PaymentIntents.Retrieve(ctx, id, &stripe.PaymentIntentRetrieveParams{})
	if err != nil {
		return nil, classify(err, "retrieve payment intent")
	}
	return mapPaymentIntent(pi), nil
}

func (g *StripeGateway) Customer(ctx context.Context, id string) (*Customer, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	cust, err := g.api.V1Customers.Retrieve(ctx, id, &stripe.CustomerRetrieveParams{})
	if err != nil {
		return nil, classify(err, "retrieve customer")
	}
	return mapCustomer(cust), nil
}

func (g *StripeGateway) CustomersByEmail(ctx context.Context, email string) ([]Customer, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Limit = stripe.Int64(listPageSize)
	var out []Customer
	for cust, err := range g.api.V1Customers.List(ctx, params) {
		if err != nil {
			return nil, classify(err, "list customers by email")
		}
		if mapped := mapCustomer(cust); !mapped.Deleted {
			out = append(out, *mapped)
		}
	}
	return out, nil
}

// ListCharges pages through the history without an overall deadline; each
// HTTP round trip is bounded by the client's backend timeout.
func (g *StripeGateway) ListCharges(ctx context.Context, customerID string, fn func(Charge) error) error {
	params := &stripe.ChargeListParams{Customer: stripe.String(customerID)}
	params.Limit = stripe.Int64(listPageSize)
	params.AddExpand("data.payment_intent")
	for ch, err := range g.api.V1Charges.List(ctx, params) {
		if err != nil {
			return classify(err, "list charges")
		}
		if err := fn(mapCharge(ch)); err != nil {
			return err
		}
	}
	return nil
}

func (g *StripeGateway) Price(ctx context.Context, id string) (*Price, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.PriceRetrieveParams{}
	params.AddExpand("product")
	price, err := g.api.V1Prices.Retrieve(ctx, id, params)
	if err != nil {
		return nil, classify(err, "retrieve price")
	}
	return mapPrice(price), nil
}

func mapCheckoutSession(session *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            session.ID,
		Paid:          session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal:   session.AmountTotal,
		Created:       unix(session.Created),
		Metadata:      session.Metadata,
		CustomerEmail: strings.TrimSpace(session.CustomerEmail),
	}
	if session.PaymentIntent != nil {
		out.PaymentIntentID = session.PaymentIntent.ID
	}
	if out.PaymentIntentID == "" {
		out.PaymentIntentID = invoicePaymentIntent(session.Invoice)
	}
	if session.Subscription != nil {
		out.SubscriptionID = session.Subscription.ID
		if out.PaymentIntentID == "" {
			out.PaymentIntentID = invoicePaymentIntent(session.Subscription.LatestInvoice)
		}
	}
	if session.Customer != nil {
		out.CustomerID = session.Customer.ID
		if out.CustomerEmail == "" && !session.Customer.Deleted {
			out.CustomerEmail = strings.TrimSpace(session.Customer.Email)
		}
	}
	if out.CustomerEmail == "" && session.CustomerDetails != nil {
		out.CustomerEmail = strings.TrimSpace(session.CustomerDetails.Email)
	}
	return out
}

func mapLineItem(item *stripe.LineItem) LineItem {
	out := LineItem{Description: item.Description, AmountTotal: item.AmountTotal}
	if item.Price != nil {
		out.PriceID = item.Price.ID
		out.Period = periodOf(item.Price)
		out.PeriodUnresolved = unexpanded(item.Price)
	}
	return out
}

// unexpanded reports a price that decoded from a bare id; expanded prices
// always carry a type.
func unexpanded(price *stripe.Price) bool {
	return price.ID != "" && price.Type == ""
}

func periodOf(price *stripe.Price) duration.LineItem {
	if price == nil || price.Recurring == nil {
		return duration.LineItem{}
	}
	return duration.LineItem{
		Recurring:     true,
		Interval:      duration.Interval(price.Recurring.Interval),
		IntervalCount: price.Recurring.IntervalCount,
	}
}

func mapInvoice(inv *stripe.Invoice) *Invoice {
	out := &Invoice{
		ID:            inv.ID,
		Paid:          inv.Status == stripe.InvoiceStatusPaid,
		BillingReason: string(inv.BillingReason),
		CustomerEmail: strings.TrimSpace(inv.CustomerEmail),
		AmountPaid:    inv.AmountPaid,
		Description:   inv.Description,
		Metadata:      inv.Metadata,
		PaidAt:        unix(inv.Created),
	}
	if inv.StatusTransitions != nil && inv.StatusTransitions.PaidAt > 0 {
		out.PaidAt = unix(inv.StatusTransitions.PaidAt)
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		details := inv.Parent.SubscriptionDetails
		out.SubscriptionMetadata = details.Metadata
		if details.Subscription != nil {
			out.SubscriptionID = details.Subscription.ID
		}
	}
	out.PaymentIntentID = invoicePaymentIntent(inv)
	return out
}

// invoicePaymentIntent is the first payment intent that paid the invoice.
func invoicePaymentIntent(inv *stripe.Invoice) string {
	if inv == nil || inv.Payments == nil {
		return ""
	}
	for _, payment := range inv.Payments.Data {
		if payment == nil || payment.Payment == nil || payment.Payment.PaymentIntent == nil {
			continue
		}
		if id := payment.Payment.PaymentIntent.ID; id != "" {
			return id
		}
	}
	return ""
}

func mapSubscription(sub *stripe.Subscription) *Subscription {
	out := &Subscription{ID: sub.ID, Status: string(sub.Status), Metadata: sub.Metadata}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item == nil || item.Price == nil {
				continue
			}
			out.Items = append(out.Items, LineItem{
				Description:      item.Price.Nickname,
				PriceID:          item.Price.ID,
				AmountTotal:      item.Price.UnitAmount * max(item.Quantity, 1),
				Period:           periodOf(item.Price),
				PeriodUnresolved: unexpanded(item.Price),
			})
		}
	}
	return out
}

func mapPaymentIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	out := &PaymentIntent{
		ID:           pi.ID,
		Succeeded:    pi.Status == stripe.PaymentIntentStatusSucceeded,
		ReceiptEmail: strings.TrimSpace(pi.ReceiptEmail),
		Amount:       pi.Amount,
		Description:  pi.Description,
		Created:      unix(pi.Created),
		Metadata:     pi.Metadata,
	}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	return out
}

func mapCustomer(cust *stripe.Customer) *Customer {
	return &Customer{
		ID:      cust.ID,
		Email:   strings.TrimSpace(cust.Email),
		Name:    cust.Name,
		Deleted: cust.Deleted,
	}
}

func mapCharge(ch *stripe.Charge) Charge {
	out := Charge{
		ID:          ch.ID,
		Succeeded:   ch.Status == stripe.ChargeStatusSucceeded,
		Amount:      ch.Amount,
		Description: ch.Description,
		Created:     unix(ch.Created),
		Metadata:    ch.Metadata,
	}
	if ch.PaymentIntent != nil {
		out.PaymentIntentID = ch.PaymentIntent.ID
		out.PaymentIntentMetadata = ch.PaymentIntent.Metadata
	}
	return out
}

func mapPrice(price *stripe.Price) *Price {
	out := &Price{ID: price.ID, UnitAmount: price.UnitAmount, Period: periodOf(price)}
	if price.Product != nil {
		out.ProductName = price.Product.Name
	}
	return out
}

func unix(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
