// Package paymentstest provides an in-memory payments.Gateway for tests.
package paymentstest

import (
	"context"
	"strings"
	"sync"

	"github.com/angelmondragon/clubpay-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/clubpay-backend/pkg/errors"
)

// Gateway is a map-backed payments.Gateway. Errors keyed by object id are
// returned instead of the object.
type Gateway struct {
	mu sync.Mutex

	Sessions       map[string]*payments.CheckoutSession
	Invoices       map[string]*payments.Invoice
	Subscriptions  map[string]*payments.Subscription
	PaymentIntents map[string]*payments.PaymentIntent
	Customers      map[string]*payments.Customer
	Charges        map[string][]payments.Charge
	Prices         map[string]*payments.Price
	Errors         map[string]error

	Calls []string
}

var _ payments.Gateway = (*Gateway)(nil)

// New returns an empty gateway.
func New() *Gateway {
	return &Gateway{
		Sessions:       map[string]*payments.CheckoutSession{},
		Invoices:       map[string]*payments.Invoice{},
		Subscriptions:  map[string]*payments.Subscription{},
		PaymentIntents: map[string]*payments.PaymentIntent{},
		Customers:      map[string]*payments.Customer{},
		Charges:        map[string][]payments.Charge{},
		Prices:         map[string]*payments.Price{},
		Errors:         map[string]error{},
	}
}

func (g *Gateway) record(call, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, call+":"+id)
	return g.Errors[id]
}

func notFound(kind string) error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, payments.ErrObjectNotFound, kind)
}

func (g *Gateway) CheckoutSession(_ context.Context, id string) (*payments.CheckoutSession, error) {
	if err := g.record("checkout_session", id); err != nil {
		return nil, err
	}
	if s, ok := g.Sessions[id]; ok {
		return s, nil
	}
	return nil, notFound("checkout session")
}

func (g *Gateway) Invoice(_ context.Context, id string) (*payments.Invoice, error) {
	if err := g.record("invoice", id); err != nil {
		return nil, err
	}
	if inv, ok := g.Invoices[id]; ok {
		return inv, nil
	}
	return nil, notFound("invoice")
}

func (g *Gateway) Subscription(_ context.Context, id string) (*payments.Subscription, error) {
	if err := g.record("subscription", id); err != nil {
		return nil, err
	}
	if sub, ok := g.Subscriptions[id]; ok {
		return sub, nil
	}
	return nil, notFound("subscription")
}

func (g *Gateway) PaymentIntent(_ context.Context, id string) (*payments.PaymentIntent, error) {
	if err := g.record("payment_intent", id); err != nil {
		return nil, err
	}
	if pi, ok := g.PaymentIntents[id]; ok {
		return pi, nil
	}
	return nil, notFound("payment intent")
}

func (g *Gateway) Customer(_ context.Context, id string) (*payments.Customer, error) {
	if err := g.record("customer", id); err != nil {
		return nil, err
	}
	if c, ok := g.Customers[id]; ok {
		return c, nil
	}
	return nil, notFound("customer")
}

func (g *Gateway) CustomersByEmail(_ context.Context, email string) ([]payments.Customer, error) {
	if err := g.record("customers_by_email", email); err != nil {
		return nil, err
	}
	var out []payments.Customer
	for _, c := range g.Customers {
		if !c.Deleted && strings.EqualFold(c.Email, email) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (g *Gateway) ListCharges(_ context.Context, customerID string, fn func(payments.Charge) error) error {
	if err := g.record("list_charges", customerID); err != nil {
		return err
	}
	for _, ch := range g.Charges[customerID] {
		if err := fn(ch); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) Price(_ context.Context, id string) (*payments.Price, error) {
	if err := g.record("price", id); err != nil {
		return nil, err
	}
	if p, ok := g.Prices[id]; ok {
		return p, nil
	}
	return nil, notFound("price")
}
