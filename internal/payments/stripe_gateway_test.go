package payments

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/clubpay-backend/internal/duration"
	pkgerrors "github.com/angelmondragon/clubpay-backend/pkg/errors"
)

func TestMapCheckoutSessionPrefersExplicitEmail(t *testing.T) {
	session := &stripe.CheckoutSession{
		ID:            "cs_1",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal:   5000,
		Created:       1767225600,
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_1"},
		Customer:      &stripe.Customer{ID: "cus_1", Email: "customer@club.org"},
		Metadata:      map[string]string{"membership": "senior_player"},
	}
	out := mapCheckoutSession(session)
	require.True(t, out.Paid)
	require.Equal(t, "pi_1", out.PaymentIntentID)
	require.Equal(t, "cus_1", out.CustomerID)
	require.Equal(t, "customer@club.org", out.CustomerEmail)
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), out.Created)

	session.CustomerEmail = " typed@club.org "
	require.Equal(t, "typed@club.org", mapCheckoutSession(session).CustomerEmail)

	session.CustomerEmail = ""
	session.Customer = nil
	session.CustomerDetails = &stripe.CheckoutSessionCustomerDetails{Email: "details@club.org"}
	require.Equal(t, "details@club.org", mapCheckoutSession(session).CustomerEmail)

	session.PaymentStatus = stripe.CheckoutSessionPaymentStatusUnpaid
	require.False(t, mapCheckoutSession(session).Paid)
}

func paidBy(pi string) *stripe.Invoice {
	return &stripe.Invoice{Payments: &stripe.InvoicePaymentList{Data: []*stripe.InvoicePayment{
		{Payment: &stripe.InvoicePaymentPayment{PaymentIntent: &stripe.PaymentIntent{ID: pi}}},
	}}}
}

func TestMapCheckoutSessionKeysSubscriptionsOnFirstInvoice(t *testing.T) {
	session := &stripe.CheckoutSession{
		ID:            "cs_sub",
		Mode:          stripe.CheckoutSessionModeSubscription,
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		Invoice:       paidBy("pi_first_invoice"),
		Subscription:  &stripe.Subscription{ID: "sub_1", LatestInvoice: paidBy("pi_latest")},
	}
	out := mapCheckoutSession(session)
	require.Equal(t, "pi_first_invoice", out.PaymentIntentID)
	require.Equal(t, "sub_1", out.SubscriptionID)

	session.Invoice = nil
	require.Equal(t, "pi_latest", mapCheckoutSession(session).PaymentIntentID)

	session.Subscription.LatestInvoice = &stripe.Invoice{ID: "in_unexpanded"}
	require.Empty(t, mapCheckoutSession(session).PaymentIntentID)
}

func TestMapLineItemPeriods(t *testing.T) {
	oneTime := mapLineItem(&stripe.LineItem{AmountTotal: 5000, Price: &stripe.Price{ID: "price_once", Type: stripe.PriceTypeOneTime}})
	require.False(t, oneTime.Period.Recurring)
	require.Equal(t, duration.Months(12), duration.ForLineItem(oneTime.Period))

	monthly := mapLineItem(&stripe.LineItem{Price: &stripe.Price{
		ID:        "price_monthly",
		Type:      stripe.PriceTypeRecurring,
		Recurring: &stripe.PriceRecurring{Interval: stripe.PriceRecurringIntervalMonth, IntervalCount: 3},
	}})
	require.Equal(t, duration.Months(3), duration.ForLineItem(monthly.Period))
	require.Equal(t, []duration.LineItem{oneTime.Period, monthly.Period}, Periods([]LineItem{oneTime, monthly}))
	require.False(t, oneTime.PeriodUnresolved)
	require.False(t, monthly.PeriodUnresolved)

	bare := mapLineItem(&stripe.LineItem{Price: &stripe.Price{ID: "price_bare"}})
	require.True(t, bare.PeriodUnresolved)
	require.Equal(t, "price_bare", bare.PriceID)
}

func TestMapInvoiceReadsParentSubscription(t *testing.T) {
	inv := &stripe.Invoice{
		ID:                "in_1",
		Status:            stripe.InvoiceStatusPaid,
		BillingReason:     stripe.InvoiceBillingReasonSubscriptionCycle,
		AmountPaid:        1200,
		Created:           1767225600,
		StatusTransitions: &stripe.InvoiceStatusTransitions{PaidAt: 1767229200},
		Customer:          &stripe.Customer{ID: "cus_1"},
		Parent: &stripe.InvoiceParent{SubscriptionDetails: &stripe.InvoiceParentSubscriptionDetails{
			Metadata:     map[string]string{"membership": "social"},
			Subscription: &stripe.Subscription{ID: "sub_1"},
		}},
		Payments: &stripe.InvoicePaymentList{Data: []*stripe.InvoicePayment{
			{Payment: &stripe.InvoicePaymentPayment{PaymentIntent: &stripe.PaymentIntent{ID: "pi_9"}}},
		}},
	}
	out := mapInvoice(inv)
	require.True(t, out.Paid)
	require.Equal(t, "subscription_cycle", out.BillingReason)
	require.Equal(t, "sub_1", out.SubscriptionID)
	require.Equal(t, "pi_9", out.PaymentIntentID)
	require.Equal(t, "social", out.SubscriptionMetadata["membership"])
	require.Equal(t, time.Unix(1767229200, 0).UTC(), out.PaidAt)
}

func TestMapChargeCarriesPaymentIntentMetadata(t *testing.T) {
	out := mapCharge(&stripe.Charge{
		ID:            "ch_1",
		Status:        stripe.ChargeStatusSucceeded,
		Amount:        2500,
		Metadata:      map[string]string{"type": "donation"},
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_1", Metadata: map[string]string{"membership": "social"}},
	})
	require.True(t, out.Succeeded)
	require.Equal(t, "pi_1", out.PaymentIntentID)
	require.Equal(t, "social", out.PaymentIntentMetadata["membership"])

	legacy := mapCharge(&stripe.Charge{ID: "ch_2", Status: stripe.ChargeStatusFailed})
	require.False(t, legacy.Succeeded)
	require.Empty(t, legacy.PaymentIntentID)
	require.Nil(t, legacy.PaymentIntentMetadata)
}

func TestClassifyErrors(t *testing.T) {
	missing := classify(&stripe.Error{HTTPStatusCode: http.StatusNotFound, Code: stripe.ErrorCodeResourceMissing}, "retrieve invoice")
	require.ErrorIs(t, missing, ErrObjectNotFound)
	require.True(t, pkgerrors.HasCode(missing, pkgerrors.CodeNotFound))

	timeout := classify(fmt.Errorf("get: %w", context.DeadlineExceeded), "retrieve invoice")
	require.True(t, pkgerrors.HasCode(timeout, pkgerrors.CodeDependency))
	require.True(t, pkgerrors.IsRetryable(timeout))

	require.NoError(t, classify(nil, "noop"))
}
