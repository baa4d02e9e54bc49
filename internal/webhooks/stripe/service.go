package stripewebhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/clubpay-backend/internal/classifier"
	"github.com/angelmondragon/clubpay-backend/internal/ledger"
	"github.com/angelmondragon/clubpay-backend/internal/members"
	"github.com/angelmondragon/clubpay-backend/internal/memberships"
	"github.com/angelmondragon/clubpay-backend/internal/notifications"
	"github.com/angelmondragon/clubpay-backend/internal/payments"
	"github.com/angelmondragon/clubpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/clubpay-backend/pkg/errors"
	"github.com/angelmondragon/clubpay-backend/pkg/logger"
	"github.com/angelmondragon/clubpay-backend/pkg/metrics"
)

// Outcome labels what a delivery did; values match the webhook metric labels.
type Outcome string

const (
	OutcomeProcessed Outcome = metrics.OutcomeProcessed
	OutcomeIgnored   Outcome = metrics.OutcomeIgnored
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	MembershipConfirmed(ctx context.Context, c notifications.MembershipConfirmation)
	SponsorshipPaid(ctx context.Context, s notifications.SponsorshipNotice)
	ChargesPaid(ctx context.Context, r notifications.Receipt)
}

type ServiceParams struct {
	Gateway            payments.Gateway
	Ledger             ledger.Service
	Memberships        memberships.Extender
	Members            members.Repository
	Notifier           notifier
	Resolver           classifier.Resolver
	DefaultRenewalType enums.MembershipType
	TransactionRunner  txRunner
	Logger             *logger.Logger
	Clock              func() time.Time
}

// Service applies Stripe payment events to the ledger and memberships.
type Service struct {
	gateway        payments.Gateway
	ledger         ledger.Service
	memberships    memberships.Extender
	members        members.Repository
	notify         notifier
	resolver       classifier.Resolver
	defaultRenewal enums.MembershipType
	tx             txRunner
	logg           *logger.Logger
	now            func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments gateway required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger service required")
	}
	if params.Memberships == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "membership extender required")
	}
	if params.Members == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "members repository required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Notifier == nil {
		params.Notifier = notifications.NewNotifier(nil, "", params.Logger)
	}
	if !params.DefaultRenewalType.IsValid() {
		params.DefaultRenewalType = enums.MembershipTypeSeniorPlayer
	}
	if params.Clock == nil {
		params.Clock = time.Now
	}
	return &Service{
		gateway:        params.Gateway,
		ledger:         params.Ledger,
		memberships:    params.Memberships,
		members:        params.Members,
		notify:         params.Notifier,
		resolver:       params.Resolver,
		defaultRenewal: params.DefaultRenewalType,
		tx:             params.TransactionRunner,
		logg:           params.Logger,
		now:            params.Clock,
	}, nil
}

// HandleEvent dispatches a verified event. Only the object id is read from the
// payload; everything else is re-fetched.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (Outcome, error) {
	if event == nil || event.Data == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	objectID := strings.TrimSpace(event.GetObjectValue("id"))

	var handler func(context.Context, string) (Outcome, error)
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		handler = s.HandleCheckoutCompleted
	case stripe.EventTypeInvoicePaid:
		handler = s.HandleInvoicePaid
	case stripe.EventTypePaymentIntentSucceeded:
		handler = s.HandlePaymentIntentSucceeded
	case stripe.EventTypePaymentIntentProcessing:
		handler = s.HandlePaymentIntentProcessing
	default:
		return OutcomeIgnored, nil
	}
	if objectID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "stripe event object id missing")
	}
	return handler(ctx, objectID)
}

// Supported reports whether HandleEvent acts on the event type.
func Supported(eventType stripe.EventType) bool {
	switch eventType {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeInvoicePaid,
		stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentProcessing:
		return true
	}
	return false
}

func (s *Service) ignore(ctx context.Context, reason string) (Outcome, error) {
	s.info(ctx, "stripe event ignored: "+reason)
	return OutcomeIgnored, nil
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *Service) warn(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	if len(fields) > 0 {
		ctx = s.logg.WithFields(ctx, fields)
	}
	s.logg.Warn(ctx, msg)
}

func isNotFound(err error) bool {
	return errors.Is(err, payments.ErrObjectNotFound)
}
