package stripewebhook

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/clubpay-backend/internal/classifier"
	"github.com/angelmondragon/clubpay-backend/internal/duration"
	"github.com/angelmondragon/clubpay-backend/internal/notifications"
	"github.com/angelmondragon/clubpay-backend/pkg/db/models"
)

// juniorTerm is the length of a junior membership bought through self-service
// charges.
var juniorTerm = duration.Months(12)

// HandlePaymentIntentSucceeded settles self-service charges that were
// created against the payment intent and starts junior memberships for the
// dependents those charges pay for.
func (s *Service) HandlePaymentIntentSucceeded(ctx context.Context, paymentIntentID string) (Outcome, error) {
	pi, err := s.gateway.PaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return "", err
	}
	if !pi.Succeeded {
		return s.ignore(ctx, "payment intent not succeeded")
	}
	if _, ok := classifier.Classify(pi.Metadata).(classifier.SelfServiceCharges); !ok {
		return s.ignore(ctx, "payment intent is not a self-service payment")
	}

	member, err := s.payer(ctx, pi.CustomerID, pi.ReceiptEmail)
	if err != nil {
		return "", err
	}
	if member == nil {
		return OutcomeIgnored, nil
	}
	paidAt := s.now().UTC()

	var (
		paid         []models.Charge
		dependentIDs []uuid.UUID
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ledgerTx := s.ledger.WithTx(tx)
		charges, err := ledgerTx.ListUnpaidByPaymentIntent(ctx, member.ID, pi.ID)
		if err != nil {
			return err
		}
		for _, charge := range charges {
			changed, err := ledgerTx.MarkPaid(ctx, charge.ID, paidAt)
			if err != nil {
				return err
			}
			if changed {
				paid = append(paid, charge)
			}
		}
		if len(paid) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(paid))
		for _, charge := range paid {
			ids = append(ids, charge.ID)
		}
		dependentIDs, err = ledgerTx.LinkedDependents(ctx, ids)
		if err != nil {
			return err
		}
		extender := s.memberships.WithTx(tx)
		for _, dependentID := range dependentIDs {
			if _, err := extender.ExtendDependent(ctx, dependentID, juniorTerm, paidAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(paid) == 0 {
		return s.ignore(ctx, "no unpaid self-service charges for payment intent")
	}

	receipt := notifications.Receipt{Email: member.Email, Juniors: s.dependentNames(ctx, member.ID, dependentIDs)}
	for _, charge := range paid {
		receipt.Lines = append(receipt.Lines, notifications.ReceiptLine{Description: charge.Description, AmountPence: charge.AmountPence})
	}
	s.notify.ChargesPaid(ctx, receipt)
	return OutcomeProcessed, nil
}

// HandlePaymentIntentProcessing moves self-service charges to pending while
// an asynchronous payment method settles.
func (s *Service) HandlePaymentIntentProcessing(ctx context.Context, paymentIntentID string) (Outcome, error) {
	pi, err := s.gateway.PaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return "", err
	}
	if _, ok := classifier.Classify(pi.Metadata).(classifier.SelfServiceCharges); !ok {
		return s.ignore(ctx, "payment intent is not a self-service payment")
	}
	member, err := s.payer(ctx, pi.CustomerID, pi.ReceiptEmail)
	if err != nil {
		return "", err
	}
	if member == nil {
		return OutcomeIgnored, nil
	}

	at := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ledgerTx := s.ledger.WithTx(tx)
		charges, err := ledgerTx.ListUnpaidByPaymentIntent(ctx, member.ID, pi.ID)
		if err != nil {
			return err
		}
		for _, charge := range charges {
			if _, err := ledgerTx.MarkPaymentConfirmed(ctx, charge.ID, at); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

// payer resolves the member behind a payment intent. A payer with no member
// record is skipped silently.
func (s *Service) payer(ctx context.Context, customerID, receiptEmail string) (*models.Member, error) {
	email, err := s.customerEmail(ctx, customerID, receiptEmail)
	if err != nil {
		return nil, err
	}
	member, err := s.members.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if member == nil {
		s.info(ctx, "self-service payment from non-member skipped")
	}
	return member, nil
}

func (s *Service) dependentNames(ctx context.Context, memberID uuid.UUID, ids []uuid.UUID) []string {
	if len(ids) == 0 {
		return nil
	}
	wanted := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	deps, err := s.members.ListDependents(ctx, memberID)
	if err != nil {
		s.warn(ctx, "list dependents for receipt: "+err.Error(), nil)
		return nil
	}
	var names []string
	for _, dep := range deps {
		if wanted[dep.ID] {
			names = append(names, strings.TrimSpace(dep.Name))
		}
	}
	return names
}
