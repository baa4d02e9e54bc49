package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/clubpay-backend/internal/classifier"
	"github.com/angelmondragon/clubpay-backend/internal/duration"
	"github.com/angelmondragon/clubpay-backend/internal/ledger"
	"github.com/angelmondragon/clubpay-backend/internal/memberships"
	"github.com/angelmondragon/clubpay-backend/internal/notifications"
	"github.com/angelmondragon/clubpay-backend/pkg/enums"
)

// payment is the money-bearing part of a re-fetched Stripe object.
type payment struct {
	Email       string
	AmountPence int64
	PaidAt      time.Time
	ExternalID  string
}

// applyMembership writes the membership charge and the extension in one
// transaction. The payment extends the membership only when this call created
// its charge or adopted the row reconciliation imported for it; any other
// duplicate means the extension already happened.
func (s *Service) applyMembership(ctx context.Context, intent classifier.Membership, d duration.Duration, p payment) (Outcome, error) {
	membershipType := intent.Type
	if membershipType == "" {
		membershipType = s.defaultRenewal
	}
	if d.IsZero() {
		s.warn(ctx, "membership payment carries no duration", map[string]any{"external_id": p.ExternalID})
	}

	var (
		extended memberships.ExtendResult
		applied  bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, claimed, err := s.recordCharge(ctx, s.ledger.WithTx(tx), ledger.CreateChargeInput{
			MemberEmail: p.Email,
			Description: fmt.Sprintf("Membership (%s)", membershipType),
			AmountPence: p.AmountPence,
			ChargeDate:  p.PaidAt,
			Type:        enums.ChargeTypeMembership,
			Source:      enums.ChargeSourceWebhook,
			ExternalID:  p.ExternalID,
			PaidAt:      &p.PaidAt,
		})
		if err != nil {
			return err
		}
		if !claimed && res.Reason != ledger.ReasonNoMember {
			return nil
		}
		// an unknown payer fails Extend with ErrNoMemberWithEmail
		extended, err = s.memberships.WithTx(tx).Extend(ctx, p.Email, membershipType, d, p.PaidAt)
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return "", err
	}
	if !applied {
		s.info(ctx, "membership payment already applied")
		return OutcomeProcessed, nil
	}

	s.notify.MembershipConfirmed(ctx, notifications.MembershipConfirmation{
		Email:       p.Email,
		Type:        string(membershipType),
		PaidUntil:   extended.NewPaidUntil,
		AmountPence: p.AmountPence,
		IsNew:       extended.IsNew,
	})
	return OutcomeProcessed, nil
}

// applySponsorship records a sponsorship charge when the payer is known and
// tells the committee. Redeliveries notify nobody.
func (s *Service) applySponsorship(ctx context.Context, intent classifier.SponsorGame, p payment) (Outcome, error) {
	notice := notifications.SponsorshipNotice{
		GameID:      intent.GameID,
		Season:      intent.Season,
		SponsorName: intent.SponsorName,
		Email:       p.Email,
		AmountPence: p.AmountPence,
	}
	if p.Email == "" {
		s.notify.SponsorshipPaid(ctx, notice)
		return OutcomeProcessed, nil
	}

	taken, err := s.ledger.SponsorshipTaken(ctx, intent.GameID, intent.Season, p.ExternalID)
	if err != nil {
		return "", err
	}
	res, claimed, err := s.recordCharge(ctx, s.ledger, ledger.CreateChargeInput{
		MemberEmail: p.Email,
		Description: ledger.SponsorshipDescription(intent.GameID, intent.Season),
		AmountPence: p.AmountPence,
		ChargeDate:  p.PaidAt,
		Type:        enums.ChargeTypeSponsorship,
		Source:      enums.ChargeSourceWebhook,
		ExternalID:  p.ExternalID,
		PaidAt:      &p.PaidAt,
	})
	if err != nil {
		return "", err
	}
	if !claimed && res.Reason == ledger.ReasonDuplicate {
		s.info(ctx, "sponsorship payment already recorded")
		return OutcomeProcessed, nil
	}
	if taken {
		notice.Duplicate = true
		s.warn(ctx, "duplicate sponsorship for this season", map[string]any{"game_id": intent.GameID, "season": intent.Season})
	}
	s.notify.SponsorshipPaid(ctx, notice)
	return OutcomeProcessed, nil
}

// recordCharge writes the webhook's charge for a payment, or adopts the row an
// earlier reconciliation run imported for it under whatever type it guessed.
// The bool reports whether this delivery owns the payment's side effects.
func (s *Service) recordCharge(ctx context.Context, ledgerSvc ledger.Service, input ledger.CreateChargeInput) (ledger.CreateChargeResult, bool, error) {
	input.DedupAnyType = true
	res, err := ledgerSvc.CreateCharge(ctx, input)
	if err != nil {
		return res, false, err
	}
	if res.Created {
		return res, true, nil
	}
	if res.Reason != ledger.ReasonDuplicate || res.ChargeID == uuid.Nil {
		return res, false, nil
	}
	adopted, err := ledgerSvc.Adopt(ctx, res.ChargeID, ledger.AdoptInput{Type: input.Type, Description: input.Description})
	if err != nil {
		return res, false, err
	}
	if adopted {
		s.info(ctx, "adopted charge recorded by reconciliation")
	}
	return res, adopted, nil
}

// optionalEmail tolerates a missing payer; other lookup failures still fail
// the delivery.
func (s *Service) optionalEmail(ctx context.Context, customerID, fallback string) (string, error) {
	email, err := s.customerEmail(ctx, customerID, fallback)
	if errors.Is(err, ErrMissingOrDeletedCustomer) {
		return "", nil
	}
	return email, err
}
