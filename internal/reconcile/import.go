package reconcile

import (
	"context"
	"fmt"

	"github.com/angelmondragon/clubpay-backend/internal/classifier"
	"github.com/angelmondragon/clubpay-backend/internal/ledger"
	"github.com/angelmondragon/clubpay-backend/internal/payments"
	"github.com/angelmondragon/clubpay-backend/pkg/db/models"
	"github.com/angelmondragon/clubpay-backend/pkg/enums"
)

// importCharge records one processor charge. Only transport-level failures
// are returned; every other outcome is a counter.
func (s *Service) importCharge(ctx context.Context, member *models.Member, charge payments.Charge, result *SyncResult) error {
	result.Processed++
	if !charge.Succeeded {
		result.SkippedFailed++
		return nil
	}

	intent := classify(charge)
	if _, ok := intent.(classifier.SelfServiceCharges); ok {
		// settled through the existing ledger rows by the webhook
		result.SkippedSelfService++
		return nil
	}

	externalID := charge.PaymentIntentID
	if externalID == "" {
		externalID = charge.ID
	}
	paidAt := charge.Created.UTC()
	chargeType := classifier.ChargeType(intent)

	res, err := s.ledger.CreateCharge(ctx, ledger.CreateChargeInput{
		MemberEmail: member.Email,
		Description: describe(intent, charge),
		AmountPence: charge.Amount,
		ChargeDate:  paidAt,
		Type:        chargeType,
		Source:      enums.ChargeSourceHistoricalImport,
		ExternalID:  externalID,
		PaidAt:      &paidAt,
		CreatedBy:   string(enums.ChargeSourceHistoricalImport),
		// an unclassified payment may already be on the ledger under the
		// type its checkout session carried
		DedupAnyType: chargeType == enums.ChargeTypeManual,
	})
	if err != nil {
		return fmt.Errorf("import charge %s: %w", charge.ID, err)
	}
	switch {
	case res.Created:
		result.Created++
	case res.Reason == ledger.ReasonDuplicate:
		result.SkippedDuplicate++
	case res.Reason == ledger.ReasonNoMember:
		result.SkippedNoMember++
	}
	return nil
}

// classify prefers payment intent metadata, where checkout and self-service
// flows put it, over the charge's own.
func classify(charge payments.Charge) classifier.Intent {
	intent := classifier.Classify(charge.PaymentIntentMetadata)
	if intent.Kind() != classifier.KindUnclassified {
		return intent
	}
	return classifier.Classify(charge.Metadata)
}

func describe(intent classifier.Intent, charge payments.Charge) string {
	switch intent := intent.(type) {
	case classifier.SponsorGame:
		return ledger.SponsorshipDescription(intent.GameID, intent.Season)
	case classifier.Membership:
		if charge.Description == "" && intent.Type != "" {
			return fmt.Sprintf("Membership (%s)", intent.Type)
		}
	}
	if charge.Description != "" {
		return charge.Description
	}
	return "Stripe payment " + charge.ID
}
