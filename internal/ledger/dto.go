package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/clubpay-backend/pkg/db/models"
	"github.com/angelmondragon/clubpay-backend/pkg/enums"
)

// ChargeDTO is the admin view of a charge.
type ChargeDTO struct {
	ID                    uuid.UUID          `json:"id"`
	MemberID              uuid.UUID          `json:"member_id"`
	Description           string             `json:"description"`
	AmountPence           int64              `json:"amount_pence"`
	ChargeDate            string             `json:"charge_date"`
	Type                  enums.ChargeType   `json:"type"`
	Source                enums.ChargeSource `json:"source"`
	Status                enums.ChargeStatus `json:"status"`
	StripePaymentIntentID *string            `json:"stripe_payment_intent_id,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	CreatedBy             string             `json:"created_by"`
	PaidAt                *time.Time         `json:"paid_at,omitempty"`
	PaymentConfirmedAt    *time.Time         `json:"payment_confirmed_at,omitempty"`
	DeletedAt             *time.Time         `json:"deleted_at,omitempty"`
	DeletedBy             *string            `json:"deleted_by,omitempty"`
	DeletedReason         *string            `json:"deleted_reason,omitempty"`
}

func toChargeDTO(charge models.Charge, status enums.ChargeStatus) ChargeDTO {
	return ChargeDTO{
		ID:                    charge.ID,
		MemberID:              charge.MemberID,
		Description:           charge.Description,
		AmountPence:           charge.AmountPence,
		ChargeDate:            charge.ChargeDate.UTC().Format(time.DateOnly),
		Type:                  charge.Type,
		Source:                charge.Source,
		Status:                status,
		StripePaymentIntentID: charge.StripePaymentIntentID,
		CreatedAt:             charge.CreatedAt,
		CreatedBy:             charge.CreatedBy,
		PaidAt:                charge.PaidAt,
		PaymentConfirmedAt:    charge.PaymentConfirmedAt,
		DeletedAt:             charge.DeletedAt,
		DeletedBy:             charge.DeletedBy,
		DeletedReason:         charge.DeletedReason,
	}
}
