package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/clubpay-backend/pkg/enums"
)

// ChargeDedupIndex is the unique index behind the (payment intent, member,
// type) dedup key.
const ChargeDedupIndex = "ux_charges_dedup"

// Charge is one ledger row. Status is derived from the timestamps.
type Charge struct {
	ID                    uuid.UUID          `gorm:"type:uuid;primaryKey"`
	MemberID              uuid.UUID          `gorm:"column:member_id;type:uuid;not null;index;uniqueIndex:ux_charges_dedup,priority:2"`
	Description           string             `gorm:"column:description;not null"`
	AmountPence           int64              `gorm:"column:amount_pence;not null"`
	ChargeDate            time.Time          `gorm:"column:charge_date;not null;index"`
	Type                  enums.ChargeType   `gorm:"column:type;not null;uniqueIndex:ux_charges_dedup,priority:3"`
	Source                enums.ChargeSource `gorm:"column:source;not null"`
	StripePaymentIntentID *string            `gorm:"column:stripe_payment_intent_id;uniqueIndex:ux_charges_dedup,priority:1"`
	CreatedAt             time.Time          `gorm:"column:created_at;autoCreateTime"`
	CreatedBy             string             `gorm:"column:created_by;not null"`
	PaidAt                *time.Time         `gorm:"column:paid_at"`
	PaymentConfirmedAt    *time.Time         `gorm:"column:payment_confirmed_at"`
	DeletedAt             *time.Time         `gorm:"column:deleted_at"`
	DeletedBy             *string            `gorm:"column:deleted_by"`
	DeletedReason         *string            `gorm:"column:deleted_reason"`
}

func (c *Charge) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ChargeDependent links a self-service charge to the juniors it pays for.
type ChargeDependent struct {
	ChargeID    uuid.UUID `gorm:"column:charge_id;type:uuid;primaryKey"`
	DependentID uuid.UUID `gorm:"column:dependent_id;type:uuid;primaryKey"`
}
