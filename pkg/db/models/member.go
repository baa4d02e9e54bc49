package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Member is a registered club member. Rows are created by the registration
// flow; the payments engine only reads them and backfills StripeCustomerID.
type Member struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name             string    `gorm:"column:name;not null"`
	Email            string    `gorm:"column:email;not null;uniqueIndex:ux_members_email"`
	StripeCustomerID *string   `gorm:"column:stripe_customer_id;index"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *Member) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Dependent is a junior registered under a member.
type Dependent struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	MemberID    uuid.UUID  `gorm:"column:member_id;type:uuid;not null;index"`
	Name        string     `gorm:"column:name;not null"`
	DateOfBirth *time.Time `gorm:"column:date_of_birth"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (d *Dependent) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
