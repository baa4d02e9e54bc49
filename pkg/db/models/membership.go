package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/clubpay-backend/pkg/enums"
)

// Membership tracks how long a member or dependent is paid up for. Exactly one
// of MemberID and DependentID is set; Version guards concurrent extensions.
type Membership struct {
	ID          uuid.UUID            `gorm:"type:uuid;primaryKey"`
	MemberID    *uuid.UUID           `gorm:"column:member_id;type:uuid;uniqueIndex:ux_memberships_member_type,priority:1"`
	DependentID *uuid.UUID           `gorm:"column:dependent_id;type:uuid;uniqueIndex:ux_memberships_dependent_type,priority:1"`
	Type        enums.MembershipType `gorm:"column:type;not null;uniqueIndex:ux_memberships_member_type,priority:2;uniqueIndex:ux_memberships_dependent_type,priority:2"`
	PaidUntil   time.Time            `gorm:"column:paid_until;not null"`
	Version     int64                `gorm:"column:version;not null;default:1"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *Membership) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Version == 0 {
		m.Version = 1
	}
	return nil
}
