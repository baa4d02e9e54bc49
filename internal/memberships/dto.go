package memberships

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/clubpay-backend/pkg/db/models"
	"github.com/angelmondragon/clubpay-backend/pkg/enums"
)

// ExtendResult reports the outcome of one extension.
type ExtendResult struct {
	MembershipID uuid.UUID `json:"membership_id"`
	NewPaidUntil time.Time `json:"new_paid_until"`
	IsNew        bool      `json:"is_new"`
}

// MembershipDTO is the admin view of a membership row.
type MembershipDTO struct {
	ID            uuid.UUID            `json:"id"`
	MemberID      *uuid.UUID           `json:"member_id,omitempty"`
	DependentID   *uuid.UUID           `json:"dependent_id,omitempty"`
	DependentName string               `json:"dependent_name,omitempty"`
	Type          enums.MembershipType `json:"type"`
	PaidUntil     time.Time            `json:"paid_until"`
	Active        bool                 `json:"active"`
}

func toMembershipDTO(row models.Membership, dependentNames map[uuid.UUID]string, now time.Time) MembershipDTO {
	dto := MembershipDTO{
		ID:          row.ID,
		MemberID:    row.MemberID,
		DependentID: row.DependentID,
		Type:        row.Type,
		PaidUntil:   row.PaidUntil,
		Active:      row.PaidUntil.After(now),
	}
	if row.DependentID != nil {
		dto.DependentName = dependentNames[*row.DependentID]
	}
	return dto
}
