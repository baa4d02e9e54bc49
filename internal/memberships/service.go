package memberships

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/clubpay-backend/internal/duration"
	"github.com/angelmondragon/clubpay-backend/internal/members"
	"github.com/angelmondragon/clubpay-backend/pkg/db"
	"github.com/angelmondragon/clubpay-backend/pkg/db/models"
	"github.com/angelmondragon/clubpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/clubpay-backend/pkg/errors"
)

const maxExtendAttempts = 5

// Extender moves membership expiry dates forward.
type Extender interface {
	WithTx(tx *gorm.DB) Extender
	Extend(ctx context.Context, email string, membershipType enums.MembershipType, d duration.Duration, paidAt time.Time) (ExtendResult, error)
	ExtendDependent(ctx context.Context, dependentID uuid.UUID, d duration.Duration, paidAt time.Time) (ExtendResult, error)
	ListForMember(ctx context.Context, memberID uuid.UUID) ([]MembershipDTO, error)
}

// ServiceParams wires the extender.
type ServiceParams struct {
	Repo    Repository
	Members members.Repository
	Clock   func() time.Time
}

type service struct {
	repo    Repository
	members members.Repository
	now     func() time.Time
}

// NewService builds the membership extender.
func NewService(params ServiceParams) (Extender, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("membership repository required")
	}
	if params.Members == nil {
		return nil, fmt.Errorf("members repository required")
	}
	if params.Clock == nil {
		params.Clock = time.Now
	}
	return &service{repo: params.Repo, members: params.Members, now: params.Clock}, nil
}

func (s *service) WithTx(tx *gorm.DB) Extender {
	if tx == nil {
		return s
	}
	clone := *s
	clone.repo = s.repo.WithTx(tx)
	clone.members = s.members.WithTx(tx)
	return &clone
}

// Extend adds d to the member's membership of the given type. A missing row is
// created with paid_until = paidAt + d. An existing row extends from whichever
// is later of its paid_until and paidAt, so a lapsed membership restarts at the
// payment and an early renewal keeps the time already paid for.
func (s *service) Extend(ctx context.Context, email string, membershipType enums.MembershipType, d duration.Duration, paidAt time.Time) (ExtendResult, error) {
	if !membershipType.IsValid() {
		return ExtendResult{}, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid membership type %q", membershipType)
	}
	member, err := s.members.FindByEmail(ctx, email)
	if err != nil {
		return ExtendResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup member by email")
	}
	if member == nil {
		return ExtendResult{}, noMemberWithEmail()
	}
	return s.extend(ctx, memberOwner(member.ID), membershipType, d, paidAt)
}

// ExtendDependent extends a junior membership held by a dependent.
func (s *service) ExtendDependent(ctx context.Context, dependentID uuid.UUID, d duration.Duration, paidAt time.Time) (ExtendResult, error) {
	dependent, err := s.members.FindDependent(ctx, dependentID)
	if err != nil {
		return ExtendResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup dependent")
	}
	if dependent == nil {
		return ExtendResult{}, dependentNotFound()
	}
	return s.extend(ctx, dependentOwner(dependent.ID), enums.MembershipTypeJunior, d, paidAt)
}

func (s *service) extend(ctx context.Context, owner Owner, membershipType enums.MembershipType, d duration.Duration, paidAt time.Time) (ExtendResult, error) {
	paidAt = paidAt.UTC()
	for attempt := 0; attempt < maxExtendAttempts; attempt++ {
		current, err := s.repo.Find(ctx, owner, membershipType)
		if err != nil {
			return ExtendResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load membership")
		}

		if current == nil {
			row := &models.Membership{
				MemberID:    owner.MemberID,
				DependentID: owner.DependentID,
				Type:        membershipType,
				PaidUntil:   d.AddTo(paidAt),
			}
			err := s.repo.Insert(ctx, row)
			if err == nil {
				return ExtendResult{MembershipID: row.ID, NewPaidUntil: row.PaidUntil, IsNew: true}, nil
			}
			if db.IsUniqueViolation(err, "") {
				// another writer created the row; apply on top of it
				continue
			}
			return ExtendResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert membership")
		}

		base := current.PaidUntil.UTC()
		if paidAt.After(base) {
			base = paidAt
		}
		next := d.AddTo(base)
		rows, err := s.repo.CompareAndSwap(ctx, current.ID, current.Version, next)
		if err != nil {
			return ExtendResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update membership")
		}
		if rows == 1 {
			return ExtendResult{MembershipID: current.ID, NewPaidUntil: next}, nil
		}
	}
	return ExtendResult{}, pkgerrors.Wrap(pkgerrors.CodeConflict, errContended, "membership update contended")
}

// ListForMember returns the member's own memberships followed by those of
// their dependents.
func (s *service) ListForMember(ctx context.Context, memberID uuid.UUID) ([]MembershipDTO, error) {
	dependents, err := s.members.ListDependents(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list dependents")
	}
	names := make(map[uuid.UUID]string, len(dependents))
	ids := make([]uuid.UUID, 0, len(dependents))
	for _, dep := range dependents {
		names[dep.ID] = dep.Name
		ids = append(ids, dep.ID)
	}

	rows, err := s.repo.ListForOwners(ctx, memberID, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list memberships")
	}

	now := s.now()
	own := make([]MembershipDTO, 0, len(rows))
	var juniors []MembershipDTO
	for _, row := range rows {
		dto := toMembershipDTO(row, names, now)
		if row.DependentID != nil {
			juniors = append(juniors, dto)
			continue
		}
		own = append(own, dto)
	}
	return append(own, juniors...), nil
}
