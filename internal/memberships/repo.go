package memberships

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/clubpay-backend/pkg/db/models"
	"github.com/angelmondragon/clubpay-backend/pkg/enums"
)

// Owner identifies who a membership belongs to. Exactly one field is set.
type Owner struct {
	MemberID    *uuid.UUID
	DependentID *uuid.UUID
}

func memberOwner(id uuid.UUID) Owner    { return Owner{MemberID: &id} }
func dependentOwner(id uuid.UUID) Owner { return Owner{DependentID: &id} }

// Repository persists membership rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, owner Owner, membershipType enums.MembershipType) (*models.Membership, error)
	Insert(ctx context.Context, membership *models.Membership) error
	CompareAndSwap(ctx context.Context, id uuid.UUID, version int64, paidUntil time.Time) (int64, error)
	ListForOwners(ctx context.Context, memberID uuid.UUID, dependentIDs []uuid.UUID) ([]models.Membership, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Find(ctx context.Context, owner Owner, membershipType enums.MembershipType) (*models.Membership, error) {
	query := r.db.WithContext(ctx).Where("type = ?", membershipType)
	switch {
	case owner.MemberID != nil:
		query = query.Where("member_id = ?", *owner.MemberID)
	case owner.DependentID != nil:
		query = query.Where("dependent_id = ?", *owner.DependentID)
	default:
		return nil, errors.New("membership owner required")
	}

	var membership models.Membership
	err := query.First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// Insert creates the row under a savepoint so a lost race leaves an enclosing
// transaction usable.
func (r *repository) Insert(ctx context.Context, membership *models.Membership) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(membership).Error
	})
}

// CompareAndSwap moves paid_until only when the row still carries version.
func (r *repository) CompareAndSwap(ctx context.Context, id uuid.UUID, version int64, paidUntil time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]any{
			"paid_until": paidUntil,
			"version":    gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListForOwners(ctx context.Context, memberID uuid.UUID, dependentIDs []uuid.UUID) ([]models.Membership, error) {
	query := r.db.WithContext(ctx).Where("member_id = ?", memberID)
	if len(dependentIDs) > 0 {
		query = query.Or("dependent_id IN ?", dependentIDs)
	}
	var rows []models.Membership
	if err := query.Order("paid_until DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
