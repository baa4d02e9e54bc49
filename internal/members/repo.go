package members

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/clubpay-backend/pkg/db/models"
)

// Repository reads the member directory. Registration owns writes; the
// payments side only backfills the cached Stripe customer id.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByEmail(ctx context.Context, email string) (*models.Member, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
	ListAll(ctx context.Context) ([]models.Member, error)
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
	ListDependents(ctx context.Context, memberID uuid.UUID) ([]models.Dependent, error)
	FindDependent(ctx context.Context, id uuid.UUID) (*models.Dependent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a member repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// NormalizeEmail is the canonical form used for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindByEmail matches case-insensitively and returns nil when nobody matches.
func (r *repository) FindByEmail(ctx context.Context, email string) (*models.Member, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	var member models.Member
	err := r.db.WithContext(ctx).Where("LOWER(email) = ?", email).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	var member models.Member
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// ListAll returns every member oldest first so reruns walk the same order.
func (r *repository) ListAll(ctx context.Context) ([]models.Member, error) {
	var members []models.Member
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

// SetStripeCustomerID only fills an empty column; an id already cached is
// never overwritten.
func (r *repository) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("id = ? AND (stripe_customer_id IS NULL OR stripe_customer_id = '')", id).
		Update("stripe_customer_id", customerID).Error
}

func (r *repository) ListDependents(ctx context.Context, memberID uuid.UUID) ([]models.Dependent, error) {
	var dependents []models.Dependent
	if err := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("created_at ASC").
		Find(&dependents).Error; err != nil {
		return nil, err
	}
	return dependents, nil
}

func (r *repository) FindDependent(ctx context.Context, id uuid.UUID) (*models.Dependent, error) {
	var dependent models.Dependent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&dependent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dependent, nil
}
