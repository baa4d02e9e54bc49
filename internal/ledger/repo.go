package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/clubpay-backend/pkg/db/models"
	"github.com/angelmondragon/clubpay-backend/pkg/enums"
	"github.com/angelmondragon/clubpay-backend/pkg/pagination"
)

const aggregateBatchSize = 500

// Repository manages persistence for ledger charges. Every state transition is
// a conditional update; callers inspect the affected row count.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, charge *models.Charge, dependentIDs []uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Charge, error)
	FindByDedupKey(ctx context.Context, externalID string, memberID uuid.UUID, chargeType *enums.ChargeType) (*models.Charge, error)
	Adopt(ctx context.Context, id uuid.UUID, chargeType enums.ChargeType, description string) (int64, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (int64, error)
	MarkPaymentConfirmed(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	SoftDelete(ctx context.Context, id uuid.UUID, actor, reason string, at time.Time) (int64, error)
	List(ctx context.Context, params ListChargesQuery) ([]models.Charge, *pagination.Cursor, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Charge, error)
	ListUnpaidByPaymentIntent(ctx context.Context, memberID uuid.UUID, paymentIntentID string) ([]models.Charge, error)
	LinkedDependents(ctx context.Context, chargeIDs []uuid.UUID) ([]uuid.UUID, error)
	EachInRange(ctx context.Context, r DateRange, fn func([]models.Charge) error) error
	CountLive(ctx context.Context, chargeType enums.ChargeType, description, excludeExternalID string) (int64, error)
}

// ListChargesQuery configures admin list queries.
type ListChargesQuery struct {
	MemberID       *uuid.UUID
	Type           *enums.ChargeType
	Source         *enums.ChargeSource
	IncludeDeleted bool
	Limit          int
	Cursor         *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Insert writes the charge and its dependent links under a savepoint, so a
// unique violation leaves an enclosing transaction usable.
func (r *repository) Insert(ctx context.Context, charge *models.Charge, dependentIDs []uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(charge).Error; err != nil {
			return err
		}
		if len(dependentIDs) == 0 {
			return nil
		}
		links := make([]models.ChargeDependent, 0, len(dependentIDs))
		for _, id := range dependentIDs {
			links = append(links, models.ChargeDependent{ChargeID: charge.ID, DependentID: id})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error
	})
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Charge, error) {
	var charge models.Charge
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&charge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &charge, nil
}

// FindByDedupKey looks up (external id, member, type). A nil type matches any
// charge type for the pair.
func (r *repository) FindByDedupKey(ctx context.Context, externalID string, memberID uuid.UUID, chargeType *enums.ChargeType) (*models.Charge, error) {
	query := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ? AND member_id = ?", externalID, memberID)
	if chargeType != nil {
		query = query.Where("type = ?", *chargeType)
	}
	var charge models.Charge
	err := query.Order("created_at ASC").First(&charge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &charge, nil
}

// Adopt moves a live historical import to the webhook source. It runs under a
// savepoint like Insert, since the retype can hit the dedup index.
func (r *repository) Adopt(ctx context.Context, id uuid.UUID, chargeType enums.ChargeType, description string) (int64, error) {
	updates := map[string]any{
		"type":   chargeType,
		"source": enums.ChargeSourceWebhook,
	}
	if description != "" {
		updates["description"] = description
	}
	var rows int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Charge{}).
			Where("id = ? AND source = ? AND deleted_at IS NULL", id, enums.ChargeSourceHistoricalImport).
			Updates(updates)
		rows = res.RowsAffected
		return res.Error
	})
	return rows, err
}

func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Charge{}).
		Where("id = ? AND paid_at IS NULL AND deleted_at IS NULL", id).
		Update("paid_at", paidAt)
	return res.RowsAffected, res.Error
}

func (r *repository) MarkPaymentConfirmed(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Charge{}).
		Where("id = ? AND payment_confirmed_at IS NULL AND paid_at IS NULL AND deleted_at IS NULL", id).
		Update("payment_confirmed_at", at)
	return res.RowsAffected, res.Error
}

func (r *repository) SoftDelete(ctx context.Context, id uuid.UUID, actor, reason string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Charge{}).
		Where("id = ? AND deleted_at IS NULL AND paid_at IS NULL AND payment_confirmed_at IS NULL", id).
		Updates(map[string]any{
			"deleted_at":     at,
			"deleted_by":     actor,
			"deleted_reason": reason,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) List(ctx context.Context, params ListChargesQuery) ([]models.Charge, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Charge{})
	if params.MemberID != nil {
		query = query.Where("member_id = ?", *params.MemberID)
	}
	if params.Type != nil {
		query = query.Where("type = ?", *params.Type)
	}
	if params.Source != nil {
		query = query.Where("source = ?", *params.Source)
	}
	if !params.IncludeDeleted {
		query = query.Where("deleted_at IS NULL")
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var charges []models.Charge
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&charges).Error; err != nil {
		return nil, nil, err
	}

	if len(charges) > limit {
		last := charges[limit-1]
		return charges[:limit], &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
	}
	return charges, nil, nil
}

func (r *repository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Charge, error) {
	var charges []models.Charge
	if err := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("charge_date DESC, created_at DESC").
		Find(&charges).Error; err != nil {
		return nil, err
	}
	return charges, nil
}

func (r *repository) ListUnpaidByPaymentIntent(ctx context.Context, memberID uuid.UUID, paymentIntentID string) ([]models.Charge, error) {
	var charges []models.Charge
	if err := r.db.WithContext(ctx).
		Where("member_id = ? AND stripe_payment_intent_id = ?", memberID, paymentIntentID).
		Where("paid_at IS NULL AND deleted_at IS NULL").
		Order("created_at ASC").
		Find(&charges).Error; err != nil {
		return nil, err
	}
	return charges, nil
}

func (r *repository) LinkedDependents(ctx context.Context, chargeIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(chargeIDs) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.ChargeDependent{}).
		Distinct("dependent_id").
		Where("charge_id IN ?", chargeIDs).
		Pluck("dependent_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// EachInRange streams charges whose charge_date falls inside the range.
func (r *repository) EachInRange(ctx context.Context, dr DateRange, fn func([]models.Charge) error) error {
	query := r.db.WithContext(ctx).Model(&models.Charge{})
	if !dr.From.IsZero() {
		query = query.Where("charge_date >= ?", dr.From)
	}
	if !dr.To.IsZero() {
		query = query.Where("charge_date <= ?", dr.To)
	}
	var batch []models.Charge
	return query.FindInBatches(&batch, aggregateBatchSize, func(_ *gorm.DB, _ int) error {
		return fn(batch)
	}).Error
}

// CountLive counts undeleted charges of a type with an exact description,
// ignoring rows correlated to excludeExternalID.
func (r *repository) CountLive(ctx context.Context, chargeType enums.ChargeType, description, excludeExternalID string) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Charge{}).
		Where("type = ? AND description = ? AND deleted_at IS NULL", chargeType, description)
	if excludeExternalID != "" {
		query = query.Where("(stripe_payment_intent_id IS NULL OR stripe_payment_intent_id <> ?)", excludeExternalID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
