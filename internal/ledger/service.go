package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/clubpay-backend/internal/members"
	"github.com/angelmondragon/clubpay-backend/pkg/db"
	"github.com/angelmondragon/clubpay-backend/pkg/db/models"
	"github.com/angelmondragon/clubpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/clubpay-backend/pkg/errors"
	"github.com/angelmondragon/clubpay-backend/pkg/pagination"
)

// DefaultAbandonAfter applies when no threshold is configured.
const DefaultAbandonAfter = time.Hour

// Reason explains why CreateCharge did not write a row.
type Reason string

const (
	ReasonNoMember  Reason = "no_member"
	ReasonDuplicate Reason = "duplicate"
)

// Service owns the charge ledger and its dedup contract.
type Service interface {
	WithTx(tx *gorm.DB) Service
	CreateCharge(ctx context.Context, input CreateChargeInput) (CreateChargeResult, error)
	Adopt(ctx context.Context, id uuid.UUID, input AdoptInput) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error)
	MarkPaymentConfirmed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	SoftDelete(ctx context.Context, id uuid.UUID, actor, reason string) error
	ComputeAggregates(ctx context.Context, r DateRange) (Aggregates, error)
	GetCharge(ctx context.Context, id uuid.UUID) (*ChargeDTO, error)
	ListCharges(ctx context.Context, params ListChargesQuery) (ListChargesResult, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]ChargeDTO, error)
	ListUnpaidByPaymentIntent(ctx context.Context, memberID uuid.UUID, paymentIntentID string) ([]models.Charge, error)
	LinkedDependents(ctx context.Context, chargeIDs []uuid.UUID) ([]uuid.UUID, error)
	SponsorshipTaken(ctx context.Context, gameID, season, externalID string) (bool, error)
}

// SponsorshipDescription is the canonical description of a game sponsorship
// charge; one live sponsorship per game and season is expected.
func SponsorshipDescription(gameID, season string) string {
	if season == "" {
		return fmt.Sprintf("Game sponsorship %s", gameID)
	}
	return fmt.Sprintf("Game sponsorship %s (%s)", gameID, season)
}

// CreateChargeInput describes a ledger row to create. ExternalID is the dedup
// correlation id (normally the Stripe payment intent id). A PaidAt creates the
// row already paid.
type CreateChargeInput struct {
	MemberEmail  string
	Description  string
	AmountPence  int64
	ChargeDate   time.Time
	Type         enums.ChargeType
	Source       enums.ChargeSource
	ExternalID   string
	PaidAt       *time.Time
	CreatedBy    string
	DependentIDs []uuid.UUID
	// DedupAnyType widens the duplicate check to every charge type for the
	// (external id, member) pair.
	DedupAnyType bool
}

// CreateChargeResult reports what CreateCharge did. ChargeID is the existing
// row for duplicates.
type CreateChargeResult struct {
	Created  bool
	ChargeID uuid.UUID
	MemberID uuid.UUID
	Reason   Reason
}

// AdoptInput is what the webhook path stamps onto an imported charge it
// takes over.
type AdoptInput struct {
	Type        enums.ChargeType
	Description string
}

// ServiceParams wires the ledger.
type ServiceParams struct {
	Repo         Repository
	Members      members.Repository
	AbandonAfter time.Duration
	Clock        func() time.Time
}

type service struct {
	repo         Repository
	members      members.Repository
	abandonAfter time.Duration
	now          func() time.Time
}

// NewService wires a ledger service with the provided repositories.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Members == nil {
		return nil, fmt.Errorf("members repository required")
	}
	if params.AbandonAfter <= 0 {
		params.AbandonAfter = DefaultAbandonAfter
	}
	if params.Clock == nil {
		params.Clock = time.Now
	}
	return &service{
		repo:         params.Repo,
		members:      params.Members,
		abandonAfter: params.AbandonAfter,
		now:          params.Clock,
	}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	clone := *s
	clone.repo = s.repo.WithTx(tx)
	clone.members = s.members.WithTx(tx)
	return &clone
}

func (s *service) CreateCharge(ctx context.Context, input CreateChargeInput) (CreateChargeResult, error) {
	if err := validateCreate(input); err != nil {
		return CreateChargeResult{}, err
	}

	member, err := s.members.FindByEmail(ctx, input.MemberEmail)
	if err != nil {
		return CreateChargeResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup member by email")
	}
	if member == nil {
		return CreateChargeResult{Reason: ReasonNoMember}, nil
	}

	externalID := strings.TrimSpace(input.ExternalID)
	if externalID != "" {
		existing, err := s.findDuplicate(ctx, externalID, member.ID, input)
		if err != nil {
			return CreateChargeResult{}, err
		}
		if existing != nil {
			return CreateChargeResult{ChargeID: existing.ID, MemberID: member.ID, Reason: ReasonDuplicate}, nil
		}
	}

	chargeDate := input.ChargeDate
	if chargeDate.IsZero() {
		chargeDate = s.now()
	}
	createdBy := strings.TrimSpace(input.CreatedBy)
	if createdBy == "" {
		createdBy = string(input.Source)
	}

	charge := &models.Charge{
		MemberID:    member.ID,
		Description: strings.TrimSpace(input.Description),
		AmountPence: input.AmountPence,
		ChargeDate:  dateOnly(chargeDate),
		Type:        input.Type,
		Source:      input.Source,
		CreatedBy:   createdBy,
	}
	if externalID != "" {
		charge.StripePaymentIntentID = &externalID
	}
	if input.PaidAt != nil {
		paidAt := input.PaidAt.UTC()
		charge.PaidAt = &paidAt
	}

	if err := s.repo.Insert(ctx, charge, input.DependentIDs); err != nil {
		if db.IsUniqueViolation(err, models.ChargeDedupIndex) {
			// a concurrent writer won the insert
			result := CreateChargeResult{MemberID: member.ID, Reason: ReasonDuplicate}
			if existing, findErr := s.findDuplicate(ctx, externalID, member.ID, input); findErr == nil && existing != nil {
				result.ChargeID = existing.ID
			}
			return result, nil
		}
		return CreateChargeResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert charge")
	}

	return CreateChargeResult{Created: true, ChargeID: charge.ID, MemberID: member.ID}, nil
}

func (s *service) findDuplicate(ctx context.Context, externalID string, memberID uuid.UUID, input CreateChargeInput) (*models.Charge, error) {
	var chargeType *enums.ChargeType
	if !input.DedupAnyType {
		chargeType = &input.Type
	}
	existing, err := s.repo.FindByDedupKey(ctx, externalID, memberID, chargeType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup charge by dedup key")
	}
	return existing, nil
}

func validateCreate(input CreateChargeInput) error {
	if strings.TrimSpace(input.MemberEmail) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "member email is required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid charge type %q", input.Type)
	}
	if !input.Source.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid charge source %q", input.Source)
	}
	if input.AmountPence < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	return nil
}

// Adopt hands a charge written by reconciliation over to the webhook path,
// retyping it to the webhook's classification. It reports whether this call
// claimed the row; rows from any other source, including ones already
// adopted, are left alone.
func (s *service) Adopt(ctx context.Context, id uuid.UUID, input AdoptInput) (bool, error) {
	if !input.Type.IsValid() {
		return false, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid charge type %q", input.Type)
	}
	rows, err := s.repo.Adopt(ctx, id, input.Type, strings.TrimSpace(input.Description))
	if err != nil {
		if db.IsUniqueViolation(err, models.ChargeDedupIndex) {
			// the payment already has a row of the adopted type
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "adopt imported charge")
	}
	return rows > 0, nil
}

// MarkPaid sets paid_at once. It reports whether this call changed the row;
// a charge that is already paid is a no-op.
func (s *service) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error) {
	rows, err := s.repo.MarkPaid(ctx, id, paidAt.UTC())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark charge paid")
	}
	if rows > 0 {
		return true, nil
	}
	return false, s.explainNoop(ctx, id)
}

// MarkPaymentConfirmed moves an unpaid charge to pending. Already confirmed or
// paid charges are a no-op.
func (s *service) MarkPaymentConfirmed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	rows, err := s.repo.MarkPaymentConfirmed(ctx, id, at.UTC())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark charge payment confirmed")
	}
	if rows > 0 {
		return true, nil
	}
	return false, s.explainNoop(ctx, id)
}

func (s *service) explainNoop(ctx context.Context, id uuid.UUID) error {
	charge, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load charge")
	}
	switch {
	case charge == nil:
		return chargeNotFound()
	case charge.DeletedAt != nil:
		return alreadyDeleted()
	default:
		return nil
	}
}

// SoftDelete marks an unsettled charge deleted. The row is untouched when the
// charge is paid, confirmed or already deleted.
func (s *service) SoftDelete(ctx context.Context, id uuid.UUID, actor, reason string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}
	rows, err := s.repo.SoftDelete(ctx, id, actor, strings.TrimSpace(reason), s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "soft delete charge")
	}
	if rows > 0 {
		return nil
	}

	charge, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load charge")
	}
	switch {
	case charge == nil:
		return chargeNotFound()
	case charge.DeletedAt != nil:
		return alreadyDeleted()
	default:
		return alreadySettled()
	}
}

// ComputeAggregates buckets every charge in the range by derived status as of
// now.
func (s *service) ComputeAggregates(ctx context.Context, r DateRange) (Aggregates, error) {
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return Aggregates{}, pkgerrors.New(pkgerrors.CodeValidation, "date range end precedes start")
	}
	r = DateRange{From: dateOnlyOrZero(r.From), To: dateOnlyOrZero(r.To)}

	agg := newAggregator(s.now(), s.abandonAfter)
	if err := s.repo.EachInRange(ctx, r, func(batch []models.Charge) error {
		agg.add(batch)
		return nil
	}); err != nil {
		return Aggregates{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregate charges")
	}
	return agg.result(r), nil
}

func (s *service) GetCharge(ctx context.Context, id uuid.UUID) (*ChargeDTO, error) {
	charge, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load charge")
	}
	if charge == nil {
		return nil, chargeNotFound()
	}
	dto := s.toDTO(*charge, s.now())
	return &dto, nil
}

// ListChargesResult is one page of charges with derived statuses.
type ListChargesResult struct {
	Charges    []ChargeDTO `json:"charges"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func (s *service) ListCharges(ctx context.Context, params ListChargesQuery) (ListChargesResult, error) {
	charges, next, err := s.repo.List(ctx, params)
	if err != nil {
		return ListChargesResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list charges")
	}
	now := s.now()
	out := ListChargesResult{Charges: make([]ChargeDTO, 0, len(charges))}
	for _, charge := range charges {
		out.Charges = append(out.Charges, s.toDTO(charge, now))
	}
	if next != nil {
		out.NextCursor = pagination.EncodeCursor(*next)
	}
	return out, nil
}

func (s *service) ListByMember(ctx context.Context, memberID uuid.UUID) ([]ChargeDTO, error) {
	charges, err := s.repo.ListByMember(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list member charges")
	}
	now := s.now()
	out := make([]ChargeDTO, 0, len(charges))
	for _, charge := range charges {
		out = append(out, s.toDTO(charge, now))
	}
	return out, nil
}

func (s *service) ListUnpaidByPaymentIntent(ctx context.Context, memberID uuid.UUID, paymentIntentID string) ([]models.Charge, error) {
	if strings.TrimSpace(paymentIntentID) == "" {
		return nil, nil
	}
	charges, err := s.repo.ListUnpaidByPaymentIntent(ctx, memberID, paymentIntentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list unpaid charges")
	}
	return charges, nil
}

func (s *service) LinkedDependents(ctx context.Context, chargeIDs []uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.repo.LinkedDependents(ctx, chargeIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list linked dependents")
	}
	return ids, nil
}

// SponsorshipTaken reports whether another payment already sponsors the game
// for the season.
func (s *service) SponsorshipTaken(ctx context.Context, gameID, season, externalID string) (bool, error) {
	count, err := s.repo.CountLive(ctx, enums.ChargeTypeSponsorship, SponsorshipDescription(gameID, season), externalID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count sponsorships")
	}
	return count > 0, nil
}

func (s *service) toDTO(charge models.Charge, now time.Time) ChargeDTO {
	return toChargeDTO(charge, DeriveStatus(charge, now, s.abandonAfter))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateOnlyOrZero(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return dateOnly(t)
}
