package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/clubpay-backend/internal/dbtest"
	"github.com/angelmondragon/clubpay-backend/internal/members"
	"github.com/angelmondragon/clubpay-backend/pkg/db/models"
	"github.com/angelmondragon/clubpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/clubpay-backend/pkg/errors"
	"github.com/angelmondragon/clubpay-backend/pkg/pagination"
)

func newTestService(t *testing.T, conn *gorm.DB, now time.Time) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:         NewRepository(conn),
		Members:      members.NewRepository(conn),
		AbandonAfter: time.Hour,
		Clock:        dbtest.FixedClock(now),
	})
	require.NoError(t, err)
	return svc
}

func membershipInput(email, pi string) CreateChargeInput {
	return CreateChargeInput{
		MemberEmail: email,
		Description: "Senior membership",
		AmountPence: 12000,
		ChargeDate:  time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC),
		Type:        enums.ChargeTypeMembership,
		Source:      enums.ChargeSourceWebhook,
		ExternalID:  pi,
	}
}

func TestCreateChargeDedupsOnExternalIDMemberAndType(t *testing.T) {
	conn := dbtest.Open(t)
	member := dbtest.SeedMember(t, conn, "alex@club.org")
	svc := newTestService(t, conn, time.Now().UTC())
	ctx := context.Background()

	first, err := svc.CreateCharge(ctx, membershipInput("ALEX@club.org", "pi_1"))
	require.NoError(t, err)
	require.True(t, first.Created)
	require.Equal(t, member.ID, first.MemberID)

	second, err := svc.CreateCharge(ctx, membershipInput("alex@club.org", "pi_1"))
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, ReasonDuplicate, second.Reason)
	require.Equal(t, first.ChargeID, second.ChargeID)

	donation := membershipInput("alex@club.org", "pi_1")
	donation.Type = enums.ChargeTypeDonation
	third, err := svc.CreateCharge(ctx, donation)
	require.NoError(t, err)
	require.True(t, third.Created, "a different type on the same payment is a distinct row")

	var count int64
	require.NoError(t, conn.Model(&models.Charge{}).Count(&count).Error)
	require.EqualValues(t, 2, count)

	stored, err := svc.GetCharge(ctx, first.ChargeID)
	require.NoError(t, err)
	require.Equal(t, "2026-03-01", stored.ChargeDate)
}

func TestCreateChargeDedupAnyTypeMatchesEveryType(t *testing.T) {
	conn := dbtest.Open(t)
	dbtest.SeedMember(t, conn, "alex@club.org")
	svc := newTestService(t, conn, time.Now().UTC())
	ctx := context.Background()

	_, err := svc.CreateCharge(ctx, membershipInput("alex@club.org", "pi_1"))
	require.NoError(t, err)

	manual := membershipInput("alex@club.org", "pi_1")
	manual.Type = enums.ChargeTypeManual
	manual.Source = enums.ChargeSourceHistoricalImport
	manual.DedupAnyType = true
	res, err := svc.CreateCharge(ctx, manual)
	require.NoError(t, err)
	require.False(t, res.Created)
	require.Equal(t, ReasonDuplicate, res.Reason)
}

func TestCreateChargeWithoutMemberWritesNothing(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, time.Now().UTC())

	res, err := svc.CreateCharge(context.Background(), membershipInput("ghost@club.org", "pi_1"))
	require.NoError(t, err)
	require.False(t, res.Created)
	require.Equal(t, ReasonNoMember, res.Reason)

	var count int64
	require.NoError(t, conn.Model(&models.Charge{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreateChargeRejectsInvalidInput(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newTestService(t, conn, time.Now().UTC())

	input := membershipInput("alex@club.org", "")
	input.Type = "bogus"
	_, err := svc.CreateCharge(context.Background(), input)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestCreateChargeLinksDependents(t *testing.T) {
	conn := dbtest.Open(t)
	parent := dbtest.SeedMember(t, conn, "parent@club.org")
	junior := dbtest.SeedDependent(t, conn, parent.ID, "Junior")
	svc := newTestService(t, conn, time.Now().UTC())
	ctx := context.Background()

	input := membershipInput("parent@club.org", "pi_j")
	input.Type = enums.ChargeTypeJuniorMembership
	input.Source = enums.ChargeSourceSelfService
	input.DependentIDs = []uuid.UUID{junior.ID, junior.ID}
	res, err := svc.CreateCharge(ctx, input)
	require.NoError(t, err)
	require.True(t, res.Created)

	ids, err := svc.LinkedDependents(ctx, []uuid.UUID{res.ChargeID})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{junior.ID}, ids)
}

type racingRepo struct {
	Repository
	existing *models.Charge
	lookups  int
}

func (r *racingRepo) FindByDedupKey(context.Context, string, uuid.UUID, *enums.ChargeType) (*models.Charge, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, nil
	}
	return r.existing, nil
}

func (r *racingRepo) Insert(context.Context, *models.Charge, []uuid.UUID) error {
	return gorm.ErrDuplicatedKey
}

func TestCreateChargeMapsConcurrentUniqueViolationToDuplicate(t *testing.T) {
	conn := dbtest.Open(t)
	dbtest.SeedMember(t, conn, "alex@club.org")
	winner := &models.Charge{ID: uuid.New()}
	svc, err := NewService(ServiceParams{
		Repo:    &racingRepo{Repository: NewRepository(conn), existing: winner},
		Members: members.NewRepository(conn),
	})
	require.NoError(t, err)

	res, err := svc.CreateCharge(context.Background(), membershipInput("alex@club.org", "pi_race"))
	require.NoError(t, err)
	require.False(t, res.Created)
	require.Equal(t, ReasonDuplicate, res.Reason)
	require.Equal(t, winner.ID, res.ChargeID)
}

func TestCreateChargeInsideTransactionSurvivesDuplicate(t *testing.T) {
	conn := dbtest.Open(t)
	dbtest.SeedMember(t, conn, "alex@club.org")
	svc := newTestService(t, conn, time.Now().UTC())
	ctx := context.Background()

	err := conn.Transaction(func(tx *gorm.DB) error {
		txSvc := svc.WithTx(tx)
		if _, err := txSvc.CreateCharge(ctx, membershipInput("alex@club.org", "pi_tx")); err != nil {
			return err
		}
		res, err := txSvc.CreateCharge(ctx, membershipInput("alex@club.org", "pi_tx"))
		if err != nil {
			return err
		}
		require.Equal(t, ReasonDuplicate, res.Reason)
		return nil
	})
	require.NoError(t, err)
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	conn := dbtest.Open(t)
	dbtest.SeedMember(t, conn, "alex@club.org")
	svc := newTestService(t, conn, time.Now().UTC())
	ctx := context.Background()

	res, err := svc.CreateCharge(ctx, membershipInput("alex@club.org", "pi_1"))
	require.NoError(t, err)

	paidAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	changed, err := svc.MarkPaid(ctx, res.ChargeID, paidAt)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = svc.MarkPaid(ctx, res.ChargeID, paidAt.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, changed)

	got, err := svc.GetCharge(ctx, res.ChargeID)
	require.NoError(t, err)
	require.Equal(t, enums.ChargeStatusPaid, got.Status)
	require.True(t, got.PaidAt.Equal(paidAt))

	_, err = svc.MarkPaid(ctx, uuid.New(), paidAt)
	require.ErrorIs(t, err, ErrChargeNotFound)
}

func TestSoftDeleteGuardsSettledCharges(t *testing.T) {
	conn := dbtest.Open(t)
	dbtest.SeedMember(t, conn, "alex@club.org")
	svc := newTestService(t, conn, time.Now().UTC())
	ctx := context.Background()

	open, err := svc.CreateCharge(ctx, membershipInput("alex@club.org", "pi_open"))
	require.NoError(t, err)
	paid, err := svc.CreateCharge(ctx, membershipInput("alex@club.org", "pi_paid"))
	require.NoError(t, err)
	confirmed, err := svc.CreateCharge(ctx, membershipInput("alex@club.org", "pi_pending"))
	require.NoError(t, err)

	_, err = svc.MarkPaid(ctx, paid.ChargeID, time.Now().UTC())
	require.NoError(t, err)
	_, err = svc.MarkPaymentConfirmed(ctx, confirmed.ChargeID, time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, svc.SoftDelete(ctx, open.ChargeID, "treasurer@club.org", "entered twice"))

	err = svc.SoftDelete(ctx, open.ChargeID, "treasurer@club.org", "again")
	require.ErrorIs(t, err, ErrAlreadyDeleted)

	err = svc.SoftDelete(ctx, paid.ChargeID, "treasurer@club.org", "oops")
	require.ErrorIs(t, err, ErrAlreadySettled)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, publicChargeMessage, pkgerrors.As(err).Message())

	err = svc.SoftDelete(ctx, confirmed.ChargeID, "treasurer@club.org", "oops")
	require.ErrorIs(t, err, ErrAlreadySettled)

	err = svc.SoftDelete(ctx, uuid.New(), "treasurer@club.org", "oops")
	require.ErrorIs(t, err, ErrChargeNotFound)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	err = svc.SoftDelete(ctx, open.ChargeID, " ", "oops")
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = svc.MarkPaid(ctx, open.ChargeID, time.Now().UTC())
	require.ErrorIs(t, err, ErrAlreadyDeleted)

	got, err := svc.GetCharge(ctx, open.ChargeID)
	require.NoError(t, err)
	require.Equal(t, enums.ChargeStatusDeleted, got.Status)
	require.Equal(t, "entered twice", *got.DeletedReason)
}

func TestDeriveStatusPrecedence(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pi := "pi_1"
	ts := now.Add(-time.Minute)
	old := now.Add(-2 * time.Hour)

	cases := []struct {
		name   string
		charge models.Charge
		want   enums.ChargeStatus
	}{
		{"unpaid manual never abandons", models.Charge{CreatedAt: old}, enums.ChargeStatusUnpaid},
		{"fresh checkout is unpaid", models.Charge{CreatedAt: ts, StripePaymentIntentID: &pi}, enums.ChargeStatusUnpaid},
		{"stale checkout is abandoned", models.Charge{CreatedAt: old, StripePaymentIntentID: &pi}, enums.ChargeStatusAbandoned},
		{"confirmed is pending", models.Charge{CreatedAt: old, StripePaymentIntentID: &pi, PaymentConfirmedAt: &ts}, enums.ChargeStatusPending},
		{"paid beats pending", models.Charge{CreatedAt: old, PaymentConfirmedAt: &ts, PaidAt: &ts}, enums.ChargeStatusPaid},
		{"deleted beats everything", models.Charge{CreatedAt: old, PaidAt: &ts, DeletedAt: &ts}, enums.ChargeStatusDeleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveStatus(tc.charge, now, time.Hour))
		})
	}
}

func TestAbandonedCheckoutThenLateConfirmation(t *testing.T) {
	conn := dbtest.Open(t)
	dbtest.SeedMember(t, conn, "alex@club.org")
	ctx := context.Background()

	res, err := newTestService(t, conn, time.Now().UTC()).CreateCharge(ctx, membershipInput("alex@club.org", "pi_slow"))
	require.NoError(t, err)

	later := newTestService(t, conn, time.Now().UTC().Add(2*time.Hour))
	got, err := later.GetCharge(ctx, res.ChargeID)
	require.NoError(t, err)
	require.Equal(t, enums.ChargeStatusAbandoned, got.Status)

	changed, err := later.MarkPaymentConfirmed(ctx, res.ChargeID, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, changed)

	got, err = later.GetCharge(ctx, res.ChargeID)
	require.NoError(t, err)
	require.Equal(t, enums.ChargeStatusPending, got.Status)
}

func TestComputeAggregatesBucketsByStatus(t *testing.T) {
	conn := dbtest.Open(t)
	dbtest.SeedMember(t, conn, "alex@club.org")
	svc := newTestService(t, conn, time.Now().UTC())
	ctx := context.Background()

	a, err := svc.CreateCharge(ctx, membershipInput("alex@club.org", "pi_a"))
	require.NoError(t, err)
	b, err := svc.CreateCharge(ctx, membershipInput("alex@club.org", "pi_b"))
	require.NoError(t, err)
	outside := membershipInput("alex@club.org", "pi_c")
	outside.ChargeDate = time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	_, err = svc.CreateCharge(ctx, outside)
	require.NoError(t, err)

	_, err = svc.MarkPaid(ctx, a.ChargeID, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, svc.SoftDelete(ctx, b.ChargeID, "admin@club.org", "void"))

	agg, err := svc.ComputeAggregates(ctx, DateRange{
		From: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, agg.TotalCount)
	require.EqualValues(t, 24000, agg.TotalPence)
	require.Len(t, agg.Buckets, len(enums.ChargeStatuses))

	byStatus := map[enums.ChargeStatus]Bucket{}
	for _, bucket := range agg.Buckets {
		byStatus[bucket.Status] = bucket
	}
	require.EqualValues(t, 1, byStatus[enums.ChargeStatusPaid].Count)
	require.EqualValues(t, 1, byStatus[enums.ChargeStatusDeleted].Count)
	require.Zero(t, byStatus[enums.ChargeStatusUnpaid].Count)

	_, err = svc.ComputeAggregates(ctx, DateRange{
		From: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestListChargesPaginatesWithoutGaps(t *testing.T) {
	conn := dbtest.Open(t)
	dbtest.SeedMember(t, conn, "alex@club.org")
	svc := newTestService(t, conn, time.Now().UTC())
	ctx := context.Background()

	created := map[uuid.UUID]bool{}
	for _, pi := range []string{"pi_1", "pi_2", "pi_3", "pi_4", "pi_5"} {
		res, err := svc.CreateCharge(ctx, membershipInput("alex@club.org", pi))
		require.NoError(t, err)
		created[res.ChargeID] = true
	}

	seen := map[uuid.UUID]bool{}
	query := ListChargesQuery{Limit: 2}
	for pages := 0; pages < 5; pages++ {
		page, err := svc.ListCharges(ctx, query)
		require.NoError(t, err)
		for _, charge := range page.Charges {
			require.False(t, seen[charge.ID], "charge returned twice")
			seen[charge.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		cursor, err := pagination.ParseCursor(page.NextCursor)
		require.NoError(t, err)
		query.Cursor = cursor
	}
	require.Equal(t, created, seen)
}

func TestSponsorshipTakenIgnoresSamePayment(t *testing.T) {
	conn := dbtest.Open(t)
	dbtest.SeedMember(t, conn, "sponsor@club.org")
	svc := newTestService(t, conn, time.Now().UTC())
	ctx := context.Background()

	input := membershipInput("sponsor@club.org", "pi_s1")
	input.Type = enums.ChargeTypeSponsorship
	input.Description = SponsorshipDescription("g-7", "2026")
	_, err := svc.CreateCharge(ctx, input)
	require.NoError(t, err)

	taken, err := svc.SponsorshipTaken(ctx, "g-7", "2026", "pi_s1")
	require.NoError(t, err)
	require.False(t, taken)

	taken, err = svc.SponsorshipTaken(ctx, "g-7", "2026", "pi_s2")
	require.NoError(t, err)
	require.True(t, taken)

	taken, err = svc.SponsorshipTaken(ctx, "g-7", "2027", "pi_s2")
	require.NoError(t, err)
	require.False(t, taken)
}

func TestAdoptClaimsImportedRowsOnce(t *testing.T) {
	conn := dbtest.Open(t)
	dbtest.SeedMember(t, conn, "alex@club.org")
	svc := newTestService(t, conn, time.Now().UTC())
	ctx := context.Background()

	imported := membershipInput("alex@club.org", "pi_1")
	imported.Type = enums.ChargeTypeManual
	imported.Source = enums.ChargeSourceHistoricalImport
	imported.Description = "Stripe payment ch_1"
	created, err := svc.CreateCharge(ctx, imported)
	require.NoError(t, err)

	adopted, err := svc.Adopt(ctx, created.ChargeID, AdoptInput{Type: enums.ChargeTypeMembership, Description: "Membership (social)"})
	require.NoError(t, err)
	require.True(t, adopted)

	var row models.Charge
	require.NoError(t, conn.First(&row, "id = ?", created.ChargeID).Error)
	require.Equal(t, enums.ChargeTypeMembership, row.Type)
	require.Equal(t, enums.ChargeSourceWebhook, row.Source)
	require.Equal(t, "Membership (social)", row.Description)
	require.Equal(t, string(enums.ChargeSourceHistoricalImport), row.CreatedBy)

	again, err := svc.Adopt(ctx, created.ChargeID, AdoptInput{Type: enums.ChargeTypeMembership})
	require.NoError(t, err)
	require.False(t, again, "an adopted row is webhook-owned")

	_, err = svc.Adopt(ctx, created.ChargeID, AdoptInput{Type: "bogus"})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestAdoptLeavesRowWhenTypeIsAlreadyTaken(t *testing.T) {
	conn := dbtest.Open(t)
	dbtest.SeedMember(t, conn, "alex@club.org")
	svc := newTestService(t, conn, time.Now().UTC())
	ctx := context.Background()

	_, err := svc.CreateCharge(ctx, membershipInput("alex@club.org", "pi_1"))
	require.NoError(t, err)
	imported := membershipInput("alex@club.org", "pi_1")
	imported.Type = enums.ChargeTypeManual
	imported.Source = enums.ChargeSourceHistoricalImport
	manual, err := svc.CreateCharge(ctx, imported)
	require.NoError(t, err)
	require.True(t, manual.Created)

	adopted, err := svc.Adopt(ctx, manual.ChargeID, AdoptInput{Type: enums.ChargeTypeMembership})
	require.NoError(t, err)
	require.False(t, adopted)

	var row models.Charge
	require.NoError(t, conn.First(&row, "id = ?", manual.ChargeID).Error)
	require.Equal(t, enums.ChargeTypeManual, row.Type)
}
