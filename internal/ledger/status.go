package ledger

import (
	"time"

	"github.com/angelmondragon/clubpay-backend/pkg/db/models"
	"github.com/angelmondragon/clubpay-backend/pkg/enums"
)

// DeriveStatus computes a charge's status from its timestamps. Precedence is
// deleted, paid, pending, abandoned, unpaid. A charge is abandoned when it
// carries a payment intent, is older than threshold, and was never confirmed.
func DeriveStatus(charge models.Charge, now time.Time, threshold time.Duration) enums.ChargeStatus {
	switch {
	case charge.DeletedAt != nil:
		return enums.ChargeStatusDeleted
	case charge.PaidAt != nil:
		return enums.ChargeStatusPaid
	case charge.PaymentConfirmedAt != nil:
		return enums.ChargeStatusPending
	case charge.StripePaymentIntentID != nil && *charge.StripePaymentIntentID != "" &&
		now.Sub(charge.CreatedAt) > threshold:
		return enums.ChargeStatusAbandoned
	default:
		return enums.ChargeStatusUnpaid
	}
}

// DateRange bounds charge_date inclusively. Zero ends are open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Bucket totals one derived status.
type Bucket struct {
	Status      enums.ChargeStatus `json:"status"`
	Count       int64              `json:"count"`
	AmountPence int64              `json:"amount_pence"`
}

// Aggregates is the reporting view of a date range.
type Aggregates struct {
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
	Buckets      []Bucket   `json:"buckets"`
	TotalCount   int64      `json:"total_count"`
	TotalPence   int64      `json:"total_pence"`
	ComputedAt   time.Time  `json:"computed_at"`
	AbandonAfter string     `json:"abandon_after"`
}

type aggregator struct {
	now       time.Time
	threshold time.Duration
	buckets   map[enums.ChargeStatus]*Bucket
}

func newAggregator(now time.Time, threshold time.Duration) *aggregator {
	buckets := make(map[enums.ChargeStatus]*Bucket, len(enums.ChargeStatuses))
	for _, status := range enums.ChargeStatuses {
		buckets[status] = &Bucket{Status: status}
	}
	return &aggregator{now: now, threshold: threshold, buckets: buckets}
}

func (a *aggregator) add(charges []models.Charge) {
	for _, charge := range charges {
		bucket := a.buckets[DeriveStatus(charge, a.now, a.threshold)]
		bucket.Count++
		bucket.AmountPence += charge.AmountPence
	}
}

func (a *aggregator) result(dr DateRange) Aggregates {
	out := Aggregates{ComputedAt: a.now, AbandonAfter: a.threshold.String()}
	if !dr.From.IsZero() {
		from := dr.From
		out.From = &from
	}
	if !dr.To.IsZero() {
		to := dr.To
		out.To = &to
	}
	for _, status := range enums.ChargeStatuses {
		bucket := *a.buckets[status]
		out.Buckets = append(out.Buckets, bucket)
		out.TotalCount += bucket.Count
		out.TotalPence += bucket.AmountPence
	}
	return out
}
