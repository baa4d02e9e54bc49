package admin

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/clubpay-backend/api/middleware"
	"github.com/angelmondragon/clubpay-backend/api/responses"
	"github.com/angelmondragon/clubpay-backend/api/validators"
	"github.com/angelmondragon/clubpay-backend/internal/ledger"
	"github.com/angelmondragon/clubpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/clubpay-backend/pkg/errors"
	"github.com/angelmondragon/clubpay-backend/pkg/logger"
	"github.com/angelmondragon/clubpay-backend/pkg/pagination"
)

const (
	maxDescriptionLen = 200
	maxReasonLen      = 500
)

// ListCharges returns a page of charges, newest first, with derived statuses.
func ListCharges(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		query, err := listQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListCharges(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func listQuery(r *http.Request) (ledger.ListChargesQuery, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return ledger.ListChargesQuery{}, err
	}
	cursor, err := pagination.ParseCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		return ledger.ListChargesQuery{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	memberID, err := validators.ParseQueryUUID(r, "member_id")
	if err != nil {
		return ledger.ListChargesQuery{}, err
	}
	chargeType, err := validators.ParseQueryEnum(r, "type", enums.ParseChargeType)
	if err != nil {
		return ledger.ListChargesQuery{}, err
	}
	source, err := validators.ParseQueryEnum(r, "source", enums.ParseChargeSource)
	if err != nil {
		return ledger.ListChargesQuery{}, err
	}
	includeDeleted, err := validators.ParseQueryBool(r, "include_deleted")
	if err != nil {
		return ledger.ListChargesQuery{}, err
	}
	return ledger.ListChargesQuery{
		MemberID:       memberID,
		Type:           chargeType,
		Source:         source,
		IncludeDeleted: includeDeleted,
		Limit:          limit,
		Cursor:         cursor,
	}, nil
}

type createChargeRequest struct {
	MemberEmail string `json:"member_email" validate:"required,email"`
	Description string `json:"description" validate:"required,max=200"`
	AmountPence int64  `json:"amount_pence" validate:"gt=0"`
	ChargeDate  string `json:"charge_date" validate:"omitempty,isodate"`
}

// CreateCharge records a manual charge raised by staff. It is unpaid until a
// payment settles it.
func CreateCharge(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		var req createChargeRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := ledger.CreateChargeInput{
			MemberEmail: req.MemberEmail,
			Description: validators.SanitizeString(req.Description, maxDescriptionLen),
			AmountPence: req.AmountPence,
			Type:        enums.ChargeTypeManual,
			Source:      enums.ChargeSourceAdmin,
			CreatedBy:   middleware.ActorFromContext(r.Context()),
		}
		if req.ChargeDate != "" {
			// validated by the isodate tag
			input.ChargeDate, _ = time.Parse(time.DateOnly, req.ChargeDate)
		}

		result, err := svc.CreateCharge(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if result.Reason == ledger.ReasonNoMember {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no member with that email"))
			return
		}

		charge, err := svc.GetCharge(r.Context(), result.ChargeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"charge_id": charge.ID.String(),
				"member_id": charge.MemberID.String(),
			})
			logg.Info(ctx, "manual charge created")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, charge)
	}
}

// Aggregates buckets charges dated within [from, to] by derived status.
func Aggregates(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		from, err := validators.ParseQueryDate(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryDate(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		agg, err := svc.ComputeAggregates(r.Context(), ledger.DateRange{From: from, To: to})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, agg)
	}
}

type deleteChargeRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// DeleteCharge soft deletes an unsettled charge on behalf of the caller.
func DeleteCharge(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		chargeID, err := validators.ParseUUID(chi.URLParam(r, "chargeId"), "chargeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req deleteChargeRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason := validators.SanitizeString(req.Reason, maxReasonLen)
		if strings.TrimSpace(reason) == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reason is required"))
			return
		}

		actor := middleware.ActorFromContext(r.Context())
		if err := svc.SoftDelete(r.Context(), chargeID, actor, reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		charge, err := svc.GetCharge(r.Context(), chargeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(r.Context(), "charge_id", chargeID.String()), "charge soft deleted")
		}
		responses.WriteSuccess(w, charge)
	}
}
