package admin

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/clubpay-backend/api/responses"
	"github.com/angelmondragon/clubpay-backend/api/validators"
	"github.com/angelmondragon/clubpay-backend/internal/ledger"
	"github.com/angelmondragon/clubpay-backend/internal/members"
	"github.com/angelmondragon/clubpay-backend/internal/memberships"
	pkgerrors "github.com/angelmondragon/clubpay-backend/pkg/errors"
	"github.com/angelmondragon/clubpay-backend/pkg/logger"
)

type membershipLister interface {
	ListForMember(ctx context.Context, memberID uuid.UUID) ([]memberships.MembershipDTO, error)
}

type chargeLister interface {
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]ledger.ChargeDTO, error)
}

type memberView struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	StripeCustomerID *string   `json:"stripe_customer_id,omitempty"`
}

type memberDetail struct {
	Member      memberView                  `json:"member"`
	Memberships []memberships.MembershipDTO `json:"memberships"`
	Charges     []ledger.ChargeDTO          `json:"charges"`
}

// MemberDetail returns a member with their memberships (juniors included) and
// full charge history.
func MemberDetail(repo members.Repository, ms membershipLister, charges chargeLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil || ms == nil || charges == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "member services unavailable"))
			return
		}

		memberID, err := validators.ParseUUID(chi.URLParam(r, "memberId"), "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		member, err := repo.FindByID(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load member"))
			return
		}
		if member == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "member not found"))
			return
		}

		rows, err := ms.ListForMember(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		history, err := charges.ListByMember(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, memberDetail{
			Member: memberView{
				ID:               member.ID,
				Name:             member.Name,
				Email:            member.Email,
				StripeCustomerID: member.StripeCustomerID,
			},
			Memberships: rows,
			Charges:     history,
		})
	}
}
