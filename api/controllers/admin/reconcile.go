package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/clubpay-backend/api/middleware"
	"github.com/angelmondragon/clubpay-backend/api/responses"
	"github.com/angelmondragon/clubpay-backend/internal/reconcile"
	pkgerrors "github.com/angelmondragon/clubpay-backend/pkg/errors"
	"github.com/angelmondragon/clubpay-backend/pkg/logger"
)

type reconciler interface {
	Run(ctx context.Context) (reconcile.SyncResult, error)
}

// Reconcile runs historical reconciliation synchronously and returns its
// SyncResult. A run already in progress anywhere yields 409. A positive
// timeout bounds the run; pass the lease TTL so a run never outlives its lock.
func Reconcile(svc reconciler, timeout time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation unavailable"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "actor", middleware.ActorFromContext(ctx))
			logg.Info(ctx, "reconciliation requested")
		}

		// a dropped connection must not abort a run other callers may share
		runCtx := context.WithoutCancel(ctx)
		if timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, timeout)
			defer cancel()
		}
		result, err := svc.Run(runCtx)
		if err != nil {
			if reconcile.IsRunInProgress(err) && logg != nil {
				logg.Info(ctx, "reconciliation already running")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
