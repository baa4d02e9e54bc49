package cron

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/clubpay-backend/internal/reconcile"
	"github.com/angelmondragon/clubpay-backend/pkg/logger"
)

const ReconcileJobName = "historical-reconcile"

type reconciler interface {
	Run(ctx context.Context) (reconcile.SyncResult, error)
}

// ReconcileJobParams configures the scheduled historical import.
type ReconcileJobParams struct {
	Logger     *logger.Logger
	Reconciler reconciler
}

// NewReconcileJob builds the job that imports the processor's charge history.
func NewReconcileJob(params ReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &reconcileJob{logg: params.Logger, reconciler: params.Reconciler}, nil
}

type reconcileJob struct {
	logg       *logger.Logger
	reconciler reconciler
}

func (j *reconcileJob) Name() string { return ReconcileJobName }

// Run treats a run held by another process as done. Per-member failures are
// folded into the job error so the failure metric moves.
func (j *reconcileJob) Run(ctx context.Context) error {
	result, err := j.reconciler.Run(ctx)
	if reconcile.IsRunInProgress(err) {
		j.logg.Info(ctx, "reconciliation already running elsewhere; skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	var errs error
	for _, msg := range result.Errors {
		errs = multierr.Append(errs, errors.New(msg))
	}
	if omitted := result.ErrorCount - len(result.Errors); omitted > 0 {
		errs = multierr.Append(errs, fmt.Errorf("%d further member errors omitted", omitted))
	}
	return errs
}
