// Package reconcile re-derives the charge ledger from the payment processor's
// complete charge history. It is the pull-side counterpart of the webhook
// handlers and converges on the same dedup key, so reruns are no-ops.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/clubpay-backend/internal/ledger"
	"github.com/angelmondragon/clubpay-backend/internal/members"
	"github.com/angelmondragon/clubpay-backend/internal/payments"
	"github.com/angelmondragon/clubpay-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/clubpay-backend/pkg/errors"
	"github.com/angelmondragon/clubpay-backend/pkg/logger"
	"github.com/angelmondragon/clubpay-backend/pkg/metrics"
)

const (
	DefaultMaxErrors = 50
	// LockName is the shared lock both the admin trigger and the cron job take.
	LockName = "reconcile"
)

// Lock keeps two processes from importing at once.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type ServiceParams struct {
	Gateway   payments.Gateway
	Ledger    ledger.Service
	Members   members.Repository
	Lock      Lock
	Metrics   *metrics.ReconcileMetrics
	Logger    *logger.Logger
	MaxErrors int
	Clock     func() time.Time
}

type Service struct {
	gateway   payments.Gateway
	ledger    ledger.Service
	members   members.Repository
	lock      Lock
	metrics   *metrics.ReconcileMetrics
	logg      *logger.Logger
	maxErrors int
	now       func() time.Time
	group     singleflight.Group
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Gateway == nil {
		return nil, fmt.Errorf("payments gateway required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Members == nil {
		return nil, fmt.Errorf("members repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	maxErrors := params.MaxErrors
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		gateway:   params.Gateway,
		ledger:    params.Ledger,
		members:   params.Members,
		lock:      params.Lock,
		metrics:   params.Metrics,
		logg:      params.Logger,
		maxErrors: maxErrors,
		now:       now,
	}, nil
}

// Run imports every member's charge history. Callers arriving while a run is
// in flight in this process share its result. A canceled context stops the
// run between charges and returns the partial result with the context error.
func (s *Service) Run(ctx context.Context) (SyncResult, error) {
	v, err, _ := s.group.Do("reconcile", func() (any, error) {
		return s.runLocked(ctx)
	})
	result, _ := v.(SyncResult)
	return result, err
}

func (s *Service) runLocked(ctx context.Context) (SyncResult, error) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx)
		if err != nil {
			return SyncResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire reconcile lock")
		}
		if !acquired {
			return SyncResult{}, runInProgress()
		}
		defer func() {
			releaseCtx := context.WithoutCancel(ctx)
			if err := s.lock.Release(releaseCtx); err != nil {
				s.logg.Error(releaseCtx, "failed to release reconcile lock", err)
			}
		}()
	}

	result, err := s.run(ctx)
	result.FinishedAt = s.now().UTC()
	s.metrics.ObserveRun(result.counts(), result.Interrupted)
	logCtx := s.logg.WithFields(context.WithoutCancel(ctx), map[string]any{
		"members_scanned":      result.MembersScanned,
		"customers_linked":     result.CustomersLinked,
		"processed":            result.Processed,
		"created":              result.Created,
		"skipped_duplicate":    result.SkippedDuplicate,
		"skipped_self_service": result.SkippedSelfService,
		"skipped_no_member":    result.SkippedNoMember,
		"skipped_failed":       result.SkippedFailed,
		"errors":               result.ErrorCount,
		"interrupted":          result.Interrupted,
	})
	s.logg.Info(logCtx, "reconciliation finished")
	return result, err
}

func (s *Service) run(ctx context.Context) (SyncResult, error) {
	result := SyncResult{StartedAt: s.now().UTC(), Errors: []string{}}

	all, err := s.members.ListAll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			result.Interrupted = true
			return result, ctx.Err()
		}
		return result, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list members")
	}

	for i := range all {
		if ctx.Err() != nil {
			result.Interrupted = true
			return result, ctx.Err()
		}
		member := &all[i]
		result.MembersScanned++
		if err := s.syncMember(ctx, member, &result); err != nil {
			if ctx.Err() != nil {
				result.Interrupted = true
				return result, ctx.Err()
			}
			result.addError(s.maxErrors, "member %s (%s): %v", member.ID, member.Email, err)
		}
	}
	return result, nil
}

func (s *Service) syncMember(ctx context.Context, member *models.Member, result *SyncResult) error {
	customerID, err := s.customerID(ctx, member, result)
	if err != nil {
		return err
	}
	if customerID == "" {
		return nil
	}
	memberCtx := s.logg.WithMemberID(ctx, member.ID.String())
	return s.gateway.ListCharges(memberCtx, customerID, func(charge payments.Charge) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return s.importCharge(memberCtx, member, charge, result)
	})
}

// customerID returns the cached processor customer, backfilling it by email
// when missing. A member the processor has never seen yields "".
func (s *Service) customerID(ctx context.Context, member *models.Member, result *SyncResult) (string, error) {
	if member.StripeCustomerID != nil && *member.StripeCustomerID != "" {
		return *member.StripeCustomerID, nil
	}
	customers, err := s.gateway.CustomersByEmail(ctx, member.Email)
	if err != nil {
		return "", err
	}
	for _, customer := range customers {
		if customer.Deleted || customer.ID == "" {
			continue
		}
		if err := s.members.SetStripeCustomerID(ctx, member.ID, customer.ID); err != nil {
			return "", fmt.Errorf("backfill stripe customer id: %w", err)
		}
		id := customer.ID
		member.StripeCustomerID = &id
		result.CustomersLinked++
		return customer.ID, nil
	}
	return "", nil
}

// IsRunInProgress reports whether err came from a lost lock race.
func IsRunInProgress(err error) bool {
	return errors.Is(err, ErrRunInProgress)
}
