package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/clubpay-backend/api/controllers"
	admincontrollers "github.com/angelmondragon/clubpay-backend/api/controllers/admin"
	webhookcontrollers "github.com/angelmondragon/clubpay-backend/api/controllers/webhooks"
	"github.com/angelmondragon/clubpay-backend/api/middleware"
	"github.com/angelmondragon/clubpay-backend/internal/ledger"
	"github.com/angelmondragon/clubpay-backend/internal/members"
	"github.com/angelmondragon/clubpay-backend/internal/memberships"
	"github.com/angelmondragon/clubpay-backend/internal/reconcile"
	stripewebhook "github.com/angelmondragon/clubpay-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/clubpay-backend/pkg/config"
	"github.com/angelmondragon/clubpay-backend/pkg/enums"
	"github.com/angelmondragon/clubpay-backend/pkg/logger"
	"github.com/angelmondragon/clubpay-backend/pkg/metrics"
)

type stripeVerifier interface {
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

type membershipReader interface {
	ListForMember(ctx context.Context, memberID uuid.UUID) ([]memberships.MembershipDTO, error)
}

type reconciler interface {
	Run(ctx context.Context) (reconcile.SyncResult, error)
}

// Params carries every dependency the HTTP surface needs. Nil pingers are
// skipped by the readiness check.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    controllers.Pinger
	Gatherer prometheus.Gatherer

	Ledger      ledger.Service
	Members     members.Repository
	Memberships membershipReader
	Reconciler  reconciler

	StripeVerifier stripeVerifier
	StripeWebhooks webhookcontrollers.StripeWebhookService
	WebhookGuard   *stripewebhook.IdempotencyGuard
	WebhookMetrics *metrics.WebhookMetrics
}

var (
	readRoles  = []enums.StaffRole{enums.StaffRoleAdmin, enums.StaffRoleTreasurer, enums.StaffRoleCommittee}
	writeRoles = []enums.StaffRole{enums.StaffRoleAdmin, enums.StaffRoleTreasurer}
)

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": p.Redis,
		}))
	})

	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	webhookParams := webhookcontrollers.StripeWebhookParams{
		Service:  p.StripeWebhooks,
		Verifier: p.StripeVerifier,
		Logger:   logg,
	}
	if p.WebhookGuard != nil {
		webhookParams.Guard = p.WebhookGuard
	}
	if p.WebhookMetrics != nil {
		webhookParams.Metrics = p.WebhookMetrics
	}
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(webhookParams))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, readRoles...))
			r.Get("/charges", admincontrollers.ListCharges(p.Ledger, logg))
			r.Get("/charges/aggregates", admincontrollers.Aggregates(p.Ledger, logg))
			r.Get("/members/{memberId}", admincontrollers.MemberDetail(p.Members, p.Memberships, p.Ledger, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, writeRoles...))
			r.Post("/charges", admincontrollers.CreateCharge(p.Ledger, logg))
			r.Delete("/charges/{chargeId}", admincontrollers.DeleteCharge(p.Ledger, logg))
			r.Post("/reconcile", admincontrollers.Reconcile(p.Reconciler, cfg.Reconcile.LockTTL, logg))
		})
	})

	return r
}
