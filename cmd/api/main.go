package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/clubpay-backend/api/routes"
	"github.com/angelmondragon/clubpay-backend/internal/classifier"
	"github.com/angelmondragon/clubpay-backend/internal/cron"
	"github.com/angelmondragon/clubpay-backend/internal/ledger"
	"github.com/angelmondragon/clubpay-backend/internal/members"
	"github.com/angelmondragon/clubpay-backend/internal/memberships"
	"github.com/angelmondragon/clubpay-backend/internal/notifications"
	"github.com/angelmondragon/clubpay-backend/internal/payments"
	"github.com/angelmondragon/clubpay-backend/internal/reconcile"
	stripewebhook "github.com/angelmondragon/clubpay-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/clubpay-backend/pkg/config"
	"github.com/angelmondragon/clubpay-backend/pkg/db"
	"github.com/angelmondragon/clubpay-backend/pkg/enums"
	"github.com/angelmondragon/clubpay-backend/pkg/instance"
	"github.com/angelmondragon/clubpay-backend/pkg/logger"
	"github.com/angelmondragon/clubpay-backend/pkg/metrics"
	"github.com/angelmondragon/clubpay-backend/pkg/migrate"
	"github.com/angelmondragon/clubpay-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/clubpay-backend/pkg/stripe"
)

const (
	webhookScope    = "stripe_webhook"
	shutdownTimeout = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return err
	}
	gateway, err := payments.NewStripeGateway(stripeClient)
	if err != nil {
		return err
	}

	resolver, err := classifier.NewResolver(cfg.Classifier.Precedence)
	if err != nil {
		return err
	}
	defaultRenewal, err := enums.ParseMembershipType(cfg.Classifier.DefaultRenewalType)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	conn := dbClient.DB()
	memberRepo := members.NewRepository(conn)
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:         ledger.NewRepository(conn),
		Members:      memberRepo,
		AbandonAfter: cfg.Ledger.AbandonAfter,
	})
	if err != nil {
		return err
	}
	membershipSvc, err := memberships.NewService(memberships.ServiceParams{
		Repo:    memberships.NewRepository(conn),
		Members: memberRepo,
	})
	if err != nil {
		return err
	}

	notifier := notifications.NewNotifier(notifications.NewSender(cfg.Resend, logg), cfg.Resend.AdminEmail, logg)

	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Gateway:            gateway,
		Ledger:             ledgerSvc,
		Memberships:        membershipSvc,
		Members:            memberRepo,
		Notifier:           notifier,
		Resolver:           resolver,
		DefaultRenewalType: defaultRenewal,
		TransactionRunner:  dbClient,
		Logger:             logg,
	})
	if err != nil {
		return err
	}
	guard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, webhookScope)
	if err != nil {
		return err
	}

	reconcileLock, err := cron.NewRedisLock(redisClient, redis.LockKey(reconcile.LockName), cfg.Reconcile.LockTTL)
	if err != nil {
		return err
	}
	reconciler, err := reconcile.NewService(reconcile.ServiceParams{
		Gateway:   gateway,
		Ledger:    ledgerSvc,
		Members:   memberRepo,
		Lock:      reconcileLock,
		Metrics:   metrics.NewReconcileMetrics(registry),
		Logger:    logg,
		MaxErrors: cfg.Reconcile.MaxErrors,
	})
	if err != nil {
		return err
	}

	handler := routes.NewRouter(routes.Params{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		Gatherer:       registry,
		Ledger:         ledgerSvc,
		Members:        memberRepo,
		Memberships:    membershipSvc,
		Reconciler:     reconciler,
		StripeVerifier: stripeClient,
		StripeWebhooks: webhookSvc,
		WebhookGuard:   guard,
		WebhookMetrics: metrics.NewWebhookMetrics(registry),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       server.Addr,
		"stripe_env": stripeClient.Environment(),
		"instance":   instance.GetID(),
	})
	logg.Info(logCtx, "starting api server")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
		defer cancel()
		logg.Info(logCtx, "shutting down api server")
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
