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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/clubpay-backend/internal/cron"
	"github.com/angelmondragon/clubpay-backend/internal/ledger"
	"github.com/angelmondragon/clubpay-backend/internal/members"
	"github.com/angelmondragon/clubpay-backend/internal/payments"
	"github.com/angelmondragon/clubpay-backend/internal/reconcile"
	"github.com/angelmondragon/clubpay-backend/pkg/config"
	"github.com/angelmondragon/clubpay-backend/pkg/db"
	"github.com/angelmondragon/clubpay-backend/pkg/instance"
	"github.com/angelmondragon/clubpay-backend/pkg/logger"
	"github.com/angelmondragon/clubpay-backend/pkg/metrics"
	"github.com/angelmondragon/clubpay-backend/pkg/migrate"
	"github.com/angelmondragon/clubpay-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/clubpay-backend/pkg/stripe"
)

const metricsAddrEnv = "CLUBPAY_CRON_METRICS_ADDR"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
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

	registry := prometheus.NewRegistry()

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
	reconcileJob, err := cron.NewReconcileJob(cron.ReconcileJobParams{Logger: logg, Reconciler: reconciler})
	if err != nil {
		return err
	}

	cycleLock, err := cron.NewRedisLock(redisClient, redis.LockKey("cron-worker:"+envName(cfg.App.Env)), cfg.Reconcile.LockTTL)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(reconcileJob),
		Lock:       cycleLock,
		Metrics:    metrics.NewCronJobMetrics(registry),
		Interval:   cfg.Reconcile.Interval,
		// a job never outlives the reconcile lease
		JobTimeout: cfg.Reconcile.LockTTL,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting cron worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return service.Run(groupCtx)
	})
	if addr := os.Getenv(metricsAddrEnv); addr != "" {
		server := &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		group.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}
	return group.Wait()
}

func envName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
