package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/campusdigs/campusdigs-backend/internal/audit"
	"github.com/campusdigs/campusdigs-backend/internal/bookings"
	"github.com/campusdigs/campusdigs-backend/internal/cron"
	"github.com/campusdigs/campusdigs-backend/internal/payments"
	"github.com/campusdigs/campusdigs-backend/pkg/config"
	"github.com/campusdigs/campusdigs-backend/pkg/db"
	"github.com/campusdigs/campusdigs-backend/pkg/logger"
	"github.com/campusdigs/campusdigs-backend/pkg/metrics"
	"github.com/campusdigs/campusdigs-backend/pkg/migrate"
	"github.com/campusdigs/campusdigs-backend/pkg/outbox"
	"github.com/campusdigs/campusdigs-backend/pkg/paystack"
	"github.com/campusdigs/campusdigs-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	jobMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)

	gateway, err := paystack.NewClient(ctx, cfg.Paystack, cfg.Payment.Currency, paymentMetrics, logg)
	if err != nil {
		return fmt.Errorf("paystack client: %w", err)
	}
	intents, err := payments.NewRedisIntentStore(redisClient, cfg.Payment.IntentTTL)
	if err != nil {
		return fmt.Errorf("intent store: %w", err)
	}

	conn := dbClient.DB()
	auditService, err := audit.NewService(audit.NewRepository(conn), logg, paymentMetrics)
	if err != nil {
		return fmt.Errorf("audit service: %w", err)
	}
	outboxRepo := outbox.NewRepository(conn)

	reconciler, err := payments.NewReconciler(payments.ReconcilerParams{
		Payments: payments.NewRepository(conn),
		Bookings: bookings.NewRepository(conn),
		Gateway:  gateway,
		Intents:  intents,
		Audit:    auditService,
		Outbox:   outbox.NewService(outboxRepo, logg),
		Tx:       dbClient,
		Metrics:  paymentMetrics,
		Config:   cfg.Payment,
		Logger:   logg,
	})
	if err != nil {
		return fmt.Errorf("payment reconciler: %w", err)
	}

	sweepJob, err := cron.NewPaymentSweepJob(cron.PaymentSweepJobParams{
		Logger:     logg,
		Intents:    intents,
		Reconciler: reconciler,
		Grace:      cfg.Payment.SweepGrace,
		BatchSize:  cfg.Payment.SweepBatchSize,
	})
	if err != nil {
		return fmt.Errorf("payment sweep job: %w", err)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outboxRepo,
		Retention:   cfg.Outbox.Retention,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("outbox retention job: %w", err)
	}
	jobs, err := cron.NewRegistry(sweepJob, retentionJob)
	if err != nil {
		return fmt.Errorf("register cron jobs: %w", err)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), 0)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer); err != nil {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

// lockName scopes the cron lease per environment so staging and prod can share a Redis.
func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("cron-worker:%s", env)
}

func closeQuietly(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+what, err)
	}
}
