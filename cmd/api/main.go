package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/campusdigs/campusdigs-backend/api/controllers"
	"github.com/campusdigs/campusdigs-backend/api/routes"
	"github.com/campusdigs/campusdigs-backend/internal/audit"
	"github.com/campusdigs/campusdigs-backend/internal/bookings"
	"github.com/campusdigs/campusdigs-backend/internal/cancellation"
	"github.com/campusdigs/campusdigs-backend/internal/payments"
	"github.com/campusdigs/campusdigs-backend/internal/properties"
	"github.com/campusdigs/campusdigs-backend/internal/settings"
	paystackwebhook "github.com/campusdigs/campusdigs-backend/internal/webhooks/paystack"
	"github.com/campusdigs/campusdigs-backend/pkg/config"
	"github.com/campusdigs/campusdigs-backend/pkg/db"
	"github.com/campusdigs/campusdigs-backend/pkg/logger"
	"github.com/campusdigs/campusdigs-backend/pkg/metrics"
	"github.com/campusdigs/campusdigs-backend/pkg/migrate"
	"github.com/campusdigs/campusdigs-backend/pkg/outbox"
	"github.com/campusdigs/campusdigs-backend/pkg/paystack"
	"github.com/campusdigs/campusdigs-backend/pkg/redis"
)

const webhookScope = "paystack-webhook"

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

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	gateway, err := paystack.NewClient(context.Background(), cfg.Paystack, cfg.Payment.Currency, paymentMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack client", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	auditService, err := audit.NewService(audit.NewRepository(conn), logg, paymentMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}
	rates, err := settings.NewService(settings.NewRepository(conn), cfg.Booking.DefaultCommissionRate, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create settings service", err)
		os.Exit(1)
	}
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)
	bookingRepo := bookings.NewRepository(conn)

	bookingService, err := bookings.NewService(bookings.ServiceParams{
		Repo:       bookingRepo,
		Properties: properties.NewRepository(conn),
		Rates:      rates,
		Audit:      auditService,
		Outbox:     outboxService,
		Tx:         dbClient,
		Policy:     cancellation.NewPolicy(cfg.Cancellation),
		Config:     cfg.Booking,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bookings service", err)
		os.Exit(1)
	}

	intents, err := payments.NewRedisIntentStore(redisClient, cfg.Payment.IntentTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create intent store", err)
		os.Exit(1)
	}

	initiator, err := payments.NewInitiator(payments.InitiatorParams{
		Bookings:    bookingRepo,
		Gateway:     gateway,
		Intents:     intents,
		Config:      cfg.Payment,
		CallbackURL: cfg.Paystack.CallbackURL,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment initiator", err)
		os.Exit(1)
	}

	reconciler, err := payments.NewReconciler(payments.ReconcilerParams{
		Payments: payments.NewRepository(conn),
		Bookings: bookingRepo,
		Gateway:  gateway,
		Intents:  intents,
		Audit:    auditService,
		Outbox:   outboxService,
		Tx:       dbClient,
		Metrics:  paymentMetrics,
		Config:   cfg.Payment,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment reconciler", err)
		os.Exit(1)
	}

	webhookService, err := paystackwebhook.NewService(paystackwebhook.ServiceParams{Reconciler: reconciler, Logger: logg})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := paystackwebhook.NewIdempotencyGuard(redisClient, cfg.Payment.WebhookEventTTL, webhookScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			Ready:          map[string]controllers.Pinger{"db": dbClient, "redis": redisClient},
			Idempotency:    redisClient,
			Gatherer:       registry,
			Bookings:       bookingService,
			Initiator:      initiator,
			Reconciler:     reconciler,
			WebhookService: webhookService,
			WebhookGuard:   webhookGuard,
			Signatures:     gateway,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
