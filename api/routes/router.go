package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campusdigs/campusdigs-backend/api/controllers"
	bookingcontrollers "github.com/campusdigs/campusdigs-backend/api/controllers/bookings"
	paymentcontrollers "github.com/campusdigs/campusdigs-backend/api/controllers/payments"
	webhookcontrollers "github.com/campusdigs/campusdigs-backend/api/controllers/webhooks"
	"github.com/campusdigs/campusdigs-backend/api/middleware"
	"github.com/campusdigs/campusdigs-backend/internal/bookings"
	"github.com/campusdigs/campusdigs-backend/pkg/config"
	"github.com/campusdigs/campusdigs-backend/pkg/enums"
	"github.com/campusdigs/campusdigs-backend/pkg/logger"
	"github.com/campusdigs/campusdigs-backend/pkg/redis"
)

// Deps are the collaborators the HTTP surface routes into.
type Deps struct {
	Ready       map[string]controllers.Pinger
	Idempotency redis.IdempotencyStore
	Gatherer    prometheus.Gatherer

	Bookings   bookings.Service
	Initiator  paymentcontrollers.PaymentInitiator
	Reconciler paymentcontrollers.PaymentReconciler

	WebhookService paystackWebhookService
	WebhookGuard   webhookcontrollers.PaystackWebhookGuard
	Signatures     webhookcontrollers.SignatureVerifier
}

type paystackWebhookService = webhookcontrollers.PaystackWebhookService

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Ready))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/paystack", webhookcontrollers.PaystackWebhook(deps.WebhookService, deps.Signatures, deps.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.App.CORSOrigins))
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", bookingcontrollers.List(deps.Bookings, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleStudent)).
				Post("/", bookingcontrollers.Create(deps.Bookings, logg))

			r.Route("/{bookingId}", func(r chi.Router) {
				r.Get("/", bookingcontrollers.Get(deps.Bookings, logg))
				r.Get("/events", bookingcontrollers.History(deps.Bookings, logg))
				r.Post("/cancel", bookingcontrollers.Cancel(deps.Bookings, logg))

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(logg, enums.ActorRoleLandlord, enums.ActorRoleAdmin))
					r.Post("/approve", bookingcontrollers.Approve(deps.Bookings, logg))
					r.Post("/reject", bookingcontrollers.Reject(deps.Bookings, logg))
					r.Post("/complete", bookingcontrollers.Complete(deps.Bookings, logg))
				})
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.ActorRoleStudent)).
				Post("/initialize", paymentcontrollers.Initialize(deps.Initiator, logg))
			r.Get("/verify/{reference}", paymentcontrollers.Verify(deps.Reconciler, logg))
		})
	})

	return r
}
