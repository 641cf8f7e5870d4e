package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/receptionist-billing/internal/auth"
	"github.com/frahmantamala/receptionist-billing/internal/payment"
	"github.com/frahmantamala/receptionist-billing/internal/transport/middleware"
	"github.com/frahmantamala/receptionist-billing/internal/transport/swagger"
)

// Routes is everything the HTTP surface is built from. Nil handlers leave
// their routes unregistered.
type Routes struct {
	Health         *HealthHandler
	Auth           *auth.Handler
	Payments       *payment.Handler
	Webhook        *payment.WebhookHandler
	WebhookLimiter *middleware.RateLimiter
	OpenAPISpec    []byte
	AllowedOrigins []string
	Logger         *slog.Logger
}

func RegisterAllRoutes(router chi.Router, routes Routes) {
	logger := routes.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router.Use(middleware.CORS(routes.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	if len(routes.OpenAPISpec) > 0 {
		router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(routes.OpenAPISpec)
		})
		router.Handle("/swagger/*", swagger.Handler())
	}

	if routes.Health != nil {
		router.Get("/health", routes.Health.Health)
		router.Get("/ping", routes.Health.Ping)
	}

	router.Route("/payments", func(r chi.Router) {
		// The gateway calls this without credentials.
		if routes.Webhook != nil {
			r.Group(func(wr chi.Router) {
				if routes.WebhookLimiter != nil {
					wr.Use(routes.WebhookLimiter.Middleware())
				}
				wr.Post("/webhook", routes.Webhook.HandleNotification)
			})
		}

		if routes.Auth == nil || routes.Payments == nil {
			return
		}

		r.Group(func(pr chi.Router) {
			pr.Use(routes.Auth.AuthMiddleware)

			pr.Post("/create-order", routes.Payments.CreateOrder)
			pr.Get("/user/{userId}", routes.Payments.ListByUser)
			pr.Get("/action/{actionId}", routes.Payments.ListByAction)
			pr.Get("/{id}", routes.Payments.GetPayment)

			pr.Group(func(ar chi.Router) {
				ar.Use(middleware.RequireAdmin(logger))
				ar.Patch("/{id}/status", routes.Payments.UpdateStatus)
			})
		})
	})
}
