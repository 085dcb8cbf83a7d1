package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redisadapter "github.com/tumaini/tikiti/internal/adapters/redis"
	"github.com/tumaini/tikiti/internal/observability"
)

func SetupRouter(h *Handlers, logger observability.Logger, cache *redisadapter.Cache, jwtSecret string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)
	r.Use(TracingMiddleware)

	// The callback comes from the gateway, not an authenticated user.
	r.Post("/v1/payments/callback", h.PaymentCallback)

	r.Group(func(r chi.Router) {
		r.Use(JWTMiddleware(jwtSecret))
		if cache != nil {
			r.Use(RateLimitMiddleware(cache))
		}

		r.Group(func(r chi.Router) {
			r.Use(IdempotencyKeyMiddleware)
			r.Post("/v1/bookings", h.CreateBooking)
		})

		r.Get("/v1/bookings/{id}", h.GetBooking)
		r.Post("/v1/bookings/{id}/cancel", h.CancelBooking)
		r.Post("/v1/payments/{id}/resend", h.ResendPayment)
		r.Get("/v1/tickets/{id}/qr", h.TicketQR)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/v1/admin/payments/{id}/decision", h.AdminPaymentDecision)
		})
	})

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
