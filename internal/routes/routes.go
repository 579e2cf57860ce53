package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BradenHooton/metered-finance/internal/handlers"
	"github.com/BradenHooton/metered-finance/internal/metering"
	"github.com/BradenHooton/metered-finance/internal/models"
)

// Handlers groups the HTTP handlers bound by RegisterRoutes
type Handlers struct {
	APIKeys *handlers.APIKeyHandler
	Usage   *handlers.UsageHandler
	Health  *handlers.HealthHandler
}

// RegisterRoutes registers all application routes. ipLimit runs before any credential
// is verified; every /api route then passes through the metering pipeline.
func RegisterRoutes(
	router chi.Router,
	pipeline *metering.Pipeline,
	h Handlers,
	ipLimit func(http.Handler) http.Handler,
) {
	// Unauthenticated operational endpoints
	router.Get("/health/live", h.Health.Live)
	router.Get("/health/ready", h.Health.Ready)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Use(ipLimit)

		// Client tier: API key, metered
		r.With(pipeline.Client("")).Get("/usage", h.Usage.GetUsage)
		r.With(pipeline.Client(models.ScopeReporting)).Get("/usage/daily", h.Usage.GetDailyUsage)

		// Admin tier: shared admin key, never metered
		r.Route("/admin", func(r chi.Router) {
			r.Use(pipeline.Admin())

			r.Post("/keys", h.APIKeys.CreateAPIKey)
			r.Get("/keys", h.APIKeys.ListAPIKeys)
			r.Get("/keys/{key_id}", h.APIKeys.GetAPIKey)
			r.Patch("/keys/{key_id}", h.APIKeys.UpdateAPIKey)
			r.Delete("/keys/{key_id}", h.APIKeys.DeleteAPIKey)

			r.Get("/usage/{key_id}", h.Usage.GetKeyUsage)
		})
	})
}
