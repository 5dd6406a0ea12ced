/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for a review UI

ROUTE GROUPS:
  /healthz              Liveness (database ping)
  /metrics              Prometheus scrape endpoint
  /api/entries/*        Raw time-entry import and inspection
  /api/rulesets/*       Overtime ruleset configuration
  /api/runs/*           Preview, sync, CSV export and run history

SECURITY NOTE:
  No authentication middleware. Deploy behind a gateway that authenticates
  operators; the payroll credential itself never leaves the process.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/payrun/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	gatherer := h.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Time entry routes
		r.Route("/entries", func(r chi.Router) {
			r.Get("/", h.ListEntries)
			r.Post("/import", h.ImportEntries)
			r.Delete("/", h.DeleteEntries)
		})

		// Ruleset routes
		r.Route("/rulesets", func(r chi.Router) {
			r.Get("/", h.ListRulesets)
			r.Post("/", h.SaveRuleset)
			r.Get("/{id}", h.GetRuleset)
			r.Delete("/{id}", h.DeleteRuleset)
		})

		// Run routes
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.ListRuns)
			r.Get("/period", h.CurrentPeriod)
			r.Post("/preview", h.Preview)
			r.Get("/preview.csv", h.PreviewCSV)
			r.Post("/sync", h.Sync)
		})
	})

	return r
}
