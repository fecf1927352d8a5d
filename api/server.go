/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontends

ROUTE GROUPS:
  /api/employees/*        Lifecycle events, assignments, balances, entries
  /api/events/*           Event deletion
  /api/policies/*         Time-off policy catalog
  /api/categories         Time-off categories
  /api/working-places     Working place catalog
  /api/presence-policies  Presence policy catalog
  /api/scenarios/*        Demo scenarios
  /metrics                Prometheus metrics (when a handler is given)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. metrics may be
// nil.
func NewRouter(h *Handler, metrics http.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Employee routes
		r.Route("/employees/{id}", func(r chi.Router) {
			r.Get("/events", h.ListEvents)
			r.Post("/events", h.RecordEvent)
			r.Get("/assignments", h.ListAssignments)
			r.Post("/assignments", h.Assign)
			r.Delete("/assignments/{dimension}/{interval}", h.DestroyInterval)
			r.Get("/assignments/{dimension}/{interval}/sequence", h.GetSequence)
			r.Get("/balance", h.GetBalance)
			r.Get("/entries", h.ListEntries)
			r.Post("/entries", h.RecordEntry)
		})

		r.Delete("/events/{id}", h.DeleteEvent)

		// Catalog routes
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.CreatePolicy)
			r.Get("/{id}", h.GetPolicy)
		})
		r.Get("/categories", h.ListCategories)
		r.Post("/categories", h.CreateCategory)
		r.Post("/working-places", h.CreateWorkingPlace)
		r.Post("/presence-policies", h.CreatePresencePolicy)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	return r
}
