/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:       Request logging
  2. Recoverer:    Panic recovery (500 instead of crash)
  3. RequestID:    Unique ID per request for tracing
  4. CORS:         Cross-origin requests for frontend
  5. Authenticate: Bearer JWT on everything under /api except /api/health

ROUTE GROUPS:
  /api/health               Liveness (public)
  /api/contracts/*          Contract management (landlord; payments also tenant)
  /api/payments/schedule/*  Scheduling engine (landlord)
  /api/audit                Scheduling run history (landlord)
  /api/notifications        Payment reminders (any user)

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Authentication and role checks
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/rent-scheduler/auth"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, issuer *auth.Issuer, origins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(issuer))

			landlord := RequireRole(auth.RoleLandlord)

			r.Get("/notifications", h.ListNotifications)

			// Contract routes
			r.Route("/contracts", func(r chi.Router) {
				r.With(landlord).Get("/", h.ListContracts)
				r.With(landlord).Post("/", h.CreateContract)
				r.With(landlord).Get("/{id}", h.GetContract)
				r.Get("/{id}/payments", h.ListContractPayments)
			})

			// Landlord-only routes
			r.Group(func(r chi.Router) {
				r.Use(landlord)

				r.Route("/payments/schedule", func(r chi.Router) {
					r.Post("/rent", h.ScheduleRent)
					r.Post("/utility", h.ScheduleUtility)
					r.Get("/status/{contractId}", h.GetScheduleStatus)
					r.Post("/fill-gaps", h.FillGaps)
					r.Post("/preview", h.PreviewSchedule)
				})

				r.Get("/audit", h.ListAuditRecords)
			})
		})
	})

	return r
}
