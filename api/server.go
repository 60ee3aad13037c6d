/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the HR frontend
  5. Auth:       Bearer token on every /api route

ROUTE GROUPS:
  /api/employees/*      Employees, balances and their requests
  /api/requests/*       Review queue and transitions
  /api/holidays/*       Holiday calendar
  /api/business-days    Working-day counter
  /api/admin/*          Batch operations, audit and export (admin only)
  /healthz              Liveness probe (no auth)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token verification and role checks
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *Authenticator, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.With(RequireAdmin).Get("/", h.ListEmployees)
			r.With(RequireAdmin).Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.With(RequireAdmin).Put("/{id}/hire-date", h.SetHireDate)

			r.Get("/{id}/balance", h.GetBalance)
			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Post("/{id}/balance/grant", h.GrantDays)
				r.Post("/{id}/balance/consume", h.ConsumeDays)
				r.Put("/{id}/balance/total", h.SetTotal)
				r.Post("/{id}/balance/reset", h.ResetBalance)
				r.Post("/{id}/balance/recompute", h.RecomputeBalance)
			})

			r.Get("/{id}/requests", h.ListEmployeeRequests)
			r.Post("/{id}/requests", h.CreateRequest)
		})

		// Request approval routes
		r.Route("/requests", func(r chi.Router) {
			r.With(RequireAdmin).Get("/pending", h.ListPendingRequests)
			r.With(RequireAdmin).Post("/{id}/approve", h.ApproveRequest)
			r.With(RequireAdmin).Post("/{id}/reject", h.RejectRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
		})

		// Holiday routes
		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.With(RequireAdmin).Post("/", h.CreateHoliday)
			r.With(RequireAdmin).Post("/defaults", h.AddDefaultHolidays)
			r.With(RequireAdmin).Delete("/{date}", h.DeleteHoliday)
		})

		r.Get("/business-days", h.BusinessDays)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/recompute", h.RecomputeAll)
			r.Post("/grants/anniversary", h.GrantAnniversaries)
			r.Get("/reconciliation/runs", h.ListReconciliationRuns)
			r.Get("/audit", h.ListAudit)
			r.Get("/balances/export", h.ExportBalances)
		})
	})

	return r
}
