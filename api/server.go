/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:      Unique ID per request for tracing
  2. RealIP:         Client address from proxy headers
  3. RequestLogger:  zerolog line per request, logger in context
  4. Recoverer:      Panic recovery (500 instead of crash)
  5. CORS:           Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /healthz              Liveness + database ping (public)
  /webhooks/gateway     Payment gateway callbacks (HMAC signed, no actor)
  /api/*                Actor headers required; staff-only routes marked
  /api/entries          Balance log (staff)
  /api/audit            Live audit, or ?cached=1 for the last scheduled pass

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Authenticate / RequireRole
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// RouterOptions carries the wiring that isn't part of Handler.
type RouterOptions struct {
	Logger      zerolog.Logger
	CORSOrigins []string
	// Webhook receives gateway callbacks. Nil disables the route.
	Webhook http.Handler
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", HeaderActorID, HeaderActorRole},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	if opts.Webhook != nil {
		r.Method(http.MethodPost, "/webhooks/gateway", opts.Webhook)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate)

		// Alumni routes
		r.Route("/alumni", func(r chi.Router) {
			r.With(staffOnly).Get("/", h.ListAlumni)
			r.With(staffOnly).Post("/", h.CreateAlumni)
			r.Get("/{id}", h.GetAlumni)
			r.Get("/{id}/statement", h.GetStatement)
			r.Post("/{id}/pledges", h.CreatePledge)
			r.Post("/{id}/payments", h.AddPayment)
		})

		// Pledge routes
		r.Route("/pledges", func(r chi.Router) {
			r.Use(RequireRole(RoleStaff, RoleAdmin, RoleAlumni))
			r.Get("/", h.ListPledges)
			r.Get("/{id}", h.GetPledge)
			r.Patch("/{id}/status", h.UpdatePledgeStatus)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Use(RequireRole(RoleStaff, RoleAdmin, RoleAlumni))
			r.Get("/", h.ListPayments)
			r.Get("/{id}", h.GetPayment)
			r.With(staffOnly).Post("/{id}/verify", h.VerifyPayment)
			r.With(staffOnly).Post("/{id}/reverse", h.ReversePayment)
		})

		// Fund routes
		r.Route("/funds", func(r chi.Router) {
			r.Get("/", h.ListFunds)
			r.With(staffOnly).Post("/", h.CreateFund)
			r.Get("/{id}", h.GetFund)
			r.With(staffOnly).Post("/{id}/topup", h.TopUpFund)
			r.With(staffOnly).Post("/{id}/active", h.SetFundActive)
			r.Get("/{id}/expenses", h.ListExpenses)
			r.With(staffOnly).Post("/{id}/expenses", h.CreateExpense)
		})

		// Event routes
		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.With(staffOnly).Post("/", h.CreateEvent)
		})

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/dashboard", h.Dashboard)
			r.With(staffOnly).Get("/funds", h.FundReport)
			r.With(staffOnly).Get("/pledges", h.PledgeReport)
			r.With(staffOnly).Get("/payments", h.PaymentReport)
		})

		r.With(staffOnly).Get("/audit", h.Audit)
		r.With(staffOnly).Get("/entries", h.ListEntries)
	})

	return r
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports liveness, and database reachability when the store can ping.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Engine.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unreachable", "unavailable", nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
