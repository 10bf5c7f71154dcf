package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/warp/scholarship-ledger/logger"
)

// =============================================================================
// REQUEST LOGGING
// =============================================================================

// RequestLogger logs one line per request and attaches a request-scoped
// logger (carrying the chi request id) to the context.
func RequestLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			log := base.With().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context(), log)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			evt := log.Info()
			if status >= 500 {
				evt = log.Error()
			} else if status >= 400 {
				evt = log.Warn()
			}
			evt.Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// =============================================================================
// ACTOR IDENTITY
// =============================================================================
//
// Authentication happens upstream. The proxy forwards the caller as
//   X-Actor-ID:   opaque user id (for alumni, their AlumniProfile id)
//   X-Actor-Role: student | staff | alumni | admin

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
	RoleAlumni  Role = "alumni"
	RoleAdmin   Role = "admin"
)

func (r Role) valid() bool {
	switch r {
	case RoleStudent, RoleStaff, RoleAlumni, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role Role
}

// Privileged reports whether the actor may act on any record.
func (a Actor) Privileged() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin
}

// CanActFor reports whether the actor may act on the given alumni profile.
func (a Actor) CanActFor(alumniID string) bool {
	return a.Privileged() || (a.Role == RoleAlumni && a.ID == alumniID)
}

type actorKey struct{}

func actorFromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}

// Authenticate rejects requests without a recognised actor.
func Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := Actor{ID: r.Header.Get(HeaderActorID), Role: Role(r.Header.Get(HeaderActorRole))}
		if a.ID == "" || !a.Role.valid() {
			writeError(w, http.StatusUnauthorized, "Missing or invalid actor identity", "unauthenticated", nil)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, a)
		log := logger.FromContext(ctx).With().Str("actor", a.ID).Str("role", string(a.Role)).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(ctx, log)))
	})
}

// RequireRole lets through only actors holding one of roles.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a := actorFromContext(r.Context())
			for _, role := range roles {
				if a.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeForbidden(w)
		})
	}
}

var staffOnly = RequireRole(RoleStaff, RoleAdmin)
