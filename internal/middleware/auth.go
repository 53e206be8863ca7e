// Package middleware provides HTTP middleware for folio.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"folio/internal/auth"
	"folio/internal/authz"
	"folio/internal/identity"
	"folio/internal/profile"
	"folio/internal/session"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// SessionContextKey is the context key for the validated session.
	SessionContextKey contextKey = "session"
	// ProfileContextKey is the context key for the caller's profile.
	ProfileContextKey contextKey = "profile"
)

// GetSession retrieves the validated session from the request context.
func GetSession(ctx context.Context) (*identity.Session, bool) {
	s, ok := ctx.Value(SessionContextKey).(*identity.Session)
	return s, ok
}

// GetProfile retrieves the caller's profile from the request context.
func GetProfile(ctx context.Context) (*profile.Profile, bool) {
	p, ok := ctx.Value(ProfileContextKey).(*profile.Profile)
	return p, ok
}

// Auth gates routes on the caller's session. Every request is resolved
// afresh; nothing is cached between requests.
type Auth struct {
	sessions *session.Factory
	metrics  *Metrics
	logger   *slog.Logger
}

// NewAuth creates the auth middleware. metrics may be nil.
func NewAuth(sessions *session.Factory, metrics *Metrics, logger *slog.Logger) *Auth {
	return &Auth{sessions: sessions, metrics: metrics, logger: logger}
}

// RequireIdentity admits any caller holding a valid session, whether or not
// a profile exists for it. Only the session is attached to the context.
func (a *Auth) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := a.sessions.For(r)

		sess, ok := a.session(w, r, res)
		if !ok {
			return
		}

		a.metrics.recordDecision(string(authz.ReasonNone))
		ctx := context.WithValue(r.Context(), SessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSession admits any active profile.
//
// Error responses:
//   - 401 Unauthorized: no session, or an invalid or expired one
//   - 403 Forbidden: inactive profile, or no profile for the identity
//   - 503 Service Unavailable: the identity service or profile store failed
func (a *Auth) RequireSession(next http.Handler) http.Handler {
	return a.gate(next, authz.AuthorizeAuthenticated)
}

// RequireRole admits only active profiles holding exactly role.
func (a *Auth) RequireRole(role profile.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return a.gate(next, func(p *profile.Profile) authz.Decision {
			return authz.Authorize(p, role)
		})
	}
}

// RequireAdmin is RequireRole(profile.RoleAdmin).
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return a.RequireRole(profile.RoleAdmin)(next)
}

func (a *Auth) gate(next http.Handler, decide func(*profile.Profile) authz.Decision) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := a.sessions.For(r)

		sess, ok := a.session(w, r, res)
		if !ok {
			return
		}

		p, err := res.Profile(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}

		d := decide(p)
		if !d.Allowed {
			a.metrics.recordDecision(string(d.Reason))
			a.logger.Info("request denied",
				"path", r.URL.Path,
				"identity_id", sess.Identity.ID,
				"reason", d.Reason,
			)
			auth.WriteError(w, d.Err())
			return
		}

		a.metrics.recordDecision(string(authz.ReasonNone))
		ctx := context.WithValue(r.Context(), SessionContextKey, sess)
		ctx = context.WithValue(ctx, ProfileContextKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) session(w http.ResponseWriter, r *http.Request, res *session.Resolver) (*identity.Session, bool) {
	sess, err := res.Session(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	if sess == nil {
		a.metrics.recordDecision(string(authz.ReasonUnauthenticated))
		auth.WriteUnauthorized(w)
		return nil, false
	}
	return sess, true
}

func (a *Auth) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case auth.Retryable(err):
		a.metrics.recordDecision("upstream_error")
		a.logger.Warn("session resolution failed", "path", r.URL.Path, "error", err)
	case errors.Is(err, auth.ErrProfileMissing):
		a.metrics.recordDecision("profile_missing")
	default:
		a.metrics.recordDecision("resolution_error")
		a.logger.Error("unexpected session resolution error", "path", r.URL.Path, "error", err)
	}
	auth.WriteError(w, err)
}
