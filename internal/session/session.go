// Package session resolves the caller's session and profile on the server.
// A Resolver lives for one request and is never shared between callers.
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"folio/internal/auth"
	"folio/internal/identity"
	"folio/internal/profile"
)

// Validator checks a session token against the identity service.
type Validator interface {
	WhoAmI(ctx context.Context, token string) (*identity.Session, error)
}

// ProfileGetter loads a profile by identity ID.
type ProfileGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*profile.Profile, error)
}

// Factory builds Resolvers. It holds only process-wide dependencies.
type Factory struct {
	CookieName string
	Validator  Validator
	Profiles   ProfileGetter
}

// For returns a Resolver bound to the credentials carried by r.
func (f *Factory) For(r *http.Request) *Resolver {
	token, _ := auth.SessionToken(r, f.CookieName)
	return f.ForToken(token)
}

// ForToken returns a Resolver for an explicit token. An empty token resolves
// as unauthenticated.
func (f *Factory) ForToken(token string) *Resolver {
	return &Resolver{
		token:     token,
		validator: f.Validator,
		profiles:  f.Profiles,
		now:       time.Now,
	}
}

// Resolver answers "who is calling" for a single request. Results are
// memoized for the lifetime of the Resolver.
type Resolver struct {
	token     string
	validator Validator
	profiles  ProfileGetter
	now       func() time.Time

	mu          sync.Mutex
	sessionDone bool
	session     *identity.Session
	sessionErr  error
	profileDone bool
	profile     *profile.Profile
	profileErr  error
}

// Token returns the raw session token, or "" if none was presented.
func (r *Resolver) Token() string {
	return r.token
}

// Session returns the validated session. A missing, invalid or expired token
// yields (nil, nil); a failing identity service yields auth.ErrUpstream.
func (r *Resolver) Session(ctx context.Context) (*identity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveSession(ctx)
}

func (r *Resolver) resolveSession(ctx context.Context) (*identity.Session, error) {
	if r.sessionDone {
		return r.session, r.sessionErr
	}
	r.session, r.sessionErr = r.fetchSession(ctx)
	r.sessionDone = true
	return r.session, r.sessionErr
}

func (r *Resolver) fetchSession(ctx context.Context) (*identity.Session, error) {
	if r.token == "" {
		return nil, nil
	}
	sess, err := r.validator.WhoAmI(ctx, r.token)
	if err != nil {
		if errors.Is(err, identity.ErrNoSession) {
			return nil, nil
		}
		return nil, auth.Upstream(err)
	}
	if !sess.ExpiresAt.IsZero() && !sess.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	return sess, nil
}

// Profile returns the profile of the session's identity. It yields (nil, nil)
// when unauthenticated, auth.ErrProfileMissing when the identity has no
// profile, and auth.ErrUpstream when a remote dependency fails.
func (r *Resolver) Profile(ctx context.Context) (*profile.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.profileDone {
		return r.profile, r.profileErr
	}
	r.profile, r.profileErr = r.fetchProfile(ctx)
	r.profileDone = true
	return r.profile, r.profileErr
}

func (r *Resolver) fetchProfile(ctx context.Context) (*profile.Profile, error) {
	sess, err := r.resolveSession(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	p, err := r.profiles.Get(ctx, sess.Identity.ID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, auth.ErrProfileMissing
		}
		return nil, auth.Upstream(err)
	}
	return p, nil
}
