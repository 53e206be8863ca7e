// Package authflow implements sign-in, sign-up, sign-out and password
// operations on top of the identity service and the profile store.
package authflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"folio/internal/auth"
	"folio/internal/events"
	"folio/internal/identity"
	"folio/internal/profile"
	"folio/internal/validation"
)

// DefaultTimeout bounds every identity-service round trip.
const DefaultTimeout = 15 * time.Second

// ProfileStore is the slice of profile.Manager the controller needs.
type ProfileStore interface {
	Get(ctx context.Context, id uuid.UUID) (*profile.Profile, error)
	Create(ctx context.Context, in profile.NewProfile) (*profile.Profile, error)
}

// Redirects are the post-flow destinations.
type Redirects struct {
	Admin   string
	Default string
	Landing string
}

// Config configures a Controller.
type Config struct {
	Timeout   time.Duration
	Redirects Redirects
}

// SignInResult is the outcome of a successful sign-in.
type SignInResult struct {
	Session    *identity.Session
	Profile    *profile.Profile
	RedirectTo string
}

// SignUpResult is the outcome of a successful sign-up. Session is nil when
// the identity service does not sign new accounts in immediately.
type SignUpResult struct {
	Identity   identity.Identity
	Session    *identity.Session
	Profile    *profile.Profile
	RedirectTo string
}

// SignOutResult tells the caller where to go after signing out.
type SignOutResult struct {
	RedirectTo string
}

// Controller runs the authentication flows.
type Controller struct {
	idp       identity.Provider
	profiles  ProfileStore
	events    events.Publisher
	validator *validation.Validator
	redirects Redirects
	timeout   time.Duration
	logger    *slog.Logger
}

// NewController creates a controller. A zero Timeout uses DefaultTimeout.
func NewController(idp identity.Provider, profiles ProfileStore, pub events.Publisher, cfg Config, logger *slog.Logger) *Controller {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := cfg.Redirects
	if r.Admin == "" {
		r.Admin = "/admin"
	}
	if r.Default == "" {
		r.Default = "/"
	}
	if r.Landing == "" {
		r.Landing = "/"
	}
	return &Controller{
		idp:       idp,
		profiles:  profiles,
		events:    pub,
		validator: validation.New(),
		redirects: r,
		timeout:   timeout,
		logger:    logger,
	}
}

type signInInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

type signUpInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=1024"`
	FullName string `json:"full_name" validate:"max=200"`
}

type emailInput struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type passwordInput struct {
	Password string `json:"password" validate:"required,min=8,max=1024"`
}

// SignIn authenticates the credentials and loads the caller's profile. A
// session is only handed back together with an active profile; otherwise the
// freshly issued session is revoked before returning.
func (c *Controller) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	if err := c.validator.Struct(signInInput{Email: email, Password: password}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sess, err := c.idp.SignIn(ctx, email, password)
	if err != nil {
		return nil, c.mapIdentityError("sign in", err)
	}

	p, err := c.profiles.Get(ctx, sess.Identity.ID)
	if err != nil {
		c.revoke(ctx, sess)
		if errors.Is(err, profile.ErrNotFound) {
			c.logger.Warn("sign-in without profile", "identity_id", sess.Identity.ID)
			return nil, auth.ErrProfileMissing
		}
		c.logger.Error("failed to load profile on sign-in", "identity_id", sess.Identity.ID, "error", err)
		return nil, auth.Upstream(err)
	}
	if !p.IsActive {
		c.revoke(ctx, sess)
		c.logger.Info("sign-in rejected for inactive profile", "identity_id", p.ID)
		return nil, auth.ErrAccountDisabled
	}

	c.publish(ctx, events.SignedIn, p.ID)
	return &SignInResult{Session: sess, Profile: p, RedirectTo: c.redirectFor(p)}, nil
}

// SignUp registers a new identity and creates its profile as an active user.
// If the profile cannot be created the identity is kept, so an admin can
// repair it, but any session the identity service issued is revoked.
func (c *Controller) SignUp(ctx context.Context, email, password, fullName string) (*SignUpResult, error) {
	if err := c.validator.Struct(signUpInput{Email: email, Password: password, FullName: fullName}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reg, err := c.idp.SignUp(ctx, email, password, fullName)
	if err != nil {
		return nil, c.mapIdentityError("sign up", err)
	}

	p, err := c.profiles.Create(ctx, profile.NewProfile{
		ID:       reg.Identity.ID,
		Email:    reg.Identity.Email,
		FullName: fullName,
	})
	if errors.Is(err, profile.ErrAlreadyExists) {
		p, err = c.profiles.Get(ctx, reg.Identity.ID)
	}
	if err != nil {
		if reg.Session != nil {
			c.revoke(ctx, reg.Session)
		}
		c.logger.Error("failed to create profile on sign-up", "identity_id", reg.Identity.ID, "error", err)
		return nil, auth.Upstream(err)
	}

	res := &SignUpResult{Identity: reg.Identity, Session: reg.Session, Profile: p, RedirectTo: c.redirects.Landing}
	if reg.Session != nil {
		res.RedirectTo = c.redirectFor(p)
		c.publish(ctx, events.SignedIn, p.ID)
	}
	return res, nil
}

// SignOut revokes the session identified by token. identityID is used only
// to address the change notification and may be uuid.Nil.
func (c *Controller) SignOut(ctx context.Context, token string, identityID uuid.UUID) (*SignOutResult, error) {
	if token == "" {
		return nil, auth.ErrUnauthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.idp.SignOut(ctx, token); err != nil {
		return nil, c.mapIdentityError("sign out", err)
	}
	c.publish(ctx, events.SignedOut, identityID)
	return &SignOutResult{RedirectTo: c.redirects.Landing}, nil
}

// ResetPassword asks the identity service to send a recovery message. An
// unknown address succeeds silently.
func (c *Controller) ResetPassword(ctx context.Context, email string) error {
	if err := c.validator.Struct(emailInput{Email: email}); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.idp.SendRecovery(ctx, email); err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			return nil
		}
		return c.mapIdentityError("reset password", err)
	}
	return nil
}

// UpdatePassword changes the password of the session's identity.
func (c *Controller) UpdatePassword(ctx context.Context, token string, identityID uuid.UUID, newPassword string) error {
	if token == "" {
		return auth.ErrUnauthenticated
	}
	if err := c.validator.Struct(passwordInput{Password: newPassword}); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.idp.UpdatePassword(ctx, token, newPassword); err != nil {
		return c.mapIdentityError("update password", err)
	}
	c.publish(ctx, events.UserUpdated, identityID)
	return nil
}

// RedirectFor returns the post-sign-in destination for p.
func (c *Controller) RedirectFor(p *profile.Profile) string {
	return c.redirectFor(p)
}

func (c *Controller) redirectFor(p *profile.Profile) string {
	if p.IsAdmin() {
		return c.redirects.Admin
	}
	return c.redirects.Default
}

// revoke signs a just-issued session out. It runs on its own deadline so a
// request that already timed out still cleans up.
func (c *Controller) revoke(ctx context.Context, sess *identity.Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	if err := c.idp.SignOut(ctx, sess.Token); err != nil {
		c.logger.Error("failed to revoke session", "identity_id", sess.Identity.ID, "error", err)
	}
}

func (c *Controller) publish(ctx context.Context, t events.Type, identityID uuid.UUID) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(context.WithoutCancel(ctx), events.New(t, identityID)); err != nil {
		c.logger.Warn("failed to publish session event", "type", t, "error", err)
	}
}

func (c *Controller) mapIdentityError(op string, err error) error {
	var invalid *identity.InvalidInputError
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return auth.ErrInvalidCredentials
	case errors.Is(err, identity.ErrNoSession):
		return auth.ErrUnauthenticated
	case errors.Is(err, identity.ErrIdentityExists):
		return auth.Conflict("an account with this email already exists")
	case errors.Is(err, identity.ErrIdentityNotFound):
		return auth.ErrNotFound
	case errors.As(err, &invalid):
		field := invalid.Field
		if field == "" {
			field = "password"
		}
		return auth.Invalid(field, invalid.Message)
	default:
		c.logger.Error("identity service call failed", "op", op, "error", err)
		return auth.Upstream(err)
	}
}
