// Package identity talks to the hosted identity service that owns
// credentials, identities and sessions. Callers depend on the Provider and
// Admin ports; Kratos is the production implementation.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSession          = errors.New("no active session")
	ErrIdentityExists     = errors.New("identity already exists")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrUnavailable        = errors.New("identity service unavailable")
	ErrTimeout            = errors.New("identity service timed out")
)

// InvalidInputError is returned when the identity service rejects the
// submitted data, for example a password that fails its policy.
type InvalidInputError struct {
	Field   string
	Message string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Identity is the authenticated principal as the identity service knows it.
type Identity struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name,omitempty"`
}

// Session is a live authenticated session. Token is the opaque credential
// carried by the session cookie and is never serialized.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"-"`
	Identity  Identity  `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Registration is the result of a sign-up. Session is nil when the identity
// service does not sign new identities in straight away.
type Registration struct {
	Identity Identity
	Session  *Session
}

// Provider covers the self-service operations available to anyone holding
// the public endpoint.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password, fullName string) (*Registration, error)
	SignOut(ctx context.Context, token string) error
	WhoAmI(ctx context.Context, token string) (*Session, error)
	SendRecovery(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, token, newPassword string) error
}

// Admin covers operations that need the elevated admin endpoint.
type Admin interface {
	CreateIdentity(ctx context.Context, email, password, fullName string) (*Identity, error)
	GetIdentity(ctx context.Context, id uuid.UUID) (*Identity, error)
	DeleteIdentity(ctx context.Context, id uuid.UUID) error
	RevokeSessions(ctx context.Context, id uuid.UUID) error
}
