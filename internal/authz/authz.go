// Package authz decides whether a resolved profile may reach a role-gated
// operation. Every gated route and every client-side route guard goes through
// Authorize.
package authz

import (
	"folio/internal/auth"
	"folio/internal/profile"
)

// Reason explains a denial.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonForbidden       Reason = "forbidden"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

var (
	allowed         = Decision{Allowed: true}
	unauthenticated = Decision{Reason: ReasonUnauthenticated}
	forbidden       = Decision{Reason: ReasonForbidden}
)

// Authorize allows p only if it holds exactly the required role and is active.
// Roles are not hierarchical: an admin does not satisfy a "user" requirement.
func Authorize(p *profile.Profile, required profile.Role) Decision {
	if d := AuthorizeAuthenticated(p); !d.Allowed {
		return d
	}
	if p.Role != required {
		return forbidden
	}
	return allowed
}

// AuthorizeAuthenticated allows any active profile.
func AuthorizeAuthenticated(p *profile.Profile) Decision {
	if p == nil {
		return unauthenticated
	}
	if !p.IsActive {
		return forbidden
	}
	return allowed
}

// Err converts a denial into the matching taxonomy error, or nil if allowed.
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == ReasonUnauthenticated:
		return auth.ErrUnauthenticated
	default:
		return auth.ErrForbidden
	}
}
