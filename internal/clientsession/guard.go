package clientsession

import (
	"folio/internal/authz"
	"folio/internal/profile"
)

// Verdict is the outcome of a route guard check.
type Verdict int

const (
	// Defer means the session is still loading; render nothing yet.
	Defer Verdict = iota
	RedirectLogin
	RedirectUnauthorized
	Allow
)

func (v Verdict) String() string {
	switch v {
	case Defer:
		return "defer"
	case RedirectLogin:
		return "redirect_login"
	case RedirectUnauthorized:
		return "redirect_unauthorized"
	case Allow:
		return "allow"
	default:
		return "unknown"
	}
}

// Guard decides what a protected route does for state. An empty required
// role admits any active signed-in profile.
func Guard(state State, required profile.Role) Verdict {
	if state.IsLoading {
		return Defer
	}
	if state.Identity == nil {
		return RedirectLogin
	}

	d := authz.AuthorizeAuthenticated(state.Profile)
	if d.Allowed && required != "" {
		d = authz.Authorize(state.Profile, required)
	}
	switch {
	case d.Allowed:
		return Allow
	case d.Reason == authz.ReasonUnauthenticated:
		return RedirectLogin
	default:
		return RedirectUnauthorized
	}
}
