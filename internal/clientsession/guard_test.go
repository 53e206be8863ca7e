package clientsession

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"folio/internal/identity"
	"folio/internal/profile"
)

func TestGuard(t *testing.T) {
	ident := &identity.Identity{ID: adaID}
	admin := &profile.Profile{ID: adaID, Role: profile.RoleAdmin, IsActive: true}
	user := &profile.Profile{ID: adaID, Role: profile.RoleUser, IsActive: true}
	disabled := &profile.Profile{ID: adaID, Role: profile.RoleAdmin, IsActive: false}

	tests := []struct {
		name     string
		state    State
		required profile.Role
		want     Verdict
	}{
		{"loading", State{IsLoading: true}, profile.RoleAdmin, Defer},
		{"signed out", State{}, profile.RoleAdmin, RedirectLogin},
		{"admin on admin route", State{Identity: ident, Profile: admin}, profile.RoleAdmin, Allow},
		{"user on admin route", State{Identity: ident, Profile: user}, profile.RoleAdmin, RedirectUnauthorized},
		{"admin on user route", State{Identity: ident, Profile: admin}, profile.RoleUser, RedirectUnauthorized},
		{"disabled admin", State{Identity: ident, Profile: disabled}, profile.RoleAdmin, RedirectUnauthorized},
		{"any signed in", State{Identity: ident, Profile: user}, "", Allow},
		{"disabled on any route", State{Identity: ident, Profile: disabled}, "", RedirectUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Guard(tt.state, tt.required))
		})
	}
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "defer", Defer.String())
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "unknown", Verdict(42).String())
}
