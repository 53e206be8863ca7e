package profile

import (
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"user", RoleUser, false},
		{"admin", RoleAdmin, false},
		{"Admin", "", true},
		{"owner", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidRole) {
				t.Errorf("ParseRole(%q): expected ErrInvalidRole, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseRole(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestProfile_IsAdmin(t *testing.T) {
	var nilProfile *Profile
	if nilProfile.IsAdmin() {
		t.Error("nil profile must not be admin")
	}
	if (&Profile{Role: RoleUser}).IsAdmin() {
		t.Error("user must not be admin")
	}
	if !(&Profile{Role: RoleAdmin}).IsAdmin() {
		t.Error("admin must be admin")
	}
}
