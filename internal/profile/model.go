package profile

import (
	"time"

	"github.com/google/uuid"
)

// Role is the coarse permission level of a profile.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the persisted roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole converts s into a Role, rejecting anything outside the role domain.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Profile is the application-side record attached one-to-one to an identity
// held by the identity service. ID equals the identity ID.
type Profile struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name,omitempty"`
	Role          Role      `json:"role"`
	IsActive      bool      `json:"is_active"`
	IsScrumMaster bool      `json:"is_scrum_master"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsAdmin reports whether the profile holds the admin role.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// NewProfile is the input for creating a profile for a fresh identity.
type NewProfile struct {
	ID       uuid.UUID
	Email    string
	FullName string
}

// RepairRequest describes a profile that should exist for an identity.
// An empty Role means "user" on creation and "leave as is" otherwise.
type RepairRequest struct {
	ID       uuid.UUID
	Email    string
	FullName string
	Role     Role
}

// RepairResult reports what Repair changed.
type RepairResult struct {
	Profile     *Profile `json:"profile"`
	Created     bool     `json:"created"`
	RoleUpdated bool     `json:"role_updated"`
}
