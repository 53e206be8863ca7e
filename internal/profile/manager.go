package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Domain errors returned by the Manager.
var (
	ErrNotFound         = errors.New("profile not found")
	ErrAlreadyExists    = errors.New("profile already exists")
	ErrInvalidRole      = errors.New("role must be user or admin")
	ErrInvalidEmail     = errors.New("email is required")
	ErrInvalidID        = errors.New("profile id is required")
	ErrNameTooLong      = errors.New("full name is too long")
	ErrTargetNotAdmin   = errors.New("scrum master must be an admin")
	ErrScrumMasterTaken = errors.New("scrum master was assigned concurrently")
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
	maxFullNameLen   = 200
)

// Manager handles business logic for profiles.
// It translates datastore errors to domain errors.
type Manager struct {
	ds *Datastore
}

// NewManager creates a new profile manager.
func NewManager(ds *Datastore) *Manager {
	return &Manager{ds: ds}
}

// Get retrieves a profile by identity ID.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	p, err := m.ds.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// Create inserts the profile for a freshly registered identity.
// New profiles always start as active users.
func (m *Manager) Create(ctx context.Context, in NewProfile) (*Profile, error) {
	if in.ID == uuid.Nil {
		return nil, ErrInvalidID
	}
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, ErrInvalidEmail
	}
	fullName := strings.TrimSpace(in.FullName)
	if len(fullName) > maxFullNameLen {
		return nil, ErrNameTooLong
	}

	p := &Profile{
		ID:       in.ID,
		Email:    email,
		FullName: fullName,
		Role:     RoleUser,
		IsActive: true,
	}
	if err := m.ds.Insert(ctx, p); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return p, nil
}

// Repair makes sure a profile exists for req.ID. Running it again with the
// same request changes nothing.
func (m *Manager) Repair(ctx context.Context, req RepairRequest) (*RepairResult, error) {
	if req.ID == uuid.Nil {
		return nil, ErrInvalidID
	}
	if req.Role != "" && !req.Role.Valid() {
		return nil, ErrInvalidRole
	}

	existing, err := m.Get(ctx, req.ID)
	switch {
	case err == nil:
		return m.repairRole(ctx, existing, req.Role)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, ErrInvalidEmail
	}
	role := req.Role
	if role == "" {
		role = RoleUser
	}
	p := &Profile{
		ID:       req.ID,
		Email:    email,
		FullName: strings.TrimSpace(req.FullName),
		Role:     role,
		IsActive: true,
	}
	if err := m.ds.Insert(ctx, p); err != nil {
		if !isUniqueViolation(err) {
			return nil, fmt.Errorf("failed to repair profile: %w", err)
		}
		// Created concurrently; converge on whatever is there now.
		existing, err := m.Get(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		return m.repairRole(ctx, existing, req.Role)
	}
	return &RepairResult{Profile: p, Created: true}, nil
}

func (m *Manager) repairRole(ctx context.Context, p *Profile, role Role) (*RepairResult, error) {
	if role == "" || p.Role == role {
		return &RepairResult{Profile: p}, nil
	}
	if err := m.SetRole(ctx, p.ID, role); err != nil {
		return nil, err
	}
	p.Role = role
	if role != RoleAdmin {
		p.IsScrumMaster = false
	}
	return &RepairResult{Profile: p, RoleUpdated: true}, nil
}

// List retrieves profiles with pagination.
func (m *Manager) List(ctx context.Context, limit, offset int) ([]*Profile, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	profiles, err := m.ds.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

// SetRole changes a profile's role.
func (m *Manager) SetRole(ctx context.Context, id uuid.UUID, role Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	rowsAffected, err := m.ds.UpdateRole(ctx, id, role)
	if err != nil {
		return fmt.Errorf("failed to set role: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive enables or disables a profile.
func (m *Manager) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	rowsAffected, err := m.ds.UpdateActive(ctx, id, active)
	if err != nil {
		return fmt.Errorf("failed to set active status: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateFullName changes the display name. An empty name clears it.
func (m *Manager) UpdateFullName(ctx context.Context, id uuid.UUID, fullName string) (*Profile, error) {
	fullName = strings.TrimSpace(fullName)
	if len(fullName) > maxFullNameLen {
		return nil, ErrNameTooLong
	}
	rowsAffected, err := m.ds.UpdateFullName(ctx, id, fullName)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrNotFound
	}
	return m.Get(ctx, id)
}

// SetAvatarURL records the public URL of the profile's avatar.
func (m *Manager) SetAvatarURL(ctx context.Context, id uuid.UUID, avatarURL string) error {
	rowsAffected, err := m.ds.UpdateAvatarURL(ctx, id, avatarURL)
	if err != nil {
		return fmt.Errorf("failed to set avatar: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignScrumMaster moves the scrum master flag to targetID. The current
// holder is cleared before the new one is set, so a failure part way leaves
// no holder rather than two.
func (m *Manager) AssignScrumMaster(ctx context.Context, targetID uuid.UUID) (*Profile, error) {
	target, err := m.Get(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.Role != RoleAdmin {
		return nil, ErrTargetNotAdmin
	}

	if _, err := m.ds.ClearScrumMaster(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear scrum master: %w", err)
	}

	rowsAffected, err := m.ds.SetScrumMaster(ctx, targetID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrScrumMasterTaken
		}
		return nil, fmt.Errorf("failed to set scrum master: %w", err)
	}
	if rowsAffected == 0 {
		// Demoted or deleted between the read and the write.
		return nil, ErrTargetNotAdmin
	}

	target.IsScrumMaster = true
	return target, nil
}

// RevokeScrumMaster clears the scrum master flag. It reports whether anyone
// held it.
func (m *Manager) RevokeScrumMaster(ctx context.Context) (bool, error) {
	rowsAffected, err := m.ds.ClearScrumMaster(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to revoke scrum master: %w", err)
	}
	return rowsAffected > 0, nil
}

// ScrumMaster returns the current holder, or nil when nobody holds it.
func (m *Manager) ScrumMaster(ctx context.Context) (*Profile, error) {
	p, err := m.ds.GetScrumMaster(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get scrum master: %w", err)
	}
	return p, nil
}

// Delete removes a profile. Callers delete the identity first.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	rowsAffected, err := m.ds.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
