package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"folio/internal/validation"
)

// Domain errors returned by the Manager.
var (
	ErrNotFound  = errors.New("project not found")
	ErrSlugTaken = errors.New("a project with this slug already exists")
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// Manager handles business logic for projects.
type Manager struct {
	ds        *Datastore
	validator *validation.Validator
}

// NewManager creates a new project manager.
func NewManager(ds *Datastore, v *validation.Validator) *Manager {
	return &Manager{ds: ds, validator: v}
}

func (m *Manager) normalize(in Input) (Input, error) {
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	in.Title = strings.TrimSpace(in.Title)
	in.Summary = strings.TrimSpace(in.Summary)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	if err := m.validator.Struct(in); err != nil {
		return in, err
	}
	return in, nil
}

// Create adds a project authored by createdBy.
func (m *Manager) Create(ctx context.Context, in Input, createdBy uuid.UUID) (*Project, error) {
	in, err := m.normalize(in)
	if err != nil {
		return nil, err
	}

	p := &Project{ID: uuid.New(), CreatedBy: &createdBy}
	in.apply(p)
	if err := m.ds.Insert(ctx, p); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

// Get retrieves any project by ID.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*Project, error) {
	p, err := m.ds.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// GetPublished retrieves a published project by slug.
func (m *Manager) GetPublished(ctx context.Context, slug string) (*Project, error) {
	p, err := m.ds.GetPublishedBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListPublished returns published projects in display order.
func (m *Manager) ListPublished(ctx context.Context, limit, offset int) ([]*Project, error) {
	return m.list(ctx, true, limit, offset)
}

// ListAll returns every project, including drafts.
func (m *Manager) ListAll(ctx context.Context, limit, offset int) ([]*Project, error) {
	return m.list(ctx, false, limit, offset)
}

func (m *Manager) list(ctx context.Context, publishedOnly bool, limit, offset int) ([]*Project, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	projects, err := m.ds.List(ctx, publishedOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	if projects == nil {
		projects = []*Project{}
	}
	return projects, nil
}

// Update replaces the writable fields of a project.
func (m *Manager) Update(ctx context.Context, id uuid.UUID, in Input) (*Project, error) {
	in, err := m.normalize(in)
	if err != nil {
		return nil, err
	}

	p, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(p)

	rowsAffected, err := m.ds.Update(ctx, p)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrNotFound
	}
	return p, nil
}

// Delete removes a project.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	rowsAffected, err := m.ds.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
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
