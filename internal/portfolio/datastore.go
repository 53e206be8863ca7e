package portfolio

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DBTX is the interface for database operations.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Datastore handles database operations for projects.
// It returns raw database errors.
type Datastore struct {
	db DBTX
}

// NewDatastore creates a new project datastore.
func NewDatastore(db DBTX) *Datastore {
	return &Datastore{db: db}
}

const projectColumns = `id, slug, title, summary, body, image_url, published, sort_order, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	p := &Project{}
	var imageURL sql.NullString
	var createdBy uuid.NullUUID
	if err := row.Scan(
		&p.ID, &p.Slug, &p.Title, &p.Summary, &p.Body, &imageURL,
		&p.Published, &p.SortOrder, &createdBy, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.ImageURL = imageURL.String
	if createdBy.Valid {
		id := createdBy.UUID
		p.CreatedBy = &id
	}
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

// Insert creates a project row.
func (ds *Datastore) Insert(ctx context.Context, p *Project) error {
	now := time.Now()

	query := `
		INSERT INTO projects (id, slug, title, summary, body, image_url, published, sort_order, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING created_at, updated_at`

	return ds.db.QueryRowContext(ctx, query,
		p.ID, p.Slug, p.Title, p.Summary, p.Body, nullString(p.ImageURL),
		p.Published, p.SortOrder, nullUUID(p.CreatedBy), now,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// GetByID retrieves a project by ID.
// Returns sql.ErrNoRows if not found.
func (ds *Datastore) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	return scanProject(ds.db.QueryRowContext(ctx, query, id))
}

// GetPublishedBySlug retrieves a published project by slug.
// Returns sql.ErrNoRows if not found or unpublished.
func (ds *Datastore) GetPublishedBySlug(ctx context.Context, slug string) (*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE slug = $1 AND published`
	return scanProject(ds.db.QueryRowContext(ctx, query, slug))
}

// List retrieves projects in display order. With publishedOnly the body
// column is still returned; callers decide what to expose.
func (ds *Datastore) List(ctx context.Context, publishedOnly bool, limit, offset int) ([]*Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE published OR NOT $1
		ORDER BY sort_order ASC, created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := ds.db.QueryContext(ctx, query, publishedOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return projects, nil
}

// Update overwrites the writable columns of a project.
// Returns rows affected count for caller to interpret.
func (ds *Datastore) Update(ctx context.Context, p *Project) (int64, error) {
	query := `
		UPDATE projects
		SET slug = $2, title = $3, summary = $4, body = $5, image_url = $6,
		    published = $7, sort_order = $8, updated_at = $9
		WHERE id = $1`

	result, err := ds.db.ExecContext(ctx, query,
		p.ID, p.Slug, p.Title, p.Summary, p.Body, nullString(p.ImageURL),
		p.Published, p.SortOrder, time.Now(),
	)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// Delete removes a project.
// Returns rows affected count for caller to interpret.
func (ds *Datastore) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := ds.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
