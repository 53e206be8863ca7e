package profile

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

// Datastore handles database operations for profiles.
type Datastore struct {
	db DBTX
}

// NewDatastore creates a new profile datastore.
func NewDatastore(db DBTX) *Datastore {
	return &Datastore{db: db}
}

const profileColumns = `id, email, full_name, role, is_active, is_scrum_master, avatar_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	p := &Profile{}
	var fullName, avatarURL sql.NullString
	var role string
	if err := row.Scan(
		&p.ID, &p.Email, &fullName, &role, &p.IsActive, &p.IsScrumMaster,
		&avatarURL, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.FullName = fullName.String
	p.AvatarURL = avatarURL.String
	p.Role = Role(role)
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Insert creates a profile row. CreatedAt and UpdatedAt are set from the database.
func (ds *Datastore) Insert(ctx context.Context, p *Profile) error {
	now := time.Now()

	query := `
		INSERT INTO profiles (id, email, full_name, role, is_active, is_scrum_master, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7, $7)
		RETURNING created_at, updated_at`

	return ds.db.QueryRowContext(ctx, query,
		p.ID, p.Email, nullString(p.FullName), string(p.Role), p.IsActive,
		nullString(p.AvatarURL), now,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// GetByID retrieves a profile by identity ID.
func (ds *Datastore) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return scanProfile(ds.db.QueryRowContext(ctx, query, id))
}

// List retrieves profiles, newest first.
func (ds *Datastore) List(ctx context.Context, limit, offset int) ([]*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := ds.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// UpdateRole sets the role. Demotion away from admin also drops the scrum
// master flag.
func (ds *Datastore) UpdateRole(ctx context.Context, id uuid.UUID, role Role) (int64, error) {
	query := `
		UPDATE profiles
		SET role = $2, is_scrum_master = (is_scrum_master AND $2 = 'admin'), updated_at = $3
		WHERE id = $1`
	result, err := ds.db.ExecContext(ctx, query, id, string(role), time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UpdateActive sets the active flag.
func (ds *Datastore) UpdateActive(ctx context.Context, id uuid.UUID, active bool) (int64, error) {
	query := `UPDATE profiles SET is_active = $2, updated_at = $3 WHERE id = $1`
	result, err := ds.db.ExecContext(ctx, query, id, active, time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UpdateFullName sets or clears the display name.
func (ds *Datastore) UpdateFullName(ctx context.Context, id uuid.UUID, fullName string) (int64, error) {
	query := `UPDATE profiles SET full_name = $2, updated_at = $3 WHERE id = $1`
	result, err := ds.db.ExecContext(ctx, query, id, nullString(fullName), time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UpdateAvatarURL sets or clears the avatar URL.
func (ds *Datastore) UpdateAvatarURL(ctx context.Context, id uuid.UUID, avatarURL string) (int64, error) {
	query := `UPDATE profiles SET avatar_url = $2, updated_at = $3 WHERE id = $1`
	result, err := ds.db.ExecContext(ctx, query, id, nullString(avatarURL), time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ClearScrumMaster unsets the scrum master flag wherever it is set.
func (ds *Datastore) ClearScrumMaster(ctx context.Context) (int64, error) {
	query := `UPDATE profiles SET is_scrum_master = FALSE, updated_at = $1 WHERE is_scrum_master`
	result, err := ds.db.ExecContext(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SetScrumMaster flags id as scrum master if it is still an admin.
func (ds *Datastore) SetScrumMaster(ctx context.Context, id uuid.UUID) (int64, error) {
	query := `UPDATE profiles SET is_scrum_master = TRUE, updated_at = $2 WHERE id = $1 AND role = 'admin'`
	result, err := ds.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetScrumMaster retrieves the current scrum master.
func (ds *Datastore) GetScrumMaster(ctx context.Context) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE is_scrum_master LIMIT 1`
	return scanProfile(ds.db.QueryRowContext(ctx, query))
}

// Delete removes a profile.
func (ds *Datastore) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	query := `DELETE FROM profiles WHERE id = $1`
	result, err := ds.db.ExecContext(ctx, query, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
