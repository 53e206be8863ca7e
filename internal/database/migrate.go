package database

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationStatus reports the schema version after a migration command.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Changed bool
}

// MigrateUp applies all pending migrations from dir.
func (db *DB) MigrateUp(dir string) (MigrationStatus, error) {
	return db.runMigration(dir, "apply", func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(dir string) (MigrationStatus, error) {
	return db.runMigration(dir, "rollback", func(m *migrate.Migrate) error { return m.Steps(-1) })
}

// MigrateVersion returns the current schema version without changing it.
func (db *DB) MigrateVersion(dir string) (MigrationStatus, error) {
	return db.runMigration(dir, "inspect", func(*migrate.Migrate) error { return migrate.ErrNoChange })
}

func (db *DB) runMigration(dir, action string, step func(*migrate.Migrate) error) (MigrationStatus, error) {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	status := MigrationStatus{Changed: true}
	if err := step(m); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return MigrationStatus{}, fmt.Errorf("failed to %s migrations: %w", action, err)
		}
		status.Changed = false
	}

	status.Version, status.Dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, fmt.Errorf("failed to get migration version: %w", err)
	}

	slog.Info("migrations", "action", action, "version", status.Version, "dirty", status.Dirty, "changed", status.Changed)
	return status, nil
}

// MigrationsDir resolves the migrations directory. An explicit path wins;
// otherwise the first of ./migrations and ../../migrations that exists.
func MigrationsDir(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, candidate := range []string{"migrations", filepath.Join("..", "..", "migrations")} {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return "migrations"
}
