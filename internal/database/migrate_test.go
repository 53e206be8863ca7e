package database

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMigrationsDir_Explicit(t *testing.T) {
	if got := MigrationsDir("/srv/folio/migrations"); got != "/srv/folio/migrations" {
		t.Errorf("expected explicit path, got %q", got)
	}
}

func TestMigrationsDir_Discovers(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "migrations"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	if got := MigrationsDir(""); got != "migrations" {
		t.Errorf("expected discovered migrations dir, got %q", got)
	}
}

func TestMigrationsDir_RepoLayout(t *testing.T) {
	// Package tests run from internal/database; the repo keeps migrations at the root.
	if got := MigrationsDir(""); got != filepath.Join("..", "..", "migrations") {
		t.Errorf("expected repo migrations dir, got %q", got)
	}
}
