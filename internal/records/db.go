package records

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"murmur/internal/config"
)

// DB owns the SQLite connection shared by the memo, transcription, job, and
// analysis stores. It is the single source of truth; the in-memory tiers in
// front of it are derived and rebuildable.
type DB struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the memo database and applies migrations.
func Open(cfg *config.Config) (*DB, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath())
}

// OpenPath opens the database at an explicit path, applying pragmas and
// migrations. Used directly by tests and the CLI.
func OpenPath(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &DB{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Conn exposes the raw connection to the record stores in this module. No
// package outside the owning stores should issue SQL directly.
func (d *DB) Conn() *sql.DB {
	return d.db
}

// Ping verifies the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if d == nil || d.db == nil {
		return fmt.Errorf("database connection unavailable")
	}
	return d.db.PingContext(ctx)
}
