// Package db provides database schema migration management.
package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// serverMigrations is the ordered migration set for the server database.
var serverMigrations = []Migration{
	{
		Version:     1,
		Description: "create stores, reps and visits",
		SQL: `
		CREATE TABLE stores (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			last_visit_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE reps (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE visits (
			id TEXT PRIMARY KEY,
			rep_id TEXT NOT NULL REFERENCES reps(id),
			store_id TEXT NOT NULL REFERENCES stores(id),
			check_in_time INTEGER NOT NULL,
			check_in_lat REAL NOT NULL,
			check_in_lng REAL NOT NULL,
			check_out_time INTEGER,
			check_out_lat REAL,
			check_out_lng REAL,
			duration_minutes INTEGER,
			notes TEXT NOT NULL DEFAULT '',
			photo_refs TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		-- At most one open visit per representative, enforced by the
		-- database rather than a check-then-act sequence.
		CREATE UNIQUE INDEX ux_visits_open_rep
			ON visits(rep_id) WHERE check_out_time IS NULL;

		CREATE INDEX idx_visits_rep_time ON visits(rep_id, check_in_time);
		`,
	},
	{
		Version:     2,
		Description: "create mutation receipts for idempotent replay",
		SQL: `
		CREATE TABLE mutation_receipts (
			mutation_id TEXT PRIMARY KEY,
			status_code INTEGER NOT NULL,
			body TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX idx_receipts_created ON mutation_receipts(created_at);
		`,
	},
}

// Migrator applies ordered schema migrations.
type Migrator struct {
	db         *sql.DB
	migrations []Migration
}

// NewMigrator creates a Migrator with the server migration set.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db, migrations: serverMigrations}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Up applies all pending migrations, each inside its own transaction.
func (m *Migrator) Up() error {
	current, err := m.CurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}

		tx, err := m.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", mig.Version, err)
		}

		if _, err := tx.Exec(mig.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", mig.Version, mig.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			mig.Version, time.Now().Unix(), mig.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", mig.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", mig.Version, err)
		}
	}

	return nil
}
