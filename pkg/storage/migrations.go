package storage

import (
	"database/sql"
	"fmt"
)

// MigrationVersion tracks the current database schema version.
const MigrationVersion = 2

// InitializeDatabase creates the SQLite database schema for the rejection audit.
// This includes migration version tracking to support future schema updates.
func InitializeDatabase(db *sql.DB) error {
	// Create migrations table to track schema version
	migrationsTable := `
	CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version INTEGER NOT NULL UNIQUE,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := db.Exec(migrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to check migration version: %w", err)
	}

	migrations := []func(*sql.Tx) error{applyMigration1, applyMigration2}
	for i, apply := range migrations {
		version := i + 1
		if currentVersion >= version {
			continue
		}
		if err := runMigration(db, version, apply); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration.
func SchemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

func runMigration(db *sql.DB, version int, apply func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := apply(tx); err != nil {
		return err
	}

	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// applyMigration1 creates the rejections table.
func applyMigration1(tx *sql.Tx) error {
	// created_at is Unix nanoseconds (UTC) so range filters compare numerically.
	rejectionsTable := `
	CREATE TABLE rejections (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		kind TEXT NOT NULL,
		reason TEXT NOT NULL,
		detail TEXT,
		input TEXT NOT NULL,
		input_length INTEGER NOT NULL,
		source TEXT,
		created_at INTEGER NOT NULL
	);`

	if _, err := tx.Exec(rejectionsTable); err != nil {
		return fmt.Errorf("failed to create rejections table: %w", err)
	}

	rejectionsIndexes := []string{
		"CREATE INDEX idx_rejections_created_at ON rejections(created_at DESC);",
		"CREATE INDEX idx_rejections_reason ON rejections(reason, created_at DESC);",
		"CREATE INDEX idx_rejections_kind ON rejections(kind, created_at DESC);",
	}

	for _, idx := range rejectionsIndexes {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create rejection index: %w", err)
		}
	}
	return nil
}

// applyMigration2 records which policy produced a rejection.
func applyMigration2(tx *sql.Tx) error {
	if _, err := tx.Exec("ALTER TABLE rejections ADD COLUMN policy TEXT;"); err != nil {
		return fmt.Errorf("failed to add policy column: %w", err)
	}
	if _, err := tx.Exec("CREATE INDEX idx_rejections_operation ON rejections(operation, created_at DESC);"); err != nil {
		return fmt.Errorf("failed to create operation index: %w", err)
	}
	return nil
}
