package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// CurrentSchemaVersion is the version of the last entry in AllMigrations
const CurrentSchemaVersion = "1.1.0"

// Migration is one SQLite schema step. Version is a semver string; a
// migration runs when its version is above every recorded one.
type Migration struct {
	Version  string
	Up, Down string
}

// AllMigrations is ordered by Version. Postgres has its own set under
// migrations/postgres, applied by golang-migrate.
var AllMigrations = []Migration{
	{Version: "1.0.0", Up: migrationV1Up, Down: migrationV1Down},
	{Version: "1.1.0", Up: migrationV11Up, Down: migrationV11Down},
}

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const migrationV1Up = `
-- Tracked files, one row per path
CREATE TABLE IF NOT EXISTS files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    workspace TEXT NOT NULL,
    file_path TEXT NOT NULL UNIQUE,
    modified_at INTEGER NOT NULL,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    content_hash BLOB,
    last_indexed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_workspace ON files(workspace);

-- One row per line window
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id INTEGER NOT NULL,
    workspace TEXT NOT NULL,
    start_line INTEGER NOT NULL CHECK (start_line >= 1),
    end_line INTEGER NOT NULL CHECK (end_line >= start_line),
    content TEXT NOT NULL,
    content_hash BLOB NOT NULL,
    FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id);
CREATE INDEX IF NOT EXISTS idx_chunks_workspace ON chunks(workspace, id);

-- Embeddings (little-endian float32 blobs)
CREATE TABLE IF NOT EXISTS embeddings (
    chunk_id INTEGER PRIMARY KEY,
    vector BLOB NOT NULL,
    dimension INTEGER NOT NULL,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    FOREIGN KEY (chunk_id) REFERENCES chunks(id) ON DELETE CASCADE
);
`

const migrationV1Down = `
DROP TABLE IF EXISTS embeddings;
DROP TABLE IF EXISTS chunks;
DROP TABLE IF EXISTS files;
`

const migrationV11Up = `
-- Index wide settings, such as the pinned embedding dimension
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const migrationV11Down = `
DROP TABLE IF EXISTS meta;
`

// currentVersion returns the highest applied schema version, 0.0.0 when none
func currentVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	if _, err := db.ExecContext(ctx, schemaVersionTable); err != nil {
		return nil, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", s, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

// ApplyMigrations brings db up to CurrentSchemaVersion. Each step and its
// schema_version row commit together, so a failed step leaves no record.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range AllMigrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", m.Version, err)
		}
		if !v.GreaterThan(current) {
			continue
		}
		if err := applyOne(ctx, db, m); err != nil {
			return err
		}
		current = v
	}
	return nil
}

func applyOne(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %s: begin: %w", m.Version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
	}
	return tx.Commit()
}

// RollbackMigration rolls back the most recent migration. It returns
// ErrNotFound when nothing is applied.
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}
	if current.Equal(semver.MustParse("0.0.0")) {
		return fmt.Errorf("no migrations to rollback: %w", ErrNotFound)
	}

	var migration *Migration
	for i := range AllMigrations {
		if semver.MustParse(AllMigrations[i].Version).Equal(current) {
			migration = &AllMigrations[i]
			break
		}
	}

	if migration == nil {
		return fmt.Errorf("migration %s not found", current)
	}

	if _, err := db.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", migration.Version, err)
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", migration.Version); err != nil {
		return fmt.Errorf("failed to remove migration record %s: %w", migration.Version, err)
	}

	return nil
}

// ResetSchema rolls back every applied migration and applies them again,
// leaving an empty index at the current schema version.
func ResetSchema(ctx context.Context, db *sql.DB) error {
	for {
		err := RollbackMigration(ctx, db)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrNotFound) {
			break
		}
		return err
	}
	return ApplyMigrations(ctx, db)
}
