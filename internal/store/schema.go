package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SchemaVersion is the version a freshly opened database ends up at.
const SchemaVersion = 2

// schemaV1 is the initial schema for the SQLite store.
const schemaV1 = `
-- One row per sweep
CREATE TABLE IF NOT EXISTS sweeps (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,         -- 'grid' or 'axis'
    nodes INTEGER NOT NULL,
    steps INTEGER NOT NULL,
    attachment INTEGER NOT NULL,
    runs INTEGER NOT NULL,
    seed INTEGER NOT NULL,      -- uint64 stored bit-for-bit
    epsilons TEXT NOT NULL,     -- JSON array, column order
    mus TEXT NOT NULL,          -- JSON array, row order
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sweeps_started ON sweeps(started_at);

-- One row per (mu, epsilon) point
CREATE TABLE IF NOT EXISTS points (
    sweep_id TEXT NOT NULL REFERENCES sweeps(id) ON DELETE CASCADE,
    row_idx INTEGER NOT NULL,
    col_idx INTEGER NOT NULL,
    epsilon REAL NOT NULL,
    mu REAL NOT NULL,
    attachment INTEGER NOT NULL,
    runs INTEGER NOT NULL DEFAULT 0,
    failed_runs INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    PRIMARY KEY (sweep_id, row_idx, col_idx)
);

-- Aggregated metric values per point
CREATE TABLE IF NOT EXISTS point_fields (
    sweep_id TEXT NOT NULL,
    row_idx INTEGER NOT NULL,
    col_idx INTEGER NOT NULL,
    field TEXT NOT NULL,
    mean REAL NOT NULL,
    std REAL NOT NULL,
    PRIMARY KEY (sweep_id, row_idx, col_idx, field),
    FOREIGN KEY (sweep_id, row_idx, col_idx) REFERENCES points(sweep_id, row_idx, col_idx) ON DELETE CASCADE
);

`

// migrations[i] upgrades a database from version i to version i+1.
var migrations = []string{
	schemaV1,
	// v2: show and export look points up by metric name.
	`CREATE INDEX IF NOT EXISTS idx_point_fields_field ON point_fields(sweep_id, field);`,
}

const versionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);`

// InitSchema brings db up to SchemaVersion. Existing databases are
// integrity-checked before any migration touches them.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, versionTable); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	switch {
	case current > SchemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, SchemaVersion)
	case current == SchemaVersion:
		return nil
	case current > 0:
		if err := ValidateIntegrity(ctx, db); err != nil {
			return fmt.Errorf("database integrity check failed: %w", err)
		}
	}

	for v := current; v < SchemaVersion; v++ {
		if err := applyMigration(ctx, db, v+1, migrations[v]); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, version int, stmt string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate to v%d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("migrate to v%d: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		version); err != nil {
		return fmt.Errorf("record schema v%d: %w", version, err)
	}
	return tx.Commit()
}

// ValidateIntegrity reports page-level corruption and dangling foreign keys.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	var problems []string
	if err := collectRows(ctx, db, `PRAGMA integrity_check`, func(rows *sql.Rows) error {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return err
		}
		if msg != "ok" {
			problems = append(problems, msg)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("integrity_check: %w", err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("integrity_check failed: %s", strings.Join(problems, "; "))
	}

	if err := collectRows(ctx, db, `PRAGMA foreign_key_check`, func(rows *sql.Rows) error {
		var table, parent string
		var rowid, fkid sql.NullInt64
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return err
		}
		problems = append(problems, fmt.Sprintf("%s row %d references missing %s", table, rowid.Int64, parent))
		return nil
	}); err != nil {
		return fmt.Errorf("foreign_key_check: %w", err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("foreign_key_check failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func collectRows(ctx context.Context, db *sql.DB, query string, fn func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
