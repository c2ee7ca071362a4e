package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Schema version constants
const (
	// SchemaVersion1 holds the key slot
	SchemaVersion1 = 1
	// SchemaVersion2 adds the plaintext store_meta table
	SchemaVersion2 = 2
	// CurrentSchemaVersion is the current schema version
	CurrentSchemaVersion = SchemaVersion2
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// getSchemaVersion returns the stored schema version, or 0 for an empty
// database.
func getSchemaVersion(ctx context.Context, q queryer) (int, error) {
	var tableName string
	err := q.QueryRowContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: failed to check schema_version table: %w", err)
	}

	var version int
	err = q.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: failed to get schema version: %w", err)
	}
	return version, nil
}

func setSchemaVersion(ctx context.Context, q queryer, version int) error {
	_, err := q.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			migrated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("store: failed to create schema_version table: %w", err)
	}

	_, err = q.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", version)
	if err != nil {
		return fmt.Errorf("store: failed to set schema version: %w", err)
	}
	return nil
}

// migrateSchema brings the schema to CurrentSchemaVersion. It performs no
// writes when the schema is already current.
func migrateSchema(ctx context.Context, q queryer) error {
	version, err := getSchemaVersion(ctx, q)
	if err != nil {
		return err
	}

	if version < SchemaVersion1 {
		if err := migrateToV1(ctx, q); err != nil {
			return fmt.Errorf("store: migration to v1 failed: %w", err)
		}
	}

	if version < SchemaVersion2 {
		if err := migrateToV2(ctx, q); err != nil {
			return fmt.Errorf("store: migration to v2 failed: %w", err)
		}
	}

	return nil
}

func migrateToV1(ctx context.Context, q queryer) error {
	_, err := q.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS store_keys (
			id INTEGER PRIMARY KEY,
			salt BLOB NOT NULL,
			kdf_time INTEGER NOT NULL,
			kdf_memory INTEGER NOT NULL,
			kdf_threads INTEGER NOT NULL,
			wrapped_key BLOB NOT NULL,
			verifier BLOB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}
	return setSchemaVersion(ctx, q, SchemaVersion1)
}

// migrateToV2 adds store_meta, a small plaintext key/value table for
// bookkeeping that must be readable without the key.
func migrateToV2(ctx context.Context, q queryer) error {
	_, err := q.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS store_meta (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx,
		"INSERT OR IGNORE INTO store_meta (name, value) VALUES ('created_at', ?)",
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}
	return setSchemaVersion(ctx, q, SchemaVersion2)
}

// SchemaVersion reports the schema version of the store.
func (c *Conn) SchemaVersion(ctx context.Context) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}
	v, err := getSchemaVersion(ctx, c.db)
	return v, c.classify(err)
}

// Meta reads a value from store_meta.
func (c *Conn) Meta(ctx context.Context, name string) (string, error) {
	if c.dataKey == nil {
		return "", ErrNotKeyed
	}
	var value string
	err := c.db.QueryRowContext(ctx, "SELECT value FROM store_meta WHERE name = ?", name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, c.classify(err)
}
