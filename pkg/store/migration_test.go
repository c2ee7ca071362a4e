package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func openRawDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetSchemaVersionEmpty(t *testing.T) {
	db := openRawDB(t)

	version, err := getSchemaVersion(context.Background(), db)
	if err != nil {
		t.Fatalf("getSchemaVersion failed: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0, got %d", version)
	}
}

func TestSetSchemaVersion(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t)

	if err := setSchemaVersion(ctx, db, SchemaVersion1); err != nil {
		t.Fatalf("setSchemaVersion failed: %v", err)
	}
	if err := setSchemaVersion(ctx, db, SchemaVersion2); err != nil {
		t.Fatalf("setSchemaVersion failed: %v", err)
	}

	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		t.Fatalf("getSchemaVersion failed: %v", err)
	}
	if version != SchemaVersion2 {
		t.Errorf("expected version %d, got %d", SchemaVersion2, version)
	}
}

func TestMigrateSchemaIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t)

	if err := migrateSchema(ctx, db); err != nil {
		t.Fatalf("first migrateSchema failed: %v", err)
	}
	if err := migrateSchema(ctx, db); err != nil {
		t.Fatalf("second migrateSchema failed: %v", err)
	}

	version, _ := getSchemaVersion(ctx, db)
	if version != CurrentSchemaVersion {
		t.Errorf("expected version %d, got %d", CurrentSchemaVersion, version)
	}

	for _, table := range []string{"store_keys", "store_meta", "schema_version"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestUnlockMigratesV1Store(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")
	createTestStore(t, path, "hunter2")

	// Roll the store back to a v1 layout.
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec("DROP TABLE store_meta"); err != nil {
		t.Fatalf("drop failed: %v", err)
	}
	if _, err := db.Exec("DELETE FROM schema_version WHERE version > ?", SchemaVersion1); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	db.Close()

	c := openTestConn(t, path)
	if v, _ := c.SchemaVersion(ctx); v != SchemaVersion1 {
		t.Fatalf("expected v1 before unlock, got %d", v)
	}
	if err := c.Key(ctx, "hunter2", false); err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	if v, _ := c.SchemaVersion(ctx); v != CurrentSchemaVersion {
		t.Errorf("expected v%d after unlock, got %d", CurrentSchemaVersion, v)
	}
	created, err := c.Meta(ctx, "created_at")
	if err != nil || created == "" {
		t.Errorf("Meta(created_at) = %q, %v", created, err)
	}
}
