package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openRawDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunMigrations_FreshDatabase(t *testing.T) {
	// Given: A fresh database with no tables
	db := openRawDB(t)

	// When: RunMigrations is called
	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	// Then: Every table exists with its columns
	queries := map[string]string{
		"categories":         `SELECT id, title FROM categories LIMIT 0`,
		"trackers":           `SELECT id, category_id, title, color, emoji, is_pinned, rule_kind, one_off_date FROM trackers LIMIT 0`,
		"schedule_entries":   `SELECT tracker_id, weekday FROM schedule_entries LIMIT 0`,
		"completion_records": `SELECT tracker_id, date FROM completion_records LIMIT 0`,
		"statistics":         `SELECT id, value FROM statistics LIMIT 0`,
		"change_log":         `SELECT sequence, table_name, entity_id, operation, payload, source_id, created_at, received_at FROM change_log LIMIT 0`,
	}
	for table, q := range queries {
		if _, err := db.Exec(q); err != nil {
			t.Errorf("%s missing required columns: %v", table, err)
		}
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	// Given: A database that has already been migrated
	db := openRawDB(t)
	if err := RunMigrations(db); err != nil {
		t.Fatalf("first migration failed: %v", err)
	}

	// When: RunMigrations is called again
	err := RunMigrations(db)

	// Then: No error occurs and statistics are not re-seeded
	if err != nil {
		t.Fatalf("second migration should be idempotent, got error: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM statistics`).Scan(&n); err != nil {
		t.Fatalf("count statistics: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 statistic rows, got %d", n)
	}
}

func TestSchema_Constraints(t *testing.T) {
	db := openRawDB(t)
	if err := RunMigrations(db); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO categories (id, title) VALUES ('c1', 'Health')`); err != nil {
		t.Fatalf("insert category: %v", err)
	}

	tests := []struct {
		name string
		sql  string
	}{
		{"duplicate category title", `INSERT INTO categories (id, title) VALUES ('c2', 'Health')`},
		{"one_off without date", `INSERT INTO trackers (id, category_id, title, color, emoji, rule_kind) VALUES ('t1', 'c1', 'x', 'c', 'e', 'one_off')`},
		{"recurring with date", `INSERT INTO trackers (id, category_id, title, color, emoji, rule_kind, one_off_date) VALUES ('t2', 'c1', 'x', 'c', 'e', 'recurring', '2025-01-01')`},
		{"unknown rule", `INSERT INTO trackers (id, category_id, title, color, emoji, rule_kind) VALUES ('t3', 'c1', 'x', 'c', 'e', 'weekly')`},
		{"weekday out of range", `INSERT INTO schedule_entries (tracker_id, weekday) VALUES ('t1', 8)`},
		{"unknown statistic", `INSERT INTO statistics (id, value) VALUES ('median', 0)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := db.Exec(tt.sql); err == nil {
				t.Errorf("expected constraint violation for %s", tt.name)
			}
		})
	}
}

func TestSchema_Indexes(t *testing.T) {
	db := openRawDB(t)
	if err := RunMigrations(db); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	expectedIndexes := []string{
		"idx_trackers_category",
		"idx_trackers_one_off_date",
		"idx_completion_records_date",
		"idx_change_log_entity",
	}

	for _, idx := range expectedIndexes {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='index' AND name=?`, idx).Scan(&name)
		if err != nil {
			t.Errorf("index %s not found: %v", idx, err)
		}
	}
}

func TestMigrate_NoMigrations(t *testing.T) {
	// Given: a filesystem without any migration files
	db := openRawDB(t)

	// When: migrate runs against it
	err := migrate(db, fstest.MapFS{})

	// Then: loading fails instead of leaving an empty schema
	if err == nil {
		t.Fatal("expected error for empty migration set")
	}
}
