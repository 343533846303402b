package store

import (
	"testing"
	"testing/fstest"
	"time"

	"techroute/db"
)

func TestNullIfEmpty(t *testing.T) {
	if v := nullIfEmpty(""); v != nil {
		t.Fatalf("empty -> nil expected, got %v", v)
	}
	if v := nullIfEmpty("a"); v != "a" {
		t.Fatalf("want a, got %v", v)
	}
}

func TestClampLimit(t *testing.T) {
	for in, want := range map[int]int{-1: defaultLimit, 0: defaultLimit, 7: 7, maxLimit: maxLimit, maxLimit + 1: defaultLimit} {
		if got := clampLimit(in); got != want {
			t.Fatalf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestStampIsUTC(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	if got := stamp(ts); got != "2024-03-01T11:00:00Z" {
		t.Fatalf("stamp = %s", got)
	}
}

func TestMigrationFilesSorted(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_b.sql": {Data: []byte("SELECT 2")},
		"m/0001_a.sql": {Data: []byte("SELECT 1")},
		"m/README.md":  {Data: []byte("x")},
		"m/sub/x.sql":  {Data: []byte("SELECT 3")},
	}
	names, err := migrationFiles(fsys, "m")
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	if len(names) != 2 || names[0] != "0001_a.sql" || names[1] != "0002_b.sql" {
		t.Fatalf("unexpected files %v", names)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := migrationFiles(db.Migrations, "migrations")
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	if len(names) == 0 || names[0] != "0001_init.sql" {
		t.Fatalf("unexpected embedded migrations %v", names)
	}
}
