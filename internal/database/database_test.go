package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setupTestDB(t testing.TB) (db *Database, dbPath string) {
	t.Helper()

	dbPath = filepath.Join(t.TempDir(), "test.db")
	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db, dbPath
}

func TestNewCreatesDatabaseFile(t *testing.T) {
	db, dbPath := setupTestDB(t)

	if db.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("Expected database file to exist: %v", err)
	}
}

func TestNewReopenKeepsRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	db, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := db.PutArtifact(ctx, readyRecord("fp1", "pdf", 10, time.Unix(100, 0))); err != nil {
		t.Fatalf("PutArtifact() error = %v", err)
	}
	db.Close()

	db, err = New(ctx, dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer db.Close()

	if _, err := db.GetArtifact(ctx, "fp1", "pdf"); err != nil {
		t.Errorf("Expected row to survive reopen, got %v", err)
	}
}

func TestNewFailsForMissingDirectory(t *testing.T) {
	_, err := New(context.Background(), filepath.Join(t.TempDir(), "missing", "sub", "x.db"))
	if err == nil {
		t.Error("Expected error for database in a missing directory")
	}
}

func TestRecordQuery(t *testing.T) {
	// Must not panic for either outcome.
	recordQuery("test_operation", time.Now(), nil)
	recordQuery("test_operation", time.Now(), errors.New("test error"))
}

func TestMaintenanceTimes(t *testing.T) {
	tests := []struct {
		name string
		get  func(*Database, context.Context) (time.Time, error)
		set  func(*Database, context.Context, time.Time) error
	}{
		{"sweep", (*Database).GetLastSweep, (*Database).SetLastSweep},
		{"eviction", (*Database).GetLastEviction, (*Database).SetLastEviction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _ := setupTestDB(t)
			ctx := context.Background()

			got, err := tt.get(db, ctx)
			if err != nil {
				t.Fatalf("get error = %v", err)
			}
			if !got.IsZero() {
				t.Errorf("Expected zero time before the first record, got %v", got)
			}

			now := time.Unix(1700000000, 123456789)
			if err := tt.set(db, ctx, now); err != nil {
				t.Fatalf("set error = %v", err)
			}
			if got, err = tt.get(db, ctx); err != nil || !got.Equal(now) {
				t.Errorf("get = %v, %v; want %v", got, err, now)
			}
		})
	}
}

func TestMaintenanceTimeCorrupt(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	if err := db.SetMetadata(ctx, lastSweepKey, "yesterday"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetLastSweep(ctx); err == nil {
		t.Error("a non-numeric timestamp should be an error")
	}
}

func TestMetadata(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetMetadata(ctx, "nonexistent"); err == nil {
		t.Error("Expected error for non-existent key")
	}

	if err := db.SetMetadata(ctx, "key1", "value1"); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}
	if err := db.SetMetadata(ctx, "key1", "value2"); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}

	value, err := db.GetMetadata(ctx, "key1")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if value != "value2" {
		t.Errorf("Expected value 'value2', got %s", value)
	}
}
