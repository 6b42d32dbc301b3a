// Package testutil provides shared helpers for bankflow tests: an in-memory
// database, a controllable clock, and transaction fixtures.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/bankflow/internal/model"
	"github.com/Veraticus/bankflow/internal/service"
	"github.com/Veraticus/bankflow/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, service.Storage) error
	Transactions   []model.Transaction
	SnapshotAt     time.Time
	SkipMigrations bool
}

// SetupTestDB creates a migrated in-memory database that is closed when the test ends.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithOptions creates a test database with custom options.
// When Transactions is set, a snapshot holding them is written with
// LastUpdated = SnapshotAt (or now).
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	ctx := context.Background()

	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	if opts.Transactions != nil {
		stamp := opts.SnapshotAt
		if stamp.IsZero() {
			stamp = time.Now()
		}
		err := store.UpdateSnapshot(ctx, func(s *service.Snapshot) error {
			s.Transactions = append([]model.Transaction(nil), opts.Transactions...)
			s.LastUpdated = stamp
			return nil
		})
		if err != nil {
			t.Fatalf("failed to seed snapshot: %v", err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{
		Storage: store,
		t:       t,
	}
}

// MustSnapshot loads the stored snapshot or fails the test.
func (db *TestDB) MustSnapshot() *service.Snapshot {
	db.t.Helper()
	snap, err := db.Storage.LoadSnapshot(context.Background())
	if err != nil {
		db.t.Fatalf("failed to load snapshot: %v", err)
	}
	return snap
}
