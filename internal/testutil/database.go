// Package testutil provides test utilities for the cumin project: isolated
// SQLite databases and fluent builders for test transactions.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/cumin/internal/model"
	"github.com/Veraticus/cumin/internal/service"
	"github.com/Veraticus/cumin/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database seeded with the given
// transactions. It automatically handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t,
//		testutil.NewTransactionBuilder("alice").
//			With("Sole y Gian", "600.00", "UYU").
//			Build(),
//	)
func SetupTestDB(t *testing.T, txns []model.Transaction) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{Transactions: txns})
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, service.Storage) error
	Transactions   []model.Transaction
	Rules          []model.Rule
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	// Create in-memory SQLite storage
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	ctx := context.Background()

	// Register cleanup
	t.Cleanup(func() {
		_ = store.Close()
	})

	// Run migrations unless skipped
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	db := &TestDB{
		Storage: store,
		t:       t,
	}

	if len(opts.Transactions) > 0 {
		db.MustSaveTransactions(opts.Transactions...)
	}

	for i := range opts.Rules {
		if err := store.UpsertRule(ctx, &opts.Rules[i]); err != nil {
			t.Fatalf("failed to seed rule %q: %v", opts.Rules[i].Tokens, err)
		}
	}

	// Run custom setup
	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return db
}

// MustSaveTransactions stores transactions or fails the test.
func (db *TestDB) MustSaveTransactions(txns ...model.Transaction) {
	db.t.Helper()
	if _, err := db.Storage.SaveTransactions(context.Background(), txns); err != nil {
		db.t.Fatalf("failed to seed transactions: %v", err)
	}
}

// MustGetTransaction returns the stored transaction or fails the test.
func (db *TestDB) MustGetTransaction(id string) *model.Transaction {
	db.t.Helper()
	txn, err := db.Storage.GetTransaction(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to get transaction %s: %v", id, err)
	}
	return txn
}

// MustListRules returns owner's rules or fails the test.
func (db *TestDB) MustListRules(owner string) []model.Rule {
	db.t.Helper()
	rules, err := db.Storage.ListRules(context.Background(), owner)
	if err != nil {
		db.t.Fatalf("failed to list rules for %s: %v", owner, err)
	}
	return rules
}
