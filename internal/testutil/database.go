// Package testutil provides test fixtures for packages that need a real,
// migrated store.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyledger/tally/internal/model"
	"github.com/tallyledger/tally/internal/storage"
)

// SetupTestDB creates a new in-memory store with migrations applied and
// cleanup registered.
func SetupTestDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

// Txn builds a transaction from literal test values. The amount is parsed as
// a decimal string; an empty category means UNKNOWN.
func Txn(t *testing.T, date, name, amount, category string) model.Transaction {
	t.Helper()

	d, err := time.Parse(model.DateFormat, date)
	if err != nil {
		t.Fatalf("bad test date %q: %v", date, err)
	}
	a, err := decimal.NewFromString(amount)
	if err != nil {
		t.Fatalf("bad test amount %q: %v", amount, err)
	}
	return model.NewTransaction(d, name, a, category)
}

// Seed inserts the given transactions, failing the test on any error.
func Seed(t *testing.T, store *storage.SQLiteStorage, txns ...model.Transaction) {
	t.Helper()

	if _, _, err := store.InsertTransactions(context.Background(), txns); err != nil {
		t.Fatalf("failed to seed transactions: %v", err)
	}
}
