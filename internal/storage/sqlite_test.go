package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyledger/tally/internal/model"
)

func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()

	store, err := NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return store, func() {
		_ = store.Close()
	}
}

func testTxn(t *testing.T, date, name, amount, category string) model.Transaction {
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
