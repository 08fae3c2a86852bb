// Package importer merges freshly parsed transactions with the store's
// existing name-to-category knowledge before insertion.
package importer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tallyledger/tally/internal/common"
	"github.com/tallyledger/tally/internal/model"
	"github.com/tallyledger/tally/internal/service"
)

// Importer is the import pipeline between the parsers and the Record Store.
type Importer struct {
	store service.Storage
}

// New creates an import pipeline over the given store.
func New(store service.Storage) *Importer {
	return &Importer{store: store}
}

// Result summarizes one import batch.
type Result struct {
	Inserted int
	Skipped  int
}

// Import merges the incoming transactions with established categories and
// bulk-inserts them. Existing knowledge wins: a record whose name already has
// a category is stored with that category regardless of what it carried. A
// record that explicitly claims a different category than the established one
// fails the whole batch with a category conflict and inserts nothing.
// Duplicate (date, name, amount) rows are silently skipped and counted, which
// is what makes re-importing overlapping exports idempotent.
func (i *Importer) Import(ctx context.Context, transactions []model.Transaction) (Result, error) {
	if len(transactions) == 0 {
		return Result{}, nil
	}

	merged := make([]model.Transaction, len(transactions))
	for n, txn := range transactions {
		established, err := i.store.CategoryOf(ctx, txn.Name)
		if err != nil {
			return Result{}, fmt.Errorf("failed to look up category for %q: %w", txn.Name, err)
		}

		if established != model.UnknownCategory {
			if txn.Categorized() && txn.Category != established {
				return Result{}, common.NewConflictError(txn.Name, established, txn.Category)
			}
			txn.Category = established
		} else if txn.Category == "" {
			txn.Category = model.UnknownCategory
		}

		merged[n] = txn
	}

	inserted, skipped, err := i.store.InsertTransactions(ctx, merged)
	if err != nil {
		return Result{}, fmt.Errorf("failed to insert transactions: %w", err)
	}

	if skipped > 0 {
		slog.Debug("Skipped duplicate transactions during import", "count", skipped)
	}
	slog.Info("Import complete", "inserted", inserted, "skipped", skipped)

	return Result{Inserted: inserted, Skipped: skipped}, nil
}
