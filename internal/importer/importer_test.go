package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyledger/tally/internal/common"
	"github.com/tallyledger/tally/internal/model"
	"github.com/tallyledger/tally/internal/testutil"
)

func TestImport(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts new transactions", func(t *testing.T) {
		store := testutil.SetupTestDB(t)

		result, err := New(store).Import(ctx, []model.Transaction{
			testutil.Txn(t, "2024-01-05", "ACME CORP", "-12.50", ""),
			testutil.Txn(t, "2024-01-06", "ZETA LLC", "-8.00", ""),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, result.Inserted)
		assert.Equal(t, 0, result.Skipped)
	})

	t.Run("re-importing an overlapping export is idempotent", func(t *testing.T) {
		store := testutil.SetupTestDB(t)
		imp := New(store)

		_, err := imp.Import(ctx, []model.Transaction{
			testutil.Txn(t, "2024-01-05", "ACME CORP", "-12.50", ""),
			testutil.Txn(t, "2024-01-06", "ACME CORP", "-8.00", ""),
		})
		require.NoError(t, err)

		// The second export repeats one row and adds one.
		result, err := imp.Import(ctx, []model.Transaction{
			testutil.Txn(t, "2024-01-06", "ACME CORP", "-8.00", ""),
			testutil.Txn(t, "2024-01-07", "ACME CORP", "-3.25", ""),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Inserted)
		assert.Equal(t, 1, result.Skipped)

		queue, err := store.UncategorizedNames(ctx)
		require.NoError(t, err)
		require.Len(t, queue, 1)
		assert.Equal(t, 3, queue[0].Count)
	})

	t.Run("established categories win over uncategorized records", func(t *testing.T) {
		store := testutil.SetupTestDB(t)
		imp := New(store)

		_, err := imp.Import(ctx, []model.Transaction{
			testutil.Txn(t, "2024-01-05", "ACME CORP", "-12.50", "Groceries"),
		})
		require.NoError(t, err)

		result, err := imp.Import(ctx, []model.Transaction{
			testutil.Txn(t, "2024-02-05", "ACME CORP", "-9.99", ""),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Inserted)

		queue, err := store.UncategorizedNames(ctx)
		require.NoError(t, err)
		assert.Empty(t, queue)
	})

	t.Run("a contradictory category fails the whole batch", func(t *testing.T) {
		store := testutil.SetupTestDB(t)
		imp := New(store)

		_, err := imp.Import(ctx, []model.Transaction{
			testutil.Txn(t, "2024-01-05", "ACME CORP", "-12.50", "Groceries"),
		})
		require.NoError(t, err)

		_, err = imp.Import(ctx, []model.Transaction{
			testutil.Txn(t, "2024-02-01", "ZETA LLC", "-3.25", ""),
			testutil.Txn(t, "2024-02-05", "ACME CORP", "-9.99", "Travel"),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrCategoryConflict)

		var conflict *common.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "ACME CORP", conflict.Name)
		assert.Equal(t, "Groceries", conflict.Existing)
		assert.Equal(t, "Travel", conflict.Incoming)

		// Nothing from the failed batch landed.
		names, err := store.AllNames(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"ACME CORP"}, names)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		store := testutil.SetupTestDB(t)

		result, err := New(store).Import(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, Result{}, result)
	})
}
