package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyledger/tally/internal/common"
	"github.com/tallyledger/tally/internal/model"
	"github.com/tallyledger/tally/internal/similarity"
	"github.com/tallyledger/tally/internal/storage"
	"github.com/tallyledger/tally/internal/testutil"
)

func buildIndex(t *testing.T, store *storage.SQLiteStorage) *similarity.Index {
	t.Helper()

	names, err := store.AllNames(context.Background(), true)
	require.NoError(t, err)
	return similarity.Build(names, similarity.BuildOptions{Workers: 1})
}

func TestSessionClustersSimilarNames(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	testutil.Seed(t, store,
		testutil.Txn(t, "2024-01-05", "ACME CORP 0001", "-12.50", ""),
		testutil.Txn(t, "2024-01-06", "ACME CORP 0002", "-8.00", ""),
	)

	sess := New(store, buildIndex(t, store), similarity.DefaultThreshold)
	require.NoError(t, sess.Start(ctx))
	assert.Equal(t, Presenting, sess.State())

	// Equal counts; the more negative total is presented first.
	current, err := sess.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ACME CORP 0001", current.Name)
	assert.Equal(t, 1, current.Count)
	assert.Equal(t, []string{"ACME CORP 0002"}, current.SimilarNames)
	require.NotNil(t, current.Example)
	assert.Equal(t, "2024-01-05", current.Example.Date.Format(model.DateFormat))

	// One decision covers the whole cluster.
	require.NoError(t, sess.Assign(ctx, "Groceries", current.SimilarNames))

	done, total := sess.Progress()
	assert.Equal(t, 1, done)
	assert.Equal(t, 1, total)
	assert.Equal(t, Exhausted, sess.State())

	_, err = sess.Current(ctx)
	assert.ErrorIs(t, err, common.ErrEmptyQueue)

	for _, name := range []string{"ACME CORP 0001", "ACME CORP 0002"} {
		category, err := store.CategoryOf(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, "Groceries", category, "name %q", name)
	}
}

func TestSessionPresentationOrder(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	testutil.Seed(t, store,
		testutil.Txn(t, "2024-01-01", "TWICE", "-1.00", ""),
		testutil.Txn(t, "2024-01-02", "TWICE", "-1.00", ""),
		testutil.Txn(t, "2024-01-03", "ONCE", "-1.00", ""),
	)

	sess := New(store, nil, similarity.DefaultThreshold)
	require.NoError(t, sess.Start(ctx))

	current, err := sess.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "TWICE", current.Name)
	assert.Equal(t, 2, current.Count)
	assert.Nil(t, current.SimilarNames)

	require.NoError(t, sess.Assign(ctx, "Groceries", nil))

	current, err = sess.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ONCE", current.Name)
}

func TestSessionSkip(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	testutil.Seed(t, store,
		testutil.Txn(t, "2024-01-01", "LATER", "-10.00", ""),
		testutil.Txn(t, "2024-01-02", "NOW", "-1.00", ""),
	)

	sess := New(store, nil, similarity.DefaultThreshold)
	require.NoError(t, sess.Start(ctx))

	current, err := sess.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "LATER", current.Name)

	// Skip defers within this session only; the store is untouched.
	require.NoError(t, sess.Skip(ctx))

	category, err := store.CategoryOf(ctx, "LATER")
	require.NoError(t, err)
	assert.Equal(t, model.UnknownCategory, category)

	current, err = sess.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "NOW", current.Name)

	require.NoError(t, sess.Assign(ctx, "Groceries", nil))
	assert.Equal(t, Exhausted, sess.State())

	done, total := sess.Progress()
	assert.Equal(t, 2, done)
	assert.Equal(t, 2, total)

	// A fresh session sees the skipped name again.
	fresh := New(store, nil, similarity.DefaultThreshold)
	require.NoError(t, fresh.Start(ctx))
	current, err = fresh.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "LATER", current.Name)
}

func TestSessionUndo(t *testing.T) {
	ctx := context.Background()

	t.Run("undo of an assignment reverts the store and re-presents the name", func(t *testing.T) {
		store := testutil.SetupTestDB(t)
		testutil.Seed(t, store,
			testutil.Txn(t, "2024-01-01", "FIRST", "-10.00", ""),
			testutil.Txn(t, "2024-01-02", "SECOND", "-1.00", ""),
		)

		sess := New(store, nil, similarity.DefaultThreshold)
		require.NoError(t, sess.Start(ctx))
		require.NoError(t, sess.Assign(ctx, "Groceries", nil))

		require.NoError(t, sess.Undo(ctx))

		category, err := store.CategoryOf(ctx, "FIRST")
		require.NoError(t, err)
		assert.Equal(t, model.UnknownCategory, category)

		current, err := sess.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, "FIRST", current.Name)

		done, _ := sess.Progress()
		assert.Equal(t, 0, done)
	})

	t.Run("undo of a cluster assignment reverts every co-assigned name", func(t *testing.T) {
		store := testutil.SetupTestDB(t)
		testutil.Seed(t, store,
			testutil.Txn(t, "2024-01-05", "ACME CORP 0001", "-12.50", ""),
			testutil.Txn(t, "2024-01-06", "ACME CORP 0002", "-8.00", ""),
		)

		sess := New(store, buildIndex(t, store), similarity.DefaultThreshold)
		require.NoError(t, sess.Start(ctx))

		current, err := sess.Current(ctx)
		require.NoError(t, err)
		require.NoError(t, sess.Assign(ctx, "Groceries", current.SimilarNames))
		require.NoError(t, sess.Undo(ctx))

		for _, name := range []string{"ACME CORP 0001", "ACME CORP 0002"} {
			category, err := store.CategoryOf(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, model.UnknownCategory, category, "name %q", name)
		}

		current, err = sess.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ACME CORP 0001", current.Name)
	})

	t.Run("undo of a skip only re-presents the name", func(t *testing.T) {
		store := testutil.SetupTestDB(t)
		testutil.Seed(t, store,
			testutil.Txn(t, "2024-01-01", "FIRST", "-10.00", ""),
			testutil.Txn(t, "2024-01-02", "SECOND", "-1.00", ""),
		)

		sess := New(store, nil, similarity.DefaultThreshold)
		require.NoError(t, sess.Start(ctx))
		require.NoError(t, sess.Skip(ctx))
		require.NoError(t, sess.Undo(ctx))

		current, err := sess.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, "FIRST", current.Name)
	})

	t.Run("repeated undo walks backward one action at a time", func(t *testing.T) {
		store := testutil.SetupTestDB(t)
		testutil.Seed(t, store,
			testutil.Txn(t, "2024-01-01", "FIRST", "-10.00", ""),
			testutil.Txn(t, "2024-01-02", "SECOND", "-1.00", ""),
		)

		sess := New(store, nil, similarity.DefaultThreshold)
		require.NoError(t, sess.Start(ctx))
		require.NoError(t, sess.Assign(ctx, "Groceries", nil))
		require.NoError(t, sess.Assign(ctx, "Travel", nil))
		assert.Equal(t, Exhausted, sess.State())

		require.NoError(t, sess.Undo(ctx))
		current, err := sess.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, "SECOND", current.Name)

		require.NoError(t, sess.Undo(ctx))
		current, err = sess.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, "FIRST", current.Name)

		// Nothing left to undo; this is a no-op.
		require.NoError(t, sess.Undo(ctx))
		current, err = sess.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, "FIRST", current.Name)
	})

	t.Run("exhausted session revives on undo", func(t *testing.T) {
		store := testutil.SetupTestDB(t)
		testutil.Seed(t, store,
			testutil.Txn(t, "2024-01-01", "ONLY", "-10.00", ""),
		)

		sess := New(store, nil, similarity.DefaultThreshold)
		require.NoError(t, sess.Start(ctx))
		require.NoError(t, sess.Assign(ctx, "Groceries", nil))
		assert.Equal(t, Exhausted, sess.State())

		require.NoError(t, sess.Undo(ctx))
		assert.Equal(t, Presenting, sess.State())

		current, err := sess.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ONLY", current.Name)
	})
}

func TestSessionAssignValidation(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	testutil.Seed(t, store,
		testutil.Txn(t, "2024-01-01", "ACME CORP", "-10.00", ""),
	)

	sess := New(store, nil, similarity.DefaultThreshold)
	require.NoError(t, sess.Start(ctx))

	assert.Error(t, sess.Assign(ctx, "", nil))
	assert.Error(t, sess.Assign(ctx, model.UnknownCategory, nil))

	// The rejected assignments changed nothing.
	category, err := store.CategoryOf(ctx, "ACME CORP")
	require.NoError(t, err)
	assert.Equal(t, model.UnknownCategory, category)
}

func TestSessionNotStarted(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	sess := New(store, nil, similarity.DefaultThreshold)
	assert.Equal(t, Idle, sess.State())

	_, err := sess.Current(ctx)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, sess.Assign(ctx, "Groceries", nil), ErrNotStarted)
	assert.ErrorIs(t, sess.Skip(ctx), ErrNotStarted)
	assert.ErrorIs(t, sess.Undo(ctx), ErrNotStarted)
}

func TestSessionEmptyStore(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)

	sess := New(store, nil, similarity.DefaultThreshold)
	require.NoError(t, sess.Start(ctx))
	assert.Equal(t, Exhausted, sess.State())

	_, err := sess.Current(ctx)
	assert.ErrorIs(t, err, common.ErrEmptyQueue)
	assert.ErrorIs(t, sess.Assign(ctx, "Groceries", nil), common.ErrEmptyQueue)
	assert.ErrorIs(t, sess.Skip(ctx), common.ErrEmptyQueue)
}

func TestSessionStaleName(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	testutil.Seed(t, store,
		testutil.Txn(t, "2024-01-01", "GONE", "-10.00", ""),
		testutil.Txn(t, "2024-01-02", "STILL HERE", "-1.00", ""),
	)

	sess := New(store, nil, similarity.DefaultThreshold)
	require.NoError(t, sess.Start(ctx))

	current, err := sess.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "GONE", current.Name)

	// Categorized behind the session's back, e.g. by a concurrent import.
	require.NoError(t, store.SetCategory(ctx, "GONE", "Groceries"))

	// The assignment lands nowhere; the session advances instead.
	require.NoError(t, sess.Assign(ctx, "Travel", nil))

	category, err := store.CategoryOf(ctx, "GONE")
	require.NoError(t, err)
	assert.Equal(t, "Groceries", category)

	current, err = sess.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "STILL HERE", current.Name)

	done, _ := sess.Progress()
	assert.Equal(t, 0, done)
}

func TestSessionSimilarCandidatesShrink(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t)
	testutil.Seed(t, store,
		testutil.Txn(t, "2024-01-05", "ACME CORP 0001", "-12.50", ""),
		testutil.Txn(t, "2024-01-06", "ACME CORP 0002", "-8.00", ""),
	)

	sess := New(store, buildIndex(t, store), similarity.DefaultThreshold)
	require.NoError(t, sess.Start(ctx))

	// Decline the suggestion and categorize only the presented name.
	require.NoError(t, sess.Assign(ctx, "Groceries", nil))

	// The handled name is no longer suggested for its twin.
	current, err := sess.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ACME CORP 0002", current.Name)
	assert.Empty(t, current.SimilarNames)
}
