package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tallyledger/tally/internal/common"
	"github.com/tallyledger/tally/internal/model"
)

// InsertTransactions saves a batch of transactions inside a single database
// transaction. For each row the stored category is the name's established
// category if one exists, else the incoming category, else UNKNOWN. An
// incoming category that contradicts an established one aborts the whole
// batch with a category conflict; (date, name, amount) duplicates are
// silently skipped and counted.
func (s *SQLiteStorage) InsertTransactions(ctx context.Context, transactions []model.Transaction) (int, int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, 0, err
	}
	if err := validateTransactions(transactions); err != nil {
		return 0, 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (date, name, amount, category)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	// Categories established by earlier rows of this batch count too: two
	// conflicting rows in one file must abort just like a store conflict.
	batchCategories := make(map[string]string)

	var inserted, skipped int
	for _, txn := range transactions {
		established, err := categoryOf(ctx, tx, txn.Name)
		if err != nil {
			return 0, 0, err
		}
		if established == model.UnknownCategory {
			established = batchCategories[txn.Name]
		}

		category := txn.Category
		if category == "" {
			category = model.UnknownCategory
		}

		switch {
		case established == "" || established == model.UnknownCategory:
			// No prior knowledge; keep the incoming category.
		case category == model.UnknownCategory:
			// Existing knowledge wins.
			category = established
		case category != established:
			return 0, 0, common.NewConflictError(txn.Name, established, category)
		}

		if category != model.UnknownCategory {
			batchCategories[txn.Name] = category
		}

		res, err := stmt.ExecContext(ctx,
			txn.Date.Format(model.DateFormat),
			txn.Name,
			txn.Amount,
			category,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to insert transaction %s: %w", txn.Hash(), err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return 0, 0, fmt.Errorf("failed to read rows affected: %w", err)
		}
		if affected == 0 {
			skipped++
			slog.Debug("Skipped duplicate transaction",
				"name", txn.Name,
				"date", txn.Date.Format(model.DateFormat),
				"amount", txn.Amount)
			continue
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return inserted, skipped, nil
}

// CategoryOf returns the unique non-UNKNOWN category for a name, or UNKNOWN
// when no row for the name has been categorized.
func (s *SQLiteStorage) CategoryOf(ctx context.Context, name string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateString(name, "name"); err != nil {
		return "", err
	}
	return categoryOf(ctx, s.db, name)
}

func categoryOf(ctx context.Context, q queryable, name string) (string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT category
		FROM transactions
		WHERE name = ? AND category != ?
	`, name, model.UnknownCategory)
	if err != nil {
		return "", fmt.Errorf("failed to query category for name: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []string
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return "", fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("error iterating categories: %w", err)
	}

	switch len(categories) {
	case 0:
		return model.UnknownCategory, nil
	case 1:
		return categories[0], nil
	default:
		return "", fmt.Errorf("%w: name %q has categories %v",
			common.ErrInvariantViolation, name, categories)
	}
}

// SetCategory updates every row with the given name to the given category.
// Passing model.UnknownCategory reverts the name to the unreviewed state.
func (s *SQLiteStorage) SetCategory(ctx context.Context, name, category string) error {
	return s.SetCategoryForNames(ctx, []string{name}, category)
}

// SetCategoryForNames updates every row of every listed name to the given
// category inside one database transaction; either all names are updated or
// none are.
func (s *SQLiteStorage) SetCategoryForNames(ctx context.Context, names []string, category string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("%w: names", ErrEmptySlice)
	}
	if err := validateString(category, "category"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE transactions SET category = ? WHERE name = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, name := range names {
		if err := validateString(name, "name"); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, category, name); err != nil {
			return fmt.Errorf("failed to update category for %q: %w", name, err)
		}
	}

	return tx.Commit()
}

// UncategorizedNames returns the review queue: UNKNOWN rows grouped by name,
// ordered by occurrence count descending, then total signed amount ascending,
// then name. The session depends on this ordering being deterministic.
func (s *SQLiteStorage) UncategorizedNames(ctx context.Context) ([]model.QueueEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, COUNT(*), SUM(amount)
		FROM transactions
		WHERE category = ?
		GROUP BY name
		ORDER BY COUNT(*) DESC, SUM(amount) ASC, name ASC
	`, model.UnknownCategory)
	if err != nil {
		return nil, fmt.Errorf("failed to query uncategorized names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.QueueEntry
	for rows.Next() {
		var entry model.QueueEntry
		if err := rows.Scan(&entry.Name, &entry.Count, &entry.Total); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Categories returns the distinct non-UNKNOWN category values, sorted.
func (s *SQLiteStorage) Categories(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT category
		FROM transactions
		WHERE category != ?
		ORDER BY category
	`, model.UnknownCategory)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []string
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}

	return categories, rows.Err()
}

// CategorySummaries returns each assigned category with the number of rows
// and total signed amount it covers, sorted by category.
func (s *SQLiteStorage) CategorySummaries(ctx context.Context) ([]model.CategorySummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*), SUM(amount)
		FROM transactions
		WHERE category != ?
		GROUP BY category
		ORDER BY category
	`, model.UnknownCategory)
	if err != nil {
		return nil, fmt.Errorf("failed to query category summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []model.CategorySummary
	for rows.Next() {
		var summary model.CategorySummary
		if err := rows.Scan(&summary.Category, &summary.Count, &summary.Total); err != nil {
			return nil, fmt.Errorf("failed to scan category summary: %w", err)
		}
		summaries = append(summaries, summary)
	}

	return summaries, rows.Err()
}

// AllNames returns the distinct transaction names, optionally restricted to
// uncategorized rows. The similarity index builds from this set.
func (s *SQLiteStorage) AllNames(ctx context.Context, onlyUncategorized bool) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT DISTINCT name FROM transactions ORDER BY name`
	args := []any{}
	if onlyUncategorized {
		query = `SELECT DISTINCT name FROM transactions WHERE category = ? ORDER BY name`
		args = append(args, model.UnknownCategory)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan name: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// FirstTransactionNamed returns one example row for a name, earliest first,
// for display alongside the name under review.
func (s *SQLiteStorage) FirstTransactionNamed(ctx context.Context, name string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	var txn model.Transaction
	var date string
	err := s.db.QueryRowContext(ctx, `
		SELECT date, name, amount, category
		FROM transactions
		WHERE name = ?
		ORDER BY date ASC
		LIMIT 1
	`, name).Scan(&date, &txn.Name, &txn.Amount, &txn.Category)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	txn.Date, err = time.Parse(model.DateFormat, date)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored date %q: %w", date, err)
	}

	return &txn, nil
}
