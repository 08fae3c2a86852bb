package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Fingerprint returns a stable, order-independent hash of the full table
// contents. Each row is serialized, the serializations are sorted, and the
// result is hashed, so two stores with the same rows fingerprint identically
// regardless of insertion order. The similarity cache and backup snapshots
// key on this value.
func (s *SQLiteStorage) Fingerprint(ctx context.Context) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, name, amount, category FROM transactions
	`)
	if err != nil {
		return "", fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var serialized []string
	for rows.Next() {
		var date, name, category string
		var amount decimal.Decimal
		if err := rows.Scan(&date, &name, &amount, &category); err != nil {
			return "", fmt.Errorf("failed to scan row: %w", err)
		}
		serialized = append(serialized, fmt.Sprintf("%s|%s|%s|%s", date, name, amount.String(), category))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("error iterating rows: %w", err)
	}

	sort.Strings(serialized)

	sum := sha256.Sum256([]byte(strings.Join(serialized, "\n")))
	return fmt.Sprintf("%x", sum), nil
}
