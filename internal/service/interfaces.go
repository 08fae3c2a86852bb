// Package service defines the interfaces for all application services.
package service

import (
	"context"

	"github.com/tallyledger/tally/internal/model"
)

// Storage defines the contract for the persistence layer. The categorization
// session and the import pipeline depend on this interface, never on the
// concrete SQLite implementation.
type Storage interface {
	// Transaction operations.
	InsertTransactions(ctx context.Context, transactions []model.Transaction) (inserted, skipped int, err error)
	FirstTransactionNamed(ctx context.Context, name string) (*model.Transaction, error)

	// Category operations.
	CategoryOf(ctx context.Context, name string) (string, error)
	SetCategory(ctx context.Context, name, category string) error
	SetCategoryForNames(ctx context.Context, names []string, category string) error
	Categories(ctx context.Context) ([]string, error)
	CategorySummaries(ctx context.Context) ([]model.CategorySummary, error)

	// Review queue.
	UncategorizedNames(ctx context.Context) ([]model.QueueEntry, error)
	AllNames(ctx context.Context, onlyUncategorized bool) ([]string, error)

	// Content identity and backups.
	Fingerprint(ctx context.Context) (string, error)
	Snapshot(ctx context.Context, dir string) (string, error)

	// Database management.
	Migrate(ctx context.Context) error
	Close() error
}

// SimilarityIndex clusters near-duplicate transaction names so one review
// decision can categorize many rows at once.
type SimilarityIndex interface {
	SimilarNames(name string, threshold int) []string
}
