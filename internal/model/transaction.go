// Package model defines the core domain types shared across the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownCategory is the sentinel category for rows that have not been
// reviewed yet. Every stored row carries either this value or a concrete
// category string; there is no "no category" state.
const UnknownCategory = "__UNKNOWN__"

// DateFormat is the calendar-date layout used everywhere a date crosses a
// serialization boundary (storage, fingerprints, CSV exports).
const DateFormat = "2006-01-02"

// Transaction represents a single bank statement line.
type Transaction struct {
	Date     time.Time
	Name     string
	Category string
	Amount   decimal.Decimal
}

// NewTransaction builds a transaction with the UNKNOWN category applied when
// no category is given.
func NewTransaction(date time.Time, name string, amount decimal.Decimal, category string) Transaction {
	if category == "" {
		category = UnknownCategory
	}
	return Transaction{
		Date:     date,
		Name:     name,
		Amount:   amount,
		Category: category,
	}
}

// Categorized reports whether the transaction carries a concrete category.
func (t Transaction) Categorized() bool {
	return t.Category != "" && t.Category != UnknownCategory
}

// Key returns the identity used for duplicate detection: the
// (date, name, amount) triple in a stable textual form.
func (t Transaction) Key() string {
	return fmt.Sprintf("%s:%s:%s", t.Date.Format(DateFormat), t.Name, t.Amount.String())
}

// Hash returns a sha256 digest of the dedup key, useful for log correlation.
func (t Transaction) Hash() string {
	sum := sha256.Sum256([]byte(t.Key()))
	return fmt.Sprintf("%x", sum)
}

// QueueEntry is one uncategorized name awaiting review, with the number of
// matching rows and their total signed amount. Entries are derived from the
// store, never persisted.
type QueueEntry struct {
	Name  string
	Count int
	Total decimal.Decimal
}

// CategorySummary is one assigned category with the number of rows and the
// total signed amount it covers.
type CategorySummary struct {
	Category string
	Count    int
	Total    decimal.Decimal
}
