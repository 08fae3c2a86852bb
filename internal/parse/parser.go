// Package parse reads bank-export CSV files in the handful of column layouts
// the supported banks produce. It is the only component that knows about
// those layouts; to the import pipeline it is simply a producer of
// transaction records.
package parse

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyledger/tally/internal/model"
)

// RedactedReference replaces per-transaction reference numbers in names that
// would otherwise make every occurrence of the same counterparty unique and
// impossible to categorize by name.
const RedactedReference = "__REDACTED_TRANSACTION_NUMBER__"

// spreadsheetMarker is the sentinel in the last column of rows exported from
// the manual spreadsheet, distinguishing them from the 5-column card layout.
const spreadsheetMarker = "SPREADSHEET"

// chequing transaction prefixes that are followed by a reference number.
var referencePrefixes = []string{
	"Internet Banking INTERNET TRANSFER",
	"Internet Banking INTERNET BILL PAY",
	"Electronic Funds Transfer PAY",
	"Point of Sale - Interac RETAIL PURCHASE",
}

var dateLayouts = []string{
	model.DateFormat,
	"2006/01/02",
	"01/02/2006",
}

// ParseFile reads and parses one CSV export.
func ParseFile(path string) ([]model.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// Parse reads CSV rows and returns the transactions they describe. The
// layout of each row is recognized by column count and the spreadsheet
// marker column. A row that fails to parse is a hard error for the whole
// file, except on the very first row, which is tolerated as a probable
// header. Rows with an unrecognized column count are skipped.
func Parse(r io.Reader) ([]model.Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var transactions []model.Transaction
	for lineNum := 0; ; lineNum++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", lineNum, err)
		}

		txn, err := parseLine(record)
		if err != nil {
			if lineNum == 0 {
				// Sometimes the first line is a heading.
				slog.Debug("Skipping probable header row", "line", record)
				continue
			}
			return nil, fmt.Errorf("line %d %v: %w", lineNum, record, err)
		}
		if txn != nil {
			transactions = append(transactions, *txn)
		}
	}

	return transactions, nil
}

// parseLine recognizes one row. A nil transaction with nil error means the
// row's column count matches no known layout.
func parseLine(record []string) (*model.Transaction, error) {
	switch len(record) {
	case 4:
		// Chequing export: date, name, credit, debit.
		name := record[1]
		for _, prefix := range referencePrefixes {
			if strings.HasPrefix(name, prefix) {
				name = redactReference(name, prefix)
			}
		}
		return makeTransaction(record[0], name, record[2], record[3])
	case 5:
		if record[4] == spreadsheetMarker {
			// Spreadsheet export: date, _, name, amount, marker.
			return makeTransaction(record[0], record[2], record[3], "")
		}
		// Credit card export: date, name, credit, debit, _.
		return makeTransaction(record[0], record[1], record[2], record[3])
	case 12:
		// Second credit card layout: amount is already signed.
		return makeTransaction(record[0], record[7], record[11], "")
	default:
		return nil, nil
	}
}

func makeTransaction(dateField, name, creditField, debitField string) (*model.Transaction, error) {
	date, err := parseDate(dateField)
	if err != nil {
		return nil, err
	}

	credit, err := parseAmount(creditField)
	if err != nil {
		return nil, err
	}
	debit, err := parseAmount(debitField)
	if err != nil {
		return nil, err
	}

	txn := model.NewTransaction(date, name, credit.Sub(debit), "")
	return &txn, nil
}

func parseDate(field string) (time.Time, error) {
	field = strings.TrimSpace(field)
	for _, layout := range dateLayouts {
		if date, err := time.Parse(layout, field); err == nil {
			return date, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", field)
}

// parseAmount converts a statement amount like "$1,234.56" to a decimal.
// An empty field means zero.
func parseAmount(field string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(field))
	if cleaned == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable amount %q", field)
	}
	return amount, nil
}

// redactReference replaces the reference number that follows a known prefix.
func redactReference(name, prefix string) string {
	words := strings.Fields(name)
	position := len(strings.Fields(prefix))
	if position >= len(words) {
		return name
	}
	return strings.Replace(name, words[position], RedactedReference, 1)
}
