package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tallyledger/tally/internal/common"
	"github.com/tallyledger/tally/internal/importer"
	"github.com/tallyledger/tally/internal/model"
	"github.com/tallyledger/tally/internal/parse"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import transactions from bank CSV exports",
		Long: `Import transactions from bank CSV exports.

Each file's column layout is detected automatically. Re-importing a file is
safe: rows already in the ledger are skipped. Names that already have a
category keep it.

Examples:
  tally import ~/Downloads/chequing_jan.csv
  tally import ~/Downloads/*.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// Expand globs and collect all files
	var allFiles []string
	for _, pattern := range args {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			// If no glob matches, check if it's a direct file
			if _, err := os.Stat(pattern); err == nil {
				allFiles = append(allFiles, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
		} else {
			allFiles = append(allFiles, matches...)
		}
	}

	if len(allFiles) == 0 {
		return common.NewUserError("no files found to import", nil)
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	var transactions []model.Transaction
	for _, filePath := range allFiles {
		slog.Info("Parsing file", "file", filepath.Base(filePath))

		parsed, err := parse.ParseFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", filePath, err)
		}
		transactions = append(transactions, parsed...)
	}

	result, err := importer.New(store).Import(ctx, transactions)
	if err != nil {
		return err
	}

	cmd.Printf("Imported %d transaction(s), skipped %d duplicate(s) from %d file(s)\n",
		result.Inserted, result.Skipped, len(allFiles))
	return nil
}
