package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tallyledger/tally/internal/cli"
	"github.com/tallyledger/tally/internal/session"
	"github.com/tallyledger/tally/internal/similarity"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Interactively categorize uncategorized transaction names",
		Long: `Interactively categorize uncategorized transaction names.

Names are presented most frequent first. Assigning a category can cover
similar names in one action; skip defers a name until the next session; undo
reverts the most recent assignment. A backup snapshot of the ledger is taken
before the session starts.`,
		RunE: runReview,
	}
	return cmd
}

func runReview(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	// Snapshot before any categorization; a no-op when nothing changed
	// since the last backup.
	if path, err := store.Snapshot(ctx, backupDir()); err != nil {
		slog.Warn("Failed to create backup snapshot", "error", err)
	} else {
		slog.Debug("Backup snapshot in place", "path", path)
	}

	index, err := similarity.ForStore(ctx, store, similarityCacheDir(), similarity.BuildOptions{
		Progress: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build similarity index: %w", err)
	}

	threshold := viper.GetInt("similarity.threshold")
	if threshold <= 0 || threshold > 100 {
		threshold = similarity.DefaultThreshold
	}

	sess := session.New(store, index, threshold)
	if err := sess.Start(ctx); err != nil {
		return err
	}

	return cli.NewReviewer(cmd.InOrStdin(), cmd.OutOrStdout(), store).Run(ctx, sess)
}
