package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tallyledger/tally/internal/model"
)

func categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories and how much of the ledger remains unreviewed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			summaries, err := store.CategorySummaries(ctx)
			if err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}

			if len(summaries) == 0 {
				cmd.Println("No categories yet; run `tally review` to start categorizing.")
			}
			for _, summary := range summaries {
				cmd.Printf("%-30s %5d transaction(s)  %12s\n",
					summary.Category, summary.Count, summary.Total.StringFixed(2))
			}

			queue, err := store.UncategorizedNames(ctx)
			if err != nil {
				return fmt.Errorf("failed to count uncategorized names: %w", err)
			}
			remaining := 0
			for _, entry := range queue {
				remaining += entry.Count
			}
			if remaining > 0 {
				cmd.Printf("\n%d transaction(s) across %d name(s) still %s\n",
					remaining, len(queue), model.UnknownCategory)
			}
			return nil
		},
	}
}
