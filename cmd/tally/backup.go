package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the ledger database",
		Long: `Snapshot the ledger database into the backup directory.

Snapshots are named by content fingerprint: if a backup of the current ledger
contents already exists, nothing new is written.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			path, err := store.Snapshot(ctx, backupDir())
			if err != nil {
				return fmt.Errorf("failed to create snapshot: %w", err)
			}

			cmd.Printf("Backup at %s\n", path)
			return nil
		},
	}
}
