package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/tallyledger/tally/internal/config"
	"github.com/tallyledger/tally/internal/storage"
)

// initStorage initializes the store with proper path expansion and
// migrations applied.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/tally/tally.db"
	}
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// dataDir returns the directory holding the store file; the similarity cache
// and backups live beside it unless configured otherwise.
func dataDir() string {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/tally/tally.db"
	}
	return filepath.Dir(config.ExpandPath(dbPath))
}

// backupDir returns the configured backup directory.
func backupDir() string {
	if dir := viper.GetString("backup.dir"); dir != "" {
		return config.ExpandPath(dir)
	}
	return filepath.Join(dataDir(), "backups")
}

// similarityCacheDir returns the configured similarity cache directory.
func similarityCacheDir() string {
	if dir := viper.GetString("similarity.cache_dir"); dir != "" {
		return config.ExpandPath(dir)
	}
	return filepath.Join(dataDir(), ".similarity-cache")
}
