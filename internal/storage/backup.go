package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Snapshot copies the persisted store into dir, named by creation time and
// content fingerprint. Idempotent: if a backup with the current fingerprint
// already exists, nothing is written and its path is returned.
func (s *SQLiteStorage) Snapshot(ctx context.Context, dir string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateString(dir, "dir"); err != nil {
		return "", err
	}

	fingerprint, err := s.Fingerprint(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint store: %w", err)
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	// The fingerprint suffix is what makes the snapshot idempotent; the
	// timestamp prefix only keeps listings chronological.
	suffix := fmt.Sprintf("-%s.db", fingerprint[:16])
	existing, err := findBackup(dir, suffix)
	if err != nil {
		return "", err
	}
	if existing != "" {
		slog.Debug("Backup with current fingerprint already exists", "path", existing)
		return existing, nil
	}

	dest := filepath.Join(dir, fmt.Sprintf("%s%s", time.Now().Format("2006-01-02-150405"), suffix))
	if err := s.backupDatabase(ctx, dest); err != nil {
		return "", fmt.Errorf("failed to back up database: %w", err)
	}

	slog.Info("Created backup snapshot", "path", dest, "fingerprint", fingerprint[:16])
	return dest, nil
}

func findBackup(dir, suffix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read backup directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", nil
}

func (s *SQLiteStorage) backupDatabase(ctx context.Context, destPath string) error {
	// Ensure WAL contents are in the main database file first.
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}

	// VACUUM INTO produces a consistent copy without closing the connection
	// (SQLite 3.27+). The destination path cannot be a placeholder.
	if strings.ContainsAny(destPath, `'";`) {
		return fmt.Errorf("invalid destination path: contains forbidden characters")
	}
	query := fmt.Sprintf("VACUUM INTO '%s'", destPath)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		// Fall back to a plain file copy.
		slog.Debug("VACUUM INTO failed, falling back to file copy", "error", err)
		return copyFile(s.dbPath, destPath)
	}

	return nil
}

// copyFile copies src to dst via a temporary file and an atomic rename.
func copyFile(src, dst string) error {
	tmpDst := dst + ".tmp"

	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()

	destination, err := os.Create(tmpDst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destination, source); err != nil {
		_ = destination.Close()
		_ = os.Remove(tmpDst)
		return err
	}

	if err := destination.Close(); err != nil {
		_ = os.Remove(tmpDst)
		return err
	}

	return os.Rename(tmpDst, dst)
}
