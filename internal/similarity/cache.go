package similarity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tallyledger/tally/internal/service"
)

// CacheDirName is the directory created next to the store file to hold
// per-fingerprint score matrices.
const CacheDirName = ".similarity-cache"

// ErrCacheMiss indicates that no cache entry exists for a fingerprint.
var ErrCacheMiss = errors.New("similarity cache miss")

// cacheFile is the on-disk shape of a built index.
type cacheFile struct {
	Names  map[string][]string `json:"names"`
	Keys   []string            `json:"keys"`
	Scores [][]int             `json:"scores"`
}

// ForStore loads the index cached for the store's current fingerprint, or
// builds it from the currently uncategorized names and caches the result.
// An interrupted build persists nothing; the next call recomputes fully.
func ForStore(ctx context.Context, store service.Storage, cacheDir string, opts BuildOptions) (*Index, error) {
	fingerprint, err := store.Fingerprint(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint store: %w", err)
	}

	path := filepath.Join(cacheDir, fingerprint+".json")
	ix, err := Load(path)
	if err == nil {
		slog.Debug("Loaded name similarities from cache", "path", path, "keys", ix.Len())
		return ix, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		slog.Warn("Discarding unreadable similarity cache", "path", path, "error", err)
	}

	names, err := store.AllNames(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list uncategorized names: %w", err)
	}

	ix = Build(names, opts)

	if err := ix.Save(path); err != nil {
		// The index is still usable; only the cache write failed.
		slog.Warn("Failed to write similarity cache", "path", path, "error", err)
	}

	return ix, nil
}

// Load reads a cached index from path.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read similarity cache: %w", err)
	}

	var cached cacheFile
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("failed to parse similarity cache: %w", err)
	}

	if len(cached.Scores) != len(cached.Keys) {
		return nil, fmt.Errorf("similarity cache is inconsistent: %d keys, %d score rows",
			len(cached.Keys), len(cached.Scores))
	}

	ix := &Index{
		names:  cached.Names,
		keys:   cached.Keys,
		scores: cached.Scores,
		index:  make(map[string]int, len(cached.Keys)),
	}
	for i, key := range cached.Keys {
		ix.index[key] = i
	}
	return ix, nil
}

// Save writes the index to path atomically via a temp file and rename, so a
// crash mid-write never leaves a partial cache behind.
func (ix *Index) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.Marshal(cacheFile{
		Names:  ix.names,
		Keys:   ix.keys,
		Scores: ix.scores,
	})
	if err != nil {
		return fmt.Errorf("failed to encode similarity cache: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write similarity cache: %w", err)
	}

	return os.Rename(tmpPath, path)
}
