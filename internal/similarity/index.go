// Package similarity clusters near-duplicate transaction names so that one
// review decision can categorize many rows at once. It computes an all-pairs
// fuzzy score between normalized name keys, the single most expensive
// operation in the system, parallelized across CPU cores and cached by store
// fingerprint.
package similarity

import (
	"math"
	"os"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/schollz/progressbar/v3"
)

// DefaultThreshold is the minimum score for two names to count as similar.
const DefaultThreshold = 75

var normalizeRe = regexp.MustCompile(`[\W\d]+`)

// NormalizeKey reduces a transaction name to its comparison key: lowercased
// with digits, punctuation and whitespace stripped. Statement lines that
// differ only in reference numbers normalize to the same key.
func NormalizeKey(name string) string {
	return normalizeRe.ReplaceAllString(strings.ToLower(name), "")
}

// Score returns the fuzzy similarity between two normalized keys in [0,100],
// derived from their Levenshtein distance relative to the longer key.
func Score(a, b string) int {
	if a == b {
		return 100
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(dist)/float64(maxLen))))
}

// Index holds the symmetric all-pairs score matrix over normalized keys.
// Distinct names that share a normalized key (names differing only in digits
// or punctuation) occupy a single matrix row and score 100 against each
// other.
type Index struct {
	names  map[string][]string // normalized key -> original names
	index  map[string]int      // normalized key -> matrix row
	keys   []string
	scores [][]int
}

// BuildOptions configures an index build.
type BuildOptions struct {
	// Workers bounds the build parallelism; 0 means runtime.NumCPU().
	Workers int
	// Progress renders a progress bar on stderr while building.
	Progress bool
}

// Build computes the all-pairs score matrix for the given names. Names that
// share a normalized key collapse into a single matrix row.
func Build(names []string, opts BuildOptions) *Index {
	ix := &Index{
		names: make(map[string][]string, len(names)),
		index: make(map[string]int, len(names)),
	}

	for _, name := range names {
		key := NormalizeKey(name)
		if _, seen := ix.names[key]; !seen {
			ix.index[key] = len(ix.keys)
			ix.keys = append(ix.keys, key)
		}
		ix.names[key] = append(ix.names[key], name)
	}

	n := len(ix.keys)
	ix.scores = make([][]int, n)
	for i := range ix.scores {
		ix.scores[i] = make([]int, n)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	if n == 0 {
		return ix
	}

	var bar *progressbar.ProgressBar
	if opts.Progress {
		bar = progressbar.NewOptions(n,
			progressbar.OptionSetDescription("Computing name similarities"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
		)
	}

	// Each worker owns a contiguous range of rows and fills the upper
	// triangle for those rows, mirroring as it goes. Every (i, j) pair is
	// touched by exactly one worker, so no synchronization is needed beyond
	// the final wait.
	var wg sync.WaitGroup
	chunk := (n + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				ix.scores[i][i] = 100
				for j := i + 1; j < n; j++ {
					score := Score(ix.keys[i], ix.keys[j])
					ix.scores[i][j] = score
					ix.scores[j][i] = score
				}
				if bar != nil {
					_ = bar.Add(1)
				}
			}
		}(start, end)
	}
	wg.Wait()

	if bar != nil {
		_ = bar.Finish()
	}

	return ix
}

// Len returns the number of distinct normalized keys in the index.
func (ix *Index) Len() int {
	return len(ix.keys)
}

// SimilarNames returns the names whose score against the given name exceeds
// the threshold, most similar first, excluding the name itself. Names that
// normalize to the same key as the given name score 100. An unknown name
// yields nil.
func (ix *Index) SimilarNames(name string, threshold int) []string {
	key := NormalizeKey(name)
	row, ok := ix.index[key]
	if !ok {
		return nil
	}

	type match struct {
		name  string
		score int
	}

	var matches []match
	for _, twin := range ix.names[key] {
		if twin != name {
			matches = append(matches, match{name: twin, score: 100})
		}
	}
	for j, other := range ix.keys {
		if j == row || ix.scores[row][j] <= threshold {
			continue
		}
		for _, candidate := range ix.names[other] {
			matches = append(matches, match{name: candidate, score: ix.scores[row][j]})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].name < matches[j].name
	})

	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.name
	}
	return names
}
