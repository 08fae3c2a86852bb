// Package session implements the categorization workflow engine: a stateful
// cursor over the set of transaction names that still lack a category,
// offering deterministic presentation order, bulk assignment across similar
// names, per-session skipping, and undo of the most recent action.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tallyledger/tally/internal/common"
	"github.com/tallyledger/tally/internal/model"
	"github.com/tallyledger/tally/internal/service"
)

// State is the session's position in its lifecycle.
type State int

// Session states.
const (
	// Idle means Start has not been called yet.
	Idle State = iota
	// Presenting means a name is currently offered for review.
	Presenting
	// Exhausted means no uncategorized names remain for this session.
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Presenting:
		return "presenting"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrNotStarted is returned for operations invoked before Start.
var ErrNotStarted = errors.New("session not started")

// HistoryEntry records one forward action so it can be reversed. Entries with
// an empty Category are skips: the store was not touched.
type HistoryEntry struct {
	Name         string
	Category     string
	SimilarNames []string
	Count        int
}

// Presentation is everything the caller needs to review the current name.
type Presentation struct {
	Example      *model.Transaction
	Name         string
	SimilarNames []string
	Count        int
	Done         int
	Total        int
}

// Session is a single-writer cursor over the uncategorized-name queue. It is
// not safe for concurrent use; serialize callers externally, one session per
// interactive client. History lives in memory only: a restarted process gets
// a fresh session rebuilt from the store's current UNKNOWN set.
type Session struct {
	store     service.Storage
	index     service.SimilarityIndex
	history   []HistoryEntry
	queue     []model.QueueEntry
	threshold int
	state     State
}

// New creates a session over the given store and similarity index. The
// threshold bounds which similar names are suggested alongside each
// presented name.
func New(store service.Storage, index service.SimilarityIndex, threshold int) *Session {
	return &Session{
		store:     store,
		index:     index,
		threshold: threshold,
		state:     Idle,
	}
}

// Start loads the queue and positions the session on the highest-priority
// uncategorized name.
func (s *Session) Start(ctx context.Context) error {
	return s.Refresh(ctx)
}

// Refresh recomputes the queue from the store, dropping names already
// handled in this session, and re-derives the state.
func (s *Session) Refresh(ctx context.Context) error {
	entries, err := s.store.UncategorizedNames(ctx)
	if err != nil {
		return fmt.Errorf("failed to load uncategorized names: %w", err)
	}

	handled := make(map[string]bool, len(s.history))
	for _, entry := range s.history {
		handled[entry.Name] = true
	}

	queue := entries[:0:0]
	for _, entry := range entries {
		if !handled[entry.Name] {
			queue = append(queue, entry)
		}
	}

	s.queue = queue
	s.advance()
	return nil
}

// State reports the current session state.
func (s *Session) State() State {
	return s.state
}

// Current returns the presentation for the name under review. It returns
// common.ErrEmptyQueue once the session is exhausted; this is the normal
// terminal signal, not a failure.
func (s *Session) Current(ctx context.Context) (*Presentation, error) {
	switch s.state {
	case Idle:
		return nil, ErrNotStarted
	case Exhausted:
		return nil, common.ErrEmptyQueue
	case Presenting:
	}

	entry := s.queue[0]

	example, err := s.store.FirstTransactionNamed(ctx, entry.Name)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to load example transaction: %w", err)
	}

	done, total := s.Progress()
	return &Presentation{
		Name:         entry.Name,
		Count:        entry.Count,
		Example:      example,
		SimilarNames: s.similarCandidates(entry.Name),
		Done:         done,
		Total:        total,
	}, nil
}

// similarCandidates returns similar names that are still awaiting review in
// this session; names already assigned or skipped are not offered again.
func (s *Session) similarCandidates(name string) []string {
	if s.index == nil {
		return nil
	}

	pending := make(map[string]bool, len(s.queue))
	for _, entry := range s.queue {
		pending[entry.Name] = true
	}

	var candidates []string
	for _, similar := range s.index.SimilarNames(name, s.threshold) {
		if similar != name && pending[similar] {
			candidates = append(candidates, similar)
		}
	}
	return candidates
}

// Assign writes category to the store for the current name and any accepted
// similar names, atomically, and appends exactly one history entry. On store
// failure nothing is recorded and the session keeps presenting the same
// name. A name that disappeared from the store since presentation is treated
// as nothing to do: the session advances to the next valid name.
func (s *Session) Assign(ctx context.Context, category string, similarNames []string) error {
	if s.state == Idle {
		return ErrNotStarted
	}
	if s.state == Exhausted {
		return common.ErrEmptyQueue
	}
	if category == "" || category == model.UnknownCategory {
		return fmt.Errorf("cannot assign category %q", category)
	}

	current := s.queue[0]

	stale, err := s.staleCheck(ctx, current.Name)
	if err != nil {
		return err
	}
	if stale {
		return s.Refresh(ctx)
	}

	names := append([]string{current.Name}, similarNames...)
	if err := s.store.SetCategoryForNames(ctx, names, category); err != nil {
		return fmt.Errorf("failed to assign category: %w", err)
	}

	s.history = append(s.history, HistoryEntry{
		Name:         current.Name,
		Count:        current.Count,
		Category:     category,
		SimilarNames: similarNames,
	})

	slog.Debug("Assigned category",
		"name", current.Name,
		"category", category,
		"co_assigned", len(similarNames))

	return s.Refresh(ctx)
}

// Skip defers the current name for the rest of this session without touching
// the store. The name stays UNKNOWN and reappears in a future session.
func (s *Session) Skip(ctx context.Context) error {
	if s.state == Idle {
		return ErrNotStarted
	}
	if s.state == Exhausted {
		return common.ErrEmptyQueue
	}

	current := s.queue[0]

	stale, err := s.staleCheck(ctx, current.Name)
	if err != nil {
		return err
	}
	if stale {
		return s.Refresh(ctx)
	}

	s.history = append(s.history, HistoryEntry{
		Name:  current.Name,
		Count: current.Count,
	})

	slog.Debug("Skipped name", "name", current.Name)

	return s.Refresh(ctx)
}

// Undo reverses the most recent assign or skip: the affected names revert to
// UNKNOWN in the store and the name is re-presented as current. A no-op when
// the history is empty. Repeated calls walk backward one action at a time.
func (s *Session) Undo(ctx context.Context) error {
	if s.state == Idle {
		return ErrNotStarted
	}
	if len(s.history) == 0 {
		return nil
	}

	entry := s.history[len(s.history)-1]

	// Skips never wrote to the store, so there is nothing to revert there.
	if entry.Category != "" {
		names := append([]string{entry.Name}, entry.SimilarNames...)
		if err := s.store.SetCategoryForNames(ctx, names, model.UnknownCategory); err != nil {
			return fmt.Errorf("failed to revert category: %w", err)
		}
	}

	s.history = s.history[:len(s.history)-1]

	if err := s.Refresh(ctx); err != nil {
		return err
	}

	// Re-present the undone name first, ahead of the frequency ordering.
	s.promote(entry)

	slog.Debug("Undid action", "name", entry.Name, "category", entry.Category)
	return nil
}

// Progress returns how many names this session has handled and the total it
// set out to handle: history plus the queue remaining at the last refresh.
func (s *Session) Progress() (done, total int) {
	done = len(s.history)
	return done, done + len(s.queue)
}

// staleCheck reports whether a name is no longer among the store's
// uncategorized names, e.g. removed by a concurrent import correction.
func (s *Session) staleCheck(ctx context.Context, name string) (bool, error) {
	entries, err := s.store.UncategorizedNames(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check name freshness: %w", err)
	}
	for _, entry := range entries {
		if entry.Name == name {
			return false, nil
		}
	}
	slog.Info("Name no longer uncategorized, advancing", "name", name)
	return true, nil
}

// promote moves the entry's name to the front of the queue, inserting it if
// the refresh did not bring it back.
func (s *Session) promote(entry HistoryEntry) {
	for i, queued := range s.queue {
		if queued.Name == entry.Name {
			front := s.queue[i]
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.queue = append([]model.QueueEntry{front}, s.queue...)
			s.state = Presenting
			return
		}
	}
	s.queue = append([]model.QueueEntry{{Name: entry.Name, Count: entry.Count}}, s.queue...)
	s.state = Presenting
}

func (s *Session) advance() {
	if len(s.queue) == 0 {
		s.state = Exhausted
		return
	}
	s.state = Presenting
}
