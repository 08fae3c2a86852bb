package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tallyledger/tally/internal/common"
	"github.com/tallyledger/tally/internal/service"
	"github.com/tallyledger/tally/internal/session"
)

// Reviewer drives the interactive categorization loop. It is a thin caller
// of the session's operations; all workflow state lives in the session.
type Reviewer struct {
	reader *bufio.Reader
	writer io.Writer
	store  service.Storage
}

// NewReviewer creates a reviewer reading commands from reader and rendering
// to writer. Nil arguments default to stdin/stdout.
func NewReviewer(reader io.Reader, writer io.Writer, store service.Storage) *Reviewer {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &Reviewer{
		reader: bufio.NewReader(reader),
		writer: writer,
		store:  store,
	}
}

// Run loops until every name is handled or the user quits.
func (r *Reviewer) Run(ctx context.Context, sess *session.Session) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pres, err := sess.Current(ctx)
		if errors.Is(err, common.ErrEmptyQueue) {
			fmt.Fprintln(r.writer, SuccessStyle.Render("Nothing left to categorize."))
			return nil
		}
		if err != nil {
			return err
		}

		categories, err := r.store.Categories(ctx)
		if err != nil {
			return fmt.Errorf("failed to list categories: %w", err)
		}

		r.render(pres, categories)

		line, err := r.readLine()
		if err != nil {
			return err
		}

		switch strings.ToLower(line) {
		case "q", "quit":
			fmt.Fprintln(r.writer, SubtleStyle.Render("Progress is saved; skipped names return next session."))
			return nil
		case "s", "skip":
			if err := sess.Skip(ctx); err != nil {
				return err
			}
		case "u", "undo":
			if err := sess.Undo(ctx); err != nil {
				return err
			}
		case "":
			continue
		default:
			category := resolveCategory(line, categories)
			similar, err := r.chooseSimilar(pres.SimilarNames)
			if err != nil {
				return err
			}
			if err := sess.Assign(ctx, category, similar); err != nil {
				return err
			}
			fmt.Fprintln(r.writer, SuccessStyle.Render(
				fmt.Sprintf("✓ %s → %s (%d names)", pres.Name, category, 1+len(similar))))
		}
	}
}

func (r *Reviewer) render(pres *session.Presentation, categories []string) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", BoldStyle.Render(pres.Name))
	fmt.Fprintf(&b, "%d matching transaction(s)\n", pres.Count)
	if pres.Example != nil {
		fmt.Fprintf(&b, "e.g. %s  %s\n",
			pres.Example.Date.Format("2006-01-02"),
			pres.Example.Amount.StringFixed(2))
	}
	fmt.Fprintf(&b, "%s", SubtleStyle.Render(fmt.Sprintf("progress %d/%d", pres.Done, pres.Total)))

	fmt.Fprintln(r.writer, RenderBox("Categorize", b.String()))

	if len(pres.SimilarNames) > 0 {
		fmt.Fprintln(r.writer, InfoStyle.Render("Similar names:"))
		for i, name := range pres.SimilarNames {
			fmt.Fprintf(r.writer, "  %d. %s\n", i+1, name)
		}
	}

	if len(categories) > 0 {
		fmt.Fprintln(r.writer, InfoStyle.Render("Categories:"))
		for i, category := range categories {
			fmt.Fprintf(r.writer, "  %d. %s\n", i+1, category)
		}
	}

	fmt.Fprint(r.writer, "category name/number, [s]kip, [u]ndo, [q]uit > ")
}

// chooseSimilar asks which of the suggested similar names to co-assign.
// The session suggests; the user decides.
func (r *Reviewer) chooseSimilar(candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	fmt.Fprintf(r.writer, "apply to %d similar name(s)? [y/N/numbers] > ", len(candidates))
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(line) {
	case "y", "yes", "a", "all":
		return candidates, nil
	case "", "n", "no":
		return nil, nil
	}

	var chosen []string
	for _, field := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' }) {
		i, err := strconv.Atoi(field)
		if err != nil || i < 1 || i > len(candidates) {
			fmt.Fprintln(r.writer, WarningStyle.Render(fmt.Sprintf("ignoring %q", field)))
			continue
		}
		chosen = append(chosen, candidates[i-1])
	}
	return chosen, nil
}

// resolveCategory maps a numeric choice onto the listed categories; anything
// else is taken as a new category name.
func resolveCategory(input string, categories []string) string {
	if i, err := strconv.Atoi(input); err == nil && i >= 1 && i <= len(categories) {
		return categories[i-1]
	}
	return input
}

func (r *Reviewer) readLine() (string, error) {
	line, err := r.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	if err != nil && line == "" {
		return "q", nil
	}
	return strings.TrimSpace(line), nil
}
