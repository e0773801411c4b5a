package cli

// This file contains the show command for displaying the recorded outcomes
// of a single test.

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/perfgo/testpulse/history"
	"github.com/perfgo/testpulse/model"
	"github.com/urfave/cli/v2"
)

// maxCandidates limits the identities listed for an ambiguous prefix.
const maxCandidates = 10

// resolveTestID finds the identity in h that equals arg or starts with it.
// Matching ignores case; an exact match wins over prefix matches.
func resolveTestID(h *history.TestHistory, arg string) (model.TestID, error) {
	if arg == "" {
		return "", fmt.Errorf("no test specified: please provide a test identity or a prefix of it")
	}

	prefix := strings.ToLower(arg)
	var matches []model.TestID
	for _, id := range h.IDs() {
		lower := strings.ToLower(string(id))
		if lower == prefix {
			return id, nil
		}
		if strings.HasPrefix(lower, prefix) {
			matches = append(matches, id)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no test found matching: %s", arg)
	case 1:
		return matches[0], nil
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })
	shown := matches
	if len(shown) > maxCandidates {
		shown = shown[:maxCandidates]
	}
	names := make([]string, 0, len(shown))
	for _, id := range shown {
		names = append(names, "  "+string(id))
	}
	return "", fmt.Errorf("%d tests match %q:\n%s", len(matches), arg, strings.Join(names, "\n"))
}

func (a *App) view(ctx *cli.Context) error {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}

	h := a.store(cfg).Load()
	if h.Len() == 0 {
		return fmt.Errorf("no test history found in %s", cfg.HistoryPath)
	}

	id, err := resolveTestID(h, strings.Join(ctx.Args().Slice(), " "))
	if err != nil {
		return err
	}

	displayTest(a.out, summarizeTest(id, h.Records(id)), h.Records(id))
	return nil
}

func displayTest(w io.Writer, s testSummary, records []model.HistoryRecord) {
	fmt.Fprintf(w, "=== %s ===\n", s.ID)
	fmt.Fprintf(w, "Runs: %d\n", s.Runs)
	fmt.Fprintf(w, "Flakiness: %s (%.2f)\n", s.Flakiness.Category, s.Flakiness.Score)
	fmt.Fprintf(w, "Average Duration: %.1fms\n", s.Average)
	fmt.Fprintln(w)

	for _, r := range records {
		status := "✓ passed"
		if !r.Passed {
			status = "✗ failed"
		}
		fmt.Fprintf(w, "%s  %s  %10.1fms\n", r.Timestamp, status, r.Duration)
	}
}
