package cli

// This file contains the history command for listing the tests recorded in
// the history snapshot.

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/perfgo/testpulse/analysis"
	"github.com/perfgo/testpulse/history"
	"github.com/perfgo/testpulse/model"
	"github.com/urfave/cli/v2"
)

// testSummary describes the recorded window of one test.
type testSummary struct {
	ID        model.TestID
	Runs      int
	Flakiness analysis.Flakiness
	// Mean duration in milliseconds
	Average float64
	Last    model.HistoryRecord
}

func summarizeTest(id model.TestID, records []model.HistoryRecord) testSummary {
	s := testSummary{
		ID:        id,
		Runs:      len(records),
		Flakiness: analysis.ScoreFlakiness(records),
	}
	if len(records) == 0 {
		return s
	}
	var sum float64
	for _, r := range records {
		sum += r.Duration
	}
	s.Average = sum / float64(len(records))
	s.Last = records[len(records)-1]
	return s
}

// summarizeHistory returns the tests of h matching filter, most flaky
// first.
func summarizeHistory(h *history.TestHistory, filter string, flakyOnly bool) []testSummary {
	var out []testSummary
	for _, id := range h.IDs() {
		if filter != "" && !strings.Contains(strings.ToLower(string(id)), strings.ToLower(filter)) {
			continue
		}
		s := summarizeTest(id, h.Records(id))
		if flakyOnly && s.Flakiness.Category != model.FlakinessFlaky {
			continue
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Flakiness.Score != out[j].Flakiness.Score {
			return out[i].Flakiness.Score > out[j].Flakiness.Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (a *App) list(ctx *cli.Context) error {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}

	h := a.store(cfg).Load()
	entries := summarizeHistory(h, ctx.String("filter"), ctx.Bool("flaky"))

	if len(entries) == 0 {
		switch {
		case h.Len() == 0:
			fmt.Fprintln(a.out, "No test history found")
			fmt.Fprintf(a.out, "History is saved to %s by 'testpulse run'\n", cfg.HistoryPath)
		default:
			fmt.Fprintln(a.out, "No tests match the given filter")
		}
		return nil
	}

	printHistory(a.out, entries, ctx.Int("limit"))
	return nil
}

func printHistory(w io.Writer, entries []testSummary, limit int) {
	total := len(entries)
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	fmt.Fprintf(w, "\n=== Test history (%d tests) ===\n\n", total)
	for _, e := range entries {
		// Status of the most recent run
		status := "✓"
		if !e.Last.Passed {
			status = "✗"
		}
		fmt.Fprintf(w, "%s  %-8s  %.2f  avg %8.1fms  runs %2d  %s\n",
			status, e.Flakiness.Category, e.Flakiness.Score, e.Average, e.Runs, e.ID)
	}
	if total > len(entries) {
		fmt.Fprintf(w, "\n... %d more, use --limit to show them\n", total-len(entries))
	}

	fmt.Fprintln(w, "\nShow outcomes of a test: testpulse show <ID-PREFIX>")
}
