package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/perfgo/testpulse/analysis"
	"github.com/perfgo/testpulse/model"
)

type styles struct {
	header  lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(w io.Writer, color bool) styles {
	if !color {
		return styles{}
	}
	r := lipgloss.NewRenderer(w)
	return styles{
		header:  r.NewStyle().Bold(true),
		success: r.NewStyle().Foreground(lipgloss.Color("2")),
		warning: r.NewStyle().Foreground(lipgloss.Color("3")),
		failure: r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// RenderSummary prints the run summary followed by the failing, flaky and
// slower tests. Colors are only emitted when color is set and w supports
// them.
func RenderSummary(w io.Writer, s model.RunSummary, results []model.TestResult, color bool) error {
	st := newStyles(w, color)
	var sb strings.Builder

	sb.WriteString(st.header.Render("TEST RUN SUMMARY"))
	sb.WriteString("\n")

	counts := fmt.Sprintf("%d tests: %d passed, %d failed, %d skipped, %d timed out, %d interrupted",
		s.Total, s.Passed, s.Failed, s.Skipped, s.TimedOut, s.Interrupted)
	if s.Failed+s.TimedOut > 0 {
		sb.WriteString(st.failure.Render(counts))
	} else {
		sb.WriteString(st.success.Render(counts))
	}
	sb.WriteString("\n")

	info := fmt.Sprintf("Pass rate: %d%%    Duration: %s    Flaky: %d    Slower: %d",
		s.PassRate, s.Duration.Round(time.Millisecond), s.Flaky, s.Slow)
	sb.WriteString(st.muted.Render(info))
	sb.WriteString("\n")

	var failing, flaky, slower []model.TestResult
	for _, r := range results {
		if r.Status.Failing() {
			failing = append(failing, r)
		}
		if r.Flakiness == model.FlakinessFlaky {
			flaky = append(flaky, r)
		}
		if r.PerformanceTrend == model.TrendSlower {
			slower = append(slower, r)
		}
	}

	if len(failing) > 0 {
		sb.WriteString("\n")
		sb.WriteString(st.header.Render(fmt.Sprintf("FAILURES (%d)", len(failing))))
		sb.WriteString("\n")
		for _, r := range failing {
			sb.WriteString(st.failure.Render(fmt.Sprintf("  %s [%s]", r.ID, r.Status)))
			sb.WriteString("\n")
			if r.Error != nil && r.Error.Message != "" {
				fmt.Fprintf(&sb, "    %s\n", firstLine(r.Error.Message))
			}
			if r.RerunCommand != "" {
				sb.WriteString(st.muted.Render("    rerun: " + r.RerunCommand))
				sb.WriteString("\n")
			}
			if r.AISuggestion != "" {
				fmt.Fprintf(&sb, "    suggestion: %s\n", firstLine(r.AISuggestion))
			}
		}
	}

	if len(flaky) > 0 {
		sb.WriteString("\n")
		sb.WriteString(st.header.Render(fmt.Sprintf("FLAKY (%d)", len(flaky))))
		sb.WriteString("\n")
		for _, r := range flaky {
			line := fmt.Sprintf("  %s  score %.2f", r.ID, deref(r.FlakinessScore))
			sb.WriteString(st.warning.Render(line))
			sb.WriteString("\n")
		}
	}

	if len(slower) > 0 {
		sb.WriteString("\n")
		sb.WriteString(st.header.Render(fmt.Sprintf("SLOWER (%d)", len(slower))))
		sb.WriteString("\n")
		for _, r := range slower {
			trend := analysis.Trend{Category: r.PerformanceTrend, Percent: r.TrendPercent}
			line := fmt.Sprintf("  %s  %s (avg %.1fms, now %.1fms)",
				r.ID, trend, deref(r.AvgDuration), r.Duration)
			sb.WriteString(st.warning.Render(line))
			sb.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
