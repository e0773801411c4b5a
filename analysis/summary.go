package analysis

import (
	"math"
	"time"

	"github.com/perfgo/testpulse/model"
)

// Summarize folds the results of a run into its summary. The duration is
// the wall clock time between start and end, not the sum of test
// durations.
func Summarize(results []model.TestResult, start, end time.Time) model.RunSummary {
	s := model.RunSummary{
		Total:     len(results),
		StartedAt: start,
		EndedAt:   end,
	}
	if end.After(start) {
		s.Duration = end.Sub(start)
	}

	for _, r := range results {
		switch r.Status {
		case model.StatusPassed:
			s.Passed++
		case model.StatusFailed:
			s.Failed++
		case model.StatusSkipped:
			s.Skipped++
		case model.StatusTimedOut:
			s.TimedOut++
		case model.StatusInterrupted:
			s.Interrupted++
		}

		if r.FlakinessScore != nil && IsFlaky(*r.FlakinessScore) {
			s.Flaky++
		}
		if r.PerformanceTrend == model.TrendSlower {
			s.Slow++
		}
	}

	if s.Total > 0 {
		s.PassRate = int(math.Round(float64(s.Passed) / float64(s.Total) * 100))
	}
	return s
}
