package analysis

import (
	"fmt"
	"math"

	"github.com/perfgo/testpulse/model"
)

// DefaultPerformanceThreshold is the relative deviation from the
// historical average above which a test counts as slower or faster.
const DefaultPerformanceThreshold = 0.2

// Trend compares the current duration of a test to its history.
type Trend struct {
	Category model.TrendCategory
	// Mean historical duration in milliseconds, zero for Baseline
	Average float64
	// Rounded magnitude of the deviation for Slower and Faster
	Percent int
}

// Defined reports whether a historical average exists.
func (t Trend) Defined() bool {
	return t.Category != model.TrendBaseline
}

// String renders the trend for humans, e.g. "100% slower".
func (t Trend) String() string {
	switch t.Category {
	case model.TrendSlower:
		return fmt.Sprintf("%d%% slower", t.Percent)
	case model.TrendFaster:
		return fmt.Sprintf("%d%% faster", t.Percent)
	default:
		return string(t.Category)
	}
}

// AnalyzeTrend compares current (milliseconds) against the mean duration
// of records. A history whose average is zero is reported as Stable.
func AnalyzeTrend(records []model.HistoryRecord, current, threshold float64) Trend {
	if len(records) == 0 {
		return Trend{Category: model.TrendBaseline}
	}

	var sum float64
	for _, r := range records {
		sum += r.Duration
	}
	average := sum / float64(len(records))

	if average <= 0 || math.IsNaN(average) || math.IsInf(average, 0) {
		return Trend{Category: model.TrendStable, Average: 0}
	}

	diff := (current - average) / average
	switch {
	case diff > threshold:
		return Trend{Category: model.TrendSlower, Average: average, Percent: int(math.Round(diff * 100))}
	case diff < -threshold:
		return Trend{Category: model.TrendFaster, Average: average, Percent: int(math.Round(-diff * 100))}
	default:
		return Trend{Category: model.TrendStable, Average: average}
	}
}
