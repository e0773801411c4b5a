// Package analysis derives flakiness and performance signals from a
// test's history and folds a run's results into summary counters.
package analysis

import "github.com/perfgo/testpulse/model"

// Flakiness thresholds. A score below UnstableThreshold is stable, a score
// at or above FlakyThreshold is flaky.
const (
	UnstableThreshold = 0.1
	FlakyThreshold    = 0.3
)

// Flakiness is the instability signal of a test.
type Flakiness struct {
	// Fraction of failed outcomes, only meaningful when Defined is true
	Score    float64
	Category model.FlakinessCategory
}

// Defined reports whether a score was computed.
func (f Flakiness) Defined() bool {
	return f.Category != model.FlakinessNew
}

// ScoreFlakiness computes the flakiness of a test from its prior outcomes.
// Without history the category is New and no score is defined.
func ScoreFlakiness(records []model.HistoryRecord) Flakiness {
	if len(records) == 0 {
		return Flakiness{Category: model.FlakinessNew}
	}

	failed := 0
	for _, r := range records {
		if !r.Passed {
			failed++
		}
	}
	score := float64(failed) / float64(len(records))
	return Flakiness{Score: score, Category: CategorizeFlakiness(score)}
}

// CategorizeFlakiness maps a score onto its category.
func CategorizeFlakiness(score float64) model.FlakinessCategory {
	switch {
	case score >= FlakyThreshold:
		return model.FlakinessFlaky
	case score >= UnstableThreshold:
		return model.FlakinessUnstable
	default:
		return model.FlakinessStable
	}
}

// IsFlaky reports whether score reaches the flaky boundary.
func IsFlaky(score float64) bool {
	return score >= FlakyThreshold
}
