package model

import "time"

// RunSummary holds the aggregate counters of one run.
type RunSummary struct {
	Total       int `json:"total"`
	Passed      int `json:"passed"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	TimedOut    int `json:"timedOut"`
	Interrupted int `json:"interrupted"`
	// Tests whose flakiness score reached the flaky threshold
	Flaky int `json:"flaky"`
	// Tests whose trend is Slower
	Slow int `json:"slow"`
	// Rounded percentage of passed tests, 0 for an empty run
	PassRate int `json:"passRate"`
	// Wall clock time between run start and run end
	Duration  time.Duration `json:"-"`
	StartedAt time.Time     `json:"startedAt"`
	EndedAt   time.Time     `json:"endedAt"`
}

// DurationMS is the wall clock run duration in milliseconds.
func (s RunSummary) DurationMS() float64 {
	return Milliseconds(s.Duration)
}

// Git contains git repository information
type Git struct {
	// Git commit hash at time of execution
	Commit string `json:"commit,omitempty"`
	// Git branch at time of execution
	Branch string `json:"branch,omitempty"`
}

// Settings echoes the analysis settings used for a run.
type Settings struct {
	MaxHistoryRuns       int     `json:"maxHistoryRuns"`
	PerformanceThreshold float64 `json:"performanceThreshold"`
	AIProvider           string  `json:"aiProvider,omitempty"`
}

// Report is the snapshot handed to the presentation layer.
type Report struct {
	// Unique ID of this run
	ID          string       `json:"id"`
	GeneratedAt time.Time    `json:"generatedAt"`
	Git         *Git         `json:"git,omitempty"`
	Settings    Settings     `json:"settings"`
	Summary     ReportTotals `json:"summary"`
	Results     []TestResult `json:"results"`
}

// ReportTotals is the serialized form of a RunSummary.
type ReportTotals struct {
	RunSummary
	// Wall clock run duration in milliseconds
	Elapsed float64 `json:"duration"`
}

// NewReportTotals wraps a summary for serialization.
func NewReportTotals(s RunSummary) ReportTotals {
	return ReportTotals{RunSummary: s, Elapsed: s.DurationMS()}
}
