package model

import "time"

// Status is the final state of a test in the current run
type Status string

const (
	StatusPassed      Status = "passed"
	StatusFailed      Status = "failed"
	StatusSkipped     Status = "skipped"
	StatusTimedOut    Status = "timedOut"
	StatusInterrupted Status = "interrupted"
)

// Failing reports whether the status counts as a failure.
func (s Status) Failing() bool {
	return s == StatusFailed || s == StatusTimedOut
}

// Recorded reports whether an outcome with this status is appended to the
// test history. Skipped and interrupted tests carry no pass/fail signal.
func (s Status) Recorded() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusTimedOut
}

// FlakinessCategory classifies the instability of a test.
type FlakinessCategory string

const (
	FlakinessNew      FlakinessCategory = "New"
	FlakinessStable   FlakinessCategory = "Stable"
	FlakinessUnstable FlakinessCategory = "Unstable"
	FlakinessFlaky    FlakinessCategory = "Flaky"
)

// TrendCategory classifies the current duration against the history.
type TrendCategory string

const (
	TrendBaseline TrendCategory = "Baseline"
	TrendStable   TrendCategory = "Stable"
	TrendSlower   TrendCategory = "Slower"
	TrendFaster   TrendCategory = "Faster"
)

// TestCompletion is reported by the test execution engine once a test has
// finished.
type TestCompletion struct {
	// Source file (or package) of the test
	File string
	// Declared title of the test
	Title string
	Status   Status
	Duration time.Duration
	// Number of the attempt, starting at 0
	Retry        int
	ErrorMessage string
	ErrorStack   string
	// Go package import path, used to build a rerun command (optional)
	Package string
}

// TestError holds the failure details of a test.
type TestError struct {
	Message string `json:"message,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// TestResult is one row of the current run's output.
type TestResult struct {
	ID    TestID `json:"id"`
	Title string `json:"title"`
	File  string `json:"file"`
	// Final status of the test
	Status Status `json:"status"`
	// Duration in milliseconds
	Duration float64 `json:"duration"`
	Retry    int     `json:"retry"`
	// Only set for failed and timed out tests
	Error *TestError `json:"error,omitempty"`

	// Fraction of failures in the history window, unset without history
	FlakinessScore *float64          `json:"flakinessScore,omitempty"`
	Flakiness      FlakinessCategory `json:"flakiness,omitempty"`
	// Mean historical duration in milliseconds, unset without history
	AvgDuration      *float64      `json:"avgDuration,omitempty"`
	PerformanceTrend TrendCategory `json:"performanceTrend,omitempty"`
	// Magnitude of the deviation for Slower and Faster trends
	TrendPercent int `json:"trendPercent,omitempty"`

	AISuggestion string `json:"aiSuggestion,omitempty"`
	RerunCommand string `json:"rerunCommand,omitempty"`
}
