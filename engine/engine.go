// Package engine drives one test run: it loads the history at run start,
// enriches every completed test with its flakiness and performance trend,
// and at run end annotates failures, aggregates the run and persists the
// history and report artifacts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/perfgo/testpulse/analysis"
	"github.com/perfgo/testpulse/annotate"
	"github.com/perfgo/testpulse/history"
	"github.com/perfgo/testpulse/model"
	"github.com/perfgo/testpulse/report"
	"github.com/rs/zerolog"
)

var (
	// ErrNotStarted is returned when End is called before Begin.
	ErrNotStarted = errors.New("run has not been started")
	// ErrFinished is returned when End is called again for the same run.
	ErrFinished = errors.New("run has already finished")
)

// Options configures an Engine.
type Options struct {
	// Root that test files are made relative to when building identities
	Root string
	// Relative deviation that marks a test slower or faster
	PerformanceThreshold float64
	// Where the JSON report is written, empty skips it
	ReportPath string
	// Where the Prometheus textfile is written, empty skips it
	MetricsPath string
	// Repository state echoed into the report
	Git *model.Git
	// Builds a command that reruns a single failing test (optional)
	RerunCommand func(pkg, title string) string
	// Clock, defaults to time.Now
	Now func() time.Time
}

// Engine holds the state of a single run. Begin, TestEnd and End must be
// called sequentially from one goroutine.
type Engine struct {
	logger    zerolog.Logger
	opts      Options
	store     *history.Store
	annotator *annotate.Annotator

	history  *history.TestHistory
	started  time.Time
	results  []*model.TestResult
	index    map[model.TestID]int
	finished bool
}

// New creates an engine persisting to store. A nil annotator disables
// failure annotation.
func New(logger zerolog.Logger, store *history.Store, annotator *annotate.Annotator, opts Options) *Engine {
	if opts.PerformanceThreshold <= 0 {
		opts.PerformanceThreshold = analysis.DefaultPerformanceThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		logger:    logger,
		opts:      opts,
		store:     store,
		annotator: annotator,
	}
}

// Begin starts a run by loading the prior history.
func (e *Engine) Begin() {
	e.history = e.store.Load()
	e.started = e.opts.Now()
	e.results = nil
	e.index = make(map[model.TestID]int)
	e.finished = false

	e.logger.Debug().
		Int("tests", e.history.Len()).
		Int("max_runs", e.store.MaxRuns()).
		Msg("Run started")
}

// History returns the history loaded by Begin, including the outcomes
// recorded by End once it has run.
func (e *Engine) History() *history.TestHistory {
	return e.history
}

// TestEnd enriches a completed test against its prior history and adds it
// to the run. A test completing again within the same run is treated as a
// retry and replaces the earlier result.
func (e *Engine) TestEnd(c model.TestCompletion) *model.TestResult {
	if e.history == nil {
		e.Begin()
	}

	id := model.NewTestID(e.opts.Root, c.File, c.Title)
	prior := e.history.Records(id)
	current := model.Milliseconds(c.Duration)

	r := &model.TestResult{
		ID:       id,
		Title:    c.Title,
		File:     model.RelativeFile(e.opts.Root, c.File),
		Status:   c.Status,
		Duration: current,
		Retry:    c.Retry,
	}

	flakiness := analysis.ScoreFlakiness(prior)
	r.Flakiness = flakiness.Category
	if flakiness.Defined() {
		score := flakiness.Score
		r.FlakinessScore = &score
	}

	trend := analysis.AnalyzeTrend(prior, current, e.opts.PerformanceThreshold)
	r.PerformanceTrend = trend.Category
	r.TrendPercent = trend.Percent
	if trend.Defined() {
		avg := trend.Average
		r.AvgDuration = &avg
	}

	if c.Status.Failing() {
		r.Error = &model.TestError{Message: c.ErrorMessage, Stack: c.ErrorStack}
		if e.opts.RerunCommand != nil && c.Package != "" {
			r.RerunCommand = e.opts.RerunCommand(c.Package, c.Title)
		}
	}

	if i, ok := e.index[id]; ok {
		prev := e.results[i]
		if r.Retry <= prev.Retry {
			r.Retry = prev.Retry + 1
		}
		e.results[i] = r
		e.logger.Debug().
			Str("test", string(id)).
			Int("retry", r.Retry).
			Msg("Replaced result of retried test")
		return r
	}

	e.index[id] = len(e.results)
	e.results = append(e.results, r)
	return r
}

// Results returns the results collected so far in completion order.
func (e *Engine) Results() []*model.TestResult {
	return e.results
}

// End finishes the run. It annotates failing tests, aggregates the run,
// records every passed, failed or timed out test into the history and
// writes the history, report and metrics artifacts. Every artifact is
// attempted; the returned error combines all write failures. The report is
// returned even when writing it failed.
func (e *Engine) End(ctx context.Context) (*model.Report, error) {
	if e.history == nil {
		return nil, ErrNotStarted
	}
	if e.finished {
		return nil, ErrFinished
	}
	e.finished = true

	if e.annotator.Enabled() {
		if n := e.annotator.Annotate(ctx, e.results); n > 0 {
			e.logger.Info().
				Int("tests", n).
				Str("provider", e.annotator.Provider()).
				Msg("Attached fix suggestions")
		}
	}

	ended := e.opts.Now()
	results := make([]model.TestResult, 0, len(e.results))
	for _, r := range e.results {
		results = append(results, *r)
	}
	summary := analysis.Summarize(results, e.started, ended)

	stamp := ended
	for _, r := range results {
		if !r.Status.Recorded() {
			continue
		}
		outcome := model.HistoryRecord{
			Passed:    r.Status == model.StatusPassed,
			Duration:  r.Duration,
			Timestamp: stamp.UTC().Format(model.TimestampFormat),
		}
		e.store.RecordAndTrim(e.history, r.ID, outcome)
	}

	rep := &model.Report{
		ID:          uuid.NewString(),
		GeneratedAt: ended.UTC(),
		Git:         e.opts.Git,
		Settings: model.Settings{
			MaxHistoryRuns:       e.store.MaxRuns(),
			PerformanceThreshold: e.opts.PerformanceThreshold,
			AIProvider:           e.annotator.Provider(),
		},
		Summary: model.NewReportTotals(summary),
		Results: results,
	}

	var result *multierror.Error
	if err := e.store.Save(ctx, e.history); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to save history: %w", err))
	}
	if e.opts.ReportPath != "" {
		if err := report.WriteJSON(e.opts.ReportPath, rep); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if e.opts.MetricsPath != "" {
		if err := report.WriteMetrics(e.opts.MetricsPath, rep); err != nil {
			result = multierror.Append(result, err)
		}
	}

	e.logger.Debug().
		Str("id", rep.ID).
		Int("tests", summary.Total).
		Dur("duration", summary.Duration).
		Msg("Run finished")

	return rep, result.ErrorOrNil()
}
