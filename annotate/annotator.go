package annotate

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/perfgo/testpulse/model"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 4
)

// Annotator requests a fix suggestion for every failing test.
type Annotator struct {
	logger      zerolog.Logger
	suggester   Suggester
	timeout     time.Duration
	concurrency int
}

// New creates an annotator. A nil suggester makes Annotate a no-op.
func New(logger zerolog.Logger, suggester Suggester, timeout time.Duration, concurrency int) *Annotator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Annotator{
		logger:      logger,
		suggester:   suggester,
		timeout:     timeout,
		concurrency: concurrency,
	}
}

// Enabled reports whether a provider is configured.
func (a *Annotator) Enabled() bool {
	return a != nil && a.suggester != nil
}

// Provider returns the name of the configured provider, or "" if none.
func (a *Annotator) Provider() string {
	if !a.Enabled() {
		return ""
	}
	return a.suggester.Name()
}

// Annotate attaches suggestions to the failed and timed out results and
// returns how many were annotated. Failed requests are logged and leave the
// result without a suggestion. Annotate waits for all requests to finish.
func (a *Annotator) Annotate(ctx context.Context, results []*model.TestResult) int {
	if a == nil {
		return 0
	}
	if !a.Enabled() {
		a.logger.Debug().Msg("No suggestion provider configured, skipping failure annotation")
		return 0
	}

	var annotated atomic.Int64
	var g errgroup.Group
	g.SetLimit(a.concurrency)

	for _, r := range results {
		if r == nil || !r.Status.Failing() {
			continue
		}
		g.Go(func() error {
			if a.annotate(ctx, r) {
				annotated.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(annotated.Load())
}

func (a *Annotator) annotate(ctx context.Context, r *model.TestResult) bool {
	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	suggestion, err := a.suggester.Suggest(reqCtx, BuildPrompt(r))
	if err != nil {
		a.logger.Warn().
			Err(err).
			Str("test", string(r.ID)).
			Str("provider", a.suggester.Name()).
			Msg("Failed to get fix suggestion")
		return false
	}

	suggestion = strings.TrimSpace(suggestion)
	if suggestion == "" {
		a.logger.Warn().
			Str("test", string(r.ID)).
			Str("provider", a.suggester.Name()).
			Msg("Provider returned an empty suggestion")
		return false
	}

	r.AISuggestion = suggestion
	a.logger.Debug().
		Str("test", string(r.ID)).
		Dur("took", time.Since(start)).
		Msg("Attached fix suggestion")
	return true
}
