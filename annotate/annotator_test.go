package annotate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/perfgo/testpulse/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeSuggester struct {
	mu      sync.Mutex
	prompts []string
	calls   atomic.Int32
	suggest func(ctx context.Context, prompt string) (string, error)
}

func (f *fakeSuggester) Name() string { return "fake" }

func (f *fakeSuggester) Suggest(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.suggest(ctx, prompt)
}

func failing(title string, status model.Status) *model.TestResult {
	return &model.TestResult{
		ID:     model.TestID("pkg :: " + title),
		Title:  title,
		File:   "pkg",
		Status: status,
		Error:  &model.TestError{Message: title + " broke", Stack: "store_test.go:12: boom"},
	}
}

func TestAnnotate_NoProvider(t *testing.T) {
	a := New(zerolog.Nop(), nil, 0, 0)
	r := failing("TestA", model.StatusFailed)

	n := a.Annotate(context.Background(), []*model.TestResult{r})

	require.Equal(t, 0, n)
	require.False(t, a.Enabled())
	require.Equal(t, "", a.Provider())
	require.Empty(t, r.AISuggestion)
	require.Equal(t, "TestA broke", r.Error.Message)
	require.Equal(t, "store_test.go:12: boom", r.Error.Stack)
}

func TestAnnotate_NilAnnotator(t *testing.T) {
	var a *Annotator
	r := failing("TestA", model.StatusFailed)

	require.NotPanics(t, func() {
		require.Equal(t, 0, a.Annotate(context.Background(), []*model.TestResult{r}))
	})
	require.False(t, a.Enabled())
	require.Empty(t, r.AISuggestion)
}

func TestAnnotate_OnlyFailingResults(t *testing.T) {
	fake := &fakeSuggester{suggest: func(ctx context.Context, prompt string) (string, error) {
		return "  check the fixture  \n", nil
	}}
	a := New(zerolog.Nop(), fake, time.Second, 2)

	results := []*model.TestResult{
		failing("TestFailed", model.StatusFailed),
		failing("TestTimedOut", model.StatusTimedOut),
		{ID: "pkg :: TestPassed", Status: model.StatusPassed},
		{ID: "pkg :: TestSkipped", Status: model.StatusSkipped},
		{ID: "pkg :: TestInterrupted", Status: model.StatusInterrupted},
		nil,
	}

	n := a.Annotate(context.Background(), results)

	require.Equal(t, 2, n)
	require.Equal(t, int32(2), fake.calls.Load())
	require.Equal(t, "check the fixture", results[0].AISuggestion)
	require.Equal(t, "check the fixture", results[1].AISuggestion)
	for _, r := range results[2:5] {
		require.Empty(t, r.AISuggestion)
	}
}

func TestAnnotate_FailuresAreIsolated(t *testing.T) {
	fake := &fakeSuggester{suggest: func(ctx context.Context, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "TestNetwork"):
			return "", errors.New("connection refused")
		case strings.Contains(prompt, "TestEmpty"):
			return "   ", nil
		default:
			return "fix " + strings.SplitN(strings.SplitN(prompt, "Test: ", 2)[1], "\n", 2)[0], nil
		}
	}}
	a := New(zerolog.Nop(), fake, time.Second, 4)

	results := []*model.TestResult{
		failing("TestNetwork", model.StatusFailed),
		failing("TestOne", model.StatusFailed),
		failing("TestEmpty", model.StatusFailed),
		failing("TestTwo", model.StatusTimedOut),
	}

	n := a.Annotate(context.Background(), results)

	require.Equal(t, 2, n)
	require.Empty(t, results[0].AISuggestion)
	require.Equal(t, "fix TestOne", results[1].AISuggestion)
	require.Empty(t, results[2].AISuggestion)
	require.Equal(t, "fix TestTwo", results[3].AISuggestion)
	// One request per failing test, no retries.
	require.Equal(t, int32(4), fake.calls.Load())
}

func TestAnnotate_TimeoutBoundsEachRequest(t *testing.T) {
	fake := &fakeSuggester{suggest: func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "TestHang") {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	}}
	a := New(zerolog.Nop(), fake, 50*time.Millisecond, 1)

	results := []*model.TestResult{
		failing("TestHang", model.StatusFailed),
		failing("TestFine", model.StatusFailed),
	}

	start := time.Now()
	n := a.Annotate(context.Background(), results)

	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, 1, n)
	require.Empty(t, results[0].AISuggestion)
	require.Equal(t, "ok", results[1].AISuggestion)
}

func TestAnnotate_RespectsConcurrencyLimit(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	fake := &fakeSuggester{suggest: func(ctx context.Context, prompt string) (string, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return "ok", nil
	}}
	a := New(zerolog.Nop(), fake, time.Second, 2)

	var results []*model.TestResult
	for i := 0; i < 8; i++ {
		results = append(results, failing("TestN", model.StatusFailed))
	}

	require.Equal(t, 8, a.Annotate(context.Background(), results))
	require.LessOrEqual(t, maxInFlight.Load(), int32(2))
}

func TestBuildPrompt(t *testing.T) {
	r := failing("TestLoad", model.StatusTimedOut)
	prompt := BuildPrompt(r)

	require.Contains(t, prompt, "Test: TestLoad")
	require.Contains(t, prompt, "File: pkg")
	require.Contains(t, prompt, "Status: timedOut")
	require.Contains(t, prompt, "Error: TestLoad broke")
	require.Contains(t, prompt, "store_test.go:12: boom")
}

func TestBuildPrompt_Bounded(t *testing.T) {
	r := &model.TestResult{
		Title:  strings.Repeat("t", 10_000),
		File:   strings.Repeat("f", 10_000),
		Status: model.StatusFailed,
		Error: &model.TestError{
			Message: strings.Repeat("m", 100_000),
			Stack:   strings.Repeat("s", 100_000),
		},
	}

	prompt := BuildPrompt(r)
	require.Less(t, len(prompt), 4000)
	require.Contains(t, prompt, "...")
}

func TestBuildPrompt_NoError(t *testing.T) {
	r := &model.TestResult{Title: "TestX", File: "x", Status: model.StatusFailed}
	prompt := BuildPrompt(r)
	require.NotContains(t, prompt, "Error:")
	require.NotContains(t, prompt, "Stack trace:")
}
