package testjson

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/perfgo/testpulse/model"
	"github.com/rs/zerolog"
)

const maxLineSize = 1024 * 1024

// timeoutMarker is printed by the testing package when -timeout expires.
const timeoutMarker = "panic: test timed out"

// assertionLine matches the location prefix of t.Error/t.Fatal output.
var assertionLine = regexp.MustCompile(`^\s*([\w./-]+_test\.go:\d+):\s*(.*)$`)

// Consumer converts go test -json events into model.TestCompletion values.
type Consumer struct {
	logger     zerolog.Logger
	modulePath string
}

// NewConsumer creates a consumer. Package import paths are made relative to
// modulePath to form the file part of a test's identity.
func NewConsumer(logger zerolog.Logger, modulePath string) *Consumer {
	return &Consumer{
		logger:     logger,
		modulePath: modulePath,
	}
}

// Consume reads events from r until EOF or until ctx is cancelled and calls
// fn for every finished test, in stream order. Tests still running when
// their package ends, or when the stream stops, are reported as interrupted,
// or as timed out if the package hit its -timeout. It returns the number of
// malformed lines that were skipped.
func (c *Consumer) Consume(ctx context.Context, r io.Reader, fn func(model.TestCompletion)) (int, error) {
	s := &session{
		consumer: c,
		packages: make(map[string]*pkgState),
		emit:     fn,
	}

	malformed, err := scan(ctx, r, s.handle)
	s.flushAll()

	if malformed > 0 {
		c.logger.Warn().Int("lines", malformed).Msg("Skipped malformed lines in test output")
	}
	return malformed, err
}

// scanResult carries a scanned line or terminal error from the scanner goroutine.
type scanResult struct {
	line []byte
	err  error
}

// scan decodes events line by line and calls fn for each of them. On
// cancellation r is closed if it implements io.Closer to unblock the
// scanner goroutine.
func scan(ctx context.Context, r io.Reader, fn func(Event)) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lines := make(chan scanResult)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			// The scanner reuses its buffer.
			cp := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- scanResult{line: cp}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case lines <- scanResult{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	var malformed int
	for {
		select {
		case <-ctx.Done():
			if c, ok := r.(io.Closer); ok {
				_ = c.Close()
			}
			return malformed, ctx.Err()
		case res, ok := <-lines:
			if !ok {
				return malformed, nil
			}
			if res.err != nil {
				return malformed, fmt.Errorf("failed to read test output: %w", res.err)
			}
			if len(res.line) == 0 {
				continue
			}
			var event Event
			if err := json.Unmarshal(res.line, &event); err != nil {
				malformed++
				continue
			}
			fn(event)
		}
	}
}

type session struct {
	consumer *Consumer
	packages map[string]*pkgState
	order    []string
	emit     func(model.TestCompletion)
}

type pkgState struct {
	name      string
	timedOut  bool
	panicLine string
	// Package level output, without a test name
	output   []string
	running  map[string]*testState
	runOrder []string
	// Completed attempts per test name
	attempts  map[string]int
	completed int
}

type testState struct {
	start  time.Time
	output []string
}

func (s *session) pkg(name string) *pkgState {
	if p, ok := s.packages[name]; ok {
		return p
	}
	p := &pkgState{
		name:     name,
		running:  make(map[string]*testState),
		attempts: make(map[string]int),
	}
	s.packages[name] = p
	s.order = append(s.order, name)
	return p
}

func (s *session) handle(e Event) {
	if e.Package == "" {
		return
	}
	p := s.pkg(e.Package)

	switch e.Action {
	case ActionRun:
		if e.Test == "" {
			return
		}
		if _, ok := p.running[e.Test]; !ok {
			p.runOrder = append(p.runOrder, e.Test)
		}
		p.running[e.Test] = &testState{start: e.Time}

	case ActionOutput:
		line := strings.TrimRight(e.Output, "\n")
		if line == "" {
			return
		}
		if strings.Contains(line, timeoutMarker) {
			p.timedOut = true
			p.panicLine = strings.TrimSpace(line)
		}
		if e.Test == "" {
			p.output = append(p.output, line)
			return
		}
		if ts, ok := p.running[e.Test]; ok {
			ts.output = append(ts.output, line)
		}

	case ActionPass, ActionFail, ActionSkip:
		if e.Test == "" {
			s.endPackage(p, e)
			return
		}
		ts := p.running[e.Test]
		delete(p.running, e.Test)
		if ts == nil {
			ts = &testState{}
		}

		status := model.StatusPassed
		switch {
		case e.Action == ActionSkip:
			status = model.StatusSkipped
		case e.Action == ActionFail && p.timedOut:
			status = model.StatusTimedOut
		case e.Action == ActionFail:
			status = model.StatusFailed
		}
		s.complete(p, e.Test, status, e.elapsed(), ts)
	}
}

func (s *session) endPackage(p *pkgState, e Event) {
	if e.Action == ActionFail && p.completed == 0 && len(p.running) == 0 {
		s.consumer.logger.Warn().
			Str("package", p.name).
			Str("output", firstLine(p.output)).
			Msg("Package failed without running any test")
	}
	s.flush(p, e.Time)
}

func (s *session) flushAll() {
	for _, name := range s.order {
		s.flush(s.packages[name], time.Time{})
	}
}

// flush reports the tests of p that never finished.
func (s *session) flush(p *pkgState, end time.Time) {
	status := model.StatusInterrupted
	if p.timedOut {
		status = model.StatusTimedOut
	}

	for _, name := range p.runOrder {
		ts, ok := p.running[name]
		if !ok {
			continue
		}
		delete(p.running, name)

		var d time.Duration
		if !ts.start.IsZero() && !end.IsZero() && end.After(ts.start) {
			d = end.Sub(ts.start)
		}
		s.complete(p, name, status, d, ts)
	}
	p.runOrder = p.runOrder[:0]
}

func (s *session) complete(p *pkgState, name string, status model.Status, d time.Duration, ts *testState) {
	c := model.TestCompletion{
		File:     model.RelativeFile(s.consumer.modulePath, p.name),
		Title:    name,
		Status:   status,
		Duration: d,
		Retry:    p.attempts[name],
		Package:  p.name,
	}
	p.attempts[name]++
	p.completed++

	switch status {
	case model.StatusFailed:
		c.ErrorMessage, c.ErrorStack = failure(ts.output)
		if c.ErrorMessage == "" {
			c.ErrorMessage = "test failed"
		}
	case model.StatusTimedOut:
		_, c.ErrorStack = failure(append(append([]string(nil), ts.output...), p.output...))
		c.ErrorMessage = p.panicLine
		if c.ErrorMessage == "" {
			c.ErrorMessage = "test timed out"
		}
	}

	s.consumer.logger.Debug().
		Str("package", p.name).
		Str("test", name).
		Str("status", string(status)).
		Int("retry", c.Retry).
		Msg("Test finished")

	s.emit(c)
}

// failure extracts the message and stack of a failing test from its output.
func failure(output []string) (string, string) {
	var lines []string
	for _, l := range output {
		if isFrameworkLine(l) {
			continue
		}
		lines = append(lines, l)
	}
	return firstAssertion(lines), strings.Join(lines, "\n")
}

func isFrameworkLine(l string) bool {
	t := strings.TrimSpace(l)
	for _, prefix := range []string{"=== RUN", "=== PAUSE", "=== CONT", "=== NAME", "--- FAIL", "--- PASS", "--- SKIP"} {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

func firstAssertion(lines []string) string {
	for i, l := range lines {
		m := assertionLine.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		if text := strings.TrimSpace(m[2]); text != "" {
			return m[1] + ": " + text
		}
		// testify prints the details on the following lines
		for _, next := range lines[i+1:] {
			if v, ok := strings.CutPrefix(strings.TrimSpace(next), "Error:"); ok {
				if v = strings.TrimSpace(v); v != "" {
					return m[1] + ": " + v
				}
			}
		}
		return m[1]
	}
	return firstLine(lines)
}

func firstLine(lines []string) string {
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" {
			return t
		}
	}
	return ""
}
