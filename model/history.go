package model

import (
	"path"
	"path/filepath"
	"strings"
	"time"
)

// TimestampFormat is the ISO-8601 layout used for history timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// TestID identifies a test across runs. It is derived from the test's file
// (relative to a fixed root) and its title.
type TestID string

// NewTestID builds the identity of a test. Two tests sharing file and title
// collapse into the same identity.
func NewTestID(root, file, title string) TestID {
	return TestID(RelativeFile(root, file) + " :: " + title)
}

// RelativeFile returns file relative to root using forward slashes. Files
// outside of root are returned cleaned but otherwise unchanged.
func RelativeFile(root, file string) string {
	file = filepath.ToSlash(file)
	if root == "" {
		return path.Clean(file)
	}
	root = strings.TrimSuffix(filepath.ToSlash(root), "/")

	if file == root {
		return "."
	}
	if strings.HasPrefix(file, root+"/") {
		return path.Clean(strings.TrimPrefix(file, root+"/"))
	}
	return path.Clean(file)
}

// HistoryRecord is one past execution outcome of a test.
type HistoryRecord struct {
	// Whether the test passed
	Passed bool `json:"passed"`
	// Duration in milliseconds
	Duration float64 `json:"duration"`
	// When the run happened (ISO-8601)
	Timestamp string `json:"timestamp"`
}

// NewHistoryRecord creates a record for an outcome observed at t.
func NewHistoryRecord(passed bool, d time.Duration, t time.Time) HistoryRecord {
	return HistoryRecord{
		Passed:    passed,
		Duration:  Milliseconds(d),
		Timestamp: t.UTC().Format(TimestampFormat),
	}
}

// Milliseconds converts d into fractional milliseconds.
func Milliseconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
