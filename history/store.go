package history

// This file contains the persisted history snapshot: loading, recording
// and atomically saving the rolling window of test outcomes.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/perfgo/testpulse/model"
	"github.com/rs/zerolog"
)

const (
	dirName  = ".testpulse"
	fileName = "history.json"

	lockRetryDelay = 50 * time.Millisecond
)

// DefaultPath returns the history file below root. An empty root selects
// the working directory.
func DefaultPath(root string) string {
	return filepath.Join(root, dirName, fileName)
}

// Store persists a TestHistory as a single JSON snapshot.
type Store struct {
	logger  zerolog.Logger
	path    string
	maxRuns int
}

// NewStore creates a store for the snapshot at path keeping maxRuns
// outcomes per test.
func NewStore(logger zerolog.Logger, path string, maxRuns int) *Store {
	if maxRuns < 1 {
		maxRuns = DefaultMaxRuns
	}
	return &Store{
		logger:  logger,
		path:    path,
		maxRuns: maxRuns,
	}
}

// Path returns the location of the snapshot.
func (s *Store) Path() string {
	return s.path
}

// MaxRuns returns the window size.
func (s *Store) MaxRuns() int {
	return s.maxRuns
}

// Load reads the snapshot. A missing or unreadable snapshot yields an
// empty history.
func (s *Store) Load() *TestHistory {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to read history, starting empty")
		} else {
			s.logger.Debug().Str("path", s.path).Msg("No history found, starting empty")
		}
		return New()
	}

	h := New()
	if err := json.Unmarshal(data, h); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to parse history, starting empty")
		return New()
	}
	h.Trim(s.maxRuns)

	s.logger.Debug().
		Str("path", s.path).
		Int("tests", h.Len()).
		Msg("Loaded history")
	return h
}

// RecordAndTrim appends outcome to the history of id and keeps only the
// most recent outcomes.
func (s *Store) RecordAndTrim(h *TestHistory, id model.TestID, outcome model.HistoryRecord) {
	h.Append(id, outcome, s.maxRuns)
}

// Save overwrites the snapshot with h. The new snapshot is written to a
// temporary file and renamed into place, so a failed save leaves the
// previous snapshot intact.
func (s *Store) Save(ctx context.Context, h *TestHistory) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	lock := newLock(s.path)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to lock history: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to lock history %s", s.path)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Debug().Err(err).Str("path", lock.Path()).Msg("Failed to unlock history")
		}
	}()

	compact, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	var data bytes.Buffer
	if err := json.Indent(&data, compact, "", "  "); err != nil {
		return fmt.Errorf("failed to format history: %w", err)
	}
	data.WriteByte('\n')

	if err := WriteFileAtomic(s.path, data.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}

	s.logger.Debug().
		Str("path", s.path).
		Int("tests", h.Len()).
		Msg("Saved history")
	return nil
}

func newLock(path string) *flock.Flock {
	return flock.New(path + ".lock")
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
