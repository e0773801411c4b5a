package history

// This file contains the in-memory test history: an ordered mapping from
// test identity to its most recent outcomes.

import (
	"slices"

	"github.com/perfgo/testpulse/model"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultMaxRuns is the number of outcomes kept per test by default.
const DefaultMaxRuns = 10

// TestHistory maps test identities to their outcomes, oldest first.
// Identities keep the order in which they were first recorded.
type TestHistory struct {
	tests *orderedmap.OrderedMap[string, []model.HistoryRecord]
}

// New returns an empty history.
func New() *TestHistory {
	return &TestHistory{
		tests: orderedmap.New[string, []model.HistoryRecord](),
	}
}

// Records returns a copy of the outcomes recorded for id, oldest first.
func (h *TestHistory) Records(id model.TestID) []model.HistoryRecord {
	records, ok := h.tests.Get(string(id))
	if !ok {
		return nil
	}
	return slices.Clone(records)
}

// Append adds rec to the outcomes of id and drops the oldest outcomes so
// that at most maxRuns remain.
func (h *TestHistory) Append(id model.TestID, rec model.HistoryRecord, maxRuns int) {
	records, _ := h.tests.Get(string(id))
	records = append(slices.Clip(records), rec)
	h.tests.Set(string(id), keepLast(records, maxRuns))
}

// Trim enforces the window on every identity.
func (h *TestHistory) Trim(maxRuns int) {
	for pair := h.tests.Oldest(); pair != nil; pair = pair.Next() {
		if len(pair.Value) > maxRuns {
			pair.Value = keepLast(pair.Value, maxRuns)
		}
	}
}

// Len returns the number of identities with recorded outcomes.
func (h *TestHistory) Len() int {
	return h.tests.Len()
}

// IDs returns all identities in insertion order.
func (h *TestHistory) IDs() []model.TestID {
	ids := make([]model.TestID, 0, h.tests.Len())
	for pair := h.tests.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, model.TestID(pair.Key))
	}
	return ids
}

// MarshalJSON encodes the history as a JSON object keyed by identity.
func (h *TestHistory) MarshalJSON() ([]byte, error) {
	return h.tests.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object keyed by identity.
func (h *TestHistory) UnmarshalJSON(data []byte) error {
	tests := orderedmap.New[string, []model.HistoryRecord]()
	if err := tests.UnmarshalJSON(data); err != nil {
		return err
	}
	h.tests = tests
	return nil
}

func keepLast(records []model.HistoryRecord, n int) []model.HistoryRecord {
	if n < 1 {
		n = 1
	}
	if len(records) <= n {
		return records
	}
	return slices.Clone(records[len(records)-n:])
}
