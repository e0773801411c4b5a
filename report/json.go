// Package report writes the artifacts of a run: the JSON report consumed by
// the presentation layer, an optional Prometheus textfile and the terminal
// summary.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/perfgo/testpulse/history"
	"github.com/perfgo/testpulse/model"
)

// WriteJSON writes rep as indented JSON to path, creating the parent
// directory. The file is replaced atomically.
func WriteJSON(path string, rep *model.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')

	if err := history.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ReadJSON loads a report written by WriteJSON.
func ReadJSON(path string) (*model.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var rep model.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &rep, nil
}
