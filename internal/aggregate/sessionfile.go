// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package aggregate

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/magnet-engine/pkg/types"
)

// SessionFile is the on-disk representation of a finished search. The
// consumer can save a session to a file and reload it later without
// re-querying engines.
type SessionFile struct {
	Keyword   string               `yaml:"keyword"`
	MaxPages  int                  `yaml:"max_pages"`
	StartedAt time.Time            `yaml:"started_at"`
	Status    types.SessionStatus  `yaml:"status"`
	Engines   []string             `yaml:"engines"`
	Results   []types.SearchResult `yaml:"results"`
	Summary   SessionSummary       `yaml:"summary"`
}

// SessionSummary stores result statistics and failure reports.
type SessionSummary struct {
	Total             int             `yaml:"total"`
	DuplicatesRemoved int             `yaml:"duplicates_removed,omitempty"`
	DroppedItems      int             `yaml:"dropped_items,omitempty"`
	Failures     []FailureRecord `yaml:"failures,omitempty"`
	Timestamp    time.Time       `yaml:"timestamp"`
}

// FailureRecord is one engine failure in serializable form.
type FailureRecord struct {
	EngineID string `yaml:"engine_id"`
	Reason   string `yaml:"reason"`
}

// WriteSessionFile saves a terminated session's outcome to a YAML file.
func WriteSessionFile(path string, s *Session) error {
	results := s.Results()
	sf := SessionFile{
		Keyword:   s.Keyword,
		MaxPages:  s.MaxPages,
		StartedAt: s.StartedAt,
		Status:    s.Status(),
		Results:   make([]types.SearchResult, 0, len(results)),
		Summary: SessionSummary{
			Total:             len(results),
			DuplicatesRemoved: s.DuplicatesSuppressed(),
			DroppedItems:      s.DroppedItems(),
			Timestamp:         time.Now().UTC(),
		},
	}
	for _, ec := range s.Engines {
		sf.Engines = append(sf.Engines, ec.ID)
	}
	for _, r := range results {
		sf.Results = append(sf.Results, *r)
	}
	for _, f := range s.Failures() {
		sf.Summary.Failures = append(sf.Summary.Failures, FailureRecord{
			EngineID: f.EngineID,
			Reason:   f.Err.Error(),
		})
	}

	data, err := yaml.Marshal(&sf)
	if err != nil {
		return fmt.Errorf("marshaling session file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSessionFile loads a previously saved session file from disk.
func ReadSessionFile(path string) (*SessionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}
	var sf SessionFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing session file: %w", err)
	}
	return &sf, nil
}
