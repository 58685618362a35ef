// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package state

import (
	"context"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/magnet-engine/pkg/types"
)

// EngineFile is the on-disk representation of an engine registry. The
// operator can export the registry to a file, edit it, and import it
// on another machine.
type EngineFile struct {
	Engines          []types.EngineConfig `yaml:"engines"`
	PriorityKeywords []string             `yaml:"priority_keywords,omitempty"`
}

// ReadEngineFile loads an engine registry file from disk and validates
// every engine definition in it.
func ReadEngineFile(path string) (*EngineFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading engine file: %w", err)
	}
	var ef EngineFile
	if err := yaml.Unmarshal(data, &ef); err != nil {
		return nil, fmt.Errorf("parsing engine file: %w", err)
	}
	for _, ec := range ef.Engines {
		if err := ec.Validate(); err != nil {
			return nil, fmt.Errorf("engine file: %w", err)
		}
	}
	return &ef, nil
}

// WriteEngineFile saves an engine registry to a YAML file.
func WriteEngineFile(path string, ef *EngineFile) error {
	data, err := yaml.Marshal(ef)
	if err != nil {
		return fmt.Errorf("marshaling engine file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Import upserts every engine and priority keyword from an engine file
// into the store. Existing engines with matching ids are overwritten.
func (s *Store) Import(ctx context.Context, ef *EngineFile) error {
	for _, ec := range ef.Engines {
		if err := s.PutEngine(ctx, ec); err != nil {
			return err
		}
	}
	for _, kw := range ef.PriorityKeywords {
		if err := s.AddPriorityKeyword(ctx, kw); err != nil {
			return err
		}
	}
	return nil
}

// Export snapshots the store into an engine file.
func (s *Store) Export(ctx context.Context) (*EngineFile, error) {
	engines, err := s.Engines(ctx)
	if err != nil {
		return nil, err
	}
	keywords, err := s.PriorityKeywords(ctx)
	if err != nil {
		return nil, err
	}
	return &EngineFile{Engines: engines, PriorityKeywords: keywords}, nil
}
