// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// EngineKind distinguishes the two provider capabilities.
// Per prd001-providers R1.2.
type EngineKind string

const (
	// EngineStructured engines parse their own response pages into
	// final result fields.
	EngineStructured EngineKind = "structured"

	// EngineExtraction engines return raw markup that must go through
	// the AI extraction stage.
	EngineExtraction EngineKind = "extraction"
)

// Selectors holds the CSS selectors a structured engine uses to pull
// result fields out of a page. Magnet and Link select anchors whose
// href attribute is read.
type Selectors struct {
	Row    string `json:"row,omitempty" yaml:"row,omitempty"`
	Title  string `json:"title,omitempty" yaml:"title,omitempty"`
	Magnet string `json:"magnet,omitempty" yaml:"magnet,omitempty"`
	Size   string `json:"size,omitempty" yaml:"size,omitempty"`
	Link   string `json:"link,omitempty" yaml:"link,omitempty"`
}

// EngineConfig describes one search engine. The enabled engine list is
// snapshot at search start and immutable for the session's lifetime.
type EngineConfig struct {
	// ID uniquely identifies the engine (e.g. "nyaa").
	ID string `json:"id" yaml:"id"`

	// Name is the display name.
	Name string `json:"name" yaml:"name"`

	// Kind selects structured or extraction handling.
	Kind EngineKind `json:"kind" yaml:"kind"`

	// EndpointTemplate is the search URL with {keyword} and {page}
	// placeholders (e.g. "https://example.org/search?q={keyword}&p={page}").
	EndpointTemplate string `json:"endpoint_template" yaml:"endpoint_template"`

	// Enabled controls whether the engine participates in searches.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Selectors configure row parsing for structured engines.
	Selectors Selectors `json:"selectors,omitempty" yaml:"selectors,omitempty"`
}

// Validate checks the configuration is complete enough to build a
// provider from (prd001-providers R1.4).
func (e EngineConfig) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("engine id is empty")
	}
	if e.Kind != EngineStructured && e.Kind != EngineExtraction {
		return fmt.Errorf("engine %s: unknown kind %q", e.ID, e.Kind)
	}
	if e.EndpointTemplate == "" {
		return fmt.Errorf("engine %s: endpoint template is empty", e.ID)
	}
	if e.Kind == EngineStructured {
		if e.Selectors.Row == "" || e.Selectors.Magnet == "" {
			return fmt.Errorf("engine %s: structured engines need row and magnet selectors", e.ID)
		}
	}
	return nil
}
