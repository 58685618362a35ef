// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the magnet-engine pipeline.
// Implements: prd001-providers (RawResult, EngineConfig);
//
//	prd003-extraction (SearchResult, R2.1-R2.4);
//	prd004-analysis (AnalysisResult, R1.1-R1.3);
//	prd002-aggregation (SessionStatus).
//
// See docs/ARCHITECTURE.md § Pipeline Interface, § Data Structures.
package types

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// RawResult is the ephemeral output of one provider page fetch. For a
// structured engine Fields is populated and Markup is empty; for an
// extraction engine Markup carries the raw page and Fields is nil.
// RawResults are never persisted.
type RawResult struct {
	// EngineID identifies the engine that produced this item.
	EngineID string

	// PageIndex is the 1-based result page the item came from.
	PageIndex int

	// Markup is the unparsed page payload, set for extraction engines.
	Markup string

	// Fields holds pre-parsed result fields, set for structured engines.
	Fields *RawFields
}

// RawFields are the result fields a structured engine parsed out of its
// own response.
type RawFields struct {
	Title      string
	MagnetLink string
	SizeBytes  int64
	SourceURL  string
}

// SearchResult is one deduplicated magnet-link result within a session.
type SearchResult struct {
	// ID is a stable short identifier derived from the magnet link.
	ID string `json:"id" yaml:"id"`

	// Title is the result title as the engine returned it.
	Title string `json:"title" yaml:"title"`

	// MagnetLink is the magnet URI. It is the dedup key across all
	// engines within one session.
	MagnetLink string `json:"magnet_link" yaml:"magnet_link"`

	// SizeBytes is the reported content size; 0 means unknown.
	SizeBytes int64 `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty"`

	// SourceURL is the page the result was found on.
	SourceURL string `json:"source_url,omitempty" yaml:"source_url,omitempty"`

	// EngineID identifies the engine that contributed the result.
	EngineID string `json:"engine_id" yaml:"engine_id"`

	// Priority is set when the title matches a stored priority keyword.
	Priority bool `json:"priority,omitempty" yaml:"priority,omitempty"`

	// ExtractedAt records when the structured record was created.
	ExtractedAt time.Time `json:"extracted_at" yaml:"extracted_at"`

	// Analysis holds the AI content analysis, absent until the analysis
	// stage has completed for this result.
	Analysis *AnalysisResult `json:"analysis,omitempty" yaml:"analysis,omitempty"`
}

// AnalysisResult is the AI content-analysis enrichment for one result.
type AnalysisResult struct {
	// CleanedTitle is the title with release-group noise stripped.
	CleanedTitle string `json:"cleaned_title" yaml:"cleaned_title"`

	// Tags are lowercase topic labels. Duplicates are never stored.
	Tags []string `json:"tags" yaml:"tags"`

	// PurityScore is a 0-100 quality heuristic.
	PurityScore int `json:"purity_score" yaml:"purity_score"`
}

// ResultID derives the stable result identifier from a magnet link. The
// ID is the first 12 hex characters of SHA-256(magnetLink).
func ResultID(magnetLink string) string {
	h := sha256.Sum256([]byte(magnetLink))
	return fmt.Sprintf("%x", h)[:12]
}

// SessionStatus is the lifecycle state of one search session.
type SessionStatus string

const (
	StatusRunning         SessionStatus = "running"
	StatusCompleted       SessionStatus = "completed"
	StatusPartiallyFailed SessionStatus = "partially_failed"
	StatusCancelled       SessionStatus = "cancelled"
)
