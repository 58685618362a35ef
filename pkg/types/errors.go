// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// ProviderErrorKind classifies a provider failure. All kinds are
// recoverable at the orchestrator level: the engine's contribution is
// truncated, siblings keep running (prd001-providers R2.1-R2.4).
type ProviderErrorKind string

const (
	ProviderTimeout     ProviderErrorKind = "timeout"
	ProviderUnreachable ProviderErrorKind = "unreachable"
	ProviderMalformed   ProviderErrorKind = "malformed_response"
	ProviderRateLimited ProviderErrorKind = "rate_limited"
)

// ProviderError reports a failure from one search engine.
type ProviderError struct {
	EngineID string
	Kind     ProviderErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("engine %s: %s: %v", e.EngineID, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ExtractionErrorKind classifies an AI extraction failure for one item.
type ExtractionErrorKind string

const (
	ExtractionSchemaInvalid      ExtractionErrorKind = "schema_invalid"
	ExtractionServiceUnavailable ExtractionErrorKind = "service_unavailable"
)

// ExtractionError reports why one raw item could not be converted. The
// item is dropped; siblings are unaffected.
type ExtractionError struct {
	Kind ExtractionErrorKind
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction: %s: %v", e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// AnalysisErrorKind classifies an AI analysis batch failure.
type AnalysisErrorKind string

const (
	AnalysisSchemaInvalid      AnalysisErrorKind = "schema_invalid"
	AnalysisServiceUnavailable AnalysisErrorKind = "service_unavailable"
	AnalysisRateLimited        AnalysisErrorKind = "rate_limited"
)

// AnalysisError reports the failure of one analysis batch. Every result
// in the batch is marked failed; sibling batches continue.
type AnalysisError struct {
	Kind AnalysisErrorKind
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis: %s: %v", e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// PersistenceErrorKind classifies a state gateway failure.
type PersistenceErrorKind string

const (
	PersistenceIoFailure PersistenceErrorKind = "io_failure"
	PersistenceCorrupt   PersistenceErrorKind = "corrupt"
)

// PersistenceError reports a durable-state failure. Unlike the other
// categories this one surfaces to the user as a hard failure: silent
// loss of configuration is unacceptable (prd005-state R3.1).
type PersistenceError struct {
	Op   string
	Kind PersistenceErrorKind
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("state %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
