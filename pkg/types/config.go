package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "magnet-engine/0.1"). Per prd001-providers R5.1.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// SearchConfig holds settings for the aggregation stage.
// Per prd002-aggregation R1.3, R5.1-R5.3.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxPages is the default number of result pages fetched per engine
	// (default 1).
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// PageDelay is the delay between consecutive page fetches on one
	// engine (default 0).
	PageDelay time.Duration `json:"page_delay" yaml:"page_delay"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for transient API
	// failures (default 3). The analysis stage ignores this and never
	// retries within one invocation.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// CallTimeout bounds one AI API call (default 60s).
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`
}

// ExtractionConfig holds settings for the AI extraction stage.
// Per prd003-extraction R3.1-R3.3.
type ExtractionConfig struct {
	AIConfig `yaml:",inline"`

	// MaxPayloadBytes is the ceiling above which raw markup is truncated
	// before the AI call, bounding per-call cost (default 65536).
	MaxPayloadBytes int `json:"max_payload_bytes" yaml:"max_payload_bytes"`

	// Workers caps concurrent extraction calls per engine, so one engine
	// cannot monopolize the AI rate budget (default 2).
	Workers int `json:"workers" yaml:"workers"`
}

// AnalysisConfig holds settings for the AI content-analysis stage.
// Per prd004-analysis R2.1-R2.3.
type AnalysisConfig struct {
	AIConfig `yaml:",inline"`

	// BatchSize is the maximum number of results per analysis call
	// (default 10).
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// MaxConcurrentBatches caps in-flight analysis calls (default 2).
	MaxConcurrentBatches int `json:"max_concurrent_batches" yaml:"max_concurrent_batches"`
}

// StateConfig holds settings for the durable state gateway.
type StateConfig struct {
	// StateDir is the directory holding the state database (default "state").
	StateDir string `json:"state_dir" yaml:"state_dir"`
}

// AISettings are the durable AI tuning knobs kept in the state gateway.
// They override the static config when present.
type AISettings struct {
	Model                string `json:"model,omitempty" yaml:"model,omitempty"`
	BatchSize            int    `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	MaxConcurrentBatches int    `json:"max_concurrent_batches,omitempty" yaml:"max_concurrent_batches,omitempty"`
	ExtractWorkers       int    `json:"extract_workers,omitempty" yaml:"extract_workers,omitempty"`
	MaxPayloadBytes      int    `json:"max_payload_bytes,omitempty" yaml:"max_payload_bytes,omitempty"`
}

// AppConfig groups all stage configurations.
type AppConfig struct {
	Search     SearchConfig     `json:"search" yaml:"search"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction"`
	Analysis   AnalysisConfig   `json:"analysis" yaml:"analysis"`
	State      StateConfig      `json:"state" yaml:"state"`
}
