// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/template"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/pdiddy/magnet-engine/pkg/types"
)

// extractionPromptTmpl is the prompt sent to the Claude API for each
// raw markup payload. It instructs the model to return only the
// structured records. Per prd003-extraction R4.2.
var extractionPromptTmpl = template.Must(template.New("extraction").Parse(`You are a search result extraction system. The following is raw markup from a magnet search engine's result page. Extract every result entry it contains.

For each entry, identify:
- title: the result title, as it appears in the markup
- magnet_link: the full magnet URI (must start with "magnet:?"); skip entries that have none
- size_bytes: the content size converted to bytes (0 if not shown)
- source_url: the detail page URL for the entry ("" if not shown)

Respond with a JSON object containing an "items" array. Each element must have all four fields. Do not include any text outside the JSON object.

Example response:
{"items": [{"title": "Big Buck Bunny 1080p", "magnet_link": "magnet:?xt=urn:btih:aaa", "size_bytes": 1503238553, "source_url": "https://example.org/view/1"}]}

Markup:
{{.Markup}}
`))

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// retryBaseDelay is the base backoff for transient Claude API failures.
// Tests override this to avoid real sleeps.
var retryBaseDelay = 500 * time.Millisecond

// ClaudeBackend calls the Claude API to extract result records from raw
// markup. Transient failures (429, 5xx, transport errors) are retried
// through a failsafe policy; a terminal failure drops the item.
type ClaudeBackend struct {
	APIKey string
	Model  string
	Client *http.Client

	exec failsafe.Executor[*http.Response]
}

// NewClaudeBackend builds the backend with a retry policy of maxRetries
// attempts (default 3 when <= 0).
func NewClaudeBackend(apiKey, model string, maxRetries int) *ClaudeBackend {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(retryBaseDelay, 8*time.Second).
		WithMaxRetries(maxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		}).
		Build()
	return &ClaudeBackend{
		APIKey: apiKey,
		Model:  model,
		exec:   failsafe.With(retry),
	}
}

// claudeRequest is the request body for the Claude Messages API.
type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

// claudeMessage is a single message in the Claude API conversation.
type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the response body from the Claude Messages API.
type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

// claudeContent is a content block in the Claude API response.
type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Extract calls the Claude API with the extraction prompt for one raw
// markup payload (R4.2).
func (c *ClaudeBackend) Extract(ctx context.Context, markup string) (AIResponse, error) {
	var buf bytes.Buffer
	if err := extractionPromptTmpl.Execute(&buf, struct{ Markup string }{Markup: markup}); err != nil {
		return AIResponse{}, fmt.Errorf("rendering prompt: %w", err)
	}

	text, err := callClaude(ctx, c.exec, c.Client, c.APIKey, c.Model, buf.String())
	if err != nil {
		return AIResponse{}, err
	}

	var aiResp AIResponse
	if err := json.Unmarshal([]byte(text), &aiResp); err != nil {
		return AIResponse{}, &types.ExtractionError{
			Kind: types.ExtractionSchemaInvalid,
			Err:  fmt.Errorf("parsing AI response JSON: %w", err),
		}
	}
	return aiResp, nil
}

// callClaude performs one Messages API round trip under exec's retry
// policy and returns the first text content block.
func callClaude(ctx context.Context, exec failsafe.Executor[*http.Response], client *http.Client, apiKey, model, prompt string) (string, error) {
	reqBody := claudeRequest{
		Model:     model,
		MaxTokens: 4096,
		Messages: []claudeMessage{
			{Role: "user", Content: prompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	if client == nil {
		client = http.DefaultClient
	}

	resp, err := exec.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")
		return client.Do(req)
	})
	if err != nil {
		return "", &types.ExtractionError{
			Kind: types.ExtractionServiceUnavailable,
			Err:  fmt.Errorf("calling Claude API: %w", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &types.ExtractionError{
			Kind: types.ExtractionServiceUnavailable,
			Err:  fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body)),
		}
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", &types.ExtractionError{
			Kind: types.ExtractionSchemaInvalid,
			Err:  fmt.Errorf("decoding Claude response: %w", err),
		}
	}

	for _, block := range cResp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", &types.ExtractionError{
		Kind: types.ExtractionSchemaInvalid,
		Err:  fmt.Errorf("no text content in Claude API response"),
	}
}
