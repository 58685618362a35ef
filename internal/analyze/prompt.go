// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/template"

	"github.com/pdiddy/magnet-engine/pkg/types"
)

// analysisPromptTmpl is the prompt sent to the Claude API for each
// batch of results. Per prd004-analysis R2.4.
var analysisPromptTmpl = template.Must(template.New("analysis").Parse(`You are a search result curation system. The following JSON array lists magnet search results. Analyze each one.

For each input item produce:
- id: copied verbatim from the input item
- cleaned_title: the title with release-group suffixes, bracket noise, and encoding tags stripped, keeping the actual content name
- tags: one or more lowercase, hyphenated topic labels describing the content (e.g. "video", "1080p", "open-movie")
- purity_score: an integer 0-100 rating how clean and trustworthy the result looks (100 = clearly legitimate, well-described content; 0 = spam or bait)

Respond with a JSON object containing a "records" array. Each element must have all four fields. Do not include any text outside the JSON object.

Example response:
{"records": [{"id": "a1b2c3d4e5f6", "cleaned_title": "Big Buck Bunny", "tags": ["video", "1080p", "open-movie"], "purity_score": 93}]}

Results:
{{.Batch}}
`))

// analysisAPIURL is the Claude API endpoint. Package-level var for test substitution.
var analysisAPIURL = "https://api.anthropic.com/v1/messages"

// ClaudeBackend calls the Claude API with one analysis batch. It makes
// exactly one attempt per call: within an invocation the stage never
// retries, the failed subset is re-run only on explicit consumer
// request (R3.3).
type ClaudeBackend struct {
	APIKey string
	Model  string
	Client *http.Client
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// analysisEnvelope is the JSON object the model is instructed to return.
type analysisEnvelope struct {
	Records []Record `json:"records"`
}

// Analyze sends one batch to the Claude API and parses the records.
func (c *ClaudeBackend) Analyze(ctx context.Context, batch []Item) ([]Record, error) {
	batchJSON, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("marshaling batch: %w", err)
	}

	var buf bytes.Buffer
	if err := analysisPromptTmpl.Execute(&buf, struct{ Batch string }{Batch: string(batchJSON)}); err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	reqBody := claudeRequest{
		Model:     c.Model,
		MaxTokens: 4096,
		Messages: []claudeMessage{
			{Role: "user", Content: buf.String()},
		},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, analysisAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &types.AnalysisError{
			Kind: types.AnalysisServiceUnavailable,
			Err:  fmt.Errorf("calling Claude API: %w", err),
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &types.AnalysisError{
			Kind: types.AnalysisRateLimited,
			Err:  fmt.Errorf("Claude API returned 429"),
		}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, &types.AnalysisError{
			Kind: types.AnalysisServiceUnavailable,
			Err:  fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body)),
		}
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return nil, &types.AnalysisError{
			Kind: types.AnalysisSchemaInvalid,
			Err:  fmt.Errorf("decoding Claude response: %w", err),
		}
	}

	for _, block := range cResp.Content {
		if block.Type != "text" {
			continue
		}
		var env analysisEnvelope
		if err := json.Unmarshal([]byte(block.Text), &env); err != nil {
			return nil, &types.AnalysisError{
				Kind: types.AnalysisSchemaInvalid,
				Err:  fmt.Errorf("parsing AI response JSON: %w", err),
			}
		}
		return env.Records, nil
	}

	return nil, &types.AnalysisError{
		Kind: types.AnalysisSchemaInvalid,
		Err:  fmt.Errorf("no text content in Claude API response"),
	}
}
