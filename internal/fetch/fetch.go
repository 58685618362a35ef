// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch retrieves search result pages for providers and
// classifies transport failures into the provider error taxonomy.
// Implements: prd001-providers (R2, R5);
//
//	docs/ARCHITECTURE § Providers.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/magnet-engine/internal/httputil"
	"github.com/pdiddy/magnet-engine/pkg/types"
)

// maxPageBytes caps how much of a result page is read. Search pages
// beyond this are almost certainly not result listings.
const maxPageBytes = 4 << 20

// Fetcher retrieves result pages over HTTP on behalf of providers.
type Fetcher struct {
	Client *http.Client
	Cfg    types.HTTPConfig
}

// New returns a Fetcher with a client honoring cfg.Timeout.
func New(cfg types.HTTPConfig) *Fetcher {
	return &Fetcher{
		Client: &http.Client{Timeout: cfg.Timeout},
		Cfg:    cfg,
	}
}

// Page fetches one result page and returns its body. Failures are
// returned as *types.ProviderError carrying engineID, so the
// orchestrator can report them without inspecting transport details.
func (f *Fetcher) Page(ctx context.Context, engineID, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &types.ProviderError{EngineID: engineID, Kind: types.ProviderMalformed, Err: err}
	}
	if f.Cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.Cfg.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, f.Client, req, 0)
	if err != nil {
		return "", &types.ProviderError{EngineID: engineID, Kind: classify(err), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &types.ProviderError{
			EngineID: engineID,
			Kind:     types.ProviderRateLimited,
			Err:      fmt.Errorf("HTTP 429 after retries"),
		}
	case resp.StatusCode != http.StatusOK:
		return "", &types.ProviderError{
			EngineID: engineID,
			Kind:     types.ProviderUnreachable,
			Err:      fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", &types.ProviderError{EngineID: engineID, Kind: classify(err), Err: err}
	}
	return string(body), nil
}

// classify maps a transport error onto the provider taxonomy. Deadline
// expiry is a Timeout; everything else on the wire is Unreachable.
func classify(err error) types.ProviderErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ProviderTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return types.ProviderTimeout
	}
	return types.ProviderUnreachable
}

// ExpandTemplate substitutes {keyword} and {page} in an endpoint
// template. The keyword is query-escaped; the page index is 1-based.
func ExpandTemplate(tmpl, keyword string, page int) string {
	out := strings.ReplaceAll(tmpl, "{keyword}", url.QueryEscape(keyword))
	return strings.ReplaceAll(out, "{page}", strconv.Itoa(page))
}
