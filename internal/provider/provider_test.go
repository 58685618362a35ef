// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pdiddy/magnet-engine/internal/fetch"
	"github.com/pdiddy/magnet-engine/internal/httputil"
	"github.com/pdiddy/magnet-engine/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = 1 * time.Millisecond
}

const resultsPage = `<html><body><table>
<tr class="result">
  <td class="name"><a class="page" href="/view/1"> Big Buck Bunny 1080p </a></td>
  <td class="size">1.4 GiB</td>
  <td><a class="dl" href="magnet:?xt=urn:btih:aaa">magnet</a></td>
</tr>
<tr class="result">
  <td class="name"><a class="page" href="/view/2">Sintel</a></td>
  <td class="size">700 MB</td>
  <td><a class="dl" href="magnet:?xt=urn:btih:bbb">magnet</a></td>
</tr>
<tr class="result">
  <td class="name"><a class="page" href="/view/3">No magnet here</a></td>
  <td class="size">10 MB</td>
  <td><a class="dl" href="/download/3">direct</a></td>
</tr>
</table></body></html>`

func structuredCfg(ts *httptest.Server) types.EngineConfig {
	return types.EngineConfig{
		ID:               "ex",
		Name:             "Example",
		Kind:             types.EngineStructured,
		EndpointTemplate: ts.URL + "/s?q={keyword}&p={page}",
		Enabled:          true,
		Selectors: types.Selectors{
			Row:    "tr.result",
			Title:  "td.name a",
			Magnet: "a.dl",
			Size:   "td.size",
			Link:   "td.name a",
		},
	}
}

func collect(t *testing.T, p Provider, keyword string, maxPages int) []types.RawResult {
	t.Helper()
	var all []types.RawResult
	err := p.Search(context.Background(), keyword, maxPages, func(page []types.RawResult) error {
		all = append(all, page...)
		return nil
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	return all
}

func TestStructuredSearchParsesRows(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("p") == "1" {
			fmt.Fprint(w, resultsPage)
			return
		}
		fmt.Fprint(w, "<html><body><table></table></body></html>")
	}))
	defer ts.Close()

	p, err := New(structuredCfg(ts), fetch.New(types.HTTPConfig{Timeout: 5 * time.Second}), 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	items := collect(t, p, "bunny", 3)
	// Row without a magnet link is skipped; paging stops at the empty page.
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}

	f := items[0].Fields
	if f == nil {
		t.Fatal("structured item has nil Fields")
	}
	if f.Title != "Big Buck Bunny 1080p" {
		t.Errorf("Title = %q", f.Title)
	}
	if f.MagnetLink != "magnet:?xt=urn:btih:aaa" {
		t.Errorf("MagnetLink = %q", f.MagnetLink)
	}
	wantSize := 1.4 * float64(1<<30)
	if f.SizeBytes != int64(wantSize) {
		t.Errorf("SizeBytes = %d", f.SizeBytes)
	}
	if f.SourceURL != ts.URL+"/view/1" {
		t.Errorf("SourceURL = %q", f.SourceURL)
	}
	if items[0].PageIndex != 1 {
		t.Errorf("PageIndex = %d, want 1", items[0].PageIndex)
	}
}

func TestExtractionSearchEmitsMarkup(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html>page %s</html>", r.URL.Query().Get("p"))
	}))
	defer ts.Close()

	cfg := structuredCfg(ts)
	cfg.Kind = types.EngineExtraction
	cfg.Selectors = types.Selectors{}

	p, err := New(cfg, fetch.New(types.HTTPConfig{Timeout: 5 * time.Second}), 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	items := collect(t, p, "bunny", 2)
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].Markup != "<html>page 1</html>" || items[1].Markup != "<html>page 2</html>" {
		t.Errorf("markup pages out of order: %q, %q", items[0].Markup, items[1].Markup)
	}
	if items[0].Fields != nil {
		t.Error("extraction item should not carry parsed fields")
	}
}

func TestSearchArgumentValidation(t *testing.T) {
	p := &htmlEngine{cfg: types.EngineConfig{ID: "ex"}}
	noEmit := func([]types.RawResult) error { t.Fatal("emit called"); return nil }

	if err := p.Search(context.Background(), "  ", 1, noEmit); err == nil {
		t.Error("empty keyword accepted")
	}
	if err := p.Search(context.Background(), "x", 0, noEmit); err == nil {
		t.Error("maxPages 0 accepted")
	}
}

func TestSearchStopsOnCancel(t *testing.T) {
	var pages int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		pages++
		fmt.Fprint(w, resultsPage)
	}))
	defer ts.Close()

	p, err := New(structuredCfg(ts), fetch.New(types.HTTPConfig{Timeout: 5 * time.Second}), 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	err = p.Search(ctx, "bunny", 10, func([]types.RawResult) error {
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Search() error = %v, want context.Canceled", err)
	}
	if pages != 1 {
		t.Errorf("fetched %d pages after cancel, want 1", pages)
	}
}

func TestSearchPropagatesFetchFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	p, err := New(structuredCfg(ts), fetch.New(types.HTTPConfig{Timeout: 5 * time.Second}), 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = p.Search(context.Background(), "bunny", 1, func([]types.RawResult) error { return nil })
	var perr *types.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("Search() error = %v, want *types.ProviderError", err)
	}
	if perr.Kind != types.ProviderUnreachable {
		t.Errorf("Kind = %s, want %s", perr.Kind, types.ProviderUnreachable)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"700 MB", 700 << 20},
		{"1.5 GiB", int64(1.5 * float64(1<<30))},
		{"2TB", 2 << 40},
		{"512 b", 512},
		{"1,024 KB", 1024 << 10},
		{"", 0},
		{"unknown", 0},
		{"12 parsecs", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseSize(tt.in); got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
