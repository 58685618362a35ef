// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provider implements the uniform search contract over
// heterogeneous magnet search engines. Each engine is either structured
// (parses its own result rows) or extraction (hands raw markup to the
// AI extraction stage). Per the Strategy pattern (prd001-providers R1).
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/magnet-engine/internal/fetch"
	"github.com/pdiddy/magnet-engine/pkg/types"
)

// Provider searches a single engine. Search fetches up to maxPages
// result pages and passes each page's items to emit in page order; the
// sequence is lazy, finite, and non-restartable. A provider must stop
// promptly once ctx is cancelled, at page-fetch granularity (R2.5).
// A returned error truncates this engine's contribution only.
type Provider interface {
	ID() string
	Kind() types.EngineKind
	Search(ctx context.Context, keyword string, maxPages int, emit func([]types.RawResult) error) error
}

// New builds a provider from an engine configuration.
func New(cfg types.EngineConfig, f *fetch.Fetcher, pageDelay time.Duration) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &htmlEngine{cfg: cfg, fetcher: f, pageDelay: pageDelay}, nil
}

// htmlEngine serves both capability kinds over plain HTTP pages.
type htmlEngine struct {
	cfg       types.EngineConfig
	fetcher   *fetch.Fetcher
	pageDelay time.Duration
}

func (e *htmlEngine) ID() string             { return e.cfg.ID }
func (e *htmlEngine) Kind() types.EngineKind { return e.cfg.Kind }

func (e *htmlEngine) Search(ctx context.Context, keyword string, maxPages int, emit func([]types.RawResult) error) error {
	if strings.TrimSpace(keyword) == "" {
		return fmt.Errorf("engine %s: keyword is empty", e.cfg.ID)
	}
	if maxPages < 1 {
		return fmt.Errorf("engine %s: maxPages %d < 1", e.cfg.ID, maxPages)
	}

	for page := 1; page <= maxPages; page++ {
		if page > 1 && e.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.pageDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		pageURL := fetch.ExpandTemplate(e.cfg.EndpointTemplate, keyword, page)
		body, err := e.fetcher.Page(ctx, e.cfg.ID, pageURL)
		if err != nil {
			return err
		}

		var items []types.RawResult
		if e.cfg.Kind == types.EngineExtraction {
			items = []types.RawResult{{EngineID: e.cfg.ID, PageIndex: page, Markup: body}}
		} else {
			items, err = parseRows(e.cfg, page, pageURL, body)
			if err != nil {
				return err
			}
			// An empty page means the engine ran out of results.
			if len(items) == 0 {
				return nil
			}
		}

		if err := emit(items); err != nil {
			return err
		}
	}
	return nil
}

// IsMagnet reports whether s looks like a magnet URI.
func IsMagnet(s string) bool {
	return strings.HasPrefix(s, "magnet:?")
}
