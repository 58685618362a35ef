// Package extract converts raw engine markup into structured search
// results through an AI extraction call per item.
// Implements: prd003-extraction (R1-R4);
//
//	docs/ARCHITECTURE § Extraction.
package extract

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/magnet-engine/pkg/types"
)

// AIBackend abstracts the extraction model call so tests can supply a
// mock. Each call handles the markup of one raw item and returns the
// structured records found in it. Per Strategy pattern (R4.1).
type AIBackend interface {
	Extract(ctx context.Context, markup string) (AIResponse, error)
}

// AIResponse is the structured response from the AI backend for one
// raw item.
type AIResponse struct {
	Items []AIResponseItem `json:"items"`
}

// AIResponseItem is a single record as returned by the AI backend.
type AIResponseItem struct {
	Title      string `json:"title"`
	MagnetLink string `json:"magnet_link"`
	SizeBytes  int64  `json:"size_bytes"`
	SourceURL  string `json:"source_url"`
}

// Stage runs AI extraction over raw items with bounded parallelism.
type Stage struct {
	backend AIBackend
	cfg     types.ExtractionConfig
	log     *logrus.Logger
}

// NewStage builds an extraction stage. Zero config fields fall back to
// defaults: 2 workers, 64 KiB payload ceiling, 60 s call timeout.
func NewStage(backend AIBackend, cfg types.ExtractionConfig, log *logrus.Logger) *Stage {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = 64 << 10
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	return &Stage{backend: backend, cfg: cfg, log: log}
}

// ExtractPage converts one page of raw items into search results.
// Items are processed concurrently up to the configured worker cap but
// returned in input order. An item the model cannot produce a valid
// record for is dropped and logged; it never aborts siblings (R2.3).
// The second return value is the number of dropped items.
func (s *Stage) ExtractPage(ctx context.Context, page []types.RawResult) ([]types.SearchResult, int) {
	out := make([][]types.SearchResult, len(page))
	var dropped int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range page {
		i := i
		g.Go(func() error {
			results, err := s.extractOne(gctx, page[i])
			if err != nil {
				atomic.AddInt64(&dropped, 1)
				s.log.WithFields(logrus.Fields{
					"engine": page[i].EngineID,
					"page":   page[i].PageIndex,
				}).Warnf("extraction dropped item: %v", err)
				return nil
			}
			out[i] = results
			return nil
		})
	}
	g.Wait()

	var flat []types.SearchResult
	for _, rs := range out {
		flat = append(flat, rs...)
	}
	return flat, int(dropped)
}

// extractOne runs one AI extraction call and validates its output.
func (s *Stage) extractOne(ctx context.Context, raw types.RawResult) ([]types.SearchResult, error) {
	markup := strings.TrimSpace(raw.Markup)
	if markup == "" {
		return nil, &types.ExtractionError{
			Kind: types.ExtractionSchemaInvalid,
			Err:  fmt.Errorf("empty payload"),
		}
	}
	// Truncation bounds per-call cost; the ceiling is configuration,
	// not a constant (R3.1).
	if len(markup) > s.cfg.MaxPayloadBytes {
		markup = markup[:s.cfg.MaxPayloadBytes]
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	resp, err := s.backend.Extract(cctx, markup)
	if err != nil {
		return nil, err
	}

	results, invalid := convertItems(resp.Items, raw)
	if len(results) == 0 && invalid > 0 {
		return nil, &types.ExtractionError{
			Kind: types.ExtractionSchemaInvalid,
			Err:  fmt.Errorf("all %d records failed validation", invalid),
		}
	}
	if invalid > 0 {
		s.log.WithField("engine", raw.EngineID).
			Warnf("extraction discarded %d invalid records", invalid)
	}
	return results, nil
}

// convertItems validates AI records and converts them to SearchResults.
// A record missing a magnet link carries nothing usable and is
// discarded; no partial record is ever emitted (R2.2).
func convertItems(items []AIResponseItem, raw types.RawResult) ([]types.SearchResult, int) {
	var results []types.SearchResult
	invalid := 0
	now := time.Now().UTC()

	for _, item := range items {
		if !strings.HasPrefix(item.MagnetLink, "magnet:?") {
			invalid++
			continue
		}
		size := item.SizeBytes
		if size < 0 {
			size = 0
		}
		results = append(results, types.SearchResult{
			ID:          types.ResultID(item.MagnetLink),
			Title:       strings.TrimSpace(item.Title),
			MagnetLink:  item.MagnetLink,
			SizeBytes:   size,
			SourceURL:   item.SourceURL,
			EngineID:    raw.EngineID,
			ExtractedAt: now,
		})
	}
	return results, invalid
}
