// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package analyze enriches structured search results with AI content
// analysis: cleaned title, topic tags, and a purity score.
// Implements: prd004-analysis (R1-R4);
//
//	docs/ARCHITECTURE § Analysis.
package analyze

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/magnet-engine/pkg/types"
)

// AIBackend abstracts the analysis model call so tests can supply a
// mock. One call handles one batch of items.
type AIBackend interface {
	Analyze(ctx context.Context, batch []Item) ([]Record, error)
}

// Item is one result as presented to the analysis model.
type Item struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Size      string `json:"size,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
}

// Record is one analysis result as returned by the model.
type Record struct {
	ID           string   `json:"id"`
	CleanedTitle string   `json:"cleaned_title"`
	Tags         []string `json:"tags"`
	PurityScore  int      `json:"purity_score"`
}

// Summary holds counts from one analysis run.
type Summary struct {
	Analyzed      int
	Dropped       int
	FailedBatches int

	// FailedIDs lists every result in a failed batch so the consumer
	// can re-run exactly that subset. The stage itself never retries
	// within one invocation (R3.3).
	FailedIDs []string
}

// HasFailures reports whether any batch failed.
func (s Summary) HasFailures() bool { return s.FailedBatches > 0 }

// Reporter receives per-batch outcomes as they complete. Either method
// may be called from multiple goroutines.
type Reporter interface {
	BatchAnalyzed(ids []string)
	BatchFailed(ids []string, err error)
}

// Stage runs batched AI analysis with bounded parallelism.
type Stage struct {
	backend AIBackend
	cfg     types.AnalysisConfig
	log     *logrus.Logger
}

// NewStage builds an analysis stage. Zero config fields fall back to
// defaults: batch size 10, 2 concurrent batches, 60 s call timeout.
func NewStage(backend AIBackend, cfg types.AnalysisConfig, log *logrus.Logger) *Stage {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxConcurrentBatches <= 0 {
		cfg.MaxConcurrentBatches = 2
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	return &Stage{backend: backend, cfg: cfg, log: log}
}

// Run analyzes results in batches, attaching an AnalysisResult to each
// in place. A whole-batch failure marks every item of that batch failed
// and leaves sibling batches unaffected (R3.1, R3.2). Re-running over
// already-analyzed results simply overwrites their analysis (R4.1).
// rep may be nil.
func (s *Stage) Run(ctx context.Context, results []*types.SearchResult, rep Reporter) Summary {
	byID := make(map[string]*types.SearchResult, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}

	var (
		mu      sync.Mutex
		summary Summary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentBatches)

	for _, batch := range splitBatches(results, s.cfg.BatchSize) {
		batch := batch
		g.Go(func() error {
			s.runBatch(gctx, batch, byID, rep, &mu, &summary)
			return nil
		})
	}
	g.Wait()

	return summary
}

func (s *Stage) runBatch(ctx context.Context, batch []*types.SearchResult, byID map[string]*types.SearchResult, rep Reporter, mu *sync.Mutex, summary *Summary) {
	ids := make([]string, len(batch))
	items := make([]Item, len(batch))
	for i, r := range batch {
		ids[i] = r.ID
		items[i] = Item{
			ID:        r.ID,
			Title:     r.Title,
			Size:      humanSize(r.SizeBytes),
			SourceURL: r.SourceURL,
		}
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	records, err := s.backend.Analyze(cctx, items)
	if err != nil {
		s.log.WithField("batch_size", len(batch)).Warnf("analysis batch failed: %v", err)
		mu.Lock()
		summary.FailedBatches++
		summary.FailedIDs = append(summary.FailedIDs, ids...)
		mu.Unlock()
		if rep != nil {
			rep.BatchFailed(ids, err)
		}
		return
	}

	var okIDs []string
	var analyzed, dropped int
	for _, rec := range records {
		target, known := byID[rec.ID]
		// A record that cannot be mapped back, or whose score is out
		// of range, is discarded for that item only (R3.4).
		if !known || rec.PurityScore < 0 || rec.PurityScore > 100 {
			dropped++
			continue
		}
		target.Analysis = &types.AnalysisResult{
			CleanedTitle: strings.TrimSpace(rec.CleanedTitle),
			Tags:         dedupTags(rec.Tags),
			PurityScore:  rec.PurityScore,
		}
		analyzed++
		okIDs = append(okIDs, rec.ID)
	}

	mu.Lock()
	summary.Analyzed += analyzed
	summary.Dropped += dropped
	mu.Unlock()
	if rep != nil && len(okIDs) > 0 {
		rep.BatchAnalyzed(okIDs)
	}
}

// splitBatches slices results into runs of at most size, preserving order.
func splitBatches(results []*types.SearchResult, size int) [][]*types.SearchResult {
	var batches [][]*types.SearchResult
	for len(results) > 0 {
		n := min(size, len(results))
		batches = append(batches, results[:n])
		results = results[n:]
	}
	return batches
}

// dedupTags lowercases tags and removes duplicates, preserving first
// occurrence order. Analysis must never duplicate tags (R4.2).
func dedupTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// humanSize renders a byte count the way engines display it. Unknown
// sizes (0) render as "".
func humanSize(b int64) string {
	if b <= 0 {
		return ""
	}
	units := []string{"B", "KiB", "MiB", "GiB", "TiB"}
	v := float64(b)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", b)
	}
	return fmt.Sprintf("%.1f %s", v, units[i])
}
