// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/magnet-engine/internal/analyze"
	"github.com/pdiddy/magnet-engine/internal/extract"
	"github.com/pdiddy/magnet-engine/internal/fetch"
	"github.com/pdiddy/magnet-engine/internal/provider"
	"github.com/pdiddy/magnet-engine/pkg/types"
)

// Sink receives session events as they happen. OnResult fires once per
// accepted, deduplicated result, in first-arrival order across engines.
// No OnResult call follows an OnStatusChanged(Cancelled) call.
type Sink interface {
	OnResult(r *types.SearchResult)
	OnProviderFailed(engineID string, err error)
	OnStatusChanged(status types.SessionStatus)
}

// ConfigSource is the durable-state surface the orchestrator consumes
// at search start.
type ConfigSource interface {
	EnabledEngines(ctx context.Context) ([]types.EngineConfig, error)
	PriorityKeywords(ctx context.Context) ([]string, error)
}

// Orchestrator fans searches out to all enabled engines and owns the
// single running session. At most one session is Running at a time:
// starting a new search implicitly cancels the previous one (R1.4).
type Orchestrator struct {
	source    ConfigSource
	extractor *extract.Stage
	analyzer  *analyze.Stage
	sink      Sink
	cfg       types.SearchConfig
	log       *logrus.Logger

	// newProvider builds a provider from a snapshot entry. Tests
	// substitute this to inject fakes.
	newProvider func(types.EngineConfig) (provider.Provider, error)

	mu      sync.Mutex
	current *Session
}

// New builds an orchestrator wired to real HTTP providers.
func New(source ConfigSource, extractor *extract.Stage, analyzer *analyze.Stage, sink Sink, cfg types.SearchConfig, log *logrus.Logger) *Orchestrator {
	fetcher := fetch.New(cfg.HTTPConfig)
	return &Orchestrator{
		source:    source,
		extractor: extractor,
		analyzer:  analyzer,
		sink:      sink,
		cfg:       cfg,
		log:       log,
		newProvider: func(ec types.EngineConfig) (provider.Provider, error) {
			return provider.New(ec, fetcher, cfg.PageDelay)
		},
	}
}

// StartSearch snapshots the enabled engines, cancels any still-running
// session, and launches one task per engine. It returns immediately;
// results stream through the sink and the returned session's Done
// channel closes on termination.
func (o *Orchestrator) StartSearch(ctx context.Context, keyword string, maxPages int) (*Session, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("keyword is empty")
	}
	if maxPages < 1 {
		maxPages = o.cfg.MaxPages
	}
	if maxPages < 1 {
		maxPages = 1
	}

	// Implicit cancel-on-restart: wait for the previous session to
	// drain so its late results cannot interleave with the new one.
	o.mu.Lock()
	prev := o.current
	o.mu.Unlock()
	if prev != nil {
		prev.Cancel()
		<-prev.Done()
	}

	engines, err := o.source.EnabledEngines(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading engine list: %w", err)
	}
	if len(engines) == 0 {
		return nil, fmt.Errorf("no engines enabled")
	}
	priorities, err := o.source.PriorityKeywords(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading priority keywords: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)
	session := newSession(keyword, maxPages, engines, cancel)
	o.mu.Lock()
	o.current = session
	o.mu.Unlock()

	o.sink.OnStatusChanged(types.StatusRunning)
	o.log.WithFields(logrus.Fields{
		"session": session.ID,
		"keyword": keyword,
		"engines": len(engines),
	}).Info("search started")

	resultsCh := make(chan *types.SearchResult, 64)
	var wg sync.WaitGroup
	for _, ec := range engines {
		p, err := o.newProvider(ec)
		if err != nil {
			session.addFailure(ec.ID, err)
			o.sink.OnProviderFailed(ec.ID, err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.runProvider(sctx, session, p, resultsCh)
		}()
	}
	go func() {
		wg.Wait()
		close(resultsCh)
	}()
	go o.collect(sctx, session, resultsCh, priorities)

	return session, nil
}

// Cancel stops the current session, if one is running.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cur := o.current
	o.mu.Unlock()
	if cur != nil {
		cur.Cancel()
	}
}

// Session returns the current session, or nil before the first search.
func (o *Orchestrator) Session() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Analyze runs the analysis stage over the current session's results.
// An empty id list means all results. Unknown ids are skipped. The
// failed subset, if any, is remembered on the session for an explicit
// re-run; the stage never retries on its own.
func (o *Orchestrator) Analyze(ctx context.Context, ids []string) (analyze.Summary, error) {
	o.mu.Lock()
	cur := o.current
	o.mu.Unlock()
	if cur == nil {
		return analyze.Summary{}, fmt.Errorf("no search session")
	}

	var results []*types.SearchResult
	if len(ids) == 0 {
		results = cur.Results()
	} else {
		results = cur.ResultsByID(ids)
	}
	if len(results) == 0 {
		return analyze.Summary{}, nil
	}

	rep, _ := o.sink.(analyze.Reporter)
	summary := o.analyzer.Run(ctx, results, rep)
	cur.setFailedAnalysis(summary.FailedIDs)
	return summary, nil
}

// runProvider drives one engine task: pull pages, route extraction
// items through the AI stage, and hand results to the collector.
func (o *Orchestrator) runProvider(ctx context.Context, session *Session, p provider.Provider, out chan<- *types.SearchResult) {
	emit := func(page []types.RawResult) error {
		var results []types.SearchResult
		if p.Kind() == types.EngineExtraction {
			// The extraction sub-pool is bounded per engine so one
			// engine cannot monopolize the AI rate budget (R3.2).
			var dropped int
			results, dropped = o.extractor.ExtractPage(ctx, page)
			session.addDropped(dropped)
		} else {
			results = fromFields(page)
		}
		for i := range results {
			select {
			case out <- &results[i]:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}

	err := p.Search(ctx, session.Keyword, session.MaxPages, emit)
	if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return
	}
	// Isolated failure: this engine's contribution is truncated,
	// siblings keep running.
	session.addFailure(p.ID(), err)
	o.sink.OnProviderFailed(p.ID(), err)
	o.log.WithField("engine", p.ID()).Warnf("engine failed: %v", err)
}

// collect is the single writer into session state. It dedups, marks
// priority matches, and emits accepted results progressively. It also
// decides the terminal status once every provider task has finished.
func (o *Orchestrator) collect(ctx context.Context, session *Session, in <-chan *types.SearchResult, priorities []string) {
	for r := range in {
		if ctx.Err() != nil {
			continue // drain without emitting after cancellation
		}
		r.Priority = matchesPriority(r.Title, priorities)
		if session.add(r) {
			o.sink.OnResult(r)
		}
	}

	var final types.SessionStatus
	switch {
	case ctx.Err() != nil:
		final = types.StatusCancelled
	case session.failureCount() > 0:
		final = types.StatusPartiallyFailed
	default:
		final = types.StatusCompleted
	}
	session.finish(final)
	o.sink.OnStatusChanged(final)
	o.log.WithFields(logrus.Fields{
		"session": session.ID,
		"status":  final,
		"results": len(session.Results()),
	}).Info("search finished")
}

// fromFields converts a structured engine's pre-parsed items. Items
// without a magnet link carry nothing identifiable and are skipped.
func fromFields(page []types.RawResult) []types.SearchResult {
	now := time.Now().UTC()
	var out []types.SearchResult
	for _, raw := range page {
		f := raw.Fields
		if f == nil || f.MagnetLink == "" {
			continue
		}
		out = append(out, types.SearchResult{
			ID:          types.ResultID(f.MagnetLink),
			Title:       f.Title,
			MagnetLink:  f.MagnetLink,
			SizeBytes:   f.SizeBytes,
			SourceURL:   f.SourceURL,
			EngineID:    raw.EngineID,
			ExtractedAt: now,
		})
	}
	return out
}

// matchesPriority reports whether the title contains any stored
// priority keyword, case-insensitively.
func matchesPriority(title string, priorities []string) bool {
	if len(priorities) == 0 {
		return false
	}
	lower := strings.ToLower(title)
	for _, kw := range priorities {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
