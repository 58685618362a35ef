// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package aggregate coordinates one search session: concurrent
// providers, magnet-link dedup, progressive result delivery, and
// per-engine failure isolation.
// Implements: prd002-aggregation (R1-R6);
//
//	docs/ARCHITECTURE § Orchestrator.
package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/magnet-engine/pkg/types"
)

// ProviderFailure records one engine's failure within a session.
type ProviderFailure struct {
	EngineID string
	Err      error
}

// Session owns every result of one keyword search. It is created by
// the orchestrator and torn down when a new search starts or it is
// cancelled. Results grow monotonically while Running; an existing
// magnet link is never overwritten (first writer wins).
type Session struct {
	ID        string
	Keyword   string
	MaxPages  int
	StartedAt time.Time

	// Engines is the enabled-engine snapshot taken at search start.
	Engines []types.EngineConfig

	cancel context.CancelFunc
	done   chan struct{}

	mu             sync.Mutex
	status         types.SessionStatus
	results        map[string]*types.SearchResult // magnet link → result
	byID           map[string]*types.SearchResult
	order          []string // magnet links in arrival order
	failures       []ProviderFailure
	dropped        int
	duplicates     int
	failedAnalysis []string
}

func newSession(keyword string, maxPages int, engines []types.EngineConfig, cancel context.CancelFunc) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Keyword:   keyword,
		MaxPages:  maxPages,
		StartedAt: time.Now().UTC(),
		Engines:   engines,
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    types.StatusRunning,
		results:   make(map[string]*types.SearchResult),
		byID:      make(map[string]*types.SearchResult),
	}
}

// add inserts r if its magnet link is unseen. This is the single
// synchronized insert-if-absent step all provider tasks funnel
// through; re-insertion of a known link is a no-op.
func (s *Session) add(r *types.SearchResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[r.MagnetLink]; exists {
		s.duplicates++
		return false
	}
	s.results[r.MagnetLink] = r
	s.byID[r.ID] = r
	s.order = append(s.order, r.MagnetLink)
	return true
}

// Results returns the session's results in arrival order.
func (s *Session) Results() []*types.SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.SearchResult, 0, len(s.order))
	for _, link := range s.order {
		out = append(out, s.results[link])
	}
	return out
}

// ResultsByID resolves ids to results, skipping unknown ids.
func (s *Session) ResultsByID(ids []string) []*types.SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.SearchResult
	for _, id := range ids {
		if r, ok := s.byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Status returns the session's lifecycle state.
func (s *Session) Status() types.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Failures lists the engines that failed, with their reasons.
func (s *Session) Failures() []ProviderFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ProviderFailure(nil), s.failures...)
}

// DroppedItems counts raw items the extraction stage discarded.
func (s *Session) DroppedItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// DuplicatesSuppressed counts cross-engine duplicates discarded by the
// insert-if-absent step.
func (s *Session) DuplicatesSuppressed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duplicates
}

// FailedAnalysisIDs lists results whose last analysis batch failed, for
// an explicit consumer-triggered re-run.
func (s *Session) FailedAnalysisIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.failedAnalysis...)
}

// Cancel signals every provider task and in-flight AI call to stop.
// Cooperative: the session reaches Cancelled once all tasks exit.
func (s *Session) Cancel() {
	s.cancel()
}

// Done is closed once the session has reached a terminal status.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session terminates or ctx expires.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) addFailure(engineID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, ProviderFailure{EngineID: engineID, Err: err})
}

func (s *Session) addDropped(n int) {
	if n == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped += n
}

func (s *Session) setFailedAnalysis(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedAnalysis = append([]string(nil), ids...)
}

func (s *Session) failureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.failures)
}

// finish records the terminal status and releases waiters.
func (s *Session) finish(status types.SessionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	close(s.done)
}
