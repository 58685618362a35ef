package aggregate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pdiddy/magnet-engine/internal/analyze"
	"github.com/pdiddy/magnet-engine/internal/extract"
	"github.com/pdiddy/magnet-engine/internal/logging"
	"github.com/pdiddy/magnet-engine/internal/provider"
	"github.com/pdiddy/magnet-engine/pkg/types"
)

// --- fakes ---

type fakeSource struct {
	engines  []types.EngineConfig
	keywords []string
	err      error
}

func (s *fakeSource) EnabledEngines(context.Context) ([]types.EngineConfig, error) {
	return s.engines, s.err
}

func (s *fakeSource) PriorityKeywords(context.Context) ([]string, error) {
	return s.keywords, nil
}

// fakeProvider emits its configured pages, then optionally blocks until
// cancellation, then returns err.
type fakeProvider struct {
	id    string
	kind  types.EngineKind
	pages [][]types.RawResult
	err   error
	block bool
}

func (p *fakeProvider) ID() string             { return p.id }
func (p *fakeProvider) Kind() types.EngineKind { return p.kind }

func (p *fakeProvider) Search(ctx context.Context, _ string, _ int, emit func([]types.RawResult) error) error {
	for _, page := range p.pages {
		if err := emit(page); err != nil {
			return err
		}
	}
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.err
}

// recordingSink records the interleaved event sequence.
type recordingSink struct {
	mu       sync.Mutex
	events   []string
	results  []*types.SearchResult
	statuses []types.SessionStatus
	failures map[string]error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{failures: make(map[string]error)}
}

func (s *recordingSink) OnResult(r *types.SearchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "result:"+r.ID)
	s.results = append(s.results, r)
}

func (s *recordingSink) OnProviderFailed(engineID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "failed:"+engineID)
	s.failures[engineID] = err
}

func (s *recordingSink) OnStatusChanged(status types.SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "status:"+string(status))
	s.statuses = append(s.statuses, status)
}

// markupExtractBackend turns markup "name" into one result with magnet
// "magnet:?xt=urn:btih:name"; markup containing "invalid" yields a
// record without a magnet link.
type markupExtractBackend struct{}

func (markupExtractBackend) Extract(_ context.Context, markup string) (extract.AIResponse, error) {
	if strings.Contains(markup, "invalid") {
		return extract.AIResponse{Items: []extract.AIResponseItem{{Title: markup}}}, nil
	}
	return extract.AIResponse{Items: []extract.AIResponseItem{
		{Title: markup, MagnetLink: "magnet:?xt=urn:btih:" + markup},
	}}, nil
}

// echoAnalyzeBackend returns a fixed valid record per item.
type echoAnalyzeBackend struct{}

func (echoAnalyzeBackend) Analyze(_ context.Context, batch []analyze.Item) ([]analyze.Record, error) {
	records := make([]analyze.Record, len(batch))
	for i, it := range batch {
		records[i] = analyze.Record{ID: it.ID, CleanedTitle: it.Title, Tags: []string{"video"}, PurityScore: 75}
	}
	return records, nil
}

// --- helpers ---

func structuredRaw(engine, name, magnetSuffix string) types.RawResult {
	return types.RawResult{
		EngineID:  engine,
		PageIndex: 1,
		Fields: &types.RawFields{
			Title:      name,
			MagnetLink: "magnet:?xt=urn:btih:" + magnetSuffix,
			SizeBytes:  1024,
			SourceURL:  "https://" + engine + "/view/" + magnetSuffix,
		},
	}
}

func engineCfg(id string, kind types.EngineKind) types.EngineConfig {
	return types.EngineConfig{
		ID: id, Name: id, Kind: kind,
		EndpointTemplate: "https://" + id + "/s?q={keyword}&p={page}",
		Enabled:          true,
		Selectors:        types.Selectors{Row: "tr", Magnet: "a"},
	}
}

// newTestOrchestrator wires fakes: providersByID routes the factory.
func newTestOrchestrator(source *fakeSource, sink Sink, providersByID map[string]provider.Provider) *Orchestrator {
	log := logging.Discard()
	o := &Orchestrator{
		source:    source,
		extractor: extract.NewStage(markupExtractBackend{}, types.ExtractionConfig{}, log),
		analyzer:  analyze.NewStage(echoAnalyzeBackend{}, types.AnalysisConfig{}, log),
		sink:      sink,
		cfg:       types.SearchConfig{MaxPages: 1},
		log:       log,
	}
	o.newProvider = func(ec types.EngineConfig) (provider.Provider, error) {
		p, ok := providersByID[ec.ID]
		if !ok {
			return nil, fmt.Errorf("no provider for %s", ec.ID)
		}
		return p, nil
	}
	return o
}

func runSearch(t *testing.T, o *Orchestrator, keyword string) *Session {
	t.Helper()
	session, err := o.StartSearch(context.Background(), keyword, 1)
	if err != nil {
		t.Fatalf("StartSearch() error = %v", err)
	}
	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.Wait(waitCtx); err != nil {
		t.Fatalf("session did not terminate: %v", err)
	}
	return session
}

// --- tests ---

// Two engines: A (structured) returns 3 items, one sharing a magnet
// link with one of B's (extraction) 2 raw items. Exactly 4 unique
// results survive and the session completes cleanly.
func TestSearchMergesAndDeduplicates(t *testing.T) {
	source := &fakeSource{engines: []types.EngineConfig{
		engineCfg("a", types.EngineStructured),
		engineCfg("b", types.EngineExtraction),
	}}
	providers := map[string]provider.Provider{
		"a": &fakeProvider{id: "a", kind: types.EngineStructured, pages: [][]types.RawResult{{
			structuredRaw("a", "One", "one"),
			structuredRaw("a", "Two", "two"),
			structuredRaw("a", "Shared", "shared"),
		}}},
		"b": &fakeProvider{id: "b", kind: types.EngineExtraction, pages: [][]types.RawResult{{
			{EngineID: "b", PageIndex: 1, Markup: "shared"},
			{EngineID: "b", PageIndex: 1, Markup: "four"},
		}}},
	}

	sink := newRecordingSink()
	session := runSearch(t, newTestOrchestrator(source, sink, providers), "foo")

	if got := session.Status(); got != types.StatusCompleted {
		t.Errorf("status = %s, want %s", got, types.StatusCompleted)
	}
	results := session.Results()
	if len(results) != 4 {
		t.Fatalf("len(results) = %d, want 4", len(results))
	}

	seen := make(map[string]bool)
	for _, r := range results {
		if seen[r.MagnetLink] {
			t.Errorf("duplicate magnet link %s", r.MagnetLink)
		}
		seen[r.MagnetLink] = true
	}
	if len(sink.results) != 4 {
		t.Errorf("sink received %d results, want 4", len(sink.results))
	}
	if got := session.DuplicatesSuppressed(); got != 1 {
		t.Errorf("DuplicatesSuppressed() = %d, want 1", got)
	}
}

func TestPartialFailure(t *testing.T) {
	unreachable := func(id string) error {
		return &types.ProviderError{EngineID: id, Kind: types.ProviderUnreachable, Err: fmt.Errorf("no route")}
	}
	source := &fakeSource{engines: []types.EngineConfig{
		engineCfg("a", types.EngineStructured),
		engineCfg("b", types.EngineStructured),
		engineCfg("c", types.EngineStructured),
	}}
	providers := map[string]provider.Provider{
		"a": &fakeProvider{id: "a", err: unreachable("a")},
		"b": &fakeProvider{id: "b", err: unreachable("b")},
		"c": &fakeProvider{id: "c", pages: [][]types.RawResult{{structuredRaw("c", "Only", "only")}}},
	}

	sink := newRecordingSink()
	session := runSearch(t, newTestOrchestrator(source, sink, providers), "foo")

	if got := session.Status(); got != types.StatusPartiallyFailed {
		t.Errorf("status = %s, want %s", got, types.StatusPartiallyFailed)
	}
	if len(session.Results()) != 1 {
		t.Errorf("len(results) = %d, want 1 (survivor's result kept)", len(session.Results()))
	}
	if len(sink.failures) != 2 {
		t.Fatalf("reported failures = %d, want 2", len(sink.failures))
	}
	for _, id := range []string{"a", "b"} {
		if _, ok := sink.failures[id]; !ok {
			t.Errorf("failure for engine %s not reported", id)
		}
	}
}

func TestEmptyOutcomeIsCompleted(t *testing.T) {
	source := &fakeSource{engines: []types.EngineConfig{engineCfg("a", types.EngineStructured)}}
	providers := map[string]provider.Provider{"a": &fakeProvider{id: "a"}}

	session := runSearch(t, newTestOrchestrator(source, newRecordingSink(), providers), "nothing")

	if got := session.Status(); got != types.StatusCompleted {
		t.Errorf("status = %s, want %s (zero results is a valid outcome)", got, types.StatusCompleted)
	}
	if len(session.Results()) != 0 {
		t.Errorf("len(results) = %d, want 0", len(session.Results()))
	}
}

func TestExtractionDropKeepsSiblings(t *testing.T) {
	source := &fakeSource{engines: []types.EngineConfig{engineCfg("b", types.EngineExtraction)}}
	providers := map[string]provider.Provider{
		"b": &fakeProvider{id: "b", kind: types.EngineExtraction, pages: [][]types.RawResult{{
			{EngineID: "b", PageIndex: 1, Markup: "good-one"},
			{EngineID: "b", PageIndex: 1, Markup: "invalid-item"},
			{EngineID: "b", PageIndex: 1, Markup: "good-two"},
		}}},
	}

	session := runSearch(t, newTestOrchestrator(source, newRecordingSink(), providers), "foo")

	if got := session.Status(); got != types.StatusCompleted {
		t.Errorf("status = %s, want %s", got, types.StatusCompleted)
	}
	if len(session.Results()) != 2 {
		t.Errorf("len(results) = %d, want 2 siblings of the dropped item", len(session.Results()))
	}
	if session.DroppedItems() != 1 {
		t.Errorf("DroppedItems() = %d, want 1", session.DroppedItems())
	}
}

func TestCancelEmitsNoResultAfterStatus(t *testing.T) {
	source := &fakeSource{engines: []types.EngineConfig{engineCfg("a", types.EngineStructured)}}
	providers := map[string]provider.Provider{
		"a": &fakeProvider{
			id:    "a",
			pages: [][]types.RawResult{{structuredRaw("a", "One", "one")}},
			block: true,
		},
	}

	sink := newRecordingSink()
	o := newTestOrchestrator(source, sink, providers)
	session, err := o.StartSearch(context.Background(), "foo", 1)
	if err != nil {
		t.Fatalf("StartSearch() error = %v", err)
	}

	// Wait for the first result to stream out, then cancel.
	deadline := time.Now().Add(2 * time.Second)
	for {
		sink.mu.Lock()
		n := len(sink.results)
		sink.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no result arrived before cancel")
		}
		time.Sleep(time.Millisecond)
	}
	o.Cancel()

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.Wait(waitCtx); err != nil {
		t.Fatalf("session did not terminate after cancel: %v", err)
	}
	if got := session.Status(); got != types.StatusCancelled {
		t.Errorf("status = %s, want %s", got, types.StatusCancelled)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	cancelled := -1
	for i, ev := range sink.events {
		if ev == "status:"+string(types.StatusCancelled) {
			cancelled = i
		}
	}
	if cancelled < 0 {
		t.Fatal("no Cancelled status event")
	}
	for _, ev := range sink.events[cancelled+1:] {
		if strings.HasPrefix(ev, "result:") {
			t.Errorf("result event %q after Cancelled status", ev)
		}
	}
}

func TestStartSearchCancelsPreviousSession(t *testing.T) {
	source := &fakeSource{engines: []types.EngineConfig{engineCfg("a", types.EngineStructured)}}
	providers := map[string]provider.Provider{
		"a": &fakeProvider{id: "a", block: true},
	}

	o := newTestOrchestrator(source, newRecordingSink(), providers)
	first, err := o.StartSearch(context.Background(), "foo", 1)
	if err != nil {
		t.Fatalf("StartSearch() error = %v", err)
	}

	// The second search must implicitly cancel and drain the first.
	providers["a"] = &fakeProvider{id: "a", pages: [][]types.RawResult{{structuredRaw("a", "One", "one")}}}
	second := runSearch(t, o, "bar")

	if got := first.Status(); got != types.StatusCancelled {
		t.Errorf("first session status = %s, want %s", got, types.StatusCancelled)
	}
	if got := second.Status(); got != types.StatusCompleted {
		t.Errorf("second session status = %s, want %s", got, types.StatusCompleted)
	}
	if o.Session() != second {
		t.Error("orchestrator does not own the second session")
	}
}

func TestStartSearchValidation(t *testing.T) {
	o := newTestOrchestrator(&fakeSource{}, newRecordingSink(), nil)
	if _, err := o.StartSearch(context.Background(), "   ", 1); err == nil {
		t.Error("empty keyword accepted")
	}
	if _, err := o.StartSearch(context.Background(), "foo", 1); err == nil {
		t.Error("search with no enabled engines accepted")
	}

	o = newTestOrchestrator(&fakeSource{err: &types.PersistenceError{
		Op: "engines", Kind: types.PersistenceIoFailure, Err: fmt.Errorf("disk gone"),
	}}, newRecordingSink(), nil)
	if _, err := o.StartSearch(context.Background(), "foo", 1); err == nil {
		t.Error("persistence failure not surfaced")
	}
}

func TestPriorityKeywordFlagging(t *testing.T) {
	source := &fakeSource{
		engines:  []types.EngineConfig{engineCfg("a", types.EngineStructured)},
		keywords: []string{"bunny"},
	}
	providers := map[string]provider.Provider{
		"a": &fakeProvider{id: "a", pages: [][]types.RawResult{{
			structuredRaw("a", "Big Buck BUNNY", "one"),
			structuredRaw("a", "Sintel", "two"),
		}}},
	}

	session := runSearch(t, newTestOrchestrator(source, newRecordingSink(), providers), "movie")

	results := session.Results()
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	for _, r := range results {
		want := strings.Contains(strings.ToLower(r.Title), "bunny")
		if r.Priority != want {
			t.Errorf("result %q priority = %v, want %v", r.Title, r.Priority, want)
		}
	}
}

func TestAnalyzeCurrentSession(t *testing.T) {
	source := &fakeSource{engines: []types.EngineConfig{engineCfg("a", types.EngineStructured)}}
	providers := map[string]provider.Provider{
		"a": &fakeProvider{id: "a", pages: [][]types.RawResult{{
			structuredRaw("a", "One", "one"),
			structuredRaw("a", "Two", "two"),
		}}},
	}

	o := newTestOrchestrator(source, newRecordingSink(), providers)
	session := runSearch(t, o, "foo")

	summary, err := o.Analyze(context.Background(), nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if summary.Analyzed != 2 || summary.HasFailures() {
		t.Fatalf("summary = %+v", summary)
	}
	for _, r := range session.Results() {
		if r.Analysis == nil {
			t.Errorf("result %s has no analysis", r.ID)
		}
	}

	// Re-running over the same ids yields the same analysis.
	ids := []string{session.Results()[0].ID}
	before := *session.Results()[0].Analysis
	if _, err := o.Analyze(context.Background(), ids); err != nil {
		t.Fatalf("Analyze() re-run error = %v", err)
	}
	after := *session.Results()[0].Analysis
	if before.CleanedTitle != after.CleanedTitle || before.PurityScore != after.PurityScore {
		t.Errorf("re-run changed analysis: %+v vs %+v", before, after)
	}
}

func TestAnalyzeWithoutSession(t *testing.T) {
	o := newTestOrchestrator(&fakeSource{}, newRecordingSink(), nil)
	if _, err := o.Analyze(context.Background(), nil); err == nil {
		t.Error("Analyze without a session accepted")
	}
}
