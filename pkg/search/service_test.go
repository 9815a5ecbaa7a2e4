package search

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProvider struct {
	name      string
	fetches   int
	results   []Result
	extra     map[string]any
	err       error
	lastQuery Query
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Limits() (int, int) { return 20, 9 }

func (p *fakeProvider) Fetch(ctx context.Context, q Query) ([]Result, map[string]any, error) {
	p.fetches++
	p.lastQuery = q
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.results, p.extra, nil
}

type memLocal struct {
	entries map[string]Entry
	ttl     time.Duration
	putErr  error
}

func newMemLocal(ttl time.Duration) *memLocal {
	return &memLocal{entries: make(map[string]Entry), ttl: ttl}
}

func (m *memLocal) Get(key string) (Entry, bool) {
	entry, ok := m.entries[key]
	if !ok || !entry.Fresh(time.Now(), m.ttl) {
		return Entry{}, false
	}
	return entry, true
}

func (m *memLocal) Put(key string, entry Entry) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.entries[key] = entry
	return nil
}

type memDist struct {
	available bool
	entries   map[string]Entry
	stores    int
}

func newMemDist(available bool) *memDist {
	return &memDist{available: available, entries: make(map[string]Entry)}
}

func (m *memDist) Available() bool { return m.available }

func (m *memDist) Retrieve(ctx context.Context, key string) (Entry, bool) {
	entry, ok := m.entries[key]
	return entry, ok
}

func (m *memDist) Store(ctx context.Context, key string, entry Entry) (string, error) {
	m.stores++
	m.entries[key] = entry
	return "bafytest", nil
}

func testResults() []Result {
	return []Result{
		{Title: "Go", URL: "https://go.dev", Description: "The Go programming language"},
		{Title: "Go wiki", URL: "https://go.dev/wiki", Description: "Community wiki"},
	}
}

func TestSearchMissThenHit(t *testing.T) {
	provider := &fakeProvider{name: "brave", results: testResults()}
	local := newMemLocal(time.Hour)
	svc := NewService(provider, Options{Local: local})

	q := Query{Text: "golang", Count: 10}

	first, err := svc.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("first search: %v", err)
	}
	if first.Meta.Cached {
		t.Error("first search should not be cached")
	}
	if first.Meta.Source != SourceLive {
		t.Errorf("first search source = %q, want %q", first.Meta.Source, SourceLive)
	}
	if len(first.Items) != 2 {
		t.Fatalf("first search items = %d, want 2", len(first.Items))
	}

	second, err := svc.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if !second.Meta.Cached {
		t.Error("second search should be served from cache")
	}
	if second.Meta.Source != SourceLocalCache {
		t.Errorf("second search source = %q, want %q", second.Meta.Source, SourceLocalCache)
	}
	if second.Meta.CacheAgeSeconds == nil {
		t.Error("cached response missing cache age")
	}
	if provider.fetches != 1 {
		t.Errorf("live fetches = %d, want exactly 1", provider.fetches)
	}
}

func TestSearchDistributedHitBackfillsLocal(t *testing.T) {
	provider := &fakeProvider{name: "brave", results: testResults()}
	local := newMemLocal(time.Hour)
	dist := newMemDist(true)

	// Seed only the distributed tier, as another node would have.
	seeded := NewService(provider, Options{Dist: dist})
	if _, err := seeded.Search(context.Background(), Query{Text: "golang"}); err != nil {
		t.Fatalf("seeding search: %v", err)
	}
	if dist.stores != 1 {
		t.Fatalf("distributed stores = %d, want 1", dist.stores)
	}

	svc := NewService(provider, Options{Local: local, Dist: dist})
	resp, err := svc.Search(context.Background(), Query{Text: "golang"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Meta.Source != SourceIPFSCache {
		t.Errorf("source = %q, want %q", resp.Meta.Source, SourceIPFSCache)
	}
	if provider.fetches != 1 {
		t.Errorf("live fetches = %d, want 1 (distributed tier should have served)", provider.fetches)
	}
	if len(local.entries) != 1 {
		t.Error("distributed hit should backfill the local tier")
	}
}

func TestSearchClampsCountAndOffset(t *testing.T) {
	provider := &fakeProvider{name: "brave", results: testResults()}
	svc := NewService(provider, Options{})

	if _, err := svc.Search(context.Background(), Query{Text: "x", Count: 500, Offset: 99}); err != nil {
		t.Fatalf("search: %v", err)
	}
	if provider.lastQuery.Count != 20 {
		t.Errorf("count = %d, want clamped to 20", provider.lastQuery.Count)
	}
	if provider.lastQuery.Offset != 9 {
		t.Errorf("offset = %d, want clamped to 9", provider.lastQuery.Offset)
	}

	if _, err := svc.Search(context.Background(), Query{Text: "x", Count: -3, Offset: -1}); err != nil {
		t.Fatalf("search: %v", err)
	}
	if provider.lastQuery.Count != DefaultCount {
		t.Errorf("count = %d, want default %d", provider.lastQuery.Count, DefaultCount)
	}
	if provider.lastQuery.Offset != 0 {
		t.Errorf("offset = %d, want 0", provider.lastQuery.Offset)
	}
}

func TestSearchUpstreamErrorPropagates(t *testing.T) {
	upstream := &UpstreamError{Kind: ErrorRateLimit, Provider: "brave", Status: 429, Message: "slow down"}
	provider := &fakeProvider{name: "brave", err: upstream}
	local := newMemLocal(time.Hour)
	svc := NewService(provider, Options{Local: local})

	_, err := svc.Search(context.Background(), Query{Text: "golang"})
	ue, ok := AsUpstream(err)
	if !ok {
		t.Fatalf("expected *UpstreamError, got %v", err)
	}
	if ue.Kind != ErrorRateLimit {
		t.Errorf("kind = %q, want %q", ue.Kind, ErrorRateLimit)
	}
	if len(local.entries) != 0 {
		t.Error("failed fetches must not be cached")
	}
}

func TestSearchMissingCredentialsNotCached(t *testing.T) {
	provider := &fakeProvider{name: "brave", err: ErrMissingAPIKey}
	local := newMemLocal(time.Hour)
	svc := NewService(provider, Options{Local: local})

	_, err := svc.Search(context.Background(), Query{Text: "golang"})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if len(local.entries) != 0 {
		t.Error("credential failures must not be cached")
	}
}

func TestSearchLocalPutFailureIsSwallowed(t *testing.T) {
	provider := &fakeProvider{name: "brave", results: testResults()}
	local := newMemLocal(time.Hour)
	local.putErr = errors.New("disk full")
	svc := NewService(provider, Options{Local: local})

	resp, err := svc.Search(context.Background(), Query{Text: "golang"})
	if err != nil {
		t.Fatalf("cache failure must not fail the request: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Errorf("items = %d, want 2", len(resp.Items))
	}
}

func TestSearchMetaCountIsReturnedItems(t *testing.T) {
	// Two hits despite asking for ten: Count reports what came back.
	provider := &fakeProvider{name: "brave", results: testResults()}
	svc := NewService(provider, Options{})

	resp, err := svc.Search(context.Background(), Query{Text: "golang", Count: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Meta.Count != len(resp.Items) {
		t.Errorf("meta count = %d, want %d (returned items)", resp.Meta.Count, len(resp.Items))
	}
	if resp.Meta.Count != 2 {
		t.Errorf("meta count = %d, want 2", resp.Meta.Count)
	}
}

func TestSearchTotalFromProviderMeta(t *testing.T) {
	provider := &fakeProvider{
		name:    "github",
		results: testResults(),
		extra:   map[string]any{"total": int64(12345)},
	}
	svc := NewService(provider, Options{})

	resp, err := svc.Search(context.Background(), Query{Text: "golang"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Meta.Total != 12345 {
		t.Errorf("total = %d, want 12345", resp.Meta.Total)
	}
}
