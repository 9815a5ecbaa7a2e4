package search

import (
	"context"
	"time"
)

// DefaultCount is used when a query does not specify a result count.
const DefaultCount = 10

// Query is a normalized search request. Count and Offset are clamped to the
// provider's limits before any cache lookup or live call.
type Query struct {
	Text       string `json:"q"`
	Count      int    `json:"count"`
	Offset     int    `json:"offset"`
	Country    string `json:"country,omitempty"`
	Safesearch string `json:"safesearch,omitempty"`
}

// Result is a single search hit. Results are never mutated after creation.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Entry is a cache entry as persisted by both cache tiers: the epoch-second
// creation timestamp, the result items, and optional provider metadata.
// Entries are immutable once written; an update is a full overwrite.
type Entry struct {
	TS    int64          `json:"ts"`
	Items []Result       `json:"items"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// Age returns how long ago the entry was created.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(e.TS, 0))
}

// Fresh reports whether the entry is still within its TTL.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return e.Age(now) <= ttl
}

// Result sources reported in Meta.Source.
const (
	SourceLocalCache = "local-cache"
	SourceIPFSCache  = "ipfs-cache"
	SourceLive       = "live"
)

// Meta describes how a response was produced.
type Meta struct {
	// Count is the number of items actually returned, which can be lower
	// than the requested (clamped) count when the provider has fewer hits.
	Count           int    `json:"count"`
	Offset          int    `json:"offset"`
	MaxCount        int    `json:"max_count"`
	Total           int64  `json:"total,omitempty"`
	Cached          bool   `json:"cached"`
	CacheAgeSeconds *int64 `json:"cache_age_seconds,omitempty"`
	Source          string `json:"source"`
	Provider        string `json:"provider"`
}

// Response is the stable result contract regardless of which tier served
// the answer.
type Response struct {
	Items []Result `json:"items"`
	Meta  Meta     `json:"meta"`
}

// Provider performs the live fetch against an external search API.
type Provider interface {
	// Name identifies the provider ("brave", "github"). Cache files are
	// kept per provider.
	Name() string

	// Limits returns the externally-imposed maximums for count and offset.
	Limits() (maxCount, maxOffset int)

	// Fetch performs the live call. It must validate credentials before
	// any network attempt (returning ErrMissingAPIKey) and map upstream
	// failures to *UpstreamError.
	Fetch(ctx context.Context, q Query) ([]Result, map[string]any, error)
}

// LocalCache is the first tier: a lock-protected key to entry store with
// TTL and capacity bounds. Get reports a miss for expired entries.
type LocalCache interface {
	Get(key string) (Entry, bool)
	Put(key string, entry Entry) error
}

// DistCache is the optional second tier: a content-addressed store shared
// across machines. All operations are best-effort.
type DistCache interface {
	Available() bool
	Retrieve(ctx context.Context, key string) (Entry, bool)
	Store(ctx context.Context, key string, entry Entry) (string, error)
}

// Archiver records live-fetched results for offline history search.
type Archiver interface {
	Record(ctx context.Context, provider string, q Query, items []Result) error
}
