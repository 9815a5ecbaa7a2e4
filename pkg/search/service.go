package search

import (
	"context"
	"time"

	"github.com/endomorphosis/websearch/pkg/cachekey"
	"github.com/endomorphosis/websearch/pkg/log"
)

// Service orchestrates the two-tier cache plus the live provider call.
//
// Per request: derive key, check local cache, check distributed cache
// (backfilling the local tier on a hit), live fetch, populate both tiers,
// return. Concurrent Search calls are safe; cross-process safety for the
// local tier is handled by its file lock.
type Service struct {
	provider Provider
	local    LocalCache
	dist     DistCache
	archive  Archiver
	logger   *log.Logger
}

// Options configures the optional collaborators of a Service. Nil fields
// disable the corresponding tier.
type Options struct {
	Local   LocalCache
	Dist    DistCache
	Archive Archiver
}

// NewService creates a gateway for the given provider. Cache tiers and the
// archive are optional; the gateway works (slower) with none of them.
func NewService(provider Provider, opts Options) *Service {
	return &Service{
		provider: provider,
		local:    opts.Local,
		dist:     opts.Dist,
		archive:  opts.Archive,
		logger:   log.ForService("gateway"),
	}
}

// Provider returns the live provider this gateway fronts.
func (s *Service) Provider() Provider {
	return s.provider
}

// Search runs one request through the cache tiers and, on a full miss, the
// live provider. Cache-tier failures degrade to misses; only live-fetch
// failures (and the missing-credential precondition) are returned.
func (s *Service) Search(ctx context.Context, q Query) (*Response, error) {
	q = s.clamp(q)
	key := cachekey.Derive(q.Text, q.Count, q.Offset, q.Country, q.Safesearch)

	if s.local != nil {
		if entry, ok := s.local.Get(key); ok {
			s.logger.Debugf("local cache hit for %s", cachekey.Truncate(key))
			return s.respond(q, entry, SourceLocalCache), nil
		}
	}

	if s.dist != nil && s.dist.Available() {
		if entry, ok := s.dist.Retrieve(ctx, key); ok {
			s.logger.Debugf("distributed cache hit for %s", cachekey.Truncate(key))
			if s.local != nil {
				if err := s.local.Put(key, entry); err != nil {
					s.logger.Debugf("backfilling local cache: %v", err)
				}
			}
			return s.respond(q, entry, SourceIPFSCache), nil
		}
	}

	items, extra, err := s.provider.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	entry := Entry{
		TS:    time.Now().Unix(),
		Items: items,
		Meta:  extra,
	}

	if s.local != nil {
		if err := s.local.Put(key, entry); err != nil {
			s.logger.Debugf("populating local cache: %v", err)
		}
	}
	if s.dist != nil && s.dist.Available() {
		if _, err := s.dist.Store(ctx, key, entry); err != nil {
			s.logger.Debugf("populating distributed cache: %v", err)
		}
	}
	if s.archive != nil {
		if err := s.archive.Record(ctx, s.provider.Name(), q, items); err != nil {
			s.logger.Debugf("archiving results: %v", err)
		}
	}

	resp := s.respond(q, entry, SourceLive)
	resp.Meta.Cached = false
	resp.Meta.CacheAgeSeconds = nil
	return resp, nil
}

// clamp silently normalizes out-of-range parameters into the provider's
// valid ranges. Clamping, not rejection, is the policy.
func (s *Service) clamp(q Query) Query {
	maxCount, maxOffset := s.provider.Limits()
	if q.Count <= 0 {
		q.Count = DefaultCount
	}
	if q.Count > maxCount {
		q.Count = maxCount
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Offset > maxOffset {
		q.Offset = maxOffset
	}
	q.Country = cachekey.NormalizeCountry(q.Country)
	q.Safesearch = cachekey.NormalizeSafesearch(q.Safesearch)
	return q
}

func (s *Service) respond(q Query, entry Entry, source string) *Response {
	maxCount, _ := s.provider.Limits()
	meta := Meta{
		Count:    len(entry.Items),
		Offset:   q.Offset,
		MaxCount: maxCount,
		Cached:   source != SourceLive,
		Source:   source,
		Provider: s.provider.Name(),
	}
	if meta.Cached {
		age := int64(entry.Age(time.Now()).Seconds())
		if age < 0 {
			age = 0
		}
		meta.CacheAgeSeconds = &age
	}
	if entry.Meta != nil {
		if total, ok := entryTotal(entry.Meta); ok {
			meta.Total = total
		}
	}
	return &Response{Items: entry.Items, Meta: meta}
}

// entryTotal digs an optional total-result count out of provider metadata.
// JSON round-trips turn ints into float64, so both arrive here.
func entryTotal(meta map[string]any) (int64, bool) {
	v, ok := meta["total"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
