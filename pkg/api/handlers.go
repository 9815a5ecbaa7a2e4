package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/endomorphosis/websearch/pkg/filecache"
	"github.com/endomorphosis/websearch/pkg/firehose"
	"github.com/endomorphosis/websearch/pkg/ipfscache"
	"github.com/endomorphosis/websearch/pkg/search"
	"github.com/endomorphosis/websearch/pkg/version"
)

func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	queryText := params.Get("q")
	if queryText == "" {
		s.writeError(w, http.StatusBadRequest, "Missing query parameter", "Query parameter 'q' is required")
		return
	}

	providerName := params.Get("provider")
	if providerName == "" {
		providerName = s.defaultProvider
	}
	svc, ok := s.services[providerName]
	if !ok {
		s.writeError(w, http.StatusNotFound, "Provider not found", fmt.Sprintf("Provider '%s' does not exist", providerName))
		return
	}

	q := search.Query{
		Text:       queryText,
		Count:      intParam(params.Get("count")),
		Offset:     intParam(params.Get("offset")),
		Country:    params.Get("country"),
		Safesearch: params.Get("safesearch"),
	}

	resp, err := svc.Search(r.Context(), q)
	if err != nil {
		s.writeSearchError(w, err)
		return
	}

	s.hub.Broadcast(firehose.SearchEvent{
		ID:        uuid.NewString(),
		Provider:  resp.Meta.Provider,
		Query:     queryText,
		Source:    resp.Meta.Source,
		Count:     resp.Meta.Count,
		Cached:    resp.Meta.Cached,
		Timestamp: time.Now().UTC(),
	})

	s.writeJSON(w, http.StatusOK, resp)
}

// writeSearchError maps gateway errors onto HTTP statuses: missing
// credentials is a server misconfiguration, upstream failures keep their
// character (auth, rate limit, transport) without leaking the API key setup.
func (s *Server) writeSearchError(w http.ResponseWriter, err error) {
	if errors.Is(err, search.ErrMissingAPIKey) {
		s.writeError(w, http.StatusServiceUnavailable, "Provider not configured", err.Error())
		return
	}

	if ue, ok := search.AsUpstream(err); ok {
		switch ue.Kind {
		case search.ErrorRateLimit:
			s.writeError(w, http.StatusTooManyRequests, "Upstream rate limit", ue.Error())
		case search.ErrorAuth:
			s.writeError(w, http.StatusBadGateway, "Upstream authentication failed", ue.Error())
		default:
			s.writeError(w, http.StatusBadGateway, "Upstream search failed", ue.Error())
		}
		return
	}

	s.writeError(w, http.StatusInternalServerError, "Search failed", err.Error())
}

func (s *Server) HandleProviders(w http.ResponseWriter, r *http.Request) {
	response := ProvidersResponse{Default: s.defaultProvider}
	for _, name := range s.providerNames() {
		maxCount, maxOffset := s.services[name].Provider().Limits()
		response.Providers = append(response.Providers, ProviderInfo{
			Name:      name,
			MaxCount:  maxCount,
			MaxOffset: maxOffset,
		})
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeError(w, http.StatusNotFound, "History disabled", "No archive is configured")
		return
	}

	query := r.URL.Query().Get("q")
	limit := intParam(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 30
	}

	hits, err := s.archive.Search(r.Context(), query, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "History search failed", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, HistoryResponse{
		Query: query,
		Hits:  hits,
		Count: len(hits),
	})
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	response := StatsResponse{
		Caches:    make(map[string]filecache.Stats, len(s.caches)),
		Listeners: s.hub.Size(),
	}
	for name, cache := range s.caches {
		response.Caches[name] = cache.Stats()
	}
	if len(s.dists) > 0 {
		response.IPFS = make(map[string]ipfscache.Stats, len(s.dists))
		for name, dist := range s.dists {
			response.IPFS[name] = dist.Stats(r.Context())
		}
	}
	if s.archive != nil {
		st, err := s.archive.Stats(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "Failed to get stats", err.Error())
			return
		}
		response.Archive = &st
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.APIVersion(),
	}

	s.writeJSON(w, http.StatusOK, health)
}

func intParam(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
