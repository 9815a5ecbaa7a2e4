package api

import (
	"time"

	"github.com/endomorphosis/websearch/pkg/archive"
	"github.com/endomorphosis/websearch/pkg/filecache"
	"github.com/endomorphosis/websearch/pkg/ipfscache"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

type StatsResponse struct {
	Caches    map[string]filecache.Stats `json:"caches"`
	IPFS      map[string]ipfscache.Stats `json:"ipfs,omitempty"`
	Archive   *archive.Stats             `json:"archive,omitempty"`
	Listeners int                        `json:"listeners"`
}

type HistoryResponse struct {
	Query string        `json:"query,omitempty"`
	Hits  []archive.Hit `json:"hits"`
	Count int           `json:"count"`
}

type ProvidersResponse struct {
	Providers []ProviderInfo `json:"providers"`
	Default   string         `json:"default"`
}

type ProviderInfo struct {
	Name      string `json:"name"`
	MaxCount  int    `json:"max_count"`
	MaxOffset int    `json:"max_offset"`
}
