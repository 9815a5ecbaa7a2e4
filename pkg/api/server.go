// Package api exposes the search gateway over HTTP: cached search, result
// history, cache diagnostics and a WebSocket firehose of search activity.
package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/google/uuid"

	"github.com/endomorphosis/websearch/pkg/archive"
	"github.com/endomorphosis/websearch/pkg/filecache"
	"github.com/endomorphosis/websearch/pkg/firehose"
	"github.com/endomorphosis/websearch/pkg/ipfscache"
	"github.com/endomorphosis/websearch/pkg/log"
	"github.com/endomorphosis/websearch/pkg/search"
)

// Server wires the search services and cache tiers into HTTP handlers.
type Server struct {
	services        map[string]*search.Service
	defaultProvider string
	caches          map[string]*filecache.Cache
	dists           map[string]ipfscache.Cache
	archive         *archive.Archive
	hub             *firehose.Hub
	logger          *log.Logger
}

// Options collects the collaborators for NewServer. Archive may be nil.
type Options struct {
	Services        map[string]*search.Service
	DefaultProvider string
	Caches          map[string]*filecache.Cache
	Dists           map[string]ipfscache.Cache
	Archive         *archive.Archive
	Hub             *firehose.Hub
}

func NewServer(opts Options) *Server {
	hub := opts.Hub
	if hub == nil {
		hub = firehose.NewHub(0)
	}
	return &Server{
		services:        opts.Services,
		defaultProvider: opts.DefaultProvider,
		caches:          opts.Caches,
		dists:           opts.Dists,
		archive:         opts.Archive,
		hub:             hub,
		logger:          log.ForService("api"),
	}
}

// Hub returns the firehose hub so other components can publish into it.
func (s *Server) Hub() *firehose.Hub {
	return s.hub
}

func (s *Server) providerNames() []string {
	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warnf("encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	response := ErrorResponse{
		Error:   error,
		Message: message,
	}
	s.writeJSON(w, status, response)
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestIDMiddleware tags each request with a unique id, echoed in the
// X-Request-ID response header.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}
