package search

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned before any network attempt when a provider
// has no credentials configured. It is fatal: never cached, never retried.
var ErrMissingAPIKey = errors.New("search: missing API credentials")

// ErrorKind classifies live-fetch failures so callers can branch without
// inspecting status codes or error strings.
type ErrorKind string

const (
	ErrorAuth      ErrorKind = "auth"
	ErrorRateLimit ErrorKind = "rate_limit"
	ErrorServer    ErrorKind = "server"
	ErrorTransport ErrorKind = "transport"
	ErrorUpstream  ErrorKind = "upstream"
)

// UpstreamError is a typed live-fetch failure. Cache-tier failures never
// produce one; they degrade to misses instead.
type UpstreamError struct {
	Kind     ErrorKind
	Provider string
	Status   int
	Message  string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s error (status %d): %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Provider, e.Kind, e.Message)
}

// KindForStatus maps an HTTP status to an error kind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return ErrorAuth
	case status == 429:
		return ErrorRateLimit
	case status >= 500:
		return ErrorServer
	default:
		return ErrorUpstream
	}
}

// AsUpstream extracts a typed upstream error, if err carries one.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
