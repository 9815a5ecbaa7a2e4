// Package log provides a small opinionated wrapper around the standard
// library logger. Every subsystem (gateway, cache tier, provider, API
// server) obtains a named logger via ForService and emits lines prefixed
// with its service slug, e.g. `INFO [filecache] evicted 3 entries`.
//
// Debug logging can be enabled globally (SetGlobalDebug) or per service
// (EnableDebugFor). Cache tiers log their failures at debug level only:
// a broken cache must never be louder than the request it failed to serve.
//
// Non-goals: structured/JSON output, sampling, rotation. The surface is
// intentionally minimal.
package log
