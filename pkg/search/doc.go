// Package search implements the cached search gateway: a two-tier cache
// (local file cache plus an optional IPFS-backed distributed cache) sitting
// in front of a rate-limited live search provider.
//
// Per request the gateway derives a deterministic cache key, consults the
// local tier, then the distributed tier, and only then performs the live
// call, populating both tiers on the way back. Cache tiers are strictly
// best-effort: any tier failure degrades to a miss and the request proceeds.
// Only live-fetch failures surface to the caller, as typed *UpstreamError
// values, so callers can branch on auth / rate-limit / server / transport
// without string matching.
package search
