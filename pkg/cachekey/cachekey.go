// Package cachekey derives deterministic cache keys for search queries.
//
// A key is the SHA-256 of a canonical JSON encoding of the normalized query
// tuple (text, count, offset, country, safesearch), rendered as lowercase
// hex. Identical tuples always produce identical keys regardless of how the
// query was assembled, so every node computing a key for the same query
// lands on the same cache entry.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"golang.org/x/text/language"
)

// canonicalQuery fixes the field order of the hashed encoding. Fields are
// declared in sorted key order so encoding/json emits a canonical document.
type canonicalQuery struct {
	Count      int    `json:"count"`
	Country    string `json:"country"`
	Offset     int    `json:"offset"`
	Q          string `json:"q"`
	Safesearch string `json:"safesearch"`
}

// Derive computes the cache key for a normalized query tuple. It is a pure
// function: no error conditions, no side effects.
func Derive(text string, count, offset int, country, safesearch string) string {
	canonical := canonicalQuery{
		Count:      count,
		Country:    NormalizeCountry(country),
		Offset:     offset,
		Q:          strings.TrimSpace(text),
		Safesearch: NormalizeSafesearch(safesearch),
	}

	// Marshaling a flat struct of ints and strings cannot fail.
	encoded, _ := json.Marshal(canonical)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// NormalizeCountry lowercases a country code and canonicalizes it through
// the registered region table ("USA" and "us" both become "us"). Values
// that are not valid region codes pass through lowercased so they still
// hash deterministically.
func NormalizeCountry(country string) string {
	country = strings.TrimSpace(country)
	if country == "" {
		return ""
	}
	if region, err := language.ParseRegion(country); err == nil {
		return strings.ToLower(region.String())
	}
	return strings.ToLower(country)
}

// NormalizeSafesearch lowercases the safety level and applies the API
// default ("moderate") when unset.
func NormalizeSafesearch(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return "moderate"
	}
	return level
}

// Truncate shortens a derived key for diagnostics (index entries, logs).
func Truncate(key string) string {
	if len(key) <= 16 {
		return key
	}
	return key[:16]
}
