// Package ipfscache implements the distributed cache tier: search cache
// entries stored as content-addressed blobs in IPFS, found again through a
// small process-local index mapping cache key to cid.
//
// The index is a pointer table, not the cache itself. The authoritative
// entry lives in the distributed store under its content hash, so any node
// performing the same fetch produces the same blob and losing the index
// loses only the fast lookup path, never pinned data. Because a retrieved
// blob carries its own cache key and is validated against the expected one,
// index corruption degrades performance but not correctness, which is why
// the index file needs no cross-process locking.
//
// Every backend failure (timeout, refused connection, malformed response)
// converts into a miss or an unavailable result. This tier is additive,
// never a hard dependency.
package ipfscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/endomorphosis/websearch/pkg/cachekey"
	"github.com/endomorphosis/websearch/pkg/log"
	"github.com/endomorphosis/websearch/pkg/search"
)

// ErrUnavailable is returned by administrative operations when the tier is
// disabled or the daemon is unreachable.
var ErrUnavailable = errors.New("ipfscache: backend unavailable")

// availabilityWindow caches the daemon reachability probe so a burst of
// requests does not hammer /api/v0/id.
const availabilityWindow = 30 * time.Second

// Cache is the distributed tier interface. New returns the enabled variant
// when the tier is configured and a no-op disabled variant otherwise, so
// callers never branch on an "is ipfs installed" flag.
type Cache interface {
	search.DistCache

	Stats(ctx context.Context) Stats
	ClearIndex() (int, error)
	GC(ctx context.Context) (int, error)
	Pin(ctx context.Context, cid string) error
	Unpin(ctx context.Context, cid string) error
	Pins(ctx context.Context) ([]string, error)
}

// Config holds the resolved settings for the distributed tier.
type Config struct {
	Enabled    bool
	APIURL     string
	IndexPath  string
	TTL        time.Duration
	PinOnWrite bool
	Timeout    time.Duration
}

// Stats describes the distributed tier for diagnostics.
type Stats struct {
	Enabled    bool   `json:"enabled"`
	Available  bool   `json:"available"`
	APIURL     string `json:"api_url,omitempty"`
	IndexPath  string `json:"index_path,omitempty"`
	Entries    int    `json:"entries"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`
	PinOnWrite bool   `json:"pin_on_write,omitempty"`
}

// New selects the cache variant once, at startup.
func New(cfg Config) Cache {
	if !cfg.Enabled {
		return disabled{}
	}
	return &ipfsCache{
		client: NewClient(cfg.APIURL, cfg.Timeout),
		cfg:    cfg,
		logger: log.ForService("ipfs"),
	}
}

// indexEntry is one row of the local pointer table.
type indexEntry struct {
	CID         string `json:"cid"`
	Timestamp   int64  `json:"timestamp"`
	Query       string `json:"query"`
	ResultCount int    `json:"result_count"`
}

// blob is the content-addressed payload. It records the cache key it was
// stored under so Retrieve can detect index/content mismatches.
type blob struct {
	Key   string          `json:"key"`
	TS    int64           `json:"ts"`
	Items []search.Result `json:"items"`
	Meta  map[string]any  `json:"meta,omitempty"`
}

var (
	// Shared stateless codecs; EncodeAll/DecodeAll are safe concurrently.
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

type ipfsCache struct {
	client *Client
	cfg    Config
	logger *log.Logger

	mu         sync.Mutex
	availUntil time.Time
	avail      bool
}

// Available probes the daemon, memoizing the answer briefly.
func (c *ipfsCache) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Before(c.availUntil) {
		return c.avail
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()
	err := c.client.ID(ctx)

	c.avail = err == nil
	c.availUntil = now.Add(availabilityWindow)
	if err != nil {
		c.logger.Debugf("daemon unreachable at %s: %v", c.cfg.APIURL, err)
	}
	return c.avail
}

// Store serializes the entry, adds it to the store, optionally pins it and
// records the cid in the local index. A nil error and empty cid means the
// tier was unavailable.
func (c *ipfsCache) Store(ctx context.Context, key string, entry search.Entry) (string, error) {
	if !c.Available() {
		return "", nil
	}

	payload := blob{Key: key, TS: entry.TS, Items: entry.Items, Meta: entry.Meta}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding cache blob: %w", err)
	}
	compressed := zstdEncoder.EncodeAll(encoded, nil)

	cid, err := c.client.Add(ctx, compressed)
	if err != nil {
		c.logger.Debugf("storing blob for %s: %v", cachekey.Truncate(key), err)
		return "", nil
	}

	if c.cfg.PinOnWrite {
		if err := c.client.PinAdd(ctx, cid); err != nil {
			c.logger.Debugf("pinning %s: %v", cid, err)
		}
	}

	idx := c.loadIndex()
	idx[key] = indexEntry{
		CID:         cid,
		Timestamp:   entry.TS,
		Query:       cachekey.Truncate(key),
		ResultCount: len(entry.Items),
	}
	if err := c.saveIndex(idx); err != nil {
		c.logger.Debugf("saving index: %v", err)
	}
	return cid, nil
}

// Retrieve looks the key up in the local index, enforces this tier's TTL,
// fetches the blob and validates that it was stored under the same key.
// Stale or mismatched index entries are dropped.
func (c *ipfsCache) Retrieve(ctx context.Context, key string) (search.Entry, bool) {
	idx := c.loadIndex()
	row, ok := idx[key]
	if !ok {
		return search.Entry{}, false
	}

	if time.Since(time.Unix(row.Timestamp, 0)) > c.cfg.TTL {
		delete(idx, key)
		if err := c.saveIndex(idx); err != nil {
			c.logger.Debugf("pruning stale index entry: %v", err)
		}
		return search.Entry{}, false
	}

	if !c.Available() {
		return search.Entry{}, false
	}

	compressed, err := c.client.Cat(ctx, row.CID)
	if err != nil {
		c.logger.Debugf("fetching blob %s: %v", row.CID, err)
		return search.Entry{}, false
	}

	decoded, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		c.logger.Debugf("decompressing blob %s: %v", row.CID, err)
		return search.Entry{}, false
	}

	var payload blob
	if err := json.Unmarshal(decoded, &payload); err != nil {
		c.logger.Debugf("decoding blob %s: %v", row.CID, err)
		return search.Entry{}, false
	}

	if payload.Key != key {
		c.logger.Warnf("index/content mismatch for %s (blob %s), dropping index entry", cachekey.Truncate(key), row.CID)
		delete(idx, key)
		if err := c.saveIndex(idx); err != nil {
			c.logger.Debugf("pruning mismatched index entry: %v", err)
		}
		return search.Entry{}, false
	}

	return search.Entry{TS: payload.TS, Items: payload.Items, Meta: payload.Meta}, true
}

func (c *ipfsCache) Stats(ctx context.Context) Stats {
	idx := c.loadIndex()
	return Stats{
		Enabled:    true,
		Available:  c.Available(),
		APIURL:     c.cfg.APIURL,
		IndexPath:  c.cfg.IndexPath,
		Entries:    len(idx),
		TTLSeconds: int64(c.cfg.TTL.Seconds()),
		PinOnWrite: c.cfg.PinOnWrite,
	}
}

// ClearIndex drops the local pointer table and reports how many entries it
// held. Blobs pinned in the store survive.
func (c *ipfsCache) ClearIndex() (int, error) {
	idx := c.loadIndex()
	count := len(idx)
	if err := os.Remove(c.cfg.IndexPath); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("removing index %s: %w", c.cfg.IndexPath, err)
	}
	return count, nil
}

func (c *ipfsCache) GC(ctx context.Context) (int, error) {
	if !c.Available() {
		return 0, ErrUnavailable
	}
	return c.client.RepoGC(ctx)
}

func (c *ipfsCache) Pin(ctx context.Context, cid string) error {
	if !c.Available() {
		return ErrUnavailable
	}
	return c.client.PinAdd(ctx, cid)
}

func (c *ipfsCache) Unpin(ctx context.Context, cid string) error {
	if !c.Available() {
		return ErrUnavailable
	}
	return c.client.PinRm(ctx, cid)
}

func (c *ipfsCache) Pins(ctx context.Context) ([]string, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}
	return c.client.PinLs(ctx)
}

// loadIndex reads the pointer table; missing or corrupt files yield an
// empty table.
func (c *ipfsCache) loadIndex() map[string]indexEntry {
	data, err := os.ReadFile(c.cfg.IndexPath)
	if err != nil {
		return make(map[string]indexEntry)
	}
	var idx map[string]indexEntry
	if err := json.Unmarshal(data, &idx); err != nil {
		c.logger.Debugf("corrupt index %s, treating as empty: %v", c.cfg.IndexPath, err)
		return make(map[string]indexEntry)
	}
	if idx == nil {
		idx = make(map[string]indexEntry)
	}
	return idx
}

func (c *ipfsCache) saveIndex(idx map[string]indexEntry) error {
	if err := os.MkdirAll(filepath.Dir(c.cfg.IndexPath), 0755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshaling index: %w", err)
	}
	return os.WriteFile(c.cfg.IndexPath, data, 0644)
}

// disabled is the variant selected when the tier is not configured.
type disabled struct{}

func (disabled) Available() bool { return false }

func (disabled) Retrieve(ctx context.Context, key string) (search.Entry, bool) {
	return search.Entry{}, false
}

func (disabled) Store(ctx context.Context, key string, entry search.Entry) (string, error) {
	return "", nil
}

func (disabled) Stats(ctx context.Context) Stats { return Stats{} }

func (disabled) ClearIndex() (int, error) { return 0, ErrUnavailable }

func (disabled) GC(ctx context.Context) (int, error) { return 0, ErrUnavailable }

func (disabled) Pin(ctx context.Context, cid string) error { return ErrUnavailable }

func (disabled) Unpin(ctx context.Context, cid string) error { return ErrUnavailable }

func (disabled) Pins(ctx context.Context) ([]string, error) { return nil, ErrUnavailable }
