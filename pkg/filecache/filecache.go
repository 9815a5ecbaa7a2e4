// Package filecache implements the local cache tier: a single JSON document
// mapping cache keys to entries, protected by an advisory file lock, with
// TTL freshness checks and capacity-bound eviction.
//
// Caching here is always an optimization, never a correctness requirement:
// a corrupt or unreadable index is treated as an empty one, and every
// failure surfaces as a miss rather than an error on the request path.
//
// Known limitation: on filesystems without advisory locking (some network
// mounts), the cache runs in a degraded unlocked mode. Single-process use
// stays correct; heavy concurrent writers from multiple processes may lose
// updates (last writer wins at the whole-file level).
package filecache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/endomorphosis/websearch/pkg/log"
	"github.com/endomorphosis/websearch/pkg/search"
)

// Config holds the resolved settings for one cache file.
type Config struct {
	// Path is the JSON index location.
	Path string

	// TTL is the maximum age at which an entry is still fresh.
	TTL time.Duration

	// MaxEntries bounds the index; oldest entries are evicted first.
	MaxEntries int

	// Disabled turns every operation into a no-op miss.
	Disabled bool
}

// Cache is a durable key to entry store backed by a single JSON file.
type Cache struct {
	path       string
	ttl        time.Duration
	maxEntries int
	disabled   bool
	lock       *flock.Flock
	locked     bool
	logger     *log.Logger
}

// index is the persisted document: cache key -> entry.
type index map[string]search.Entry

// New creates a cache and probes for advisory locking support once. When
// the probe fails the cache stays usable in unlocked-degraded mode.
func New(cfg Config) *Cache {
	c := &Cache{
		path:       cfg.Path,
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		disabled:   cfg.Disabled,
		logger:     log.ForService("filecache"),
	}
	if c.disabled {
		return c
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		c.logger.Warnf("creating cache directory: %v", err)
	}

	// The lock is a sibling file: the index itself is replaced by rename
	// on every write, which would invalidate a lock held on its inode.
	c.lock = flock.New(cfg.Path + ".lock")
	if ok, err := c.lock.TryLock(); err != nil {
		c.locked = false
		c.logger.Warnf("advisory locking unavailable for %s, running unlocked (degraded): %v", cfg.Path, err)
	} else {
		c.locked = true
		if ok {
			if err := c.lock.Unlock(); err != nil {
				c.logger.Debugf("releasing probe lock: %v", err)
			}
		}
	}
	return c
}

// Locked reports whether the cache runs with advisory locking.
func (c *Cache) Locked() bool {
	return c.locked
}

// Get returns the entry for key if present and still within TTL. Expired
// entries are left in place; Get never mutates the persisted index.
func (c *Cache) Get(key string) (search.Entry, bool) {
	if c.disabled {
		return search.Entry{}, false
	}

	unlock := c.acquireShared()
	defer unlock()

	idx := c.load()
	entry, ok := idx[key]
	if !ok || !entry.Fresh(time.Now(), c.ttl) {
		return search.Entry{}, false
	}
	return entry, true
}

// Put inserts or overwrites key -> entry under an exclusive lock, enforces
// the capacity bound, and persists atomically.
func (c *Cache) Put(key string, entry search.Entry) error {
	if c.disabled {
		return nil
	}

	unlock := c.acquireExclusive()
	defer unlock()

	idx := c.load()
	idx[key] = entry
	c.evict(idx)
	return c.persist(idx)
}

// Stats describes the cache file for diagnostics.
type Stats struct {
	Path       string `json:"path"`
	Exists     bool   `json:"exists"`
	EntryCount int    `json:"entry_count"`
	SizeBytes  int64  `json:"size_bytes"`
	OldestTS   int64  `json:"oldest_ts,omitempty"`
	NewestTS   int64  `json:"newest_ts,omitempty"`
	TTLSeconds int64  `json:"ttl_seconds"`
	Disabled   bool   `json:"disabled"`
	Locked     bool   `json:"locked"`
}

// Stats is best-effort and read-only. Missing or corrupt files report zero
// entries rather than failing.
func (c *Cache) Stats() Stats {
	stats := Stats{
		Path:       c.path,
		TTLSeconds: int64(c.ttl.Seconds()),
		Disabled:   c.disabled,
		Locked:     c.locked,
	}
	if c.disabled {
		return stats
	}

	if info, err := os.Stat(c.path); err == nil {
		stats.Exists = true
		stats.SizeBytes = info.Size()
	}

	idx := c.load()
	stats.EntryCount = len(idx)
	for _, entry := range idx {
		if stats.OldestTS == 0 || entry.TS < stats.OldestTS {
			stats.OldestTS = entry.TS
		}
		if entry.TS > stats.NewestTS {
			stats.NewestTS = entry.TS
		}
	}
	return stats
}

// ClearResult reports what Clear did.
type ClearResult struct {
	Deleted    bool  `json:"deleted"`
	Truncated  bool  `json:"truncated"`
	FreedBytes int64 `json:"freed_bytes"`
}

// Clear deletes the backing file. If deletion fails the file is truncated
// to an empty index instead and reported as truncated, not deleted.
func (c *Cache) Clear() ClearResult {
	var result ClearResult
	if c.disabled {
		return result
	}

	unlock := c.acquireExclusive()
	defer unlock()

	if info, err := os.Stat(c.path); err == nil {
		result.FreedBytes = info.Size()
	} else {
		return result
	}

	if err := os.Remove(c.path); err == nil {
		result.Deleted = true
		return result
	}

	if err := os.WriteFile(c.path, []byte("{}"), 0644); err == nil {
		result.Truncated = true
	} else {
		c.logger.Warnf("clearing cache %s: %v", c.path, err)
		result.FreedBytes = 0
	}
	return result
}

// acquireShared takes the read side of the lock and returns its release
// func. In degraded mode both acquire functions are no-ops.
func (c *Cache) acquireShared() func() {
	if !c.locked {
		return func() {}
	}
	if err := c.lock.RLock(); err != nil {
		c.logger.Debugf("acquiring shared lock: %v", err)
		return func() {}
	}
	return c.release
}

func (c *Cache) acquireExclusive() func() {
	if !c.locked {
		return func() {}
	}
	if err := c.lock.Lock(); err != nil {
		c.logger.Debugf("acquiring exclusive lock: %v", err)
		return func() {}
	}
	return c.release
}

func (c *Cache) release() {
	if err := c.lock.Unlock(); err != nil {
		c.logger.Debugf("releasing lock: %v", err)
	}
}

// load reads the full index. Missing or corrupt files yield an empty index.
func (c *Cache) load() index {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Debugf("reading cache index: %v", err)
		}
		return make(index)
	}

	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		c.logger.Debugf("corrupt cache index %s, treating as empty: %v", c.path, err)
		return make(index)
	}
	if idx == nil {
		idx = make(index)
	}
	return idx
}

// evict drops oldest-timestamp entries until the index fits MaxEntries.
// Ties break deterministically by ascending key order.
func (c *Cache) evict(idx index) {
	if c.maxEntries <= 0 || len(idx) <= c.maxEntries {
		return
	}

	keys := make([]string, 0, len(idx))
	for key := range idx {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := idx[keys[i]], idx[keys[j]]
		if a.TS != b.TS {
			return a.TS < b.TS
		}
		return keys[i] < keys[j]
	})

	evicted := 0
	for _, key := range keys {
		if len(idx) <= c.maxEntries {
			break
		}
		delete(idx, key)
		evicted++
	}
	if evicted > 0 {
		c.logger.Debugf("evicted %d entries from %s", evicted, c.path)
	}
}

// persist writes the index to a temp file, syncs it, then renames it over
// the index so readers never observe a partial document.
func (c *Cache) persist(idx index) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshaling cache index: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".cache-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing cache index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing cache index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp cache file: %w", err)
	}

	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing cache index: %w", err)
	}
	return nil
}
