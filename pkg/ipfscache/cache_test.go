package ipfscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/endomorphosis/websearch/pkg/search"
)

// fakeDaemon emulates the subset of the IPFS HTTP RPC the cache uses.
type fakeDaemon struct {
	mu    sync.Mutex
	blobs map[string][]byte
	pins  map[string]bool
	adds  int
}

func newFakeDaemon() *fakeDaemon {
	return &fakeDaemon{blobs: make(map[string][]byte), pins: make(map[string]bool)}
}

func contentAddress(data []byte) string {
	sum := sha256.Sum256(data)
	return "bafy" + hex.EncodeToString(sum[:8])
}

func (d *fakeDaemon) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v0/id", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ID":"fake-peer"}`)
	})
	mux.HandleFunc("/api/v0/add", func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		cid := contentAddress(data)
		d.mu.Lock()
		d.blobs[cid] = data
		d.adds++
		d.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"Name": "blob", "Hash": cid})
	})
	mux.HandleFunc("/api/v0/cat", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		data, ok := d.blobs[r.URL.Query().Get("arg")]
		d.mu.Unlock()
		if !ok {
			http.Error(w, "not found", http.StatusInternalServerError)
			return
		}
		w.Write(data)
	})
	mux.HandleFunc("/api/v0/pin/add", func(w http.ResponseWriter, r *http.Request) {
		cid := r.URL.Query().Get("arg")
		d.mu.Lock()
		d.pins[cid] = true
		d.mu.Unlock()
		json.NewEncoder(w).Encode(map[string][]string{"Pins": {cid}})
	})
	mux.HandleFunc("/api/v0/pin/rm", func(w http.ResponseWriter, r *http.Request) {
		cid := r.URL.Query().Get("arg")
		d.mu.Lock()
		delete(d.pins, cid)
		d.mu.Unlock()
		json.NewEncoder(w).Encode(map[string][]string{"Pins": {cid}})
	})
	mux.HandleFunc("/api/v0/pin/ls", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		keys := make(map[string]map[string]string, len(d.pins))
		for cid := range d.pins {
			keys[cid] = map[string]string{"Type": "recursive"}
		}
		d.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"Keys": keys})
	})
	mux.HandleFunc("/api/v0/repo/gc", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		for cid := range d.blobs {
			if !d.pins[cid] {
				delete(d.blobs, cid)
				fmt.Fprintf(w, `{"Key":{"/":"%s"}}`+"\n", cid)
			}
		}
		d.mu.Unlock()
	})
	return mux
}

func newTestCache(t *testing.T, apiURL string, opts ...func(*Config)) Cache {
	t.Helper()
	cfg := Config{
		Enabled:   true,
		APIURL:    apiURL,
		IndexPath: filepath.Join(t.TempDir(), "ipfs_cache_index.json"),
		TTL:       time.Hour,
		Timeout:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg)
}

func testEntry(titles ...string) search.Entry {
	items := make([]search.Result, 0, len(titles))
	for _, title := range titles {
		items = append(items, search.Result{Title: title, URL: "https://example.com/" + title, Description: title})
	}
	return search.Entry{TS: time.Now().Unix(), Items: items}
}

func TestStoreRetrieveRoundTrip(t *testing.T) {
	daemon := newFakeDaemon()
	server := httptest.NewServer(daemon.handler())
	defer server.Close()

	cache := newTestCache(t, server.URL)
	ctx := context.Background()

	key := "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	want := testEntry("alpha", "beta")

	cid, err := cache.Store(ctx, key, want)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if cid == "" {
		t.Fatal("expected a content address")
	}

	got, ok := cache.Retrieve(ctx, key)
	if !ok {
		t.Fatal("expected hit after store")
	}
	if got.TS != want.TS || len(got.Items) != 2 || got.Items[0].Title != "alpha" {
		t.Errorf("retrieved entry = %+v, want %+v", got, want)
	}
}

func TestRetrieveUnknownKeyIsMiss(t *testing.T) {
	daemon := newFakeDaemon()
	server := httptest.NewServer(daemon.handler())
	defer server.Close()

	cache := newTestCache(t, server.URL)
	if _, ok := cache.Retrieve(context.Background(), "never-stored"); ok {
		t.Fatal("expected miss for unknown key")
	}
}

func TestUnreachableBackendNeverRaises(t *testing.T) {
	// Point at a closed port; every operation must degrade, not fail.
	cache := newTestCache(t, "http://127.0.0.1:1")
	ctx := context.Background()

	if cache.Available() {
		t.Fatal("backend should be unavailable")
	}
	if _, ok := cache.Retrieve(ctx, "any-key"); ok {
		t.Error("retrieve should miss when unreachable")
	}
	cid, err := cache.Store(ctx, "any-key", testEntry("x"))
	if err != nil || cid != "" {
		t.Errorf("store = (%q, %v), want unavailable no-op", cid, err)
	}
	if _, err := cache.GC(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("gc err = %v, want ErrUnavailable", err)
	}
	if _, err := cache.Pins(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("pins err = %v, want ErrUnavailable", err)
	}
}

func TestExpiredIndexEntryIsPruned(t *testing.T) {
	daemon := newFakeDaemon()
	server := httptest.NewServer(daemon.handler())
	defer server.Close()

	cache := newTestCache(t, server.URL, func(cfg *Config) {
		cfg.TTL = 100 * time.Second
	})
	ctx := context.Background()

	stale := testEntry("old")
	stale.TS = time.Now().Unix() - 101
	if _, err := cache.Store(ctx, "stale-key", stale); err != nil {
		t.Fatalf("store: %v", err)
	}

	if _, ok := cache.Retrieve(ctx, "stale-key"); ok {
		t.Fatal("expected miss for expired entry")
	}
	if got := cache.Stats(ctx).Entries; got != 0 {
		t.Errorf("index entries = %d, want 0 after pruning", got)
	}
}

func TestKeyMismatchDropsIndexEntry(t *testing.T) {
	daemon := newFakeDaemon()
	server := httptest.NewServer(daemon.handler())
	defer server.Close()

	impl := newTestCache(t, server.URL).(*ipfsCache)
	ctx := context.Background()

	cid, err := impl.Store(ctx, "real-key", testEntry("x"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	// Corrupt the pointer table: another key pointing at the same blob.
	idx := impl.loadIndex()
	idx["wrong-key"] = indexEntry{CID: cid, Timestamp: time.Now().Unix(), ResultCount: 1}
	if err := impl.saveIndex(idx); err != nil {
		t.Fatalf("saving index: %v", err)
	}

	if _, ok := impl.Retrieve(ctx, "wrong-key"); ok {
		t.Fatal("mismatched blob must not be returned")
	}
	if _, ok := impl.loadIndex()["wrong-key"]; ok {
		t.Error("mismatched index entry should be dropped")
	}
	if _, ok := impl.Retrieve(ctx, "real-key"); !ok {
		t.Error("the honest key should still hit")
	}
}

func TestPinOnWrite(t *testing.T) {
	daemon := newFakeDaemon()
	server := httptest.NewServer(daemon.handler())
	defer server.Close()

	cache := newTestCache(t, server.URL, func(cfg *Config) {
		cfg.PinOnWrite = true
	})
	ctx := context.Background()

	cid, err := cache.Store(ctx, "pinned-key", testEntry("x"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	pins, err := cache.Pins(ctx)
	if err != nil {
		t.Fatalf("pins: %v", err)
	}
	if len(pins) != 1 || pins[0] != cid {
		t.Errorf("pins = %v, want [%s]", pins, cid)
	}

	// GC keeps pinned blobs.
	if _, err := cache.GC(ctx); err != nil {
		t.Fatalf("gc: %v", err)
	}
	if _, ok := cache.Retrieve(ctx, "pinned-key"); !ok {
		t.Error("pinned entry should survive gc")
	}

	if err := cache.Unpin(ctx, cid); err != nil {
		t.Fatalf("unpin: %v", err)
	}
	removed, err := cache.GC(ctx)
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if removed != 1 {
		t.Errorf("gc removed = %d, want 1", removed)
	}
}

func TestContentAddressingDeduplicates(t *testing.T) {
	daemon := newFakeDaemon()
	server := httptest.NewServer(daemon.handler())
	defer server.Close()

	cache := newTestCache(t, server.URL)
	ctx := context.Background()

	entry := testEntry("same")
	first, err := cache.Store(ctx, "dedup-key", entry)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	second, err := cache.Store(ctx, "dedup-key", entry)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if first != second {
		t.Errorf("identical entries got different addresses: %s vs %s", first, second)
	}
	daemon.mu.Lock()
	blobCount := len(daemon.blobs)
	daemon.mu.Unlock()
	if blobCount != 1 {
		t.Errorf("blob count = %d, want 1 (content addressed)", blobCount)
	}
}

func TestClearIndex(t *testing.T) {
	daemon := newFakeDaemon()
	server := httptest.NewServer(daemon.handler())
	defer server.Close()

	cache := newTestCache(t, server.URL)
	ctx := context.Background()

	if _, err := cache.Store(ctx, "k1", testEntry("a")); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := cache.Store(ctx, "k2", testEntry("b")); err != nil {
		t.Fatalf("store: %v", err)
	}

	count, err := cache.ClearIndex()
	if err != nil {
		t.Fatalf("clear index: %v", err)
	}
	if count != 2 {
		t.Errorf("cleared = %d, want 2", count)
	}
	if _, ok := cache.Retrieve(ctx, "k1"); ok {
		t.Error("expected miss after index clear (lookup path lost)")
	}

	// The blobs themselves survive in the store.
	daemon.mu.Lock()
	blobCount := len(daemon.blobs)
	daemon.mu.Unlock()
	if blobCount != 2 {
		t.Errorf("blob count = %d, want 2 (clearing the index loses pointers, not data)", blobCount)
	}
}

func TestDisabledVariant(t *testing.T) {
	cache := New(Config{Enabled: false})
	ctx := context.Background()

	if cache.Available() {
		t.Error("disabled cache should report unavailable")
	}
	if _, ok := cache.Retrieve(ctx, "k"); ok {
		t.Error("disabled cache should always miss")
	}
	if cid, err := cache.Store(ctx, "k", testEntry("x")); err != nil || cid != "" {
		t.Errorf("store = (%q, %v), want no-op", cid, err)
	}
	if _, err := cache.ClearIndex(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("clear index err = %v, want ErrUnavailable", err)
	}
}
