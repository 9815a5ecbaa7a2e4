package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("BRAVE_API_KEY", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("loading missing config: %v", err)
	}

	if cfg.Search.CacheTTL.Duration != DefaultCacheTTL {
		t.Errorf("cache ttl = %v, want %v", cfg.Search.CacheTTL.Duration, DefaultCacheTTL)
	}
	if cfg.IPFS.CacheTTL.Duration != DefaultIPFSCacheTTL {
		t.Errorf("ipfs ttl = %v, want %v", cfg.IPFS.CacheTTL.Duration, DefaultIPFSCacheTTL)
	}
	if cfg.Search.CacheMaxEntries != DefaultMaxEntries {
		t.Errorf("max entries = %d, want %d", cfg.Search.CacheMaxEntries, DefaultMaxEntries)
	}
	if cfg.IPFS.Enabled {
		t.Error("ipfs tier should be disabled by default")
	}
	if cfg.API.Listen != DefaultListenAddress {
		t.Errorf("listen = %q, want %q", cfg.API.Listen, DefaultListenAddress)
	}
}

func TestLoadConfigRoundTrip(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := GetDefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Search.CacheTTL = Duration{2 * time.Hour}
	cfg.Search.CacheMaxEntries = 42
	cfg.IPFS.Enabled = true
	cfg.IPFS.PinOnWrite = true

	if err := cfg.SaveConfig(path); err != nil {
		t.Fatalf("saving config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if loaded.Search.CacheTTL.Duration != 2*time.Hour {
		t.Errorf("cache ttl = %v, want 2h", loaded.Search.CacheTTL.Duration)
	}
	if loaded.Search.CacheMaxEntries != 42 {
		t.Errorf("max entries = %d, want 42", loaded.Search.CacheMaxEntries)
	}
	if !loaded.IPFS.Enabled || !loaded.IPFS.PinOnWrite {
		t.Error("ipfs flags lost in round trip")
	}
}

func TestAPIKeyEnvFallback(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("BRAVE_API_KEY", "from-env")

	cfg, err := GetDefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.Search.APIKey != "from-env" {
		t.Errorf("api key = %q, want env fallback", cfg.Search.APIKey)
	}
}

func TestCachePathFor(t *testing.T) {
	cfg := &Config{DataDir: "/data"}
	cfg.applyDefaults()

	if got := cfg.CachePathFor("brave"); got != filepath.Join("/data", "brave_search_cache.json") {
		t.Errorf("brave cache path = %q", got)
	}
	if got := cfg.CachePathFor("github"); got != filepath.Join("/data", "github_search_cache.json") {
		t.Errorf("github cache path = %q", got)
	}

	cfg.Search.CachePath = "/tmp/custom.json"
	if got := cfg.CachePathFor("brave"); got != "/tmp/custom.json" {
		t.Errorf("override cache path = %q", got)
	}
	if got := cfg.CachePathFor("github"); got != "/tmp/custom_github.json" {
		t.Errorf("override github cache path = %q", got)
	}
}
