package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

// Config is the resolved configuration for the whole tool. It is loaded once
// at startup and passed explicitly into constructors; nothing reads the
// environment after LoadConfig returns.
type Config struct {
	DataDir string        `toml:"data_dir"`
	Search  SearchConfig  `toml:"search"`
	IPFS    IPFSConfig    `toml:"ipfs"`
	Archive ArchiveConfig `toml:"archive"`
	API     APIConfig     `toml:"api"`
	GitHub  GitHubConfig  `toml:"github"`
}

// SearchConfig configures the live web search provider and the local file
// cache sitting in front of it.
type SearchConfig struct {
	// APIKey authenticates against the web search API. Falls back to the
	// BRAVE_API_KEY environment variable when empty.
	APIKey string `toml:"api_key"`

	// Endpoint overrides the web search API URL. Mostly useful for tests.
	Endpoint string `toml:"endpoint"`

	// CacheDisabled turns the local file cache off entirely. The default
	// (false) keeps caching on.
	CacheDisabled bool `toml:"cache_disabled"`

	// CacheTTL is how long a cached entry stays fresh. Default 24h.
	CacheTTL Duration `toml:"cache_ttl"`

	// CacheMaxEntries bounds the local cache index. Default 1000.
	CacheMaxEntries int `toml:"cache_max_entries"`

	// CachePath overrides the local cache file location. When empty the
	// cache lives under DataDir, one file per provider.
	CachePath string `toml:"cache_path"`

	// Timeout bounds each live API call. Default 10s.
	Timeout Duration `toml:"timeout"`
}

// IPFSConfig configures the optional distributed cache tier backed by an
// IPFS daemon's HTTP RPC API.
type IPFSConfig struct {
	Enabled bool `toml:"enabled"`

	// APIURL is the daemon RPC endpoint. Default http://127.0.0.1:5001.
	APIURL string `toml:"api_url"`

	// CacheTTL is independent of the local tier's TTL. Default 168h; the
	// distributed tier is treated as a longer-lived archival tier.
	CacheTTL Duration `toml:"cache_ttl"`

	// PinOnWrite pins every stored entry so the daemon's GC keeps it.
	PinOnWrite bool `toml:"pin_on_write"`

	// IndexPath overrides the local cid index file location.
	IndexPath string `toml:"index_path"`

	// Timeout bounds each daemon round-trip. Default 30s.
	Timeout Duration `toml:"timeout"`
}

// ArchiveConfig configures the sqlite result archive.
type ArchiveConfig struct {
	Disabled bool   `toml:"disabled"`
	Path     string `toml:"path"`
}

// APIConfig configures the HTTP API server.
type APIConfig struct {
	Listen string `toml:"listen"`
}

// GitHubConfig configures the GitHub repository search provider.
type GitHubConfig struct {
	// Token authenticates GitHub API calls. Falls back to GITHUB_TOKEN.
	Token string `toml:"token"`
}

// Duration wraps time.Duration for TOML text (de)serialization.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

const (
	DefaultCacheTTL      = 24 * time.Hour
	DefaultIPFSCacheTTL  = 7 * 24 * time.Hour
	DefaultMaxEntries    = 1000
	DefaultFetchTimeout  = 10 * time.Second
	DefaultIPFSTimeout   = 30 * time.Second
	DefaultListenAddress = ":8989"
	DefaultIPFSAPIURL    = "http://127.0.0.1:5001"
)

func GetDefaultConfig() (*Config, error) {
	dataDir, err := GetDefaultDataDir()
	if err != nil {
		return nil, fmt.Errorf("getting default data directory: %w", err)
	}
	cfg := &Config{DataDir: dataDir}
	cfg.applyDefaults()
	return cfg, nil
}

func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if config.DataDir == "" {
		dataDir, err := GetDefaultDataDir()
		if err != nil {
			return nil, fmt.Errorf("getting default data directory: %w", err)
		}
		config.DataDir = dataDir
	}

	config.applyDefaults()
	return &config, nil
}

// applyDefaults fills zero values and resolves credential env fallbacks once.
func (c *Config) applyDefaults() {
	if c.Search.CacheTTL.Duration == 0 {
		c.Search.CacheTTL = Duration{DefaultCacheTTL}
	}
	if c.Search.CacheMaxEntries == 0 {
		c.Search.CacheMaxEntries = DefaultMaxEntries
	}
	if c.Search.Timeout.Duration == 0 {
		c.Search.Timeout = Duration{DefaultFetchTimeout}
	}
	if c.Search.APIKey == "" {
		c.Search.APIKey = os.Getenv("BRAVE_API_KEY")
	}
	if c.IPFS.APIURL == "" {
		c.IPFS.APIURL = DefaultIPFSAPIURL
	}
	if v := os.Getenv("IPFS_API_URL"); v != "" {
		c.IPFS.APIURL = v
	}
	if c.IPFS.CacheTTL.Duration == 0 {
		c.IPFS.CacheTTL = Duration{DefaultIPFSCacheTTL}
	}
	if c.IPFS.Timeout.Duration == 0 {
		c.IPFS.Timeout = Duration{DefaultIPFSTimeout}
	}
	if c.API.Listen == "" {
		c.API.Listen = DefaultListenAddress
	}
	if c.GitHub.Token == "" {
		c.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
}

// CachePathFor returns the local cache file for a provider. An explicit
// cache_path override applies to every provider by suffixing the name.
func (c *Config) CachePathFor(provider string) string {
	if c.Search.CachePath != "" {
		if provider == "brave" {
			return c.Search.CachePath
		}
		ext := filepath.Ext(c.Search.CachePath)
		base := strings.TrimSuffix(c.Search.CachePath, ext)
		return base + "_" + provider + ext
	}
	return filepath.Join(c.DataDir, provider+"_search_cache.json")
}

// IPFSIndexPathFor returns the local cid index file for a provider.
func (c *Config) IPFSIndexPathFor(provider string) string {
	if c.IPFS.IndexPath != "" {
		if provider == "brave" {
			return c.IPFS.IndexPath
		}
		ext := filepath.Ext(c.IPFS.IndexPath)
		base := strings.TrimSuffix(c.IPFS.IndexPath, ext)
		return base + "_" + provider + ext
	}
	return filepath.Join(c.DataDir, provider+"_ipfs_cache_index.json")
}

// ArchivePath returns the sqlite archive location.
func (c *Config) ArchivePath() string {
	if c.Archive.Path != "" {
		return c.Archive.Path
	}
	return filepath.Join(c.DataDir, "archive.db")
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	dataDir := c.DataDir
	if dataDir == "" {
		var err error
		dataDir, err = GetDefaultDataDir()
		if err != nil {
			return fmt.Errorf("getting default data directory: %w", err)
		}
	}

	template := strings.Replace(configTemplate, "/home/user/.local/share/websearch", dataDir, 1)
	return os.WriteFile(configPath, []byte(template), 0644)
}

// GetDefaultDataDir returns the default directory for cache files and the
// archive database.
func GetDefaultDataDir() (string, error) {
	// Use XDG_DATA_HOME if set, otherwise use ~/.local/share
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	wsDir := filepath.Join(dataDir, "websearch")
	if err := os.MkdirAll(wsDir, 0755); err != nil {
		return "", fmt.Errorf("creating data directory %s: %w", wsDir, err)
	}

	return wsDir, nil
}

// GetConfigDir returns the configuration directory for websearch
func GetConfigDir() (string, error) {
	// Use XDG_CONFIG_HOME if set, otherwise use ~/.config
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	wsConfigDir := filepath.Join(configDir, "websearch")
	if err := os.MkdirAll(wsConfigDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", wsConfigDir, err)
	}

	return wsConfigDir, nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
