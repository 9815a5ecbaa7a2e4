package cmd

import (
	"fmt"

	"github.com/endomorphosis/websearch/pkg/archive"
	"github.com/endomorphosis/websearch/pkg/brave"
	"github.com/endomorphosis/websearch/pkg/config"
	"github.com/endomorphosis/websearch/pkg/filecache"
	"github.com/endomorphosis/websearch/pkg/github"
	"github.com/endomorphosis/websearch/pkg/ipfscache"
	"github.com/endomorphosis/websearch/pkg/log"
	"github.com/endomorphosis/websearch/pkg/search"
)

const defaultProvider = "brave"

var providerNames = []string{"brave", "github"}

// stack is the fully wired gateway: one service per provider, sharing the
// archive but each with its own cache files.
type stack struct {
	services map[string]*search.Service
	caches   map[string]*filecache.Cache
	dists    map[string]ipfscache.Cache
	archive  *archive.Archive
	logger   *log.Logger
}

// newProvider builds the live fetcher for a provider name.
func newProvider(cfg *config.Config, name string) (search.Provider, error) {
	switch name {
	case "brave":
		return brave.New(brave.Config{
			APIKey:   cfg.Search.APIKey,
			Endpoint: cfg.Search.Endpoint,
			Timeout:  cfg.Search.Timeout.Duration,
		}), nil
	case "github":
		return github.New(github.Config{
			Token:   cfg.GitHub.Token,
			Timeout: cfg.Search.Timeout.Duration,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (have: %v)", name, providerNames)
	}
}

// buildStack wires every provider with its cache tiers and the shared
// archive. Callers must Close the stack when done.
func buildStack(cfg *config.Config) (*stack, error) {
	s := &stack{
		services: make(map[string]*search.Service),
		caches:   make(map[string]*filecache.Cache),
		dists:    make(map[string]ipfscache.Cache),
		logger:   log.ForService("websearch"),
	}

	if !cfg.Archive.Disabled {
		arch, err := archive.Open(cfg.ArchivePath())
		if err != nil {
			return nil, fmt.Errorf("opening archive: %w", err)
		}
		s.archive = arch
	}

	for _, name := range providerNames {
		provider, err := newProvider(cfg, name)
		if err != nil {
			s.Close()
			return nil, err
		}

		cache := filecache.New(filecache.Config{
			Path:       cfg.CachePathFor(name),
			TTL:        cfg.Search.CacheTTL.Duration,
			MaxEntries: cfg.Search.CacheMaxEntries,
			Disabled:   cfg.Search.CacheDisabled,
		})
		s.caches[name] = cache

		dist := ipfscache.New(ipfscache.Config{
			Enabled:    cfg.IPFS.Enabled,
			APIURL:     cfg.IPFS.APIURL,
			IndexPath:  cfg.IPFSIndexPathFor(name),
			TTL:        cfg.IPFS.CacheTTL.Duration,
			PinOnWrite: cfg.IPFS.PinOnWrite,
			Timeout:    cfg.IPFS.Timeout.Duration,
		})
		s.dists[name] = dist

		var archiver search.Archiver
		if s.archive != nil {
			archiver = s.archive
		}
		s.services[name] = search.NewService(provider, search.Options{
			Local:   cache,
			Dist:    dist,
			Archive: archiver,
		})
	}

	return s, nil
}

func (s *stack) Close() {
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			s.logger.Warnf("closing archive: %v", err)
		}
	}
}

// service returns the gateway for a provider name, defaulting when empty.
func (s *stack) service(name string) (*search.Service, string, error) {
	if name == "" {
		name = defaultProvider
	}
	svc, ok := s.services[name]
	if !ok {
		return nil, "", fmt.Errorf("unknown provider %q (have: %v)", name, providerNames)
	}
	return svc, name, nil
}

func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
