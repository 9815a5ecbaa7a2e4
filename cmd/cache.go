package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/endomorphosis/websearch/pkg/filecache"
)

// CacheCommand creates the cache command with its subcommands
func CacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and manage the local file caches",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show cache statistics per provider",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runCacheStats(c)
				},
			},
			{
				Name:  "clear",
				Usage: "Delete cached entries",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "provider",
						Usage: "Clear only this provider's cache",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runCacheClear(c)
				},
			},
		},
	}
}

func newCacheFor(c *cli.Command, provider string) (*filecache.Cache, error) {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	return filecache.New(filecache.Config{
		Path:       cfg.CachePathFor(provider),
		TTL:        cfg.Search.CacheTTL.Duration,
		MaxEntries: cfg.Search.CacheMaxEntries,
		Disabled:   cfg.Search.CacheDisabled,
	}), nil
}

func runCacheStats(c *cli.Command) error {
	for i, provider := range providerNames {
		cache, err := newCacheFor(c, provider)
		if err != nil {
			return err
		}
		stats := cache.Stats()

		if i > 0 {
			fmt.Println()
		}
		fmt.Println(headerStyle.Render(provider))
		fmt.Printf("Path:    %s\n", stats.Path)
		if !stats.Exists {
			fmt.Println(noDataStyle.Render("No cache file yet"))
			continue
		}
		fmt.Printf("Entries: %d\n", stats.EntryCount)
		fmt.Printf("Size:    %s\n", formatBytes(stats.SizeBytes))
		fmt.Printf("TTL:     %s\n", formatDuration(time.Duration(stats.TTLSeconds)*time.Second))
		if stats.OldestTS > 0 {
			fmt.Printf("Oldest:  %s\n", formatTime(time.Unix(stats.OldestTS, 0)))
			fmt.Printf("Newest:  %s\n", formatTime(time.Unix(stats.NewestTS, 0)))
		}
		if !stats.Locked {
			fmt.Println(metaStyle.Render("Running without file locking"))
		}
	}
	return nil
}

func runCacheClear(c *cli.Command) error {
	providers := providerNames
	if name := c.String("provider"); name != "" {
		providers = []string{name}
	}

	for _, provider := range providers {
		cache, err := newCacheFor(c, provider)
		if err != nil {
			return err
		}
		result := cache.Clear()
		switch {
		case result.Deleted:
			fmt.Printf("%s: cache deleted, freed %s\n", provider, formatBytes(result.FreedBytes))
		case result.Truncated:
			fmt.Printf("%s: cache truncated, freed %s\n", provider, formatBytes(result.FreedBytes))
		default:
			fmt.Printf("%s: nothing to clear\n", provider)
		}
	}
	return nil
}
