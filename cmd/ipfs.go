package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/endomorphosis/websearch/pkg/ipfscache"
)

// IPFSCommand creates the ipfs command with its subcommands
func IPFSCommand() *cli.Command {
	return &cli.Command{
		Name:  "ipfs",
		Usage: "Inspect and manage the distributed cache tier",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show distributed cache statistics per provider",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runIPFSStats(ctx, c)
				},
			},
			{
				Name:  "clear-index",
				Usage: "Drop the local cid index (pinned blobs survive)",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runIPFSClearIndex(ctx, c)
				},
			},
			{
				Name:  "gc",
				Usage: "Run the daemon's garbage collector",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runIPFSGC(ctx, c)
				},
			},
			{
				Name:  "pin",
				Usage: "Manage pinned cache blobs",
				Commands: []*cli.Command{
					{
						Name:  "ls",
						Usage: "List pinned blobs",
						Action: func(ctx context.Context, c *cli.Command) error {
							return runIPFSPinLs(ctx, c)
						},
					},
					{
						Name:      "add",
						Usage:     "Pin a blob by cid",
						ArgsUsage: "<cid>",
						Action: func(ctx context.Context, c *cli.Command) error {
							return runIPFSPin(ctx, c, true)
						},
					},
					{
						Name:      "rm",
						Usage:     "Unpin a blob by cid",
						ArgsUsage: "<cid>",
						Action: func(ctx context.Context, c *cli.Command) error {
							return runIPFSPin(ctx, c, false)
						},
					},
				},
			},
		},
	}
}

// newDistFor builds the distributed tier for one provider. The command layer
// forces Enabled so administrative commands work even when searches run with
// the tier off.
func newDistFor(c *cli.Command, provider string) (ipfscache.Cache, error) {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	return ipfscache.New(ipfscache.Config{
		Enabled:    true,
		APIURL:     cfg.IPFS.APIURL,
		IndexPath:  cfg.IPFSIndexPathFor(provider),
		TTL:        cfg.IPFS.CacheTTL.Duration,
		PinOnWrite: cfg.IPFS.PinOnWrite,
		Timeout:    cfg.IPFS.Timeout.Duration,
	}), nil
}

func runIPFSStats(ctx context.Context, c *cli.Command) error {
	for i, provider := range providerNames {
		dist, err := newDistFor(c, provider)
		if err != nil {
			return err
		}
		stats := dist.Stats(ctx)

		if i > 0 {
			fmt.Println()
		}
		fmt.Println(headerStyle.Render(provider))
		fmt.Printf("Daemon:    %s\n", stats.APIURL)
		if !stats.Available {
			fmt.Println(noDataStyle.Render("Daemon unreachable"))
		}
		fmt.Printf("Index:     %s\n", stats.IndexPath)
		fmt.Printf("Entries:   %d\n", stats.Entries)
		fmt.Printf("TTL:       %ds\n", stats.TTLSeconds)
		fmt.Printf("Pinning:   %v\n", stats.PinOnWrite)
	}
	return nil
}

func runIPFSClearIndex(ctx context.Context, c *cli.Command) error {
	for _, provider := range providerNames {
		dist, err := newDistFor(c, provider)
		if err != nil {
			return err
		}
		count, err := dist.ClearIndex()
		if err != nil {
			return fmt.Errorf("clearing %s index: %w", provider, err)
		}
		fmt.Printf("%s: dropped %d index entries\n", provider, count)
	}
	return nil
}

func runIPFSGC(ctx context.Context, c *cli.Command) error {
	dist, err := newDistFor(c, defaultProvider)
	if err != nil {
		return err
	}
	removed, err := dist.GC(ctx)
	if err != nil {
		return fmt.Errorf("running garbage collection: %w", err)
	}
	fmt.Printf("Garbage collected %d objects\n", removed)
	return nil
}

func runIPFSPinLs(ctx context.Context, c *cli.Command) error {
	dist, err := newDistFor(c, defaultProvider)
	if err != nil {
		return err
	}
	cids, err := dist.Pins(ctx)
	if err != nil {
		return fmt.Errorf("listing pins: %w", err)
	}
	if len(cids) == 0 {
		fmt.Println(noDataStyle.Render("No pinned blobs"))
		return nil
	}
	for _, cid := range cids {
		fmt.Println(cid)
	}
	return nil
}

func runIPFSPin(ctx context.Context, c *cli.Command, pin bool) error {
	cid := c.Args().First()
	if cid == "" {
		return fmt.Errorf("a cid is required")
	}

	dist, err := newDistFor(c, defaultProvider)
	if err != nil {
		return err
	}

	if pin {
		if err := dist.Pin(ctx, cid); err != nil {
			return fmt.Errorf("pinning %s: %w", cid, err)
		}
		fmt.Printf("Pinned %s\n", cid)
		return nil
	}
	if err := dist.Unpin(ctx, cid); err != nil {
		return fmt.Errorf("unpinning %s: %w", cid, err)
	}
	fmt.Printf("Unpinned %s\n", cid)
	return nil
}
