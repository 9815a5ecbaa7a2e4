package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/endomorphosis/websearch/pkg/archive"
)

// StatsCommand creates the stats command
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show cache and archive statistics",
		Action: func(ctx context.Context, c *cli.Command) error {
			return runStats(ctx, c)
		},
	}
}

func runStats(ctx context.Context, c *cli.Command) error {
	fmt.Println(headerStyle.Render("Local caches"))
	if err := runCacheStats(c); err != nil {
		return err
	}

	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}

	if cfg.IPFS.Enabled {
		fmt.Println()
		fmt.Println(headerStyle.Render("Distributed cache"))
		if err := runIPFSStats(ctx, c); err != nil {
			return err
		}
	}

	if !cfg.Archive.Disabled {
		arch, err := archive.Open(cfg.ArchivePath())
		if err != nil {
			return err
		}
		defer func() {
			if err := arch.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close archive: %v\n", err)
			}
		}()

		st, err := arch.Stats(ctx)
		if err != nil {
			return fmt.Errorf("reading archive stats: %w", err)
		}

		fmt.Println()
		fmt.Println(headerStyle.Render("Archive"))
		fmt.Printf("Path:    %s\n", st.Path)
		fmt.Printf("Results: %d\n", st.Results)
		fmt.Printf("Queries: %d\n", st.Queries)
		fmt.Printf("Size:    %s\n", formatBytes(st.SizeBytes))
	}
	return nil
}
