package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/endomorphosis/websearch/pkg/archive"
)

// HistoryCommand creates the history command
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Search or list archived results",
		ArgsUsage: "[query]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of rows",
				Value: 30,
			},
			&cli.BoolFlag{
				Name:  "queries",
				Usage: "List past queries instead of individual results",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print raw JSON",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runHistory(ctx, c)
		},
	}
}

func runHistory(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if cfg.Archive.Disabled {
		return fmt.Errorf("the archive is disabled in the configuration")
	}

	arch, err := archive.Open(cfg.ArchivePath())
	if err != nil {
		return err
	}
	defer func() {
		if err := arch.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close archive: %v\n", err)
		}
	}()

	limit := c.Int("limit")

	if c.Bool("queries") {
		entries, err := arch.History(ctx, limit)
		if err != nil {
			return fmt.Errorf("listing history: %w", err)
		}
		if c.Bool("json") {
			return printJSON(entries)
		}
		if len(entries) == 0 {
			fmt.Println(noDataStyle.Render("No archived queries yet"))
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s %s\n", titleStyle.Render(e.Query),
				metaStyle.Render(fmt.Sprintf("(%s, %d results, %s)", e.Provider, e.Results, formatTime(e.LastSeen))))
		}
		return nil
	}

	hits, err := arch.Search(ctx, c.Args().First(), limit)
	if err != nil {
		return fmt.Errorf("searching archive: %w", err)
	}
	if c.Bool("json") {
		return printJSON(hits)
	}
	if len(hits) == 0 {
		fmt.Println(noDataStyle.Render("No archived results found"))
		return nil
	}

	for i, h := range hits {
		fmt.Printf("%d. %s\n", i+1, titleStyle.Render(h.Title))
		fmt.Printf("   %s\n", urlStyle.Render(h.URL))
		if h.Description != "" {
			fmt.Printf("   %s\n", descStyle.Render(h.Description))
		}
		fmt.Printf("   %s\n", metaStyle.Render(fmt.Sprintf("%s · %q · %s", h.Provider, h.Query, formatTime(h.CreatedAt))))
		if i < len(hits)-1 {
			fmt.Println()
		}
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
