package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/endomorphosis/websearch/pkg/search"
)

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the web through the cache tiers",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "provider",
				Usage: "Search provider (brave, github)",
				Value: defaultProvider,
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Number of results",
				Value: search.DefaultCount,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Result page offset",
			},
			&cli.StringFlag{
				Name:  "country",
				Usage: "Two-letter country code",
			},
			&cli.StringFlag{
				Name:  "safesearch",
				Usage: "Safesearch level (off, moderate, strict)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the raw JSON response",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			queryText := c.Args().First()
			if queryText == "" {
				return fmt.Errorf("a search query is required")
			}
			return runSearch(ctx, c, queryText)
		},
	}
}

func runSearch(ctx context.Context, c *cli.Command, queryText string) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}

	stack, err := buildStack(cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	svc, _, err := stack.service(c.String("provider"))
	if err != nil {
		return err
	}

	resp, err := svc.Search(ctx, search.Query{
		Text:       queryText,
		Count:      c.Int("count"),
		Offset:     c.Int("offset"),
		Country:    c.String("country"),
		Safesearch: c.String("safesearch"),
	})
	if err != nil {
		return describeSearchError(err)
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	printResponse(resp)
	return nil
}

// describeSearchError adds a hint for the common misconfiguration cases.
func describeSearchError(err error) error {
	if errors.Is(err, search.ErrMissingAPIKey) {
		return fmt.Errorf("%w (set api_key in the config file or the BRAVE_API_KEY environment variable)", err)
	}
	if ue, ok := search.AsUpstream(err); ok && ue.Kind == search.ErrorRateLimit {
		return fmt.Errorf("%w (the provider is rate limiting this key; cached queries still work)", err)
	}
	return err
}
