// Package github implements a repository search provider backed by the
// GitHub search API. It speaks the same gateway contract as the web search
// provider, so results flow through the same cache tiers.
package github

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"

	"github.com/endomorphosis/websearch/pkg/log"
	"github.com/endomorphosis/websearch/pkg/search"
)

const (
	// GitHub allows up to 100 results per page; the gateway maps offset
	// to a page number, and the search API stops serving past the first
	// thousand results anyway.
	maxCount  = 100
	maxOffset = 9
)

// Config holds the resolved provider settings.
type Config struct {
	// Token is optional; unauthenticated requests work with a lower
	// rate limit.
	Token string

	// Timeout bounds each API call.
	Timeout time.Duration
}

// Client is the GitHub search provider. It implements search.Provider.
type Client struct {
	gh     *github.Client
	logger *log.Logger
}

// New creates a GitHub search client, authenticated when a token is set.
func New(cfg Config) *Client {
	var client *github.Client
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		tc := oauth2.NewClient(context.Background(), ts)
		if cfg.Timeout != 0 {
			tc.Timeout = cfg.Timeout
		}
		client = github.NewClient(tc)
	} else {
		client = github.NewClient(nil)
	}

	return &Client{
		gh:     client,
		logger: log.ForService("github"),
	}
}

func (c *Client) Name() string {
	return "github"
}

func (c *Client) Limits() (int, int) {
	return maxCount, maxOffset
}

// Fetch runs one repository search. Offset selects the result page.
func (c *Client) Fetch(ctx context.Context, q search.Query) ([]search.Result, map[string]any, error) {
	opts := &github.SearchOptions{
		ListOptions: github.ListOptions{
			PerPage: q.Count,
			Page:    q.Offset + 1,
		},
	}

	c.logger.Debugf("repository search: q=%q page=%d per_page=%d", q.Text, opts.Page, opts.PerPage)

	result, _, err := c.gh.Search.Repositories(ctx, q.Text, opts)
	if err != nil {
		return nil, nil, c.mapError(err)
	}

	results := make([]search.Result, 0, len(result.Repositories))
	for _, repo := range result.Repositories {
		results = append(results, search.Result{
			Title:       repo.GetFullName(),
			URL:         repo.GetHTMLURL(),
			Description: repo.GetDescription(),
		})
	}

	extra := map[string]any{
		"total": int64(result.GetTotal()),
	}
	return results, extra, nil
}

func (c *Client) mapError(err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &search.UpstreamError{
			Kind:     search.ErrorRateLimit,
			Provider: c.Name(),
			Status:   429,
			Message:  "rate limit exceeded",
		}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &search.UpstreamError{
			Kind:     search.ErrorRateLimit,
			Provider: c.Name(),
			Status:   429,
			Message:  "secondary rate limit",
		}
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		status := respErr.Response.StatusCode
		return &search.UpstreamError{
			Kind:     search.KindForStatus(status),
			Provider: c.Name(),
			Status:   status,
			Message:  respErr.Message,
		}
	}

	return &search.UpstreamError{
		Kind:     search.ErrorTransport,
		Provider: c.Name(),
		Message:  fmt.Sprintf("searching repositories: %v", err),
	}
}
