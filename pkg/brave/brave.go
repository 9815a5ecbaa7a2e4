// Package brave implements the live web search provider against the Brave
// Search API (or any endpoint speaking the same protocol).
package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/endomorphosis/websearch/pkg/log"
	"github.com/endomorphosis/websearch/pkg/search"
)

const (
	defaultEndpoint = "https://api.search.brave.com/res/v1/web/search"

	// API-imposed parameter limits.
	maxCount  = 20
	maxOffset = 9
)

// Config holds the resolved provider settings.
type Config struct {
	// APIKey is required; Fetch fails fast without it.
	APIKey string

	// Endpoint overrides the API URL, mostly for tests.
	Endpoint string

	// Timeout bounds each live call.
	Timeout time.Duration
}

// Client is the live fetcher. It implements search.Provider.
type Client struct {
	apiKey   string
	endpoint string
	httpc    *http.Client
	logger   *log.Logger
}

// New creates a Brave search client.
func New(cfg Config) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		httpc:    &http.Client{Timeout: timeout},
		logger:   log.ForService("brave"),
	}
}

func (c *Client) Name() string {
	return "brave"
}

func (c *Client) Limits() (int, int) {
	return maxCount, maxOffset
}

// apiResponse mirrors the subset of the API's response shape we consume.
type apiResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Fetch performs one live API call. Missing credentials fail before any
// network attempt; upstream failures come back as *search.UpstreamError.
func (c *Client) Fetch(ctx context.Context, q search.Query) ([]search.Result, map[string]any, error) {
	if c.apiKey == "" {
		return nil, nil, search.ErrMissingAPIKey
	}

	params := url.Values{
		"q":          {q.Text},
		"count":      {strconv.Itoa(q.Count)},
		"offset":     {strconv.Itoa(q.Offset)},
		"safesearch": {q.Safesearch},
	}
	if q.Country != "" {
		params.Set("country", q.Country)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	c.logger.Debugf("live fetch: q=%q count=%d offset=%d", q.Text, q.Count, q.Offset)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, nil, &search.UpstreamError{
			Kind:     search.ErrorTransport,
			Provider: c.Name(),
			Message:  err.Error(),
		}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Debugf("closing response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, &search.UpstreamError{
			Kind:     search.KindForStatus(resp.StatusCode),
			Provider: c.Name(),
			Status:   resp.StatusCode,
			Message:  http.StatusText(resp.StatusCode),
		}
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, nil, &search.UpstreamError{
			Kind:     search.ErrorTransport,
			Provider: c.Name(),
			Message:  fmt.Sprintf("decoding response: %v", err),
		}
	}

	results := make([]search.Result, 0, len(body.Web.Results))
	for _, r := range body.Web.Results {
		results = append(results, search.Result{
			Title:       r.Title,
			URL:         r.URL,
			Description: r.Description,
		})
	}
	return results, nil, nil
}
