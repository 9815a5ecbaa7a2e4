package ipfscache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// Client is a minimal IPFS HTTP RPC client covering the primitives the
// distributed cache needs: add, cat, pin add/rm/ls, repo gc and the id
// probe. Every call is bounded by the configured timeout.
type Client struct {
	apiURL  string
	httpc   *http.Client
	timeout time.Duration
}

// NewClient creates a client for the daemon RPC endpoint, e.g.
// http://127.0.0.1:5001.
func NewClient(apiURL string, timeout time.Duration) *Client {
	return &Client{
		apiURL:  apiURL,
		httpc:   &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// post issues an RPC call. The Kubo API uses POST for everything.
func (c *Client) post(ctx context.Context, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	u := c.apiURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		cancel()
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	// Tie the context's lifetime to the body.
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// ID probes daemon reachability.
func (c *Client) ID(ctx context.Context) error {
	resp, err := c.post(ctx, "/api/v0/id", nil, nil, "")
	if err != nil {
		return err
	}
	defer drainAndClose(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ipfs id: status %d", resp.StatusCode)
	}
	return nil
}

// Add stores a blob and returns its content address.
func (c *Client) Add(ctx context.Context, data []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "blob")
	if err != nil {
		return "", fmt.Errorf("building add request: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("building add request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("building add request: %w", err)
	}

	query := url.Values{"pin": {"false"}}
	resp, err := c.post(ctx, "/api/v0/add", query, &buf, writer.FormDataContentType())
	if err != nil {
		return "", fmt.Errorf("ipfs add: %w", err)
	}
	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ipfs add: status %d", resp.StatusCode)
	}

	var result struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ipfs add: decoding response: %w", err)
	}
	if result.Hash == "" {
		return "", fmt.Errorf("ipfs add: empty hash in response")
	}
	return result.Hash, nil
}

// Cat retrieves a blob by content address.
func (c *Client) Cat(ctx context.Context, cid string) ([]byte, error) {
	resp, err := c.post(ctx, "/api/v0/cat", url.Values{"arg": {cid}}, nil, "")
	if err != nil {
		return nil, fmt.Errorf("ipfs cat %s: %w", cid, err)
	}
	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ipfs cat %s: status %d", cid, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ipfs cat %s: reading body: %w", cid, err)
	}
	return data, nil
}

// PinAdd marks a content address as exempt from garbage collection.
func (c *Client) PinAdd(ctx context.Context, cid string) error {
	resp, err := c.post(ctx, "/api/v0/pin/add", url.Values{"arg": {cid}}, nil, "")
	if err != nil {
		return fmt.Errorf("ipfs pin add %s: %w", cid, err)
	}
	defer drainAndClose(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ipfs pin add %s: status %d", cid, resp.StatusCode)
	}
	return nil
}

// PinRm removes a pin.
func (c *Client) PinRm(ctx context.Context, cid string) error {
	resp, err := c.post(ctx, "/api/v0/pin/rm", url.Values{"arg": {cid}}, nil, "")
	if err != nil {
		return fmt.Errorf("ipfs pin rm %s: %w", cid, err)
	}
	defer drainAndClose(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ipfs pin rm %s: status %d", cid, resp.StatusCode)
	}
	return nil
}

// PinLs lists pinned content addresses.
func (c *Client) PinLs(ctx context.Context) ([]string, error) {
	resp, err := c.post(ctx, "/api/v0/pin/ls", url.Values{"type": {"recursive"}}, nil, "")
	if err != nil {
		return nil, fmt.Errorf("ipfs pin ls: %w", err)
	}
	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ipfs pin ls: status %d", resp.StatusCode)
	}

	var result struct {
		Keys map[string]struct {
			Type string `json:"Type"`
		} `json:"Keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ipfs pin ls: decoding response: %w", err)
	}

	cids := make([]string, 0, len(result.Keys))
	for cid := range result.Keys {
		cids = append(cids, cid)
	}
	return cids, nil
}

// RepoGC triggers garbage collection and returns how many objects the
// daemon removed. The endpoint streams one JSON object per removed key.
func (c *Client) RepoGC(ctx context.Context) (int, error) {
	resp, err := c.post(ctx, "/api/v0/repo/gc", nil, nil, "")
	if err != nil {
		return 0, fmt.Errorf("ipfs repo gc: %w", err)
	}
	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ipfs repo gc: status %d", resp.StatusCode)
	}

	removed := 0
	dec := json.NewDecoder(resp.Body)
	for {
		var entry struct {
			Key map[string]string `json:"Key"`
		}
		if err := dec.Decode(&entry); err == io.EOF {
			break
		} else if err != nil {
			return removed, fmt.Errorf("ipfs repo gc: decoding stream: %w", err)
		}
		if len(entry.Key) > 0 {
			removed++
		}
	}
	return removed, nil
}
