// Package client is the Go client for the syncbridge HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/syncbridge/syncbridge/pkg/types"
)

// Client is an HTTP client for the syncbridge API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new syncbridge API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// doRequest performs an HTTP request with API key authentication.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// decode reads a JSON response into out, converting non-2xx statuses into
// errors carrying the response body.
func decode(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Health returns the engine health report. An unhealthy engine is a valid
// response, not an error.
func (c *Client) Health(ctx context.Context) (*types.HealthReport, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var report types.HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &report, nil
}

// Metrics bundles the sync and enrichment counters.
type Metrics struct {
	Sync       types.SyncMetrics     `json:"sync"`
	Enrichment types.EnrichmentStats `json:"enrichment"`
}

// GetMetrics returns the current sync and enrichment counters.
func (c *Client) GetMetrics(ctx context.Context) (*Metrics, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/metrics", nil)
	if err != nil {
		return nil, err
	}
	var m Metrics
	if err := decode(resp, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// entriesResponse is the wire shape of GET /entries.
type entriesResponse struct {
	Entries []types.SyncEntry `json:"entries"`
	Count   int               `json:"count"`
}

// ListEntries returns the tracked entries, optionally filtered by status
// (pass "" for all).
func (c *Client) ListEntries(ctx context.Context, status string) ([]types.SyncEntry, error) {
	path := "/entries"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out entriesResponse
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// ForceSyncResult reports what an immediate sync pass did.
type ForceSyncResult struct {
	EventsObserved int `json:"eventsObserved"`
	EntriesRetried int `json:"entriesRetried"`
}

// ForceSync triggers an immediate poll of both sides plus a retry sweep.
func (c *Client) ForceSync(ctx context.Context) (*ForceSyncResult, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/sync/force", nil)
	if err != nil {
		return nil, err
	}
	var out ForceSyncResult
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProcessBacklog drains the OCR queue now and returns how many documents
// were analyzed.
func (c *Client) ProcessBacklog(ctx context.Context) (int, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/ocr/backlog", nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		Processed int `json:"processed"`
	}
	if err := decode(resp, &out); err != nil {
		return 0, err
	}
	return out.Processed, nil
}

// ResolveConflict settles a conflicted entry in favor of the given side.
func (c *Client) ResolveConflict(ctx context.Context, fileID string, winner types.Side) error {
	resp, err := c.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/conflicts/%s/resolve", url.PathEscape(fileID)),
		map[string]string{"winner": string(winner)})
	if err != nil {
		return err
	}
	return decode(resp, nil)
}
