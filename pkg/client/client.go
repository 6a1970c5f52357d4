// Package client is the Go SDK for the ecsync daemon's HTTP API. All
// methods are fail-fast: one request, no retries, errors returned to the
// caller.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound is returned when the daemon has no run with the given ID.
var ErrNotFound = errors.New("run not found")

// Client is the ecsync SDK client.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient returns a client for the daemon at endpoint. An empty endpoint
// means the default local daemon address, http://127.0.0.1:8090.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:8090"
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.endpoint+"/v1/health", nil)
	if err != nil {
		return Status{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Status{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return Status{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return Status{}, err
	}

	return status, nil
}

// ListRuns fetches recent runs from the daemon, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	url := fmt.Sprintf("%s/v1/runs?limit=%d", c.endpoint, limit)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var runs []Run
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		return nil, err
	}

	return runs, nil
}

// GetRun fetches one run with its batches and outcome counts.
func (c *Client) GetRun(ctx context.Context, runID string) (*RunDetail, error) {
	url := fmt.Sprintf("%s/v1/runs/%s", c.endpoint, runID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var detail RunDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, err
	}

	return &detail, nil
}

// GetSummary fetches the dependency summary stored with a run.
func (c *Client) GetSummary(ctx context.Context, runID string) (*Summary, error) {
	url := fmt.Sprintf("%s/v1/runs/%s/summary", c.endpoint, runID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var summary Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, err
	}

	return &summary, nil
}

// GetOutcomes fetches per-record outcomes for a run. status narrows to one
// outcome status ("created", "warning", "failed", "skipped"); empty means
// all.
func (c *Client) GetOutcomes(ctx context.Context, runID, status string) ([]RecordOutcome, error) {
	url := fmt.Sprintf("%s/v1/runs/%s/outcomes", c.endpoint, runID)
	if status != "" {
		url += "?status=" + status
	}
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var outcomes []RecordOutcome
	if err := json.NewDecoder(resp.Body).Decode(&outcomes); err != nil {
		return nil, err
	}

	return outcomes, nil
}

// Preview asks the daemon for a dry resolution of the given roster.
// Nothing is persisted and no records are created.
func (c *Client) Preview(ctx context.Context, preq PreviewRequest) (*Preview, error) {
	if len(preq.Source) == 0 {
		return nil, fmt.Errorf("invalid preview: empty source")
	}

	body, err := json.Marshal(preq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preview request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/v1/preview", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		// Surface the daemon's reason; it names the offending userid.
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("preview rejected: %s", strings.TrimSpace(string(b)))
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var preview Preview
	if err := json.NewDecoder(resp.Body).Decode(&preview); err != nil {
		return nil, err
	}

	return &preview, nil
}

// PreviewGraph asks the daemon for the reference graph of the given roster:
// employees as nodes, dependency fields as edges. Like Preview, nothing is
// persisted.
func (c *Client) PreviewGraph(ctx context.Context, preq PreviewRequest) (*PreviewGraph, error) {
	if len(preq.Source) == 0 {
		return nil, fmt.Errorf("invalid preview: empty source")
	}

	body, err := json.Marshal(preq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preview request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/v1/preview/graph", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("preview rejected: %s", strings.TrimSpace(string(b)))
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var pg PreviewGraph
	if err := json.NewDecoder(resp.Body).Decode(&pg); err != nil {
		return nil, err
	}

	return &pg, nil
}
