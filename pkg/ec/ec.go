// Package ec talks to the Employee Central OData upsert API. It chunks
// record batches under the platform's request ceiling, maps per-record
// upsert responses back onto the input order, and retries transient
// failures with exponential backoff.
package ec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/peoplehub/ecsync/pkg/client"
	"github.com/peoplehub/ecsync/pkg/employee"
)

const (
	// defaultChunkSize stays under the 1000-record OData ceiling.
	defaultChunkSize = 800

	defaultMaxRetries = 5

	upsertPath = "/odata/v2/upsert?$format=json"
)

// Config holds connection settings for an Employee Central tenant.
type Config struct {
	// BaseURL is the tenant API root, e.g. https://api.example.com.
	BaseURL string
	// AuthURL is the OAuth token endpoint.
	AuthURL string

	ClientID     string
	ClientSecret string
	CompanyID    string
	GrantType    string

	// ChunkSize caps records per upsert request. Defaults to 800.
	ChunkSize int
	// MaxRetries bounds attempts per chunk. Defaults to 5.
	MaxRetries int
	// Timeout applies per HTTP request.
	Timeout time.Duration
}

// Client creates employee records through the OData upsert endpoint.
type Client struct {
	baseURL    string
	chunkSize  int
	maxRetries int
	httpClient *http.Client
	tokens     *TokenSource
	backoff    client.BackoffStrategy
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient wires a Client from config, applying defaults for unset knobs.
func NewClient(cfg Config) *Client {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.GrantType == "" {
		cfg.GrantType = "urn:ietf:params:oauth:grant-type:saml2-bearer"
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		chunkSize:  cfg.ChunkSize,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     NewTokenSource(cfg.AuthURL, cfg.ClientID, cfg.ClientSecret, cfg.CompanyID, cfg.GrantType),
		backoff:    client.DefaultBackoff(),
		sleep:      sleepCtx,
	}
}

// upsertEntry is one element of the OData response envelope.
type upsertEntry struct {
	Index    int    `json:"index"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Key      string `json:"key"`
	HTTPCode int    `json:"httpCode"`
}

type upsertEnvelope struct {
	D []upsertEntry `json:"d"`
}

// Create upserts the given records in input order, one Result per record.
// Records are sent in chunks; a chunk that exhausts its retries yields
// failed Results for its records rather than an error, so partial progress
// survives a flaky tenant.
func (c *Client) Create(ctx context.Context, records []employee.Record) ([]Result, error) {
	results := make([]Result, 0, len(records))
	for start := 0; start < len(records); start += c.chunkSize {
		end := start + c.chunkSize
		if end > len(records) {
			end = len(records)
		}
		chunkResults, err := c.upsertChunk(ctx, records[start:end])
		if err != nil {
			return results, err
		}
		results = append(results, chunkResults...)
	}
	return results, nil
}

// upsertChunk sends one chunk, retrying transient failures. It returns an
// error only for context cancellation or request construction problems.
func (c *Client) upsertChunk(ctx context.Context, records []employee.Record) ([]Result, error) {
	payload, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode upsert payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff.Next(attempt-1)); err != nil {
				return nil, err
			}
		}

		results, retry, err := c.attemptUpsert(ctx, payload, records, attempt)
		if err == nil {
			return results, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !retry {
			break
		}
	}

	// Retries exhausted or a terminal rejection: report every record in
	// the chunk as failed instead of aborting the run.
	out := make([]Result, len(records))
	for i, r := range records {
		out[i] = Result{
			UserID:   r.UserID,
			Status:   StatusFailed,
			Message:  fmt.Sprintf("upsert failed: %v", lastErr),
			Attempts: c.maxRetries,
		}
	}
	return out, nil
}

// attemptUpsert performs a single HTTP round trip. The bool reports whether
// the failure is worth retrying.
func (c *Client) attemptUpsert(ctx context.Context, payload []byte, records []employee.Record, attempt int) ([]Result, bool, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+upsertPath, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("failed to build upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("upsert request failed: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, true, fmt.Errorf("failed to read upsert response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		// The tenant signals stale tokens with 403; refresh and retry.
		c.tokens.Invalidate()
		return nil, true, fmt.Errorf("upsert HTTP %d", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("upsert HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, false, fmt.Errorf("upsert rejected with HTTP %d: %s", resp.StatusCode, truncateBody(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, true, fmt.Errorf("upsert HTTP %d", resp.StatusCode)
	}

	var envelope upsertEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, true, fmt.Errorf("failed to parse upsert response: %w", err)
	}

	// A parsed envelope is terminal: per-record failures are reported in
	// the results, never replayed.
	return mapEntries(records, envelope.D, attempt+1), false, nil
}

// mapEntries folds response entries onto the chunk's records. Entries carry
// their input position in index; records without an entry fail.
func mapEntries(records []employee.Record, entries []upsertEntry, attempts int) []Result {
	results := make([]Result, len(records))
	for i, r := range records {
		results[i] = Result{
			UserID:   r.UserID,
			Status:   StatusFailed,
			Message:  "no response entry for record",
			Attempts: attempts,
		}
	}
	for _, e := range entries {
		if e.Index < 0 || e.Index >= len(records) {
			continue
		}
		results[e.Index] = Result{
			UserID:   records[e.Index].UserID,
			Status:   entryStatus(e),
			Message:  e.Message,
			Key:      e.Key,
			HTTPCode: e.HTTPCode,
			Attempts: attempts,
		}
	}
	return results
}

// entryStatus maps the OData status vocabulary onto ours. ERROR means
// failed, a message mentioning Warning downgrades success to warning, and
// anything else counts as created.
func entryStatus(e upsertEntry) Status {
	switch {
	case strings.EqualFold(e.Status, "ERROR"):
		return StatusFailed
	case strings.Contains(e.Message, "Warning"):
		return StatusWarning
	default:
		return StatusCreated
	}
}

func truncateBody(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
