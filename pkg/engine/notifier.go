package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/peoplehub/ecsync/pkg/store"
)

const (
	// notifyTimeout is the HTTP client timeout for webhook requests.
	notifyTimeout = 5 * time.Second
	// notifyRetries is the number of delivery attempts per URL.
	notifyRetries = 3
)

// Notifier delivers finished-run payloads to registered webhook URLs.
type Notifier struct {
	urls      []string
	client    *http.Client
	retryWait time.Duration
}

// NewNotifier creates a notifier for the given webhook URLs.
func NewNotifier(urls []string) *Notifier {
	return &Notifier{
		urls:      urls,
		client:    &http.Client{Timeout: notifyTimeout},
		retryWait: time.Second,
	}
}

// RunFinished posts the run header, summary included, to every webhook.
// Delivery failures are logged, never returned: a dead webhook must not
// fail the run that produced the payload.
func (n *Notifier) RunFinished(ctx context.Context, run *store.Run) {
	if n == nil || len(n.urls) == 0 {
		return
	}

	payload, err := json.Marshal(run)
	if err != nil {
		log.Printf("Failed to marshal run %s for notification: %v", run.RunID, err)
		return
	}

	for _, url := range n.urls {
		if err := n.send(ctx, url, run.RunID, payload); err != nil {
			log.Printf("Failed to notify %s for run %s: %v", url, run.RunID, err)
		}
	}
}

// send POSTs the payload, retrying transient failures with a flat backoff.
func (n *Notifier) send(ctx context.Context, url, runID string, payload []byte) error {
	var lastErr error
	for i := 0; i < notifyRetries; i++ {
		if i > 0 {
			// Linear backoff: 1s, 2s
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * n.retryWait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "ecsync-notifier/1.0")
		req.Header.Set("X-Ecsync-Run-ID", runID)
		req.Header.Set("X-Ecsync-Event", "run.finished")

		resp, err := n.client.Do(req)
		if err != nil {
			lastErr = err
			continue // Retry on network error
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("webhook status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return lastErr // Don't retry client errors
		}
	}

	return fmt.Errorf("max retries reached: %w", lastErr)
}
