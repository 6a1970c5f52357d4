package ec

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/peoplehub/ecsync/pkg/client"
)

// expirySlack is subtracted from a token's lifetime so we refresh before
// the server-side cutoff.
const expirySlack = 30 * time.Second

// TokenSource fetches OAuth assertion tokens and caches them until close to
// expiry. Safe for concurrent use.
type TokenSource struct {
	authURL      string
	clientID     string
	assertion    string
	companyID    string
	grantType    string
	maxRetries   int
	httpClient   *http.Client
	backoff      client.BackoffStrategy
	sleep        func(ctx context.Context, d time.Duration) error
	mu           sync.Mutex
	cachedToken  string
	cachedExpiry time.Time
}

// NewTokenSource builds a token source for the given auth endpoint.
func NewTokenSource(authURL, clientID, assertion, companyID, grantType string) *TokenSource {
	return &TokenSource{
		authURL:    authURL,
		clientID:   clientID,
		assertion:  assertion,
		companyID:  companyID,
		grantType:  grantType,
		maxRetries: 3,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		backoff:    client.DefaultBackoff(),
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Token returns a valid access token, fetching a new one when the cached
// token is absent or about to expire.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cachedToken != "" && time.Now().Before(t.cachedExpiry) {
		return t.cachedToken, nil
	}

	token, expiresIn, err := t.fetch(ctx)
	if err != nil {
		return "", err
	}
	t.cachedToken = token
	t.cachedExpiry = time.Now().Add(time.Duration(expiresIn)*time.Second - expirySlack)
	return token, nil
}

// Invalidate drops the cached token so the next Token call fetches fresh.
func (t *TokenSource) Invalidate() {
	t.mu.Lock()
	t.cachedToken = ""
	t.mu.Unlock()
}

func (t *TokenSource) fetch(ctx context.Context) (string, int, error) {
	form := url.Values{
		"client_id":  {t.clientID},
		"assertion":  {t.assertion},
		"grant_type": {t.grantType},
		"company_id": {t.companyID},
	}

	var lastErr error
	for attempt := 0; attempt < t.maxRetries; attempt++ {
		if attempt > 0 {
			if err := t.sleep(ctx, t.backoff.Next(attempt-1)); err != nil {
				return "", 0, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.authURL, strings.NewReader(form.Encode()))
		if err != nil {
			return "", 0, fmt.Errorf("failed to build token request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := t.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("auth HTTP %d", resp.StatusCode)
			continue
		}

		var tokenResp struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		}
		if err := json.Unmarshal(body, &tokenResp); err != nil {
			return "", 0, fmt.Errorf("failed to parse token response: %w", err)
		}
		if tokenResp.AccessToken == "" {
			return "", 0, fmt.Errorf("no access_token in auth response")
		}
		if tokenResp.ExpiresIn <= 0 {
			tokenResp.ExpiresIn = 3600
		}
		return tokenResp.AccessToken, tokenResp.ExpiresIn, nil
	}
	return "", 0, fmt.Errorf("failed to obtain token after %d attempts: %w", t.maxRetries, lastErr)
}
