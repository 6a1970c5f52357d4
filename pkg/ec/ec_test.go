package ec

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/peoplehub/ecsync/pkg/employee"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

// tokenHandler serves a static bearer token and counts requests.
func tokenHandler(count *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(count, 1)
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-1","expires_in":3600}`)
	}
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c := NewClient(Config{
		BaseURL:      server.URL,
		AuthURL:      server.URL + "/token",
		ClientID:     "cid",
		ClientSecret: "assertion",
		CompanyID:    "acme",
	})
	c.sleep = noSleep
	c.tokens.sleep = noSleep
	return c
}

func TestTokenSourceCachesToken(t *testing.T) {
	var calls int32
	server := httptest.NewServer(tokenHandler(&calls))
	defer server.Close()

	ts := NewTokenSource(server.URL, "cid", "secret", "acme", "grant")
	ts.sleep = noSleep

	tok, err := ts.Token(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if tok != "tok-1" {
		t.Errorf("Expected token tok-1, got %s", tok)
	}
	if _, err := ts.Token(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("Expected 1 auth request, got %d", n)
	}

	ts.Invalidate()
	if _, err := ts.Token(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("Expected 2 auth requests after invalidate, got %d", n)
	}
}

func TestTokenSourceRefreshesExpired(t *testing.T) {
	var calls int32
	server := httptest.NewServer(tokenHandler(&calls))
	defer server.Close()

	ts := NewTokenSource(server.URL, "cid", "secret", "acme", "grant")
	ts.sleep = noSleep

	if _, err := ts.Token(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	ts.mu.Lock()
	ts.cachedExpiry = time.Now().Add(-time.Minute)
	ts.mu.Unlock()

	if _, err := ts.Token(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("Expected 2 auth requests, got %d", n)
	}
}

func TestTokenSourceRetriesServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"access_token":"tok-2","expires_in":60}`)
	}))
	defer server.Close()

	ts := NewTokenSource(server.URL, "cid", "secret", "acme", "grant")
	ts.sleep = noSleep

	tok, err := ts.Token(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if tok != "tok-2" {
		t.Errorf("Expected token tok-2, got %s", tok)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("Expected 2 auth requests, got %d", n)
	}
}

func TestTokenSourceSendsForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("Expected form body, got error %v", err)
		}
		for key, want := range map[string]string{
			"client_id":  "cid",
			"assertion":  "secret",
			"grant_type": "grant",
			"company_id": "acme",
		} {
			if got := r.PostFormValue(key); got != want {
				t.Errorf("Expected %s=%s, got %s", key, want, got)
			}
		}
		fmt.Fprint(w, `{"access_token":"tok-3"}`)
	}))
	defer server.Close()

	ts := NewTokenSource(server.URL, "cid", "secret", "acme", "grant")
	ts.sleep = noSleep

	if _, err := ts.Token(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	// Missing expires_in falls back to an hour.
	ts.mu.Lock()
	remaining := time.Until(ts.cachedExpiry)
	ts.mu.Unlock()
	if remaining < 50*time.Minute {
		t.Errorf("Expected ~1h cache lifetime, got %v", remaining)
	}
}

func TestCreateMapsPerRecordStatus(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(&tokenCalls))
	mux.HandleFunc("/odata/v2/upsert", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Expected Authorization Bearer tok-1, got %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"d":[
			{"index":0,"status":"OK","key":"userId=alice","httpCode":200},
			{"index":1,"status":"ERROR","message":"duplicate record","httpCode":400},
			{"index":2,"status":"OK","message":"Warning: manager inactive","httpCode":200}
		]}`)
	})

	c := newTestClient(t, mux)

	records := []employee.Record{
		{UserID: "alice"},
		{UserID: "bob"},
		{UserID: "carol"},
		{UserID: "dave"},
	}
	results, err := c.Create(context.Background(), records)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("Expected 4 results, got %d", len(results))
	}

	if results[0].Status != StatusCreated || results[0].Key != "userId=alice" {
		t.Errorf("Expected alice created with key, got %+v", results[0])
	}
	if results[1].Status != StatusFailed || results[1].Message != "duplicate record" {
		t.Errorf("Expected bob failed, got %+v", results[1])
	}
	if results[2].Status != StatusWarning {
		t.Errorf("Expected carol warning, got %+v", results[2])
	}
	// dave got no response entry at all.
	if results[3].Status != StatusFailed {
		t.Errorf("Expected dave failed, got %+v", results[3])
	}
	for i, want := range []string{"alice", "bob", "carol", "dave"} {
		if results[i].UserID != want {
			t.Errorf("Expected result %d for %s, got %s", i, want, results[i].UserID)
		}
	}
}

func TestCreateChunksRequests(t *testing.T) {
	var tokenCalls int32
	var chunks [][]string

	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(&tokenCalls))
	mux.HandleFunc("/odata/v2/upsert", func(w http.ResponseWriter, r *http.Request) {
		var batch []employee.Record
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			t.Errorf("Expected JSON array body, got error %v", err)
		}
		ids := make([]string, len(batch))
		entries := make([]upsertEntry, len(batch))
		for i, rec := range batch {
			ids[i] = rec.UserID
			entries[i] = upsertEntry{Index: i, Status: "OK", HTTPCode: 200}
		}
		chunks = append(chunks, ids)
		json.NewEncoder(w).Encode(upsertEnvelope{D: entries})
	})

	c := newTestClient(t, mux)
	c.chunkSize = 2

	records := []employee.Record{
		{UserID: "e1"}, {UserID: "e2"}, {UserID: "e3"}, {UserID: "e4"}, {UserID: "e5"},
	}
	results, err := c.Create(context.Background(), records)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("Expected 5 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Status != StatusCreated {
			t.Errorf("Expected result %d created, got %s", i, r.Status)
		}
		if r.UserID != records[i].UserID {
			t.Errorf("Expected result %d for %s, got %s", i, records[i].UserID, r.UserID)
		}
	}

	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}
	wantSizes := []int{2, 2, 1}
	for i, ids := range chunks {
		if len(ids) != wantSizes[i] {
			t.Errorf("Expected chunk %d size %d, got %d", i, wantSizes[i], len(ids))
		}
	}
	if chunks[2][0] != "e5" {
		t.Errorf("Expected final chunk [e5], got %v", chunks[2])
	}
}

func TestCreateRetriesServerError(t *testing.T) {
	var tokenCalls, upsertCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(&tokenCalls))
	mux.HandleFunc("/odata/v2/upsert", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&upsertCalls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"d":[{"index":0,"status":"OK","httpCode":200}]}`)
	})

	c := newTestClient(t, mux)

	results, err := c.Create(context.Background(), []employee.Record{{UserID: "alice"}})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if results[0].Status != StatusCreated {
		t.Errorf("Expected created after retry, got %+v", results[0])
	}
	if results[0].Attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", results[0].Attempts)
	}
	if n := atomic.LoadInt32(&upsertCalls); n != 2 {
		t.Errorf("Expected 2 upsert requests, got %d", n)
	}
}

func TestCreateNoRetryOnClientError(t *testing.T) {
	var tokenCalls, upsertCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(&tokenCalls))
	mux.HandleFunc("/odata/v2/upsert", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&upsertCalls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	c := newTestClient(t, mux)

	results, err := c.Create(context.Background(), []employee.Record{{UserID: "alice"}, {UserID: "bob"}})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n := atomic.LoadInt32(&upsertCalls); n != 1 {
		t.Errorf("Expected 1 upsert request for client error, got %d", n)
	}
	for _, r := range results {
		if r.Status != StatusFailed {
			t.Errorf("Expected %s failed, got %s", r.UserID, r.Status)
		}
	}
}

func TestCreateRefreshesTokenOnForbidden(t *testing.T) {
	var tokenCalls, upsertCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(&tokenCalls))
	mux.HandleFunc("/odata/v2/upsert", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&upsertCalls, 1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `{"d":[{"index":0,"status":"OK","httpCode":200}]}`)
	})

	c := newTestClient(t, mux)

	results, err := c.Create(context.Background(), []employee.Record{{UserID: "alice"}})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if results[0].Status != StatusCreated {
		t.Errorf("Expected created after token refresh, got %+v", results[0])
	}
	if n := atomic.LoadInt32(&tokenCalls); n != 2 {
		t.Errorf("Expected a fresh token after 403, got %d auth requests", n)
	}
}

func TestCreateExhaustsRetries(t *testing.T) {
	var tokenCalls, upsertCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(&tokenCalls))
	mux.HandleFunc("/odata/v2/upsert", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&upsertCalls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := newTestClient(t, mux)
	c.maxRetries = 2

	results, err := c.Create(context.Background(), []employee.Record{{UserID: "alice"}, {UserID: "bob"}})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n := atomic.LoadInt32(&upsertCalls); n != 2 {
		t.Errorf("Expected 2 upsert requests, got %d", n)
	}
	for _, r := range results {
		if r.Status != StatusFailed {
			t.Errorf("Expected %s failed, got %s", r.UserID, r.Status)
		}
		if r.Attempts != 2 {
			t.Errorf("Expected 2 attempts recorded, got %d", r.Attempts)
		}
	}
}

func TestCreateCancelledContext(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(&tokenCalls))
	mux.HandleFunc("/odata/v2/upsert", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := newTestClient(t, mux)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Create(ctx, []employee.Record{{UserID: "alice"}}); err == nil {
		t.Error("Expected error for cancelled context, got nil")
	}
}

func TestMockCreator(t *testing.T) {
	m := NewMockCreator()
	m.FailIDs["bob"] = "duplicate"
	m.WarnIDs["carol"] = "Warning: manager inactive"

	results, err := m.Create(context.Background(), []employee.Record{
		{UserID: "alice"}, {UserID: "bob"}, {UserID: "carol"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if results[0].Status != StatusCreated {
		t.Errorf("Expected alice created, got %s", results[0].Status)
	}
	if results[1].Status != StatusFailed || results[1].Message != "duplicate" {
		t.Errorf("Expected bob failed, got %+v", results[1])
	}
	if results[2].Status != StatusWarning {
		t.Errorf("Expected carol warning, got %+v", results[2])
	}

	created := m.Created()
	if len(created) != 1 || created[0] != "alice" {
		t.Errorf("Expected created [alice], got %v", created)
	}
	if m.Calls() != 1 {
		t.Errorf("Expected 1 call, got %d", m.Calls())
	}
}

func TestMockCreatorErrCalls(t *testing.T) {
	m := NewMockCreator()
	m.ErrCalls = 1
	m.Err = fmt.Errorf("tenant down")

	if _, err := m.Create(context.Background(), []employee.Record{{UserID: "a"}}); err == nil {
		t.Error("Expected error on first call, got nil")
	}
	if _, err := m.Create(context.Background(), []employee.Record{{UserID: "a"}}); err != nil {
		t.Errorf("Expected second call to succeed, got %v", err)
	}
}
