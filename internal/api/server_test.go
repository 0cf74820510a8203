package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/afpdata/mailsift/internal/config"
	"github.com/afpdata/mailsift/internal/query"
	"github.com/afpdata/mailsift/internal/search"
)

// mockEngine lets handler tests control query outcomes.
type mockEngine struct {
	results    *query.ResultSet
	searchErr  error
	searches   atomic.Int32
	message    *query.EmailRecord
	messageErr error
	categories []string
}

func (m *mockEngine) Search(_ context.Context, _ *search.CompiledQuery) (*query.ResultSet, error) {
	m.searches.Add(1)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.results, nil
}

func (m *mockEngine) GetMessage(_ context.Context, _ string) (*query.EmailRecord, error) {
	return m.message, m.messageErr
}

func (m *mockEngine) ListCategories(_ context.Context) ([]string, error) {
	return m.categories, nil
}

func (m *mockEngine) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Store: config.StoreConfig{
			Database:     "test.duckdb",
			Table:        "emails",
			SummaryTable: "email_summaries",
		},
		Server: config.ServerConfig{BindAddr: "127.0.0.1", Port: 8080},
		Search: config.SearchConfig{
			DefaultLimit:    100,
			MinLimit:        10,
			MaxLimit:        500,
			CacheTTLSeconds: 300,
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(cfg *config.Config, engine query.Engine) *Server {
	return NewServer(cfg, engine, query.NewResultCache(time.Minute), testLogger(), nil)
}

func sampleResults() *query.ResultSet {
	rows := []query.EmailRecord{
		{
			ID: "e1", Subject: "Quarterly Budget Meeting",
			Body:   "Please review the budget numbers.",
			Sender: "alice@corp.com", Recipient: "bob@corp.com",
			SentAt:     time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC),
			SourceFile: "archive_a.pst",
		},
		{
			ID: "e2", Subject: "Re: budget",
			Body:   "Looks fine to me.",
			Sender: "bob@corp.com", Recipient: "alice@corp.com",
			SentAt:     time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC),
			SourceFile: "archive_a.pst",
		},
	}
	return &query.ResultSet{Rows: rows, Stats: query.ComputeStats(rows)}
}

// do routes a request through the full middleware chain, carrying the
// session cookie between calls.
func do(t *testing.T, s *Server, method, target string, body []byte, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func sessionCookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthIsOpen(t *testing.T) {
	s := newTestServer(testConfig(), &mockEngine{})

	rec := do(t, s, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
}

func TestSessionGate(t *testing.T) {
	cfg := testConfig()
	cfg.Server.SessionSecret = "letmein"
	s := newTestServer(cfg, &mockEngine{results: sampleResults()})

	// Gated endpoints refuse requests without an authenticated session.
	rec := do(t, s, http.MethodGet, "/api/v1/search?q=budget", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ungated search status = %d, want 401", rec.Code)
	}
	var errResp ErrorResponse
	decodeBody(t, rec, &errResp)
	if errResp.Error != "authentication_required" {
		t.Errorf("error = %q", errResp.Error)
	}

	// A wrong secret is rejected and grants nothing.
	rec = do(t, s, http.MethodPost, "/session", []byte(`{"secret":"wrong"}`), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret status = %d, want 401", rec.Code)
	}
	decodeBody(t, rec, &errResp)
	if errResp.Error != "authentication_failed" {
		t.Errorf("error = %q", errResp.Error)
	}

	// The right secret opens the gate for the session's lifetime.
	rec = do(t, s, http.MethodPost, "/session", []byte(`{"secret":"letmein"}`), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200", rec.Code)
	}
	cookie := sessionCookieFrom(t, rec)

	rec = do(t, s, http.MethodGet, "/api/v1/search?q=budget", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated search status = %d, want 200", rec.Code)
	}
}

func TestGateOpenWithoutSecret(t *testing.T) {
	s := newTestServer(testConfig(), &mockEngine{results: sampleResults()})

	// No secret configured: requests pass and still get a session, so
	// export keeps working.
	rec := do(t, s, http.MethodGet, "/api/v1/search?q=budget", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d, want 200", rec.Code)
	}
	if sessionCookieFrom(t, rec) == nil {
		t.Fatal("expected a session cookie")
	}
}

func TestSessionStore_IdleExpiry(t *testing.T) {
	store := NewSessionStore(time.Hour)
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	sess := store.Create()

	base = base.Add(30 * time.Minute)
	if store.Get(sess.Token) == nil {
		t.Fatal("session expired too early")
	}

	// Activity resets the idle timer.
	base = base.Add(45 * time.Minute)
	if store.Get(sess.Token) == nil {
		t.Fatal("refreshed session should still be live")
	}

	base = base.Add(2 * time.Hour)
	if store.Get(sess.Token) != nil {
		t.Fatal("idle session should have expired")
	}
}

func TestSessionStore_Sweep(t *testing.T) {
	store := NewSessionStore(time.Hour)
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	stale := store.Create()
	base = base.Add(2 * time.Hour)
	fresh := store.Create()

	store.Sweep()
	if store.Get(stale.Token) != nil {
		t.Error("stale session survived sweep")
	}
	if store.Get(fresh.Token) == nil {
		t.Error("fresh session removed by sweep")
	}
}

func TestSessionStore_Janitor(t *testing.T) {
	store := NewSessionStore(time.Hour)
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	store.Create()
	store.Create()
	base = base.Add(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Janitor(ctx, time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("janitor never swept the idle sessions")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-done
}

func TestStoreUnconfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Table = ""
	s := NewServer(cfg, nil, query.NewResultCache(time.Minute), testLogger(), cfg.ValidateStore())

	for _, target := range []string{"/api/v1/search?q=budget", "/api/v1/messages/e1", "/api/v1/categories"} {
		rec := do(t, s, http.MethodGet, target, nil, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", target, rec.Code)
		}
		var errResp ErrorResponse
		decodeBody(t, rec, &errResp)
		if errResp.Error != "store_unconfigured" {
			t.Errorf("%s error = %q", target, errResp.Error)
		}
	}
}
