package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"filevault/internal/api"
	"filevault/internal/auth"
	"filevault/internal/content"
	"filevault/internal/observability/metrics"
	"filevault/internal/queue"
	"filevault/internal/storage"
)

func newTestHandler(t *testing.T) *api.Handler {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewStorage(filepath.Join(dir, "data.json"))
	if err != nil {
		t.Fatalf("NewStorage returned error: %v", err)
	}
	blobs, err := content.NewStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	verifier, err := auth.NewVerifier(store)
	if err != nil {
		t.Fatalf("NewVerifier returned error: %v", err)
	}
	handler := api.NewHandler(store, auth.NewSessionManager(time.Hour))
	handler.Verifier = verifier
	handler.Content = blobs
	handler.ThumbnailQueue = queue.NewMemoryQueue(4)
	handler.WelcomeQueue = queue.NewMemoryQueue(4)
	return handler
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	srv, err := New(newTestHandler(t), cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return srv
}

func (s *Server) serveHTTP(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func signupRequest(t *testing.T, email string) *http.Request {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"email": email, "password": "toto1234!"})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader(payload))
}

func TestServerRoutesThroughChain(t *testing.T) {
	srv := newTestServer(t, Config{})

	rec := srv.serveHTTP(signupRequest(t, "bob@dylan.com"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 from POST /users, got %d body %s", rec.Code, rec.Body.String())
	}

	rec = srv.serveHTTP(httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from GET /status, got %d", rec.Code)
	}

	rec = srv.serveHTTP(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from GET /metrics, got %d", rec.Code)
	}
}

func TestServerSetsSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, Config{})

	rec := srv.serveHTTP(httptest.NewRequest(http.MethodGet, "/status", nil))
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff, got %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected DENY, got %q", got)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Fatal("expected a Content-Security-Policy header")
	}
}

func TestServerAssignsRequestID(t *testing.T) {
	srv := newTestServer(t, Config{})

	rec := srv.serveHTTP(httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected a generated X-Request-Id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec = srv.serveHTTP(req)
	if got := rec.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("expected echoed request ID, got %q", got)
	}
}

func TestServerLoginRateLimit(t *testing.T) {
	srv := newTestServer(t, Config{
		RateLimit: RateLimitConfig{LoginLimit: 2, LoginWindow: time.Minute},
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/connect", nil)
		req.SetBasicAuth("bob@dylan.com", "wrong")
		if rec := srv.serveHTTP(req); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/connect", nil)
	req.SetBasicAuth("bob@dylan.com", "wrong")
	rec := srv.serveHTTP(req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", rec.Code)
	}

	rec = srv.serveHTTP(httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected other routes unaffected, got %d", rec.Code)
	}
}

func TestServerGlobalRateLimit(t *testing.T) {
	srv := newTestServer(t, Config{
		RateLimit: RateLimitConfig{GlobalRPS: 0.001, GlobalBurst: 1},
	})

	if rec := srv.serveHTTP(httptest.NewRequest(http.MethodGet, "/status", nil)); rec.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}
	if rec := srv.serveHTTP(httptest.NewRequest(http.MethodGet, "/status", nil)); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", rec.Code)
	}
}

func TestLoginRateLimitPerIP(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{LoginLimit: 1, LoginWindow: time.Minute})
	ctx := httptest.NewRequest(http.MethodGet, "/connect", nil).Context()

	allowed, _, err := rl.AllowLogin(ctx, "10.0.0.1")
	if err != nil || !allowed {
		t.Fatalf("first attempt should pass: allowed=%v err=%v", allowed, err)
	}
	allowed, retryAfter, err := rl.AllowLogin(ctx, "10.0.0.1")
	if err != nil || allowed {
		t.Fatalf("second attempt should be limited: allowed=%v err=%v", allowed, err)
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retry hint, got %v", retryAfter)
	}

	allowed, _, err = rl.AllowLogin(ctx, "10.0.0.2")
	if err != nil || !allowed {
		t.Fatalf("other addresses should be unaffected: allowed=%v err=%v", allowed, err)
	}
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:4567"
	if got := extractClientIP(req); got != "192.0.2.10" {
		t.Fatalf("expected remote addr host, got %q", got)
	}

	req.Header.Set("X-Real-IP", "198.51.100.7")
	if got := extractClientIP(req); got != "198.51.100.7" {
		t.Fatalf("expected X-Real-IP, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 198.51.100.7")
	if got := extractClientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}
