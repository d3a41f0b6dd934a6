package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"filevault/internal/observability/logging"
)

func TestRequestIDMiddlewareGeneratesID(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = logging.RequestIDFromContext(r.Context())
	})
	handler := requestIDMiddlewareWithGenerator(nil, func() string { return "generated-id" }, next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if seen != "generated-id" {
		t.Fatalf("expected generated ID on context, got %q", seen)
	}
	if got := rec.Header().Get("X-Request-Id"); got != "generated-id" {
		t.Fatalf("expected generated ID on response, got %q", got)
	}
}

func TestRequestIDMiddlewarePreservesHeader(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = logging.RequestIDFromContext(r.Context())
	})
	handler := requestIDMiddleware(nil, next)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("X-Request-Id", "client-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "client-id" {
		t.Fatalf("expected client ID on context, got %q", seen)
	}
	if got := rec.Header().Get("X-Request-Id"); got != "client-id" {
		t.Fatalf("expected client ID echoed, got %q", got)
	}
}

func TestNewRequestIDLength(t *testing.T) {
	id := newRequestID()
	if len(id) != 32 {
		t.Fatalf("expected 32 hex characters, got %q", id)
	}
}
