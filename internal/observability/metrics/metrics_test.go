package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveRequestNormalizesFilePaths(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("get", "/files/abc123", http.StatusOK, 10*time.Millisecond)
	recorder.ObserveRequest("GET", "/files/def456", http.StatusOK, 20*time.Millisecond)
	recorder.ObserveRequest("PUT", "/files/def456/publish", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	if !strings.Contains(body, `filevault_http_requests_total{method="GET",path="/files/:id",status="200"} 2`) {
		t.Fatalf("expected collapsed file path counter, got:\n%s", body)
	}
	if !strings.Contains(body, `filevault_http_requests_total{method="PUT",path="/files/:id/publish",status="200"} 1`) {
		t.Fatalf("expected publish counter, got:\n%s", body)
	}
}

func TestJobLifecycleCounters(t *testing.T) {
	recorder := New()
	recorder.JobStarted("thumbnails")
	if recorder.ActiveJobs() != 1 {
		t.Fatalf("expected 1 active job, got %d", recorder.ActiveJobs())
	}
	recorder.JobCompleted("thumbnails")
	recorder.JobStarted("thumbnails")
	recorder.JobFailed("thumbnails")
	if recorder.ActiveJobs() != 0 {
		t.Fatalf("expected gauge back at 0, got %d", recorder.ActiveJobs())
	}

	counts := recorder.JobCounts()
	if counts[JobLabel{Queue: "thumbnails", Status: "start"}] != 2 {
		t.Fatalf("expected 2 starts, got %d", counts[JobLabel{Queue: "thumbnails", Status: "start"}])
	}
	if counts[JobLabel{Queue: "thumbnails", Status: "fail"}] != 1 {
		t.Fatalf("expected 1 failure, got %d", counts[JobLabel{Queue: "thumbnails", Status: "fail"}])
	}
}

func TestJobFailedNeverGoesNegative(t *testing.T) {
	recorder := New()
	recorder.JobFailed("welcome")
	if recorder.ActiveJobs() != 0 {
		t.Fatalf("expected gauge clamped at 0, got %d", recorder.ActiveJobs())
	}
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	recorder := New()
	handler := HTTPMiddleware(recorder, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/files", nil))

	metricsRec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(metricsRec.Body.String(), `filevault_http_requests_total{method="POST",path="/files",status="201"} 1`) {
		t.Fatalf("expected recorded request, got:\n%s", metricsRec.Body.String())
	}
}
