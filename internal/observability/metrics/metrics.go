package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// JobLabel identifies queue job counters by queue name and terminal status.
type JobLabel struct {
	Queue  string
	Status string
}

// Recorder aggregates in-memory metrics counters for HTTP requests and queue
// job processing. It coordinates concurrent writers via a RWMutex while
// exposing a thread-safe gauge for in-flight job tracking.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	jobEvents       map[JobLabel]uint64
	derivativeCount map[string]uint64
	activeJobs      atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		jobEvents:       make(map[JobLabel]uint64),
		derivativeCount: make(map[string]uint64),
	}
}

// Default returns the singleton Recorder shared across packages that do not
// require a custom instrumentation pipeline.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// JobStarted records the beginning of a job from the named queue and
// increments the in-flight gauge.
func (r *Recorder) JobStarted(queue string) {
	r.recordJobEvent(queue, "start")
	r.activeJobs.Add(1)
}

// JobCompleted records a successfully processed job and decrements the
// in-flight gauge.
func (r *Recorder) JobCompleted(queue string) {
	r.recordJobEvent(queue, "complete")
	r.decrementActive()
}

// JobFailed records a terminally failed job and decrements the in-flight
// gauge without letting it go negative when a job never started.
func (r *Recorder) JobFailed(queue string) {
	r.recordJobEvent(queue, "fail")
	r.decrementActive()
}

func (r *Recorder) recordJobEvent(queue, status string) {
	label := JobLabel{Queue: normalizeName(queue), Status: normalizeName(status)}
	r.mu.Lock()
	r.jobEvents[label]++
	r.mu.Unlock()
}

func (r *Recorder) decrementActive() {
	for {
		current := r.activeJobs.Load()
		if current <= 0 {
			return
		}
		if r.activeJobs.CompareAndSwap(current, current-1) {
			return
		}
	}
}

// ObserveDerivative records the outcome of a single derivative generation
// ("ok" or "failed").
func (r *Recorder) ObserveDerivative(outcome string) {
	normalized := normalizeName(outcome)
	r.mu.Lock()
	r.derivativeCount[normalized]++
	r.mu.Unlock()
}

// ActiveJobs exposes the current gauge of jobs being processed.
func (r *Recorder) ActiveJobs() int64 {
	return r.activeJobs.Load()
}

// JobCounts returns a copy of the job event counters for tests and reports.
func (r *Recorder) JobCounts() map[JobLabel]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[JobLabel]uint64, len(r.jobEvents))
	for label, count := range r.jobEvents {
		out[label] = count
	}
	return out
}

// Handler exposes the recorder state in Prometheus text exposition format.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.write(w)
	})
}

func (r *Recorder) write(w http.ResponseWriter) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fmt.Fprintln(w, "# HELP filevault_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE filevault_http_requests_total counter")
	for _, label := range r.sortedRequestLabels() {
		count := r.requestCount[label]
		fmt.Fprintf(w, "filevault_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP filevault_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE filevault_http_request_duration_seconds_sum counter")
	for _, label := range r.sortedRequestLabels() {
		duration := r.requestDuration[label]
		fmt.Fprintf(w, "filevault_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration.Seconds())
	}

	fmt.Fprintln(w, "# HELP filevault_queue_jobs_total Queue job events by queue and status")
	fmt.Fprintln(w, "# TYPE filevault_queue_jobs_total counter")
	for _, label := range r.sortedJobLabels() {
		count := r.jobEvents[label]
		fmt.Fprintf(w, "filevault_queue_jobs_total{queue=\"%s\",status=\"%s\"} %d\n", label.Queue, label.Status, count)
	}

	fmt.Fprintln(w, "# HELP filevault_derivatives_total Thumbnail derivative generations by outcome")
	fmt.Fprintln(w, "# TYPE filevault_derivatives_total counter")
	for _, outcome := range r.sortedDerivativeOutcomes() {
		count := r.derivativeCount[outcome]
		fmt.Fprintf(w, "filevault_derivatives_total{outcome=\"%s\"} %d\n", outcome, count)
	}

	fmt.Fprintln(w, "# HELP filevault_active_jobs Current number of jobs being processed")
	fmt.Fprintln(w, "# TYPE filevault_active_jobs gauge")
	fmt.Fprintf(w, "filevault_active_jobs %d\n", r.activeJobs.Load())
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedJobLabels() []JobLabel {
	labels := make([]JobLabel, 0, len(r.jobEvents))
	for label := range r.jobEvents {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Queue != labels[j].Queue {
			return labels[i].Queue < labels[j].Queue
		}
		return labels[i].Status < labels[j].Status
	})
	return labels
}

func (r *Recorder) sortedDerivativeOutcomes() []string {
	outcomes := make([]string, 0, len(r.derivativeCount))
	for outcome := range r.derivativeCount {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	return outcomes
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// normalizePath collapses record-specific path segments so metrics cardinality
// stays bounded regardless of how many files exist.
func normalizePath(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	if trimmed == "" {
		trimmed = "/"
	}
	if strings.HasPrefix(trimmed, "/files/") {
		rest := strings.TrimPrefix(trimmed, "/files/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) == 1 {
			return "/files/:id"
		}
		switch parts[1] {
		case "publish", "unpublish", "data":
			return "/files/:id/" + parts[1]
		}
		return "/files/:id"
	}
	return trimmed
}
