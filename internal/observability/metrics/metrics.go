package metrics

import (
	"fmt"
	"io"
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

// Recorder aggregates in-memory metrics counters and gauges for HTTP
// requests, authentication events, video lifecycle events, and media store
// operations. It coordinates concurrent writers via a RWMutex while exposing
// a thread-safe gauge for in-flight upload tracking.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	authEvents      map[string]uint64
	videoEvents     map[string]uint64
	mediaAttempts   map[string]uint64
	mediaFailures   map[string]uint64
	activeUploads   atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		authEvents:      make(map[string]uint64),
		videoEvents:     make(map[string]uint64),
		mediaAttempts:   make(map[string]uint64),
		mediaFailures:   make(map[string]uint64),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation pipelines.
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

// ObserveAuthEvent records an authentication lifecycle event such as
// "register", "login", "login_failure", "refresh", "refresh_reuse", "logout",
// or "password_change".
func (r *Recorder) ObserveAuthEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.authEvents[normalized]++
	r.mu.Unlock()
}

// ObserveVideoEvent records a video lifecycle event such as "publish",
// "update", "delete", "toggle_publish", or "view".
func (r *Recorder) ObserveVideoEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.videoEvents[normalized]++
	r.mu.Unlock()
}

// ObserveMediaAttempt records a media store operation attempt keyed by asset
// kind (e.g., "avatar", "video", "thumbnail").
func (r *Recorder) ObserveMediaAttempt(kind string) {
	normalized := normalizeName(kind)
	r.mu.Lock()
	r.mediaAttempts[normalized]++
	r.mu.Unlock()
}

// ObserveMediaFailure records a failed media store operation keyed by asset
// kind. The caller should also record the attempt separately.
func (r *Recorder) ObserveMediaFailure(kind string) {
	normalized := normalizeName(kind)
	r.mu.Lock()
	r.mediaFailures[normalized]++
	r.mu.Unlock()
}

// UploadStarted increments the in-flight upload gauge.
func (r *Recorder) UploadStarted() {
	r.activeUploads.Add(1)
}

// UploadFinished decrements the in-flight upload gauge, guarding against
// negative counts when concurrent updates race.
func (r *Recorder) UploadFinished() {
	for {
		current := r.activeUploads.Load()
		if current <= 0 {
			return
		}
		if r.activeUploads.CompareAndSwap(current, current-1) {
			return
		}
	}
}

// ActiveUploads exposes the current gauge of in-flight media uploads.
func (r *Recorder) ActiveUploads() int64 {
	return r.activeUploads.Load()
}

// AuthEventCounts returns a copy of the auth event counters for testing and
// reporting purposes.
func (r *Recorder) AuthEventCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]uint64, len(r.authEvents))
	for k, v := range r.authEvents {
		counts[k] = v
	}
	return counts
}

// VideoEventCounts returns a copy of the video event counters.
func (r *Recorder) VideoEventCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]uint64, len(r.videoEvents))
	for k, v := range r.videoEvents {
		counts[k] = v
	}
	return counts
}

// MediaCounts returns copies of media attempt and failure counters.
func (r *Recorder) MediaCounts() (attempts map[string]uint64, failures map[string]uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attempts = make(map[string]uint64, len(r.mediaAttempts))
	for k, v := range r.mediaAttempts {
		attempts[k] = v
	}
	failures = make(map[string]uint64, len(r.mediaFailures))
	for k, v := range r.mediaFailures {
		failures[k] = v
	}
	return attempts, failures
}

// Reset clears all counters and gauges on the recorder. It is intended for
// test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.authEvents = make(map[string]uint64)
	r.videoEvents = make(map[string]uint64)
	r.mediaAttempts = make(map[string]uint64)
	r.mediaFailures = make(map[string]uint64)
	r.activeUploads.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	authEvents := sortedKeys(r.authEvents)
	videoEvents := sortedKeys(r.videoEvents)
	mediaKinds := r.sortedMediaKinds()

	fmt.Fprintln(w, "# HELP streamfinity_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE streamfinity_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "streamfinity_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP streamfinity_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE streamfinity_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "streamfinity_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP streamfinity_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE streamfinity_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "streamfinity_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP streamfinity_auth_events_total Authentication lifecycle events by type")
	fmt.Fprintln(w, "# TYPE streamfinity_auth_events_total counter")
	for _, event := range authEvents {
		fmt.Fprintf(w, "streamfinity_auth_events_total{event=\"%s\"} %d\n", event, r.authEvents[event])
	}

	fmt.Fprintln(w, "# HELP streamfinity_video_events_total Video lifecycle events by type")
	fmt.Fprintln(w, "# TYPE streamfinity_video_events_total counter")
	for _, event := range videoEvents {
		fmt.Fprintf(w, "streamfinity_video_events_total{event=\"%s\"} %d\n", event, r.videoEvents[event])
	}

	fmt.Fprintln(w, "# HELP streamfinity_media_operations_total Media store operation attempts by asset kind")
	fmt.Fprintln(w, "# TYPE streamfinity_media_operations_total counter")
	for _, kind := range mediaKinds {
		fmt.Fprintf(w, "streamfinity_media_operations_total{kind=\"%s\"} %d\n", kind, r.mediaAttempts[kind])
	}

	fmt.Fprintln(w, "# HELP streamfinity_media_failures_total Failed media store operations by asset kind")
	fmt.Fprintln(w, "# TYPE streamfinity_media_failures_total counter")
	for _, kind := range mediaKinds {
		fmt.Fprintf(w, "streamfinity_media_failures_total{kind=\"%s\"} %d\n", kind, r.mediaFailures[kind])
	}

	fmt.Fprintln(w, "# HELP streamfinity_active_uploads Current number of in-flight media uploads")
	fmt.Fprintln(w, "# TYPE streamfinity_active_uploads gauge")
	fmt.Fprintf(w, "streamfinity_active_uploads %d\n", r.activeUploads.Load())
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedMediaKinds() []string {
	seen := make(map[string]struct{}, len(r.mediaAttempts)+len(r.mediaFailures))
	for kind := range r.mediaAttempts {
		seen[kind] = struct{}{}
	}
	for kind := range r.mediaFailures {
		seen[kind] = struct{}{}
	}
	return sortedKeys(seen)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// normalizePath collapses path segments that look like identifiers so metric
// cardinality stays bounded.
func normalizePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "/" {
		return "/"
	}
	segments := strings.Split(strings.Trim(trimmed, "/"), "/")
	for i, segment := range segments {
		if looksLikeIdentifier(segment) {
			segments[i] = ":id"
		}
	}
	return "/" + strings.Join(segments, "/")
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) < 16 {
		return false
	}
	for _, r := range segment {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		case r == '-':
		default:
			return false
		}
	}
	return true
}
