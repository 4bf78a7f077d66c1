package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so library callers that do not care about metrics pass nil.
type Metrics struct {
	// Serve-mode HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Upstream REST metrics
	UpstreamCalls    *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	SignatureLookups *prometheus.CounterVec

	// Hub session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  *prometheus.CounterVec
	FramesTotal    *prometheus.CounterVec
	EventsTotal    *prometheus.CounterVec

	// Image job metrics
	ImageJobsActive  prometheus.Gauge
	ImageJobsTotal   *prometheus.CounterVec
	ImagePollAttempt prometheus.Histogram

	// WebSocket bridge metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	Uptime    prometheus.GaugeFunc
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the JSON stats endpoint.
type Snapshot struct {
	TotalRequests  int64   `json:"total_requests"`
	TotalErrors    int64   `json:"total_errors"`
	ActiveSessions int64   `json:"active_sessions"`
	ActiveJobs     int64   `json:"active_jobs"`
	AvgLatencyMS   float64 `json:"avg_latency_ms"`
	UptimeSeconds  float64 `json:"uptime_seconds"`

	totalDuration float64
}

// NewMetrics registers all collectors with reg. Pass prometheus.DefaultRegisterer
// in the binary and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{startTime: time.Now()}

	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_http_requests_total",
			Help: "Total number of serve-mode HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copilot_http_request_duration_seconds",
			Help:    "Serve-mode HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"method", "path"},
	)
	m.ResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copilot_http_response_size_bytes",
			Help:    "Serve-mode HTTP response size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)

	m.UpstreamCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_upstream_calls_total",
			Help: "Total number of calls to the Bing REST endpoints",
		},
		[]string{"endpoint", "status"},
	)
	m.UpstreamDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copilot_upstream_duration_seconds",
			Help:    "Bing REST call duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)
	m.SignatureLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_signature_lookups_total",
			Help: "Conversation signature lookups by cache result",
		},
		[]string{"result"},
	)

	m.SessionsActive = factory.NewGauge(prometheus.GaugeOpts{
		Name: "copilot_sessions_active",
		Help: "Number of open hub sessions",
	})
	m.SessionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_sessions_total",
			Help: "Hub sessions by outcome",
		},
		[]string{"outcome"},
	)
	m.FramesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_hub_records_total",
			Help: "Hub records by direction and type",
		},
		[]string{"direction", "type"},
	)
	m.EventsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_events_total",
			Help: "Events delivered to consumers by kind",
		},
		[]string{"kind"},
	)

	m.ImageJobsActive = factory.NewGauge(prometheus.GaugeOpts{
		Name: "copilot_image_jobs_active",
		Help: "Number of running image generation jobs",
	})
	m.ImageJobsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_image_jobs_total",
			Help: "Image generation jobs by outcome",
		},
		[]string{"outcome"},
	)
	m.ImagePollAttempt = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "copilot_image_poll_attempts",
		Help:    "Poll attempts used per image job",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
	})

	m.WSConnections = factory.NewGauge(prometheus.GaugeOpts{
		Name: "copilot_ws_connections",
		Help: "Number of active WebSocket bridge connections",
	})
	m.WSMessages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_ws_messages_total",
			Help: "Total number of WebSocket bridge messages",
		},
		[]string{"direction", "type"},
	)

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "copilot_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records a serve-mode HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordUpstream records one call to a Bing REST endpoint.
func (m *Metrics) RecordUpstream(endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamCalls.WithLabelValues(endpoint, status).Inc()
	m.UpstreamDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordSignatureLookup records a signature cache hit, miss or failure.
func (m *Metrics) RecordSignatureLookup(result string) {
	if m == nil {
		return
	}
	m.SignatureLookups.WithLabelValues(result).Inc()
}

// SessionOpened tracks a newly opened hub session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveSessions++
	m.mu.Unlock()
}

// SessionClosed tracks a hub session reaching Closed with the given outcome.
func (m *Metrics) SessionClosed(outcome string) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(outcome).Inc()
	m.mu.Lock()
	m.snapshot.ActiveSessions--
	m.mu.Unlock()
}

// RecordFrame records one hub record sent ("out") or received ("in").
func (m *Metrics) RecordFrame(direction, recordType string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(direction, recordType).Inc()
}

// RecordEvent records an event handed to a consumer.
func (m *Metrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(kind).Inc()
}

// ImageJobStarted tracks a spawned image job.
func (m *Metrics) ImageJobStarted() {
	if m == nil {
		return
	}
	m.ImageJobsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveJobs++
	m.mu.Unlock()
}

// ImageJobFinished tracks a completed image job and its poll count.
func (m *Metrics) ImageJobFinished(outcome string, attempts int) {
	if m == nil {
		return
	}
	m.ImageJobsActive.Dec()
	m.ImageJobsTotal.WithLabelValues(outcome).Inc()
	m.ImagePollAttempt.Observe(float64(attempts))
	m.mu.Lock()
	m.snapshot.ActiveJobs--
	m.mu.Unlock()
}

// RecordWSMessage records a WebSocket bridge message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// GetSnapshot returns the current values for the JSON stats endpoint.
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	if snap.TotalRequests > 0 {
		snap.AvgLatencyMS = snap.totalDuration / float64(snap.TotalRequests) * 1000
	}
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
