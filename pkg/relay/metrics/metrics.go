// Package metrics holds the Prometheus instrumentation for the relay.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP surface
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Live calls
	CallsActive  prometheus.Gauge
	CallsTotal   *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec

	// Relay traffic
	AudioBytesTotal *prometheus.CounterVec

	// Tooling
	ToolCallsTotal *prometheus.CounterVec
	HandoffsTotal  *prometheus.CounterVec

	// Transcript sink
	TranscriptFailuresTotal prometheus.Counter

	// Errors and limits
	ErrorsTotal   *prometheus.CounterVec
	RateLimitHits *prometheus.CounterVec
}

// New creates a Metrics instance with all relay metrics registered on a
// private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicerelay"
	}

	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	callsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Number of live voice calls",
		},
	)

	callsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of voice calls",
		},
		[]string{"agent", "status"},
	)

	callDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Voice call duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"agent"},
	)

	audioBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Total audio bytes relayed",
		},
		[]string{"direction"},
	)

	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total tool invocations dispatched",
		},
		[]string{"tool", "status"},
	)

	handoffsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Total persona handoffs signaled",
		},
		[]string{"from_agent", "to_agent"},
	)

	transcriptFailuresTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_failures_total",
			Help:      "Total transcript writes that failed",
		},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	rateLimitHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of rate limit hits",
		},
		[]string{"limit_type"},
	)

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		callsActive,
		callsTotal,
		callDuration,
		audioBytesTotal,
		toolCallsTotal,
		handoffsTotal,
		transcriptFailuresTotal,
		errorsTotal,
		rateLimitHits,
	)

	return &Metrics{
		registry:                registry,
		RequestsTotal:           requestsTotal,
		RequestDuration:         requestDuration,
		CallsActive:             callsActive,
		CallsTotal:              callsTotal,
		CallDuration:            callDuration,
		AudioBytesTotal:         audioBytesTotal,
		ToolCallsTotal:          toolCallsTotal,
		HandoffsTotal:           handoffsTotal,
		TranscriptFailuresTotal: transcriptFailuresTotal,
		ErrorsTotal:             errorsTotal,
		RateLimitHits:           rateLimitHits,
	}
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordCallStart records a voice call starting.
func (m *Metrics) RecordCallStart() {
	if m == nil {
		return
	}
	m.CallsActive.Inc()
}

// RecordCallEnd records a voice call ending.
func (m *Metrics) RecordCallEnd(agent, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CallsActive.Dec()
	m.CallsTotal.WithLabelValues(agent, status).Inc()
	m.CallDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordAudio records audio bytes crossing the relay.
func (m *Metrics) RecordAudio(direction string, bytes int) {
	if m == nil || bytes <= 0 {
		return
	}
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

// RecordToolCall records one dispatched tool invocation.
func (m *Metrics) RecordToolCall(tool string, failed bool) {
	if m == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
}

// RecordHandoff records a signaled persona handoff.
func (m *Metrics) RecordHandoff(fromAgent, toAgent string) {
	if m == nil {
		return
	}
	m.HandoffsTotal.WithLabelValues(fromAgent, toAgent).Inc()
}

// RecordTranscriptFailure records a failed transcript write.
func (m *Metrics) RecordTranscriptFailure() {
	if m == nil {
		return
	}
	m.TranscriptFailuresTotal.Inc()
}

// RecordError records an error.
func (m *Metrics) RecordError(component, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(limitType string) {
	if m == nil {
		return
	}
	m.RateLimitHits.WithLabelValues(limitType).Inc()
}
