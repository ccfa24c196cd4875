// Package metrics defines Prometheus instrumentation for the call service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the call service
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// WebSocket metrics
	wsConnections      prometheus.Gauge
	wsEventsInTotal    *prometheus.CounterVec
	wsEventsOutTotal   *prometheus.CounterVec
	wsEventErrorsTotal *prometheus.CounterVec

	// Live queue metrics
	queueDepth       prometheus.Gauge
	liveMatchesTotal prometheus.Counter

	// Staged call metrics
	stagedCallsActive    prometheus.Gauge
	stagedCallsTotal     *prometheus.CounterVec
	callDurationSecs     *prometheus.HistogramVec
	promptsResolvedTotal *prometheus.CounterVec

	// Icebreaker metrics
	icebreakerCyclesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics on a private registry
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		registry: registry,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		wsConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "ws_connections",
				Help:        "Number of live WebSocket connections",
				ConstLabels: labels,
			},
		),
		wsEventsInTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "ws_events_in_total",
				Help:        "Total inbound WebSocket events by type",
				ConstLabels: labels,
			},
			[]string{"type"},
		),
		wsEventsOutTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "ws_events_out_total",
				Help:        "Total outbound WebSocket events by type",
				ConstLabels: labels,
			},
			[]string{"type"},
		),
		wsEventErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "ws_event_errors_total",
				Help:        "Total error events emitted by error code",
				ConstLabels: labels,
			},
			[]string{"code"},
		),

		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "live_queue_depth",
				Help:        "Number of users waiting in the live matchmaking queue",
				ConstLabels: labels,
			},
		),
		liveMatchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "live_matches_total",
				Help:        "Total pairs matched out of the live queue",
				ConstLabels: labels,
			},
		),

		stagedCallsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "staged_calls_active",
				Help:        "Number of staged calls currently ringing or active",
				ConstLabels: labels,
			},
		),
		stagedCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "staged_calls_total",
				Help:        "Total staged calls ended by stage and end reason",
				ConstLabels: labels,
			},
			[]string{"stage", "reason"},
		),
		callDurationSecs: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "staged_call_duration_seconds",
				Help:        "Actual staged call duration in seconds",
				ConstLabels: labels,
				Buckets:     []float64{5, 15, 30, 60, 120, 300, 600, 900},
			},
			[]string{"stage"},
		),
		promptsResolvedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "stage_prompts_resolved_total",
				Help:        "Total stage prompts resolved by result",
				ConstLabels: labels,
			},
			[]string{"result"},
		),

		icebreakerCyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "icebreaker_cycles_total",
				Help:        "Total icebreaker generation cycles by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
	}
}

// GetRegistry returns the private Prometheus registry for the /metrics handler
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request with its duration
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight request gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() { m.httpRequestsInFlight.Inc() }

// DecrementHTTPRequestsInFlight decrements the in-flight request gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() { m.httpRequestsInFlight.Dec() }

// ConnectionOpened increments the live connection gauge
func (m *Metrics) ConnectionOpened() { m.wsConnections.Inc() }

// ConnectionClosed decrements the live connection gauge
func (m *Metrics) ConnectionClosed() { m.wsConnections.Dec() }

// EventReceived counts an inbound event
func (m *Metrics) EventReceived(eventType string) {
	m.wsEventsInTotal.WithLabelValues(eventType).Inc()
}

// EventSent counts an outbound event
func (m *Metrics) EventSent(eventType string) {
	m.wsEventsOutTotal.WithLabelValues(eventType).Inc()
}

// EventError counts an error event by code
func (m *Metrics) EventError(code string) {
	m.wsEventErrorsTotal.WithLabelValues(code).Inc()
}

// SetQueueDepth records the current live queue depth
func (m *Metrics) SetQueueDepth(depth int) { m.queueDepth.Set(float64(depth)) }

// LiveMatchMade counts a pair matched out of the live queue
func (m *Metrics) LiveMatchMade() { m.liveMatchesTotal.Inc() }

// StagedCallStarted increments the active staged call gauge
func (m *Metrics) StagedCallStarted() { m.stagedCallsActive.Inc() }

// StagedCallEnded records a terminated staged call
func (m *Metrics) StagedCallEnded(stage int, reason string, actual time.Duration) {
	m.stagedCallsActive.Dec()
	m.stagedCallsTotal.WithLabelValues(strconv.Itoa(stage), reason).Inc()
	if actual > 0 {
		m.callDurationSecs.WithLabelValues(strconv.Itoa(stage)).Observe(actual.Seconds())
	}
}

// PromptResolved records a resolved stage prompt
func (m *Metrics) PromptResolved(result string) {
	m.promptsResolvedTotal.WithLabelValues(result).Inc()
}

// IcebreakerCycle records an icebreaker generation attempt
func (m *Metrics) IcebreakerCycle(outcome string) {
	m.icebreakerCyclesTotal.WithLabelValues(outcome).Inc()
}
