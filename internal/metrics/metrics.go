// Package metrics holds the Prometheus instrumentation shared by the HTTP
// layer and the domain services.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the Lattice server.
type Metrics struct {
	// HTTP metrics
	RequestTotal    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Auth metrics
	AuthFailures *prometheus.CounterVec

	// Content admission metrics
	PostAdmissions  *prometheus.CounterVec
	InjectionScore  prometheus.Histogram
	EntropyScore    prometheus.Histogram
	RateLimitDenied *prometheus.CounterVec

	// Ledger metrics
	EXPDeltas *prometheus.CounterVec

	// Event stream metrics
	WSClients       prometheus.Gauge
	EventsPublished *prometheus.CounterVec
}

// New creates and registers all metrics on the given registerer. Pass
// prometheus.DefaultRegisterer in the server and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lattice_http_requests_total",
				Help: "HTTP requests processed, by route template, method and status",
			},
			[]string{"route", "method", "status"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lattice_http_request_duration_seconds",
				Help:    "HTTP request latency by route template and method",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),

		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lattice_auth_failures_total",
				Help: "Authentication pipeline failures by wire code",
			},
			[]string{"code"},
		),

		PostAdmissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lattice_post_admissions_total",
				Help: "Post admission outcomes by action and reason",
			},
			[]string{"action", "reason"},
		),

		InjectionScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lattice_injection_score",
				Help:    "Prompt-injection scores observed during admission",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 8, 10},
			},
		),

		EntropyScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lattice_content_entropy_bits",
				Help:    "Shannon entropy (bits/char) of submitted content",
				Buckets: []float64{0.5, 1.0, 1.5, 2.0, 2.5, 3.0, 3.5, 4.0, 4.5, 5.0},
			},
		),

		RateLimitDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lattice_rate_limit_denied_total",
				Help: "Admissions denied by the sliding-window rate limiter",
			},
			[]string{"action"},
		),

		EXPDeltas: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lattice_exp_deltas_total",
				Help: "EXP ledger deltas appended, by reason",
			},
			[]string{"reason"},
		),

		WSClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lattice_ws_clients",
				Help: "Connected websocket event-stream clients",
			},
		),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lattice_events_published_total",
				Help: "Events published on the in-process bus, by type",
			},
			[]string{"type"},
		),
	}
}

// RecordRequest records one served HTTP request.
func (m *Metrics) RecordRequest(route, method string, status int, seconds float64) {
	m.RequestTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route, method).Observe(seconds)
}

// RecordAuthFailure records a failed pass through the auth pipeline.
func (m *Metrics) RecordAuthFailure(code string) {
	m.AuthFailures.WithLabelValues(code).Inc()
}

// RecordAdmission records a post admission outcome.
func (m *Metrics) RecordAdmission(action, reason string) {
	if reason == "" {
		reason = "none"
	}
	m.PostAdmissions.WithLabelValues(action, reason).Inc()
}

// ObserveSpamScores records the filter measurements taken for one admission.
func (m *Metrics) ObserveSpamScores(injectionScore int, entropyBits float64) {
	m.InjectionScore.Observe(float64(injectionScore))
	if entropyBits >= 0 {
		m.EntropyScore.Observe(entropyBits)
	}
}

// RecordRateLimitDenied records a 429 admission denial.
func (m *Metrics) RecordRateLimitDenied(action string) {
	m.RateLimitDenied.WithLabelValues(action).Inc()
}

// RecordEXPDelta records one appended ledger delta.
func (m *Metrics) RecordEXPDelta(reason string) {
	m.EXPDeltas.WithLabelValues(reason).Inc()
}

// RecordEventPublished records one bus publish.
func (m *Metrics) RecordEventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}
