// Package metrics exposes Prometheus collectors for the HTTP layer and the
// tutoring workflows. All recording methods are safe on a nil *Metrics, so
// services can run without metrics enabled.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service exports.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Doubts
	DoubtsCreated     *prometheus.CounterVec
	DoubtTransitions  *prometheus.CounterVec
	SolutionsAttached prometheus.Counter
	MessagesPosted    *prometheus.CounterVec

	// Payments
	PaymentsSubmitted prometheus.Counter
	PaymentsReviewed  *prometheus.CounterVec

	// Subscription gate
	GateChecks *prometheus.CounterVec

	// Live streams
	StreamsOpen *prometheus.GaugeVec

	// Notifications
	NotificationsPublished *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry, together with the
// Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		DoubtsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "doubts_created_total",
				Help:      "Doubts created, by subject",
			},
			[]string{"subject"},
		),
		DoubtTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "doubt_status_transitions_total",
				Help:      "Doubt status changes, by target status",
			},
			[]string{"status"},
		),
		SolutionsAttached: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "doubt_solutions_attached_total",
				Help:      "Solution updates written to doubts",
			},
		),
		MessagesPosted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_posted_total",
				Help:      "Chat messages posted, by sender role",
			},
			[]string{"role"},
		),
		PaymentsSubmitted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_submitted_total",
				Help:      "Payment proofs submitted",
			},
		),
		PaymentsReviewed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_reviewed_total",
				Help:      "Payment reviews, by decision",
			},
			[]string{"decision"},
		),
		GateChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscription_checks_total",
				Help:      "Subscription gate evaluations, by result and source",
			},
			[]string{"result", "source"},
		),
		StreamsOpen: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_streams_open",
				Help:      "Open live websocket streams, by kind",
			},
			[]string{"kind"},
		),
		NotificationsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_published_total",
				Help:      "Notification events handed to the notifier, by type and outcome",
			},
			[]string{"type", "outcome"},
		),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// InFlight adjusts the in-flight gauge by delta.
func (m *Metrics) InFlight(delta float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Add(delta)
}

func (m *Metrics) DoubtCreated(subject string) {
	if m == nil {
		return
	}
	m.DoubtsCreated.WithLabelValues(subject).Inc()
}

func (m *Metrics) DoubtTransitioned(status string) {
	if m == nil {
		return
	}
	m.DoubtTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) SolutionAttached() {
	if m == nil {
		return
	}
	m.SolutionsAttached.Inc()
}

func (m *Metrics) MessagePosted(role string) {
	if m == nil {
		return
	}
	m.MessagesPosted.WithLabelValues(role).Inc()
}

func (m *Metrics) PaymentSubmitted() {
	if m == nil {
		return
	}
	m.PaymentsSubmitted.Inc()
}

func (m *Metrics) PaymentReviewed(decision string) {
	if m == nil {
		return
	}
	m.PaymentsReviewed.WithLabelValues(decision).Inc()
}

// GateChecked records a gate result; source is "cache" or "store".
func (m *Metrics) GateChecked(subscribed bool, source string) {
	if m == nil {
		return
	}
	result := "denied"
	if subscribed {
		result = "allowed"
	}
	m.GateChecks.WithLabelValues(result, source).Inc()
}

// StreamOpened increments the open-stream gauge and returns the matching decrement.
func (m *Metrics) StreamOpened(kind string) func() {
	if m == nil {
		return func() {}
	}
	g := m.StreamsOpen.WithLabelValues(kind)
	g.Inc()
	return g.Dec
}

func (m *Metrics) NotificationPublished(eventType string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.NotificationsPublished.WithLabelValues(eventType, outcome).Inc()
}
