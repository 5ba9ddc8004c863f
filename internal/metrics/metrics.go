// Package metrics exposes the service's Prometheus collectors.
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

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// SOT sync
	SyncRuns    *prometheus.CounterVec
	SyncRetries prometheus.Counter
	LastSyncAt  prometheus.Gauge

	// Blueprint
	CloneOperations *prometheus.CounterVec

	// Health
	HealthSamples   *prometheus.CounterVec
	HealthIncidents *prometheus.CounterVec

	// Agent
	AgentRequests *prometheus.CounterVec

	// Embed
	EmbedEvents *prometheus.CounterVec
}

// New creates the collectors on a private registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartsite_http_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "code"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smartsite_http_request_duration_seconds",
				Help:    "Duration of HTTP request processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		SyncRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartsite_sot_sync_runs_total",
				Help: "Total number of SOT sync attempts by trigger and outcome",
			},
			[]string{"event_type", "status"},
		),
		SyncRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "smartsite_sot_sync_retries_total",
			Help: "Total number of scheduled SOT sync retries",
		}),
		LastSyncAt: f.NewGauge(prometheus.GaugeOpts{
			Name: "smartsite_sot_last_success_timestamp_seconds",
			Help: "Unix time of the last successful SOT sync",
		}),

		CloneOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartsite_blueprint_clone_operations_total",
				Help: "Total number of blueprint clone operations by final status",
			},
			[]string{"status"},
		),

		HealthSamples: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartsite_health_samples_total",
				Help: "Total number of health samples recorded",
			},
			[]string{"metric"},
		),
		HealthIncidents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartsite_health_incidents_total",
				Help: "Total number of health incidents opened",
			},
			[]string{"metric", "severity"},
		),

		AgentRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartsite_agent_requests_total",
				Help: "Total number of agent chat requests",
			},
			[]string{"mode", "outcome"},
		),

		EmbedEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartsite_embed_events_total",
				Help: "Total number of embed analytics events ingested",
			},
			[]string{"kind"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) ObserveRequest(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ObserveSync(eventType, status string, at time.Time) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(eventType, status).Inc()
	if status == "success" {
		m.LastSyncAt.Set(float64(at.Unix()))
	}
}

func (m *Metrics) ObserveSyncRetry() {
	if m == nil {
		return
	}
	m.SyncRetries.Inc()
}

func (m *Metrics) ObserveClone(status string) {
	if m == nil {
		return
	}
	m.CloneOperations.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveHealthSample(metric string) {
	if m == nil {
		return
	}
	m.HealthSamples.WithLabelValues(metric).Inc()
}

func (m *Metrics) ObserveIncident(metric, severity string) {
	if m == nil {
		return
	}
	m.HealthIncidents.WithLabelValues(metric, severity).Inc()
}

func (m *Metrics) ObserveAgent(mode, outcome string) {
	if m == nil {
		return
	}
	m.AgentRequests.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) ObserveEmbed(kind string) {
	if m == nil {
		return
	}
	m.EmbedEvents.WithLabelValues(kind).Inc()
}
