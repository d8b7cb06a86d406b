// Package metrics exposes prometheus collectors for the tab manager.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors
type Metrics struct {
	registry *prometheus.Registry

	Tabs          prometheus.Gauge
	LiveSurfaces  prometheus.Gauge
	Transitions   *prometheus.CounterVec
	LoadErrors    prometheus.Counter
	SessionWrites *prometheus.CounterVec
	EventsSent    prometheus.Counter
	EventsDropped prometheus.Counter
	WSClients     prometheus.Gauge
}

// New creates collectors registered on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Tabs: f.NewGauge(prometheus.GaugeOpts{
			Name: "tabhost_tabs",
			Help: "Number of tabs in the state store",
		}),
		LiveSurfaces: f.NewGauge(prometheus.GaugeOpts{
			Name: "tabhost_live_surfaces",
			Help: "Number of tabs holding a live rendering surface",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabhost_lifecycle_transitions_total",
			Help: "Lifecycle transitions by kind",
		}, []string{"transition"}),
		LoadErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "tabhost_load_errors_total",
			Help: "Navigations that ended in an error page",
		}),
		SessionWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tabhost_document_writes_total",
			Help: "Persisted document writes by document and result",
		}, []string{"document", "result"}),
		EventsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "tabhost_events_sent_total",
			Help: "Events delivered to presentation clients",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "tabhost_events_dropped_total",
			Help: "Events dropped because a client was too slow",
		}),
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "tabhost_ws_clients",
			Help: "Connected event stream clients",
		}),
	}
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Transition counts one lifecycle transition; safe on a nil receiver
func (m *Metrics) Transition(kind string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(kind).Inc()
}

// Write counts one document write; safe on a nil receiver
func (m *Metrics) Write(document string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SessionWrites.WithLabelValues(document, result).Inc()
}

// SetTabs records the store and surface sizes; safe on a nil receiver
func (m *Metrics) SetTabs(tabs, live int) {
	if m == nil {
		return
	}
	m.Tabs.Set(float64(tabs))
	m.LiveSurfaces.Set(float64(live))
}

// LoadFailed counts one failed navigation; safe on a nil receiver
func (m *Metrics) LoadFailed() {
	if m == nil {
		return
	}
	m.LoadErrors.Inc()
}
