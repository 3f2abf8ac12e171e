// Package metrics exposes Prometheus counters for the patch pipeline and
// the reverse synchronization path.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pagepatch"

// Metrics holds the pipeline counters.
type Metrics struct {
	// SectionsReceived counts incoming sections. Labels: action
	SectionsReceived *prometheus.CounterVec
	// SectionsRejected counts sections refused by the gate. Labels: reason
	SectionsRejected *prometheus.CounterVec
	// SectionsApplied counts sections that reached the editor. Labels: action
	SectionsApplied *prometheus.CounterVec
	// SectionsCoalesced counts sections superseded inside a throttle window.
	SectionsCoalesced prometheus.Counter
	// EditsObserved counts real content changes detected on a surface.
	EditsObserved *prometheus.CounterVec
	// Saves counts autosave and shortcut saves. Labels: page
	Saves *prometheus.CounterVec
	// PreviewClients tracks connected preview websockets.
	PreviewClients prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the counters with reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		SectionsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sections",
			Name:      "received_total",
			Help:      "Sections received from the instruction stream",
		}, []string{"action"}),
		SectionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sections",
			Name:      "rejected_total",
			Help:      "Sections not applied because they were invalid or incomplete",
		}, []string{"reason"}),
		SectionsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sections",
			Name:      "applied_total",
			Help:      "Sections applied to a page",
		}, []string{"action"}),
		SectionsCoalesced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sections",
			Name:      "coalesced_total",
			Help:      "Sections superseded by a later one inside the throttle window",
		}),
		EditsObserved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "surface",
			Name:      "edits_observed_total",
			Help:      "Manual edits detected by the reverse change detector",
		}, []string{"page"}),
		Saves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "surface",
			Name:      "saves_total",
			Help:      "Autosave and shortcut saves",
		}, []string{"page"}),
		PreviewClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "clients",
			Help:      "Connected preview clients",
		}),
		gatherer: reg,
	}
}

// Received records an incoming section.
func (m *Metrics) Received(action string) {
	if m == nil {
		return
	}
	m.SectionsReceived.WithLabelValues(action).Inc()
}

// Rejected records a section refused by the gate.
func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.SectionsRejected.WithLabelValues(reason).Inc()
}

// Applied records a section handed to the editor.
func (m *Metrics) Applied(action string) {
	if m == nil {
		return
	}
	m.SectionsApplied.WithLabelValues(action).Inc()
}

// Coalesced records a section dropped in favour of a newer one.
func (m *Metrics) Coalesced() {
	if m == nil {
		return
	}
	m.SectionsCoalesced.Inc()
}

// EditObserved records a detected manual edit.
func (m *Metrics) EditObserved(page string) {
	if m == nil {
		return
	}
	m.EditsObserved.WithLabelValues(page).Inc()
}

// Saved records a save.
func (m *Metrics) Saved(page string) {
	if m == nil {
		return
	}
	m.Saves.WithLabelValues(page).Inc()
}

// ClientConnected adjusts the preview client gauge by delta.
func (m *Metrics) ClientConnected(delta int) {
	if m == nil {
		return
	}
	m.PreviewClients.Add(float64(delta))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
