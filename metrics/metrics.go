// Package metrics exposes Prometheus collectors for the scheduler and the mesh.
// Collectors are registered on a caller supplied registry so several
// instances (tests, embedded meshes) can coexist. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "modelmesh"

// Metrics holds all custom Prometheus metrics of a mesh instance.
type Metrics struct {
	// Scheduler metrics
	Selections *prometheus.CounterVec
	Fallbacks  *prometheus.CounterVec
	Discovery  *prometheus.CounterVec

	// Lifecycle metrics
	Evictions    *prometheus.CounterVec
	LoadedModels prometheus.Gauge
	LoadedMB     prometheus.Gauge

	// Mesh metrics
	Nodes            prometheus.Gauge
	Entanglements    prometheus.Gauge
	RetrievalResults prometheus.Histogram
}

// New registers the collectors on reg. A nil reg uses a fresh private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		Selections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Model selections by the rule that decided them",
		}, []string{"rule"}),
		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Degradations recovered locally (unknown_model, discovery, drift)",
		}, []string{"kind"}),
		Discovery: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_total",
			Help:      "Catalog discovery rounds by outcome",
		}, []string{"outcome"}),
		Evictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Advisory model evictions by reason",
		}, []string{"reason"}),
		LoadedModels: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loaded_models",
			Help:      "Models currently considered loaded",
		}),
		LoadedMB: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loaded_memory_mb",
			Help:      "Memory footprint of loaded models in MB",
		}),
		Nodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes",
			Help:      "Semantic nodes held by the store",
		}),
		Entanglements: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entanglements",
			Help:      "Undirected entanglement edges",
		}),
		RetrievalResults: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_results",
			Help:      "Nodes returned per retrieval query",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
	}
}

// RecordSelection counts a selection decided by rule.
func (m *Metrics) RecordSelection(rule string) {
	if m == nil {
		return
	}
	m.Selections.WithLabelValues(rule).Inc()
}

// RecordFallback counts a locally recovered degradation.
func (m *Metrics) RecordFallback(kind string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(kind).Inc()
}

// RecordDiscovery counts a discovery round ("remote" or "static").
func (m *Metrics) RecordDiscovery(outcome string) {
	if m == nil {
		return
	}
	m.Discovery.WithLabelValues(outcome).Inc()
}

// RecordEviction counts an eviction.
func (m *Metrics) RecordEviction(reason string) {
	if m == nil {
		return
	}
	m.Evictions.WithLabelValues(reason).Inc()
}

// SetLoaded publishes the current loaded set size and footprint.
func (m *Metrics) SetLoaded(models, mb int) {
	if m == nil {
		return
	}
	m.LoadedModels.Set(float64(models))
	m.LoadedMB.Set(float64(mb))
}

// SetGraph publishes node and edge counts.
func (m *Metrics) SetGraph(nodes, edges int) {
	if m == nil {
		return
	}
	m.Nodes.Set(float64(nodes))
	m.Entanglements.Set(float64(edges))
}

// ObserveRetrieval records the size of a retrieval result set.
func (m *Metrics) ObserveRetrieval(n int) {
	if m == nil {
		return
	}
	m.RetrievalResults.Observe(float64(n))
}
