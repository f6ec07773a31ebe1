// Package metric provides the Prometheus metrics registry shared by
// TraceWatch components.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace is the metric namespace prefix for all TraceWatch metrics
const Namespace = "tracewatch"

// Registry wraps a dedicated Prometheus registry so components register
// their metrics without touching the global default registry. Components
// accept a nil *Registry and skip metrics entirely (nil input = nil feature).
type Registry struct {
	prometheusRegistry *prometheus.Registry
}

// NewRegistry creates a metrics registry with Go runtime and process
// collectors pre-registered.
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{prometheusRegistry: registry}
}

// Prometheus returns the underlying Prometheus registry
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.prometheusRegistry
}

// MustRegister registers collectors, panicking on duplicates. Component
// metric structs call this once at construction.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	r.prometheusRegistry.MustRegister(cs...)
}

// Handler returns the HTTP handler serving the /metrics endpoint
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{})
}
