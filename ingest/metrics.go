package ingest

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/tracewatch/lifecycle"
	"github.com/c360/tracewatch/metric"
)

// ingestMetrics holds Prometheus metrics for span ingestion
type ingestMetrics struct {
	spansReceived prometheus.Counter
	spansAccepted prometheus.Counter
	spansRejected *prometheus.CounterVec
	spansLate     prometheus.Counter
	activeTraces  prometheus.GaugeFunc
}

// newIngestMetrics creates and registers ingestion metrics
func newIngestMetrics(registry *metric.Registry, traces *lifecycle.TraceRegistry) *ingestMetrics {
	// Return nil if no registry provided (nil input = nil feature pattern)
	if registry == nil {
		return nil
	}

	metrics := &ingestMetrics{
		spansReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "ingest",
			Name:      "spans_received_total",
			Help:      "Span messages received from NATS",
		}),

		spansAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "ingest",
			Name:      "spans_accepted_total",
			Help:      "Spans accepted into a trace buffer",
		}),

		spansRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "ingest",
			Name:      "spans_rejected_total",
			Help:      "Spans rejected before buffering",
		}, []string{"reason"}),

		spansLate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "ingest",
			Name:      "spans_late_total",
			Help:      "Spans dropped because their trace was already being evaluated",
		}),

		activeTraces: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "ingest",
			Name:      "active_traces",
			Help:      "Traces currently tracked in the registry",
		}, func() float64 {
			return float64(traces.Count())
		}),
	}

	registry.MustRegister(
		metrics.spansReceived,
		metrics.spansAccepted,
		metrics.spansRejected,
		metrics.spansLate,
		metrics.activeTraces,
	)

	return metrics
}

func (i *Ingestor) countReceived() {
	if i.metrics != nil {
		i.metrics.spansReceived.Inc()
	}
}

func (i *Ingestor) countAccepted() {
	if i.metrics != nil {
		i.metrics.spansAccepted.Inc()
	}
}

func (i *Ingestor) countRejected(reason string) {
	if i.metrics != nil {
		i.metrics.spansRejected.WithLabelValues(reason).Inc()
	}
}

func (i *Ingestor) countLate() {
	if i.metrics != nil {
		i.metrics.spansLate.Inc()
	}
}
