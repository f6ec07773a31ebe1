package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/tracewatch/metric"
)

// EngineMetrics holds Prometheus metrics for the rule engine
type EngineMetrics struct {
	rulesLoaded        prometheus.Gauge
	loadsTotal         *prometheus.CounterVec
	evaluationsTotal   *prometheus.CounterVec
	matchesTotal       *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	compileErrorsTotal prometheus.Counter
}

// newEngineMetrics creates and registers engine metrics
func newEngineMetrics(registry *metric.Registry) *EngineMetrics {
	// Return nil if no registry provided (nil input = nil feature pattern)
	if registry == nil {
		return nil
	}

	metrics := &EngineMetrics{
		rulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "engine",
			Name:      "rules_loaded",
			Help:      "Number of compiled rules currently loaded",
		}),

		loadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "engine",
			Name:      "loads_total",
			Help:      "Total rule load attempts",
		}, []string{"result"}),

		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "engine",
			Name:      "evaluations_total",
			Help:      "Total trace evaluations per rule",
		}, []string{"rule_name", "result"}),

		matchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "engine",
			Name:      "matches_total",
			Help:      "Total rule matches by severity",
		}, []string{"rule_name", "severity"}),

		evaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "engine",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating a trace against all rules",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"outcome"}),

		compileErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "engine",
			Name:      "compile_errors_total",
			Help:      "Total rule expression compilation failures",
		}),
	}

	registry.MustRegister(
		metrics.rulesLoaded,
		metrics.loadsTotal,
		metrics.evaluationsTotal,
		metrics.matchesTotal,
		metrics.evaluationDuration,
		metrics.compileErrorsTotal,
	)

	return metrics
}
