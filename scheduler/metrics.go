package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/tracewatch/metric"
)

// schedulerMetrics holds Prometheus metrics for the sweep loop
type schedulerMetrics struct {
	sweepsTotal        prometheus.Counter
	timeoutsTotal      prometheus.Counter
	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	signalsTotal       *prometheus.CounterVec
	reclaimedTotal     prometheus.Counter
	evictedTotal       prometheus.Counter
}

// newSchedulerMetrics creates and registers scheduler metrics
func newSchedulerMetrics(registry *metric.Registry) *schedulerMetrics {
	// Return nil if no registry provided (nil input = nil feature pattern)
	if registry == nil {
		return nil
	}

	metrics := &schedulerMetrics{
		sweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "sweeps_total",
			Help:      "Sweep passes over the trace registry",
		}),

		timeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "trace_timeouts_total",
			Help:      "Traces marked complete after an idle buffer window",
		}),

		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "evaluations_total",
			Help:      "Trace evaluations by outcome",
		}, []string{"result"}),

		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating a single trace",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),

		signalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "signals_total",
			Help:      "Signals raised by matched rules",
		}, []string{"severity"}),

		reclaimedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "evaluations_reclaimed_total",
			Help:      "Evaluations requeued after exceeding the deadline",
		}),

		evictedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "scheduler",
			Name:      "traces_evicted_total",
			Help:      "Traces removed from the registry",
		}),
	}

	registry.MustRegister(
		metrics.sweepsTotal,
		metrics.timeoutsTotal,
		metrics.evaluationsTotal,
		metrics.evaluationDuration,
		metrics.signalsTotal,
		metrics.reclaimedTotal,
		metrics.evictedTotal,
	)

	return metrics
}

func (s *Scheduler) countSweep() {
	if s.metrics != nil {
		s.metrics.sweepsTotal.Inc()
	}
}

func (s *Scheduler) countTimeout() {
	if s.metrics != nil {
		s.metrics.timeoutsTotal.Inc()
	}
}

func (s *Scheduler) countEvaluation(result string) {
	if s.metrics != nil {
		s.metrics.evaluationsTotal.WithLabelValues(result).Inc()
	}
}

func (s *Scheduler) observeEvaluation(elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.evaluationDuration.Observe(elapsed.Seconds())
	}
}

func (s *Scheduler) countSignal(severity string) {
	if s.metrics != nil {
		s.metrics.signalsTotal.WithLabelValues(severity).Inc()
	}
}

func (s *Scheduler) countReclaimed() {
	if s.metrics != nil {
		s.metrics.reclaimedTotal.Inc()
	}
}

func (s *Scheduler) countEvicted() {
	if s.metrics != nil {
		s.metrics.evictedTotal.Inc()
	}
}
