package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/tracewatch/metric"
)

// coordinatorMetrics holds Prometheus metrics for rule lifecycle operations
type coordinatorMetrics struct {
	operationsTotal           *prometheus.CounterVec
	compensationsTotal        *prometheus.CounterVec
	compensationFailuresTotal prometheus.Counter
}

// newCoordinatorMetrics creates and registers coordinator metrics
func newCoordinatorMetrics(registry *metric.Registry) *coordinatorMetrics {
	// Return nil if no registry provided (nil input = nil feature pattern)
	if registry == nil {
		return nil
	}

	metrics := &coordinatorMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "coordinator",
			Name:      "operations_total",
			Help:      "Rule lifecycle operations by outcome",
		}, []string{"operation", "result"}),

		compensationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "coordinator",
			Name:      "compensations_total",
			Help:      "Compensating actions taken after a mid-operation failure",
		}, []string{"operation"}),

		compensationFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "coordinator",
			Name:      "compensation_failures_total",
			Help:      "Compensating actions that themselves failed, leaving store and engine inconsistent",
		}),
	}

	registry.MustRegister(
		metrics.operationsTotal,
		metrics.compensationsTotal,
		metrics.compensationFailuresTotal,
	)

	return metrics
}

func (c *Coordinator) countOperation(operation, result string) {
	if c.metrics != nil {
		c.metrics.operationsTotal.WithLabelValues(operation, result).Inc()
	}
}

func (c *Coordinator) countCompensation(operation string) {
	if c.metrics != nil {
		c.metrics.compensationsTotal.WithLabelValues(operation).Inc()
	}
}

func (c *Coordinator) countCompensationFailure() {
	if c.metrics != nil {
		c.metrics.compensationFailuresTotal.Inc()
	}
}
