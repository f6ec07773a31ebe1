// Package scheduler drives traces through their lifecycle. A sweep loop
// marks idle traces complete, hands complete traces to the rule engine,
// publishes the resulting signals to NATS, and evicts processed traces
// from the registry. It also reclaims traces stuck in evaluation past a
// deadline so a failed evaluation never strands a trace.
package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/tracewatch/errors"
	"github.com/c360/tracewatch/lifecycle"
	"github.com/c360/tracewatch/metric"
	"github.com/c360/tracewatch/types"
)

// DefaultSignalSubjectPrefix is the NATS subject prefix signals publish
// under; the rule severity is appended as the final token.
const DefaultSignalSubjectPrefix = "tracewatch.signals"

// Config holds scheduler timing settings
type Config struct {
	SweepInterval       time.Duration `json:"sweep_interval"`
	BufferWindow        time.Duration `json:"buffer_window"`
	EvaluationDeadline  time.Duration `json:"evaluation_deadline"`
	SignalSubjectPrefix string        `json:"signal_subject_prefix"`
}

// DefaultConfig returns the standard scheduler configuration
func DefaultConfig() Config {
	return Config{
		SweepInterval:       1 * time.Second,
		BufferWindow:        5 * time.Second,
		EvaluationDeadline:  30 * time.Second,
		SignalSubjectPrefix: DefaultSignalSubjectPrefix,
	}
}

// Evaluator runs trace-level rules against a complete trace
type Evaluator interface {
	EvaluateTrace(traceID string, spans []*types.Span) []types.Signal
}

// Publisher sends signal payloads to a subject. Nil disables publication.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// activity records what the sweep last saw for a Receiving trace
type activity struct {
	spanCount int
	changedAt time.Time
}

// Scheduler sweeps the trace registry on an interval
type Scheduler struct {
	traces    *lifecycle.TraceRegistry
	evaluator Evaluator
	publisher Publisher
	config    Config
	metrics   *schedulerMetrics
	logger    *slog.Logger

	// touched only by the sweep goroutine
	activity    map[string]*activity
	evalStarted map[string]time.Time

	mu       sync.Mutex
	shutdown chan struct{}
	done     chan struct{}
}

// New creates a scheduler over the given trace registry. publisher may be
// nil, in which case signals are logged but not published. Pass a nil
// metrics registry to disable metrics.
func New(traces *lifecycle.TraceRegistry, evaluator Evaluator, publisher Publisher,
	config Config, registry *metric.Registry, logger *slog.Logger) *Scheduler {

	if logger == nil {
		logger = slog.Default()
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 1 * time.Second
	}
	if config.BufferWindow <= 0 {
		config.BufferWindow = 5 * time.Second
	}
	if config.EvaluationDeadline <= 0 {
		config.EvaluationDeadline = 30 * time.Second
	}
	if config.SignalSubjectPrefix == "" {
		config.SignalSubjectPrefix = DefaultSignalSubjectPrefix
	}

	return &Scheduler{
		traces:      traces,
		evaluator:   evaluator,
		publisher:   publisher,
		config:      config,
		metrics:     newSchedulerMetrics(registry),
		logger:      logger.With("component", "scheduler"),
		activity:    make(map[string]*activity),
		evalStarted: make(map[string]time.Time),
	}
}

// Start launches the sweep loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Scheduler", "Start", "check state")
	}

	s.shutdown = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(ctx)

	s.logger.Info("scheduler started",
		"sweep_interval", s.config.SweepInterval,
		"buffer_window", s.config.BufferWindow)
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			s.logger.Info("scheduler shutdown requested")
			return
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled", "error", ctx.Err())
			return
		case <-ticker.C:
			s.sweep(ctx, time.Now())
		}
	}
}

// Stop stops the sweep loop
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.shutdown == nil {
		s.mu.Unlock()
		return nil
	}
	close(s.shutdown)
	done := s.done
	s.shutdown = nil
	s.done = nil
	s.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("scheduler shutdown timeout", "timeout", timeout)
	}

	s.logger.Info("scheduler stopped")
	return nil
}

// sweep advances every trace one step where its lifecycle allows it
func (s *Scheduler) sweep(ctx context.Context, now time.Time) {
	s.countSweep()

	s.timeoutIdleTraces(now)
	s.reclaimStuckEvaluations(now)
	s.evaluateCompleteTraces(ctx, now)
	s.evictProcessedTraces()
}

// timeoutIdleTraces marks Receiving traces complete once no new span has
// arrived for a full buffer window.
func (s *Scheduler) timeoutIdleTraces(now time.Time) {
	for _, fsm := range s.traces.GetByState(lifecycle.TraceReceiving) {
		traceID := fsm.TraceID()
		count := fsm.SpanCount()

		seen, ok := s.activity[traceID]
		if !ok || seen.spanCount != count {
			s.activity[traceID] = &activity{spanCount: count, changedAt: now}
			continue
		}

		if now.Sub(seen.changedAt) < s.config.BufferWindow {
			continue
		}

		// A span may land between GetByState and here; the transition
		// failing just means the trace is active again.
		if err := fsm.Transition(lifecycle.EventTimeout); err != nil {
			continue
		}
		s.countTimeout()
		s.logger.Debug("trace buffering complete", "trace_id", traceID, "spans", count)
	}
}

// reclaimStuckEvaluations pushes traces stuck in Evaluating past the
// deadline back to Complete so the next sweep retries them.
func (s *Scheduler) reclaimStuckEvaluations(now time.Time) {
	for _, fsm := range s.traces.GetByState(lifecycle.TraceEvaluating) {
		traceID := fsm.TraceID()

		started, ok := s.evalStarted[traceID]
		if !ok {
			// Unknown start time (restart mid-evaluation): begin the clock now
			s.evalStarted[traceID] = now
			continue
		}
		if now.Sub(started) < s.config.EvaluationDeadline {
			continue
		}

		if err := fsm.Transition(lifecycle.EventEvaluationFailed); err != nil {
			continue
		}
		delete(s.evalStarted, traceID)
		s.countReclaimed()
		s.logger.Warn("evaluation deadline exceeded, trace requeued",
			"trace_id", traceID, "deadline", s.config.EvaluationDeadline)
	}
}

// evaluateCompleteTraces claims each Complete trace and runs the engine
// over its span buffer.
func (s *Scheduler) evaluateCompleteTraces(ctx context.Context, now time.Time) {
	for _, fsm := range s.traces.GetByState(lifecycle.TraceComplete) {
		traceID := fsm.TraceID()

		// A Complete trace with an empty buffer can never start
		// evaluation; drop it rather than resweep it forever. A span
		// landing between this check and the removal goes down with the
		// entry: anything arriving that late is past the trace window.
		if fsm.SpanCount() == 0 {
			s.removeTrace(traceID)
			continue
		}

		if err := fsm.Transition(lifecycle.EventStartEvaluation); err != nil {
			// Late span reopened the trace
			continue
		}
		s.evalStarted[traceID] = now

		s.evaluateTrace(ctx, fsm)
	}
}

// evaluateTrace runs the engine over one Evaluating trace and publishes
// any signals. Publish failure requeues the trace for the next sweep.
func (s *Scheduler) evaluateTrace(ctx context.Context, fsm *lifecycle.TraceFSM) {
	traceID := fsm.TraceID()
	spans := fsm.Spans()

	started := time.Now()
	signals := s.evaluator.EvaluateTrace(traceID, spans)
	s.observeEvaluation(time.Since(started))

	if err := s.publishSignals(ctx, signals); err != nil {
		s.countEvaluation("failed")
		s.logger.Error("signal publication failed, trace requeued",
			"trace_id", traceID, "signals", len(signals), "error", err)
		if err := fsm.Transition(lifecycle.EventEvaluationFailed); err != nil {
			s.logger.Error("trace requeue failed", "trace_id", traceID, "error", err)
		}
		return
	}

	if err := fsm.Transition(lifecycle.EventEvaluationComplete); err != nil {
		s.countEvaluation("failed")
		s.logger.Error("trace completion failed", "trace_id", traceID, "error", err)
		return
	}

	s.countEvaluation("ok")
	s.removeTrace(traceID)
	s.logger.Debug("trace evaluated",
		"trace_id", traceID, "spans", len(spans), "signals", len(signals))
}

// publishSignals sends each signal to <prefix>.<severity>
func (s *Scheduler) publishSignals(ctx context.Context, signals []types.Signal) error {
	for _, signal := range signals {
		s.countSignal(signal.Severity)

		if s.publisher == nil {
			s.logger.Info("signal raised",
				"rule_id", signal.RuleID, "rule_name", signal.RuleName,
				"severity", signal.Severity, "trace_id", signal.TraceID)
			continue
		}

		data, err := json.Marshal(signal)
		if err != nil {
			return errors.WrapInvalid(err, "Scheduler", "publishSignals", "encode signal "+signal.ID)
		}

		subject := s.config.SignalSubjectPrefix + "." + signal.Severity
		if err := s.publisher.Publish(ctx, subject, data); err != nil {
			return errors.Wrap(err, "Scheduler", "publishSignals", "publish to "+subject)
		}
	}
	return nil
}

// evictProcessedTraces removes terminal traces from the registry
func (s *Scheduler) evictProcessedTraces() {
	for _, fsm := range s.traces.GetByState(lifecycle.TraceProcessed) {
		s.removeTrace(fsm.TraceID())
	}
}

func (s *Scheduler) removeTrace(traceID string) {
	s.traces.Remove(traceID)
	delete(s.activity, traceID)
	delete(s.evalStarted, traceID)
	s.countEvicted()
}
