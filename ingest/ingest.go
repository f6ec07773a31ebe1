// Package ingest receives spans from NATS and feeds them into the trace
// registry. Spans arrive as JSON on a configurable subject; each one is
// validated, then appended to its trace's buffer. Spans for traces already
// under evaluation are dropped and counted.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/tracewatch/errors"
	"github.com/c360/tracewatch/lifecycle"
	"github.com/c360/tracewatch/metric"
	"github.com/c360/tracewatch/natsclient"
	"github.com/c360/tracewatch/types"
)

// DefaultSubject is the NATS subject spans arrive on
const DefaultSubject = "tracewatch.spans"

// Config holds ingestor settings
type Config struct {
	Subject string           `json:"subject"`
	Limits  types.SpanLimits `json:"limits"`
}

// DefaultConfig returns the standard ingestor configuration
func DefaultConfig() Config {
	return Config{
		Subject: DefaultSubject,
		Limits:  types.DefaultSpanLimits(),
	}
}

// Ingestor subscribes to the span subject and drives the trace registry
type Ingestor struct {
	natsClient *natsclient.Client
	traces     *lifecycle.TraceRegistry
	config     Config
	metrics    *ingestMetrics
	logger     *slog.Logger

	mu       sync.Mutex
	shutdown chan struct{}
	done     chan struct{}
}

// New creates an ingestor feeding the given trace registry. Pass a nil
// metrics registry to disable metrics.
func New(natsClient *natsclient.Client, traces *lifecycle.TraceRegistry,
	config Config, registry *metric.Registry, logger *slog.Logger) *Ingestor {

	if logger == nil {
		logger = slog.Default()
	}
	if config.Subject == "" {
		config.Subject = DefaultSubject
	}

	return &Ingestor{
		natsClient: natsClient,
		traces:     traces,
		config:     config,
		metrics:    newIngestMetrics(registry, traces),
		logger:     logger.With("component", "ingest"),
	}
}

// Start subscribes to the span subject
func (i *Ingestor) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.shutdown != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Ingestor", "Start", "check state")
	}
	if !i.natsClient.IsHealthy() {
		return errors.WrapFatal(errors.ErrNoConnection, "Ingestor", "Start", "check NATS health")
	}

	if err := i.natsClient.Subscribe(ctx, i.config.Subject, i.handleMessage); err != nil {
		return errors.Wrap(err, "Ingestor", "Start", "subscribe to "+i.config.Subject)
	}

	i.shutdown = make(chan struct{})
	i.done = make(chan struct{})
	go i.run(ctx)

	i.logger.Info("ingestor started", "subject", i.config.Subject)
	return nil
}

func (i *Ingestor) run(ctx context.Context) {
	defer close(i.done)

	select {
	case <-i.shutdown:
		i.logger.Info("ingestor shutdown requested")
	case <-ctx.Done():
		i.logger.Info("ingestor context cancelled", "error", ctx.Err())
	}
}

// Stop stops the ingestor. The NATS subscription is released when the
// client closes.
func (i *Ingestor) Stop(timeout time.Duration) error {
	i.mu.Lock()
	if i.shutdown == nil {
		i.mu.Unlock()
		return nil
	}
	close(i.shutdown)
	done := i.done
	i.shutdown = nil
	i.done = nil
	i.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		i.logger.Warn("ingestor shutdown timeout", "timeout", timeout)
	}

	i.logger.Info("ingestor stopped")
	return nil
}

func (i *Ingestor) handleMessage(_ context.Context, data []byte) {
	i.countReceived()

	var span types.Span
	if err := json.Unmarshal(data, &span); err != nil {
		i.countRejected("decode")
		i.logger.Warn("span decode failed", "error", err)
		return
	}

	i.ingestSpan(&span)
}

// ingestSpan validates a span and appends it to its trace's buffer
func (i *Ingestor) ingestSpan(span *types.Span) {
	// Exporters occasionally omit span ids on synthetic spans
	if span.SpanID == "" && span.TraceID != "" {
		span.SpanID = uuid.New().String()
	}

	if err := span.Validate(i.config.Limits); err != nil {
		i.countRejected("invalid")
		i.logger.Warn("span rejected", "trace_id", span.TraceID, "error", err)
		return
	}

	fsm := i.traces.Get(span.TraceID)
	if err := fsm.AddSpan(span); err != nil {
		// Trace is Evaluating or Processed: too late for this span
		i.countLate()
		i.logger.Debug("late span dropped",
			"trace_id", span.TraceID, "span_id", span.SpanID, "state", fsm.State())
		return
	}

	i.countAccepted()
}
