// Package service wires the TraceWatch components into one runnable
// service: NATS client, rule store, rule engine, lifecycle coordinator,
// span ingestor, trace scheduler, and the HTTP listener for metrics and
// health. Startup is ordered so every component's dependencies are
// connected before it starts; shutdown runs in reverse.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/tracewatch/config"
	"github.com/c360/tracewatch/coordinator"
	"github.com/c360/tracewatch/engine"
	"github.com/c360/tracewatch/errors"
	"github.com/c360/tracewatch/ingest"
	"github.com/c360/tracewatch/lifecycle"
	"github.com/c360/tracewatch/metric"
	"github.com/c360/tracewatch/natsclient"
	"github.com/c360/tracewatch/rulestore"
	"github.com/c360/tracewatch/scheduler"
)

const connectTimeout = 10 * time.Second

// Service owns the lifecycle of all TraceWatch components
type Service struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metric.Registry

	natsClient  *natsclient.Client
	traces      *lifecycle.TraceRegistry
	engine      *engine.Engine
	store       *rulestore.Store
	coordinator *coordinator.Coordinator
	ingestor    *ingest.Ingestor
	scheduler   *scheduler.Scheduler
	httpServer  *httpServer

	mu      sync.Mutex
	started bool
}

// New creates a service from validated configuration
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Service", "New", "check config")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		cfg:     cfg,
		logger:  logger.With("component", "service"),
		metrics: metric.NewRegistry(),
	}, nil
}

// Coordinator returns the rule lifecycle coordinator. Nil until Start.
func (s *Service) Coordinator() *coordinator.Coordinator {
	return s.coordinator
}

// Start connects infrastructure and starts every component in dependency
// order: NATS, store, engine, coordinator (with persisted rule recovery),
// ingestor, scheduler, HTTP listener.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Service", "Start", "check state")
	}

	if err := s.connectNATS(ctx); err != nil {
		return err
	}

	store, err := rulestore.NewStore(s.natsClient)
	if err != nil {
		s.teardown(ctx)
		return errors.Wrap(err, "Service", "Start", "create rule store")
	}
	s.store = store

	engineOpts := []engine.Option{}
	if s.cfg.Engine.MaxRules > 0 {
		engineOpts = append(engineOpts, engine.WithMaxRules(s.cfg.Engine.MaxRules))
	}
	s.engine = engine.NewEngine(s.metrics, s.logger, engineOpts...)
	s.traces = lifecycle.NewTraceRegistry()

	s.coordinator = coordinator.New(s.store, s.engine, s.metrics, s.logger,
		coordinator.WithLimits(s.cfg.Engine.Limits))
	restored, err := s.coordinator.RestorePersisted(ctx)
	if err != nil {
		s.teardown(ctx)
		return errors.Wrap(err, "Service", "Start", "restore persisted rules")
	}
	s.logger.Info("persisted rules restored", "count", restored)

	s.ingestor = ingest.New(s.natsClient, s.traces, s.cfg.Ingest, s.metrics, s.logger)
	if err := s.ingestor.Start(ctx); err != nil {
		s.teardown(ctx)
		return errors.Wrap(err, "Service", "Start", "start ingestor")
	}

	s.scheduler = scheduler.New(s.traces, s.engine, s.natsClient, s.cfg.Scheduler, s.metrics, s.logger)
	if err := s.scheduler.Start(ctx); err != nil {
		s.teardown(ctx)
		return errors.Wrap(err, "Service", "Start", "start scheduler")
	}

	s.httpServer = newHTTPServer(s.cfg.HTTP.Addr, s.metrics, s.natsClient, s.engine, s.logger)
	if err := s.httpServer.Start(ctx); err != nil {
		s.teardown(ctx)
		return errors.Wrap(err, "Service", "Start", "start http listener")
	}

	s.started = true
	s.logger.Info("tracewatch started",
		"nats_url", s.cfg.NATS.URL,
		"http_addr", s.cfg.HTTP.Addr,
		"span_subject", s.cfg.Ingest.Subject)
	return nil
}

func (s *Service) connectNATS(ctx context.Context) error {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(s.logger),
		natsclient.WithMaxReconnects(s.cfg.NATS.MaxReconnects),
	}
	if s.cfg.NATS.Name != "" {
		opts = append(opts, natsclient.WithName(s.cfg.NATS.Name))
	}
	if s.cfg.NATS.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(s.cfg.NATS.ReconnectWait))
	}

	client, err := natsclient.NewClient(s.cfg.NATS.URL, opts...)
	if err != nil {
		return errors.Wrap(err, "Service", "Start", "create NATS client")
	}
	s.natsClient = client

	if err := client.Connect(ctx); err != nil {
		return errors.Wrap(err, "Service", "Start", "connect to NATS")
	}

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		s.teardown(ctx)
		return errors.WrapTransient(err, "Service", "Start", "wait for NATS connection")
	}

	return nil
}

// Stop shuts components down in reverse start order, giving each a share
// of the timeout.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	componentTimeout := timeout / 4

	if s.httpServer != nil {
		if err := s.httpServer.Stop(componentTimeout); err != nil {
			s.logger.Error("http listener stop failed", "error", err)
		}
	}
	if s.scheduler != nil {
		if err := s.scheduler.Stop(componentTimeout); err != nil {
			s.logger.Error("scheduler stop failed", "error", err)
		}
	}
	if s.ingestor != nil {
		if err := s.ingestor.Stop(componentTimeout); err != nil {
			s.logger.Error("ingestor stop failed", "error", err)
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), componentTimeout)
	defer cancel()
	if s.natsClient != nil {
		if err := s.natsClient.Close(closeCtx); err != nil {
			s.logger.Error("NATS close failed", "error", err)
		}
	}

	s.logger.Info("tracewatch stopped")
	return nil
}

// teardown releases whatever Start managed to bring up before failing
func (s *Service) teardown(ctx context.Context) {
	if s.scheduler != nil {
		_ = s.scheduler.Stop(time.Second)
	}
	if s.ingestor != nil {
		_ = s.ingestor.Stop(time.Second)
	}
	if s.natsClient != nil {
		_ = s.natsClient.Close(ctx)
	}
}
