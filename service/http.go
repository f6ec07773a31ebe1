package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/tracewatch/engine"
	"github.com/c360/tracewatch/metric"
	"github.com/c360/tracewatch/natsclient"
)

// healthResponse is the /healthz payload
type healthResponse struct {
	Status string       `json:"status"`
	NATS   string       `json:"nats"`
	Rules  engine.Stats `json:"rules"`
}

// httpServer serves /metrics and /healthz
type httpServer struct {
	server     *http.Server
	natsClient *natsclient.Client
	engine     *engine.Engine
	logger     *slog.Logger
}

func newHTTPServer(addr string, registry *metric.Registry, natsClient *natsclient.Client,
	ruleEngine *engine.Engine, logger *slog.Logger) *httpServer {

	if logger == nil {
		logger = slog.Default()
	}
	s := &httpServer{
		natsClient: natsClient,
		engine:     ruleEngine,
		logger:     logger.With("component", "http"),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving. Listen errors after startup are logged, not
// returned; the service keeps running without the HTTP surface.
func (s *httpServer) Start(_ context.Context) error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http listener failed", "addr", s.server.Addr, "error", err)
		}
	}()

	s.logger.Info("http listener started", "addr", s.server.Addr)
	return nil
}

// Stop drains in-flight requests up to the timeout
func (s *httpServer) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *httpServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status: "ok",
		NATS:   s.natsClient.Status().String(),
		Rules:  s.engine.GetStats(),
	}

	code := http.StatusOK
	if !s.natsClient.IsHealthy() {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("health response encode failed", "error", err)
	}
}
