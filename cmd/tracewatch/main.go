// Package main implements the entry point for TraceWatch, a trace
// analysis service that evaluates OpenTelemetry traces against behavioral
// rules and raises signals for matches.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/tracewatch/config"
	"github.com/c360/tracewatch/service"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "tracewatch"
)

// cliConfig holds command-line configuration
type cliConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	Validate        bool
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI flags beat both file and environment
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("configuration is valid")
		return nil
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	slog.Info("starting TraceWatch",
		"version", Version,
		"config_path", cliCfg.ConfigPath)

	svc, err := service.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	return runWithSignalHandling(svc, cliCfg.ShutdownTimeout)
}

func parseFlags() *cliConfig {
	cfg := &cliConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		os.Getenv("TRACEWATCH_CONFIG"),
		"Path to configuration file (env: TRACEWATCH_CONFIG)")
	flag.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	flag.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text")
	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 30*time.Second,
		"Graceful shutdown timeout")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Parse()
	return cfg
}

// runWithSignalHandling starts the service and blocks until a shutdown
// signal arrives.
func runWithSignalHandling(svc *service.Service, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := svc.Start(signalCtx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	slog.Info("TraceWatch started")

	<-signalCtx.Done()
	slog.Info("received shutdown signal")

	if err := svc.Stop(shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("TraceWatch shutdown complete")
	return nil
}
