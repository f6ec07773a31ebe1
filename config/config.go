// Package config loads TraceWatch configuration from a JSON file with
// environment variable overrides. Defaults are applied first, then the
// file, then TRACEWATCH_* variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c360/tracewatch/errors"
	"github.com/c360/tracewatch/ingest"
	"github.com/c360/tracewatch/scheduler"
	"github.com/c360/tracewatch/types"
)

// EnvPrefix is the prefix for environment variable overrides
const EnvPrefix = "TRACEWATCH"

// Config represents the complete application configuration
type Config struct {
	NATS      NATSConfig       `json:"nats"`
	HTTP      HTTPConfig       `json:"http"`
	Log       LogConfig        `json:"log"`
	Engine    EngineConfig     `json:"engine"`
	Ingest    ingest.Config    `json:"ingest"`
	Scheduler scheduler.Config `json:"scheduler"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URL           string        `json:"url"`
	Name          string        `json:"name,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
}

// HTTPConfig defines the metrics and health endpoint listener
type HTTPConfig struct {
	Addr string `json:"addr"`
}

// LogConfig defines logging output settings
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// EngineConfig defines rule engine limits
type EngineConfig struct {
	MaxRules int              `json:"max_rules,omitempty"`
	Limits   types.RuleLimits `json:"limits"`
}

// Default returns the standard configuration
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Name:          "tracewatch",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			Limits: types.DefaultRuleLimits(),
		},
		Ingest:    ingest.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
	}
}

// Load reads configuration from an optional JSON file, applies environment
// overrides, and validates the result. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile merges a JSON file into cfg. Duration fields accept either
// Go duration strings ("5s") or nanosecond numbers.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapFatal(err, "Config", "Load", "read "+path)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WrapInvalid(err, "Config", "Load", "parse "+path)
	}
	parseDurations(raw)

	processed, err := json.Marshal(raw)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Load", "normalize "+path)
	}
	if err := json.Unmarshal(processed, cfg); err != nil {
		return errors.WrapInvalid(err, "Config", "Load", "decode "+path)
	}
	return nil
}

// parseDurations converts duration strings to nanoseconds so they
// unmarshal into time.Duration fields.
func parseDurations(raw map[string]any) {
	if nats, ok := raw["nats"].(map[string]any); ok {
		parseDurationField(nats, "reconnect_wait")
	}
	if sched, ok := raw["scheduler"].(map[string]any); ok {
		parseDurationField(sched, "sweep_interval")
		parseDurationField(sched, "buffer_window")
		parseDurationField(sched, "evaluation_deadline")
	}
}

func parseDurationField(section map[string]any, field string) {
	if s, ok := section[field].(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			section[field] = d.Nanoseconds()
		}
	}
}

// applyEnvOverrides applies TRACEWATCH_* environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(EnvPrefix + "_NATS_URL"); val != "" {
		cfg.NATS.URL = val
	}
	if val := os.Getenv(EnvPrefix + "_HTTP_ADDR"); val != "" {
		cfg.HTTP.Addr = val
	}
	if val := os.Getenv(EnvPrefix + "_LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv(EnvPrefix + "_LOG_FORMAT"); val != "" {
		cfg.Log.Format = val
	}
	if val := os.Getenv(EnvPrefix + "_SPAN_SUBJECT"); val != "" {
		cfg.Ingest.Subject = val
	}
	if val := os.Getenv(EnvPrefix + "_MAX_RULES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Engine.MaxRules = n
		}
	}
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "validate nats.url (empty)")
	}
	if c.HTTP.Addr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "validate http.addr (empty)")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("validate log.level (%q)", c.Log.Level))
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("validate log.format (%q)", c.Log.Format))
	}

	if c.Engine.MaxRules < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("validate engine.max_rules (%d)", c.Engine.MaxRules))
	}
	if c.Scheduler.SweepInterval < 0 || c.Scheduler.BufferWindow < 0 || c.Scheduler.EvaluationDeadline < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "validate scheduler durations (negative)")
	}

	return nil
}

// String returns an indented JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
