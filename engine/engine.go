package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360/tracewatch/errors"
	"github.com/c360/tracewatch/metric"
	"github.com/c360/tracewatch/types"
)

// MaxRules caps the number of compiled rules held in memory
const MaxRules = 100000

// CompiledRule pairs a rule definition with its executable program
type CompiledRule struct {
	Rule    types.Rule
	Program Program
}

// Engine holds compiled rules and evaluates complete traces against them
type Engine struct {
	mu          sync.RWMutex
	rules       map[string]*CompiledRule
	parseErrors map[string]string
	compiler    Compiler
	maxRules    int
	metrics     *EngineMetrics
	logger      *slog.Logger
}

// Option configures the engine at construction
type Option func(*Engine)

// WithMaxRules overrides the default rule capacity
func WithMaxRules(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRules = n
		}
	}
}

// WithCompiler replaces the built-in expression compiler
func WithCompiler(c Compiler) Option {
	return func(e *Engine) {
		if c != nil {
			e.compiler = c
		}
	}
}

// NewEngine creates an empty rule engine. Pass a nil registry to disable
// metrics.
func NewEngine(registry *metric.Registry, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		rules:       make(map[string]*CompiledRule),
		parseErrors: make(map[string]string),
		compiler:    NewBasicCompiler(),
		maxRules:    MaxRules,
		metrics:     newEngineMetrics(registry),
		logger:      logger.With("component", "engine"),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// LoadRule compiles the rule expression and upserts the compiled rule. A
// compilation failure leaves any previously loaded version untouched and is
// recorded in the parse error map.
func (e *Engine) LoadRule(rule types.Rule) error {
	program, err := e.compiler.Compile(rule.Expression)
	if err != nil {
		e.mu.Lock()
		e.parseErrors[rule.ID] = err.Error()
		e.mu.Unlock()

		if e.metrics != nil {
			e.metrics.compileErrorsTotal.Inc()
			e.metrics.loadsTotal.WithLabelValues("compile_error").Inc()
		}
		e.logger.Warn("rule compilation failed", "rule_id", rule.ID, "error", err)
		return errors.Wrap(err, "Engine", "LoadRule", "compile rule "+rule.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.rules[rule.ID]; !exists && len(e.rules) >= e.maxRules {
		if e.metrics != nil {
			e.metrics.loadsTotal.WithLabelValues("limit").Inc()
		}
		return errors.WrapInvalid(errors.ErrRuleLimit, "Engine", "LoadRule",
			fmt.Sprintf("load rule %s (capacity %d reached)", rule.ID, e.maxRules))
	}

	e.rules[rule.ID] = &CompiledRule{Rule: rule, Program: program}
	delete(e.parseErrors, rule.ID)

	if e.metrics != nil {
		e.metrics.loadsTotal.WithLabelValues("ok").Inc()
		e.metrics.rulesLoaded.Set(float64(len(e.rules)))
	}
	e.logger.Info("rule loaded", "rule_id", rule.ID, "name", rule.Name, "enabled", rule.Enabled)
	return nil
}

// DeleteRule removes a compiled rule. Deleting an unknown rule is a no-op so
// compensation paths can call it unconditionally.
func (e *Engine) DeleteRule(ruleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.rules[ruleID]; !exists {
		return
	}
	delete(e.rules, ruleID)
	delete(e.parseErrors, ruleID)

	if e.metrics != nil {
		e.metrics.rulesLoaded.Set(float64(len(e.rules)))
	}
	e.logger.Info("rule deleted", "rule_id", ruleID)
}

// GetRule returns the definition of a loaded rule
func (e *Engine) GetRule(ruleID string) (types.Rule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	compiled, exists := e.rules[ruleID]
	if !exists {
		return types.Rule{}, errors.Wrap(errors.ErrRuleNotFound, "Engine", "GetRule", "look up rule "+ruleID)
	}
	return compiled.Rule, nil
}

// ListRules returns the definitions of all loaded rules, sorted by ID
func (e *Engine) ListRules() []types.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]types.Rule, 0, len(e.rules))
	for _, compiled := range e.rules {
		rules = append(rules, compiled.Rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// EvaluateTrace runs every enabled rule against the trace and returns one
// signal per matching rule.
func (e *Engine) EvaluateTrace(traceID string, spans []*types.Span) []types.Signal {
	start := time.Now()

	e.mu.RLock()
	compiled := make([]*CompiledRule, 0, len(e.rules))
	for _, cr := range e.rules {
		if cr.Rule.Enabled {
			compiled = append(compiled, cr)
		}
	}
	e.mu.RUnlock()

	var signals []types.Signal
	for _, cr := range compiled {
		matched := cr.Program.Match(spans)

		if e.metrics != nil {
			result := "no_match"
			if matched {
				result = "match"
			}
			e.metrics.evaluationsTotal.WithLabelValues(cr.Rule.Name, result).Inc()
		}
		if !matched {
			continue
		}

		signals = append(signals, types.NewSignal(cr.Rule, traceID, spans))
		if e.metrics != nil {
			e.metrics.matchesTotal.WithLabelValues(cr.Rule.Name, cr.Rule.Severity).Inc()
		}
		e.logger.Debug("rule matched", "rule_id", cr.Rule.ID, "trace_id", traceID,
			"severity", cr.Rule.Severity)
	}

	if e.metrics != nil {
		outcome := "clean"
		if len(signals) > 0 {
			outcome = "matched"
		}
		e.metrics.evaluationDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
	return signals
}

// Stats describes the engine's current rule set
type Stats struct {
	TotalRules    int `json:"total_rules"`
	EnabledRules  int `json:"enabled_rules"`
	DisabledRules int `json:"disabled_rules"`
	ParseErrors   int `json:"parse_errors"`
}

// GetStats returns a snapshot of the engine state
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := Stats{
		TotalRules:  len(e.rules),
		ParseErrors: len(e.parseErrors),
	}
	for _, cr := range e.rules {
		if cr.Rule.Enabled {
			stats.EnabledRules++
		} else {
			stats.DisabledRules++
		}
	}
	return stats
}

// ParseErrors returns a copy of the compilation errors keyed by rule ID
func (e *Engine) ParseErrors() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]string, len(e.parseErrors))
	for id, msg := range e.parseErrors {
		out[id] = msg
	}
	return out
}
