package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c360/tracewatch/errors"
	"github.com/c360/tracewatch/types"
)

// Program is a compiled rule expression ready for evaluation. Programs must
// be immutable so traces can be evaluated without locks.
type Program interface {
	// Match reports whether the trace violates the rule's invariant
	Match(spans []*types.Span) bool
}

// Compiler turns a rule expression into an executable Program
type Compiler interface {
	Compile(expression string) (Program, error)
}

// predicate is a single compiled condition over a trace
type predicate func(spans []*types.Span) bool

// program is a conjunction of predicates
type program struct {
	predicates []predicate
}

func (p *program) Match(spans []*types.Span) bool {
	for _, pred := range p.predicates {
		if !pred(spans) {
			return false
		}
	}
	return len(p.predicates) > 0
}

// basicCompiler compiles the conjunctive predicate form used when no full
// DSL compiler is injected. Supported predicates, joined with "&&":
//
//	trace.has(error)            any span with ERROR status
//	service == "name"           any span from the named service
//	operation == "name"         any span with the named operation
//	duration > 250ms            any span longer than the threshold
//	span.count > 10             more spans than the threshold
//	attr.key == "value"         any span carrying the attribute value
type basicCompiler struct{}

// NewBasicCompiler returns the built-in expression compiler
func NewBasicCompiler() Compiler {
	return &basicCompiler{}
}

func (c *basicCompiler) Compile(expression string) (Program, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, errors.WrapInvalid(errors.ErrCompileFailed, "Compiler", "Compile",
			"compile empty expression")
	}

	parts := strings.Split(expression, "&&")
	predicates := make([]predicate, 0, len(parts))
	for _, part := range parts {
		pred, err := c.compilePredicate(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		predicates = append(predicates, pred)
	}

	return &program{predicates: predicates}, nil
}

func (c *basicCompiler) compilePredicate(condition string) (predicate, error) {
	switch {
	case condition == "trace.has(error)":
		return func(spans []*types.Span) bool {
			for _, span := range spans {
				if span.IsError() {
					return true
				}
			}
			return false
		}, nil

	case strings.HasPrefix(condition, "service == "):
		name, err := unquote(strings.TrimPrefix(condition, "service == "))
		if err != nil {
			return nil, compileError(condition, err)
		}
		return func(spans []*types.Span) bool {
			for _, span := range spans {
				if span.ServiceName == name {
					return true
				}
			}
			return false
		}, nil

	case strings.HasPrefix(condition, "operation == "):
		name, err := unquote(strings.TrimPrefix(condition, "operation == "))
		if err != nil {
			return nil, compileError(condition, err)
		}
		return func(spans []*types.Span) bool {
			for _, span := range spans {
				if span.OperationName == name {
					return true
				}
			}
			return false
		}, nil

	case strings.HasPrefix(condition, "duration > "):
		threshold, err := time.ParseDuration(strings.TrimPrefix(condition, "duration > "))
		if err != nil {
			return nil, compileError(condition, err)
		}
		return func(spans []*types.Span) bool {
			for _, span := range spans {
				if span.Duration > threshold.Nanoseconds() {
					return true
				}
			}
			return false
		}, nil

	case strings.HasPrefix(condition, "span.count > "):
		threshold, err := strconv.Atoi(strings.TrimPrefix(condition, "span.count > "))
		if err != nil {
			return nil, compileError(condition, err)
		}
		return func(spans []*types.Span) bool {
			return len(spans) > threshold
		}, nil

	case strings.HasPrefix(condition, "attr."):
		rest := strings.TrimPrefix(condition, "attr.")
		key, rawValue, found := strings.Cut(rest, " == ")
		if !found || key == "" {
			return nil, compileError(condition, fmt.Errorf("expected attr.<key> == \"value\""))
		}
		value, err := unquote(rawValue)
		if err != nil {
			return nil, compileError(condition, err)
		}
		return func(spans []*types.Span) bool {
			for _, span := range spans {
				if span.Attributes[key] == value {
					return true
				}
			}
			return false
		}, nil

	default:
		return nil, compileError(condition, fmt.Errorf("unrecognized predicate"))
	}
}

func compileError(condition string, err error) error {
	return errors.WrapInvalid(errors.ErrCompileFailed, "Compiler", "Compile",
		fmt.Sprintf("compile predicate %q (%v)", condition, err))
}

func unquote(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || !strings.HasPrefix(s, `"`) || !strings.HasSuffix(s, `"`) {
		return "", fmt.Errorf("expected quoted string, got %q", s)
	}
	return s[1 : len(s)-1], nil
}
