// Package types contains the shared domain types used across the TraceWatch
// platform: rules, spans, and the signals raised when a rule matches a trace.
package types

import (
	"fmt"
	"time"

	"github.com/c360/tracewatch/errors"
)

// Rule severity levels
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
)

// Rule is a behavioral invariant evaluated against complete traces.
// Expression holds the rule source; the engine compiles it on load.
type Rule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Expression  string    `json:"expression"`
	Enabled     bool      `json:"enabled"`
	Severity    string    `json:"severity"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RuleLimits bounds the size and shape of rule fields. Checked before every
// validate transition in the rule lifecycle.
type RuleLimits struct {
	MaxExpressionLength  int `json:"max_expression_length"`
	MaxNameLength        int `json:"max_name_length"`
	MaxDescriptionLength int `json:"max_description_length"`
	MaxTags              int `json:"max_tags"`
}

// DefaultRuleLimits returns the standard rule field limits
func DefaultRuleLimits() RuleLimits {
	return RuleLimits{
		MaxExpressionLength:  65536,
		MaxNameLength:        256,
		MaxDescriptionLength: 4096,
		MaxTags:              32,
	}
}

// Validate checks required fields and size limits
func (r Rule) Validate(limits RuleLimits) error {
	if r.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidRule, "Rule", "Validate", "validate rule ID (empty)")
	}
	if r.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidRule, "Rule", "Validate", "validate rule name (empty)")
	}
	if r.Expression == "" {
		return errors.WrapInvalid(errors.ErrInvalidRule, "Rule", "Validate", "validate expression (empty)")
	}
	if limits.MaxNameLength > 0 && len(r.Name) > limits.MaxNameLength {
		return errors.WrapInvalid(errors.ErrInvalidRule, "Rule", "Validate",
			fmt.Sprintf("validate name length (%d exceeds %d)", len(r.Name), limits.MaxNameLength))
	}
	if limits.MaxExpressionLength > 0 && len(r.Expression) > limits.MaxExpressionLength {
		return errors.WrapInvalid(errors.ErrInvalidRule, "Rule", "Validate",
			fmt.Sprintf("validate expression length (%d exceeds %d)", len(r.Expression), limits.MaxExpressionLength))
	}
	if limits.MaxDescriptionLength > 0 && len(r.Description) > limits.MaxDescriptionLength {
		return errors.WrapInvalid(errors.ErrInvalidRule, "Rule", "Validate",
			fmt.Sprintf("validate description length (%d exceeds %d)", len(r.Description), limits.MaxDescriptionLength))
	}
	if limits.MaxTags > 0 && len(r.Tags) > limits.MaxTags {
		return errors.WrapInvalid(errors.ErrInvalidRule, "Rule", "Validate",
			fmt.Sprintf("validate tag count (%d exceeds %d)", len(r.Tags), limits.MaxTags))
	}
	switch r.Severity {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return nil
	default:
		return errors.WrapInvalid(errors.ErrInvalidRule, "Rule", "Validate",
			fmt.Sprintf("validate severity (%q)", r.Severity))
	}
}
