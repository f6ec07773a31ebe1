package types

import (
	"fmt"
	"time"

	"github.com/c360/tracewatch/errors"
)

// Span status values per OpenTelemetry
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
	StatusUnset = "UNSET"
)

// Span is a single timed operation record within a trace
type Span struct {
	SpanID        string            `json:"span_id"`
	TraceID       string            `json:"trace_id"`
	ParentSpanID  string            `json:"parent_span_id,omitempty"`
	OperationName string            `json:"operation_name"`
	ServiceName   string            `json:"service_name"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	Duration      int64             `json:"duration_ns"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	Status        string            `json:"status"`
}

// SpanLimits bounds span attribute sizes accepted at ingestion
type SpanLimits struct {
	MaxAttributesPerSpan    int `json:"max_attributes_per_span"`
	MaxAttributeKeyLength   int `json:"max_attribute_key_length"`
	MaxAttributeValueLength int `json:"max_attribute_value_length"`
}

// DefaultSpanLimits returns the standard span attribute limits
func DefaultSpanLimits() SpanLimits {
	return SpanLimits{
		MaxAttributesPerSpan:    128,
		MaxAttributeKeyLength:   256,
		MaxAttributeValueLength: 4096,
	}
}

// Validate checks required identifiers and attribute limits
func (s Span) Validate(limits SpanLimits) error {
	if s.TraceID == "" {
		return errors.WrapInvalid(errors.ErrInvalidSpan, "Span", "Validate", "validate trace ID (empty)")
	}
	if s.SpanID == "" {
		return errors.WrapInvalid(errors.ErrInvalidSpan, "Span", "Validate", "validate span ID (empty)")
	}
	if limits.MaxAttributesPerSpan > 0 && len(s.Attributes) > limits.MaxAttributesPerSpan {
		return errors.WrapInvalid(errors.ErrInvalidSpan, "Span", "Validate",
			fmt.Sprintf("validate attribute count (%d exceeds %d)", len(s.Attributes), limits.MaxAttributesPerSpan))
	}
	for key, value := range s.Attributes {
		if limits.MaxAttributeKeyLength > 0 && len(key) > limits.MaxAttributeKeyLength {
			return errors.WrapInvalid(errors.ErrInvalidSpan, "Span", "Validate",
				fmt.Sprintf("validate attribute key length (%d exceeds %d bytes)", len(key), limits.MaxAttributeKeyLength))
		}
		if limits.MaxAttributeValueLength > 0 && len(value) > limits.MaxAttributeValueLength {
			return errors.WrapInvalid(errors.ErrInvalidSpan, "Span", "Validate",
				fmt.Sprintf("validate attribute value length (%d exceeds %d bytes)", len(value), limits.MaxAttributeValueLength))
		}
	}
	return nil
}

// IsError reports whether the span completed with error status
func (s Span) IsError() bool {
	return s.Status == StatusError
}
