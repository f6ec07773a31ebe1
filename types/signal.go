package types

import (
	"time"

	"github.com/google/uuid"
)

// SpanRef references a specific span involved in a signal
type SpanRef struct {
	TraceID     string `json:"trace_id"`
	SpanID      string `json:"span_id"`
	ServiceName string `json:"service_name"`
}

// Signal is the alert raised when a rule matches a complete trace
type Signal struct {
	ID        string    `json:"id"`
	RuleID    string    `json:"rule_id"`
	RuleName  string    `json:"rule_name"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	TraceID   string    `json:"trace_id"`
	SpanRefs  []SpanRef `json:"span_references,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSignal builds a signal for a rule that matched the given trace
func NewSignal(rule Rule, traceID string, spans []*Span) Signal {
	refs := make([]SpanRef, 0, len(spans))
	for _, span := range spans {
		refs = append(refs, SpanRef{
			TraceID:     span.TraceID,
			SpanID:      span.SpanID,
			ServiceName: span.ServiceName,
		})
	}

	return Signal{
		ID:        uuid.New().String(),
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Severity:  rule.Severity,
		Message:   "rule matched trace " + traceID,
		TraceID:   traceID,
		SpanRefs:  refs,
		CreatedAt: time.Now().UTC(),
	}
}
