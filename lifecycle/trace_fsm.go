package lifecycle

import (
	"fmt"
	"sync"

	"github.com/c360/tracewatch/types"
)

// TraceState represents a trace's position in its lifecycle
type TraceState int

const (
	// TraceReceiving - actively buffering spans
	TraceReceiving TraceState = iota
	// TraceComplete - no more spans expected, eligible for evaluation
	TraceComplete
	// TraceEvaluating - trace-level rules being evaluated
	TraceEvaluating
	// TraceProcessed - evaluation finished (terminal)
	TraceProcessed
)

// String returns the human-readable state name
func (s TraceState) String() string {
	switch s {
	case TraceReceiving:
		return "receiving"
	case TraceComplete:
		return "complete"
	case TraceEvaluating:
		return "evaluating"
	case TraceProcessed:
		return "processed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// TraceEvent triggers a trace state transition
type TraceEvent int

const (
	// EventSpanReceived - a span was added to the trace buffer
	EventSpanReceived TraceEvent = iota
	// EventTimeout - no spans arrived within the buffering window
	EventTimeout
	// EventStartEvaluation - begin trace-level rule evaluation
	EventStartEvaluation
	// EventEvaluationComplete - evaluation finished successfully
	EventEvaluationComplete
	// EventEvaluationFailed - evaluation hit an error, retry later
	EventEvaluationFailed
)

// String returns the human-readable event name
func (e TraceEvent) String() string {
	switch e {
	case EventSpanReceived:
		return "span_received"
	case EventTimeout:
		return "timeout"
	case EventStartEvaluation:
		return "start_evaluation"
	case EventEvaluationComplete:
		return "evaluation_complete"
	case EventEvaluationFailed:
		return "evaluation_failed"
	default:
		return fmt.Sprintf("unknown_event(%d)", int(e))
	}
}

// InvalidTraceTransitionError indicates an illegal trace state transition
type InvalidTraceTransitionError struct {
	TraceID string
	From    TraceState
	Event   TraceEvent
}

func (e *InvalidTraceTransitionError) Error() string {
	return fmt.Sprintf("trace %s: invalid transition from %s via event %s",
		e.TraceID, e.From, e.Event)
}

// traceTransitions is the trace lifecycle transition table
var traceTransitions = map[TraceState]map[TraceEvent]TraceState{
	TraceReceiving: {
		EventSpanReceived: TraceReceiving,
		EventTimeout:      TraceComplete,
	},
	TraceComplete: {
		EventSpanReceived:    TraceReceiving, // late arrival reopens buffering
		EventStartEvaluation: TraceEvaluating,
	},
	TraceEvaluating: {
		EventEvaluationComplete: TraceProcessed,
		EventEvaluationFailed:   TraceComplete, // retry later
	},
	TraceProcessed: {
		// terminal, no transitions
	},
}

// nextTraceState is the pure transition function: no locks, no side effects
func nextTraceState(state TraceState, event TraceEvent) (TraceState, bool) {
	next, ok := traceTransitions[state][event]
	return next, ok
}

// TraceFSM tracks the lifecycle state and span buffer of a single trace
type TraceFSM struct {
	mu            sync.Mutex
	traceID       string
	state         TraceState
	previousState TraceState
	spans         []*types.Span
}

// NewTraceFSM creates an FSM for a trace, starting at TraceReceiving
func NewTraceFSM(traceID string) *TraceFSM {
	return &TraceFSM{
		traceID:       traceID,
		state:         TraceReceiving,
		previousState: TraceReceiving,
		spans:         make([]*types.Span, 0),
	}
}

// TraceID returns the trace id this FSM tracks
func (fsm *TraceFSM) TraceID() string {
	return fsm.traceID
}

// State returns the current state
func (fsm *TraceFSM) State() TraceState {
	fsm.mu.Lock()
	defer fsm.mu.Unlock()
	return fsm.state
}

// SpanCount returns the number of buffered spans
func (fsm *TraceFSM) SpanCount() int {
	fsm.mu.Lock()
	defer fsm.mu.Unlock()
	return len(fsm.spans)
}

// Spans returns a copy of the buffered spans so the evaluator cannot race
// with a concurrent AddSpan.
func (fsm *TraceFSM) Spans() []*types.Span {
	fsm.mu.Lock()
	defer fsm.mu.Unlock()

	spansCopy := make([]*types.Span, len(fsm.spans))
	copy(spansCopy, fsm.spans)
	return spansCopy
}

// AddSpan appends a span to the buffer and moves the trace to TraceReceiving,
// including from TraceComplete (a late arrival reopens buffering). It is
// rejected while the trace is Evaluating or Processed, which is what keeps
// the buffer stable under an evaluator.
func (fsm *TraceFSM) AddSpan(span *types.Span) error {
	fsm.mu.Lock()
	defer fsm.mu.Unlock()

	if fsm.state != TraceReceiving && fsm.state != TraceComplete {
		return &InvalidTraceTransitionError{
			TraceID: fsm.traceID,
			From:    fsm.state,
			Event:   EventSpanReceived,
		}
	}

	fsm.spans = append(fsm.spans, span)
	fsm.previousState = fsm.state
	fsm.state = TraceReceiving
	return nil
}

// Transition attempts a state transition via an event. StartEvaluation
// additionally fails while the span buffer is empty, even though the table
// permits it.
func (fsm *TraceFSM) Transition(event TraceEvent) error {
	fsm.mu.Lock()
	defer fsm.mu.Unlock()

	next, ok := nextTraceState(fsm.state, event)
	if !ok {
		return &InvalidTraceTransitionError{
			TraceID: fsm.traceID,
			From:    fsm.state,
			Event:   event,
		}
	}

	// Cannot start evaluation with zero spans
	if event == EventStartEvaluation && len(fsm.spans) == 0 {
		return &InvalidTraceTransitionError{
			TraceID: fsm.traceID,
			From:    fsm.state,
			Event:   event,
		}
	}

	fsm.previousState = fsm.state
	fsm.state = next
	return nil
}

// Rollback unconditionally restores the state held before the most recent
// successful Transition.
func (fsm *TraceFSM) Rollback() {
	fsm.mu.Lock()
	defer fsm.mu.Unlock()
	fsm.state = fsm.previousState
}

// ValidEvents returns the events legal for the current state
func (fsm *TraceFSM) ValidEvents() []TraceEvent {
	fsm.mu.Lock()
	defer fsm.mu.Unlock()

	valid := traceTransitions[fsm.state]
	events := make([]TraceEvent, 0, len(valid))
	for event := range valid {
		events = append(events, event)
	}
	return events
}
