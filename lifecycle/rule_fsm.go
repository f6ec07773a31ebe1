package lifecycle

import (
	"fmt"
	"sync"
)

// RuleState represents a rule's position in its lifecycle
type RuleState int

const (
	// RuleNonExistent - rule does not exist (initial state, and the only
	// state reachable after a completed delete)
	RuleNonExistent RuleState = iota
	// RuleDraft - rule created but not validated
	RuleDraft
	// RuleValidated - rule passed field validation but not compiled
	RuleValidated
	// RuleCompiled - rule loaded into the engine but not persisted
	RuleCompiled
	// RulePersisted - rule saved to the store (stable state)
	RulePersisted
	// RuleUpdating - update in progress, blocks concurrent delete
	RuleUpdating
	// RuleDeleting - delete in progress, blocks concurrent update
	RuleDeleting
)

// String returns the human-readable state name
func (s RuleState) String() string {
	switch s {
	case RuleNonExistent:
		return "nonexistent"
	case RuleDraft:
		return "draft"
	case RuleValidated:
		return "validated"
	case RuleCompiled:
		return "compiled"
	case RulePersisted:
		return "persisted"
	case RuleUpdating:
		return "updating"
	case RuleDeleting:
		return "deleting"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// RuleEvent triggers a rule state transition
type RuleEvent int

const (
	EventCreate RuleEvent = iota
	EventValidate
	EventValidationFailed
	EventCompile
	EventCompilationFailed
	EventPersist
	EventPersistenceFailed
	EventUpdate
	EventDelete
	EventDeleteComplete
	EventDeleteFailed
	EventCancel
)

// String returns the human-readable event name
func (e RuleEvent) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventValidate:
		return "validate"
	case EventValidationFailed:
		return "validation_failed"
	case EventCompile:
		return "compile"
	case EventCompilationFailed:
		return "compilation_failed"
	case EventPersist:
		return "persist"
	case EventPersistenceFailed:
		return "persistence_failed"
	case EventUpdate:
		return "update"
	case EventDelete:
		return "delete"
	case EventDeleteComplete:
		return "delete_complete"
	case EventDeleteFailed:
		return "delete_failed"
	case EventCancel:
		return "cancel"
	default:
		return fmt.Sprintf("unknown_event(%d)", int(e))
	}
}

// InvalidTransitionError indicates an illegal rule state transition
type InvalidTransitionError struct {
	RuleID string
	From   RuleState
	Event  RuleEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("rule %s: invalid transition from %s via event %s",
		e.RuleID, e.From, e.Event)
}

// ruleTransitions is the rule lifecycle transition table.
// Maps: CurrentState -> Event -> NextState.
var ruleTransitions = map[RuleState]map[RuleEvent]RuleState{
	RuleNonExistent: {
		EventCreate: RuleDraft,
	},
	RuleDraft: {
		EventValidate:         RuleValidated,
		EventValidationFailed: RuleNonExistent, // validation failed, discard
		EventCancel:           RuleNonExistent,
	},
	RuleValidated: {
		EventCompile:           RuleCompiled,
		EventCompilationFailed: RuleDraft, // retry from draft
		EventCancel:            RuleNonExistent,
	},
	RuleCompiled: {
		EventPersist:           RulePersisted,
		EventPersistenceFailed: RuleValidated, // retry persistence
	},
	RulePersisted: {
		EventUpdate: RuleUpdating, // blocks concurrent delete
		EventDelete: RuleDeleting, // blocks concurrent update
	},
	RuleUpdating: {
		EventValidate:         RuleValidated,
		EventValidationFailed: RulePersisted,
		EventCancel:           RulePersisted,
	},
	RuleDeleting: {
		EventDeleteComplete: RuleNonExistent,
		EventDeleteFailed:   RulePersisted,
	},
}

// nextRuleState is the pure transition function: no locks, no side effects
func nextRuleState(state RuleState, event RuleEvent) (RuleState, bool) {
	next, ok := ruleTransitions[state][event]
	return next, ok
}

// RuleFSM tracks the lifecycle state of a single rule
type RuleFSM struct {
	mu     sync.RWMutex
	ruleID string
	state  RuleState

	// Snapshot for rollback. Holds the state before the last successful
	// Transition; Rollback does not touch it, so two consecutive Rollback
	// calls revert to the same target.
	previousState RuleState
}

// NewRuleFSM creates an FSM for a rule, starting at RuleNonExistent
func NewRuleFSM(ruleID string) *RuleFSM {
	return &RuleFSM{
		ruleID:        ruleID,
		state:         RuleNonExistent,
		previousState: RuleNonExistent,
	}
}

// RuleID returns the rule id this FSM tracks
func (fsm *RuleFSM) RuleID() string {
	return fsm.ruleID
}

// State returns the current state
func (fsm *RuleFSM) State() RuleState {
	fsm.mu.RLock()
	defer fsm.mu.RUnlock()
	return fsm.state
}

// Transition attempts a state transition via an event. It fails with
// InvalidTransitionError and leaves the state unchanged when the table has no
// entry for (current, event).
func (fsm *RuleFSM) Transition(event RuleEvent) error {
	fsm.mu.Lock()
	defer fsm.mu.Unlock()

	next, ok := nextRuleState(fsm.state, event)
	if !ok {
		return &InvalidTransitionError{
			RuleID: fsm.ruleID,
			From:   fsm.state,
			Event:  event,
		}
	}

	fsm.previousState = fsm.state
	fsm.state = next
	return nil
}

// Rollback unconditionally restores the state held before the most recent
// successful Transition. No event is consumed.
func (fsm *RuleFSM) Rollback() {
	fsm.mu.Lock()
	defer fsm.mu.Unlock()
	fsm.state = fsm.previousState
}

// ValidEvents returns the events legal for the current state
func (fsm *RuleFSM) ValidEvents() []RuleEvent {
	fsm.mu.RLock()
	defer fsm.mu.RUnlock()

	valid := ruleTransitions[fsm.state]
	events := make([]RuleEvent, 0, len(valid))
	for event := range valid {
		events = append(events, event)
	}
	return events
}
