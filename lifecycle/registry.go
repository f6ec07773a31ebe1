package lifecycle

import "sync"

// RuleRegistry owns the RuleFSM instances for all rules. The registry lock
// only serializes map mutation; it is never held while an FSM's own lock is
// taken, so different rule ids never contend.
type RuleRegistry struct {
	mu   sync.RWMutex
	fsms map[string]*RuleFSM
}

// NewRuleRegistry creates a registry for tracking rule FSMs
func NewRuleRegistry() *RuleRegistry {
	return &RuleRegistry{
		fsms: make(map[string]*RuleFSM),
	}
}

// Get returns the FSM for a rule id, creating one at RuleNonExistent on first
// use. Never returns nil.
func (r *RuleRegistry) Get(ruleID string) *RuleFSM {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fsm, exists := r.fsms[ruleID]; exists {
		return fsm
	}

	fsm := NewRuleFSM(ruleID)
	r.fsms[ruleID] = fsm
	return fsm
}

// Remove deletes the map entry for a rule id. An FSM already referenced by an
// in-flight caller stays valid and usable after removal.
func (r *RuleRegistry) Remove(ruleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.fsms, ruleID)
}

// Contains reports whether the registry currently tracks the rule id
func (r *RuleRegistry) Contains(ruleID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.fsms[ruleID]
	return exists
}

// Count returns the number of tracked rules
func (r *RuleRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fsms)
}

// Snapshot returns a point-in-time id→state view of all tracked rules
func (r *RuleRegistry) Snapshot() map[string]RuleState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]RuleState, len(r.fsms))
	for ruleID, fsm := range r.fsms {
		snapshot[ruleID] = fsm.State()
	}
	return snapshot
}

// GetByState returns all rule FSMs currently in the given state
func (r *RuleRegistry) GetByState(state RuleState) []*RuleFSM {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var fsms []*RuleFSM
	for _, fsm := range r.fsms {
		if fsm.State() == state {
			fsms = append(fsms, fsm)
		}
	}
	return fsms
}

// TraceRegistry owns the TraceFSM instances for all in-flight traces. Same
// locking discipline as RuleRegistry.
type TraceRegistry struct {
	mu     sync.RWMutex
	traces map[string]*TraceFSM
}

// NewTraceRegistry creates a registry for tracking trace FSMs
func NewTraceRegistry() *TraceRegistry {
	return &TraceRegistry{
		traces: make(map[string]*TraceFSM),
	}
}

// Get returns the FSM for a trace id, creating one at TraceReceiving on first
// use. Never returns nil.
func (r *TraceRegistry) Get(traceID string) *TraceFSM {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fsm, exists := r.traces[traceID]; exists {
		return fsm
	}

	fsm := NewTraceFSM(traceID)
	r.traces[traceID] = fsm
	return fsm
}

// Remove deletes the map entry for a trace id. Detached FSMs stay usable by
// callers holding a reference.
func (r *TraceRegistry) Remove(traceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.traces, traceID)
}

// Contains reports whether the registry currently tracks the trace id
func (r *TraceRegistry) Contains(traceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.traces[traceID]
	return exists
}

// Count returns the number of tracked traces
func (r *TraceRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.traces)
}

// Snapshot returns a point-in-time id→state view of all tracked traces
func (r *TraceRegistry) Snapshot() map[string]TraceState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]TraceState, len(r.traces))
	for traceID, fsm := range r.traces {
		snapshot[traceID] = fsm.State()
	}
	return snapshot
}

// GetByState returns all trace FSMs currently in the given state. External
// schedulers use this to find Complete traces whose window has elapsed, or
// Evaluating traces orphaned by a crashed worker.
func (r *TraceRegistry) GetByState(state TraceState) []*TraceFSM {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var traces []*TraceFSM
	for _, fsm := range r.traces {
		if fsm.State() == state {
			traces = append(traces, fsm)
		}
	}
	return traces
}
