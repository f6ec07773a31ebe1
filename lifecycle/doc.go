// Package lifecycle implements the per-entity state machines at the heart of
// TraceWatch: one governing a rule's journey from draft to
// compiled-and-persisted, one governing a trace's journey from span buffering
// to rule evaluation, plus the registries that own FSM instances by id.
//
// Transition logic is a pure lookup against a fixed table; each FSM wraps that
// lookup with a per-entity mutex held only for the duration of one state
// read/write. Cross-operation mutual exclusion (for example between a
// concurrent update and delete of the same rule) comes from the shape of the
// table: RuleUpdating and RuleDeleting are reachable only from RulePersisted
// and have no paths into each other, so whichever caller transitions first
// wins and the loser fails fast at its first Transition call. No lock is ever
// held across a call to an external collaborator.
//
// Registries create FSMs lazily on Get and remove entries explicitly. A
// removed FSM stays valid for callers already holding a reference; Remove only
// detaches it from the map.
package lifecycle
