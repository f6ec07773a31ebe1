// Package coordinator sequences rule create, update, and delete operations
// across the rule store and the rule engine.
//
// Each operation is gated by the rule's lifecycle FSM: the first Transition
// call of a mutating operation either claims the rule or fails fast, so at
// most one of create, update, or delete is in flight per rule id. No lock is
// held across store or engine calls; mutual exclusion comes entirely from
// the shape of the transition table.
//
// Side-effect ordering is chosen for crash safety. Create loads the engine
// first and compensates with an engine delete if the store write fails.
// Update and delete write the store first; update compensates a failed
// engine reload by restoring the pre-update rule bytes in the store.
package coordinator
