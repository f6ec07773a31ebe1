// Package engine holds the in-memory set of compiled rules and evaluates
// them against complete traces.
//
// LoadRule compiles a rule's expression and upserts it; DeleteRule is
// assumed non-failing. Compilation is pluggable through the Compiler
// interface: the built-in compiler understands a small conjunctive
// predicate form, and deployments with the full rule DSL inject their own.
// Compiled programs are immutable, so evaluation takes no locks beyond the
// snapshot of the rule map.
package engine
