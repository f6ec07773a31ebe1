// Package rulestore persists rule definitions. The primary implementation
// stores rules as JSON in a NATS JetStream key-value bucket keyed by rule
// ID; MemoryStore backs tests and single-process deployments.
package rulestore
