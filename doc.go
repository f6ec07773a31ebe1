// Package tracewatch analyzes OpenTelemetry traces against user-defined
// behavioral rules and raises signals when those rules are violated.
//
// # Architecture
//
// TraceWatch is built around two per-entity finite state machines and the
// coordinator that drives them:
//
//	┌─────────────────────────────────────┐
//	│     RuleLifecycleCoordinator        │  Create/Update/Delete rules
//	│  (FSM-gated, compensating actions)  │  across store + engine
//	└─────────────────────────────────────┘
//	      ↓ guards                ↓ calls
//	┌───────────────┐   ┌──────────────────────┐
//	│  lifecycle    │   │  rulestore / engine  │  Durable KV store and
//	│  (rule FSM,   │   │  (NATS JetStream KV, │  in-memory compiled
//	│   trace FSM,  │   │   compiled rules)    │  rule engine
//	│   registries) │   └──────────────────────┘
//	└───────────────┘
//	      ↑ feeds                 ↑ triggers
//	┌───────────────┐   ┌──────────────────────┐
//	│    ingest     │   │      scheduler       │  Span intake over NATS,
//	│ (span intake) │   │ (timeout + evaluate) │  trace completion sweeps
//	└───────────────┘   └──────────────────────┘
//
// Rules move through a lifecycle (nonexistent → draft → validated → compiled
// → persisted) with explicit updating/deleting states whose transition table
// makes concurrent update and delete on the same rule mutually exclusive
// without holding a lock across the whole operation. Traces move through
// receiving → complete → evaluating → processed, buffering spans until an
// idle timeout marks them evaluable.
//
// # Packages
//
// Core:
//   - lifecycle: rule and trace state machines plus their registries
//   - coordinator: transactional rule Create/Update/Delete across store and engine
//
// Collaborators:
//   - engine: in-memory compiled rule engine with trace evaluation
//   - rulestore: durable rule persistence (NATS JetStream KV) and memory store
//   - ingest: span ingestion from NATS subjects
//   - scheduler: trace completion sweeps, evaluation, signal publication
//
// Infrastructure:
//   - natsclient: NATS connection management and KV wrapper
//   - errors: classified error handling
//   - metric: Prometheus metrics
//   - config: configuration loading and validation
//   - service: component wiring and lifecycle
//
// # Usage
//
//	cfg, _ := config.Load("tracewatch.json")
//	svc, _ := service.New(cfg, slog.Default())
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Stop(30 * time.Second)
package tracewatch
