// Package natsclient manages the NATS connection shared by TraceWatch
// components: core subjects for span ingestion and signal publishing, and
// JetStream key-value buckets for durable rule storage.
//
// The client wraps nats.Conn with a circuit breaker. After a threshold of
// consecutive failures the circuit opens and operations fail fast with
// ErrCircuitOpen until the backoff elapses. A successful operation resets
// the breaker.
package natsclient
