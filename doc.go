// Package envroute provides an embeddable routing engine for multi-party
// document-signing envelopes.
//
// An envelope has recipients, and every recipient has a routing order. The
// engine decides which recipients may act now, notifies them when their turn
// comes, and moves the envelope forward as they finish. Recipients sharing a
// routing order form a wave and act in parallel. The next wave starts only
// when every step of the current one has completed.
//
// # Engine
//
// The Engine persists one workflow per envelope and exposes commands to:
//   - initialize a workflow from the envelope's recipients
//   - start routing, immediately or at a scheduled time
//   - record a recipient completing or declining their step
//   - pause, resume and cancel routing
//   - read the current wave, pending recipients, status report and history
//
// Routing topology (sequential, parallel or mixed) is detected from the
// routing orders when the workflow is initialized and never changes after.
// A decline cancels the whole workflow and voids the envelope if it was sent.
//
// Every command runs under exclusive access to the envelope's workflow, so
// concurrent completions in the same wave advance routing exactly once.
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability, including history and effect queue)
//   - Postgres (advisory transaction locks)
//   - Redis (optimistic WATCH/MULTI transactions)
//   - MongoDB (optimistic version checks)
//
// # Collaborators
//
// The engine does not own envelopes, recipients or notification delivery.
// It reads recipients through a RecipientReader, asks an EnvelopeService to
// complete or void envelopes, and asks a Notifier to tell recipients it is
// their turn. pkg/inmem provides an in-memory implementation of all three.
//
// Calls to the EnvelopeService and Notifier happen after the workflow change
// has been committed. Their failures are logged and reported to the Observer,
// never returned to the caller of the command.
//
// # Runtime
//
// A Runtime wraps an Engine with a Worker, which delivers effects from a
// queue with retries, and a Sweeper, which resumes scheduled workflows on a
// cron schedule. Build one from YAML configuration with Open, or use
// NewLocalRunner and NewSQLiteBundle for the common setups.
//
// # Observability
//
// Observers receive every committed workflow event and every failed effect.
// LoggingObserver logs them with log/slog, BasicMetrics counts them in
// memory and pkg/metrics exports them to Prometheus.
//
// See the examples directory for end-to-end usage.
package envroute
