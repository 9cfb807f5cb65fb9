// Package worker delivers the side effects of committed routing transitions.
//
// The engine never calls collaborators while it holds a workflow. Every
// committed transition yields effects (notify a recipient, complete an
// envelope, void an envelope) that are handed to a dispatcher afterwards. The
// queue-backed dispatcher enqueues them as tasks, and a Worker drains the
// queue and applies each effect to the envelope service or the notifier.
//
// # Retries
//
// Envelope effects are retried with exponential backoff until
// Config.MaxAttempts is reached; the envelope service must treat
// MarkCompleted and MarkVoided as idempotent. Recipient notifications are
// fire-and-forget: a failure is logged and reported to the observer, and the
// notification is dropped.
//
// # Queues
//
// Any taskqueue.Queue works. The in-memory queue suits tests and single
// process deployments; the SQLite queue survives restarts.
package worker
