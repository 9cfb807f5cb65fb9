// Package api contains the types shared by the routing engine, its stores
// and the collaborators it calls.
//
// Most users interact with the higher-level envroute package, which
// re-exports the types they need. The api package is for adapters that
// implement the collaborator interfaces, custom observers, and contributors
// extending the engine itself.
//
// # Data model
//
// A Workflow holds the routing state of one envelope: its status, routing
// type and the routing order currently live. Each recipient gets one
// WorkflowStep. A Snapshot is the workflow together with its steps; stores
// load and persist snapshots as a single unit.
//
// # Collaborators
//
// RecipientReader, EnvelopeService and Notifier are implemented by the
// application that owns envelopes. The engine only reads recipients and
// envelope status, and requests completion, voiding and notifications as
// Effects after a transition has committed.
//
// # Observability
//
// The Observer interface receives committed WorkflowEvents and failed
// Effects. NoopObserver, CompositeObserver, LoggingObserver and BasicMetrics
// cover the common needs.
package api
