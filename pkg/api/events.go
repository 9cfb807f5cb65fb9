package api

import "time"

// EventType identifies a workflow history event.
type EventType string

const (
	EventWorkflowInitialized EventType = "workflow.initialized"
	EventWorkflowStarted     EventType = "workflow.started"
	EventWorkflowScheduled   EventType = "workflow.scheduled"
	EventWorkflowPaused      EventType = "workflow.paused"
	EventWorkflowResumed     EventType = "workflow.resumed"
	EventWorkflowAdvanced    EventType = "workflow.advanced"
	EventWorkflowCompleted   EventType = "workflow.completed"
	EventWorkflowCancelled   EventType = "workflow.cancelled"

	EventStepTriggered EventType = "step.triggered"
	EventStepCompleted EventType = "step.completed"
	EventStepDeclined  EventType = "step.declined"
	EventStepFailed    EventType = "step.failed"
)

// WorkflowEvent is a minimal append-only history record for audit/debugging.
type WorkflowEvent struct {
	EnvelopeID string
	WorkflowID string
	At         time.Time
	Type       EventType

	// Step context; empty/zero for workflow-level events.
	StepID       string
	RecipientID  string
	RoutingOrder int

	// Small, human-oriented details (cancel reason, schedule time).
	Detail string
}
