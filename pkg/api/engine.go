package api

import (
	"context"
	"time"
)

// Engine is the envelope routing engine.
//
// Every command runs as one atomic unit with exclusive access to the
// envelope's workflow. Side effects (notifications, envelope completion and
// voiding) are emitted only after the transition commits.
type Engine interface {
	// InitializeWorkflow creates or resets the envelope's workflow from its
	// current recipients. If routingType is nil it is detected from the
	// recipients' routing orders. Safe to call again before the workflow starts.
	InitializeWorkflow(ctx context.Context, envelopeID string, routingType *RoutingType) (*Workflow, error)

	// StartWorkflow triggers the first wave. If scheduledAt is in the future,
	// the workflow is paused until then instead.
	StartWorkflow(ctx context.Context, envelopeID string, scheduledAt *time.Time) (*Workflow, error)

	// ProgressWorkflow records that a recipient completed or declined their
	// action. It returns false without error when there is no active workflow
	// or the recipient has no triggered step.
	ProgressWorkflow(ctx context.Context, envelopeID, recipientID string) (bool, error)

	// PauseWorkflow stops advancement. resumeAt optionally schedules an
	// automatic resume.
	PauseWorkflow(ctx context.Context, envelopeID string, resumeAt *time.Time) (*Workflow, error)

	// ResumeWorkflow continues a paused workflow.
	ResumeWorkflow(ctx context.Context, envelopeID string) (*Workflow, error)

	// CancelWorkflow stops the workflow, fails open steps, and voids the
	// envelope if it was already sent.
	CancelWorkflow(ctx context.Context, envelopeID string, reason string) (*Workflow, error)

	// ProcessScheduledWorkflows resumes every paused workflow whose scheduled
	// resume time has passed. It returns how many were resumed; per-workflow
	// failures are joined into the error without stopping the batch.
	ProcessScheduledWorkflows(ctx context.Context) (int, error)

	// CurrentActive returns the recipients who may act right now.
	CurrentActive(ctx context.Context, envelopeID string) ([]Recipient, error)

	// Pending returns recipients in later waves, by routing order.
	Pending(ctx context.Context, envelopeID string) ([]Recipient, error)

	// Completed returns recipients who have signed or completed.
	Completed(ctx context.Context, envelopeID string) ([]Recipient, error)

	// CanRecipientAct reports whether the recipient is allowed to act now.
	CanRecipientAct(ctx context.Context, envelopeID, recipientID string) (bool, error)

	// Status returns a read-only status report. It never fails for an
	// envelope without a workflow; HasWorkflow is false instead.
	Status(ctx context.Context, envelopeID string) (*StatusReport, error)

	// GetWorkflow returns the workflow and its steps.
	GetWorkflow(ctx context.Context, envelopeID string) (*Snapshot, error)

	// ListWorkflows returns workflows matching the given options.
	ListWorkflows(ctx context.Context, opts WorkflowListOptions) ([]*Workflow, error)

	// History returns the envelope's workflow events in order.
	History(ctx context.Context, envelopeID string) ([]WorkflowEvent, error)
}
