package api

import (
	"encoding/gob"
	"time"
)

func init() {
	gob.Register(Snapshot{})
}

// WorkflowStatus represents the lifecycle state of an envelope's routing workflow.
type WorkflowStatus string

const (
	WorkflowNotStarted WorkflowStatus = "not_started"
	WorkflowInProgress WorkflowStatus = "in_progress"
	WorkflowPaused     WorkflowStatus = "paused"
	WorkflowCompleted  WorkflowStatus = "completed"
	WorkflowCancelled  WorkflowStatus = "cancelled"
)

// Valid reports whether s is one of the declared workflow statuses.
func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowNotStarted, WorkflowInProgress, WorkflowPaused, WorkflowCompleted, WorkflowCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowCompleted || s == WorkflowCancelled
}

// RoutingType is the routing topology of an envelope. It is fixed when the
// workflow is initialized.
type RoutingType string

const (
	RoutingSequential RoutingType = "sequential"
	RoutingParallel   RoutingType = "parallel"
	RoutingMixed      RoutingType = "mixed"
)

func (t RoutingType) Valid() bool {
	switch t {
	case RoutingSequential, RoutingParallel, RoutingMixed:
		return true
	}
	return false
}

// StepAction is what a recipient is asked to do when their step is triggered.
type StepAction string

const (
	ActionSign        StepAction = "sign"
	ActionReceiveCopy StepAction = "receive_copy"
	ActionCertify     StepAction = "certify"
	ActionDelegate    StepAction = "delegate"
	ActionView        StepAction = "view"
)

func (a StepAction) Valid() bool {
	switch a {
	case ActionSign, ActionReceiveCopy, ActionCertify, ActionDelegate, ActionView:
		return true
	}
	return false
}

// StepStatus is the progress of a single recipient's step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepTriggered StepStatus = "triggered"
	StepCompleted StepStatus = "completed"
	StepDeclined  StepStatus = "declined"
	StepFailed    StepStatus = "failed"
)

func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepTriggered, StepCompleted, StepDeclined, StepFailed:
		return true
	}
	return false
}

// Terminal reports whether the step has finished, successfully or not.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepCompleted, StepDeclined, StepFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a forward move.
// Pending may only become Triggered or Failed (cancellation); Triggered may
// become any terminal status; terminal statuses never change.
func (s StepStatus) CanTransitionTo(next StepStatus) bool {
	switch s {
	case StepPending:
		return next == StepTriggered || next == StepFailed
	case StepTriggered:
		return next.Terminal()
	case StepCompleted, StepDeclined, StepFailed:
		return false
	}
	return false
}

// Workflow is the routing state for one envelope.
type Workflow struct {
	ID         string
	EnvelopeID string

	Status      WorkflowStatus
	RoutingType RoutingType

	// CurrentRoutingOrder is the routing order that is currently live.
	// It is only meaningful while Status is WorkflowInProgress.
	CurrentRoutingOrder int

	// AutoNavigation is informational for consumers; the engine never reads it.
	AutoNavigation bool

	// ScheduledResumeAt, when set on a paused workflow, is the time at which
	// the sweeper resumes it.
	ScheduledResumeAt *time.Time

	StartedAt    *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
	CancelReason string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version is incremented on every committed mutation.
	Version int64
}

// WorkflowStep is one recipient's unit of routing progress.
type WorkflowStep struct {
	ID          string
	WorkflowID  string
	RecipientID string

	Action        StepAction
	RoutingOrder  int
	SequenceIndex int
	Status        StepStatus

	TriggeredAt *time.Time
	CompletedAt *time.Time
}

// WorkflowListOptions controls how workflows are listed.
// Zero values mean "no filter" for that field.
type WorkflowListOptions struct {
	Status WorkflowStatus
}
