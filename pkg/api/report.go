package api

import "time"

// StatusReport is a read-only projection of a workflow for external consumers.
type StatusReport struct {
	EnvelopeID  string
	HasWorkflow bool

	WorkflowID          string
	Status              WorkflowStatus
	RoutingType         RoutingType
	CurrentRoutingOrder int
	AutoNavigation      bool

	Schedule ScheduleInfo
	Steps    []StepReport
	Counts   StepCounts
}

// ScheduleInfo describes scheduled sending.
type ScheduleInfo struct {
	Enabled  bool
	ResumeAt *time.Time
	// Passed is true when ResumeAt is at or before the report time.
	Passed bool
}

// StepReport is one row of the per-step breakdown.
type StepReport struct {
	StepID         string
	RecipientID    string
	RecipientName  string
	RecipientEmail string
	Action         StepAction
	RoutingOrder   int
	SequenceIndex  int
	Status         StepStatus
	TriggeredAt    *time.Time
	CompletedAt    *time.Time
}

// StepCounts aggregates step statuses. InProgress counts Triggered steps.
type StepCounts struct {
	Total      int
	Completed  int
	Pending    int
	InProgress int
	Declined   int
	Failed     int
}
