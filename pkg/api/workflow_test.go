package api

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestStepStatus_CanTransitionTo(t *testing.T) {
	allowed := map[StepStatus][]StepStatus{
		StepPending:   {StepTriggered, StepFailed},
		StepTriggered: {StepCompleted, StepDeclined, StepFailed},
	}
	all := []StepStatus{StepPending, StepTriggered, StepCompleted, StepDeclined, StepFailed}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range allowed[from] {
				if ok == to {
					want = true
				}
			}
			if got := from.CanTransitionTo(to); got != want {
				t.Fatalf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestEnvelopeStatus_Dispatched(t *testing.T) {
	for status, want := range map[EnvelopeStatus]bool{
		EnvelopeDraft:     false,
		EnvelopeSent:      true,
		EnvelopeDelivered: true,
		EnvelopeCompleted: false,
		EnvelopeVoided:    false,
	} {
		if got := status.Dispatched(); got != want {
			t.Fatalf("%s.Dispatched() = %v", status, got)
		}
	}
}

func TestSnapshot_CloneIsDeep(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Snapshot{
		Workflow: &Workflow{ID: "wf", ScheduledResumeAt: &at},
		Steps:    []*WorkflowStep{{ID: "s1", Status: StepPending, TriggeredAt: &at}},
	}
	c := s.Clone()

	c.Workflow.ID = "changed"
	*c.Workflow.ScheduledResumeAt = at.Add(time.Hour)
	c.Steps[0].Status = StepTriggered
	*c.Steps[0].TriggeredAt = at.Add(time.Hour)

	if s.Workflow.ID != "wf" || !s.Workflow.ScheduledResumeAt.Equal(at) {
		t.Fatalf("clone shares workflow state")
	}
	if s.Steps[0].Status != StepPending || !s.Steps[0].TriggeredAt.Equal(at) {
		t.Fatalf("clone shares step state")
	}
	if (*Snapshot)(nil).Clone() != nil {
		t.Fatalf("nil clone should be nil")
	}
}

func TestSnapshot_OrderQueries(t *testing.T) {
	s := &Snapshot{Steps: []*WorkflowStep{
		{RecipientID: "c", RoutingOrder: 4, SequenceIndex: 2, Status: StepPending},
		{RecipientID: "a", RoutingOrder: 1, SequenceIndex: 0, Status: StepCompleted},
		{RecipientID: "b", RoutingOrder: 1, SequenceIndex: 1, Status: StepTriggered},
	}}
	s.SortSteps()

	var order []string
	for _, st := range s.Steps {
		order = append(order, st.RecipientID)
	}
	if fmt.Sprint(order) != "[a b c]" {
		t.Fatalf("sorted = %v", order)
	}
	if o, ok := s.LowestOpenOrder(); !ok || o != 1 {
		t.Fatalf("LowestOpenOrder = %d, %v", o, ok)
	}
	if o, ok := s.NextOrderAfter(1); !ok || o != 4 {
		t.Fatalf("NextOrderAfter(1) = %d, %v", o, ok)
	}
	if _, ok := s.NextOrderAfter(4); ok {
		t.Fatalf("no order after 4")
	}
	if len(s.StepsAt(1)) != 2 || s.StepForRecipient("c") == nil || s.StepForRecipient("z") != nil {
		t.Fatalf("step lookups broken")
	}
	if !s.Triggered() {
		t.Fatalf("expected Triggered")
	}
}

func TestIsPreconditionError(t *testing.T) {
	if !IsPreconditionError(fmt.Errorf("start workflow env: %w", ErrAlreadyInProgress)) {
		t.Fatalf("wrapped precondition not recognised")
	}
	if IsPreconditionError(ErrInconsistentRoutingState) || IsPreconditionError(errors.New("x")) {
		t.Fatalf("non-precondition classified as precondition")
	}
}
