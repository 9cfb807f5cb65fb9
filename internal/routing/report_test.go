package routing

import (
	"testing"
	"time"

	"github.com/petrijr/envroute/pkg/api"
)

func TestBuildReport(t *testing.T) {
	recipients := recipientsAt(1, 1, 2)
	recipients[0].Name, recipients[0].Email = "Ada", "ada@example.com"
	s := startedSnapshot(t, 1, 1, 2)
	if _, err := NewTransition(machineNow).Progress(s, "r0", false, sentStatus); err != nil {
		t.Fatalf("Progress failed: %v", err)
	}

	rep := BuildReport("env", s, recipients, machineNow)
	if !rep.HasWorkflow || rep.RoutingType != api.RoutingMixed || rep.CurrentRoutingOrder != 1 {
		t.Fatalf("unexpected header: %+v", rep)
	}
	want := api.StepCounts{Total: 3, Completed: 1, InProgress: 1, Pending: 1}
	if rep.Counts != want {
		t.Fatalf("counts = %+v, want %+v", rep.Counts, want)
	}
	if rep.Steps[0].RecipientName != "Ada" || rep.Steps[0].RecipientEmail != "ada@example.com" {
		t.Fatalf("step 0 = %+v", rep.Steps[0])
	}
}

func TestBuildReport_Schedule(t *testing.T) {
	s := initialized(t, 1)
	at := machineNow.Add(time.Hour)
	_ = NewTransition(machineNow).Start(s, &at)

	rep := BuildReport("env", s, recipientsAt(1), machineNow)
	if !rep.Schedule.Enabled || rep.Schedule.Passed {
		t.Fatalf("schedule = %+v", rep.Schedule)
	}
	rep = BuildReport("env", s, recipientsAt(1), at)
	if !rep.Schedule.Passed {
		t.Fatalf("schedule should have passed at %v", at)
	}
}

func TestBuildReport_NoWorkflow(t *testing.T) {
	rep := BuildReport("env", nil, nil, machineNow)
	if rep.HasWorkflow || rep.EnvelopeID != "env" || len(rep.Steps) != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}
