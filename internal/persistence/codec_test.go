package persistence

import (
	"testing"
	"time"

	"github.com/petrijr/envroute/pkg/api"
)

func TestSnapshotCodec_PreservesOptionalTimes(t *testing.T) {
	snap := sampleSnapshot("env-1", api.WorkflowPaused)
	resumeAt := testBaseTime.Add(2 * time.Hour)
	snap.Workflow.ScheduledResumeAt = &resumeAt
	snap.Workflow.Version = 7

	data, err := EncodeSnapshot(snap)
	if err != nil {
		t.Fatalf("EncodeSnapshot failed: %v", err)
	}
	got, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot failed: %v", err)
	}

	if got.Workflow.ScheduledResumeAt == nil || !got.Workflow.ScheduledResumeAt.Equal(resumeAt) {
		t.Fatalf("scheduled resume lost: %v", got.Workflow.ScheduledResumeAt)
	}
	if got.Workflow.StartedAt != nil {
		t.Fatalf("expected nil StartedAt, got %v", got.Workflow.StartedAt)
	}
	if got.Workflow.Version != 7 {
		t.Fatalf("expected version 7, got %d", got.Workflow.Version)
	}
	if got.Steps[0].SequenceIndex != 0 {
		t.Fatalf("expected decoded steps to be sorted")
	}
}

func TestSnapshotCodec_RejectsEmpty(t *testing.T) {
	if _, err := EncodeSnapshot(nil); err == nil {
		t.Fatalf("expected error encoding nil snapshot")
	}
	if _, err := DecodeSnapshot(nil); err == nil {
		t.Fatalf("expected error decoding empty payload")
	}
}
