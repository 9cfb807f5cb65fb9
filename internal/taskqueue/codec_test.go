package taskqueue

import (
	"errors"
	"testing"
	"time"

	"github.com/petrijr/envroute/pkg/api"
)

func TestTaskCodec_KeepsEffectAndTimes(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := Task{
		ID:   "t-1",
		Type: TaskTypeApplyEffect,
		Effect: api.Effect{
			Kind:        api.EffectNotifyRecipient,
			EnvelopeID:  "env-1",
			WorkflowID:  "wf-1",
			RecipientID: "r-1",
		},
		Attempts:   1,
		EnqueuedAt: at,
		NotBefore:  at.Add(time.Second),
	}

	data, err := EncodeTask(in)
	if err != nil {
		t.Fatalf("EncodeTask failed: %v", err)
	}
	out, err := DecodeTask(data)
	if err != nil {
		t.Fatalf("DecodeTask failed: %v", err)
	}
	if out.Effect != in.Effect || out.Attempts != 1 || !out.NotBefore.Equal(in.NotBefore) {
		t.Fatalf("unexpected decoded task: %+v", out)
	}
}

func TestTaskCodec_RejectsUnknownVersion(t *testing.T) {
	data, err := EncodeTask(Task{ID: "t-1", Type: TaskTypeApplyEffect})
	if err != nil {
		t.Fatalf("EncodeTask failed: %v", err)
	}
	data[0] = 0
	if _, err := DecodeTask(data); !errors.Is(err, ErrUnknownCodecVersion) {
		t.Fatalf("expected ErrUnknownCodecVersion, got %v", err)
	}
	if _, err := DecodeTask(nil); !errors.Is(err, ErrUnknownCodecVersion) {
		t.Fatalf("expected ErrUnknownCodecVersion for empty payload, got %v", err)
	}
}
