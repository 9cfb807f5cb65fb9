package taskqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/petrijr/envroute/pkg/api"
)

func effectTask(id, envelopeID string) Task {
	return Task{
		ID:   id,
		Type: TaskTypeApplyEffect,
		Effect: api.Effect{
			Kind:       api.EffectCompleteEnvelope,
			EnvelopeID: envelopeID,
			WorkflowID: "wf-" + envelopeID,
		},
	}
}

func TestInMemoryQueue_EnqueueDequeueOrder(t *testing.T) {
	q := NewInMemoryQueue(0)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		if err := q.Enqueue(ctx, effectTask(id, "env-"+id)); err != nil {
			t.Fatalf("Enqueue %s failed: %v", id, err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("expected Len 3, got %d", q.Len())
	}

	for _, want := range []string{"1", "2", "3"} {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if got.ID != want {
			t.Fatalf("expected task %s, got %s", want, got.ID)
		}
		if got.Effect.EnvelopeID != "env-"+want {
			t.Fatalf("effect not carried: %+v", got.Effect)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestInMemoryQueue_RespectsNotBefore(t *testing.T) {
	q := NewInMemoryQueue(0)
	ctx := context.Background()

	delay := 40 * time.Millisecond
	deferred := effectTask("later", "env-1")
	deferred.NotBefore = time.Now().Add(delay)
	if err := q.Enqueue(ctx, deferred); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, effectTask("now", "env-2")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	first, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if first.ID != "now" {
		t.Fatalf("expected due task first, got %s", first.ID)
	}

	start := time.Now()
	second, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if second.ID != "later" {
		t.Fatalf("expected deferred task, got %s", second.ID)
	}
	if waited := time.Since(start); waited < delay/2 {
		t.Fatalf("deferred task served too early (after %v)", waited)
	}
}

func TestInMemoryQueue_DequeueHonorsContext(t *testing.T) {
	q := NewInMemoryQueue(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestInMemoryQueue_WakesBlockedConsumer(t *testing.T) {
	q := NewInMemoryQueue(0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got := make(chan *Task, 1)
	go func() {
		task, err := q.Dequeue(ctx)
		if err != nil {
			got <- nil
			return
		}
		got <- task
	}()

	time.Sleep(10 * time.Millisecond)
	if err := q.Enqueue(ctx, effectTask("1", "env-1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case task := <-got:
		if task == nil || task.ID != "1" {
			t.Fatalf("unexpected task: %+v", task)
		}
	case <-ctx.Done():
		t.Fatalf("consumer was not woken")
	}
}
