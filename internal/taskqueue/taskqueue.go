package taskqueue

import (
	"context"
	"time"

	"github.com/petrijr/envroute/pkg/api"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	// TaskTypeApplyEffect delivers one post-commit workflow effect.
	TaskTypeApplyEffect TaskType = "apply-effect"
)

// Task represents a unit of work for the worker.
type Task struct {
	ID   string
	Type TaskType

	// Effect is the side effect to deliver for apply-effect tasks.
	Effect api.Effect

	// Attempts counts failed deliveries so far.
	Attempts int

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means "immediately" (i.e., at enqueue time).
	NotBefore time.Time
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next due task, blocking until one is
	// available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
