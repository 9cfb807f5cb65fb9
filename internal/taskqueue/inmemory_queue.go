package taskqueue

import (
	"context"
	"sync"
	"time"
)

// InMemoryQueue is a Queue held in process memory. Tasks become visible once
// their NotBefore time has passed; due tasks are served in enqueue order.
// It is safe for concurrent use.
type InMemoryQueue struct {
	mu    sync.Mutex
	tasks []Task
	wake  chan struct{}
}

// NewInMemoryQueue creates a new queue. capacity is a sizing hint.
// For tests and small deployments, a modest capacity (e.g. 1024) is fine.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{
		tasks: make([]Task, 0, capacity),
		wake:  make(chan struct{}, 1),
	}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	q.signal()
	return nil
}

// signal wakes one blocked Dequeue, if any.
func (q *InMemoryQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		task, wait := q.take(time.Now())
		if task != nil {
			return task, nil
		}

		var (
			timer *time.Timer
			due   <-chan time.Time
		)
		if wait > 0 {
			timer = time.NewTimer(wait)
			due = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil, ctx.Err()
		case <-q.wake:
		case <-due:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// take removes the first due task. When none is due it returns how long until
// the earliest deferred task becomes due, or 0 when the queue is empty.
func (q *InMemoryQueue) take(now time.Time) (*Task, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var wait time.Duration
	for i, t := range q.tasks {
		if !t.NotBefore.After(now) {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			if len(q.tasks) > 0 {
				q.signal()
			}
			return &t, 0
		}
		if d := t.NotBefore.Sub(now); wait == 0 || d < wait {
			wait = d
		}
	}
	return nil, wait
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
