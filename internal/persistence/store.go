package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/envroute/pkg/api"
)

var (
	// ErrWorkflowNotFound is returned when an envelope has no workflow.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrConflict is returned by optimistic stores when a mutation kept
	// losing to concurrent writers until its retries ran out.
	ErrConflict = errors.New("workflow modified concurrently")
)

// DefaultMaxRetries bounds how often optimistic stores re-run a mutation
// after losing a compare-and-swap.
const DefaultMaxRetries = 16

// MutateFunc receives a private copy of the envelope's snapshot, or nil when
// the envelope has no workflow yet, and returns the snapshot to persist.
// Returning (nil, nil) leaves the stored state untouched. Returning an error
// aborts the mutation; nothing is written.
//
// Optimistic stores may call a MutateFunc more than once. It must not have
// side effects beyond its return values.
type MutateFunc func(cur *api.Snapshot) (*api.Snapshot, error)

// WorkflowFilter is used to select workflows from the store.
// Zero status means "no filter".
type WorkflowFilter struct {
	Status api.WorkflowStatus
}

// WorkflowStore persists one snapshot (workflow + steps) per envelope.
type WorkflowStore interface {
	// Mutate runs fn with exclusive access to the envelope's snapshot and
	// commits its result atomically. The stored Workflow.Version is bumped
	// on every write.
	Mutate(ctx context.Context, envelopeID string, fn MutateFunc) error

	// Get returns a copy of the envelope's snapshot or ErrWorkflowNotFound.
	Get(ctx context.Context, envelopeID string) (*api.Snapshot, error)

	// List returns workflows matching filter.
	List(ctx context.Context, filter WorkflowFilter) ([]*api.Workflow, error)

	// ListScheduled returns the envelope IDs of paused workflows whose
	// scheduled resume time is at or before dueBy, earliest first.
	ListScheduled(ctx context.Context, dueBy time.Time) ([]string, error)
}

// isScheduled reports whether wf is waiting for the sweeper.
func isScheduled(wf *api.Workflow) bool {
	return wf.Status == api.WorkflowPaused && wf.ScheduledResumeAt != nil
}

// prepareNext stamps the version that follows prev onto next.
func prepareNext(next *api.Snapshot, prev *api.Snapshot) error {
	if next.Workflow == nil {
		return errors.New("snapshot without workflow")
	}
	var version int64
	if prev != nil && prev.Workflow != nil {
		version = prev.Workflow.Version
	}
	next.Workflow.Version = version + 1
	next.SortSteps()
	return nil
}
