package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/petrijr/envroute/pkg/api"
)

// storeCase exercises one aspect of the WorkflowStore contract. Every backend
// runs the same cases against a clean store.
type storeCase func(t *testing.T, store WorkflowStore)

var storeContractCases = map[string]storeCase{
	"CreateAndGet":         testStoreCreateAndGet,
	"VersionBump":          testStoreVersionBump,
	"ErrorAbortsMutation":  testStoreErrorAbortsMutation,
	"NilResultIsNoop":      testStoreNilResultIsNoop,
	"GetMissing":           testStoreGetMissing,
	"ListFiltersByStatus":  testStoreListFiltersByStatus,
	"ListScheduledDueOnly": testStoreListScheduledDueOnly,
	"ConcurrentMutations":  testStoreConcurrentMutations,
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) WorkflowStore) {
	t.Helper()
	for name, tc := range storeContractCases {
		t.Run(name, func(t *testing.T) {
			tc(t, newStore(t))
		})
	}
}

var testBaseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleSnapshot(envelopeID string, status api.WorkflowStatus) *api.Snapshot {
	wfID := "wf-" + envelopeID
	return &api.Snapshot{
		Workflow: &api.Workflow{
			ID:                  wfID,
			EnvelopeID:          envelopeID,
			Status:              status,
			RoutingType:         api.RoutingMixed,
			CurrentRoutingOrder: 1,
			AutoNavigation:      true,
			CreatedAt:           testBaseTime,
			UpdatedAt:           testBaseTime,
		},
		Steps: []*api.WorkflowStep{
			{ID: wfID + "-s2", WorkflowID: wfID, RecipientID: "r2", Action: api.ActionReceiveCopy, RoutingOrder: 2, SequenceIndex: 2, Status: api.StepPending},
			{ID: wfID + "-s0", WorkflowID: wfID, RecipientID: "r0", Action: api.ActionSign, RoutingOrder: 1, SequenceIndex: 0, Status: api.StepPending},
			{ID: wfID + "-s1", WorkflowID: wfID, RecipientID: "r1", Action: api.ActionSign, RoutingOrder: 1, SequenceIndex: 1, Status: api.StepPending},
		},
	}
}

func put(t *testing.T, store WorkflowStore, snap *api.Snapshot) {
	t.Helper()
	err := store.Mutate(context.Background(), snap.Workflow.EnvelopeID, func(cur *api.Snapshot) (*api.Snapshot, error) {
		return snap.Clone(), nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
}

func testStoreCreateAndGet(t *testing.T, store WorkflowStore) {
	ctx := context.Background()

	var sawNil bool
	err := store.Mutate(ctx, "env-1", func(cur *api.Snapshot) (*api.Snapshot, error) {
		sawNil = cur == nil
		return sampleSnapshot("env-1", api.WorkflowNotStarted), nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if !sawNil {
		t.Fatalf("expected nil snapshot for new envelope")
	}

	got, err := store.Get(ctx, "env-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Workflow.ID != "wf-env-1" || got.Workflow.Status != api.WorkflowNotStarted {
		t.Fatalf("unexpected workflow: %+v", got.Workflow)
	}
	if got.Workflow.Version != 1 {
		t.Fatalf("expected version 1, got %d", got.Workflow.Version)
	}
	if !got.Workflow.CreatedAt.Equal(testBaseTime) {
		t.Fatalf("expected CreatedAt %v, got %v", testBaseTime, got.Workflow.CreatedAt)
	}
	if len(got.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(got.Steps))
	}
	for i, st := range got.Steps {
		if st.SequenceIndex != i {
			t.Fatalf("expected steps ordered by sequence, got %d at %d", st.SequenceIndex, i)
		}
	}
}

func testStoreVersionBump(t *testing.T, store WorkflowStore) {
	ctx := context.Background()
	put(t, store, sampleSnapshot("env-v", api.WorkflowNotStarted))

	triggered := testBaseTime.Add(time.Minute)
	err := store.Mutate(ctx, "env-v", func(cur *api.Snapshot) (*api.Snapshot, error) {
		if cur == nil {
			return nil, errors.New("expected existing snapshot")
		}
		if cur.Workflow.Version != 1 {
			return nil, fmt.Errorf("expected version 1 inside mutation, got %d", cur.Workflow.Version)
		}
		cur.Workflow.Status = api.WorkflowInProgress
		cur.Steps[0].Status = api.StepTriggered
		cur.Steps[0].TriggeredAt = &triggered
		return cur, nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	got, err := store.Get(ctx, "env-v")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Workflow.Version != 2 {
		t.Fatalf("expected version 2, got %d", got.Workflow.Version)
	}
	if got.Workflow.Status != api.WorkflowInProgress {
		t.Fatalf("expected in_progress, got %q", got.Workflow.Status)
	}
	st := got.StepForRecipient("r0")
	if st == nil || st.Status != api.StepTriggered || st.TriggeredAt == nil || !st.TriggeredAt.Equal(triggered) {
		t.Fatalf("unexpected step after update: %+v", st)
	}
}

func testStoreErrorAbortsMutation(t *testing.T, store WorkflowStore) {
	ctx := context.Background()
	put(t, store, sampleSnapshot("env-e", api.WorkflowNotStarted))

	boom := errors.New("boom")
	err := store.Mutate(ctx, "env-e", func(cur *api.Snapshot) (*api.Snapshot, error) {
		cur.Workflow.Status = api.WorkflowCancelled
		return cur, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, err := store.Get(ctx, "env-e")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Workflow.Status != api.WorkflowNotStarted || got.Workflow.Version != 1 {
		t.Fatalf("aborted mutation leaked: %+v", got.Workflow)
	}
}

func testStoreNilResultIsNoop(t *testing.T, store WorkflowStore) {
	ctx := context.Background()

	err := store.Mutate(ctx, "env-none", func(cur *api.Snapshot) (*api.Snapshot, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if _, err := store.Get(ctx, "env-none"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func testStoreGetMissing(t *testing.T, store WorkflowStore) {
	_, err := store.Get(context.Background(), "does-not-exist")
	if !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func testStoreListFiltersByStatus(t *testing.T, store WorkflowStore) {
	ctx := context.Background()
	put(t, store, sampleSnapshot("env-a", api.WorkflowInProgress))
	put(t, store, sampleSnapshot("env-b", api.WorkflowCompleted))
	put(t, store, sampleSnapshot("env-c", api.WorkflowInProgress))

	all, err := store.List(ctx, WorkflowFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 workflows, got %d", len(all))
	}

	running, err := store.List(ctx, WorkflowFilter{Status: api.WorkflowInProgress})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(running) != 2 {
		t.Fatalf("expected 2 in-progress workflows, got %d", len(running))
	}
	if running[0].EnvelopeID != "env-a" || running[1].EnvelopeID != "env-c" {
		t.Fatalf("unexpected order: %s, %s", running[0].EnvelopeID, running[1].EnvelopeID)
	}
}

func testStoreListScheduledDueOnly(t *testing.T, store WorkflowStore) {
	ctx := context.Background()
	now := testBaseTime.Add(time.Hour)

	due := sampleSnapshot("env-due", api.WorkflowPaused)
	dueAt := now.Add(-time.Minute)
	due.Workflow.ScheduledResumeAt = &dueAt
	put(t, store, due)

	earlier := sampleSnapshot("env-earlier", api.WorkflowPaused)
	earlierAt := now.Add(-time.Hour)
	earlier.Workflow.ScheduledResumeAt = &earlierAt
	put(t, store, earlier)

	future := sampleSnapshot("env-future", api.WorkflowPaused)
	futureAt := now.Add(time.Hour)
	future.Workflow.ScheduledResumeAt = &futureAt
	put(t, store, future)

	put(t, store, sampleSnapshot("env-manual", api.WorkflowPaused))

	ids, err := store.ListScheduled(ctx, now)
	if err != nil {
		t.Fatalf("ListScheduled failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "env-earlier" || ids[1] != "env-due" {
		t.Fatalf("unexpected due envelopes: %v", ids)
	}

	// Resuming drops the workflow from the schedule.
	err = store.Mutate(ctx, "env-due", func(cur *api.Snapshot) (*api.Snapshot, error) {
		cur.Workflow.Status = api.WorkflowInProgress
		cur.Workflow.ScheduledResumeAt = nil
		return cur, nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	ids, err = store.ListScheduled(ctx, now)
	if err != nil {
		t.Fatalf("ListScheduled failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "env-earlier" {
		t.Fatalf("unexpected due envelopes after resume: %v", ids)
	}
}

func testStoreConcurrentMutations(t *testing.T, store WorkflowStore) {
	ctx := context.Background()
	put(t, store, sampleSnapshot("env-race", api.WorkflowInProgress))

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Mutate(ctx, "env-race", func(cur *api.Snapshot) (*api.Snapshot, error) {
				cur.Workflow.CurrentRoutingOrder++
				return cur, nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Mutate failed: %v", err)
		}
	}

	got, err := store.Get(ctx, "env-race")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Workflow.CurrentRoutingOrder != 1+writers {
		t.Fatalf("lost update: expected order %d, got %d", 1+writers, got.Workflow.CurrentRoutingOrder)
	}
	if got.Workflow.Version != 1+writers {
		t.Fatalf("expected version %d, got %d", 1+writers, got.Workflow.Version)
	}
}
