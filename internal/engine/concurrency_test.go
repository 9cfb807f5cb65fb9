package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/petrijr/envroute/pkg/api"
)

func TestProgressWorkflow_ConcurrentCompletionsAdvanceOnce(t *testing.T) {
	const n = 8

	f := newFixture(t)
	ctx := context.Background()

	var rs []api.Recipient
	for i := 0; i < n; i++ {
		rs = append(rs, signer(fmt.Sprintf("p%d", i), 1))
	}
	rs = append(rs, signer("last", 2))
	f.started(t, "env", api.EnvelopeSent, rs...)

	for i := 0; i < n; i++ {
		if err := f.dir.SetRecipientStatus("env", fmt.Sprintf("p%d", i), api.RecipientSigned); err != nil {
			t.Fatalf("SetRecipientStatus failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	results := make([]bool, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.eng.ProgressWorkflow(ctx, "env", fmt.Sprintf("p%d", i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil || !results[i] {
			t.Fatalf("progress p%d: ok=%v err=%v", i, results[i], errs[i])
		}
	}

	if got := f.observer.count(api.EventWorkflowAdvanced); got != 1 {
		t.Fatalf("advanced %d times, want exactly once", got)
	}
	snap := f.snapshot(t, "env")
	if snap.Workflow.CurrentRoutingOrder != 2 {
		t.Fatalf("order = %d, want 2", snap.Workflow.CurrentRoutingOrder)
	}
	notifiedLast := 0
	for _, id := range f.dir.NotifiedRecipients("env") {
		if id == "last" {
			notifiedLast++
		}
	}
	if notifiedLast != 1 {
		t.Fatalf("last recipient notified %d times, want 1", notifiedLast)
	}
}

func TestProgressWorkflow_ConcurrentFinalWaveCompletesOnce(t *testing.T) {
	const n = 6

	f := newFixture(t)
	ctx := context.Background()

	var rs []api.Recipient
	for i := 0; i < n; i++ {
		rs = append(rs, signer(fmt.Sprintf("p%d", i), 1))
	}
	f.started(t, "env", api.EnvelopeSent, rs...)
	for i := 0; i < n; i++ {
		_ = f.dir.SetRecipientStatus("env", fmt.Sprintf("p%d", i), api.RecipientSigned)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = f.eng.ProgressWorkflow(ctx, "env", fmt.Sprintf("p%d", i))
		}(i)
	}
	wg.Wait()

	if got := f.observer.count(api.EventWorkflowCompleted); got != 1 {
		t.Fatalf("completed %d times, want once", got)
	}
	if got := f.envelopeStatus(t, "env"); got != api.EnvelopeCompleted {
		t.Fatalf("envelope status = %s, want completed", got)
	}
}

func TestCancelRacingProgress_OneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.started(t, "env", api.EnvelopeSent, signer("a", 1))
	_ = f.dir.SetRecipientStatus("env", "a", api.RecipientSigned)

	var (
		wg        sync.WaitGroup
		cancelErr error
		progErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, cancelErr = f.eng.CancelWorkflow(ctx, "env", "")
	}()
	go func() {
		defer wg.Done()
		_, progErr = f.eng.ProgressWorkflow(ctx, "env", "a")
	}()
	wg.Wait()

	if progErr != nil {
		t.Fatalf("progress must never fail on a lost race: %v", progErr)
	}
	snap := f.snapshot(t, "env")
	switch snap.Workflow.Status {
	case api.WorkflowCompleted:
		if cancelErr == nil {
			t.Fatalf("cancel reported success on a completed workflow")
		}
	case api.WorkflowCancelled:
		if cancelErr != nil {
			t.Fatalf("cancel won but returned %v", cancelErr)
		}
	default:
		t.Fatalf("unexpected final status %s", snap.Workflow.Status)
	}
}
