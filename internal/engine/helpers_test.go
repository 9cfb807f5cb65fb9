package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petrijr/envroute/internal/persistence"
	"github.com/petrijr/envroute/pkg/api"
	"github.com/petrijr/envroute/pkg/inmem"
)

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: testStart} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type effectFailure struct {
	eff       api.Effect
	willRetry bool
}

type recordingObserver struct {
	mu       sync.Mutex
	events   []api.WorkflowEvent
	failures []effectFailure
}

func (o *recordingObserver) OnWorkflowEvent(ctx context.Context, wf *api.Workflow, ev api.WorkflowEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *recordingObserver) OnEffectFailed(ctx context.Context, eff api.Effect, err error, willRetry bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, effectFailure{eff: eff, willRetry: willRetry})
}

func (o *recordingObserver) count(typ api.EventType) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, ev := range o.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (o *recordingObserver) failed() []effectFailure {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]effectFailure(nil), o.failures...)
}

type fixture struct {
	dir      *inmem.Directory
	clock    *testClock
	observer *recordingObserver
	eng      api.Engine
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
}

func newFixtureWith(t *testing.T, p persistence.Persistence, mutate func(*Config)) *fixture {
	t.Helper()

	f := &fixture{
		dir:      inmem.NewDirectory(),
		clock:    newTestClock(),
		observer: &recordingObserver{},
	}
	cfg := Config{
		Persistence: p,
		Collaborators: Collaborators{
			Recipients: f.dir,
			Envelopes:  f.dir,
			Notifier:   f.dir,
		},
		Observer: f.observer,
		Clock:    f.clock.Now,
		NewID:    sequentialIDs(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	eng, err := NewEngineWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewEngineWithConfig failed: %v", err)
	}
	f.eng = eng
	return f
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, persistence.Persistence{
		Workflows: persistence.NewInMemoryStore(),
		Events:    persistence.NewInMemoryEventStore(),
	}, nil)
}

func signer(id string, order int) api.Recipient {
	return api.Recipient{
		ID:           id,
		Name:         "Recipient " + id,
		Email:        id + "@example.com",
		Type:         api.RecipientSigner,
		RoutingOrder: order,
	}
}

// started adds an envelope, initializes its workflow and starts routing.
func (f *fixture) started(t *testing.T, envelopeID string, status api.EnvelopeStatus, recipients ...api.Recipient) {
	t.Helper()
	ctx := context.Background()

	f.dir.AddEnvelope(envelopeID, status, recipients...)
	if _, err := f.eng.InitializeWorkflow(ctx, envelopeID, nil); err != nil {
		t.Fatalf("InitializeWorkflow failed: %v", err)
	}
	if _, err := f.eng.StartWorkflow(ctx, envelopeID, nil); err != nil {
		t.Fatalf("StartWorkflow failed: %v", err)
	}
}

// act records the recipient's action and reports it to the engine.
func (f *fixture) act(t *testing.T, envelopeID, recipientID string, status api.RecipientStatus) bool {
	t.Helper()
	if err := f.dir.SetRecipientStatus(envelopeID, recipientID, status); err != nil {
		t.Fatalf("SetRecipientStatus failed: %v", err)
	}
	ok, err := f.eng.ProgressWorkflow(context.Background(), envelopeID, recipientID)
	if err != nil {
		t.Fatalf("ProgressWorkflow(%s) failed: %v", recipientID, err)
	}
	return ok
}

func (f *fixture) snapshot(t *testing.T, envelopeID string) *api.Snapshot {
	t.Helper()
	snap, err := f.eng.GetWorkflow(context.Background(), envelopeID)
	if err != nil {
		t.Fatalf("GetWorkflow failed: %v", err)
	}
	return snap
}

func (f *fixture) envelopeStatus(t *testing.T, envelopeID string) api.EnvelopeStatus {
	t.Helper()
	st, err := f.dir.EnvelopeStatus(context.Background(), envelopeID)
	if err != nil {
		t.Fatalf("EnvelopeStatus failed: %v", err)
	}
	return st
}

func stepStatuses(s *api.Snapshot) map[string]api.StepStatus {
	out := make(map[string]api.StepStatus, len(s.Steps))
	for _, st := range s.Steps {
		out[st.RecipientID] = st.Status
	}
	return out
}

func recipientIDs(rs []api.Recipient) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func persistenceInMemory() persistence.Persistence {
	return persistence.Persistence{
		Workflows: persistence.NewInMemoryStore(),
		Events:    persistence.NewInMemoryEventStore(),
	}
}
