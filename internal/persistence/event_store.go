package persistence

import (
	"context"
	"sync"

	"github.com/petrijr/envroute/pkg/api"
)

// EventStore is an append-only history store for workflow events.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.WorkflowEvent) error
	ListEvents(ctx context.Context, envelopeID string) ([]api.WorkflowEvent, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(ctx context.Context, ev api.WorkflowEvent) error { return nil }
func (NoopEventStore) ListEvents(ctx context.Context, envelopeID string) ([]api.WorkflowEvent, error) {
	return nil, nil
}

// InMemoryEventStore keeps history in process memory.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events map[string][]api.WorkflowEvent
}

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{events: make(map[string][]api.WorkflowEvent)}
}

var _ EventStore = (*InMemoryEventStore)(nil)

func (s *InMemoryEventStore) AppendEvent(ctx context.Context, ev api.WorkflowEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[ev.EnvelopeID] = append(s.events[ev.EnvelopeID], ev)
	return nil
}

func (s *InMemoryEventStore) ListEvents(ctx context.Context, envelopeID string) ([]api.WorkflowEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]api.WorkflowEvent(nil), s.events[envelopeID]...), nil
}
