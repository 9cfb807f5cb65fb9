package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/petrijr/envroute/pkg/api"
)

// InMemoryStore is a goroutine-safe WorkflowStore backed by a map.
//
// Mutations on the same envelope are serialized by a per-envelope mutex;
// mutations on different envelopes run concurrently. Snapshots are copied on
// the way in and out, so callers never share memory with the store.
type InMemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*api.Snapshot

	locksMu sync.Mutex
	locks   map[string]*envelopeLock
}

// envelopeLock is dropped from the map once no Mutate holds or waits on it.
type envelopeLock struct {
	sync.Mutex
	refs int
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		snapshots: make(map[string]*api.Snapshot),
		locks:     make(map[string]*envelopeLock),
	}
}

// Ensure InMemoryStore implements WorkflowStore.
var _ WorkflowStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) acquire(envelopeID string) *envelopeLock {
	s.locksMu.Lock()
	l, ok := s.locks[envelopeID]
	if !ok {
		l = &envelopeLock{}
		s.locks[envelopeID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.Lock()
	return l
}

func (s *InMemoryStore) release(envelopeID string, l *envelopeLock) {
	l.Unlock()

	s.locksMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, envelopeID)
	}
	s.locksMu.Unlock()
}

// lockCount reports how many envelope locks are live.
func (s *InMemoryStore) lockCount() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}

func (s *InMemoryStore) Mutate(ctx context.Context, envelopeID string, fn MutateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.acquire(envelopeID)
	defer s.release(envelopeID, l)

	s.mu.RLock()
	prev := s.snapshots[envelopeID]
	s.mu.RUnlock()

	next, err := fn(prev.Clone())
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	if err := prepareNext(next, prev); err != nil {
		return err
	}

	stored := next.Clone()
	s.mu.Lock()
	s.snapshots[envelopeID] = stored
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, envelopeID string) (*api.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[envelopeID]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return snap.Clone(), nil
}

func (s *InMemoryStore) List(ctx context.Context, filter WorkflowFilter) ([]*api.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Workflow
	for _, snap := range s.snapshots {
		if filter.Status != "" && snap.Workflow.Status != filter.Status {
			continue
		}
		result = append(result, snap.Clone().Workflow)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].EnvelopeID < result[j].EnvelopeID
	})
	return result, nil
}

func (s *InMemoryStore) ListScheduled(ctx context.Context, dueBy time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type due struct {
		id string
		at time.Time
	}
	var items []due
	for id, snap := range s.snapshots {
		wf := snap.Workflow
		if isScheduled(wf) && !wf.ScheduledResumeAt.After(dueBy) {
			items = append(items, due{id: id, at: *wf.ScheduledResumeAt})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].at.Equal(items[j].at) {
			return items[i].at.Before(items[j].at)
		}
		return items[i].id < items[j].id
	})

	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.id)
	}
	return out, nil
}
