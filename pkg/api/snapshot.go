package api

import (
	"sort"
	"time"
)

// Snapshot is the aggregate a store loads and persists as one atomic unit:
// a workflow together with all of its steps.
type Snapshot struct {
	Workflow *Workflow
	Steps    []*WorkflowStep
}

// Clone returns a deep copy of s. Stores hand clones to mutators so that a
// failed mutation never leaks into the stored state.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{}
	if s.Workflow != nil {
		wf := *s.Workflow
		wf.ScheduledResumeAt = cloneTime(s.Workflow.ScheduledResumeAt)
		wf.StartedAt = cloneTime(s.Workflow.StartedAt)
		wf.CompletedAt = cloneTime(s.Workflow.CompletedAt)
		wf.CancelledAt = cloneTime(s.Workflow.CancelledAt)
		out.Workflow = &wf
	}
	out.Steps = make([]*WorkflowStep, 0, len(s.Steps))
	for _, st := range s.Steps {
		cp := *st
		cp.TriggeredAt = cloneTime(st.TriggeredAt)
		cp.CompletedAt = cloneTime(st.CompletedAt)
		out.Steps = append(out.Steps, &cp)
	}
	return out
}

// SortSteps orders steps by routing order, then by sequence index.
func (s *Snapshot) SortSteps() {
	sort.SliceStable(s.Steps, func(i, j int) bool {
		a, b := s.Steps[i], s.Steps[j]
		if a.RoutingOrder != b.RoutingOrder {
			return a.RoutingOrder < b.RoutingOrder
		}
		return a.SequenceIndex < b.SequenceIndex
	})
}

// StepForRecipient returns the recipient's step, or nil.
func (s *Snapshot) StepForRecipient(recipientID string) *WorkflowStep {
	for _, st := range s.Steps {
		if st.RecipientID == recipientID {
			return st
		}
	}
	return nil
}

// StepsAt returns the steps at the given routing order in sequence order.
func (s *Snapshot) StepsAt(order int) []*WorkflowStep {
	var out []*WorkflowStep
	for _, st := range s.Steps {
		if st.RoutingOrder == order {
			out = append(out, st)
		}
	}
	return out
}

// LowestOpenOrder returns the lowest routing order among steps that are not
// yet terminal. ok is false when every step has finished.
func (s *Snapshot) LowestOpenOrder() (order int, ok bool) {
	for _, st := range s.Steps {
		if st.Status.Terminal() {
			continue
		}
		if !ok || st.RoutingOrder < order {
			order, ok = st.RoutingOrder, true
		}
	}
	return order, ok
}

// NextOrderAfter returns the smallest routing order strictly greater than
// order among all steps.
func (s *Snapshot) NextOrderAfter(order int) (next int, ok bool) {
	for _, st := range s.Steps {
		if st.RoutingOrder <= order {
			continue
		}
		if !ok || st.RoutingOrder < next {
			next, ok = st.RoutingOrder, true
		}
	}
	return next, ok
}

// Triggered reports whether any step has left the Pending status.
func (s *Snapshot) Triggered() bool {
	for _, st := range s.Steps {
		if st.Status != StepPending {
			return true
		}
	}
	return false
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
