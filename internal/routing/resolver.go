package routing

import "github.com/petrijr/envroute/pkg/api"

// CurrentActive returns the recipients in the live wave, in step order.
// Outside of InProgress nobody is active.
func CurrentActive(s *api.Snapshot, recipients []api.Recipient) []api.Recipient {
	if s == nil || s.Workflow == nil || s.Workflow.Status != api.WorkflowInProgress {
		return nil
	}
	byID := indexRecipients(recipients)

	var out []api.Recipient
	for _, st := range s.StepsAt(s.Workflow.CurrentRoutingOrder) {
		if r, ok := byID[st.RecipientID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Pending returns recipients whose routing order is past the current one, by
// routing order. It is a pure projection of the order, so a cancelled
// workflow still reports the waves it never reached.
func Pending(s *api.Snapshot, recipients []api.Recipient) []api.Recipient {
	if s == nil || s.Workflow == nil {
		return nil
	}
	var out []api.Recipient
	for _, r := range SortRecipients(recipients) {
		if r.RoutingOrder > s.Workflow.CurrentRoutingOrder {
			out = append(out, r)
		}
	}
	return out
}

// Completed returns recipients whose recipient-level status says they have
// signed or completed, regardless of step state.
func Completed(recipients []api.Recipient) []api.Recipient {
	var out []api.Recipient
	for _, r := range SortRecipients(recipients) {
		if r.HasSigned() {
			out = append(out, r)
		}
	}
	return out
}

// CanAct reports whether the recipient may act now. Without an active
// workflow the answer is permissive; parallel workflows let anyone act once
// started.
func CanAct(s *api.Snapshot, r api.Recipient) bool {
	if s == nil || s.Workflow == nil || s.Workflow.Status != api.WorkflowInProgress {
		return true
	}
	switch s.Workflow.RoutingType {
	case api.RoutingParallel:
		return true
	case api.RoutingSequential, api.RoutingMixed:
		return r.RoutingOrder == s.Workflow.CurrentRoutingOrder
	}
	return false
}

func indexRecipients(recipients []api.Recipient) map[string]api.Recipient {
	out := make(map[string]api.Recipient, len(recipients))
	for _, r := range recipients {
		out[r.ID] = r
	}
	return out
}
