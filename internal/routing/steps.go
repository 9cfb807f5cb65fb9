package routing

import (
	"sort"

	"github.com/petrijr/envroute/pkg/api"
)

var actionByType = map[api.RecipientType]api.StepAction{
	api.RecipientSigner:            api.ActionSign,
	api.RecipientInPersonSigner:    api.ActionSign,
	api.RecipientCarbonCopy:        api.ActionReceiveCopy,
	api.RecipientCertifiedDelivery: api.ActionCertify,
	api.RecipientAgent:             api.ActionDelegate,
	api.RecipientEditor:            api.ActionView,
	api.RecipientIntermediary:      api.ActionView,
	api.RecipientWitness:           api.ActionView,
}

// ActionFor maps a recipient type to the action its step carries.
// Unknown types are asked to view.
func ActionFor(t api.RecipientType) api.StepAction {
	if a, ok := actionByType[t]; ok {
		return a
	}
	return api.ActionView
}

// SortRecipients orders recipients by routing order, then listing position,
// then ID, so that step generation is deterministic.
func SortRecipients(recipients []api.Recipient) []api.Recipient {
	out := append([]api.Recipient(nil), recipients...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RoutingOrder != b.RoutingOrder {
			return a.RoutingOrder < b.RoutingOrder
		}
		if a.ListingIndex != b.ListingIndex {
			return a.ListingIndex < b.ListingIndex
		}
		return a.ID < b.ID
	})
	return out
}

// BuildSteps creates one pending step per recipient. The result fully
// replaces any previous step set of the workflow.
func BuildSteps(workflowID string, recipients []api.Recipient, newID func() string) []*api.WorkflowStep {
	sorted := SortRecipients(recipients)
	steps := make([]*api.WorkflowStep, 0, len(sorted))
	for i, r := range sorted {
		steps = append(steps, &api.WorkflowStep{
			ID:            newID(),
			WorkflowID:    workflowID,
			RecipientID:   r.ID,
			Action:        ActionFor(r.Type),
			RoutingOrder:  r.RoutingOrder,
			SequenceIndex: i,
			Status:        api.StepPending,
		})
	}
	return steps
}
