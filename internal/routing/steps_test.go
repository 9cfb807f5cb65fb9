package routing

import (
	"fmt"
	"testing"

	"github.com/petrijr/envroute/pkg/api"
)

func TestActionFor(t *testing.T) {
	cases := map[api.RecipientType]api.StepAction{
		api.RecipientSigner:            api.ActionSign,
		api.RecipientInPersonSigner:    api.ActionSign,
		api.RecipientCarbonCopy:        api.ActionReceiveCopy,
		api.RecipientCertifiedDelivery: api.ActionCertify,
		api.RecipientAgent:             api.ActionDelegate,
		api.RecipientEditor:            api.ActionView,
		api.RecipientType("notary"):    api.ActionView,
	}
	for typ, want := range cases {
		if got := ActionFor(typ); got != want {
			t.Fatalf("ActionFor(%s) = %s, want %s", typ, got, want)
		}
	}
}

func TestBuildSteps_OrdersByRoutingOrderThenListing(t *testing.T) {
	recipients := []api.Recipient{
		{ID: "c", RoutingOrder: 2, ListingIndex: 0, Type: api.RecipientCarbonCopy},
		{ID: "b", RoutingOrder: 1, ListingIndex: 1, Type: api.RecipientSigner},
		{ID: "a", RoutingOrder: 1, ListingIndex: 0, Type: api.RecipientSigner},
	}
	n := 0
	steps := BuildSteps("wf", recipients, func() string { n++; return fmt.Sprintf("s%d", n) })

	want := []string{"a", "b", "c"}
	for i, st := range steps {
		if st.RecipientID != want[i] {
			t.Fatalf("step %d recipient = %s, want %s", i, st.RecipientID, want[i])
		}
		if st.SequenceIndex != i || st.WorkflowID != "wf" || st.Status != api.StepPending {
			t.Fatalf("unexpected step %d: %+v", i, st)
		}
	}
	if steps[2].Action != api.ActionReceiveCopy {
		t.Fatalf("cc step action = %s", steps[2].Action)
	}
}
