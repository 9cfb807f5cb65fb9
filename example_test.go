package envroute_test

import (
	"context"
	"fmt"
	"log"

	"github.com/petrijr/envroute"
	"github.com/petrijr/envroute/pkg/api"
	"github.com/petrijr/envroute/pkg/inmem"
)

// Example_mixedRouting routes an envelope whose first wave has two signers
// and whose second wave has one.
func Example_mixedRouting() {
	ctx := context.Background()

	dir := inmem.NewDirectory()
	dir.AddEnvelope("env-1", api.EnvelopeSent,
		api.Recipient{ID: "a", Type: api.RecipientSigner, RoutingOrder: 1},
		api.Recipient{ID: "b", Type: api.RecipientSigner, RoutingOrder: 1},
		api.Recipient{ID: "c", Type: api.RecipientSigner, RoutingOrder: 2},
	)

	eng, err := envroute.NewInMemoryEngine(envroute.Collaborators{
		Recipients: dir,
		Envelopes:  dir,
		Notifier:   dir,
	})
	if err != nil {
		log.Fatal(err)
	}

	wf, err := eng.InitializeWorkflow(ctx, "env-1", nil)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("routing:", wf.RoutingType)

	if _, err := eng.StartWorkflow(ctx, "env-1", nil); err != nil {
		log.Fatal(err)
	}
	fmt.Println("notified:", dir.NotifiedRecipients("env-1"))

	for _, id := range []string{"a", "b", "c"} {
		_ = dir.SetRecipientStatus("env-1", id, api.RecipientSigned)
		if _, err := eng.ProgressWorkflow(ctx, "env-1", id); err != nil {
			log.Fatal(err)
		}
	}

	rep, err := eng.Status(ctx, "env-1")
	if err != nil {
		log.Fatal(err)
	}
	status, _ := dir.EnvelopeStatus(ctx, "env-1")
	fmt.Println("notified:", dir.NotifiedRecipients("env-1"))
	fmt.Printf("workflow %s, %d/%d completed, envelope %s\n",
		rep.Status, rep.Counts.Completed, rep.Counts.Total, status)

	// Output:
	// routing: mixed
	// notified: [a b]
	// notified: [a b c]
	// workflow completed, 3/3 completed, envelope completed
}

// Example_cancel shows that cancelling a sent envelope's routing voids it.
func Example_cancel() {
	ctx := context.Background()

	dir := inmem.NewDirectory()
	dir.AddEnvelope("env-2", api.EnvelopeSent,
		api.Recipient{ID: "a", Type: api.RecipientSigner, RoutingOrder: 1},
		api.Recipient{ID: "b", Type: api.RecipientSigner, RoutingOrder: 2},
	)

	eng, err := envroute.NewInMemoryEngine(envroute.Collaborators{Recipients: dir, Envelopes: dir, Notifier: dir})
	if err != nil {
		log.Fatal(err)
	}
	_, _ = eng.InitializeWorkflow(ctx, "env-2", nil)
	_, _ = eng.StartWorkflow(ctx, "env-2", nil)

	wf, err := eng.CancelWorkflow(ctx, "env-2", "")
	if err != nil {
		log.Fatal(err)
	}
	status, _ := dir.EnvelopeStatus(ctx, "env-2")
	fmt.Printf("workflow %s (%s), envelope %s: %s\n", wf.Status, wf.CancelReason, status, dir.VoidReason("env-2"))

	// Output:
	// workflow cancelled (Workflow cancelled), envelope voided: Workflow cancelled
}
