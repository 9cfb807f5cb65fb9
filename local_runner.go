package envroute

import (
	"github.com/petrijr/envroute/internal/engine"
	"github.com/petrijr/envroute/internal/persistence"
	"github.com/petrijr/envroute/internal/taskqueue"
	"github.com/petrijr/envroute/pkg/worker"
)

// NewLocalRunner returns a Runtime backed by in-memory stores and an
// in-memory effect queue, for local development, tests and single-process
// deployments.
//
//	runner, _ := envroute.NewLocalRunner(collaborators)
//	_ = runner.Start(ctx)
//	defer runner.Stop(ctx)
func NewLocalRunner(c Collaborators, opts ...Option) (*Runtime, error) {
	return assemble(runtimeParts{
		persistence: persistence.Persistence{
			Workflows: persistence.NewInMemoryStore(),
			Events:    persistence.NewInMemoryEventStore(),
		},
		queue:   taskqueue.NewInMemoryQueue(1024),
		worker:  worker.Config{},
		sweeper: &engine.SweeperConfig{},
	}, c, opts)
}
