package envroute

import (
	"database/sql"

	"github.com/petrijr/envroute/internal/engine"
	"github.com/petrijr/envroute/internal/persistence"
	"github.com/petrijr/envroute/internal/taskqueue"
	workerpkg "github.com/petrijr/envroute/pkg/worker"
)

// NewSQLiteBundle constructs a durable Runtime whose workflows, history and
// queued effects all live in the provided *sql.DB. The sweeper runs on the
// default schedule once the runtime is started.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:routing.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
//	rt, err := envroute.NewSQLiteBundle(db, collaborators, worker.Config{MaxAttempts: 3})
//	_ = rt.Start(ctx)
//
// Writes take SQLite's lock with BEGIN IMMEDIATE and wait up to five seconds
// for it. A busy_timeout pragma in the DSN lets reads wait too.
//
// The caller owns db; Close does not close it.
func NewSQLiteBundle(db *sql.DB, c Collaborators, cfg workerpkg.Config, opts ...Option) (*Runtime, error) {
	wf, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	ev, err := persistence.NewSQLiteEventStore(db)
	if err != nil {
		return nil, err
	}
	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	return assemble(runtimeParts{
		persistence: persistence.Persistence{Workflows: wf, Events: ev},
		queue:       q,
		worker:      cfg,
		sweeper:     &engine.SweeperConfig{},
	}, c, opts)
}
