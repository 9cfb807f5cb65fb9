package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/envroute/internal/persistence"
	"github.com/petrijr/envroute/internal/routing"
	"github.com/petrijr/envroute/pkg/api"
)

// Collaborators are the external services the engine reads from and
// delivers effects to.
type Collaborators struct {
	Recipients api.RecipientReader
	Envelopes  api.EnvelopeService
	Notifier   api.Notifier
}

func (c Collaborators) validate() error {
	switch {
	case c.Recipients == nil:
		return errors.New("engine: recipient reader is required")
	case c.Envelopes == nil:
		return errors.New("engine: envelope service is required")
	case c.Notifier == nil:
		return errors.New("engine: notifier is required")
	}
	return nil
}

// Config describes how to construct an engine.
type Config struct {
	Persistence persistence.Persistence
	Collaborators

	// Dispatcher delivers post-commit effects. Defaults to a DirectDispatcher
	// over the collaborators.
	Dispatcher Dispatcher

	Observer api.Observer
	Logger   *slog.Logger

	// Clock defaults to time.Now.
	Clock func() time.Time

	// NewID generates workflow and step IDs. Defaults to random UUIDs.
	NewID func() string
}

// engineImpl runs every command as one Store.Mutate and hands the resulting
// events and effects to the history store, the observer and the dispatcher
// once the mutation has committed.
type engineImpl struct {
	store      persistence.WorkflowStore
	events     persistence.EventStore
	recipients api.RecipientReader
	envelopes  api.EnvelopeService
	dispatcher Dispatcher
	observer   api.Observer
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) (api.Engine, error) {
	if cfg.Persistence.Workflows == nil {
		return nil, errors.New("engine: workflow store is required")
	}
	if err := cfg.Collaborators.validate(); err != nil {
		return nil, err
	}

	e := &engineImpl{
		store:      cfg.Persistence.Workflows,
		events:     cfg.Persistence.Events,
		recipients: cfg.Recipients,
		envelopes:  cfg.Envelopes,
		dispatcher: cfg.Dispatcher,
		observer:   cfg.Observer,
		logger:     cfg.Logger,
		now:        cfg.Clock,
		newID:      cfg.NewID,
	}
	if e.events == nil {
		e.events = persistence.NoopEventStore{}
	}
	if e.observer == nil {
		e.observer = api.NoopObserver{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	if e.dispatcher == nil {
		e.dispatcher = NewDirectDispatcher(cfg.Envelopes, cfg.Notifier, e.observer, e.logger)
	}
	return e, nil
}

// NewEngine returns an Engine over the given persistence.
func NewEngine(p persistence.Persistence, c Collaborators, opts ...Option) (api.Engine, error) {
	cfg := Config{Persistence: p, Collaborators: c}
	cfg.apply(opts)
	return NewEngineWithConfig(cfg)
}

// NewInMemoryEngine keeps workflows and history in process memory.
func NewInMemoryEngine(c Collaborators, opts ...Option) (api.Engine, error) {
	return NewEngine(persistence.Persistence{
		Workflows: persistence.NewInMemoryStore(),
		Events:    persistence.NewInMemoryEventStore(),
	}, c, opts...)
}

// NewSQLiteEngine stores workflows and history in db.
func NewSQLiteEngine(db *sql.DB, c Collaborators, opts ...Option) (api.Engine, error) {
	wf, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	ev, err := persistence.NewSQLiteEventStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(persistence.Persistence{Workflows: wf, Events: ev}, c, opts...)
}

// NewPostgresEngine stores workflows in PostgreSQL. History stays in memory
// unless WithEventStore says otherwise.
func NewPostgresEngine(ctx context.Context, pool *pgxpool.Pool, c Collaborators, opts ...Option) (api.Engine, error) {
	wf, err := persistence.NewPostgresStore(ctx, pool)
	if err != nil {
		return nil, err
	}
	return NewEngine(persistence.Persistence{Workflows: wf, Events: persistence.NewInMemoryEventStore()}, c, opts...)
}

// NewRedisEngine stores workflows in Redis under the "envroute:" prefix.
func NewRedisEngine(client *redis.Client, c Collaborators, opts ...Option) (api.Engine, error) {
	wf := persistence.NewRedisStore(client, "envroute:")
	return NewEngine(persistence.Persistence{Workflows: wf, Events: persistence.NewInMemoryEventStore()}, c, opts...)
}

// NewMongoEngine stores workflows in the "envroute" database.
func NewMongoEngine(ctx context.Context, client *mongo.Client, c Collaborators, opts ...Option) (api.Engine, error) {
	wf := persistence.NewMongoStore(client, "", "")
	if err := wf.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return NewEngine(persistence.Persistence{Workflows: wf, Events: persistence.NewInMemoryEventStore()}, c, opts...)
}

// transitionFunc applies one command to the snapshot. Returning (nil, nil)
// means nothing changed and nothing is written.
type transitionFunc func(t *routing.Transition, cur *api.Snapshot) (*api.Snapshot, error)

// mutate runs fn under the store's exclusive access to the envelope. A fresh
// Transition is built for every invocation, so only the committed attempt's
// events and effects survive.
func (e *engineImpl) mutate(ctx context.Context, envelopeID string, fn transitionFunc) (*api.Snapshot, error) {
	var (
		committed *api.Snapshot
		tr        *routing.Transition
	)
	err := e.store.Mutate(ctx, envelopeID, func(cur *api.Snapshot) (*api.Snapshot, error) {
		tr = routing.NewTransition(e.now())
		committed = nil
		next, err := fn(tr, cur)
		if err != nil {
			return nil, err
		}
		committed = next
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	if committed != nil {
		e.afterCommit(ctx, committed.Workflow, tr)
	}
	return committed, nil
}

// afterCommit records history, notifies the observer and dispatches effects.
// None of it can undo the committed transition; failures are logged.
func (e *engineImpl) afterCommit(ctx context.Context, wf *api.Workflow, tr *routing.Transition) {
	ctx = context.WithoutCancel(ctx)
	for _, ev := range tr.Events {
		if err := e.events.AppendEvent(ctx, ev); err != nil {
			e.logger.Warn("append workflow event failed",
				slog.String("envelope_id", ev.EnvelopeID),
				slog.String("event", string(ev.Type)),
				slog.Any("error", err),
			)
		}
		e.observer.OnWorkflowEvent(ctx, wf, ev)
	}
	if len(tr.Effects) > 0 {
		e.dispatcher.Dispatch(ctx, tr.Effects)
	}
}

func (e *engineImpl) envelopeStatus(ctx context.Context, envelopeID string) routing.EnvelopeStatusFunc {
	return func() (api.EnvelopeStatus, error) {
		return e.envelopes.EnvelopeStatus(ctx, envelopeID)
	}
}

func (e *engineImpl) InitializeWorkflow(ctx context.Context, envelopeID string, routingType *api.RoutingType) (*api.Workflow, error) {
	recipients, err := e.recipients.ListRecipients(ctx, envelopeID)
	if err != nil {
		return nil, fmt.Errorf("initialize workflow %s: %w", envelopeID, err)
	}

	snap, err := e.mutate(ctx, envelopeID, func(t *routing.Transition, cur *api.Snapshot) (*api.Snapshot, error) {
		return t.Initialize(cur, envelopeID, recipients, routingType, e.newID)
	})
	if err != nil {
		return nil, fmt.Errorf("initialize workflow %s: %w", envelopeID, err)
	}
	return snap.Workflow, nil
}

func (e *engineImpl) StartWorkflow(ctx context.Context, envelopeID string, scheduledAt *time.Time) (*api.Workflow, error) {
	snap, err := e.mutate(ctx, envelopeID, func(t *routing.Transition, cur *api.Snapshot) (*api.Snapshot, error) {
		if err := t.Start(cur, scheduledAt); err != nil {
			return nil, err
		}
		return cur, nil
	})
	if err != nil {
		return nil, fmt.Errorf("start workflow %s: %w", envelopeID, err)
	}
	return snap.Workflow, nil
}

func (e *engineImpl) ProgressWorkflow(ctx context.Context, envelopeID, recipientID string) (bool, error) {
	recipient, err := e.recipients.GetRecipient(ctx, envelopeID, recipientID)
	if err != nil {
		if errors.Is(err, api.ErrRecipientNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("progress workflow %s: %w", envelopeID, err)
	}
	declined := recipient.HasDeclined()

	snap, err := e.mutate(ctx, envelopeID, func(t *routing.Transition, cur *api.Snapshot) (*api.Snapshot, error) {
		progressed, err := t.Progress(cur, recipientID, declined, e.envelopeStatus(ctx, envelopeID))
		if err != nil || !progressed {
			return nil, err
		}
		return cur, nil
	})
	if err != nil {
		return false, fmt.Errorf("progress workflow %s: %w", envelopeID, err)
	}
	return snap != nil, nil
}

func (e *engineImpl) PauseWorkflow(ctx context.Context, envelopeID string, resumeAt *time.Time) (*api.Workflow, error) {
	snap, err := e.mutate(ctx, envelopeID, func(t *routing.Transition, cur *api.Snapshot) (*api.Snapshot, error) {
		if err := t.Pause(cur, resumeAt); err != nil {
			return nil, err
		}
		return cur, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pause workflow %s: %w", envelopeID, err)
	}
	return snap.Workflow, nil
}

func (e *engineImpl) ResumeWorkflow(ctx context.Context, envelopeID string) (*api.Workflow, error) {
	snap, err := e.mutate(ctx, envelopeID, func(t *routing.Transition, cur *api.Snapshot) (*api.Snapshot, error) {
		if err := t.Resume(cur); err != nil {
			return nil, err
		}
		return cur, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resume workflow %s: %w", envelopeID, err)
	}
	return snap.Workflow, nil
}

func (e *engineImpl) CancelWorkflow(ctx context.Context, envelopeID string, reason string) (*api.Workflow, error) {
	snap, err := e.mutate(ctx, envelopeID, func(t *routing.Transition, cur *api.Snapshot) (*api.Snapshot, error) {
		if err := t.Cancel(cur, reason, e.envelopeStatus(ctx, envelopeID)); err != nil {
			return nil, err
		}
		return cur, nil
	})
	if err != nil {
		return nil, fmt.Errorf("cancel workflow %s: %w", envelopeID, err)
	}
	return snap.Workflow, nil
}

// load returns the envelope's snapshot, or nil when it has no workflow.
func (e *engineImpl) load(ctx context.Context, envelopeID string) (*api.Snapshot, error) {
	snap, err := e.store.Get(ctx, envelopeID)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return snap, nil
}

func (e *engineImpl) CurrentActive(ctx context.Context, envelopeID string) ([]api.Recipient, error) {
	snap, err := e.load(ctx, envelopeID)
	if err != nil || snap == nil {
		return nil, err
	}
	recipients, err := e.recipients.ListRecipients(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	return routing.CurrentActive(snap, recipients), nil
}

func (e *engineImpl) Pending(ctx context.Context, envelopeID string) ([]api.Recipient, error) {
	snap, err := e.load(ctx, envelopeID)
	if err != nil || snap == nil {
		return nil, err
	}
	recipients, err := e.recipients.ListRecipients(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	return routing.Pending(snap, recipients), nil
}

func (e *engineImpl) Completed(ctx context.Context, envelopeID string) ([]api.Recipient, error) {
	recipients, err := e.recipients.ListRecipients(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	return routing.Completed(recipients), nil
}

func (e *engineImpl) CanRecipientAct(ctx context.Context, envelopeID, recipientID string) (bool, error) {
	recipient, err := e.recipients.GetRecipient(ctx, envelopeID, recipientID)
	if err != nil {
		return false, err
	}
	snap, err := e.load(ctx, envelopeID)
	if err != nil {
		return false, err
	}
	return routing.CanAct(snap, recipient), nil
}

func (e *engineImpl) Status(ctx context.Context, envelopeID string) (*api.StatusReport, error) {
	snap, err := e.load(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	var recipients []api.Recipient
	if snap != nil {
		if recipients, err = e.recipients.ListRecipients(ctx, envelopeID); err != nil {
			return nil, err
		}
	}
	return routing.BuildReport(envelopeID, snap, recipients, e.now()), nil
}

func (e *engineImpl) GetWorkflow(ctx context.Context, envelopeID string) (*api.Snapshot, error) {
	snap, err := e.load(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("get workflow %s: %w", envelopeID, api.ErrWorkflowNotInitialized)
	}
	return snap, nil
}

func (e *engineImpl) ListWorkflows(ctx context.Context, opts api.WorkflowListOptions) ([]*api.Workflow, error) {
	return e.store.List(ctx, persistence.WorkflowFilter{Status: opts.Status})
}

func (e *engineImpl) History(ctx context.Context, envelopeID string) ([]api.WorkflowEvent, error) {
	return e.events.ListEvents(ctx, envelopeID)
}
