package envroute

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/envroute/internal/engine"
	"github.com/petrijr/envroute/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine              = api.Engine
	Workflow            = api.Workflow
	WorkflowStep        = api.WorkflowStep
	Snapshot            = api.Snapshot
	WorkflowStatus      = api.WorkflowStatus
	RoutingType         = api.RoutingType
	StepStatus          = api.StepStatus
	Recipient           = api.Recipient
	StatusReport        = api.StatusReport
	WorkflowEvent       = api.WorkflowEvent
	WorkflowListOptions = api.WorkflowListOptions
	Effect              = api.Effect

	EnvelopeService = api.EnvelopeService
	RecipientReader = api.RecipientReader
	Notifier        = api.Notifier

	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver

	// Collaborators are the envelope-side services an engine depends on.
	Collaborators = engine.Collaborators

	// Option customizes an engine.
	Option = engine.Option

	Dispatcher = engine.Dispatcher
)

// Re-export common helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	IsPreconditionError  = api.IsPreconditionError

	WithObserver    = engine.WithObserver
	WithLogger      = engine.WithLogger
	WithClock       = engine.WithClock
	WithIDGenerator = engine.WithIDGenerator
	WithDispatcher  = engine.WithDispatcher
	WithEventStore  = engine.WithEventStore
)

// Re-export status values for convenience.

const (
	StatusNotStarted = api.WorkflowNotStarted
	StatusInProgress = api.WorkflowInProgress
	StatusPaused     = api.WorkflowPaused
	StatusCompleted  = api.WorkflowCompleted
	StatusCancelled  = api.WorkflowCancelled

	RoutingSequential = api.RoutingSequential
	RoutingParallel   = api.RoutingParallel
	RoutingMixed      = api.RoutingMixed
)

// Engine constructors.
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine(c Collaborators, opts ...Option) (Engine, error) {
	return engine.NewInMemoryEngine(c, opts...)
}

// NewSQLiteEngine returns an Engine that persists workflows and their
// history in a SQLite database.
func NewSQLiteEngine(db *sql.DB, c Collaborators, opts ...Option) (Engine, error) {
	return engine.NewSQLiteEngine(db, c, opts...)
}

// NewPostgresEngine returns an Engine that persists workflows in PostgreSQL.
func NewPostgresEngine(ctx context.Context, pool *pgxpool.Pool, c Collaborators, opts ...Option) (Engine, error) {
	return engine.NewPostgresEngine(ctx, pool, c, opts...)
}

// NewRedisEngine returns an Engine that persists workflows in Redis.
func NewRedisEngine(client *redis.Client, c Collaborators, opts ...Option) (Engine, error) {
	return engine.NewRedisEngine(client, c, opts...)
}

// NewMongoEngine returns an Engine that persists workflows in MongoDB.
func NewMongoEngine(ctx context.Context, client *mongo.Client, c Collaborators, opts ...Option) (Engine, error) {
	return engine.NewMongoEngine(ctx, client, c, opts...)
}

// ProcessScheduledWorkflows resumes every workflow whose scheduled time has
// passed. Call it from your own scheduler when not running a Runtime:
//
//	n, err := envroute.ProcessScheduledWorkflows(ctx, eng)
func ProcessScheduledWorkflows(ctx context.Context, eng Engine) (int, error) {
	return eng.ProcessScheduledWorkflows(ctx)
}
