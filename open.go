package envroute

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/petrijr/envroute/internal/engine"
	"github.com/petrijr/envroute/internal/persistence"
	"github.com/petrijr/envroute/internal/sqlitex"
	"github.com/petrijr/envroute/internal/taskqueue"
	"github.com/petrijr/envroute/pkg/config"
	"github.com/petrijr/envroute/pkg/worker"
)

// Open builds a Runtime from configuration: it connects the configured store,
// sets up effect delivery and the sweeper. Options are applied after the
// configuration, so WithLogger overrides the configured logger.
//
// Open does not start background work; call Start.
func Open(ctx context.Context, cfg config.Config, c Collaborators, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("envroute: invalid config: %w", err)
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	opts = append([]Option{WithLogger(logger)}, opts...)

	parts := runtimeParts{
		workers: cfg.Effects.Workers,
		worker: worker.Config{
			MaxAttempts: cfg.Effects.MaxAttempts,
			Backoff:     cfg.Effects.Backoff,
			MaxBackoff:  cfg.Effects.MaxBackoff,
		},
	}
	if cfg.Sweeper.Enabled {
		parts.sweeper = &engine.SweeperConfig{
			Schedule: cfg.Sweeper.Schedule,
			Timeout:  cfg.Sweeper.Timeout,
		}
	}

	conns, err := openStore(ctx, cfg.Store, logger, &parts)
	if err != nil {
		closeAll(ctx, parts.closers)
		return nil, err
	}
	if parts.queue, err = openQueue(ctx, cfg, conns); err != nil {
		closeAll(ctx, parts.closers)
		return nil, err
	}

	rt, err := assemble(parts, c, opts)
	if err != nil {
		closeAll(ctx, parts.closers)
		return nil, err
	}
	logger.Info("routing runtime ready",
		slog.String("store", cfg.Store.Backend),
		slog.String("effects", cfg.Effects.Queue),
		slog.Bool("sweeper", cfg.Sweeper.Enabled),
	)
	return rt, nil
}

// storeConns are the connections a durable effect queue can share with the
// store. At most one is set.
type storeConns struct {
	sqlite *sql.DB
	pg     *pgxpool.Pool
	mongo  *mongo.Client
}

// openStore fills parts.persistence and registers closers.
func openStore(ctx context.Context, sc config.StoreConfig, logger *slog.Logger, parts *runtimeParts) (storeConns, error) {
	var none storeConns

	switch sc.Backend {
	case config.BackendMemory:
		parts.persistence = persistence.Persistence{
			Workflows: persistence.NewInMemoryStore(),
			Events:    persistence.NewInMemoryEventStore(),
		}
		return none, nil

	case config.BackendSQLite:
		db, err := sql.Open("sqlite", sqlitex.NormalizeDSN(sc.DSN))
		if err != nil {
			return none, fmt.Errorf("open sqlite: %w", err)
		}
		if sqlitex.IsMemory(sc.DSN) {
			// Each connection to :memory: is a separate database.
			db.SetMaxOpenConns(1)
		}
		parts.closers = append(parts.closers, func(context.Context) error { return db.Close() })
		wf, err := persistence.NewSQLiteStore(db)
		if err != nil {
			return none, err
		}
		ev, err := persistence.NewSQLiteEventStore(db)
		if err != nil {
			return none, err
		}
		parts.persistence = persistence.Persistence{Workflows: wf, Events: ev}
		return storeConns{sqlite: db}, nil

	case config.BackendPostgres:
		wf, err := persistence.OpenPostgresStore(ctx, sc.DSN, persistence.WithPostgresLogger(logger))
		if err != nil {
			return none, err
		}
		parts.closers = append(parts.closers, func(context.Context) error { wf.Close(); return nil })
		parts.persistence = persistence.Persistence{Workflows: wf, Events: persistence.NewInMemoryEventStore()}
		return storeConns{pg: wf.Pool()}, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
		})
		parts.closers = append(parts.closers, func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return none, fmt.Errorf("connect redis: %w", err)
		}
		parts.persistence = persistence.Persistence{
			Workflows: persistence.NewRedisStore(client, sc.Redis.Prefix),
			Events:    persistence.NewInMemoryEventStore(),
		}
		return none, nil

	case config.BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(sc.Mongo.URI))
		if err != nil {
			return none, fmt.Errorf("connect mongo: %w", err)
		}
		parts.closers = append(parts.closers, func(ctx context.Context) error { return client.Disconnect(ctx) })
		wf := persistence.NewMongoStore(client, sc.Mongo.Database, sc.Mongo.Collection)
		if err := wf.EnsureIndexes(ctx); err != nil {
			return none, err
		}
		parts.persistence = persistence.Persistence{Workflows: wf, Events: persistence.NewInMemoryEventStore()}
		return storeConns{mongo: client}, nil
	}
	return none, fmt.Errorf("unknown store backend %q", sc.Backend)
}

// openQueue returns the configured effect queue, or nil for direct delivery.
func openQueue(ctx context.Context, cfg config.Config, conns storeConns) (taskqueue.Queue, error) {
	switch cfg.Effects.Queue {
	case config.QueueMemory:
		return taskqueue.NewInMemoryQueue(1024), nil
	case config.QueueSQLite:
		q, err := taskqueue.NewSQLiteQueue(conns.sqlite)
		if err != nil {
			return nil, err
		}
		return q, nil
	case config.QueuePostgres:
		q, err := taskqueue.NewPostgresQueue(ctx, conns.pg)
		if err != nil {
			return nil, err
		}
		return q, nil
	case config.QueueMongo:
		q := taskqueue.NewMongoQueue(conns.mongo, cfg.Store.Mongo.Database, "")
		if err := q.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return q, nil
	}
	return nil, nil
}

func closeAll(ctx context.Context, closers []func(context.Context) error) {
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i](ctx)
	}
}
