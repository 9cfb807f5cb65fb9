package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petrijr/envroute/pkg/api"
)

// PostgresStore is a WorkflowStore backed by PostgreSQL through a pgx
// connection pool.
//
// Every mutation runs in a transaction that first takes a transaction-scoped
// advisory lock on the envelope ID, so concurrent mutations of one envelope
// are serialized across processes.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Ensure PostgresStore implements WorkflowStore.
var _ WorkflowStore = (*PostgresStore)(nil)

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresLogger sets the logger for the store.
func WithPostgresLogger(l *slog.Logger) PostgresOption {
	return func(s *PostgresStore) {
		s.logger = l
	}
}

// OpenPostgresStore parses dsn, opens a pool and migrates the schema.
func OpenPostgresStore(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence/postgres: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("persistence/postgres: create pool: %w", err)
	}
	s, err := NewPostgresStore(ctx, pool, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore initializes the required schema using the given pool
// and returns a new PostgresStore. The caller owns the pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Pool exposes the underlying pool, for callers that share it.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS routing_workflows (
			envelope_id TEXT PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			routing_type TEXT NOT NULL,
			current_routing_order INTEGER NOT NULL,
			auto_navigation BOOLEAN NOT NULL,
			scheduled_resume_at TIMESTAMPTZ,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			cancelled_at TIMESTAMPTZ,
			cancel_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			version BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_routing_workflows_scheduled
			ON routing_workflows (scheduled_resume_at)
			WHERE status = 'paused' AND scheduled_resume_at IS NOT NULL;
		CREATE TABLE IF NOT EXISTS routing_workflow_steps (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			action TEXT NOT NULL,
			routing_order INTEGER NOT NULL,
			sequence_index INTEGER NOT NULL,
			status TEXT NOT NULL,
			triggered_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			UNIQUE (workflow_id, recipient_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("persistence/postgres: migrate: %w", err)
	}
	return nil
}

// pgQueryer is satisfied by *pgxpool.Pool and pgx.Tx.
type pgQueryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) Mutate(ctx context.Context, envelopeID string, fn MutateFunc) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", slog.String("envelope_id", envelopeID), slog.String("error", rbErr.Error()))
		}
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, envelopeID); err != nil {
		return fmt.Errorf("persistence/postgres: lock %s: %w", envelopeID, err)
	}

	prev, err := pgLoad(ctx, tx, envelopeID)
	if err != nil && !errors.Is(err, ErrWorkflowNotFound) {
		return err
	}

	next, err := fn(prev.Clone())
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	if err := prepareNext(next, prev); err != nil {
		return err
	}
	if err := pgSave(ctx, tx, next); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, envelopeID string) (*api.Snapshot, error) {
	return pgLoad(ctx, s.pool, envelopeID)
}

const pgWorkflowColumns = `envelope_id, id, status, routing_type, current_routing_order, auto_navigation,
	scheduled_resume_at, started_at, completed_at, cancelled_at, cancel_reason, created_at, updated_at, version`

func (s *PostgresStore) List(ctx context.Context, filter WorkflowFilter) ([]*api.Workflow, error) {
	query := `SELECT ` + pgWorkflowColumns + ` FROM routing_workflows`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at ASC, envelope_id ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*api.Workflow
	for rows.Next() {
		wf, err := scanPgWorkflow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, wf)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListScheduled(ctx context.Context, dueBy time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT envelope_id
		FROM routing_workflows
		WHERE status = $1 AND scheduled_resume_at IS NOT NULL AND scheduled_resume_at <= $2
		ORDER BY scheduled_resume_at ASC, envelope_id ASC`,
		string(api.WorkflowPaused), dueBy,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanPgWorkflow(row pgx.Row) (*api.Workflow, error) {
	var (
		wf                  api.Workflow
		status, routingType string
	)
	if err := row.Scan(
		&wf.EnvelopeID, &wf.ID, &status, &routingType, &wf.CurrentRoutingOrder, &wf.AutoNavigation,
		&wf.ScheduledResumeAt, &wf.StartedAt, &wf.CompletedAt, &wf.CancelledAt, &wf.CancelReason,
		&wf.CreatedAt, &wf.UpdatedAt, &wf.Version,
	); err != nil {
		return nil, err
	}
	wf.Status = api.WorkflowStatus(status)
	wf.RoutingType = api.RoutingType(routingType)
	return &wf, nil
}

func pgLoad(ctx context.Context, q pgQueryer, envelopeID string) (*api.Snapshot, error) {
	wf, err := scanPgWorkflow(q.QueryRow(ctx,
		`SELECT `+pgWorkflowColumns+` FROM routing_workflows WHERE envelope_id = $1`, envelopeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, workflow_id, recipient_id, action, routing_order, sequence_index, status, triggered_at, completed_at
		FROM routing_workflow_steps
		WHERE workflow_id = $1
		ORDER BY routing_order ASC, sequence_index ASC`, wf.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := &api.Snapshot{Workflow: wf}
	for rows.Next() {
		var (
			st             api.WorkflowStep
			action, status string
		)
		if err := rows.Scan(&st.ID, &st.WorkflowID, &st.RecipientID, &action, &st.RoutingOrder, &st.SequenceIndex,
			&status, &st.TriggeredAt, &st.CompletedAt); err != nil {
			return nil, err
		}
		st.Action = api.StepAction(action)
		st.Status = api.StepStatus(status)
		snap.Steps = append(snap.Steps, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

func pgSave(ctx context.Context, tx pgx.Tx, s *api.Snapshot) error {
	wf := s.Workflow
	_, err := tx.Exec(ctx, `
		INSERT INTO routing_workflows (`+pgWorkflowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (envelope_id) DO UPDATE SET
			id = EXCLUDED.id,
			status = EXCLUDED.status,
			routing_type = EXCLUDED.routing_type,
			current_routing_order = EXCLUDED.current_routing_order,
			auto_navigation = EXCLUDED.auto_navigation,
			scheduled_resume_at = EXCLUDED.scheduled_resume_at,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			cancelled_at = EXCLUDED.cancelled_at,
			cancel_reason = EXCLUDED.cancel_reason,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			version = EXCLUDED.version`,
		wf.EnvelopeID, wf.ID, string(wf.Status), string(wf.RoutingType), wf.CurrentRoutingOrder, wf.AutoNavigation,
		wf.ScheduledResumeAt, wf.StartedAt, wf.CompletedAt, wf.CancelledAt, wf.CancelReason,
		wf.CreatedAt, wf.UpdatedAt, wf.Version,
	)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM routing_workflow_steps WHERE workflow_id = $1`, wf.ID)
	for _, st := range s.Steps {
		batch.Queue(`
			INSERT INTO routing_workflow_steps
				(id, workflow_id, recipient_id, action, routing_order, sequence_index, status, triggered_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			st.ID, st.WorkflowID, st.RecipientID, string(st.Action), st.RoutingOrder, st.SequenceIndex,
			string(st.Status), st.TriggeredAt, st.CompletedAt,
		)
	}
	return tx.SendBatch(ctx, batch).Close()
}
