package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresQueue is a durable Queue on a PostgreSQL table. Concurrent
// workers claim rows with SELECT ... FOR UPDATE SKIP LOCKED, so several
// processes may share one queue.
type PostgresQueue struct {
	pool         *pgxpool.Pool
	pollInterval time.Duration
}

var _ Queue = (*PostgresQueue)(nil)

// NewPostgresQueue creates the routing_tasks table if needed. The caller
// owns the pool.
func NewPostgresQueue(ctx context.Context, pool *pgxpool.Pool) (*PostgresQueue, error) {
	q := &PostgresQueue{pool: pool, pollInterval: 100 * time.Millisecond}
	if err := q.initSchema(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *PostgresQueue) initSchema(ctx context.Context) error {
	_, err := q.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS routing_tasks (
			id          TEXT PRIMARY KEY,
			type        TEXT NOT NULL,
			envelope_id TEXT NOT NULL DEFAULT '',
			payload     BYTEA NOT NULL,
			enqueued_at TIMESTAMPTZ NOT NULL,
			not_before  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_routing_tasks_due ON routing_tasks(not_before);
	`)
	if err != nil {
		return fmt.Errorf("taskqueue/postgres: init schema: %w", err)
	}
	return nil
}

// Enqueue inserts t. Re-enqueueing a task ID that is still queued replaces
// the queued copy, which is how retries carry their new NotBefore.
func (q *PostgresQueue) Enqueue(ctx context.Context, t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	if t.NotBefore.IsZero() {
		t.NotBefore = t.EnqueuedAt
	}
	payload, err := EncodeTask(t)
	if err != nil {
		return err
	}
	_, err = q.pool.Exec(ctx, `
		INSERT INTO routing_tasks (id, type, envelope_id, payload, enqueued_at, not_before)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET payload = EXCLUDED.payload, not_before = EXCLUDED.not_before`,
		t.ID, string(t.Type), t.Effect.EnvelopeID, payload, t.EnqueuedAt.UTC(), t.NotBefore.UTC(),
	)
	return err
}

// Dequeue polls until a due task is claimed or ctx is cancelled.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*Task, error) {
	tmr := time.NewTimer(0)
	if !tmr.Stop() {
		select {
		case <-tmr.C:
		default:
		}
	}
	defer tmr.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		task, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}

		tmr.Reset(q.pollInterval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tmr.C:
		}
	}
}

func (q *PostgresQueue) claim(ctx context.Context) (*Task, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		id      string
		payload []byte
	)
	err = tx.QueryRow(ctx, `
		SELECT id, payload
		FROM routing_tasks
		WHERE not_before <= now()
		ORDER BY not_before, enqueued_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1`).Scan(&id, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM routing_tasks WHERE id = $1`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	task, err := DecodeTask(payload)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", id, err)
	}
	return task, nil
}

// Len counts queued tasks, due or not. It returns 0 if the count fails.
func (q *PostgresQueue) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var n int
	if err := q.pool.QueryRow(ctx, `SELECT COUNT(*) FROM routing_tasks`).Scan(&n); err != nil {
		return 0
	}
	return n
}
