package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/petrijr/envroute/internal/sqlitex"
)

// SQLiteQueue is a persistent task queue implementation backed by SQLite.
// Tasks are stored gob-encoded and served in NotBefore order, then by
// insertion id.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteQueue initializes the tasks table in the given DB and returns a new queue.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		pollInterval: 20 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS routing_tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			envelope_id TEXT NOT NULL DEFAULT '',
			payload BLOB NOT NULL,
			enqueued_at INTEGER NOT NULL,
			not_before INTEGER NOT NULL,
			attempts INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_routing_tasks_due ON routing_tasks(not_before, id);
	`)
	return err
}

// Ensure SQLiteQueue implements Queue.
var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) error {
	now := time.Now()
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = now
	}
	if t.NotBefore.IsZero() {
		t.NotBefore = t.EnqueuedAt
	}

	payload, err := EncodeTask(t)
	if err != nil {
		return err
	}

	return sqlitex.WriteTx(ctx, q.db, func(tx sqlitex.Querier) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO routing_tasks (type, envelope_id, payload, enqueued_at, not_before, attempts)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(t.Type),
			t.Effect.EnvelopeID,
			payload,
			t.EnqueuedAt.UnixNano(),
			t.NotBefore.UnixNano(),
			t.Attempts,
		)
		return err
	})
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		task, err := q.claim(ctx, time.Now())
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}

		// Nothing available: sleep a bit and retry.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// claim selects and deletes the next due row in one transaction.
func (q *SQLiteQueue) claim(ctx context.Context, now time.Time) (*Task, error) {
	// Idle polls stay off the write lock.
	var due int
	err := sqlitex.Read(ctx, q.db, func(tx sqlitex.Querier) error {
		return tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM routing_tasks WHERE not_before <= ?)`, now.UnixNano()).Scan(&due)
	})
	if err != nil || due == 0 {
		return nil, err
	}

	var payload []byte
	err = sqlitex.WriteTx(ctx, q.db, func(tx sqlitex.Querier) error {
		var id int64
		row := tx.QueryRowContext(ctx, `
			SELECT id, payload
			FROM routing_tasks
			WHERE not_before <= ?
			ORDER BY not_before, id
			LIMIT 1`, now.UnixNano())
		if err := row.Scan(&id, &payload); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				payload = nil
				return nil
			}
			return err
		}

		// Delete the row we just claimed.
		_, err := tx.ExecContext(ctx, `DELETE FROM routing_tasks WHERE id = ?`, id)
		return err
	})
	if err != nil || payload == nil {
		return nil, err
	}
	return DecodeTask(payload)
}

func (q *SQLiteQueue) Len() int {
	var n int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM routing_tasks`).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}
