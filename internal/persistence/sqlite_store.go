package persistence

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/petrijr/envroute/internal/sqlitex"
	"github.com/petrijr/envroute/pkg/api"
)

// SQLiteStore is a WorkflowStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// SQLite has a single writer, so mutations are serialized by a process-wide
// mutex and each one runs inside an IMMEDIATE transaction. Event appends and
// queue writes on the same database wait on the same lock.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// Ensure SQLiteStore implements WorkflowStore.
var _ WorkflowStore = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given
// database and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS routing_workflows (
			envelope_id TEXT PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			routing_type TEXT NOT NULL,
			current_routing_order INTEGER NOT NULL,
			auto_navigation INTEGER NOT NULL,
			scheduled_resume_at INTEGER,
			started_at INTEGER,
			completed_at INTEGER,
			cancelled_at INTEGER,
			cancel_reason TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			version INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_routing_workflows_scheduled ON routing_workflows(status, scheduled_resume_at);
		CREATE TABLE IF NOT EXISTS routing_workflow_steps (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			action TEXT NOT NULL,
			routing_order INTEGER NOT NULL,
			sequence_index INTEGER NOT NULL,
			status TEXT NOT NULL,
			triggered_at INTEGER,
			completed_at INTEGER,
			UNIQUE (workflow_id, recipient_id)
		);
	`)
	return err
}

func (s *SQLiteStore) Mutate(ctx context.Context, envelopeID string, fn MutateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sqlitex.WriteTx(ctx, s.db, func(q sqlitex.Querier) error {
		prev, err := sqliteLoad(ctx, q, envelopeID)
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
		return sqliteSave(ctx, q, next)
	})
}

func (s *SQLiteStore) Get(ctx context.Context, envelopeID string) (*api.Snapshot, error) {
	var snap *api.Snapshot
	err := sqlitex.Read(ctx, s.db, func(q sqlitex.Querier) error {
		var err error
		snap, err = sqliteLoad(ctx, q, envelopeID)
		return err
	})
	return snap, err
}

const sqliteWorkflowColumns = `envelope_id, id, status, routing_type, current_routing_order, auto_navigation,
	scheduled_resume_at, started_at, completed_at, cancelled_at, cancel_reason, created_at, updated_at, version`

func (s *SQLiteStore) List(ctx context.Context, filter WorkflowFilter) ([]*api.Workflow, error) {
	query := `SELECT ` + sqliteWorkflowColumns + ` FROM routing_workflows`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at ASC, envelope_id ASC`

	var result []*api.Workflow
	err := sqlitex.Read(ctx, s.db, func(q sqlitex.Querier) error {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			wf, err := scanSQLiteWorkflow(rows)
			if err != nil {
				return err
			}
			result = append(result, wf)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLiteStore) ListScheduled(ctx context.Context, dueBy time.Time) ([]string, error) {
	var out []string
	err := sqlitex.Read(ctx, s.db, func(q sqlitex.Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT envelope_id
			FROM routing_workflows
			WHERE status = ? AND scheduled_resume_at IS NOT NULL AND scheduled_resume_at <= ?
			ORDER BY scheduled_resume_at ASC, envelope_id ASC`,
			string(api.WorkflowPaused),
			dueBy.UnixNano(),
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			out = append(out, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteWorkflow(row rowScanner) (*api.Workflow, error) {
	var (
		wf                  api.Workflow
		status, routingType string
		autoNav             int
		createdAt           int64
		updatedAt           int64
	)
	var scheduled, started, completed, cancelled sql.NullInt64
	if err := row.Scan(
		&wf.EnvelopeID, &wf.ID, &status, &routingType, &wf.CurrentRoutingOrder, &autoNav,
		&scheduled, &started, &completed, &cancelled, &wf.CancelReason, &createdAt, &updatedAt, &wf.Version,
	); err != nil {
		return nil, err
	}
	wf.Status = api.WorkflowStatus(status)
	wf.RoutingType = api.RoutingType(routingType)
	wf.AutoNavigation = autoNav != 0
	wf.ScheduledResumeAt = timeFromNanos(scheduled)
	wf.StartedAt = timeFromNanos(started)
	wf.CompletedAt = timeFromNanos(completed)
	wf.CancelledAt = timeFromNanos(cancelled)
	wf.CreatedAt = time.Unix(0, createdAt)
	wf.UpdatedAt = time.Unix(0, updatedAt)
	return &wf, nil
}

func sqliteLoad(ctx context.Context, q sqlitex.Querier, envelopeID string) (*api.Snapshot, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sqliteWorkflowColumns+` FROM routing_workflows WHERE envelope_id = ?`, envelopeID)
	wf, err := scanSQLiteWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, workflow_id, recipient_id, action, routing_order, sequence_index, status, triggered_at, completed_at
		FROM routing_workflow_steps
		WHERE workflow_id = ?
		ORDER BY routing_order ASC, sequence_index ASC`, wf.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := &api.Snapshot{Workflow: wf}
	for rows.Next() {
		var (
			st                     api.WorkflowStep
			action, status         string
			triggered, completedAt sql.NullInt64
		)
		if err := rows.Scan(&st.ID, &st.WorkflowID, &st.RecipientID, &action, &st.RoutingOrder, &st.SequenceIndex,
			&status, &triggered, &completedAt); err != nil {
			return nil, err
		}
		st.Action = api.StepAction(action)
		st.Status = api.StepStatus(status)
		st.TriggeredAt = timeFromNanos(triggered)
		st.CompletedAt = timeFromNanos(completedAt)
		snap.Steps = append(snap.Steps, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

func sqliteSave(ctx context.Context, q sqlitex.Querier, s *api.Snapshot) error {
	wf := s.Workflow
	autoNav := 0
	if wf.AutoNavigation {
		autoNav = 1
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO routing_workflows (`+sqliteWorkflowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(envelope_id) DO UPDATE SET
			id = excluded.id,
			status = excluded.status,
			routing_type = excluded.routing_type,
			current_routing_order = excluded.current_routing_order,
			auto_navigation = excluded.auto_navigation,
			scheduled_resume_at = excluded.scheduled_resume_at,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			cancelled_at = excluded.cancelled_at,
			cancel_reason = excluded.cancel_reason,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			version = excluded.version`,
		wf.EnvelopeID,
		wf.ID,
		string(wf.Status),
		string(wf.RoutingType),
		wf.CurrentRoutingOrder,
		autoNav,
		nanosOrNil(wf.ScheduledResumeAt),
		nanosOrNil(wf.StartedAt),
		nanosOrNil(wf.CompletedAt),
		nanosOrNil(wf.CancelledAt),
		wf.CancelReason,
		wf.CreatedAt.UnixNano(),
		wf.UpdatedAt.UnixNano(),
		wf.Version,
	)
	if err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM routing_workflow_steps WHERE workflow_id = ?`, wf.ID); err != nil {
		return err
	}
	for _, st := range s.Steps {
		_, err := q.ExecContext(ctx, `
			INSERT INTO routing_workflow_steps
				(id, workflow_id, recipient_id, action, routing_order, sequence_index, status, triggered_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			st.ID,
			st.WorkflowID,
			st.RecipientID,
			string(st.Action),
			st.RoutingOrder,
			st.SequenceIndex,
			string(st.Status),
			nanosOrNil(st.TriggeredAt),
			nanosOrNil(st.CompletedAt),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func nanosOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timeFromNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64)
	return &t
}
