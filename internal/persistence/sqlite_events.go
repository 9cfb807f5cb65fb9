package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/petrijr/envroute/internal/sqlitex"
	"github.com/petrijr/envroute/pkg/api"
)

// SQLiteEventStore stores workflow events in SQLite.
type SQLiteEventStore struct {
	db *sql.DB
}

// Ensure SQLiteEventStore implements the interfaces.
var _ EventStore = (*SQLiteEventStore)(nil)

func NewSQLiteEventStore(db *sql.DB) (*SQLiteEventStore, error) {
	s := &SQLiteEventStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEventStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS routing_workflow_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			envelope_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			step_id TEXT NOT NULL DEFAULT '',
			recipient_id TEXT NOT NULL DEFAULT '',
			routing_order INTEGER NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_routing_workflow_events_envelope ON routing_workflow_events(envelope_id, id);
	`)
	return err
}

func (s *SQLiteEventStore) AppendEvent(ctx context.Context, ev api.WorkflowEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return sqlitex.WriteTx(ctx, s.db, func(q sqlitex.Querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO routing_workflow_events (envelope_id, workflow_id, at, type, step_id, recipient_id, routing_order, detail)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.EnvelopeID,
			ev.WorkflowID,
			at.UnixNano(),
			string(ev.Type),
			ev.StepID,
			ev.RecipientID,
			ev.RoutingOrder,
			ev.Detail,
		)
		return err
	})
}

func (s *SQLiteEventStore) ListEvents(ctx context.Context, envelopeID string) ([]api.WorkflowEvent, error) {
	var out []api.WorkflowEvent
	err := sqlitex.Read(ctx, s.db, func(q sqlitex.Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT envelope_id, workflow_id, at, type, step_id, recipient_id, routing_order, detail
			FROM routing_workflow_events
			WHERE envelope_id = ?
			ORDER BY id ASC`, envelopeID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				ev  api.WorkflowEvent
				atN int64
				typ string
			)
			if err := rows.Scan(&ev.EnvelopeID, &ev.WorkflowID, &atN, &typ, &ev.StepID, &ev.RecipientID, &ev.RoutingOrder, &ev.Detail); err != nil {
				return err
			}
			ev.At = time.Unix(0, atN)
			ev.Type = api.EventType(typ)
			out = append(out, ev)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
