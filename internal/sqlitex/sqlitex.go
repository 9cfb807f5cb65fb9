// Package sqlitex holds the SQLite write path shared by the workflow store,
// the event store and the task queue.
//
// A deferred transaction that reads before it writes gets SQLITE_BUSY once
// another connection has written, without waiting on the busy timeout.
// Writers here take the lock up front with BEGIN IMMEDIATE.
package sqlitex

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// BusyTimeout is how long a writer waits for the lock before giving up.
const BusyTimeout = 5 * time.Second

// Querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WriteTx runs fn inside BEGIN IMMEDIATE ... COMMIT on one pooled
// connection. fn's error rolls the transaction back and is returned as is.
func WriteTx(ctx context.Context, db *sql.DB, fn func(q Querier) error) error {
	conn, err := waitingConn(ctx, db)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("sqlite begin immediate: %w", err)
	}

	// COMMIT and ROLLBACK must run even when ctx is done, or the connection
	// goes back to the pool inside an open transaction.
	finish := context.WithoutCancel(ctx)
	if err := fn(conn); err != nil {
		rollback(finish, conn)
		return err
	}
	if _, err := conn.ExecContext(finish, "COMMIT"); err != nil {
		rollback(finish, conn)
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

// Read runs fn on one pooled connection that waits out a committing writer
// instead of failing.
func Read(ctx context.Context, db *sql.DB, fn func(q Querier) error) error {
	conn, err := waitingConn(ctx, db)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func waitingConn(ctx context.Context, db *sql.DB) (*sql.Conn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	pragma := fmt.Sprintf("PRAGMA busy_timeout = %d", BusyTimeout.Milliseconds())
	if _, err := conn.ExecContext(ctx, pragma); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqlite busy_timeout: %w", err)
	}
	return conn, nil
}

func rollback(ctx context.Context, conn *sql.Conn) {
	if _, err := conn.ExecContext(ctx, "ROLLBACK"); err != nil {
		// Unknown transaction state: have the pool discard the connection.
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
}

// NormalizeDSN adds a busy timeout, and WAL journaling for file databases,
// to a modernc.org/sqlite DSN unless the caller already chose them.
func NormalizeDSN(dsn string) string {
	var add []string
	if !strings.Contains(dsn, "busy_timeout") {
		add = append(add, fmt.Sprintf("_pragma=busy_timeout(%d)", BusyTimeout.Milliseconds()))
	}
	if !IsMemory(dsn) && !strings.Contains(dsn, "journal_mode") {
		add = append(add, "_pragma=journal_mode(WAL)")
	}
	if len(add) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(add, "&")
}

// IsMemory reports whether dsn names an in-memory database.
func IsMemory(dsn string) bool {
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
