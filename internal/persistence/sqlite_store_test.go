package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/petrijr/envroute/pkg/api"
)

func openTestSQLite(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	// Every connection to :memory: is its own database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) WorkflowStore {
		store, err := NewSQLiteStore(openTestSQLite(t))
		if err != nil {
			t.Fatalf("NewSQLiteStore failed: %v", err)
		}
		return store
	})
}

func openFileSQLite(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteStore_FileContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) WorkflowStore {
		store, err := NewSQLiteStore(openFileSQLite(t))
		if err != nil {
			t.Fatalf("NewSQLiteStore failed: %v", err)
		}
		return store
	})
}

// Event appends use other pool connections; mutations must wait for them
// rather than fail.
func TestSQLiteStore_MutateAlongsideEventAppends(t *testing.T) {
	db := openFileSQLite(t)
	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	events, err := NewSQLiteEventStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteEventStore failed: %v", err)
	}
	ctx := context.Background()
	put(t, store, sampleSnapshot("env-mix", api.WorkflowInProgress))

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- store.Mutate(ctx, "env-mix", func(cur *api.Snapshot) (*api.Snapshot, error) {
				cur.Workflow.CurrentRoutingOrder++
				return cur, nil
			})
		}()
		go func() {
			defer wg.Done()
			errs <- events.AppendEvent(ctx, api.WorkflowEvent{EnvelopeID: "env-mix", WorkflowID: "wf-env-mix", Type: api.EventStepCompleted})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent write failed: %v", err)
		}
	}

	got, err := store.Get(ctx, "env-mix")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Workflow.CurrentRoutingOrder != 1+n {
		t.Fatalf("lost update: order %d, want %d", got.Workflow.CurrentRoutingOrder, 1+n)
	}
	history, err := events.ListEvents(ctx, "env-mix")
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(history) != n {
		t.Fatalf("expected %d events, got %d", n, len(history))
	}
}

func TestSQLiteStore_SchemaIsIdempotent(t *testing.T) {
	db := openTestSQLite(t)
	if _, err := NewSQLiteStore(db); err != nil {
		t.Fatalf("first NewSQLiteStore failed: %v", err)
	}
	if _, err := NewSQLiteStore(db); err != nil {
		t.Fatalf("second NewSQLiteStore failed: %v", err)
	}
}
