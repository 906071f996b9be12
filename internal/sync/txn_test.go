package sync

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// sqliteDB adapts an embedded database to the orchestrator's transaction
// interface so the commit and rollback paths run against a real engine.
type sqliteDB struct {
	db *sql.DB
}

func (s *sqliteDB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

func openTestDB(t *testing.T) *sqliteDB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orch.db")
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &sqliteDB{db: db}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func countRows(t *testing.T, db *sqliteDB, table string) int {
	t.Helper()
	var n int
	if err := db.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count rows in %s: %v", table, err)
	}
	return n
}

func TestOrchestrator_CommitsPlan(t *testing.T) {
	db := openTestDB(t)
	orch := NewOrchestrator(db, quietLogger())

	plan := &Plan{
		Schema: "main",
		Table:  "cities",
		Statements: []Statement{
			{Step: StepSchema, SQL: `CREATE TABLE cities (name TEXT, pop INTEGER)`},
			{Step: StepMutate, SQL: `INSERT INTO cities (name, pop) VALUES ($1, $2)`, Args: []any{"oslo", 700000}},
			{Step: StepMutate, SQL: `INSERT INTO cities (name, pop) VALUES ($1, $2)`, Args: []any{"bergen", 290000}},
		},
		Summary: Summary{TableName: "cities", Inserted: 2},
	}

	sum, err := orch.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.Inserted != 2 {
		t.Errorf("Inserted = %d, want 2", sum.Inserted)
	}
	if got := countRows(t, db, "cities"); got != 2 {
		t.Errorf("committed %d rows, want 2", got)
	}
}

func TestOrchestrator_RollsBackOnFailure(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.db.Exec(`CREATE TABLE cities (name TEXT)`); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := db.db.Exec(`INSERT INTO cities (name) VALUES ('oslo')`); err != nil {
		t.Fatalf("setup: %v", err)
	}

	orch := NewOrchestrator(db, quietLogger())
	plan := &Plan{
		Schema: "main",
		Table:  "cities",
		Statements: []Statement{
			{Step: StepMutate, SQL: `INSERT INTO cities (name) VALUES ($1)`, Args: []any{"bergen"}},
			{Step: StepIndex, SQL: `CREATE INDEX bad_idx ON no_such_table (name)`},
		},
	}

	_, err := orch.Run(context.Background(), plan)
	if err == nil {
		t.Fatalf("Run succeeded despite a failing statement")
	}
	var txErr *TransactionError
	if !errors.As(err, &txErr) {
		t.Fatalf("error is %T, want *TransactionError", err)
	}
	if txErr.Step != StepIndex {
		t.Errorf("failing step = %q, want %q", txErr.Step, StepIndex)
	}
	if got := countRows(t, db, "cities"); got != 1 {
		t.Errorf("table has %d rows after rollback, want the original 1", got)
	}
}

func TestOrchestrator_EmptyPlanIsNoOp(t *testing.T) {
	// A plan with no statements must not even open a transaction.
	orch := NewOrchestrator(nil, quietLogger())
	plan := &Plan{
		Schema:  "public",
		Table:   "cities",
		Summary: Summary{TableName: "cities", Unchanged: 4},
	}
	sum, err := orch.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.Unchanged != 4 {
		t.Errorf("Unchanged = %d, want 4", sum.Unchanged)
	}
}
