package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
)

// txBeginner is the narrow slice of the database the orchestrator needs.
// *pgdb.DB satisfies it; tests substitute an embedded database.
type txBeginner interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)
}

// Orchestrator executes mutation plans as all-or-nothing transactions.
//
// State machine per run: Pending → Applying Schema → Backing Up →
// Mutating → Indexing → Committed, or RolledBack from any step. No
// intermediate state is visible outside the transaction boundary.
type Orchestrator struct {
	db     txBeginner
	logger *log.Logger
}

// NewOrchestrator wires an orchestrator. A nil logger defaults to stderr.
func NewOrchestrator(db txBeginner, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Orchestrator{db: db, logger: logger}
}

// Run executes the plan inside a single transaction. On any failure the
// transaction is rolled back, the table is left exactly as it was, and
// the returned TransactionError names the failing step. A plan with no
// statements is a no-op that still reports its counts.
func (o *Orchestrator) Run(ctx context.Context, plan *Plan) (Summary, error) {
	if len(plan.Statements) == 0 {
		return plan.Summary, nil
	}

	tx, err := o.db.BeginTx(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("begin transaction for %s.%s: %w", plan.Schema, plan.Table, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range plan.Statements {
		if _, err := tx.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
			return Summary{}, &TransactionError{Step: stmt.Step, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return Summary{}, &TransactionError{Step: StepCommit, Err: err}
	}
	committed = true

	o.logger.Printf("Committed %s.%s: %d inserted, %d updated, %d unchanged, %d duplicates skipped",
		plan.Schema, plan.Table, plan.Summary.Inserted, plan.Summary.Updated,
		plan.Summary.Unchanged, plan.Summary.DuplicatesSkipped)
	return plan.Summary, nil
}
