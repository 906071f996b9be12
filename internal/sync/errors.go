package sync

import (
	"fmt"
	"strings"

	"github.com/dbfriend/dbfriend/internal/geom"
)

// Transaction step names, used to label a TransactionError with the step
// that failed.
const (
	StepSchema = "applying schema"
	StepBackup = "backing up"
	StepMutate = "mutating rows"
	StepIndex  = "indexing"
	StepCommit = "committing"
)

// SchemaConflictError reports an existing column whose type cannot hold
// the incoming data. The reconciler never retypes columns, so this skips
// the table.
type SchemaConflictError struct {
	Schema       string
	Table        string
	Column       string
	ExistingType string
	Incoming     geom.Kind
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("schema conflict on %s.%s: column %q is %s, incoming data is %s",
		e.Schema, e.Table, e.Column, e.ExistingType, e.Incoming)
}

// AmbiguousMatchError reports duplicate join keys when the duplicate
// policy is AbortTable. Under the default FirstWins policy the same
// situation is a warning carried on the Classification instead.
type AmbiguousMatchError struct {
	Table string
	Keys  []string
}

func (e *AmbiguousMatchError) Error() string {
	keys := e.Keys
	if len(keys) > 5 {
		keys = keys[:5]
	}
	return fmt.Sprintf("ambiguous join keys on %s: %s", e.Table, strings.Join(keys, ", "))
}

// TransactionError wraps a failure inside the mutation transaction. The
// transaction has been rolled back by the time the caller sees it; the
// table is unchanged.
type TransactionError struct {
	Step string
	Err  error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction failed while %s: %v", e.Step, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }
