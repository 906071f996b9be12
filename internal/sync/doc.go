// Package sync implements the reconciliation engine that keeps PostGIS
// tables in step with incoming vector files.
//
// Overview
//
// For each file the load driver runs the same pipeline:
//
//	Vector file (internal/gio)
//	     ↓
//	Dataset (internal/geom)
//	     ↓  rename geometry column, reproject if the table disagrees
//	Schema Reconciler   → additive column changes only
//	     ↓
//	Feature Classifier  → {new, updated, identical, duplicate}
//	     ↓
//	Plan builder        → ordered SQL statements with bound parameters
//	     ↓
//	Transaction Orchestrator
//	     ├── apply schema delta
//	     ├── backup table copy (<table>_backup_<n>, max 3, FIFO)
//	     ├── inserts, then updates
//	     ├── spatial index refresh
//	     └── COMMIT — or ROLLBACK leaving the table untouched
//
// Classification is pure computation over hashes: no statement touches the
// database until the full mutation plan exists, and the plan runs inside a
// single transaction. Postgres DDL is transactional, so the backup copy,
// the schema change and the row mutations commit or vanish together.
//
// Error Handling
//
// A failure in one table never aborts the run: the load driver records a
// FileFailure and moves on to the next file. Within one table, any failing
// step rolls the whole transaction back and the error names the step.
// Nothing is retried; a transient database error against a half-applied
// plan is surfaced immediately.
package sync
