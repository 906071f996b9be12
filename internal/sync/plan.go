package sync

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb/encoding/wkb"

	"github.com/dbfriend/dbfriend/internal/geom"
	"github.com/dbfriend/dbfriend/internal/pgdb"
)

// Statement is one step of a mutation plan: SQL with sanitized identifiers
// interpolated and every value bound as a parameter.
type Statement struct {
	Step string
	SQL  string
	Args []any
}

// Plan is the complete, ordered mutation plan for one table. Building it
// touches no database; executing it is the orchestrator's job.
type Plan struct {
	Schema     string
	Table      string
	Statements []Statement
	Summary    Summary
}

// PlanInput gathers everything the plan builder needs.
type PlanInput struct {
	Schema  string
	Table   string
	Dataset *geom.Dataset
	Delta   *SchemaDelta
	Class   *Classification

	// Backup requests a pre-mutation copy; BackupRecords is the current
	// retention state read from the metadata table.
	Backup        bool
	BackupRecords []BackupRecord

	// IDColumn identifies rows in UPDATE statements; empty means ctid.
	IDColumn string

	// ExistingColumns maps the target table's column names to their types,
	// nil when the table is being created. Statement identifiers use the
	// table's casing, since Reconcile matches columns case-insensitively.
	ExistingColumns map[string]string

	SRID    int
	Exclude map[string]bool
}

// BuildPlan assembles the ordered statement list: schema delta, backup,
// inserts, updates, spatial index. A plan with no mutations has no
// statements at all and commits nothing.
func BuildPlan(in PlanInput) (*Plan, error) {
	plan := &Plan{
		Schema: in.Schema,
		Table:  in.Table,
		Summary: Summary{
			TableName:         in.Table,
			Inserted:          len(in.Class.New),
			Updated:           len(in.Class.Updated),
			Unchanged:         len(in.Class.Identical),
			DuplicatesSkipped: len(in.Class.Duplicates),
		},
	}

	mutating := len(in.Class.New) > 0 || len(in.Class.Updated) > 0

	if !in.Delta.Empty() {
		ddl, err := in.Delta.Statements(in.Schema, in.Table)
		if err != nil {
			return nil, err
		}
		for _, s := range ddl {
			plan.Statements = append(plan.Statements, Statement{Step: StepSchema, SQL: s})
		}
	}

	if in.Backup && mutating {
		stmts, err := buildBackupStatements(in.Schema, in.Table, in.BackupRecords)
		if err != nil {
			return nil, err
		}
		plan.Statements = append(plan.Statements, stmts...)
		plan.Summary.BackupCreated = true
	}

	inserts, err := buildInsertStatements(in)
	if err != nil {
		return nil, err
	}
	plan.Statements = append(plan.Statements, inserts...)

	updates, err := buildUpdateStatements(in)
	if err != nil {
		return nil, err
	}
	plan.Statements = append(plan.Statements, updates...)

	if mutating || in.Delta.CreateTable {
		idx, err := pgdb.SpatialIndexSQL(in.Schema, in.Table, in.Dataset.GeometryColumn)
		if err != nil {
			return nil, err
		}
		plan.Statements = append(plan.Statements, Statement{Step: StepIndex, SQL: idx})
	}

	return plan, nil
}

// mutableColumns returns the dataset attribute columns that statements
// write. The hash column is always computed fresh and appended separately,
// so a dataset attribute by that name is dropped; a gid attribute is
// dropped when the table is being created, where gid is database-assigned.
func mutableColumns(in PlanInput) []geom.Column {
	cols := in.Dataset.Columns()
	kept := make([]geom.Column, 0, len(cols))
	for _, c := range cols {
		if strings.EqualFold(c.Name, HashColumn) {
			continue
		}
		if in.Delta.CreateTable && strings.EqualFold(c.Name, "gid") {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// tableColumnName maps a dataset column name to the table's casing of it.
// A column the table does not carry yet keeps the dataset's casing, which
// is also what the ADD COLUMN delta declared.
func tableColumnName(name string, existing map[string]string) string {
	if existing == nil {
		return name
	}
	if _, ok := existing[name]; ok {
		return name
	}
	for e := range existing {
		if strings.EqualFold(e, name) {
			return e
		}
	}
	return name
}

func buildInsertStatements(in PlanInput) ([]Statement, error) {
	if len(in.Class.New) == 0 {
		return nil, nil
	}
	qualified, err := pgdb.QuoteQualified(in.Schema, in.Table)
	if err != nil {
		return nil, err
	}

	attrCols := mutableColumns(in)
	cols := []string{in.Dataset.GeometryColumn}
	for _, c := range attrCols {
		cols = append(cols, tableColumnName(c.Name, in.ExistingColumns))
	}
	cols = append(cols, HashColumn)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		if quoted[i], err = pgdb.Quote(c); err != nil {
			return nil, err
		}
	}

	// Geometry arrives as WKB bytes with the SRID bound separately, the
	// attributes and hash as plain parameters after it.
	placeholders := make([]string, len(cols))
	placeholders[0] = "ST_GeomFromWKB($1, $2)"
	for i := 1; i < len(cols); i++ {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualified, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	stmts := make([]Statement, 0, len(in.Class.New))
	for _, fi := range in.Class.New {
		f := &in.Dataset.Features[fi]
		payload, err := wkb.Marshal(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("encode geometry of feature %d: %w", fi, err)
		}
		args := []any{payload, in.SRID}
		for _, c := range attrCols {
			args = append(args, f.Attr(c.Name).SQLValue())
		}
		args = append(args, f.HashExcluding(in.Exclude))
		stmts = append(stmts, Statement{Step: StepMutate, SQL: insertSQL, Args: args})
	}
	return stmts, nil
}

func buildUpdateStatements(in PlanInput) ([]Statement, error) {
	if len(in.Class.Updated) == 0 {
		return nil, nil
	}
	qualified, err := pgdb.QuoteQualified(in.Schema, in.Table)
	if err != nil {
		return nil, err
	}
	qGeom, err := pgdb.Quote(in.Dataset.GeometryColumn)
	if err != nil {
		return nil, err
	}
	qHash, err := pgdb.Quote(HashColumn)
	if err != nil {
		return nil, err
	}

	attrCols := mutableColumns(in)
	sets := []string{fmt.Sprintf("%s = ST_GeomFromWKB($1, $2)", qGeom)}
	next := 3
	for _, c := range attrCols {
		qc, err := pgdb.Quote(tableColumnName(c.Name, in.ExistingColumns))
		if err != nil {
			return nil, err
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", qc, next))
		next++
	}
	sets = append(sets, fmt.Sprintf("%s = $%d", qHash, next))
	next++

	var where string
	if in.IDColumn == "" {
		// No usable key column: address the row by its ctid, stable for
		// the duration of the transaction under the single-writer model.
		where = fmt.Sprintf("ctid = $%d::tid", next)
	} else {
		qid, err := pgdb.Quote(in.IDColumn)
		if err != nil {
			return nil, err
		}
		where = fmt.Sprintf("%s::text = $%d", qid, next)
	}
	updateSQL := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		qualified, strings.Join(sets, ", "), where)

	stmts := make([]Statement, 0, len(in.Class.Updated))
	for _, u := range in.Class.Updated {
		f := &in.Dataset.Features[u.Feature]
		payload, err := wkb.Marshal(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("encode geometry of feature %d: %w", u.Feature, err)
		}
		args := []any{payload, in.SRID}
		for _, c := range attrCols {
			args = append(args, f.Attr(c.Name).SQLValue())
		}
		args = append(args, f.HashExcluding(in.Exclude), u.RowID)
		stmts = append(stmts, Statement{Step: StepMutate, SQL: updateSQL, Args: args})
	}
	return stmts, nil
}
