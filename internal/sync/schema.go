package sync

import (
	"fmt"
	"strings"

	"github.com/dbfriend/dbfriend/internal/geom"
	"github.com/dbfriend/dbfriend/internal/pgdb"
)

// ColumnDef is one column to add, with its SQL type.
type ColumnDef struct {
	Name    string
	SQLType string
}

// SchemaDelta is the additive schema change needed before data load:
// either the full definition of a table that does not exist yet, or the
// columns missing from one that does. Existing columns are never dropped
// or retyped.
type SchemaDelta struct {
	CreateTable    bool
	GeometryColumn string
	SRID           int
	AddColumns     []ColumnDef
}

// Empty reports whether the delta requires no DDL at all.
func (d *SchemaDelta) Empty() bool {
	return !d.CreateTable && len(d.AddColumns) == 0
}

// SQLType maps an inferred attribute kind to the column type it is stored
// as. Null-only columns degrade to TEXT since their type is unknowable.
func SQLType(k geom.Kind) string {
	switch k {
	case geom.KindInt:
		return "BIGINT"
	case geom.KindFloat:
		return "DOUBLE PRECISION"
	case geom.KindBool:
		return "BOOLEAN"
	case geom.KindTime:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// compatibleTypes lists, per attribute kind, the existing column types the
// kind can be loaded into without retyping. Anything else is a schema
// conflict.
var compatibleTypes = map[geom.Kind][]string{
	geom.KindString: {"text", "character varying", "character"},
	geom.KindInt:    {"bigint", "integer", "smallint", "numeric", "double precision", "real"},
	geom.KindFloat:  {"double precision", "numeric", "real"},
	geom.KindBool:   {"boolean"},
	geom.KindTime:   {"timestamp with time zone", "timestamp without time zone", "date"},
}

func kindFitsType(k geom.Kind, existingType string) bool {
	if k == geom.KindNull {
		return true
	}
	for _, t := range compatibleTypes[k] {
		if existingType == t {
			return true
		}
	}
	return false
}

// Reconcile computes the additive schema delta for loading the dataset
// into schema.table. existingColumns is nil when the table does not exist,
// which yields a create-table delta; otherwise it maps column names to
// their lowercased types as returned by pgdb.ListColumns.
//
// Column matching is case-insensitive: a dataset column differing from an
// existing one only by case is the same column, never a new one.
func Reconcile(d *geom.Dataset, schema, table string, existingColumns map[string]string, srid int) (*SchemaDelta, error) {
	delta := &SchemaDelta{
		GeometryColumn: d.GeometryColumn,
		SRID:           srid,
	}

	if existingColumns == nil {
		delta.CreateTable = true
		for _, col := range d.Columns() {
			// The created table injects its own gid key and hash column;
			// a dataset column by either name would be declared twice.
			if strings.EqualFold(col.Name, "gid") || strings.EqualFold(col.Name, HashColumn) {
				continue
			}
			if _, err := pgdb.Quote(col.Name); err != nil {
				return nil, err
			}
			delta.AddColumns = append(delta.AddColumns, ColumnDef{
				Name:    col.Name,
				SQLType: SQLType(col.Kind),
			})
		}
		return delta, nil
	}

	lower := make(map[string]string, len(existingColumns))
	for name, typ := range existingColumns {
		lower[strings.ToLower(name)] = typ
	}

	for _, col := range d.Columns() {
		existingType, ok := lower[strings.ToLower(col.Name)]
		if !ok {
			if _, err := pgdb.Quote(col.Name); err != nil {
				return nil, err
			}
			delta.AddColumns = append(delta.AddColumns, ColumnDef{
				Name:    col.Name,
				SQLType: SQLType(col.Kind),
			})
			continue
		}
		if !kindFitsType(col.Kind, existingType) {
			return nil, &SchemaConflictError{
				Schema:       schema,
				Table:        table,
				Column:       col.Name,
				ExistingType: existingType,
				Incoming:     col.Kind,
			}
		}
	}

	if _, ok := lower[HashColumn]; !ok {
		delta.AddColumns = append(delta.AddColumns, ColumnDef{Name: HashColumn, SQLType: "TEXT"})
	}
	return delta, nil
}

// Statements renders the delta as DDL. Identifiers are sanitized here,
// immediately before interpolation; values never appear in DDL text.
func (d *SchemaDelta) Statements(schema, table string) ([]string, error) {
	if d.Empty() {
		return nil, nil
	}
	qualified, err := pgdb.QuoteQualified(schema, table)
	if err != nil {
		return nil, err
	}

	if d.CreateTable {
		qg, err := pgdb.Quote(d.GeometryColumn)
		if err != nil {
			return nil, err
		}
		cols := []string{
			`"gid" BIGSERIAL PRIMARY KEY`,
			fmt.Sprintf("%s geometry(Geometry, %d)", qg, d.SRID),
		}
		for _, c := range d.AddColumns {
			qc, err := pgdb.Quote(c.Name)
			if err != nil {
				return nil, err
			}
			cols = append(cols, qc+" "+c.SQLType)
		}
		qh, err := pgdb.Quote(HashColumn)
		if err != nil {
			return nil, err
		}
		cols = append(cols, qh+" TEXT")
		return []string{
			fmt.Sprintf("CREATE TABLE %s (%s)", qualified, strings.Join(cols, ", ")),
		}, nil
	}

	stmts := make([]string, 0, len(d.AddColumns))
	for _, c := range d.AddColumns {
		qc, err := pgdb.Quote(c.Name)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, fmt.Sprintf(
			"ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", qualified, qc, c.SQLType))
	}
	return stmts, nil
}
