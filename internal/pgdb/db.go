// Package pgdb wraps the PostGIS connection used by the sync engine.
//
// It owns the two things that must never be improvised at call sites:
// identifier sanitization (Quote) and catalog introspection. Values are
// always bound as query parameters; only sanitized identifiers are ever
// interpolated into statement text.
package pgdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// DB wraps the database/sql connection to PostGIS.
type DB struct {
	conn *sql.DB
}

// Open connects to Postgres using the given DSN and verifies the
// connection with a ping. The caller must Close the returned DB.
func Open(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	// One file is processed at a time; a small pool is plenty.
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{conn: conn}, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	err := db.conn.Close()
	db.conn = nil
	if err != nil {
		return fmt.Errorf("close postgres: %w", err)
	}
	return nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// BeginTx starts a transaction. Postgres DDL is transactional, so schema
// changes, backups and row mutations all ride in the same unit.
func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}

// SchemaExists reports whether the named schema exists.
func (db *DB) SchemaExists(ctx context.Context, schema string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.schemata
			WHERE schema_name = $1
		)`, schema).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check schema %q: %w", schema, err)
	}
	return exists, nil
}

// TableExists reports whether schema.table exists.
func (db *DB) TableExists(ctx context.Context, schema, table string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`, schema, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table %s.%s: %w", schema, table, err)
	}
	return exists, nil
}

// ListColumns returns the table's column names mapped to their lowercased
// data types as reported by information_schema.
func (db *DB) ListColumns(ctx context.Context, schema, table string) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT column_name, lower(data_type)
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	columns := make(map[string]string)
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, fmt.Errorf("scan column of %s.%s: %w", schema, table, err)
		}
		columns[name] = typ
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list columns of %s.%s: %w", schema, table, err)
	}
	return columns, nil
}

// GeometryColumn returns the geometry column name of schema.table, or ""
// if the table has none. The PostGIS geometry_columns view is consulted
// first, information_schema as fallback for tables it does not cover.
func (db *DB) GeometryColumn(ctx context.Context, schema, table string) (string, error) {
	var name string
	err := db.conn.QueryRowContext(ctx, `
		SELECT f_geometry_column
		FROM geometry_columns
		WHERE f_table_schema = $1 AND f_table_name = $2
		LIMIT 1`, schema, table).Scan(&name)
	if err == nil {
		return name, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("geometry column of %s.%s: %w", schema, table, err)
	}

	err = db.conn.QueryRowContext(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2 AND udt_name = 'geometry'
		LIMIT 1`, schema, table).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("geometry column of %s.%s: %w", schema, table, err)
	}
	return name, nil
}

// TableSRID returns the SRID of the table's geometry column, 0 if the
// table holds no geometries to sample.
func (db *DB) TableSRID(ctx context.Context, schema, table, geomColumn string) (int, error) {
	qualified, err := QuoteQualified(schema, table)
	if err != nil {
		return 0, err
	}
	qg, err := Quote(geomColumn)
	if err != nil {
		return 0, err
	}
	var srid int
	q := fmt.Sprintf("SELECT ST_SRID(%s) FROM %s WHERE %s IS NOT NULL LIMIT 1", qg, qualified, qg)
	err = db.conn.QueryRowContext(ctx, q).Scan(&srid)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("SRID of %s.%s: %w", schema, table, err)
	}
	return srid, nil
}

// PrimaryKeyColumns returns the table's primary key column names.
func (db *DB) PrimaryKeyColumns(ctx context.Context, schema, table string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = $2
		ORDER BY kcu.ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("primary key of %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan primary key of %s.%s: %w", schema, table, err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("primary key of %s.%s: %w", schema, table, err)
	}
	return cols, nil
}

// DefaultedColumns returns the names of columns carrying a default value,
// such as serial keys and created_at timestamps. These never originate in
// the source file and are excluded from content hashing.
func (db *DB) DefaultedColumns(ctx context.Context, schema, table string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		  AND column_default IS NOT NULL`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("defaulted columns of %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan defaulted column of %s.%s: %w", schema, table, err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("defaulted columns of %s.%s: %w", schema, table, err)
	}
	return cols, nil
}
