package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb/encoding/wkb"

	"github.com/dbfriend/dbfriend/internal/geom"
	"github.com/dbfriend/dbfriend/internal/gio"
	"github.com/dbfriend/dbfriend/internal/pgdb"
	"github.com/dbfriend/dbfriend/internal/proj"
)

// Options configures a Loader for one invocation.
type Options struct {
	// Schema is the target schema, "public" by default.
	Schema string

	// Table funnels every file into one table instead of deriving the
	// table name per file.
	Table string

	// TargetEPSG forces datasets to this CRS before comparison. Zero
	// keeps the source CRS (defaulted to 4326 when the source has none).
	TargetEPSG int

	// KeyColumn is the natural key used to join incoming features to
	// existing rows. Empty selects the table's single-column primary key
	// when the dataset carries it, else the geometry-hash fallback.
	KeyColumn string

	// NoBackup disables pre-mutation table copies.
	NoBackup bool

	// Policy decides what happens on ambiguous join keys.
	Policy DuplicatePolicy

	// OnEvent, when set, receives one event per classified feature.
	OnEvent func(Event)
}

// Loader drives the per-file pipeline: read, reproject, reconcile,
// classify, plan, execute.
type Loader struct {
	db     *pgdb.DB
	opts   Options
	logger *log.Logger
	orch   *Orchestrator
}

// NewLoader wires a loader. A nil logger defaults to stderr.
func NewLoader(db *pgdb.DB, opts Options, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.New(os.Stderr, "[dbfriend] ", log.LstdFlags)
	}
	if opts.Schema == "" {
		opts.Schema = "public"
	}
	return &Loader{
		db:     db,
		opts:   opts,
		logger: logger,
		orch:   NewOrchestrator(db, logger),
	}
}

// LoadDir processes every supported vector file directly inside dir. A
// failing file is recorded and skipped; the run always visits every file.
func (l *Loader) LoadDir(ctx context.Context, dir string) (*RunReport, error) {
	files, err := gio.ScanDir(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no supported vector files in %s", dir)
	}

	report := &RunReport{Started: time.Now()}
	for _, file := range files {
		summary, err := l.LoadFile(ctx, file)
		if err != nil {
			table := l.opts.Table
			if table == "" {
				table = gio.TableName(file)
			}
			l.logger.Printf("Error processing %s: %v", file, err)
			report.Failures = append(report.Failures, FileFailure{File: file, Table: table, Err: err})
			continue
		}
		report.Summaries = append(report.Summaries, summary)
	}
	report.Elapsed = time.Since(report.Started)
	return report, nil
}

// LoadFile syncs a single vector file into its target table.
func (l *Loader) LoadFile(ctx context.Context, path string) (Summary, error) {
	ds, err := gio.ReadDataset(path)
	if err != nil {
		return Summary{}, err
	}

	table := l.opts.Table
	if table == "" {
		table = ds.Name
	}
	// Fail on unsafe names before anything touches the database.
	if _, err := pgdb.QuoteQualified(l.opts.Schema, table); err != nil {
		return Summary{}, err
	}

	if ds.SRID == 0 {
		l.logger.Printf("No CRS found in %s, defaulting to EPSG:4326", path)
		ds = geom.NewDataset(ds.Name, proj.WGS84, ds.GeometryColumn, ds.Features)
	}
	if l.opts.TargetEPSG != 0 && ds.SRID != l.opts.TargetEPSG {
		l.logger.Printf("Reprojecting %s from EPSG:%d to EPSG:%d", path, ds.SRID, l.opts.TargetEPSG)
		if ds, err = proj.Reproject(ds, l.opts.TargetEPSG); err != nil {
			return Summary{}, err
		}
	}

	exists, err := l.db.TableExists(ctx, l.opts.Schema, table)
	if err != nil {
		return Summary{}, err
	}

	if !exists {
		return l.loadNewTable(ctx, table, ds)
	}
	return l.loadExistingTable(ctx, table, ds)
}

// loadNewTable creates the table and inserts every non-duplicate feature.
func (l *Loader) loadNewTable(ctx context.Context, table string, ds *geom.Dataset) (Summary, error) {
	if ds.GeometryColumn == "" {
		ds = ds.WithGeometryColumn("geom")
	}

	exclude := nonEssentialColumns(datasetColumnNames(ds), nil, nil)
	exclude[ds.GeometryColumn] = true
	exclude[HashColumn] = true

	delta, err := Reconcile(ds, l.opts.Schema, table, nil, ds.SRID)
	if err != nil {
		return Summary{}, err
	}

	class, err := Classify(ds, nil, ClassifyOptions{
		Table:   table,
		Exclude: exclude,
		Policy:  l.opts.Policy,
	})
	if err != nil {
		return Summary{}, err
	}
	l.emitEvents(table, ds, class, "")

	plan, err := BuildPlan(PlanInput{
		Schema:  l.opts.Schema,
		Table:   table,
		Dataset: ds,
		Delta:   delta,
		Class:   class,
		SRID:    ds.SRID,
		Exclude: exclude,
	})
	if err != nil {
		return Summary{}, err
	}
	l.logger.Printf("Creating new table %s.%s with %d features", l.opts.Schema, table, len(class.New))
	return l.orch.Run(ctx, plan)
}

// loadExistingTable reconciles, classifies and applies the minimal
// mutation plan against a table that already exists.
func (l *Loader) loadExistingTable(ctx context.Context, table string, ds *geom.Dataset) (Summary, error) {
	schema := l.opts.Schema

	geomCol, err := l.db.GeometryColumn(ctx, schema, table)
	if err != nil {
		return Summary{}, err
	}
	if geomCol == "" {
		return Summary{}, fmt.Errorf("table %s.%s has no geometry column", schema, table)
	}
	ds = ds.WithGeometryColumn(geomCol)

	tableSRID, err := l.db.TableSRID(ctx, schema, table, geomCol)
	if err != nil {
		return Summary{}, err
	}
	if tableSRID != 0 && tableSRID != ds.SRID {
		l.logger.Printf("CRS mismatch for %s.%s: table EPSG:%d, data EPSG:%d; reprojecting",
			schema, table, tableSRID, ds.SRID)
		if ds, err = proj.Reproject(ds, tableSRID); err != nil {
			return Summary{}, err
		}
	}

	existingCols, err := l.db.ListColumns(ctx, schema, table)
	if err != nil {
		return Summary{}, err
	}
	pk, err := l.db.PrimaryKeyColumns(ctx, schema, table)
	if err != nil {
		return Summary{}, err
	}
	defaulted, err := l.db.DefaultedColumns(ctx, schema, table)
	if err != nil {
		return Summary{}, err
	}

	delta, err := Reconcile(ds, schema, table, existingCols, ds.SRID)
	if err != nil {
		return Summary{}, err
	}

	exclude := nonEssentialColumns(append(datasetColumnNames(ds), columnNames(existingCols)...), pk, defaulted)
	exclude[geomCol] = true
	exclude[HashColumn] = true

	keyColumn := l.resolveKeyColumn(ds, existingCols, pk)
	idColumn := ""
	if len(pk) == 1 {
		idColumn = pk[0]
	}

	rows, err := l.fetchExistingRows(ctx, schema, table, geomCol, keyColumn, idColumn, existingCols, exclude)
	if err != nil {
		return Summary{}, err
	}

	class, err := Classify(ds, rows, ClassifyOptions{
		Table:     table,
		KeyColumn: keyColumn,
		Exclude:   exclude,
		Policy:    l.opts.Policy,
	})
	if err != nil {
		return Summary{}, err
	}
	for key, ids := range class.StaleRows {
		l.logger.Printf("Warning: %s.%s has %d stale duplicate rows for key %q: %v",
			schema, table, len(ids), key, ids)
	}
	l.emitEvents(table, ds, class, keyColumn)

	var records []BackupRecord
	if !l.opts.NoBackup {
		if records, err = fetchBackupRecords(ctx, l.db, schema, table); err != nil {
			return Summary{}, err
		}
	}

	plan, err := BuildPlan(PlanInput{
		Schema:          schema,
		Table:           table,
		Dataset:         ds,
		Delta:           delta,
		Class:           class,
		Backup:          !l.opts.NoBackup,
		BackupRecords:   records,
		IDColumn:        idColumn,
		ExistingColumns: existingCols,
		SRID:            ds.SRID,
		Exclude:         exclude,
	})
	if err != nil {
		return Summary{}, err
	}
	return l.orch.Run(ctx, plan)
}

// resolveKeyColumn picks the join key column: the configured one when both
// sides carry it, else a single-column primary key the dataset also
// carries, else none (geometry-hash join).
func (l *Loader) resolveKeyColumn(ds *geom.Dataset, existingCols map[string]string, pk []string) string {
	if l.opts.KeyColumn != "" {
		_, inTable := existingCols[l.opts.KeyColumn]
		if inTable && ds.HasColumn(l.opts.KeyColumn) {
			return l.opts.KeyColumn
		}
		l.logger.Printf("Key column %q not present on both sides, joining on geometry hash", l.opts.KeyColumn)
		return ""
	}
	if len(pk) == 1 && ds.HasColumn(pk[0]) {
		return pk[0]
	}
	return ""
}

// fetchExistingRows reads the target table into classifier input: row
// identifier, join key, stored content hash (recomputed from row content
// when absent) and the geometry hash.
func (l *Loader) fetchExistingRows(ctx context.Context, schema, table, geomCol, keyColumn, idColumn string, existingCols map[string]string, exclude map[string]bool) ([]ExistingRow, error) {
	qualified, err := pgdb.QuoteQualified(schema, table)
	if err != nil {
		return nil, err
	}
	qGeom, err := pgdb.Quote(geomCol)
	if err != nil {
		return nil, err
	}

	idExpr := "ctid::text"
	if idColumn != "" {
		qid, err := pgdb.Quote(idColumn)
		if err != nil {
			return nil, err
		}
		idExpr = qid + "::text"
	}

	hashExpr := "NULL::text"
	if _, ok := existingCols[HashColumn]; ok {
		qh, err := pgdb.Quote(HashColumn)
		if err != nil {
			return nil, err
		}
		hashExpr = qh
	}

	// Attribute columns in sorted order so row hashes are rebuilt from a
	// deterministic scan.
	var attrCols []string
	for name := range existingCols {
		if name == geomCol || name == HashColumn {
			continue
		}
		attrCols = append(attrCols, name)
	}
	sort.Strings(attrCols)

	selects := []string{idExpr, hashExpr, "ST_AsBinary(" + qGeom + ")"}
	for _, name := range attrCols {
		qc, err := pgdb.Quote(name)
		if err != nil {
			return nil, err
		}
		selects = append(selects, qc)
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY 1", strings.Join(selects, ", "), qualified)
	sqlRows, err := l.db.RawDB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch rows of %s.%s: %w", schema, table, err)
	}
	defer sqlRows.Close()

	var rows []ExistingRow
	for sqlRows.Next() {
		var id string
		var storedHash sql.NullString
		var payload []byte
		attrs := make([]any, len(attrCols))
		dest := []any{&id, &storedHash, &payload}
		for i := range attrs {
			dest = append(dest, &attrs[i])
		}
		if err := sqlRows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row of %s.%s: %w", schema, table, err)
		}

		g, err := wkb.Unmarshal(payload)
		if err != nil {
			return nil, fmt.Errorf("decode geometry of %s.%s row %s: %w", schema, table, id, err)
		}
		f := geom.Feature{Geometry: g, Attrs: make(map[string]geom.Value, len(attrCols))}
		for i, name := range attrCols {
			f.Attrs[name] = geom.FromAny(attrs[i])
		}

		row := ExistingRow{
			ID:       id,
			GeomHash: f.GeomHash(),
		}
		if keyColumn != "" {
			row.Key = f.Attr(keyColumn).String()
		}
		if storedHash.Valid && storedHash.String != "" {
			row.Hash = storedHash.String
		} else {
			row.Hash = f.HashExcluding(exclude)
		}
		rows = append(rows, row)
	}
	if err := sqlRows.Err(); err != nil {
		return nil, fmt.Errorf("fetch rows of %s.%s: %w", schema, table, err)
	}
	return rows, nil
}

func (l *Loader) emitEvents(table string, ds *geom.Dataset, class *Classification, keyColumn string) {
	if l.opts.OnEvent == nil {
		return
	}
	key := func(i int) string {
		if keyColumn == "" {
			return ds.Features[i].GeomHash()
		}
		return ds.Features[i].Attr(keyColumn).String()
	}
	for _, i := range class.New {
		l.opts.OnEvent(Event{Type: EventNew, Table: table, Feature: i, Key: key(i)})
	}
	for _, u := range class.Updated {
		l.opts.OnEvent(Event{Type: EventUpdated, Table: table, Feature: u.Feature, Key: key(u.Feature)})
	}
	for _, i := range class.Identical {
		l.opts.OnEvent(Event{Type: EventIdentical, Table: table, Feature: i, Key: key(i)})
	}
	for _, i := range class.Duplicates {
		l.opts.OnEvent(Event{Type: EventDuplicate, Table: table, Feature: i, Key: key(i)})
	}
}

// Column name patterns that never carry source content: database-assigned
// identity and bookkeeping timestamps.
var nonEssentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^id$`),
	regexp.MustCompile(`(?i)^gid$`),
	regexp.MustCompile(`(?i)^uuid$`),
	regexp.MustCompile(`(?i)_id$`),
	regexp.MustCompile(`(?i)_gid$`),
	regexp.MustCompile(`(?i)_at$`),
}

// nonEssentialColumns returns the columns excluded from content hashing:
// primary key columns, columns with database defaults, and anything
// matching the identity/timestamp naming patterns.
func nonEssentialColumns(names []string, pk, defaulted []string) map[string]bool {
	exclude := make(map[string]bool)
	for _, name := range names {
		for _, p := range nonEssentialPatterns {
			if p.MatchString(name) {
				exclude[name] = true
				break
			}
		}
	}
	for _, name := range pk {
		exclude[name] = true
	}
	for _, name := range defaulted {
		exclude[name] = true
	}
	return exclude
}

func datasetColumnNames(d *geom.Dataset) []string {
	cols := d.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func columnNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	return names
}

