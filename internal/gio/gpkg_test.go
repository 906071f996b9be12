package gio

import (
	"database/sql"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/dbfriend/dbfriend/internal/geom"
)

// gpkgBlob frames a geometry as a GeoPackage binary blob: magic, version,
// flags (little-endian, no envelope), srs_id, then plain WKB.
func gpkgBlob(t *testing.T, g orb.Geometry, srid int32) []byte {
	t.Helper()
	payload, err := wkb.Marshal(g)
	if err != nil {
		t.Fatalf("marshal wkb: %v", err)
	}
	header := []byte{'G', 'P', 0, 0x01}
	var sridBytes [4]byte
	binary.LittleEndian.PutUint32(sridBytes[:], uint32(srid))
	return append(append(header, sridBytes[:]...), payload...)
}

func writeGeoPackage(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE gpkg_contents (
			table_name TEXT PRIMARY KEY,
			data_type TEXT NOT NULL,
			identifier TEXT,
			srs_id INTEGER
		)`,
		`CREATE TABLE gpkg_geometry_columns (
			table_name TEXT NOT NULL,
			column_name TEXT NOT NULL,
			geometry_type_name TEXT NOT NULL,
			srs_id INTEGER NOT NULL
		)`,
		`CREATE TABLE lakes (
			fid INTEGER PRIMARY KEY AUTOINCREMENT,
			geom BLOB,
			name TEXT,
			depth REAL
		)`,
		`INSERT INTO gpkg_contents VALUES ('lakes', 'features', 'lakes', 4326)`,
		`INSERT INTO gpkg_geometry_columns VALUES ('lakes', 'geom', 'POINT', 4326)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	insert := `INSERT INTO lakes (geom, name, depth) VALUES (?, ?, ?)`
	if _, err := db.Exec(insert, gpkgBlob(t, orb.Point{10.2, 61.1}, 4326), "Mjøsa", 453.0); err != nil {
		t.Fatalf("insert feature: %v", err)
	}
	if _, err := db.Exec(insert, gpkgBlob(t, orb.Point{8.9, 61.9}, 4326), "Gjende", nil); err != nil {
		t.Fatalf("insert feature: %v", err)
	}
}

func TestReadDataset_GeoPackage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Lakes.gpkg")
	writeGeoPackage(t, path)

	d, err := ReadDataset(path)
	if err != nil {
		t.Fatalf("ReadDataset failed: %v", err)
	}
	if d.Name != "lakes" {
		t.Errorf("Name = %q, want %q", d.Name, "lakes")
	}
	if d.SRID != 4326 {
		t.Errorf("SRID = %d, want 4326", d.SRID)
	}
	if d.GeometryColumn != "geom" {
		t.Errorf("GeometryColumn = %q, want %q", d.GeometryColumn, "geom")
	}
	if len(d.Features) != 2 {
		t.Fatalf("read %d features, want 2", len(d.Features))
	}

	f := d.Features[0]
	p, ok := f.Geometry.(orb.Point)
	if !ok {
		t.Fatalf("geometry type = %T, want orb.Point", f.Geometry)
	}
	if p[0] != 10.2 || p[1] != 61.1 {
		t.Errorf("point = %v, want (10.2, 61.1)", p)
	}
	if got := f.Attr("name"); got.Str != "Mjøsa" {
		t.Errorf("name = %q, want Mjøsa", got.Str)
	}
	if got := f.Attr("depth"); got.Kind != geom.KindInt || got.Int != 453 {
		t.Errorf("depth = %+v, want integral 453", got)
	}
	// fid is the rowid alias, not content.
	if _, ok := f.Attrs["fid"]; ok {
		t.Errorf("fid column should not be read as an attribute")
	}

	// Second feature has a null attribute, kept as an explicit null.
	if got := d.Features[1].Attr("depth"); !got.IsNull() {
		t.Errorf("null depth read as %+v", got)
	}
}

func TestDecodeGPKGGeometry_Errors(t *testing.T) {
	if _, err := decodeGPKGGeometry([]byte("XX")); err == nil {
		t.Errorf("short blob accepted")
	}
	if _, err := decodeGPKGGeometry([]byte{'X', 'P', 0, 1, 0, 0, 0, 0, 1}); err == nil {
		t.Errorf("wrong magic accepted")
	}
	// Valid header but truncated WKB payload.
	blob := []byte{'G', 'P', 0, 0x01, 0, 0, 0, 0}
	if _, err := decodeGPKGGeometry(blob); err == nil {
		t.Errorf("empty payload accepted")
	}
}
