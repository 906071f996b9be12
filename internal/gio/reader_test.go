package gio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/dbfriend/dbfriend/internal/geom"
)

const sampleGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [10.75, 59.91]},
      "properties": {"name": "Oslo", "population": 700000}
    },
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [5.32, 60.39]},
      "properties": {"name": "Bergen", "population": 285000}
    }
  ]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestReadDataset_GeoJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Cities.geojson", sampleGeoJSON)

	d, err := ReadDataset(path)
	if err != nil {
		t.Fatalf("ReadDataset failed: %v", err)
	}
	if d.Name != "cities" {
		t.Errorf("Name = %q, want %q", d.Name, "cities")
	}
	if d.SRID != 4326 {
		t.Errorf("SRID = %d, want 4326", d.SRID)
	}
	if len(d.Features) != 2 {
		t.Fatalf("read %d features, want 2", len(d.Features))
	}

	f := d.Features[0]
	p, ok := f.Geometry.(orb.Point)
	if !ok {
		t.Fatalf("geometry type = %T, want orb.Point", f.Geometry)
	}
	if p[0] != 10.75 || p[1] != 59.91 {
		t.Errorf("point = %v, want (10.75, 59.91)", p)
	}
	if got := f.Attr("name"); got.Kind != geom.KindString || got.Str != "Oslo" {
		t.Errorf("name attribute = %+v, want string Oslo", got)
	}
	if got := f.Attr("population"); got.Kind != geom.KindInt || got.Int != 700000 {
		t.Errorf("population attribute = %+v, want integer 700000", got)
	}
}

func TestReadDataset_GeoJSONInvalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.geojson", "{not json")
	if _, err := ReadDataset(path); err == nil {
		t.Fatalf("expected parse error for malformed GeoJSON")
	}
}

func TestReadDataset_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, t.TempDir(), "data.csv", "a,b\n1,2\n")
	if _, err := ReadDataset(path); err == nil {
		t.Fatalf("expected error for unsupported extension")
	}
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.geojson", sampleGeoJSON)
	writeFile(t, dir, "a.json", sampleGeoJSON)
	writeFile(t, dir, "notes.txt", "ignore me")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	files, err := ScanDir(dir)
	if err != nil {
		t.Fatalf("ScanDir failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("ScanDir found %d files, want 2: %v", len(files), files)
	}
	if filepath.Base(files[0]) != "a.json" || filepath.Base(files[1]) != "b.geojson" {
		t.Errorf("ScanDir order = %v, want sorted by name", files)
	}
}

func TestTableName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/data/Roads.geojson", "roads"},
		{"cities.gpkg", "cities"},
		{"./RIVERS.json", "rivers"},
	}
	for _, tt := range tests {
		if got := TableName(tt.in); got != tt.want {
			t.Errorf("TableName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
