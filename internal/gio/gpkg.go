package gio

import (
	"database/sql"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/dbfriend/dbfriend/internal/geom"
	"github.com/dbfriend/dbfriend/internal/pgdb"
)

// readGeoPackage reads the first feature layer of a GeoPackage. A
// GeoPackage is a SQLite database with well-known catalog tables
// (gpkg_contents, gpkg_geometry_columns) and one table per layer whose
// geometry column holds GPKG-framed WKB blobs.
func readGeoPackage(path string) (*geom.Dataset, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("open geopackage %s: %w", path, err)
	}
	defer db.Close()

	var layer, geomColumn string
	var srid int
	err = db.QueryRow(`
		SELECT c.table_name, g.column_name, g.srs_id
		FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		WHERE c.data_type = 'features'
		ORDER BY c.table_name
		LIMIT 1`).Scan(&layer, &geomColumn, &srid)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("geopackage %s contains no feature layers", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read geopackage catalog of %s: %w", path, err)
	}

	// Layer and column names come out of the file's own catalog; run them
	// through the same sanitizer as every other identifier before they
	// are embedded in the layer query.
	qLayer, err := pgdb.Quote(layer)
	if err != nil {
		return nil, fmt.Errorf("geopackage %s: layer name: %w", path, err)
	}

	rows, err := db.Query("SELECT * FROM " + qLayer)
	if err != nil {
		return nil, fmt.Errorf("read layer %s of %s: %w", layer, path, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns of layer %s: %w", layer, err)
	}

	var features []geom.Feature
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan layer %s: %w", layer, err)
		}

		f := geom.Feature{Attrs: make(map[string]geom.Value)}
		for i, col := range columns {
			if col == geomColumn {
				blob, ok := values[i].([]byte)
				if !ok {
					return nil, fmt.Errorf("layer %s row %d: geometry is not a blob", layer, len(features))
				}
				g, err := decodeGPKGGeometry(blob)
				if err != nil {
					return nil, fmt.Errorf("layer %s row %d: %w", layer, len(features), err)
				}
				f.Geometry = g
				continue
			}
			// fid is SQLite's rowid alias, not content.
			if col == "fid" {
				continue
			}
			f.Attrs[col] = geom.FromAny(values[i])
		}
		if f.Geometry == nil {
			return nil, fmt.Errorf("layer %s row %d: null geometry", layer, len(features))
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read layer %s: %w", layer, err)
	}

	return geom.NewDataset(TableName(path), srid, geomColumn, features), nil
}

// decodeGPKGGeometry strips the GeoPackage binary header from a geometry
// blob and decodes the WKB payload that follows. Header layout per the
// GeoPackage spec: 2 magic bytes "GP", version, flags, 4-byte srs_id, then
// an optional envelope whose size is encoded in the flags.
func decodeGPKGGeometry(blob []byte) (orb.Geometry, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, fmt.Errorf("not a geopackage geometry blob")
	}
	flags := blob[3]
	if flags&0x20 != 0 {
		return nil, fmt.Errorf("empty geometry blob")
	}

	var envelopeSize int
	switch (flags >> 1) & 0x07 {
	case 0:
		envelopeSize = 0
	case 1:
		envelopeSize = 32
	case 2, 3:
		envelopeSize = 48
	case 4:
		envelopeSize = 64
	default:
		return nil, fmt.Errorf("invalid envelope indicator in geometry blob")
	}

	offset := 8 + envelopeSize
	if len(blob) < offset {
		return nil, fmt.Errorf("truncated geometry blob")
	}
	g, err := wkb.Unmarshal(blob[offset:])
	if err != nil {
		return nil, fmt.Errorf("decode wkb: %w", err)
	}
	return g, nil
}
