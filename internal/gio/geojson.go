package gio

import (
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"

	"github.com/dbfriend/dbfriend/internal/geom"
)

// readGeoJSON reads a GeoJSON feature collection. Per RFC 7946 the
// coordinate reference system is always WGS84, so the dataset SRID is
// fixed at 4326.
func readGeoJSON(path string) (*geom.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	features := make([]geom.Feature, 0, len(fc.Features))
	for i, gf := range fc.Features {
		if gf.Geometry == nil {
			return nil, fmt.Errorf("parse %s: feature %d has no geometry", path, i)
		}
		attrs := make(map[string]geom.Value, len(gf.Properties))
		for k, v := range gf.Properties {
			attrs[k] = geom.FromAny(v)
		}
		features = append(features, geom.Feature{
			Geometry: gf.Geometry,
			Attrs:    attrs,
		})
	}

	return geom.NewDataset(TableName(path), 4326, "geom", features), nil
}
