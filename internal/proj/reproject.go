// Package proj reprojects datasets between the coordinate reference
// systems the loader understands: WGS84 (EPSG:4326) and Web Mercator
// (EPSG:3857). Anything else is a per-table error, never a silent
// pass-through of mismatched coordinates.
package proj

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/dbfriend/dbfriend/internal/geom"
)

// SRID constants for the supported reference systems.
const (
	WGS84       = 4326
	WebMercator = 3857
)

// Supported reports whether a reprojection between the two SRIDs is
// available (identity included).
func Supported(from, to int) bool {
	if from == to {
		return true
	}
	return (from == WGS84 && to == WebMercator) || (from == WebMercator && to == WGS84)
}

// Reproject returns a copy of the dataset transformed to the target SRID.
// The input dataset is left untouched. Reprojecting to the dataset's own
// SRID returns the input unchanged.
func Reproject(d *geom.Dataset, targetSRID int) (*geom.Dataset, error) {
	if d.SRID == targetSRID {
		return d, nil
	}

	var transform func(orb.Geometry) orb.Geometry
	switch {
	case d.SRID == WGS84 && targetSRID == WebMercator:
		transform = func(g orb.Geometry) orb.Geometry {
			return project.Geometry(g, project.WGS84.ToMercator)
		}
	case d.SRID == WebMercator && targetSRID == WGS84:
		transform = func(g orb.Geometry) orb.Geometry {
			return project.Geometry(g, project.Mercator.ToWGS84)
		}
	default:
		return nil, fmt.Errorf("reprojection from EPSG:%d to EPSG:%d is not supported", d.SRID, targetSRID)
	}

	features := make([]geom.Feature, len(d.Features))
	for i := range d.Features {
		f := d.Features[i]
		features[i] = geom.Feature{
			// project.Geometry mutates in place, so transform a clone.
			Geometry: transform(orb.Clone(f.Geometry)),
			Attrs:    f.Attrs,
		}
	}
	return geom.NewDataset(d.Name, targetSRID, d.GeometryColumn, features), nil
}
