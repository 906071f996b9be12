// Package gio reads vector files into datasets.
//
// Two formats are supported natively: GeoJSON (.geojson, .json) and
// GeoPackage (.gpkg). The reader is deliberately dumb about everything
// else: it hands back a geom.Dataset and leaves CRS handling, schema work
// and classification to the sync engine.
package gio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dbfriend/dbfriend/internal/geom"
)

var supportedExtensions = map[string]bool{
	".geojson": true,
	".json":    true,
	".gpkg":    true,
}

// SupportedFile reports whether the path has a recognized vector file
// extension.
func SupportedFile(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// ScanDir lists the supported vector files directly inside dir, sorted by
// name. Subdirectories are not descended into.
func ScanDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !SupportedFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// TableName derives the target table name from a file path: the base name
// without extension, lowercased.
func TableName(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// ReadDataset reads a vector file into a dataset, dispatching on the file
// extension. The dataset's SRID is taken from the file where the format
// carries one (GeoPackage); GeoJSON is WGS84 by specification.
func ReadDataset(path string) (*geom.Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return readGeoJSON(path)
	case ".gpkg":
		return readGeoPackage(path)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", path)
	}
}
