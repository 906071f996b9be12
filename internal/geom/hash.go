package geom

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// coordPrecision quantizes coordinates to 1e-7 degrees (roughly a
// centimeter at the equator) before hashing, so floating point noise
// introduced by a re-export does not classify a feature as updated.
const coordPrecision = 1e7

// Hash returns the content hash of the feature: normalized geometry plus
// all attributes in sorted key order. Equal geometries (within tolerance)
// with equal attributes hash equal regardless of ring start point,
// coordinate formatting noise, or attribute iteration order.
func (f *Feature) Hash() string {
	return f.HashExcluding(nil)
}

// HashExcluding is Hash with the named attribute columns left out of the
// digest. Callers use it to ignore database-assigned columns (id, gid,
// created_at and friends) that never exist in the source file.
func (f *Feature) HashExcluding(exclude map[string]bool) string {
	h := sha256.New()
	writeGeometry(h, NormalizeGeometry(f.Geometry))

	keys := make([]string, 0, len(f.Attrs))
	for k := range f.Attrs {
		if exclude[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		writeString(h, k)
		writeValue(h, f.Attrs[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GeomHash returns the content hash of the geometry alone. It is the
// fallback join key when the dataset and table share no key column.
func (f *Feature) GeomHash() string {
	h := sha256.New()
	writeGeometry(h, NormalizeGeometry(f.Geometry))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeGeometry returns a canonical copy of g: coordinates quantized,
// polygon rings closed, rotated to start at their smallest vertex, and
// wound consistently (exterior counterclockwise, holes clockwise). The
// input geometry is never modified.
func NormalizeGeometry(g orb.Geometry) orb.Geometry {
	switch t := g.(type) {
	case orb.Point:
		return quantizePoint(t)
	case orb.MultiPoint:
		out := make(orb.MultiPoint, len(t))
		for i, p := range t {
			out[i] = quantizePoint(p)
		}
		return out
	case orb.LineString:
		out := make(orb.LineString, len(t))
		for i, p := range t {
			out[i] = quantizePoint(p)
		}
		return out
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(t))
		for i, ls := range t {
			out[i] = NormalizeGeometry(ls).(orb.LineString)
		}
		return out
	case orb.Polygon:
		out := make(orb.Polygon, len(t))
		for i, ring := range t {
			out[i] = normalizeRing(ring, i == 0)
		}
		return out
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(t))
		for i, poly := range t {
			out[i] = NormalizeGeometry(poly).(orb.Polygon)
		}
		return out
	case orb.Collection:
		out := make(orb.Collection, len(t))
		for i, sub := range t {
			out[i] = NormalizeGeometry(sub)
		}
		return out
	default:
		return g
	}
}

func quantize(f float64) float64 {
	return math.Round(f*coordPrecision) / coordPrecision
}

func quantizePoint(p orb.Point) orb.Point {
	return orb.Point{quantize(p[0]), quantize(p[1])}
}

// normalizeRing closes the ring, rotates it to begin at its smallest
// vertex, and orients it: counterclockwise for the exterior ring,
// clockwise for holes. Ring direction carries no meaning for a polygon
// boundary, so two exports that disagree on it still hash equal.
func normalizeRing(ring orb.Ring, exterior bool) orb.Ring {
	if len(ring) == 0 {
		return orb.Ring{}
	}
	// Drop the closing vertex while rotating, re-add afterwards.
	open := make([]orb.Point, 0, len(ring))
	for i, p := range ring {
		if i == len(ring)-1 && len(ring) > 1 && p == ring[0] {
			break
		}
		open = append(open, quantizePoint(p))
	}
	if len(open) == 0 {
		return orb.Ring{}
	}

	wantCCW := exterior
	if isClockwise(open) == wantCCW {
		reversePoints(open)
	}

	start := 0
	for i, p := range open {
		if lessPoint(p, open[start]) {
			start = i
		}
	}
	rotated := make(orb.Ring, 0, len(open)+1)
	rotated = append(rotated, open[start:]...)
	rotated = append(rotated, open[:start]...)
	rotated = append(rotated, rotated[0])
	return rotated
}

func lessPoint(a, b orb.Point) bool {
	if a[0] != b[0] {
		return a[0] < b[0]
	}
	return a[1] < b[1]
}

func reversePoints(pts []orb.Point) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}

// isClockwise reports the winding of an open ring via the shoelace sum.
func isClockwise(pts []orb.Point) bool {
	var sum float64
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += (pts[j][0] - pts[i][0]) * (pts[j][1] + pts[i][1])
	}
	return sum > 0
}

// Geometry type tags for the digest. Independent of WKB type codes so the
// hash does not change if the WKB library does.
const (
	tagPoint           = 0x01
	tagMultiPoint      = 0x02
	tagLineString      = 0x03
	tagMultiLineString = 0x04
	tagPolygon         = 0x05
	tagMultiPolygon    = 0x06
	tagCollection      = 0x07
	tagNilGeometry     = 0x00
)

// Value type tags. Integers and floats share the number tag and encoding
// so that the same numeric value hashes equal whether it arrived as a JSON
// number, a SQLite INTEGER, or a Postgres DOUBLE PRECISION.
const (
	tagNull   = 0x10
	tagString = 0x11
	tagNumber = 0x12
	tagBool   = 0x13
	tagTime   = 0x14
)

func writeGeometry(h hash.Hash, g orb.Geometry) {
	switch t := g.(type) {
	case nil:
		h.Write([]byte{tagNilGeometry})
	case orb.Point:
		h.Write([]byte{tagPoint})
		writePoint(h, t)
	case orb.MultiPoint:
		h.Write([]byte{tagMultiPoint})
		writeCount(h, len(t))
		for _, p := range t {
			writePoint(h, p)
		}
	case orb.LineString:
		h.Write([]byte{tagLineString})
		writeCount(h, len(t))
		for _, p := range t {
			writePoint(h, p)
		}
	case orb.MultiLineString:
		h.Write([]byte{tagMultiLineString})
		writeCount(h, len(t))
		for _, ls := range t {
			writeGeometry(h, ls)
		}
	case orb.Polygon:
		h.Write([]byte{tagPolygon})
		writeCount(h, len(t))
		for _, ring := range t {
			writeCount(h, len(ring))
			for _, p := range ring {
				writePoint(h, p)
			}
		}
	case orb.MultiPolygon:
		h.Write([]byte{tagMultiPolygon})
		writeCount(h, len(t))
		for _, poly := range t {
			writeGeometry(h, poly)
		}
	case orb.Collection:
		h.Write([]byte{tagCollection})
		writeCount(h, len(t))
		for _, sub := range t {
			writeGeometry(h, sub)
		}
	}
}

func writePoint(h hash.Hash, p orb.Point) {
	writeFloat(h, p[0])
	writeFloat(h, p[1])
}

func writeFloat(h hash.Hash, f float64) {
	if f == 0 {
		f = 0 // fold -0 into +0
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
	h.Write(buf[:])
}

func writeInt64(h hash.Hash, n int64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	h.Write(buf[:])
}

func writeCount(h hash.Hash, n int) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(n))
	h.Write(buf[:])
}

func writeString(h hash.Hash, s string) {
	writeCount(h, len(s))
	h.Write([]byte(s))
}

func writeValue(h hash.Hash, v Value) {
	switch v.Kind {
	case KindNull:
		// Nulls hash as a distinct sentinel, never skipped: a null
		// attribute and a missing attribute are different contents.
		h.Write([]byte{tagNull})
	case KindString:
		h.Write([]byte{tagString})
		writeString(h, v.Str)
	case KindInt:
		h.Write([]byte{tagNumber})
		writeFloat(h, float64(v.Int))
	case KindFloat:
		h.Write([]byte{tagNumber})
		writeFloat(h, v.Float)
	case KindBool:
		h.Write([]byte{tagBool})
		if v.Bool {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case KindTime:
		// Nanoseconds hashed as raw int64 bits: a float64 cannot hold a
		// present-day nanosecond count exactly.
		h.Write([]byte{tagTime})
		writeInt64(h, v.Time.UTC().UnixNano())
	}
}
