// Package geom provides the in-memory model for spatial datasets: features,
// loosely typed attribute values, and the content hashing used to detect
// new, updated and identical features during a sync.
//
// A Dataset is immutable once loaded. Reprojection (internal/proj) returns a
// transformed copy rather than mutating in place, so a Dataset can always be
// traced back to exactly one source file.
package geom

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/paulmach/orb"
)

// Kind identifies the runtime type of an attribute Value.
//
// Source files carry loosely typed columns, so every attribute is folded
// into this closed set instead of being passed around as interface{}.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
)

// String returns the kind name as used in log output and error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	case KindTime:
		return "timestamp"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a tagged attribute value. The zero Value is null.
type Value struct {
	Kind  Kind
	Str   string
	Int   int64
	Float float64
	Bool  bool
	Time  time.Time
}

// NullValue returns the null attribute value.
func NullValue() Value { return Value{Kind: KindNull} }

// StringValue wraps s.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// IntValue wraps i.
func IntValue(i int64) Value { return Value{Kind: KindInt, Int: i} }

// FloatValue wraps f.
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// BoolValue wraps b.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// TimeValue wraps t, normalized to UTC.
func TimeValue(t time.Time) Value { return Value{Kind: KindTime, Time: t.UTC()} }

// FromAny folds a value produced by a decoder (JSON properties, SQLite
// columns, database/sql scans) into a tagged Value. Unknown types are
// stringified rather than dropped so no attribute silently disappears.
func FromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return NullValue()
	case string:
		return StringValue(x)
	case []byte:
		return StringValue(string(x))
	case bool:
		return BoolValue(x)
	case int:
		return IntValue(int64(x))
	case int32:
		return IntValue(int64(x))
	case int64:
		return IntValue(x)
	case float32:
		return floatOrInt(float64(x))
	case float64:
		return floatOrInt(x)
	case time.Time:
		return TimeValue(x)
	default:
		return StringValue(fmt.Sprintf("%v", x))
	}
}

// floatOrInt keeps integral JSON numbers as integers. JSON has a single
// number type, so without this every GeoPackage INTEGER column would flip
// to float when the same layer is re-read from GeoJSON.
func floatOrInt(f float64) Value {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<53 {
		return IntValue(int64(f))
	}
	return FloatValue(f)
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// SQLValue returns the value in a form suitable for binding as a query
// parameter.
func (v Value) SQLValue() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindString:
		return v.Str
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindBool:
		return v.Bool
	case KindTime:
		return v.Time
	default:
		return nil
	}
}

// String renders the value for display and for join-key comparison.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindString:
		return v.Str
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindTime:
		return v.Time.UTC().Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// Feature is one geometry plus its attributes. Features are owned by the
// Dataset that produced them and are never shared between datasets.
type Feature struct {
	Geometry orb.Geometry
	Attrs    map[string]Value
}

// Attr returns the named attribute, Null if absent.
func (f *Feature) Attr(name string) Value {
	if v, ok := f.Attrs[name]; ok {
		return v
	}
	return NullValue()
}

// Column describes one attribute column of a Dataset with its inferred kind.
type Column struct {
	Name string
	Kind Kind
}

// Dataset is an ordered sequence of features read from one source file.
type Dataset struct {
	// Name is the table name derived from the source file, already
	// lowercased by the reader.
	Name string

	// SRID is the EPSG code of the dataset's CRS. 0 means the source
	// carried none; the load driver defaults it to 4326.
	SRID int

	// GeometryColumn is the column name the geometry will be written to.
	GeometryColumn string

	Features []Feature

	// columnOrder preserves first-seen attribute order across features.
	columnOrder []string
}

// NewDataset constructs a dataset and records attribute column order from
// the features in input order.
func NewDataset(name string, srid int, geometryColumn string, features []Feature) *Dataset {
	d := &Dataset{
		Name:           name,
		SRID:           srid,
		GeometryColumn: geometryColumn,
		Features:       features,
	}
	seen := make(map[string]bool)
	for i := range features {
		for name := range features[i].Attrs {
			if !seen[name] {
				seen[name] = true
				d.columnOrder = append(d.columnOrder, name)
			}
		}
	}
	// First-seen order within one feature is map order; sort the columns
	// contributed by each feature so the result is stable across runs.
	sortColumnOrder(d.columnOrder, features)
	return d
}

// sortColumnOrder makes column order deterministic: columns are grouped by
// the index of the first feature that carries them, alphabetical within a
// group.
func sortColumnOrder(order []string, features []Feature) {
	firstSeen := make(map[string]int, len(order))
	for _, name := range order {
		firstSeen[name] = len(features)
	}
	for i := range features {
		for name := range features[i].Attrs {
			if i < firstSeen[name] {
				firstSeen[name] = i
			}
		}
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if firstSeen[a] != firstSeen[b] {
			return firstSeen[a] < firstSeen[b]
		}
		return a < b
	})
}

// Columns returns the dataset's attribute columns with inferred kinds.
// Kind inference takes the first non-null value's kind per column and
// promotes integer to float when both occur.
func (d *Dataset) Columns() []Column {
	cols := make([]Column, 0, len(d.columnOrder))
	for _, name := range d.columnOrder {
		kind := KindNull
		for i := range d.Features {
			v := d.Features[i].Attr(name)
			if v.IsNull() {
				continue
			}
			switch {
			case kind == KindNull:
				kind = v.Kind
			case kind == KindInt && v.Kind == KindFloat:
				kind = KindFloat
			case kind == KindFloat && v.Kind == KindInt:
				// keep float
			case kind != v.Kind:
				// Mixed incompatible kinds degrade to string, the
				// only representation that can hold both.
				kind = KindString
			}
		}
		cols = append(cols, Column{Name: name, Kind: kind})
	}
	return cols
}

// HasColumn reports whether the dataset carries the named attribute column.
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.columnOrder {
		if c == name {
			return true
		}
	}
	return false
}

// WithGeometryColumn returns a shallow copy of the dataset with the
// geometry column renamed. Features are shared; they do not carry the
// geometry column name themselves.
func (d *Dataset) WithGeometryColumn(name string) *Dataset {
	if name == d.GeometryColumn {
		return d
	}
	out := *d
	out.GeometryColumn = name
	return &out
}
