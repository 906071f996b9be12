package geom

import (
	"testing"

	"github.com/paulmach/orb"
)

func TestFromAny(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Kind
	}{
		{"nil", nil, KindNull},
		{"string", "hello", KindString},
		{"bytes", []byte("hello"), KindString},
		{"bool", true, KindBool},
		{"int", 7, KindInt},
		{"int64", int64(7), KindInt},
		{"integral float", 7.0, KindInt},
		{"fractional float", 7.5, KindFloat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromAny(tt.in); got.Kind != tt.want {
				t.Errorf("FromAny(%v).Kind = %v, want %v", tt.in, got.Kind, tt.want)
			}
		})
	}
}

func TestDatasetColumns_KindInference(t *testing.T) {
	features := []Feature{
		{Geometry: orb.Point{0, 0}, Attrs: map[string]Value{
			"name":  StringValue("a"),
			"count": IntValue(1),
			"ratio": NullValue(),
		}},
		{Geometry: orb.Point{1, 1}, Attrs: map[string]Value{
			"name":  StringValue("b"),
			"count": FloatValue(2.5),
			"ratio": FloatValue(0.5),
		}},
	}
	d := NewDataset("roads", 4326, "geom", features)

	want := map[string]Kind{
		"name":  KindString,
		"count": KindFloat, // int promoted to float
		"ratio": KindFloat, // null skipped during inference
	}
	cols := d.Columns()
	if len(cols) != len(want) {
		t.Fatalf("Columns() returned %d columns, want %d", len(cols), len(want))
	}
	for _, c := range cols {
		if want[c.Name] != c.Kind {
			t.Errorf("column %q inferred as %v, want %v", c.Name, c.Kind, want[c.Name])
		}
	}
}

func TestDatasetColumns_StableOrder(t *testing.T) {
	features := []Feature{
		{Geometry: orb.Point{0, 0}, Attrs: map[string]Value{
			"b": IntValue(1), "a": IntValue(2),
		}},
		{Geometry: orb.Point{1, 1}, Attrs: map[string]Value{
			"c": IntValue(3),
		}},
	}
	for i := 0; i < 5; i++ {
		d := NewDataset("t", 4326, "geom", features)
		cols := d.Columns()
		got := []string{cols[0].Name, cols[1].Name, cols[2].Name}
		if got[0] != "a" || got[1] != "b" || got[2] != "c" {
			t.Fatalf("column order = %v, want [a b c]", got)
		}
	}
}

func TestWithGeometryColumn(t *testing.T) {
	d := NewDataset("t", 4326, "geometry", nil)
	renamed := d.WithGeometryColumn("geom")
	if renamed.GeometryColumn != "geom" {
		t.Errorf("GeometryColumn = %q, want %q", renamed.GeometryColumn, "geom")
	}
	if d.GeometryColumn != "geometry" {
		t.Errorf("original dataset mutated")
	}
	if same := d.WithGeometryColumn("geometry"); same != d {
		t.Errorf("rename to the same name should return the receiver")
	}
}
