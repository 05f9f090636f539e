package flatgeobuf

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	geoserde "github.com/tingold/orb-geoserde"
)

func TestWrite_Points(t *testing.T) {
	geoms := []orb.Geometry{
		orb.Point{1, 2},
		orb.Point{3, 4},
		orb.Point{5, 6},
	}

	var buf bytes.Buffer
	if err := Write(&buf, geoms, nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected non-empty output")
	}

	// Check magic bytes
	magic := buf.Bytes()[:3]
	if string(magic) != "fgb" {
		t.Errorf("expected magic bytes 'fgb', got %q", magic)
	}
}

func TestWrite_MixedGeometries(t *testing.T) {
	geoms := []orb.Geometry{
		orb.Point{1, 2},
		orb.LineString{{0, 0}, {1, 1}},
		orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
	}

	var buf bytes.Buffer
	if err := Write(&buf, geoms, nil); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	reader, err := NewReaderFromData(buf.Bytes())
	if err != nil {
		t.Fatalf("NewReaderFromData failed: %v", err)
	}
	if gt := reader.Header().GeometryType; gt != "Unknown" {
		t.Errorf("expected geometry type 'Unknown', got %q", gt)
	}
	got, err := reader.ReadGeometries()
	if err != nil {
		t.Fatalf("ReadGeometries failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 geometries, got %d", len(got))
	}
}

func TestWrite_EmptyGeometries(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, []orb.Geometry{nil}, nil); !errors.Is(err, ErrNilGeometry) {
		t.Errorf("expected ErrNilGeometry, got %v", err)
	}
}

func TestWrite_WithOptions(t *testing.T) {
	opts := &Options{
		Name:         "test_layer",
		Description:  "A test layer",
		IncludeIndex: true,
		CRS:          WGS84(),
	}

	var buf bytes.Buffer
	if err := Write(&buf, []orb.Geometry{orb.Point{1, 2}}, opts); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	reader, err := NewReaderFromData(buf.Bytes())
	if err != nil {
		t.Fatalf("NewReaderFromData failed: %v", err)
	}
	header := reader.Header()
	if header.Name != "test_layer" {
		t.Errorf("expected name 'test_layer', got %q", header.Name)
	}
	if header.Description != "A test layer" {
		t.Errorf("expected description 'A test layer', got %q", header.Description)
	}
}

func TestWrite_NoIndex(t *testing.T) {
	var withIndex, withoutIndex bytes.Buffer
	geoms := []orb.Geometry{orb.Point{1, 2}, orb.Point{3, 4}}

	if err := Write(&withIndex, geoms, &Options{IncludeIndex: true}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := Write(&withoutIndex, geoms, &Options{IncludeIndex: false}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if withoutIndex.Len() >= withIndex.Len() {
		t.Errorf("expected file without index to be smaller: %d >= %d", withoutIndex.Len(), withIndex.Len())
	}
}

func TestWriteFeatures_NilCollection(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFeatures(&buf, nil, nil); !errors.Is(err, ErrNilGeometry) {
		t.Errorf("expected ErrNilGeometry, got %v", err)
	}
}

func TestWriteFeatures_EmptyCollection(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFeatures(&buf, geojson.NewFeatureCollection(), nil); !errors.Is(err, ErrNilGeometry) {
		t.Errorf("expected ErrNilGeometry, got %v", err)
	}
}

func TestWriteFeature_Single(t *testing.T) {
	f := geojson.NewFeature(orb.Point{1, 2})
	f.Properties = geojson.Properties{"name": "single"}

	var buf bytes.Buffer
	if err := WriteFeature(&buf, f, nil); err != nil {
		t.Fatalf("WriteFeature failed: %v", err)
	}

	reader, err := NewReaderFromData(buf.Bytes())
	if err != nil {
		t.Fatalf("NewReaderFromData failed: %v", err)
	}
	features, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if name, _ := features[0].Properties.Get("name"); name != "single" {
		t.Errorf("expected name 'single', got %v", name)
	}
}

func TestWriteFeature_Nil(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFeature(&buf, nil, nil); !errors.Is(err, ErrNilGeometry) {
		t.Errorf("expected ErrNilGeometry, got %v", err)
	}
}

func TestWriteFeatures_NilGeometry(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{1, 2}))
	fc.Append(&geojson.Feature{Type: "Feature", Properties: geojson.Properties{}})

	var buf bytes.Buffer
	err := WriteFeatures(&buf, fc, nil)
	if !errors.Is(err, geoserde.ErrMissingGeometry) {
		t.Errorf("expected ErrMissingGeometry, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written for a failed dataset")
	}
}

// emitPoint sends one point feature with the given properties to w.
func emitPoint(t *testing.T, w *Writer, idx uint64, p orb.Point, props func() error) {
	t.Helper()

	steps := []func() error{
		func() error { return w.FeatureBegin(idx) },
		w.GeometryBegin,
		func() error { return w.Begin(geoserde.KindPoint, 1, true, 0) },
		func() error { return w.Xy(p[0], p[1], 0) },
		func() error { return w.End(geoserde.KindPoint, true, 0) },
		w.GeometryEnd,
		w.PropertiesBegin,
		props,
		w.PropertiesEnd,
		func() error { return w.FeatureEnd(idx) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("feature %d: %v", idx, err)
		}
	}
}

func property(w *Writer, idx int, name string, v geoserde.ColumnValue) func() error {
	return func() error {
		_, err := w.Property(idx, name, v)
		return err
	}
}

func TestWriter_ColumnPromotion(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)

	if err := w.DatasetBegin("promoted"); err != nil {
		t.Fatal(err)
	}
	emitPoint(t, w, 0, orb.Point{0, 0}, property(w, 0, "v", geoserde.LongValue(1)))
	emitPoint(t, w, 1, orb.Point{1, 1}, property(w, 0, "v", geoserde.DoubleValue(2.5)))
	if err := w.DatasetEnd(); err != nil {
		t.Fatalf("DatasetEnd failed: %v", err)
	}
	if w.BytesWritten() != buf.Len() {
		t.Errorf("expected %d bytes written, got %d", buf.Len(), w.BytesWritten())
	}

	reader, err := NewReaderFromData(buf.Bytes())
	if err != nil {
		t.Fatalf("NewReaderFromData failed: %v", err)
	}
	header := reader.Header()
	if header.Name != "promoted" {
		t.Errorf("expected layer name 'promoted', got %q", header.Name)
	}
	if len(header.Columns) != 1 || header.Columns[0].Type != "Double" {
		t.Fatalf("expected one Double column, got %+v", header.Columns)
	}

	features, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	values := make(map[json.Number]bool)
	for _, f := range features {
		v, _ := f.Properties.Get("v")
		values[v.(json.Number)] = true
	}
	if !values["1.0"] || !values["2.5"] {
		t.Errorf("expected values 1.0 and 2.5, got %v", values)
	}
}

func TestWriter_SparseColumns(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)

	if err := w.DatasetBegin(""); err != nil {
		t.Fatal(err)
	}
	emitPoint(t, w, 0, orb.Point{0, 0}, property(w, 2, "c", geoserde.LongValue(5)))
	if err := w.DatasetEnd(); err != nil {
		t.Fatalf("DatasetEnd failed: %v", err)
	}

	reader, err := NewReaderFromData(buf.Bytes())
	if err != nil {
		t.Fatalf("NewReaderFromData failed: %v", err)
	}
	if cols := reader.Header().Columns; len(cols) != 1 || cols[0].Name != "c" {
		t.Fatalf("expected only column c, got %+v", cols)
	}
	features, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if v, _ := features[0].Properties.Get("c"); v != json.Number("5") {
		t.Errorf("expected c=5, got %v", v)
	}
}

func TestWriter_Errors(t *testing.T) {
	t.Run("name mismatch", func(t *testing.T) {
		w := NewWriter(&bytes.Buffer{}, nil)
		if _, err := w.Property(0, "a", geoserde.LongValue(1)); err != nil {
			t.Fatal(err)
		}
		if _, err := w.Property(0, "b", geoserde.LongValue(1)); !errors.Is(err, ErrPropertyMismatch) {
			t.Errorf("expected ErrPropertyMismatch, got %v", err)
		}
	})

	t.Run("negative index", func(t *testing.T) {
		w := NewWriter(&bytes.Buffer{}, nil)
		if _, err := w.Property(-1, "a", geoserde.LongValue(1)); !errors.Is(err, ErrInvalidColumn) {
			t.Errorf("expected ErrInvalidColumn, got %v", err)
		}
	})

	t.Run("feature without geometry", func(t *testing.T) {
		w := NewWriter(&bytes.Buffer{}, nil)
		if err := w.FeatureBegin(0); err != nil {
			t.Fatal(err)
		}
		if err := w.FeatureEnd(0); !errors.Is(err, geoserde.ErrMissingGeometry) {
			t.Errorf("expected ErrMissingGeometry, got %v", err)
		}
	})

	t.Run("empty dataset", func(t *testing.T) {
		w := NewWriter(&bytes.Buffer{}, nil)
		if err := w.DatasetBegin("empty"); err != nil {
			t.Fatal(err)
		}
		if err := w.DatasetEnd(); !errors.Is(err, ErrNilGeometry) {
			t.Errorf("expected ErrNilGeometry, got %v", err)
		}
	})
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if !opts.IncludeIndex {
		t.Error("expected IncludeIndex to be true by default")
	}
	if opts.Name != "" || opts.CRS != nil {
		t.Errorf("unexpected defaults %+v", opts)
	}
}

func TestWGS84(t *testing.T) {
	crs := WGS84()
	if crs.Code != 4326 {
		t.Errorf("expected code 4326, got %d", crs.Code)
	}
	if crs.Name != "WGS 84" {
		t.Errorf("expected name 'WGS 84', got %q", crs.Name)
	}
}
