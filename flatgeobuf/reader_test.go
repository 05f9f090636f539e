package flatgeobuf

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	geoserde "github.com/tingold/orb-geoserde"
)

func TestNewReaderFromData_Invalid(t *testing.T) {
	// Invalid data (not a FlatGeobuf file)
	_, err := NewReaderFromData([]byte("not a flatgeobuf"))
	if err == nil {
		t.Error("expected error for invalid data")
	}
}

func TestNewReaderFromData_Empty(t *testing.T) {
	_, err := NewReaderFromData([]byte{})
	if err == nil {
		t.Error("expected error for empty data")
	}
}

func TestNewReader_NonExistent(t *testing.T) {
	_, err := NewReader("/nonexistent/path/to/file.fgb")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

// writeTempFile writes fc to a file in a temporary directory.
func writeTempFile(t *testing.T, fc *geojson.FeatureCollection, opts *Options) string {
	t.Helper()

	tmpFile := filepath.Join(t.TempDir(), "test.fgb")
	file, err := os.Create(tmpFile)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	err = WriteFeatures(file, fc, opts)
	_ = file.Close()
	if err != nil {
		t.Fatalf("WriteFeatures failed: %v", err)
	}
	return tmpFile
}

func pointCollection(n int) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := 0; i < n; i++ {
		f := geojson.NewFeature(orb.Point{float64(i), float64(i * 2)})
		f.Properties = geojson.Properties{
			"index": i,
			"name":  "point",
		}
		fc.Append(f)
	}
	return fc
}

func TestRoundTrip_Points(t *testing.T) {
	tmpFile := writeTempFile(t, pointCollection(10), &Options{
		Name:         "test_points",
		IncludeIndex: true,
	})

	reader, err := NewReader(tmpFile)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = reader.Close() }()

	header := reader.Header()
	if header == nil {
		t.Fatal("expected non-nil header")
	}
	if header.Name != "test_points" {
		t.Errorf("expected name 'test_points', got %q", header.Name)
	}
	if header.GeometryType != "Point" {
		t.Errorf("expected geometry type 'Point', got %q", header.GeometryType)
	}
	if !header.HasIndex {
		t.Error("expected HasIndex to be true")
	}
	if header.FeaturesCount != 10 {
		t.Errorf("expected 10 features, got %d", header.FeaturesCount)
	}

	features, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(features) != 10 {
		t.Fatalf("expected 10 features, got %d", len(features))
	}

	// The index stores features in Hilbert order.
	seen := make(map[string]orb.Point)
	for _, f := range features {
		idx, ok := f.Properties.Get("index")
		if !ok {
			t.Fatal("missing index property")
		}
		name, _ := f.Properties.Get("name")
		if name != "point" {
			t.Errorf("expected name 'point', got %v", name)
		}
		if keys := f.Properties.Keys(); len(keys) != 2 || keys[0] != "index" {
			t.Errorf("expected properties in column order, got %v", keys)
		}
		seen[string(idx.(json.Number))] = f.Geometry.(orb.Point)
	}
	if p := seen["7"]; p != (orb.Point{7, 14}) {
		t.Errorf("expected feature 7 at {7 14}, got %v", p)
	}
}

func TestRoundTrip_Polygons(t *testing.T) {
	fc := geojson.NewFeatureCollection()

	poly1 := orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}
	f1 := geojson.NewFeature(poly1)
	f1.Properties = geojson.Properties{"name": "square1"}
	fc.Append(f1)

	poly2 := orb.Polygon{{{20, 20}, {30, 20}, {30, 30}, {20, 30}, {20, 20}}}
	f2 := geojson.NewFeature(poly2)
	f2.Properties = geojson.Properties{"name": "square2"}
	fc.Append(f2)

	reader, err := NewReader(writeTempFile(t, fc, nil))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = reader.Close() }()

	header := reader.Header()
	if header.GeometryType != "Polygon" {
		t.Errorf("expected geometry type 'Polygon', got %q", header.GeometryType)
	}
	if header.Envelope != [4]float64{0, 0, 30, 30} {
		t.Errorf("unexpected envelope %v", header.Envelope)
	}

	features, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(features))
	}
	for _, f := range features {
		name, _ := f.Properties.Get("name")
		want := poly1
		if name == "square2" {
			want = poly2
		}
		if !f.Geometry.(orb.Polygon).Equal(want) {
			t.Errorf("%v: expected %v, got %v", name, want, f.Geometry)
		}
	}
}

func TestRoundTrip_Search(t *testing.T) {
	reader, err := NewReader(writeTempFile(t, pointCollection(100), nil))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = reader.Close() }()

	bounds := orb.Bound{Min: orb.Point{10, 20}, Max: orb.Point{20, 40}}
	results, err := reader.Search(bounds)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results.Len() != 11 {
		t.Errorf("expected 11 features in bounds, got %d", results.Len())
	}

	c := geoserde.NewFeatureCollector()
	if err := results.Process(c); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	for _, f := range c.Features {
		if !bounds.Contains(f.Geometry.(orb.Point)) {
			t.Errorf("feature %v outside search bounds", f.Geometry)
		}
	}
}

func TestSearch_NoIndex(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{1, 2}))

	reader, err := NewReader(writeTempFile(t, fc, &Options{IncludeIndex: false}))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = reader.Close() }()

	if reader.Header().HasIndex {
		t.Error("expected HasIndex to be false")
	}
	if _, err := reader.Search(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}); !errors.Is(err, ErrNoIndex) {
		t.Errorf("expected ErrNoIndex, got %v", err)
	}
	if _, err := reader.ReadAll(); !errors.Is(err, ErrNoIndex) {
		t.Errorf("expected ErrNoIndex from ReadAll, got %v", err)
	}
}

func TestReadGeometries(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}}))
	fc.Append(geojson.NewFeature(orb.LineString{{5, 5}, {6, 7}}))

	reader, err := NewReader(writeTempFile(t, fc, nil))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = reader.Close() }()

	geoms, err := reader.ReadGeometries()
	if err != nil {
		t.Fatalf("ReadGeometries failed: %v", err)
	}
	if len(geoms) != 2 {
		t.Fatalf("expected 2 geometries, got %d", len(geoms))
	}
	for _, g := range geoms {
		if _, ok := g.(orb.LineString); !ok {
			t.Errorf("expected LineString, got %T", g)
		}
	}
}

func TestSearchGeometries(t *testing.T) {
	reader, err := NewReader(writeTempFile(t, pointCollection(20), nil))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = reader.Close() }()

	geoms, err := reader.SearchGeometries(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{4.5, 9}})
	if err != nil {
		t.Fatalf("SearchGeometries failed: %v", err)
	}
	if len(geoms) != 5 {
		t.Errorf("expected 5 geometries, got %d", len(geoms))
	}
}

func TestReader_Close(t *testing.T) {
	reader, err := NewReader(writeTempFile(t, pointCollection(1), nil))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if err := reader.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestHeader_ColumnInfo(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{1, 2})
	f.Properties = geojson.Properties{
		"name":   "test",
		"value":  42,
		"active": true,
		"score":  3.14,
	}
	fc.Append(f)

	reader, err := NewReader(writeTempFile(t, fc, &Options{IncludeIndex: true}))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = reader.Close() }()

	header := reader.Header()
	if header == nil {
		t.Fatal("expected non-nil header")
	}
	if len(header.Columns) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(header.Columns))
	}

	columnMap := make(map[string]string)
	for _, col := range header.Columns {
		columnMap[col.Name] = col.Type
	}
	expected := map[string]string{
		"name":   "String",
		"value":  "Long",
		"active": "Bool",
		"score":  "Double",
	}
	for name, typ := range expected {
		if columnMap[name] != typ {
			t.Errorf("expected %s column to be %s, got %q", name, typ, columnMap[name])
		}
	}
}

func TestReader_CRS(t *testing.T) {
	reader, err := NewReader(writeTempFile(t, pointCollection(2), &Options{IncludeIndex: true, CRS: WGS84()}))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = reader.Close() }()

	header := reader.Header()
	if header.CRS == nil || header.CRS.Code != 4326 {
		t.Fatalf("expected EPSG:4326, got %+v", header.CRS)
	}

	features, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	for _, f := range features {
		if f.SRID != 4326 {
			t.Errorf("expected SRID 4326, got %d", f.SRID)
		}
	}
}

func TestFeatureSet_ProcessFeature(t *testing.T) {
	reader, err := NewReader(writeTempFile(t, pointCollection(3), nil))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer func() { _ = reader.Close() }()

	fs, err := reader.Features()
	if err != nil {
		t.Fatalf("Features failed: %v", err)
	}
	if fs.Len() != 3 {
		t.Fatalf("expected 3 features, got %d", fs.Len())
	}

	type record struct {
		Geometry orb.Point `json:"geometry"`
		Index    int       `json:"index"`
		Name     string    `json:"name"`
	}
	rec, err := geoserde.FeatureToStruct[record](fs)
	if err != nil {
		t.Fatalf("FeatureToStruct failed: %v", err)
	}
	if rec.Name != "point" || rec.Geometry != (orb.Point{float64(rec.Index), float64(rec.Index * 2)}) {
		t.Errorf("unexpected record %+v", rec)
	}

	if err := fs.ProcessFeature(geoserde.NewFeatureCollector(), 3); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

type city struct {
	Geometry   orb.Point `json:"geometry"`
	Name       string    `json:"name"`
	Population int64     `json:"population"`
	Capital    bool      `json:"capital"`
	Area       float64   `json:"area"`
}

func TestFromDatasource_RoundTrip(t *testing.T) {
	cities := []city{
		{orb.Point{8.55, 47.37}, "Zurich", 415367, false, 87.88},
		{orb.Point{7.45, 46.95}, "Bern", 134794, true, 51.62},
		{orb.Point{6.14, 46.2}, "Geneva", 203856, false, 15.93},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf, nil)
	if err := geoserde.Encode(w, cities, geoserde.WithDatasetName("cities")); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	reader, err := NewReaderFromData(buf.Bytes())
	if err != nil {
		t.Fatalf("NewReaderFromData failed: %v", err)
	}
	if name := reader.Header().Name; name != "cities" {
		t.Errorf("expected layer name from dataset, got %q", name)
	}

	got, err := geoserde.FromDatasource[city](reader)
	if err != nil {
		t.Fatalf("FromDatasource failed: %v", err)
	}
	sort.Slice(got, func(i, j int) bool { return got[i].Population > got[j].Population })
	sort.Slice(cities, func(i, j int) bool { return cities[i].Population > cities[j].Population })
	if len(got) != len(cities) {
		t.Fatalf("expected %d cities, got %d", len(cities), len(got))
	}
	for i := range cities {
		if got[i] != cities[i] {
			t.Errorf("expected %+v, got %+v", cities[i], got[i])
		}
	}
}
