package geoserde

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
)

func feedPoint(t *testing.T, p FeatureProcessor, x, y float64) {
	t.Helper()
	if err := p.GeometryBegin(); err != nil {
		t.Fatal(err)
	}
	if err := ProcessGeometry(orb.Point{x, y}, p); err != nil {
		t.Fatal(err)
	}
	if err := p.GeometryEnd(); err != nil {
		t.Fatal(err)
	}
}

func feedProperties(t *testing.T, p FeatureProcessor, names []string, values []ColumnValue) {
	t.Helper()
	if err := p.PropertiesBegin(); err != nil {
		t.Fatal(err)
	}
	for i := range names {
		if _, err := p.Property(i, names[i], values[i]); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.PropertiesEnd(); err != nil {
		t.Fatal(err)
	}
}

func TestFeatureCollector_Lifecycle(t *testing.T) {
	c := NewFeatureCollector()
	if err := c.DatasetBegin("cities"); err != nil {
		t.Fatal(err)
	}
	for i, name := range []string{"Lisbon", "Porto"} {
		if err := c.FeatureBegin(uint64(i)); err != nil {
			t.Fatal(err)
		}
		feedPoint(t, c, float64(i), float64(i)+0.5)
		feedProperties(t, c, []string{"name", "rank"}, []ColumnValue{StringValue(name), IntValue(int32(i))})
		if err := c.FeatureEnd(uint64(i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.DatasetEnd(); err != nil {
		t.Fatal(err)
	}

	if len(c.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(c.Features))
	}
	second := c.Features[1]
	if second.Geometry != (orb.Point{1, 1.5}) {
		t.Errorf("unexpected geometry %v", second.Geometry)
	}
	if v, _ := second.Properties.Get("name"); v != "Porto" {
		t.Errorf("expected Porto, got %v", v)
	}
	if keys := second.Properties.Keys(); len(keys) != 2 || keys[0] != "name" || keys[1] != "rank" {
		t.Errorf("expected insertion order, got %v", keys)
	}
}

func TestFeatureCollector_MissingGeometry(t *testing.T) {
	c := NewFeatureCollector()
	if err := c.FeatureBegin(7); err != nil {
		t.Fatal(err)
	}
	feedProperties(t, c, []string{"name"}, []ColumnValue{StringValue("orphan")})

	err := c.FeatureEnd(7)
	var missing *MissingGeometryError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingGeometryError, got %v", err)
	}
	if missing.Feature != 7 {
		t.Errorf("expected feature 7, got %d", missing.Feature)
	}
	if !errors.Is(err, ErrMissingGeometry) {
		t.Error("expected ErrMissingGeometry in chain")
	}
	if len(c.Features) != 0 {
		t.Error("no feature must be emitted")
	}
}

func TestFeatureCollector_GeometryBeginWithoutFeatureBegin(t *testing.T) {
	c := NewFeatureCollector()
	feedPoint(t, c, 1, 1)
	feedPoint(t, c, 2, 2)
	feedProperties(t, c, []string{"a"}, []ColumnValue{BoolValue(true)})
	if err := c.FeatureEnd(0); err != nil {
		t.Fatal(err)
	}
	if c.Features[0].Geometry != (orb.Point{2, 2}) {
		t.Errorf("expected the later geometry to replace the earlier one, got %v", c.Features[0].Geometry)
	}
}

func TestFeatureCollector_ResetsBetweenFeatures(t *testing.T) {
	c := NewFeatureCollector()

	if err := c.FeatureBegin(0); err != nil {
		t.Fatal(err)
	}
	feedPoint(t, c, 0, 0)
	feedProperties(t, c, []string{"only_first"}, []ColumnValue{LongValue(1)})
	if err := c.FeatureEnd(0); err != nil {
		t.Fatal(err)
	}

	if err := c.FeatureBegin(1); err != nil {
		t.Fatal(err)
	}
	// a dangling property without PropertiesBegin must not leak into the next feature
	if _, err := c.Property(0, "stale", LongValue(9)); err != nil {
		t.Fatal(err)
	}
	if err := c.FeatureBegin(1); err != nil {
		t.Fatal(err)
	}
	feedPoint(t, c, 1, 1)
	if err := c.FeatureEnd(1); err != nil {
		t.Fatal(err)
	}

	second := c.Features[1]
	if second.Properties.Len() != 0 {
		t.Errorf("expected no properties, got %v", second.Properties.Keys())
	}
	if _, ok := c.Features[0].Properties.Get("only_first"); !ok {
		t.Error("first feature lost its properties")
	}
}

func TestFeatureCollectorFunc_SinkError(t *testing.T) {
	stop := errors.New("stop")
	var seen []uint64
	c := NewFeatureCollectorFunc(func(idx uint64, f Feature) error {
		seen = append(seen, idx)
		return stop
	})
	if err := c.FeatureBegin(4); err != nil {
		t.Fatal(err)
	}
	feedPoint(t, c, 1, 2)
	if err := c.FeatureEnd(4); !errors.Is(err, stop) {
		t.Errorf("expected sink error, got %v", err)
	}
	if len(seen) != 1 || seen[0] != 4 {
		t.Errorf("unexpected sink calls %v", seen)
	}
	if len(c.Features) != 0 {
		t.Error("streaming collector must not retain features")
	}
}
