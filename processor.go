package geoserde

// GeomKind identifies a geometry primitive in begin/end events.
type GeomKind int

// Geometry primitive kinds.
const (
	KindPoint GeomKind = iota + 1
	KindMultiPoint
	KindLineString
	KindMultiLineString
	KindPolygon
	KindMultiPolygon
	KindGeometryCollection
	KindCircularString
	KindCompoundCurve
	KindCurvePolygon
	KindMultiCurve
	KindMultiSurface
	KindTriangle
	KindPolyhedralSurface
	KindTIN
)

var kindNames = map[GeomKind]string{
	KindPoint:              "Point",
	KindMultiPoint:         "MultiPoint",
	KindLineString:         "LineString",
	KindMultiLineString:    "MultiLineString",
	KindPolygon:            "Polygon",
	KindMultiPolygon:       "MultiPolygon",
	KindGeometryCollection: "GeometryCollection",
	KindCircularString:     "CircularString",
	KindCompoundCurve:      "CompoundCurve",
	KindCurvePolygon:       "CurvePolygon",
	KindMultiCurve:         "MultiCurve",
	KindMultiSurface:       "MultiSurface",
	KindTriangle:           "Triangle",
	KindPolyhedralSurface:  "PolyhedralSurface",
	KindTIN:                "TIN",
}

func (k GeomKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Dimensions describes which ordinates a processor wants to receive.
type Dimensions struct {
	Z bool
	M bool
}

// Coord is a single coordinate tuple. Z and M are only meaningful when the
// matching Has flag is set.
type Coord struct {
	X, Y float64
	Z, M float64
	HasZ bool
	HasM bool
}

// GeomProcessor receives geometry events.
//
// Every primitive is reported as a Begin/End pair carrying its kind. size is
// the number of direct children (coordinates or parts) when known, 0
// otherwise. tagged is set for LineString, Polygon and Triangle when they are
// a geometry on their own rather than a part of a parent primitive.
type GeomProcessor interface {
	Dimensions() Dimensions
	Srid(srid int) error
	Xy(x, y float64, idx int) error
	Coordinate(c Coord, idx int) error
	EmptyPoint(idx int) error
	Begin(kind GeomKind, size int, tagged bool, idx int) error
	End(kind GeomKind, tagged bool, idx int) error
}

// PropertyProcessor receives typed property values. It reports whether the
// driver should continue with the remaining properties of the feature.
type PropertyProcessor interface {
	Property(idx int, name string, value ColumnValue) (bool, error)
}

// FeatureProcessor receives a whole dataset in strictly nested order:
//
//	DatasetBegin
//	  FeatureBegin GeometryBegin <geometry events> GeometryEnd
//	    PropertiesBegin <Property>* PropertiesEnd
//	  FeatureEnd
//	DatasetEnd
type FeatureProcessor interface {
	GeomProcessor
	PropertyProcessor

	DatasetBegin(name string) error
	DatasetEnd() error
	FeatureBegin(idx uint64) error
	FeatureEnd(idx uint64) error
	PropertiesBegin() error
	PropertiesEnd() error
	GeometryBegin() error
	GeometryEnd() error
}

// Datasource drives a FeatureProcessor over a whole dataset.
type Datasource interface {
	Process(p FeatureProcessor) error
}

// FeatureSource drives a FeatureProcessor over a single feature, from
// FeatureBegin to FeatureEnd.
type FeatureSource interface {
	ProcessFeature(p FeatureProcessor, idx uint64) error
}

// NopProcessor implements FeatureProcessor by ignoring every event.
// Embed it to implement only the callbacks of interest.
type NopProcessor struct{}

var _ FeatureProcessor = NopProcessor{}

func (NopProcessor) Dimensions() Dimensions                          { return Dimensions{} }
func (NopProcessor) Srid(int) error                                  { return nil }
func (NopProcessor) Xy(float64, float64, int) error                  { return nil }
func (NopProcessor) Coordinate(Coord, int) error                     { return nil }
func (NopProcessor) EmptyPoint(int) error                            { return nil }
func (NopProcessor) Begin(GeomKind, int, bool, int) error            { return nil }
func (NopProcessor) End(GeomKind, bool, int) error                   { return nil }
func (NopProcessor) Property(int, string, ColumnValue) (bool, error) { return true, nil }
func (NopProcessor) DatasetBegin(string) error                       { return nil }
func (NopProcessor) DatasetEnd() error                               { return nil }
func (NopProcessor) FeatureBegin(uint64) error                       { return nil }
func (NopProcessor) FeatureEnd(uint64) error                         { return nil }
func (NopProcessor) PropertiesBegin() error                          { return nil }
func (NopProcessor) PropertiesEnd() error                            { return nil }
func (NopProcessor) GeometryBegin() error                            { return nil }
func (NopProcessor) GeometryEnd() error                              { return nil }
