package geoserde

import (
	"fmt"

	"github.com/paulmach/orb"
)

// frame is one open primitive on the builder stack.
type frame struct {
	kind     GeomKind
	tagged   bool
	points   []orb.Point
	children []orb.Geometry
}

// GeomBuilder implements GeomProcessor and assembles the events of a single
// geometry into an orb.Geometry. orb is two dimensional: Z and M ordinates
// are accepted and dropped. Curved primitives are kept as their control
// points.
type GeomBuilder struct {
	stack  []*frame
	geom   orb.Geometry
	srid   int
	hasGeo bool
}

var _ GeomProcessor = (*GeomBuilder)(nil)

// NewGeomBuilder returns an empty builder.
func NewGeomBuilder() *GeomBuilder {
	return &GeomBuilder{}
}

// Reset discards any partial or finished geometry.
func (b *GeomBuilder) Reset() {
	b.stack = b.stack[:0]
	b.geom = nil
	b.srid = 0
	b.hasGeo = false
}

// Geometry returns the finished geometry and its SRID, and clears the
// builder. ok is false when no complete geometry was built.
func (b *GeomBuilder) Geometry() (g orb.Geometry, srid int, ok bool) {
	g, srid, ok = b.geom, b.srid, b.hasGeo && len(b.stack) == 0
	b.Reset()
	if !ok {
		return nil, 0, false
	}
	return g, srid, true
}

// Dimensions reports that only X and Y are consumed.
func (b *GeomBuilder) Dimensions() Dimensions {
	return Dimensions{}
}

// Srid records the spatial reference of the geometry being built.
func (b *GeomBuilder) Srid(srid int) error {
	b.srid = srid
	return nil
}

// Xy adds a coordinate to the innermost open primitive.
func (b *GeomBuilder) Xy(x, y float64, _ int) error {
	if len(b.stack) == 0 {
		return ErrUnexpectedCoordinate
	}
	top := b.stack[len(b.stack)-1]
	switch top.kind {
	case KindPoint, KindMultiPoint, KindLineString, KindCircularString:
	default:
		return fmt.Errorf("%w: %s takes parts, not coordinates", ErrUnexpectedCoordinate, top.kind)
	}
	top.points = append(top.points, orb.Point{x, y})
	return nil
}

// Coordinate adds a coordinate, ignoring Z and M.
func (b *GeomBuilder) Coordinate(c Coord, idx int) error {
	return b.Xy(c.X, c.Y, idx)
}

// EmptyPoint fails: orb has no representation for an empty point.
func (b *GeomBuilder) EmptyPoint(_ int) error {
	return ErrEmptyPoint
}

// Begin opens a primitive.
func (b *GeomBuilder) Begin(kind GeomKind, size int, tagged bool, _ int) error {
	f := &frame{kind: kind, tagged: tagged}
	switch kind {
	case KindPoint, KindMultiPoint, KindLineString, KindCircularString:
		f.points = make([]orb.Point, 0, size)
	default:
		f.children = make([]orb.Geometry, 0, size)
	}
	b.stack = append(b.stack, f)
	return nil
}

// End closes the innermost primitive, which must be of the same kind.
func (b *GeomBuilder) End(kind GeomKind, _ bool, _ int) error {
	if len(b.stack) == 0 {
		return fmt.Errorf("%w: end of %s without begin", ErrUnbalancedGeometry, kind)
	}
	top := b.stack[len(b.stack)-1]
	if top.kind != kind {
		return fmt.Errorf("%w: end of %s while %s is open", ErrUnbalancedGeometry, kind, top.kind)
	}
	b.stack = b.stack[:len(b.stack)-1]

	g, err := top.build()
	if err != nil {
		return err
	}

	if len(b.stack) == 0 {
		b.geom = g
		b.hasGeo = true
		return nil
	}
	parent := b.stack[len(b.stack)-1]
	switch parent.kind {
	case KindMultiPoint:
		if p, ok := g.(orb.Point); ok {
			parent.points = append(parent.points, p)
			return nil
		}
	case KindPoint, KindLineString, KindCircularString:
		return fmt.Errorf("%w: %s cannot contain %s", ErrUnbalancedGeometry, parent.kind, kind)
	}
	parent.children = append(parent.children, g)
	return nil
}

func (f *frame) build() (orb.Geometry, error) {
	switch f.kind {
	case KindPoint:
		if len(f.points) != 1 {
			return nil, fmt.Errorf("%w: point with %d coordinates", ErrProtocol, len(f.points))
		}
		return f.points[0], nil

	case KindMultiPoint:
		return orb.MultiPoint(f.points), nil

	case KindLineString, KindCircularString:
		return orb.LineString(f.points), nil

	case KindCompoundCurve:
		var ls orb.LineString
		for _, c := range f.children {
			for _, p := range lineOf(c) {
				if len(ls) > 0 && ls[len(ls)-1] == p {
					continue
				}
				ls = append(ls, p)
			}
		}
		return ls, nil

	case KindPolygon, KindCurvePolygon, KindTriangle:
		poly := make(orb.Polygon, 0, len(f.children))
		for _, c := range f.children {
			poly = append(poly, orb.Ring(lineOf(c)))
		}
		return poly, nil

	case KindMultiLineString, KindMultiCurve:
		mls := make(orb.MultiLineString, 0, len(f.children))
		for _, c := range f.children {
			mls = append(mls, lineOf(c))
		}
		return mls, nil

	case KindMultiPolygon, KindMultiSurface, KindPolyhedralSurface, KindTIN:
		mp := make(orb.MultiPolygon, 0, len(f.children))
		for _, c := range f.children {
			switch v := c.(type) {
			case orb.Polygon:
				mp = append(mp, v)
			case orb.MultiPolygon:
				mp = append(mp, v...)
			}
		}
		return mp, nil

	case KindGeometryCollection:
		return orb.Collection(f.children), nil
	}
	return nil, fmt.Errorf("%w: unknown geometry kind %d", ErrProtocol, f.kind)
}

// lineOf returns the vertices of a linear child geometry.
func lineOf(g orb.Geometry) orb.LineString {
	switch v := g.(type) {
	case orb.LineString:
		return v
	case orb.Ring:
		return orb.LineString(v)
	case orb.Polygon:
		if len(v) > 0 {
			return orb.LineString(v[0])
		}
	case orb.Point:
		return orb.LineString{v}
	}
	return nil
}

// ProcessGeometry replays g as geometry events into p.
func ProcessGeometry(g orb.Geometry, p GeomProcessor) error {
	return processGeometry(g, p, true, 0)
}

func processGeometry(g orb.Geometry, p GeomProcessor, tagged bool, idx int) error {
	switch v := g.(type) {
	case orb.Point:
		if err := p.Begin(KindPoint, 1, tagged, idx); err != nil {
			return err
		}
		if err := p.Xy(v[0], v[1], 0); err != nil {
			return err
		}
		return p.End(KindPoint, tagged, idx)

	case orb.MultiPoint:
		if err := p.Begin(KindMultiPoint, len(v), tagged, idx); err != nil {
			return err
		}
		for i, pt := range v {
			if err := p.Xy(pt[0], pt[1], i); err != nil {
				return err
			}
		}
		return p.End(KindMultiPoint, tagged, idx)

	case orb.LineString:
		return processLine(v, p, tagged, idx)

	case orb.Ring:
		return processPolygon(orb.Polygon{v}, p, tagged, idx)

	case orb.Polygon:
		return processPolygon(v, p, tagged, idx)

	case orb.Bound:
		return processPolygon(v.ToPolygon(), p, tagged, idx)

	case orb.MultiLineString:
		if err := p.Begin(KindMultiLineString, len(v), tagged, idx); err != nil {
			return err
		}
		for i, ls := range v {
			if err := processLine(ls, p, false, i); err != nil {
				return err
			}
		}
		return p.End(KindMultiLineString, tagged, idx)

	case orb.MultiPolygon:
		if err := p.Begin(KindMultiPolygon, len(v), tagged, idx); err != nil {
			return err
		}
		for i, poly := range v {
			if err := processPolygon(poly, p, false, i); err != nil {
				return err
			}
		}
		return p.End(KindMultiPolygon, tagged, idx)

	case orb.Collection:
		if err := p.Begin(KindGeometryCollection, len(v), tagged, idx); err != nil {
			return err
		}
		for i, child := range v {
			if err := processGeometry(child, p, true, i); err != nil {
				return err
			}
		}
		return p.End(KindGeometryCollection, tagged, idx)
	}
	return fmt.Errorf("geoserde: unsupported geometry type %T", g)
}

func processLine(ls orb.LineString, p GeomProcessor, tagged bool, idx int) error {
	if err := p.Begin(KindLineString, len(ls), tagged, idx); err != nil {
		return err
	}
	for i, pt := range ls {
		if err := p.Xy(pt[0], pt[1], i); err != nil {
			return err
		}
	}
	return p.End(KindLineString, tagged, idx)
}

func processPolygon(poly orb.Polygon, p GeomProcessor, tagged bool, idx int) error {
	if err := p.Begin(KindPolygon, len(poly), tagged, idx); err != nil {
		return err
	}
	for i, ring := range poly {
		if err := processLine(orb.LineString(ring), p, false, i); err != nil {
			return err
		}
	}
	return p.End(KindPolygon, tagged, idx)
}
