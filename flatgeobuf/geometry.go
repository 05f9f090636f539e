package flatgeobuf

import (
	"fmt"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	geoserde "github.com/tingold/orb-geoserde"
)

// orbToFGBGeometryType converts an orb.Geometry to its FlatGeobuf GeometryType.
func orbToFGBGeometryType(geom orb.Geometry) flattypes.GeometryType {
	switch geom.(type) {
	case orb.Point:
		return flattypes.GeometryTypePoint
	case orb.MultiPoint:
		return flattypes.GeometryTypeMultiPoint
	case orb.LineString:
		return flattypes.GeometryTypeLineString
	case orb.MultiLineString:
		return flattypes.GeometryTypeMultiLineString
	case orb.Ring:
		return flattypes.GeometryTypePolygon
	case orb.Polygon:
		return flattypes.GeometryTypePolygon
	case orb.MultiPolygon:
		return flattypes.GeometryTypeMultiPolygon
	case orb.Collection:
		return flattypes.GeometryTypeGeometryCollection
	case orb.Bound:
		return flattypes.GeometryTypePolygon
	default:
		return flattypes.GeometryTypeUnknown
	}
}

// geometryToFGB converts an orb.Geometry to a FlatGeobuf writer.Geometry.
func geometryToFGB(geom orb.Geometry, builder *flatbuffers.Builder) *writer.Geometry {
	if geom == nil {
		return nil
	}

	g := writer.NewGeometry(builder)

	switch v := geom.(type) {
	case orb.Point:
		g.SetType(flattypes.GeometryTypePoint)
		g.SetXY([]float64{v[0], v[1]})

	case orb.MultiPoint:
		g.SetType(flattypes.GeometryTypeMultiPoint)
		xy := make([]float64, 0, len(v)*2)
		for _, p := range v {
			xy = append(xy, p[0], p[1])
		}
		g.SetXY(xy)

	case orb.LineString:
		g.SetType(flattypes.GeometryTypeLineString)
		xy := lineStringToXY(v)
		g.SetXY(xy)

	case orb.MultiLineString:
		g.SetType(flattypes.GeometryTypeMultiLineString)
		xy, ends := multiLineStringToXYEnds(v)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.Ring:
		g.SetType(flattypes.GeometryTypePolygon)
		xy := ringToXY(v)
		g.SetXY(xy)
		g.SetEnds([]uint32{uint32(len(v))})

	case orb.Polygon:
		g.SetType(flattypes.GeometryTypePolygon)
		xy, ends := polygonToXYEnds(v)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.MultiPolygon:
		g.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			pg := writer.NewGeometry(builder)
			pg.SetType(flattypes.GeometryTypePolygon)
			xy, ends := polygonToXYEnds(poly)
			pg.SetXY(xy)
			pg.SetEnds(ends)
			parts = append(parts, *pg)
		}
		g.SetParts(parts)

	case orb.Collection:
		g.SetType(flattypes.GeometryTypeGeometryCollection)
		parts := make([]writer.Geometry, 0, len(v))
		for _, child := range v {
			childGeom := geometryToFGB(child, builder)
			if childGeom != nil {
				parts = append(parts, *childGeom)
			}
		}
		g.SetParts(parts)

	case orb.Bound:
		// Convert bound to a polygon (rectangle)
		g.SetType(flattypes.GeometryTypePolygon)
		poly := boundToPolygon(v)
		xy, ends := polygonToXYEnds(poly)
		g.SetXY(xy)
		g.SetEnds(ends)

	default:
		return nil
	}

	return g
}

// Helper functions for writing

func lineStringToXY(ls orb.LineString) []float64 {
	xy := make([]float64, 0, len(ls)*2)
	for _, p := range ls {
		xy = append(xy, p[0], p[1])
	}
	return xy
}

func ringToXY(r orb.Ring) []float64 {
	xy := make([]float64, 0, len(r)*2)
	for _, p := range r {
		xy = append(xy, p[0], p[1])
	}
	return xy
}

func multiLineStringToXYEnds(mls orb.MultiLineString) ([]float64, []uint32) {
	totalPoints := 0
	for _, ls := range mls {
		totalPoints += len(ls)
	}

	xy := make([]float64, 0, totalPoints*2)
	ends := make([]uint32, 0, len(mls))

	cumulative := uint32(0)
	for _, ls := range mls {
		for _, p := range ls {
			xy = append(xy, p[0], p[1])
		}
		cumulative += uint32(len(ls))
		ends = append(ends, cumulative)
	}

	return xy, ends
}

func polygonToXYEnds(poly orb.Polygon) ([]float64, []uint32) {
	totalPoints := 0
	for _, ring := range poly {
		totalPoints += len(ring)
	}

	xy := make([]float64, 0, totalPoints*2)
	ends := make([]uint32, 0, len(poly))

	cumulative := uint32(0)
	for _, ring := range poly {
		for _, p := range ring {
			xy = append(xy, p[0], p[1])
		}
		cumulative += uint32(len(ring))
		ends = append(ends, cumulative)
	}

	return xy, ends
}

func boundToPolygon(b orb.Bound) orb.Polygon {
	return orb.Polygon{
		orb.Ring{
			{b.Min[0], b.Min[1]},
			{b.Max[0], b.Min[1]},
			{b.Max[0], b.Max[1]},
			{b.Min[0], b.Max[1]},
			{b.Min[0], b.Min[1]},
		},
	}
}

// kindOf maps a FlatGeobuf geometry type to its protocol kind.
func kindOf(t flattypes.GeometryType) (geoserde.GeomKind, bool) {
	switch t {
	case flattypes.GeometryTypePoint:
		return geoserde.KindPoint, true
	case flattypes.GeometryTypeMultiPoint:
		return geoserde.KindMultiPoint, true
	case flattypes.GeometryTypeLineString:
		return geoserde.KindLineString, true
	case flattypes.GeometryTypeMultiLineString:
		return geoserde.KindMultiLineString, true
	case flattypes.GeometryTypePolygon:
		return geoserde.KindPolygon, true
	case flattypes.GeometryTypeMultiPolygon:
		return geoserde.KindMultiPolygon, true
	case flattypes.GeometryTypeGeometryCollection:
		return geoserde.KindGeometryCollection, true
	case flattypes.GeometryTypeCircularString:
		return geoserde.KindCircularString, true
	case flattypes.GeometryTypeCompoundCurve:
		return geoserde.KindCompoundCurve, true
	case flattypes.GeometryTypeCurvePolygon:
		return geoserde.KindCurvePolygon, true
	case flattypes.GeometryTypeMultiCurve:
		return geoserde.KindMultiCurve, true
	case flattypes.GeometryTypeMultiSurface:
		return geoserde.KindMultiSurface, true
	case flattypes.GeometryTypeTriangle:
		return geoserde.KindTriangle, true
	case flattypes.GeometryTypePolyhedralSurface:
		return geoserde.KindPolyhedralSurface, true
	case flattypes.GeometryTypeTIN:
		return geoserde.KindTIN, true
	}
	return 0, false
}

// partType is the type assumed for a part stored without its own type.
func partType(parent flattypes.GeometryType) flattypes.GeometryType {
	switch parent {
	case flattypes.GeometryTypeMultiPolygon:
		return flattypes.GeometryTypePolygon
	case flattypes.GeometryTypePolyhedralSurface:
		return flattypes.GeometryTypePolygon
	case flattypes.GeometryTypeTIN:
		return flattypes.GeometryTypeTriangle
	}
	return flattypes.GeometryTypeUnknown
}

// processGeometry replays a stored geometry as protocol events. headerType
// applies when the geometry does not carry its own type.
func processGeometry(g *flattypes.Geometry, headerType flattypes.GeometryType, p geoserde.GeomProcessor, tagged bool, idx int) error {
	t := g.Type()
	if t == flattypes.GeometryTypeUnknown {
		t = headerType
	}
	kind, ok := kindOf(t)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, flattypes.EnumNamesGeometryType[t])
	}

	switch kind {
	case geoserde.KindPoint:
		if g.XyLength() < 2 {
			return p.EmptyPoint(idx)
		}
		return emitRange(g, kind, 0, 1, p, tagged, idx)

	case geoserde.KindMultiPoint, geoserde.KindLineString, geoserde.KindCircularString:
		return emitRange(g, kind, 0, g.XyLength()/2, p, tagged, idx)

	case geoserde.KindPolygon, geoserde.KindTriangle, geoserde.KindMultiLineString:
		ends := ringEnds(g)
		if err := p.Begin(kind, len(ends), tagged, idx); err != nil {
			return err
		}
		start := 0
		for i, end := range ends {
			if err := emitRange(g, geoserde.KindLineString, start, end, p, false, i); err != nil {
				return err
			}
			start = end
		}
		return p.End(kind, tagged, idx)
	}

	// Everything else is a composite of parts.
	n := g.PartsLength()
	if n == 0 && kind == geoserde.KindMultiPolygon && g.XyLength() > 0 {
		// Single polygon stored inline.
		if err := p.Begin(kind, 1, tagged, idx); err != nil {
			return err
		}
		if err := processGeometry(g, flattypes.GeometryTypePolygon, p, false, 0); err != nil {
			return err
		}
		return p.End(kind, tagged, idx)
	}
	if err := p.Begin(kind, n, tagged, idx); err != nil {
		return err
	}
	childTagged := kind == geoserde.KindGeometryCollection
	for i := 0; i < n; i++ {
		var part flattypes.Geometry
		if !g.Parts(&part, i) {
			return fmt.Errorf("%w: missing part %d", ErrInvalidData, i)
		}
		if err := processGeometry(&part, partType(t), p, childTagged, i); err != nil {
			return err
		}
	}
	return p.End(kind, tagged, idx)
}

// ringEnds returns the end offsets (in coordinates) of every ring or line.
func ringEnds(g *flattypes.Geometry) []int {
	n := g.EndsLength()
	if n == 0 {
		if g.XyLength() < 2 {
			return nil
		}
		return []int{g.XyLength() / 2}
	}
	ends := make([]int, n)
	for i := range ends {
		ends[i] = int(g.Ends(i))
	}
	return ends
}

// emitRange emits the coordinates [start, end) as one primitive of kind.
func emitRange(g *flattypes.Geometry, kind geoserde.GeomKind, start, end int, p geoserde.GeomProcessor, tagged bool, idx int) error {
	if n := g.XyLength() / 2; end > n {
		return fmt.Errorf("%w: coordinate %d beyond %d", ErrInvalidData, end, n)
	}
	if err := p.Begin(kind, end-start, tagged, idx); err != nil {
		return err
	}
	dims := p.Dimensions()
	hasZ := dims.Z && g.ZLength() >= end
	hasM := dims.M && g.MLength() >= end
	for i := start; i < end; i++ {
		x, y := g.Xy(2*i), g.Xy(2*i+1)
		var err error
		if hasZ || hasM {
			c := geoserde.Coord{X: x, Y: y, HasZ: hasZ, HasM: hasM}
			if hasZ {
				c.Z = g.Z(i)
			}
			if hasM {
				c.M = g.M(i)
			}
			err = p.Coordinate(c, i-start)
		} else {
			err = p.Xy(x, y, i-start)
		}
		if err != nil {
			return err
		}
	}
	return p.End(kind, tagged, idx)
}

// collectionBound returns the combined bounding box of the geometries.
func collectionBound(geometries []orb.Geometry) orb.Bound {
	if len(geometries) == 0 {
		return orb.Bound{}
	}
	b := geometries[0].Bound()
	for _, g := range geometries[1:] {
		b = b.Union(g.Bound())
	}
	return b
}
