package geoserde

import "github.com/paulmach/orb"

// GeometryAssembler accumulates the geometry events of one feature.
// Geometry callbacks are promoted from the embedded GeomBuilder unchanged.
type GeometryAssembler struct {
	*GeomBuilder
}

// NewGeometryAssembler returns an assembler with an empty builder.
func NewGeometryAssembler() GeometryAssembler {
	return GeometryAssembler{GeomBuilder: NewGeomBuilder()}
}

// BeginGeometry resets the builder for a new feature.
func (a GeometryAssembler) BeginGeometry() {
	a.Reset()
}

// TakeGeometry returns and clears the assembled geometry. It fails with a
// MissingGeometryError when nothing was built for the current feature.
func (a GeometryAssembler) TakeGeometry(feature uint64) (orb.Geometry, int, error) {
	g, srid, ok := a.Geometry()
	if !ok {
		return nil, 0, &MissingGeometryError{Feature: feature}
	}
	return g, srid, nil
}
