package geoserde

import (
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
)

// Feature is one assembled record: a geometry and its properties.
type Feature struct {
	Geometry   orb.Geometry
	SRID       int
	Properties *Properties
}

type collectorState int

const (
	stateIdle collectorState = iota
	stateGeometry
	stateProperties
	stateReady
)

func (s collectorState) String() string {
	switch s {
	case stateGeometry:
		return "assembling-geometry"
	case stateProperties:
		return "collecting-properties"
	case stateReady:
		return "feature-ready"
	default:
		return "idle"
	}
}

// FeatureCollector implements FeatureProcessor. It assembles one Feature per
// FeatureEnd and hands it to its sink.
type FeatureCollector struct {
	GeometryAssembler
	*PropertyCollector

	// Features holds the assembled features when no sink was given.
	Features []Feature

	sink  func(idx uint64, f Feature) error
	state collectorState
	log   zerolog.Logger
}

var _ FeatureProcessor = (*FeatureCollector)(nil)

// NewFeatureCollector returns a collector that appends features to Features.
func NewFeatureCollector(opts ...Option) *FeatureCollector {
	c := newFeatureCollector(buildOptions(opts))
	c.sink = func(_ uint64, f Feature) error {
		c.Features = append(c.Features, f)
		return nil
	}
	return c
}

// NewFeatureCollectorFunc returns a collector that passes each assembled
// feature to fn. An error from fn aborts processing.
func NewFeatureCollectorFunc(fn func(idx uint64, f Feature) error, opts ...Option) *FeatureCollector {
	c := newFeatureCollector(buildOptions(opts))
	c.sink = fn
	return c
}

func newFeatureCollector(o *Options) *FeatureCollector {
	return &FeatureCollector{
		GeometryAssembler: NewGeometryAssembler(),
		PropertyCollector: NewPropertyCollector(),
		log:               o.Logger,
	}
}

// DatasetBegin implements FeatureProcessor.
func (c *FeatureCollector) DatasetBegin(name string) error {
	c.log.Debug().Str("dataset", name).Msg("dataset begin")
	return nil
}

// DatasetEnd implements FeatureProcessor.
func (c *FeatureCollector) DatasetEnd() error {
	return nil
}

// FeatureBegin resets both the geometry and the property state.
func (c *FeatureCollector) FeatureBegin(_ uint64) error {
	c.BeginGeometry()
	c.BeginProperties()
	c.state = stateIdle
	return nil
}

// GeometryBegin resets the geometry state only. Some drivers report
// geometries without a preceding FeatureBegin.
func (c *FeatureCollector) GeometryBegin() error {
	c.BeginGeometry()
	c.state = stateGeometry
	return nil
}

// GeometryEnd implements FeatureProcessor.
func (c *FeatureCollector) GeometryEnd() error {
	return nil
}

// PropertiesBegin resets the property state only.
func (c *FeatureCollector) PropertiesBegin() error {
	c.BeginProperties()
	c.state = stateProperties
	return nil
}

// PropertiesEnd implements FeatureProcessor.
func (c *FeatureCollector) PropertiesEnd() error {
	return nil
}

// FeatureEnd assembles the feature and hands it to the sink.
func (c *FeatureCollector) FeatureEnd(idx uint64) error {
	g, srid, err := c.TakeGeometry(idx)
	if err != nil {
		c.log.Debug().Uint64("feature", idx).Stringer("state", c.state).Err(err).Msg("feature incomplete")
		c.state = stateIdle
		return err
	}
	f := Feature{
		Geometry:   g,
		SRID:       srid,
		Properties: c.TakeProperties(),
	}
	c.state = stateReady
	c.log.Debug().
		Uint64("feature", idx).
		Str("geometry", g.GeoJSONType()).
		Int("properties", f.Properties.Len()).
		Msg("feature assembled")

	err = c.sink(idx, f)
	c.state = stateIdle
	return err
}
