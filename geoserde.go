// Package geoserde binds geospatial feature streams to Go types.
//
// A format driver (GeoJSON, FlatGeobuf, ...) pushes nested begin/end events
// for geometry primitives and typed property values into a FeatureProcessor.
// FeatureCollector assembles those events into Feature records, FeatureView
// exposes a Feature as an ordered field sequence and the structural decoder
// fills an arbitrary target type from it. The encode path walks values of any
// JSON-serializable type and replays them through the same protocol.
package geoserde

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// GeometryField is the reserved field name carrying a feature's geometry.
const GeometryField = "geometry"

// Common errors returned by this package.
var (
	ErrProtocol           = errors.New("geoserde: protocol violation")
	ErrMissingGeometry    = errors.New("geoserde: no geometry assembled for feature")
	ErrPropertyConversion = errors.New("geoserde: property conversion failed")
	ErrStructuralBinding  = errors.New("geoserde: structural binding failed")
	ErrSerialization      = errors.New("geoserde: serialization failed")
)

// Protocol violations detected while assembling geometries.
var (
	ErrUnbalancedGeometry   = fmt.Errorf("unbalanced geometry begin/end: %w", ErrProtocol)
	ErrUnexpectedCoordinate = fmt.Errorf("coordinate outside of a geometry primitive: %w", ErrProtocol)
	ErrEmptyPoint           = fmt.Errorf("empty points are not supported: %w", ErrProtocol)
	ErrNoCurrentField       = fmt.Errorf("field value requested before its name: %w", ErrProtocol)
)

// MissingGeometryError is returned when a feature boundary is reached
// without any geometry having been assembled.
type MissingGeometryError struct {
	Feature uint64 // Index of the offending feature
}

// Error implements the error interface.
func (e *MissingGeometryError) Error() string {
	return fmt.Sprintf("feature %d: %v", e.Feature, ErrMissingGeometry)
}

// Unwrap returns the underlying error type.
func (e *MissingGeometryError) Unwrap() error {
	return ErrMissingGeometry
}

// PropertyConversionError reports a typed property value that cannot be
// represented in the generic value model.
type PropertyConversionError struct {
	Index int    // Column index reported by the driver
	Name  string // Property name
	Err   error  // Underlying error
}

// Error implements the error interface.
func (e *PropertyConversionError) Error() string {
	return fmt.Sprintf("geoserde: property %q (column %d): %v", e.Name, e.Index, e.Err)
}

// Unwrap returns both the sentinel and the underlying error.
func (e *PropertyConversionError) Unwrap() []error {
	return []error{ErrPropertyConversion, e.Err}
}

// StructuralBindingError reports a target value that could not be built
// from a feature's fields.
type StructuralBindingError struct {
	Feature uint64 // Index of the feature being decoded
	Field   string // Field name, empty when the failure is not field specific
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *StructuralBindingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("geoserde: binding feature %d, field %q: %v", e.Feature, e.Field, e.Err)
	}
	return fmt.Sprintf("geoserde: binding feature %d: %v", e.Feature, e.Err)
}

// Unwrap returns both the sentinel and the underlying error.
func (e *StructuralBindingError) Unwrap() []error {
	return []error{ErrStructuralBinding, e.Err}
}

// SerializationError reports an input item that could not be expressed in
// the generic value model during encoding.
type SerializationError struct {
	Item int   // Position of the item in the input slice
	Err  error // Underlying error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("geoserde: serializing item %d: %v", e.Item, e.Err)
}

// Unwrap returns both the sentinel and the underlying error.
func (e *SerializationError) Unwrap() []error {
	return []error{ErrSerialization, e.Err}
}

// Options configures decoding and encoding.
type Options struct {
	Logger           zerolog.Logger // Debug logging of assembly and column allocation
	ErrorUnused      bool           // Fail when a feature carries a field the target does not declare
	ErrorUnset       bool           // Fail when a target field receives no value from the feature
	WeaklyTypedInput bool           // Allow lenient conversions (e.g. "42" into an int field)
	DatasetName      string         // Name passed to DatasetBegin when encoding
}

// Option mutates Options.
type Option func(*Options)

// DefaultOptions returns the default options.
func DefaultOptions() *Options {
	return &Options{
		Logger: zerolog.Nop(),
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithErrorUnused rejects features with fields unknown to the target type.
func WithErrorUnused(v bool) Option {
	return func(o *Options) { o.ErrorUnused = v }
}

// WithErrorUnset rejects features that leave a target field unset.
func WithErrorUnset(v bool) Option {
	return func(o *Options) { o.ErrorUnset = v }
}

// WithWeaklyTypedInput enables lenient scalar conversions when decoding.
func WithWeaklyTypedInput(v bool) Option {
	return func(o *Options) { o.WeaklyTypedInput = v }
}

// WithDatasetName sets the dataset name announced when encoding.
func WithDatasetName(name string) Option {
	return func(o *Options) { o.DatasetName = name }
}

func buildOptions(opts []Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}
