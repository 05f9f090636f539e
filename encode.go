package geoserde

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
)

// ColumnIndex assigns stable column positions to property names for the
// duration of one encode call. Positions are handed out in first-seen
// order and never change.
type ColumnIndex struct {
	index map[string]int
	names []string
}

// NewColumnIndex returns an empty table.
func NewColumnIndex() *ColumnIndex {
	return &ColumnIndex{index: make(map[string]int)}
}

// Resolve returns the position of name, allocating the next one if the
// name was never seen. added reports a fresh allocation.
func (c *ColumnIndex) Resolve(name string) (idx int, added bool) {
	if i, ok := c.index[name]; ok {
		return i, false
	}
	idx = len(c.names)
	c.index[name] = idx
	c.names = append(c.names, name)
	return idx, true
}

// Lookup returns the position of name without allocating.
func (c *ColumnIndex) Lookup(name string) (int, bool) {
	i, ok := c.index[name]
	return i, ok
}

// Names returns the known names ordered by position.
func (c *ColumnIndex) Names() []string {
	return append([]string(nil), c.names...)
}

// Len returns the number of allocated positions.
func (c *ColumnIndex) Len() int {
	return len(c.names)
}

// DatasetEncoder replays features into a FeatureProcessor.
type DatasetEncoder struct {
	p       FeatureProcessor
	columns *ColumnIndex
	log     zerolog.Logger
}

// NewDatasetEncoder returns an encoder writing to p with a fresh column
// table.
func NewDatasetEncoder(p FeatureProcessor, opts ...Option) *DatasetEncoder {
	o := buildOptions(opts)
	return &DatasetEncoder{
		p:       p,
		columns: NewColumnIndex(),
		log:     o.Logger,
	}
}

// Columns returns the column table built so far.
func (e *DatasetEncoder) Columns() *ColumnIndex {
	return e.columns
}

// EncodeFeature emits one feature as FeatureBegin ... FeatureEnd.
func (e *DatasetEncoder) EncodeFeature(idx uint64, f *Feature) error {
	p := e.p
	if err := p.FeatureBegin(idx); err != nil {
		return err
	}
	if err := p.GeometryBegin(); err != nil {
		return err
	}
	if f.SRID != 0 {
		if err := p.Srid(f.SRID); err != nil {
			return err
		}
	}
	if err := ProcessGeometry(f.Geometry, p); err != nil {
		return err
	}
	if err := p.GeometryEnd(); err != nil {
		return err
	}
	if err := p.PropertiesBegin(); err != nil {
		return err
	}

	var propErr error
	f.Properties.Range(func(name string, value interface{}) bool {
		if name == GeometryField {
			return true
		}
		cv, ok, err := InferColumnValue(value)
		if err != nil {
			propErr = &SerializationError{Item: int(idx), Err: fmt.Errorf("property %q: %w", name, err)}
			return false
		}
		if !ok {
			return true
		}
		col, added := e.columns.Resolve(name)
		if added {
			e.log.Debug().Str("column", name).Int("index", col).Msg("column allocated")
		}
		more, err := p.Property(col, name, cv)
		if err != nil {
			propErr = err
			return false
		}
		return more
	})
	if propErr != nil {
		return propErr
	}

	if err := p.PropertiesEnd(); err != nil {
		return err
	}
	return p.FeatureEnd(idx)
}

// Encode writes items to p as one dataset. Each item is marshalled to JSON
// and split into the geometry member and the remaining properties.
func Encode[T any](p FeatureProcessor, items []T, opts ...Option) error {
	o := buildOptions(opts)
	enc := NewDatasetEncoder(p, opts...)

	if err := p.DatasetBegin(o.DatasetName); err != nil {
		return err
	}
	for i := range items {
		f, err := toFeature(items[i])
		if err != nil {
			return &SerializationError{Item: i, Err: err}
		}
		if err := enc.EncodeFeature(uint64(i), f); err != nil {
			return err
		}
	}
	return p.DatasetEnd()
}

// EncodeFeatures writes already assembled features to p as one dataset.
func EncodeFeatures(p FeatureProcessor, features []Feature, opts ...Option) error {
	o := buildOptions(opts)
	enc := NewDatasetEncoder(p, opts...)

	if err := p.DatasetBegin(o.DatasetName); err != nil {
		return err
	}
	for i := range features {
		if features[i].Geometry == nil {
			return &MissingGeometryError{Feature: uint64(i)}
		}
		if err := enc.EncodeFeature(uint64(i), &features[i]); err != nil {
			return err
		}
	}
	return p.DatasetEnd()
}

// toFeature round-trips v through the generic value model. A geometry field
// holding an orb type is taken as is, since its JSON form is bare
// coordinates. The geometry member is matched the way decoding matches it:
// exactly first, then without regard to case.
func toFeature(v interface{}) (*Feature, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	props, err := DecodeObject(b)
	if err != nil {
		return nil, err
	}
	key, found := geometryKey(props)
	g, ok := orbGeometryField(reflect.ValueOf(v))
	if !ok {
		if !found {
			return nil, fmt.Errorf("missing %q member", GeometryField)
		}
		raw, _ := props.Get(key)
		if raw == nil {
			return nil, fmt.Errorf("missing %q member", GeometryField)
		}
		if g, err = GeometryFromValue(raw); err != nil {
			return nil, err
		}
	}
	if found {
		props.Delete(key)
	}
	return &Feature{Geometry: g, Properties: props}, nil
}

// geometryKey returns the member of props holding the geometry.
func geometryKey(props *Properties) (string, bool) {
	if _, ok := props.Get(GeometryField); ok {
		return GeometryField, true
	}
	for _, k := range props.Keys() {
		if strings.EqualFold(k, GeometryField) {
			return k, true
		}
	}
	return "", false
}

// orbGeometryField returns the value of the struct field bound to the
// geometry member, if it holds an orb geometry. Embedded structs are
// searched like their fields were declared inline.
func orbGeometryField(rv reflect.Value) (orb.Geometry, bool) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if tag == "-" {
			continue
		}
		if sf.Anonymous && name == "" {
			if g, ok := orbGeometryField(rv.Field(i)); ok {
				return g, true
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if !strings.EqualFold(name, GeometryField) {
			continue
		}
		fv := rv.Field(i)
		if !fv.CanInterface() {
			continue
		}
		if g, ok := fv.Interface().(orb.Geometry); ok && g != nil {
			return g, true
		}
	}
	return nil, false
}
