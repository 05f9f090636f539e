package geoserde

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/paulmach/orb"
)

// FieldSource is an ordered sequence of named fields, read one name at a
// time. A value may only be requested for the name just returned, and
// callers may skip values they do not need.
type FieldSource interface {
	NextFieldName() (string, bool)
	NextFieldValue(name string) (interface{}, error)
}

// FeatureView presents a Feature as a field sequence: the geometry field
// first, then the properties in insertion order. A property named like the
// geometry field is shadowed by it.
type FeatureView struct {
	feature *Feature
	keys    []string
	pos     int
	current string
	geom    interface{}
}

var _ FieldSource = (*FeatureView)(nil)

// NewFeatureView returns a cursor positioned before the first field.
func NewFeatureView(f *Feature) *FeatureView {
	keys := make([]string, 0, f.Properties.Len()+1)
	keys = append(keys, GeometryField)
	for _, k := range f.Properties.Keys() {
		if k != GeometryField {
			keys = append(keys, k)
		}
	}
	return &FeatureView{feature: f, keys: keys, pos: -1}
}

// NextFieldName advances the cursor. It reports false once every field has
// been visited.
func (v *FeatureView) NextFieldName() (string, bool) {
	if v.pos+1 >= len(v.keys) {
		v.pos = len(v.keys)
		v.current = ""
		return "", false
	}
	v.pos++
	v.current = v.keys[v.pos]
	return v.current, true
}

// NextFieldValue returns the value of the field last returned by
// NextFieldName. The geometry is handed out as a GeoJSON geometry in the
// generic value model, properties as stored.
func (v *FeatureView) NextFieldValue(name string) (interface{}, error) {
	if v.current == "" {
		return nil, ErrNoCurrentField
	}
	if name == GeometryField && v.current == GeometryField {
		if v.geom == nil {
			g, err := GeometryValue(v.feature.Geometry)
			if err != nil {
				return nil, err
			}
			v.geom = g
		}
		return v.geom, nil
	}
	if value, ok := v.feature.Properties.Get(name); ok && name != GeometryField {
		return value, nil
	}
	return nil, fmt.Errorf("no value found for field %q", name)
}

// Decode builds out from the fields of src. out must be a non-nil pointer.
// Fields the target does not declare are skipped without reading their
// value, unless ErrorUnused is set.
func Decode(src FieldSource, out interface{}, opts ...Option) error {
	return decodeFields(src, out, buildOptions(opts))
}

func decodeFields(src FieldSource, out interface{}, o *Options) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("decode target must be a non-nil pointer, got %T", out)
	}
	wanted := declaredFields(rv.Type().Elem())

	fields := make(map[string]interface{})
	for {
		name, ok := src.NextFieldName()
		if !ok {
			break
		}
		if wanted != nil && !wanted.has(name) {
			if o.ErrorUnused {
				return &StructuralBindingError{Field: name, Err: fmt.Errorf("unknown field %q", name)}
			}
			continue
		}
		value, err := src.NextFieldValue(name)
		if err != nil {
			return &StructuralBindingError{Field: name, Err: err}
		}
		fields[name] = value
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		Squash:           true,
		ErrorUnused:      o.ErrorUnused,
		ErrorUnset:       o.ErrorUnset,
		WeaklyTypedInput: o.WeaklyTypedInput,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			jsonTextHook,
			orbGeometryHook,
			jsonUnmarshalerHook,
		),
	})
	if err != nil {
		return &StructuralBindingError{Err: err}
	}
	if err := dec.Decode(fields); err != nil {
		return &StructuralBindingError{Err: err}
	}
	return nil
}

// fieldSet holds the field names a struct target declares. A nil set
// accepts every name.
type fieldSet map[string]struct{}

func (s fieldSet) has(name string) bool {
	if _, ok := s[name]; ok {
		return true
	}
	for k := range s {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func declaredFields(t reflect.Type) fieldSet {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	set := make(fieldSet)
	collectFields(t, set)
	return set
}

func collectFields(t reflect.Type, set fieldSet) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" && tag == "-" {
			continue
		}
		ft := sf.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if sf.Anonymous && name == "" && ft.Kind() == reflect.Struct {
			collectFields(ft, set)
			continue
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		set[name] = struct{}{}
	}
}

var (
	jsonUnmarshalerType = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()
	orbGeometryType     = reflect.TypeOf((*orb.Geometry)(nil)).Elem()
)

// orbGeometryHook turns a GeoJSON geometry value into an orb type when the
// target is orb.Geometry or one of its concrete types.
func orbGeometryHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.Map || !to.Implements(orbGeometryType) {
		return data, nil
	}
	g, err := GeometryFromValue(data)
	if err != nil {
		return nil, err
	}
	gv := reflect.ValueOf(g)
	if !gv.Type().AssignableTo(to) {
		return nil, fmt.Errorf("geometry is a %s, target is %s", g.GeoJSONType(), to)
	}
	return g, nil
}

// jsonTextHook parses JSON text held in a string when the target expects a
// map, slice or struct.
func jsonTextHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	s, ok := data.(string)
	if !ok || from.Kind() != reflect.String {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
	default:
		return data, nil
	}
	if to.Kind() == reflect.Slice && to.Elem().Kind() == reflect.Uint8 {
		return data, nil
	}
	if reflect.PointerTo(to).Implements(jsonUnmarshalerType) {
		return data, nil
	}
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return data, nil
	}
	v, err := DecodeValue([]byte(trimmed))
	if err != nil {
		return data, nil
	}
	return v, nil
}

// jsonUnmarshalerHook fills targets implementing json.Unmarshaler, such as
// geojson.Geometry or time.Time, through their JSON form.
func jsonUnmarshalerHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from == to {
		return data, nil
	}
	target := to
	isPtr := to.Kind() == reflect.Pointer
	if isPtr {
		target = to.Elem()
	}
	if !reflect.PointerTo(target).Implements(jsonUnmarshalerType) {
		return data, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	ptr := reflect.New(target)
	if err := ptr.Interface().(json.Unmarshaler).UnmarshalJSON(b); err != nil {
		return nil, err
	}
	if isPtr {
		return ptr.Interface(), nil
	}
	return ptr.Elem().Interface(), nil
}
