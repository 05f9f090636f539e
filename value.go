package geoserde

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Properties is a property map that remembers insertion order.
// Overwriting a key keeps its original position.
type Properties struct {
	keys   []string
	values map[string]interface{}
}

// NewProperties returns an empty property map.
func NewProperties() *Properties {
	return &Properties{values: make(map[string]interface{})}
}

// Set stores value under name.
func (p *Properties) Set(name string, value interface{}) {
	if p.values == nil {
		p.values = make(map[string]interface{})
	}
	if _, ok := p.values[name]; !ok {
		p.keys = append(p.keys, name)
	}
	p.values[name] = value
}

// Get returns the value stored under name.
func (p *Properties) Get(name string) (interface{}, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[name]
	return v, ok
}

// Delete removes name.
func (p *Properties) Delete(name string) {
	if p == nil {
		return
	}
	if _, ok := p.values[name]; !ok {
		return
	}
	delete(p.values, name)
	for i, k := range p.keys {
		if k == name {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of properties.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Keys returns the property names in insertion order.
func (p *Properties) Keys() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.keys...)
}

// Range calls fn for each property in insertion order until fn returns false.
func (p *Properties) Range(fn func(name string, value interface{}) bool) {
	if p == nil {
		return
	}
	for _, k := range p.keys {
		if !fn(k, p.values[k]) {
			return
		}
	}
}

// Map returns the properties as geojson.Properties.
func (p *Properties) Map() geojson.Properties {
	out := make(geojson.Properties, p.Len())
	p.Range(func(name string, value interface{}) bool {
		out[name] = value
		return true
	})
	return out
}

// MarshalJSON writes the properties as an object in insertion order.
func (p *Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	var err error
	p.Range(func(name string, value interface{}) bool {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		var b []byte
		if b, err = json.Marshal(name); err != nil {
			return false
		}
		buf.Write(b)
		buf.WriteByte(':')
		if b, err = json.Marshal(value); err != nil {
			return false
		}
		buf.Write(b)
		return true
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the properties with the members of a JSON object,
// keeping source order.
func (p *Properties) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeObject(data)
	if err != nil {
		return err
	}
	*p = *decoded
	return nil
}

var errNotAnObject = errors.New("value is not a JSON object")

// DecodeObject decodes a JSON object into ordered Properties. Member values
// use the generic value model: numbers are json.Number, nested objects are
// plain maps.
func DecodeObject(data []byte) (*Properties, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errNotAnObject
	}

	props := NewProperties()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("decoding member %q: %w", key, err)
		}
		props.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON object")
	}
	return props, nil
}

// DecodeValue decodes any JSON value into the generic value model.
func DecodeValue(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// GeometryValue re-expresses g in the generic value model as a GeoJSON
// geometry object.
func GeometryValue(g orb.Geometry) (interface{}, error) {
	b, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		return nil, err
	}
	return DecodeValue(b)
}

// GeometryFromValue reads a GeoJSON geometry held in the generic value model.
func GeometryFromValue(v interface{}) (orb.Geometry, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	g, err := geojson.UnmarshalGeometry(b)
	if err != nil {
		return nil, err
	}
	geom := g.Geometry()
	if geom == nil {
		return nil, fmt.Errorf("%q is not a GeoJSON geometry", GeometryField)
	}
	return geom, nil
}
