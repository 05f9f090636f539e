// Package geojsonio drives the geoserde feature protocol from and into
// GeoJSON documents.
package geojsonio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/paulmach/orb/geojson"
	geoserde "github.com/tingold/orb-geoserde"
)

var (
	// ErrUnknownType is returned for a document whose "type" is neither a
	// feature, a feature collection nor a geometry.
	ErrUnknownType = errors.New("geojsonio: unknown GeoJSON type")

	errNoFeatures = errors.New("geojsonio: feature collection without features member")
)

type rawDocument struct {
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Features   []json.RawMessage `json:"features"`
	Geometry   json.RawMessage   `json:"geometry"`
	Properties json.RawMessage   `json:"properties"`
}

// Reader holds a parsed GeoJSON document: a FeatureCollection, a single
// Feature or a bare geometry. Property order follows the source text.
type Reader struct {
	name     string
	features []geoserde.Feature
}

var (
	_ geoserde.Datasource    = (*Reader)(nil)
	_ geoserde.FeatureSource = (*Reader)(nil)
)

// NewReader parses the GeoJSON document read from r.
func NewReader(r io.Reader) (*Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return FromBytes(data)
}

// FromBytes parses a GeoJSON document.
func FromBytes(data []byte) (*Reader, error) {
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	switch doc.Type {
	case "FeatureCollection":
		if doc.Features == nil {
			return nil, errNoFeatures
		}
		r := &Reader{name: doc.Name, features: make([]geoserde.Feature, 0, len(doc.Features))}
		for i, raw := range doc.Features {
			f, err := parseFeature(raw)
			if err != nil {
				return nil, fmt.Errorf("geojsonio: feature %d: %w", i, err)
			}
			r.features = append(r.features, f)
		}
		return r, nil

	case "Feature":
		f, err := parseFeature(data)
		if err != nil {
			return nil, fmt.Errorf("geojsonio: %w", err)
		}
		return &Reader{features: []geoserde.Feature{f}}, nil

	case "Point", "MultiPoint", "LineString", "MultiLineString",
		"Polygon", "MultiPolygon", "GeometryCollection":
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("geojsonio: %w", err)
		}
		return &Reader{features: []geoserde.Feature{{
			Geometry:   g.Geometry(),
			Properties: geoserde.NewProperties(),
		}}}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, doc.Type)
}

func parseFeature(data []byte) (geoserde.Feature, error) {
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return geoserde.Feature{}, err
	}
	if doc.Type != "Feature" {
		return geoserde.Feature{}, fmt.Errorf("%w: %q where a Feature was expected", ErrUnknownType, doc.Type)
	}

	f := geoserde.Feature{Properties: geoserde.NewProperties()}
	if isPresent(doc.Geometry) {
		g, err := geojson.UnmarshalGeometry(doc.Geometry)
		if err != nil {
			return geoserde.Feature{}, err
		}
		f.Geometry = g.Geometry()
	}
	if isPresent(doc.Properties) {
		props, err := geoserde.DecodeObject(doc.Properties)
		if err != nil {
			return geoserde.Feature{}, fmt.Errorf("properties: %w", err)
		}
		f.Properties = props
	}
	return f, nil
}

func isPresent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// FromFeatureCollection reads an already decoded collection. Properties
// are reported in key order since geojson.Properties is unordered.
func FromFeatureCollection(fc *geojson.FeatureCollection) *Reader {
	r := &Reader{features: make([]geoserde.Feature, 0, len(fc.Features))}
	if name, ok := fc.ExtraMembers["name"].(string); ok {
		r.name = name
	}
	for _, gf := range fc.Features {
		if gf == nil {
			continue
		}
		keys := make([]string, 0, len(gf.Properties))
		for k := range gf.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		props := geoserde.NewProperties()
		for _, k := range keys {
			props.Set(k, gf.Properties[k])
		}
		r.features = append(r.features, geoserde.Feature{Geometry: gf.Geometry, Properties: props})
	}
	return r
}

// Name returns the collection name, if the document carried one.
func (r *Reader) Name() string {
	return r.name
}

// Len returns the number of features.
func (r *Reader) Len() int {
	return len(r.features)
}

// Features returns the parsed features.
func (r *Reader) Features() []geoserde.Feature {
	return r.features
}

// Process replays the document as one dataset. Property positions are
// allocated by name in first-seen order across the document; null values
// are not reported.
func (r *Reader) Process(p geoserde.FeatureProcessor) error {
	return geoserde.EncodeFeatures(p, r.features, geoserde.WithDatasetName(r.name))
}

// ProcessFeature replays the feature at idx on its own.
func (r *Reader) ProcessFeature(p geoserde.FeatureProcessor, idx uint64) error {
	if idx >= uint64(len(r.features)) {
		return fmt.Errorf("geojsonio: feature %d of %d", idx, len(r.features))
	}
	f := &r.features[idx]
	if f.Geometry == nil {
		return &geoserde.MissingGeometryError{Feature: idx}
	}
	return geoserde.NewDatasetEncoder(p).EncodeFeature(idx, f)
}
