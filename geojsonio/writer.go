package geojsonio

import (
	"io"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb/geojson"
	geoserde "github.com/tingold/orb-geoserde"
)

// Writer is a geoserde.FeatureProcessor that builds a GeoJSON
// FeatureCollection. Values reported as JSON columns are embedded as
// nested JSON rather than as text. When an io.Writer is set the collection
// is written to it on DatasetEnd.
type Writer struct {
	*geoserde.FeatureCollector

	out       io.Writer
	fc        *geojson.FeatureCollection
	jsonNames []string
}

var _ geoserde.FeatureProcessor = (*Writer)(nil)

// NewWriter returns a Writer. out may be nil.
func NewWriter(out io.Writer, opts ...geoserde.Option) *Writer {
	w := &Writer{
		out: out,
		fc:  geojson.NewFeatureCollection(),
	}
	w.FeatureCollector = geoserde.NewFeatureCollectorFunc(w.appendFeature, opts...)
	return w
}

// FeatureCollection returns the collection built so far.
func (w *Writer) FeatureCollection() *geojson.FeatureCollection {
	return w.fc
}

// DatasetBegin starts a new collection named name.
func (w *Writer) DatasetBegin(name string) error {
	w.fc = geojson.NewFeatureCollection()
	if name != "" {
		w.fc.ExtraMembers = geojson.Properties{"name": name}
	}
	return w.FeatureCollector.DatasetBegin(name)
}

// FeatureBegin implements geoserde.FeatureProcessor.
func (w *Writer) FeatureBegin(idx uint64) error {
	w.jsonNames = w.jsonNames[:0]
	return w.FeatureCollector.FeatureBegin(idx)
}

// PropertiesBegin implements geoserde.FeatureProcessor.
func (w *Writer) PropertiesBegin() error {
	w.jsonNames = w.jsonNames[:0]
	return w.FeatureCollector.PropertiesBegin()
}

// Property implements geoserde.FeatureProcessor.
func (w *Writer) Property(idx int, name string, value geoserde.ColumnValue) (bool, error) {
	if value.Type == flattypes.ColumnTypeJson {
		w.jsonNames = append(w.jsonNames, name)
	}
	return w.FeatureCollector.Property(idx, name, value)
}

// DatasetEnd writes the collection when an output is set.
func (w *Writer) DatasetEnd() error {
	if err := w.FeatureCollector.DatasetEnd(); err != nil {
		return err
	}
	if w.out == nil {
		return nil
	}
	data, err := w.fc.MarshalJSON()
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.out.Write(data)
	return err
}

func (w *Writer) appendFeature(_ uint64, f geoserde.Feature) error {
	props := f.Properties.Map()
	for _, name := range w.jsonNames {
		s, ok := props[name].(string)
		if !ok {
			continue
		}
		v, err := geoserde.DecodeValue([]byte(s))
		if err != nil {
			// not valid JSON, keep the text
			continue
		}
		props[name] = v
	}
	w.jsonNames = w.jsonNames[:0]

	gf := geojson.NewFeature(f.Geometry)
	gf.Properties = props
	w.fc.Append(gf)
	return nil
}
