package flatgeobuf

import (
	"fmt"
	"io"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	geoserde "github.com/tingold/orb-geoserde"
	"github.com/tingold/orb-geoserde/geojsonio"
)

// row is one buffered feature.
type row struct {
	geom  orb.Geometry
	cells []cell
	props []byte
}

// Writer is a geoserde.FeatureProcessor that serializes the dataset it
// receives. FlatGeobuf stores its schema and index ahead of the features,
// so features are buffered and the file is written on DatasetEnd.
//
// Column positions come from the property indices of the protocol: the
// name seen first at a position names the column, and its type is widened
// as later rows report other types.
type Writer struct {
	geoserde.GeometryAssembler

	w       io.Writer
	opts    *Options
	name    string
	columns []column
	seen    []bool
	rows    []row
	cells   []cell
	written int
	log     zerolog.Logger
}

var _ geoserde.FeatureProcessor = (*Writer)(nil)

// NewWriter returns a Writer that writes to w on DatasetEnd.
func NewWriter(w io.Writer, opts *Options) *Writer {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Writer{
		GeometryAssembler: geoserde.NewGeometryAssembler(),
		w:                 w,
		opts:              opts,
		log:               opts.Logger,
	}
}

// BytesWritten returns the size of the written file.
func (w *Writer) BytesWritten() int {
	return w.written
}

// DatasetBegin records the dataset name as the default layer name.
func (w *Writer) DatasetBegin(name string) error {
	w.name = name
	w.columns, w.seen, w.rows = nil, nil, nil
	return nil
}

// FeatureBegin implements geoserde.FeatureProcessor.
func (w *Writer) FeatureBegin(uint64) error {
	w.BeginGeometry()
	w.cells = nil
	return nil
}

// GeometryBegin implements geoserde.FeatureProcessor.
func (w *Writer) GeometryBegin() error {
	w.BeginGeometry()
	return nil
}

// GeometryEnd implements geoserde.FeatureProcessor.
func (w *Writer) GeometryEnd() error {
	return nil
}

// PropertiesBegin implements geoserde.FeatureProcessor.
func (w *Writer) PropertiesBegin() error {
	w.cells = nil
	return nil
}

// PropertiesEnd implements geoserde.FeatureProcessor.
func (w *Writer) PropertiesEnd() error {
	return nil
}

// Property registers the column at idx and buffers the value.
func (w *Writer) Property(idx int, name string, value geoserde.ColumnValue) (bool, error) {
	if idx < 0 {
		return false, fmt.Errorf("%w: negative column index %d", ErrInvalidColumn, idx)
	}
	for len(w.columns) <= idx {
		w.columns = append(w.columns, column{})
		w.seen = append(w.seen, false)
	}
	col := &w.columns[idx]
	if !w.seen[idx] {
		col.name, col.typ = name, value.Type
		w.seen[idx] = true
		w.log.Debug().Str("column", name).Int("index", idx).Str("type", flattypes.EnumNamesColumnType[value.Type]).Msg("column registered")
	} else {
		if col.name != name {
			return false, fmt.Errorf("%w: column %d is %q, got %q", ErrPropertyMismatch, idx, col.name, name)
		}
		col.typ = promoteColumnType(col.typ, value.Type)
	}
	w.cells = append(w.cells, cell{col: idx, value: value})
	return true, nil
}

// FeatureEnd buffers the feature. A feature without geometry is an error.
func (w *Writer) FeatureEnd(idx uint64) error {
	g, _, err := w.TakeGeometry(idx)
	if err != nil {
		return err
	}
	w.rows = append(w.rows, row{geom: g, cells: w.cells})
	w.cells = nil
	return nil
}

// DatasetEnd writes the buffered dataset.
func (w *Writer) DatasetEnd() error {
	if len(w.rows) == 0 {
		return ErrNilGeometry
	}

	// Drop positions that never carried a value.
	remap := make([]int, len(w.columns))
	columns := make([]column, 0, len(w.columns))
	for i, c := range w.columns {
		remap[i] = -1
		if w.seen[i] {
			remap[i] = len(columns)
			columns = append(columns, c)
		}
	}

	geometries := make([]orb.Geometry, len(w.rows))
	for i := range w.rows {
		r := &w.rows[i]
		geometries[i] = r.geom
		for j := range r.cells {
			r.cells[j].col = remap[r.cells[j].col]
		}
		props, err := encodeProperties(r.cells, columns)
		if err != nil {
			return fmt.Errorf("feature %d: %w", i, err)
		}
		r.props = props
	}

	// Determine geometry type from first geometry
	geomType := orbToFGBGeometryType(geometries[0])
	for _, g := range geometries[1:] {
		if orbToFGBGeometryType(g) != geomType {
			geomType = flattypes.GeometryTypeUnknown
			break
		}
	}

	opts := *w.opts
	if opts.Name == "" {
		opts.Name = w.name
	}

	n, err := writeWithGenerator(w.w, &rowGenerator{rows: w.rows}, geomType, columns, &opts)
	if err != nil {
		return err
	}
	w.written = n
	w.log.Debug().
		Str("layer", opts.Name).
		Int("features", len(w.rows)).
		Int("columns", len(columns)).
		Str("geometry", flattypes.EnumNamesGeometryType[geomType]).
		Interface("bbox", collectionBound(geometries)).
		Int("bytes", n).
		Msg("flatgeobuf written")
	return nil
}

// Write writes geometries to FlatGeobuf format.
// This is a convenience function for writing geometry-only data without properties.
func Write(w io.Writer, geometries []orb.Geometry, opts *Options) error {
	features := make([]geoserde.Feature, 0, len(geometries))
	for _, g := range geometries {
		if g == nil {
			continue // Skip nil geometries
		}
		features = append(features, geoserde.Feature{Geometry: g, Properties: geoserde.NewProperties()})
	}
	if len(features) == 0 {
		return ErrNilGeometry
	}
	return geoserde.EncodeFeatures(NewWriter(w, opts), features)
}

// WriteFeatures writes a FeatureCollection to FlatGeobuf format.
func WriteFeatures(w io.Writer, fc *geojson.FeatureCollection, opts *Options) error {
	if fc == nil || len(fc.Features) == 0 {
		return ErrNilGeometry
	}
	return geojsonio.FromFeatureCollection(fc).Process(NewWriter(w, opts))
}

// WriteFeature writes a single feature to FlatGeobuf format.
func WriteFeature(w io.Writer, f *geojson.Feature, opts *Options) error {
	if f == nil {
		return ErrNilGeometry
	}

	fc := &geojson.FeatureCollection{
		Features: []*geojson.Feature{f},
	}

	return WriteFeatures(w, fc, opts)
}

// writeWithGenerator handles the common writing logic.
func writeWithGenerator(
	w io.Writer,
	gen writer.FeatureGenerator,
	geomType flattypes.GeometryType,
	columns []column,
	opts *Options,
) (int, error) {
	builder := flatbuffers.NewBuilder(4096)

	// Create header
	header := writer.NewHeader(builder)
	header.SetGeometryType(geomType)

	if opts.Name != "" {
		header.SetName(opts.Name)
	}
	if opts.Description != "" {
		header.SetDescription(opts.Description)
	}

	if len(columns) > 0 {
		cols := make([]*writer.Column, 0, len(columns))
		for _, c := range columns {
			col := writer.NewColumn(builder)
			col.SetName(c.name)
			col.SetTitle(c.name) // Set title to match name for JS library compatibility
			col.SetType(c.typ)
			col.SetNullable(true) // Allow null values
			cols = append(cols, col)
		}
		header.SetColumns(cols)
	}

	// Set CRS if provided
	if opts.CRS != nil {
		crs := writer.NewCrs(builder)
		crs.SetOrg("EPSG") // Default organization
		if opts.CRS.Code > 0 {
			crs.SetCode(int32(opts.CRS.Code))
		}
		if opts.CRS.Name != "" {
			crs.SetName(opts.CRS.Name)
		}
		if opts.CRS.Description != "" {
			crs.SetDescription(opts.CRS.Description)
		}
		// WKT can be stored in description if needed
		if opts.CRS.WKT != "" && opts.CRS.Description == "" {
			crs.SetDescription(opts.CRS.WKT)
		}
		header.SetCrs(crs)
	}

	// Create writer with or without index
	fgbWriter := writer.NewWriter(header, opts.IncludeIndex, gen, nil)

	// Write to destination
	n, err := fgbWriter.Write(w)
	return int(n), err
}

// rowGenerator feeds buffered rows to the FlatGeobuf writer.
type rowGenerator struct {
	rows  []row
	index int
}

func (g *rowGenerator) Generate() *writer.Feature {
	for g.index < len(g.rows) {
		r := g.rows[g.index]
		g.index++

		builder := flatbuffers.NewBuilder(1024)
		fgbGeom := geometryToFGB(r.geom, builder)
		if fgbGeom == nil {
			continue // Skip unsupported geometries
		}

		feature := writer.NewFeature(builder)
		feature.SetGeometry(fgbGeom)
		if len(r.props) > 0 {
			feature.SetProperties(r.props)
		}
		return feature
	}
	return nil
}
