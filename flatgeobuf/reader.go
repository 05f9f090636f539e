package flatgeobuf

import (
	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	geoserde "github.com/tingold/orb-geoserde"
)

// Reader provides read access to a FlatGeobuf file.
type Reader struct {
	fgb     *flatgeobuf.FlatGeoBuf
	columns []column
	log     zerolog.Logger
}

// NewReader creates a reader from a file path.
// The file is memory-mapped for efficient access.
func NewReader(path string) (*Reader, error) {
	fgb, err := flatgeobuf.New(path)
	if err != nil {
		return nil, err
	}

	return newReader(fgb), nil
}

// NewReaderFromData creates a reader from byte data.
func NewReaderFromData(data []byte) (*Reader, error) {
	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, err
	}

	return newReader(fgb), nil
}

func newReader(fgb *flatgeobuf.FlatGeoBuf) *Reader {
	r := &Reader{fgb: fgb, log: zerolog.Nop()}
	if h := fgb.Header(); h != nil {
		r.columns = make([]column, 0, h.ColumnsLength())
		for i := 0; i < h.ColumnsLength(); i++ {
			var col flattypes.Column
			if h.Columns(&col, i) {
				r.columns = append(r.columns, column{name: string(col.Name()), typ: col.Type()})
			}
		}
	}
	return r
}

// SetLogger sets the logger used for debug output.
func (r *Reader) SetLogger(l zerolog.Logger) {
	r.log = l
}

// Header returns metadata about the FlatGeobuf file.
func (r *Reader) Header() *Header {
	h := r.fgb.Header()
	if h == nil {
		return nil
	}

	header := &Header{
		Name:          string(h.Name()),
		Description:   string(h.Description()),
		FeaturesCount: h.FeaturesCount(),
		HasIndex:      h.IndexNodeSize() > 0,
	}

	// Geometry type
	header.GeometryType = flattypes.EnumNamesGeometryType[h.GeometryType()]

	// Envelope
	if h.EnvelopeLength() >= 4 {
		header.Envelope = [4]float64{
			h.Envelope(0),
			h.Envelope(1),
			h.Envelope(2),
			h.Envelope(3),
		}
	}

	// CRS
	var crs flattypes.Crs
	if h.Crs(&crs) != nil {
		header.CRS = &CRS{
			Code:        int(crs.Code()),
			Name:        string(crs.Name()),
			Description: string(crs.Description()),
		}
	}

	// Columns
	if colLen := h.ColumnsLength(); colLen > 0 {
		header.Columns = make([]ColumnInfo, 0, colLen)
		for i := 0; i < colLen; i++ {
			var col flattypes.Column
			if h.Columns(&col, i) {
				header.Columns = append(header.Columns, ColumnInfo{
					Name:        string(col.Name()),
					Type:        flattypes.EnumNamesColumnType[col.Type()],
					Title:       string(col.Title()),
					Description: string(col.Description()),
					Nullable:    col.Nullable(),
				})
			}
		}
	}

	return header
}

// Process replays every feature of the file into p. The official Go
// implementation can only iterate through the spatial index, so files
// without one yield ErrNoIndex.
func (r *Reader) Process(p geoserde.FeatureProcessor) error {
	fs, err := r.Features()
	if err != nil {
		return err
	}
	return fs.Process(p)
}

// Features returns every feature of the file.
func (r *Reader) Features() (*FeatureSet, error) {
	h := r.fgb.Header()
	if h.FeaturesCount() == 0 {
		return r.newFeatureSet(nil), nil
	}
	if h.IndexNodeSize() == 0 || h.EnvelopeLength() < 4 {
		return nil, ErrNoIndex
	}
	return r.search(h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3))
}

// Search performs a spatial query using the built-in index.
// The result holds the features whose bounding boxes intersect bounds.
func (r *Reader) Search(bounds orb.Bound) (*FeatureSet, error) {
	if r.fgb.Header().IndexNodeSize() == 0 {
		return nil, ErrNoIndex
	}
	return r.search(bounds.Min[0], bounds.Min[1], bounds.Max[0], bounds.Max[1])
}

func (r *Reader) search(minX, minY, maxX, maxY float64) (*FeatureSet, error) {
	features, err := r.fgb.Search(minX, minY, maxX, maxY)
	if err != nil {
		return nil, err
	}
	r.log.Debug().
		Floats64("bbox", []float64{minX, minY, maxX, maxY}).
		Int("features", len(features)).
		Msg("index search")
	return r.newFeatureSet(features), nil
}

// ReadAll assembles every feature of the file.
func (r *Reader) ReadAll() ([]geoserde.Feature, error) {
	c := geoserde.NewFeatureCollector(geoserde.WithLogger(r.log))
	if err := r.Process(c); err != nil {
		return nil, err
	}
	return c.Features, nil
}

// ReadGeometries reads all geometries without properties.
func (r *Reader) ReadGeometries() ([]orb.Geometry, error) {
	fs, err := r.Features()
	if err != nil {
		return nil, err
	}
	return fs.Geometries()
}

// SearchGeometries performs a spatial query returning only geometries.
func (r *Reader) SearchGeometries(bounds orb.Bound) ([]orb.Geometry, error) {
	fs, err := r.Search(bounds)
	if err != nil {
		return nil, err
	}
	return fs.Geometries()
}

// Close releases resources associated with the reader.
// This is important for memory-mapped files.
func (r *Reader) Close() error {
	// The FlatGeoBuf type doesn't expose a public Close method,
	// but the finalizer will clean up when garbage collected.
	// Setting to nil allows GC to collect it.
	r.fgb = nil
	return nil
}

func (r *Reader) newFeatureSet(features []*flattypes.Feature) *FeatureSet {
	fs := &FeatureSet{
		features: features,
		columns:  r.columns,
	}
	if h := r.fgb.Header(); h != nil {
		fs.name = string(h.Name())
		fs.geomType = h.GeometryType()
		var crs flattypes.Crs
		if h.Crs(&crs) != nil {
			fs.srid = int(crs.Code())
		}
	}
	return fs
}

// FeatureSet is a materialized selection of features. It is both a
// dataset source and a random access feature source.
type FeatureSet struct {
	name     string
	geomType flattypes.GeometryType
	srid     int
	columns  []column
	features []*flattypes.Feature
}

var (
	_ geoserde.Datasource    = (*FeatureSet)(nil)
	_ geoserde.FeatureSource = (*FeatureSet)(nil)
)

// Len returns the number of features in the set.
func (fs *FeatureSet) Len() int {
	return len(fs.features)
}

// Process replays the whole set as one dataset.
func (fs *FeatureSet) Process(p geoserde.FeatureProcessor) error {
	if err := p.DatasetBegin(fs.name); err != nil {
		return err
	}
	for i := range fs.features {
		if err := fs.ProcessFeature(p, uint64(i)); err != nil {
			return err
		}
	}
	return p.DatasetEnd()
}

// ProcessFeature replays the feature at idx.
func (fs *FeatureSet) ProcessFeature(p geoserde.FeatureProcessor, idx uint64) error {
	if idx >= uint64(len(fs.features)) {
		return ErrOutOfRange
	}
	f := fs.features[idx]

	if err := p.FeatureBegin(idx); err != nil {
		return err
	}

	var geomObj flattypes.Geometry
	if geom := f.Geometry(&geomObj); geom != nil {
		if err := p.GeometryBegin(); err != nil {
			return err
		}
		if fs.srid > 0 {
			if err := p.Srid(fs.srid); err != nil {
				return err
			}
		}
		if err := processGeometry(geom, fs.geomType, p, true, 0); err != nil {
			return err
		}
		if err := p.GeometryEnd(); err != nil {
			return err
		}
	}

	if err := p.PropertiesBegin(); err != nil {
		return err
	}
	if n := f.PropertiesLength(); n > 0 {
		props := make([]byte, n)
		for i := 0; i < n; i++ {
			props[i] = byte(f.Properties(i))
		}
		if err := decodeProperties(props, fs.columns, p); err != nil {
			return err
		}
	}
	if err := p.PropertiesEnd(); err != nil {
		return err
	}

	return p.FeatureEnd(idx)
}

// Geometries assembles only the geometries of the set. Features without a
// geometry are skipped.
func (fs *FeatureSet) Geometries() ([]orb.Geometry, error) {
	geometries := make([]orb.Geometry, 0, len(fs.features))
	b := geoserde.NewGeomBuilder()
	for _, f := range fs.features {
		var geomObj flattypes.Geometry
		geom := f.Geometry(&geomObj)
		if geom == nil {
			continue
		}
		if err := processGeometry(geom, fs.geomType, b, true, 0); err != nil {
			return nil, err
		}
		if g, _, ok := b.Geometry(); ok {
			geometries = append(geometries, g)
		}
	}
	return geometries, nil
}
