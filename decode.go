package geoserde

import "errors"

// FromDatasource decodes every feature of src into a T. Each feature is
// decoded as soon as it is complete; the first failure aborts the batch.
//
// T names its fields with json tags. The geometry field receives a GeoJSON
// geometry, so geojson.Geometry (or a pointer to it) is the natural type.
func FromDatasource[T any](src Datasource, opts ...Option) ([]T, error) {
	o := buildOptions(opts)

	var out []T
	collector := NewFeatureCollectorFunc(func(idx uint64, f Feature) error {
		v, err := decodeFeature[T](&f, idx, o)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	}, opts...)

	if err := src.Process(collector); err != nil {
		return nil, err
	}
	return out, nil
}

// FeatureToStruct decodes the single feature produced by src into a T.
func FeatureToStruct[T any](src FeatureSource, opts ...Option) (T, error) {
	var zero T
	collector := NewFeatureCollector(opts...)
	if err := src.ProcessFeature(collector, 0); err != nil {
		return zero, err
	}
	if len(collector.Features) == 0 {
		return zero, &MissingGeometryError{}
	}
	return decodeFeature[T](&collector.Features[0], 0, buildOptions(opts))
}

// DecodeFeature decodes an assembled feature into a T.
func DecodeFeature[T any](f *Feature, opts ...Option) (T, error) {
	return decodeFeature[T](f, 0, buildOptions(opts))
}

func decodeFeature[T any](f *Feature, idx uint64, o *Options) (T, error) {
	var v T
	if err := decodeFields(NewFeatureView(f), &v, o); err != nil {
		var bindErr *StructuralBindingError
		if errors.As(err, &bindErr) {
			bindErr.Feature = idx
		}
		return v, err
	}
	return v, nil
}
