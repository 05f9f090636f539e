package geoserde

// PropertyCollector accumulates the property values of one feature into
// ordered Properties, converting each through Convert.
type PropertyCollector struct {
	props *Properties
}

// NewPropertyCollector returns an empty collector.
func NewPropertyCollector() *PropertyCollector {
	return &PropertyCollector{props: NewProperties()}
}

// BeginProperties clears the collected properties.
func (c *PropertyCollector) BeginProperties() {
	c.props = NewProperties()
}

// Property stores the converted value under name, replacing any earlier
// value. It always asks for more properties.
//
// ColumnValue has no null: drivers leave null properties out entirely, so
// an absent name is how a null reaches the collected map. DatasetEncoder
// skips them and FlatGeobuf only stores the columns a feature sets.
func (c *PropertyCollector) Property(idx int, name string, value ColumnValue) (bool, error) {
	v, err := Convert(value)
	if err != nil {
		return false, &PropertyConversionError{Index: idx, Name: name, Err: err}
	}
	c.props.Set(name, v)
	return true, nil
}

// TakeProperties hands over the collected properties and starts a new map.
func (c *PropertyCollector) TakeProperties() *Properties {
	props := c.props
	c.props = NewProperties()
	return props
}
