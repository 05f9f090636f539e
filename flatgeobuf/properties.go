package flatgeobuf

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	geoserde "github.com/tingold/orb-geoserde"
)

// column is one entry of a property schema.
type column struct {
	name string
	typ  flattypes.ColumnType
}

// cell is one property value of a feature, addressed by column position.
type cell struct {
	col   int
	value geoserde.ColumnValue
}

// promoteColumnType returns the more general type when there's a conflict.
func promoteColumnType(a, b flattypes.ColumnType) flattypes.ColumnType {
	if a == b {
		return a
	}

	// If either is JSON, use JSON
	if a == flattypes.ColumnTypeJson || b == flattypes.ColumnTypeJson {
		return flattypes.ColumnTypeJson
	}

	// If either is String, use String
	if a == flattypes.ColumnTypeString || b == flattypes.ColumnTypeString {
		return flattypes.ColumnTypeString
	}

	// Numeric promotions
	numericTypes := map[flattypes.ColumnType]int{
		flattypes.ColumnTypeBool:   0,
		flattypes.ColumnTypeByte:   1,
		flattypes.ColumnTypeUByte:  2,
		flattypes.ColumnTypeShort:  3,
		flattypes.ColumnTypeUShort: 4,
		flattypes.ColumnTypeInt:    5,
		flattypes.ColumnTypeUInt:   6,
		flattypes.ColumnTypeLong:   7,
		flattypes.ColumnTypeULong:  8,
		flattypes.ColumnTypeFloat:  9,
		flattypes.ColumnTypeDouble: 10,
	}

	rankA, okA := numericTypes[a]
	rankB, okB := numericTypes[b]

	if okA && okB {
		if rankA > rankB {
			return a
		}
		return b
	}

	// DateTime mixed with anything else degrades to text.
	if a == flattypes.ColumnTypeDateTime || b == flattypes.ColumnTypeDateTime {
		return flattypes.ColumnTypeString
	}

	// Default to JSON for unknown combinations
	return flattypes.ColumnTypeJson
}

// encodeProperties encodes feature cells to the FlatGeobuf property blob.
// The format is: [2-byte column index][value bytes]... repeated for each property.
func encodeProperties(cells []cell, columns []column) ([]byte, error) {
	if len(cells) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	for _, c := range cells {
		if c.col < 0 || c.col >= len(columns) || c.col > math.MaxUint16 {
			return nil, fmt.Errorf("%w: column %d", ErrInvalidColumn, c.col)
		}

		// Write column index (uint16, little-endian)
		indexBytes := make([]byte, 2)
		binary.LittleEndian.PutUint16(indexBytes, uint16(c.col))
		buf.Write(indexBytes)

		if err := writePropertyValue(&buf, c.value, columns[c.col].typ); err != nil {
			return nil, fmt.Errorf("column %q: %w", columns[c.col].name, err)
		}
	}
	return buf.Bytes(), nil
}

// writePropertyValue writes a single value as the given column type.
// Variable length values carry a uint32 byte length prefix.
func writePropertyValue(buf *bytes.Buffer, cv geoserde.ColumnValue, colType flattypes.ColumnType) error {
	value := cv.Raw()
	mismatch := func() error {
		return fmt.Errorf("%w: %s into %s column", ErrPropertyMismatch, cv, flattypes.EnumNamesColumnType[colType])
	}

	switch colType {
	case flattypes.ColumnTypeBool:
		v, ok := value.(bool)
		if !ok {
			return mismatch()
		}
		if v {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}

	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte:
		v, ok := toInt64(value)
		if !ok {
			return mismatch()
		}
		buf.WriteByte(byte(v))

	case flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort:
		v, ok := toInt64(value)
		if !ok {
			return mismatch()
		}
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v))
		buf.Write(b)

	case flattypes.ColumnTypeInt, flattypes.ColumnTypeUInt:
		v, ok := toInt64(value)
		if !ok {
			return mismatch()
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v))
		buf.Write(b)

	case flattypes.ColumnTypeLong:
		v, ok := toInt64(value)
		if !ok {
			return mismatch()
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(v))
		buf.Write(b)

	case flattypes.ColumnTypeULong:
		v, ok := toUint64(value)
		if !ok {
			return mismatch()
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)
		buf.Write(b)

	case flattypes.ColumnTypeFloat:
		v, ok := toFloat64(value)
		if !ok {
			return mismatch()
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		buf.Write(b)

	case flattypes.ColumnTypeDouble:
		v, ok := toFloat64(value)
		if !ok {
			return mismatch()
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		buf.Write(b)

	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime:
		writeBlob(buf, []byte(toString(value)))

	case flattypes.ColumnTypeJson:
		if s, ok := value.(string); ok && cv.Type == flattypes.ColumnTypeJson {
			writeBlob(buf, []byte(s))
			break
		}
		jsonBytes, err := json.Marshal(value)
		if err != nil {
			return err
		}
		writeBlob(buf, jsonBytes)

	case flattypes.ColumnTypeBinary:
		b, ok := value.([]byte)
		if !ok {
			return mismatch()
		}
		writeBlob(buf, b)

	default:
		return fmt.Errorf("%w: %d", ErrInvalidColumn, colType)
	}
	return nil
}

func writeBlob(buf *bytes.Buffer, b []byte) {
	lenBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBytes, uint32(len(b)))
	buf.Write(lenBytes)
	buf.Write(b)
}

// decodeProperties decodes a property blob and reports each value to p.
// Decoding stops early when p asks for no more properties.
func decodeProperties(data []byte, columns []column, p geoserde.PropertyProcessor) error {
	offset := 0
	for offset < len(data) {
		// Need at least 2 bytes for column index
		if offset+2 > len(data) {
			return fmt.Errorf("%w: truncated column index", ErrInvalidData)
		}

		// Read column index
		colIndex := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
		offset += 2

		// Validate column index
		if colIndex >= len(columns) {
			return fmt.Errorf("%w: column %d of %d", ErrInvalidColumn, colIndex, len(columns))
		}
		col := columns[colIndex]

		value, n, err := readPropertyValue(data[offset:], col.typ)
		if err != nil {
			return fmt.Errorf("column %q: %w", col.name, err)
		}
		offset += n

		more, err := p.Property(colIndex, col.name, value)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// readPropertyValue reads a property value from the buffer.
// Returns the value and number of bytes read.
func readPropertyValue(data []byte, colType flattypes.ColumnType) (geoserde.ColumnValue, int, error) {
	need := func(n int) error {
		if len(data) < n {
			return fmt.Errorf("%w: need %d bytes, have %d", ErrInvalidData, n, len(data))
		}
		return nil
	}

	switch colType {
	case flattypes.ColumnTypeBool:
		if err := need(1); err != nil {
			return geoserde.ColumnValue{}, 0, err
		}
		return geoserde.BoolValue(data[0] != 0), 1, nil

	case flattypes.ColumnTypeByte:
		if err := need(1); err != nil {
			return geoserde.ColumnValue{}, 0, err
		}
		return geoserde.ByteValue(int8(data[0])), 1, nil

	case flattypes.ColumnTypeUByte:
		if err := need(1); err != nil {
			return geoserde.ColumnValue{}, 0, err
		}
		return geoserde.UByteValue(data[0]), 1, nil

	case flattypes.ColumnTypeShort:
		if err := need(2); err != nil {
			return geoserde.ColumnValue{}, 0, err
		}
		return geoserde.ShortValue(int16(binary.LittleEndian.Uint16(data[:2]))), 2, nil

	case flattypes.ColumnTypeUShort:
		if err := need(2); err != nil {
			return geoserde.ColumnValue{}, 0, err
		}
		return geoserde.UShortValue(binary.LittleEndian.Uint16(data[:2])), 2, nil

	case flattypes.ColumnTypeInt:
		if err := need(4); err != nil {
			return geoserde.ColumnValue{}, 0, err
		}
		return geoserde.IntValue(int32(binary.LittleEndian.Uint32(data[:4]))), 4, nil

	case flattypes.ColumnTypeUInt:
		if err := need(4); err != nil {
			return geoserde.ColumnValue{}, 0, err
		}
		return geoserde.UIntValue(binary.LittleEndian.Uint32(data[:4])), 4, nil

	case flattypes.ColumnTypeLong:
		if err := need(8); err != nil {
			return geoserde.ColumnValue{}, 0, err
		}
		return geoserde.LongValue(int64(binary.LittleEndian.Uint64(data[:8]))), 8, nil

	case flattypes.ColumnTypeULong:
		if err := need(8); err != nil {
			return geoserde.ColumnValue{}, 0, err
		}
		return geoserde.ULongValue(binary.LittleEndian.Uint64(data[:8])), 8, nil

	case flattypes.ColumnTypeFloat:
		if err := need(4); err != nil {
			return geoserde.ColumnValue{}, 0, err
		}
		bits := binary.LittleEndian.Uint32(data[:4])
		return geoserde.FloatValue(math.Float32frombits(bits)), 4, nil

	case flattypes.ColumnTypeDouble:
		if err := need(8); err != nil {
			return geoserde.ColumnValue{}, 0, err
		}
		bits := binary.LittleEndian.Uint64(data[:8])
		return geoserde.DoubleValue(math.Float64frombits(bits)), 8, nil

	case flattypes.ColumnTypeString, flattypes.ColumnTypeJson,
		flattypes.ColumnTypeDateTime, flattypes.ColumnTypeBinary:
		if err := need(4); err != nil {
			return geoserde.ColumnValue{}, 0, err
		}
		length := int(binary.LittleEndian.Uint32(data[:4]))
		if err := need(4 + length); err != nil {
			return geoserde.ColumnValue{}, 0, err
		}
		blob := data[4 : 4+length]
		switch colType {
		case flattypes.ColumnTypeString:
			return geoserde.StringValue(string(blob)), 4 + length, nil
		case flattypes.ColumnTypeJson:
			return geoserde.JSONValue(string(blob)), 4 + length, nil
		case flattypes.ColumnTypeDateTime:
			return geoserde.DateTimeValue(string(blob)), 4 + length, nil
		}
		return geoserde.BinaryValue(append([]byte(nil), blob...)), 4 + length, nil
	}
	return geoserde.ColumnValue{}, 0, fmt.Errorf("%w: %d", ErrInvalidColumn, colType)
}

// Type conversion helpers

func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		if val <= math.MaxInt64 {
			return int64(val), true
		}
	case float32:
		return int64(val), true
	case float64:
		return int64(val), true
	}
	return 0, false
}

func toUint64(v interface{}) (uint64, bool) {
	switch val := v.(type) {
	case uint64:
		return val, true
	case float64:
		if val >= 0 {
			return uint64(val), true
		}
	case float32:
		if val >= 0 {
			return uint64(val), true
		}
	}
	if i, ok := toInt64(v); ok && i >= 0 {
		return uint64(i), true
	}
	return 0, false
}

func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case uint64:
		return float64(val), true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		// For other types, use JSON encoding
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
