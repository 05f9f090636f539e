package geoserde

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
)

// ColumnType tags a ColumnValue. It shares FlatGeobuf's column type
// enumeration, which covers every scalar the protocol carries.
type ColumnType = flattypes.ColumnType

var (
	errInvalidColumnValue = errors.New("value does not match its column type")
	errNonFinite          = errors.New("non-finite number has no generic representation")
)

// ColumnValue is one typed, tagged scalar property value.
type ColumnValue struct {
	Type ColumnType
	v    interface{}
}

// ByteValue returns a signed 8-bit column value.
func ByteValue(v int8) ColumnValue { return ColumnValue{Type: flattypes.ColumnTypeByte, v: v} }

// UByteValue returns an unsigned 8-bit column value.
func UByteValue(v uint8) ColumnValue { return ColumnValue{Type: flattypes.ColumnTypeUByte, v: v} }

// BoolValue returns a boolean column value.
func BoolValue(v bool) ColumnValue { return ColumnValue{Type: flattypes.ColumnTypeBool, v: v} }

// ShortValue returns a signed 16-bit column value.
func ShortValue(v int16) ColumnValue { return ColumnValue{Type: flattypes.ColumnTypeShort, v: v} }

// UShortValue returns an unsigned 16-bit column value.
func UShortValue(v uint16) ColumnValue { return ColumnValue{Type: flattypes.ColumnTypeUShort, v: v} }

// IntValue returns a signed 32-bit column value.
func IntValue(v int32) ColumnValue { return ColumnValue{Type: flattypes.ColumnTypeInt, v: v} }

// UIntValue returns an unsigned 32-bit column value.
func UIntValue(v uint32) ColumnValue { return ColumnValue{Type: flattypes.ColumnTypeUInt, v: v} }

// LongValue returns a signed 64-bit column value.
func LongValue(v int64) ColumnValue { return ColumnValue{Type: flattypes.ColumnTypeLong, v: v} }

// ULongValue returns an unsigned 64-bit column value.
func ULongValue(v uint64) ColumnValue { return ColumnValue{Type: flattypes.ColumnTypeULong, v: v} }

// FloatValue returns a 32-bit floating point column value.
func FloatValue(v float32) ColumnValue { return ColumnValue{Type: flattypes.ColumnTypeFloat, v: v} }

// DoubleValue returns a 64-bit floating point column value.
func DoubleValue(v float64) ColumnValue { return ColumnValue{Type: flattypes.ColumnTypeDouble, v: v} }

// StringValue returns a string column value.
func StringValue(v string) ColumnValue { return ColumnValue{Type: flattypes.ColumnTypeString, v: v} }

// JSONValue returns a column value holding JSON encoded text.
func JSONValue(v string) ColumnValue { return ColumnValue{Type: flattypes.ColumnTypeJson, v: v} }

// DateTimeValue returns a date/time column value in its textual form.
func DateTimeValue(v string) ColumnValue { return ColumnValue{Type: flattypes.ColumnTypeDateTime, v: v} }

// BinaryValue returns a raw bytes column value.
func BinaryValue(v []byte) ColumnValue { return ColumnValue{Type: flattypes.ColumnTypeBinary, v: v} }

// Raw returns the Go value held by c.
func (c ColumnValue) Raw() interface{} {
	return c.v
}

func (c ColumnValue) String() string {
	return fmt.Sprintf("%s(%v)", flattypes.EnumNamesColumnType[c.Type], c.v)
}

// Convert maps a typed column value into the generic value model.
// Numbers become json.Number; width information is not preserved.
// JSON typed values stay JSON text and are not parsed.
func Convert(c ColumnValue) (interface{}, error) {
	switch v := c.v.(type) {
	case int8:
		if c.Type == flattypes.ColumnTypeByte {
			return json.Number(strconv.FormatInt(int64(v), 10)), nil
		}
	case uint8:
		if c.Type == flattypes.ColumnTypeUByte {
			return json.Number(strconv.FormatUint(uint64(v), 10)), nil
		}
	case bool:
		if c.Type == flattypes.ColumnTypeBool {
			return v, nil
		}
	case int16:
		if c.Type == flattypes.ColumnTypeShort {
			return json.Number(strconv.FormatInt(int64(v), 10)), nil
		}
	case uint16:
		if c.Type == flattypes.ColumnTypeUShort {
			return json.Number(strconv.FormatUint(uint64(v), 10)), nil
		}
	case int32:
		if c.Type == flattypes.ColumnTypeInt {
			return json.Number(strconv.FormatInt(int64(v), 10)), nil
		}
	case uint32:
		if c.Type == flattypes.ColumnTypeUInt {
			return json.Number(strconv.FormatUint(uint64(v), 10)), nil
		}
	case int64:
		if c.Type == flattypes.ColumnTypeLong {
			return json.Number(strconv.FormatInt(v, 10)), nil
		}
	case uint64:
		if c.Type == flattypes.ColumnTypeULong {
			return json.Number(strconv.FormatUint(v, 10)), nil
		}
	case float32:
		if c.Type == flattypes.ColumnTypeFloat {
			return floatNumber(float64(v), 32)
		}
	case float64:
		if c.Type == flattypes.ColumnTypeDouble {
			return floatNumber(v, 64)
		}
	case string:
		switch c.Type {
		case flattypes.ColumnTypeString, flattypes.ColumnTypeJson, flattypes.ColumnTypeDateTime:
			return v, nil
		}
	case []byte:
		if c.Type == flattypes.ColumnTypeBinary {
			out := make([]interface{}, len(v))
			for i, b := range v {
				out[i] = json.Number(strconv.FormatUint(uint64(b), 10))
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", errInvalidColumnValue, c)
}

// floatNumber renders f so that the text always carries a fraction or an
// exponent, keeping it distinguishable from an integer.
func floatNumber(f float64, bitSize int) (json.Number, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", errNonFinite
	}
	s := strconv.FormatFloat(f, 'g', -1, bitSize)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return json.Number(s), nil
}

// InferColumnValue maps a generic value to a typed column value. It reports
// false for null, which has no column representation.
//
// Strings map to String, booleans to Bool, arrays and objects to compact
// JSON text. A number with a fraction or exponent maps to Double, otherwise
// to Long when it fits and ULong after that.
func InferColumnValue(value interface{}) (ColumnValue, bool, error) {
	switch v := value.(type) {
	case nil:
		return ColumnValue{}, false, nil
	case string:
		return StringValue(v), true, nil
	case bool:
		return BoolValue(v), true, nil
	case json.Number:
		cv, err := inferNumber(string(v))
		return cv, err == nil, err
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ColumnValue{}, false, errNonFinite
		}
		cv, err := inferNumber(strconv.FormatFloat(v, 'g', -1, 64))
		return cv, err == nil, err
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return ColumnValue{}, false, errNonFinite
		}
		return FloatValue(v), true, nil
	case int:
		return LongValue(int64(v)), true, nil
	case int8:
		return LongValue(int64(v)), true, nil
	case int16:
		return LongValue(int64(v)), true, nil
	case int32:
		return LongValue(int64(v)), true, nil
	case int64:
		return LongValue(v), true, nil
	case uint:
		return unsignedValue(uint64(v)), true, nil
	case uint8:
		return LongValue(int64(v)), true, nil
	case uint16:
		return LongValue(int64(v)), true, nil
	case uint32:
		return LongValue(int64(v)), true, nil
	case uint64:
		return unsignedValue(v), true, nil
	case []byte:
		return BinaryValue(v), true, nil
	case time.Time:
		return DateTimeValue(v.Format(time.RFC3339Nano)), true, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ColumnValue{}, false, err
		}
		return JSONValue(string(b)), true, nil
	}
}

func inferNumber(s string) (ColumnValue, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return LongValue(i), nil
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return ULongValue(u), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return ColumnValue{}, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return DoubleValue(f), nil
}

func unsignedValue(v uint64) ColumnValue {
	if v <= math.MaxInt64 {
		return LongValue(int64(v))
	}
	return ULongValue(v)
}
