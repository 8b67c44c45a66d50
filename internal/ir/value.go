package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind string

const (
	KindAbsent Kind = "absent"
	KindInt    Kind = "int"
	KindReal   Kind = "real"
	KindText   Kind = "text"
	KindError  Kind = "error"
)

// Value is a sealed interface over the values a topic can carry.
// Only Absent, Int, Real, Text and ErrorCode implement it.
type Value interface {
	Kind() Kind
	String() string
	value() // sealed
}

// Absent is the empty value.
type Absent struct{}

// Int is a 64-bit integer value.
type Int int64

// Real is a double precision value. NaN and infinities are not representable
// in the canonical encoding and are rejected by MarshalCanonical.
type Real float64

// Text is a string value.
type Text string

// ErrorCode is a spreadsheet error value such as #N/A.
type ErrorCode int32

// Spreadsheet error codes understood by hosts.
const (
	ErrNull        ErrorCode = 2000
	ErrDiv0        ErrorCode = 2007
	ErrValue       ErrorCode = 2015
	ErrRef         ErrorCode = 2023
	ErrName        ErrorCode = 2029
	ErrNum         ErrorCode = 2036
	ErrNA          ErrorCode = 2042
	ErrGettingData ErrorCode = 2043
)

// Placeholder is the value handed back on subscribe before any data exists.
// Hosts render it as "awaiting data".
func Placeholder() Value {
	return ErrGettingData
}

func (Absent) Kind() Kind    { return KindAbsent }
func (Int) Kind() Kind       { return KindInt }
func (Real) Kind() Kind      { return KindReal }
func (Text) Kind() Kind      { return KindText }
func (ErrorCode) Kind() Kind { return KindError }

func (Absent) value()    {}
func (Int) value()       {}
func (Real) value()      {}
func (Text) value()      {}
func (ErrorCode) value() {}

func (Absent) String() string { return "" }
func (v Int) String() string  { return strconv.FormatInt(int64(v), 10) }
func (v Real) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v Text) String() string { return string(v) }

func (v ErrorCode) String() string {
	switch v {
	case ErrNull:
		return "#NULL!"
	case ErrDiv0:
		return "#DIV/0!"
	case ErrValue:
		return "#VALUE!"
	case ErrRef:
		return "#REF!"
	case ErrName:
		return "#NAME?"
	case ErrNum:
		return "#NUM!"
	case ErrNA:
		return "#N/A"
	case ErrGettingData:
		return "#GETTING_DATA"
	default:
		return fmt.Sprintf("#ERR%d", int32(v))
	}
}

// MarshalJSON encodes a value as a tagged object, for example
// {"kind":"text","value":"Ready"}. Absent encodes as {"kind":"absent"}.
func (v Absent) MarshalJSON() ([]byte, error)    { return MarshalCanonical(v) }
func (v Int) MarshalJSON() ([]byte, error)       { return MarshalCanonical(v) }
func (v Real) MarshalJSON() ([]byte, error)      { return MarshalCanonical(v) }
func (v Text) MarshalJSON() ([]byte, error)      { return MarshalCanonical(v) }
func (v ErrorCode) MarshalJSON() ([]byte, error) { return MarshalCanonical(v) }

// Equal reports whether two values hold the same variant and payload.
// Real values compare bitwise so that NaN equals itself.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ar, ok := a.(Real); ok {
		br, ok := b.(Real)
		return ok && math.Float64bits(float64(ar)) == math.Float64bits(float64(br))
	}
	return a == b
}

// ValueOf converts a decoded YAML/JSON/CUE scalar into a Value.
//
//   - nil becomes Absent
//   - integers become Int
//   - floats with no fractional part stay Real (the source said real)
//   - strings become Text
//   - a map of the form {"error": 2042} becomes ErrorCode
func ValueOf(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Absent{}, nil
	case Value:
		return v, nil
	case int:
		return Int(v), nil
	case int32:
		return Int(v), nil
	case int64:
		return Int(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", v)
		}
		return Int(v), nil
	case float32:
		return Real(v), nil
	case float64:
		return Real(v), nil
	case string:
		return Text(v), nil
	case map[string]any:
		code, ok := v["error"]
		if !ok || len(v) != 1 {
			return nil, fmt.Errorf("object values must have the single key \"error\"")
		}
		n, err := toInt64(code)
		if err != nil {
			return nil, fmt.Errorf("error code: %w", err)
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("error code %d out of range", n)
		}
		return ErrorCode(n), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", x)
	}
}

func toInt64(x any) (int64, error) {
	switch v := x.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	default:
		return 0, fmt.Errorf("%T is not an integer", x)
	}
}

// wireValue is the JSON shape of a tagged value.
type wireValue struct {
	Kind  Kind            `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

// UnmarshalValue decodes the tagged object produced by MarshalJSON.
func UnmarshalValue(data []byte) (Value, error) {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}

	switch w.Kind {
	case KindAbsent:
		if len(w.Value) != 0 {
			return nil, fmt.Errorf("absent value must not carry a payload")
		}
		return Absent{}, nil
	case KindInt:
		var n int64
		if err := json.Unmarshal(w.Value, &n); err != nil {
			return nil, fmt.Errorf("int payload: %w", err)
		}
		return Int(n), nil
	case KindReal:
		var f float64
		if err := json.Unmarshal(w.Value, &f); err != nil {
			return nil, fmt.Errorf("real payload: %w", err)
		}
		return Real(f), nil
	case KindText:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return nil, fmt.Errorf("text payload: %w", err)
		}
		return Text(s), nil
	case KindError:
		var n int32
		if err := json.Unmarshal(w.Value, &n); err != nil {
			return nil, fmt.Errorf("error payload: %w", err)
		}
		return ErrorCode(n), nil
	case "":
		return nil, fmt.Errorf("value kind is required")
	default:
		return nil, fmt.Errorf("unknown value kind %q", w.Kind)
	}
}
