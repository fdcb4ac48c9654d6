package cube

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Value is a sealed interface over the dimension value types.
// Only Null, String and Int implement it.
type Value interface {
	cubeValue() // Sealed - only these types implement it
}

// Null marks an absent dimension or measure value.
type Null struct{}

func (Null) cubeValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a categorical value (e.g. a borough name).
type String string

func (String) cubeValue() {}

// NewString returns s as a String in Unicode NFC, the form canonical JSON
// writes. Strings that differ only in normalization compare equal after it.
func NewString(s string) String {
	return String(norm.NFC.String(s))
}

// Normalize returns v with String values in NFC. Other values are returned
// unchanged.
func Normalize(v Value) Value {
	if s, ok := v.(String); ok {
		return NewString(string(s))
	}
	return v
}

// Int is an integral value (e.g. a year or an hour). Always int64.
type Int int64

func (Int) cubeValue() {}

// IsNull reports whether v is absent. A nil interface counts as null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Equal reports whether two values are identical in type and content.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// Compare orders values: Null < Int < String, Ints numerically and Strings
// by byte order. Used for deterministic row sorting.
func Compare(a, b Value) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case Int:
		bv := b.(Int)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case String:
		return strings.Compare(string(av), string(b.(String)))
	}
	return 0
}

func rank(v Value) int {
	switch v.(type) {
	case Int:
		return 1
	case String:
		return 2
	default:
		return 0
	}
}

// Format renders a value for text output and filter echoing.
func Format(v Value) string {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	default:
		return "null"
	}
}

// UnmarshalValue decodes a single JSON scalar into a Value.
// Floats, booleans, arrays and objects are rejected.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromAny(raw)
}

// FromAny converts a decoded Go scalar (JSON or YAML) into a Value.
func FromAny(raw any) (Value, error) {
	switch val := raw.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return Normalize(val), nil
	case string:
		return NewString(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not allowed: %s", val)
		}
		return Int(n), nil
	case float64, float32:
		return nil, fmt.Errorf("floats are not allowed: %v", val)
	default:
		return nil, fmt.Errorf("unsupported value type: %T", raw)
	}
}
