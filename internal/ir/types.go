package ir

import "fmt"

// ScalarType is the element type of expressions, parameters and buffers.
type ScalarType uint8

const (
	// Invalid is the zero ScalarType. It never appears in a valid graph.
	Invalid ScalarType = iota
	Bool
	Int32
	Int64
	Float32
	Float64
)

var scalarNames = map[ScalarType]string{
	Invalid: "invalid",
	Bool:    "bool",
	Int32:   "int32",
	Int64:   "int64",
	Float32: "float32",
	Float64: "float64",
}

// String returns the lower-case type name used in pipeline files.
func (t ScalarType) String() string {
	if name, ok := scalarNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ScalarType(%d)", uint8(t))
}

// ParseScalarType maps a type name ("float32", "int32", ...) to a ScalarType.
func ParseScalarType(name string) (ScalarType, error) {
	for t, n := range scalarNames {
		if n == name && t != Invalid {
			return t, nil
		}
	}
	return Invalid, fmt.Errorf("unknown scalar type %q", name)
}

// IsFloat reports whether t is a floating-point type.
func (t ScalarType) IsFloat() bool { return t == Float32 || t == Float64 }

// IsInt reports whether t is an integer type. Bool is not an integer.
func (t ScalarType) IsInt() bool { return t == Int32 || t == Int64 }

// IsNumeric reports whether t supports arithmetic.
func (t ScalarType) IsNumeric() bool { return t.IsInt() || t.IsFloat() }

// Bits returns the storage width of t.
func (t ScalarType) Bits() int {
	switch t {
	case Bool:
		return 8
	case Int32, Float32:
		return 32
	case Int64, Float64:
		return 64
	default:
		return 0
	}
}

// Promote returns the common type of a and b under the fixed promotion rules:
// integer widens to float, narrower widens to wider. Bool never promotes.
func Promote(a, b ScalarType) (ScalarType, bool) {
	if a == b {
		return a, a != Invalid
	}
	if !a.IsNumeric() || !b.IsNumeric() {
		return Invalid, false
	}
	switch {
	case a.IsFloat() && b.IsFloat(), a.IsInt() && b.IsInt():
		if a.Bits() >= b.Bits() {
			return a, true
		}
		return b, true
	case a.IsFloat():
		return a, true
	default:
		return b, true
	}
}
