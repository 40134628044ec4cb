package engine

import (
	"fmt"
	"strconv"

	"github.com/roach88/nestc/internal/ir"
)

// Scalar is a bound scalar argument. Bool and integer values live in I,
// floating-point values in F, matching the register model of ir constants.
type Scalar struct {
	Type ir.ScalarType
	I    int64
	F    float64
}

func Bool(v bool) Scalar {
	return ScalarOf(ir.BoolConst(v))
}

func Int32(v int32) Scalar {
	return Scalar{Type: ir.Int32, I: int64(v)}
}

func Int64(v int64) Scalar {
	return Scalar{Type: ir.Int64, I: v}
}

func Float32(v float32) Scalar {
	return Scalar{Type: ir.Float32, F: float64(v)}
}

func Float64(v float64) Scalar {
	return Scalar{Type: ir.Float64, F: v}
}

// ScalarOf converts a constant to a Scalar of the same type.
func ScalarOf(c ir.Const) Scalar {
	return Scalar{Type: c.Type, I: c.I, F: c.F}
}

// ParseScalar parses text as a value of type t. Integers given for float
// types and vice versa are converted with the usual cast rules.
func ParseScalar(t ir.ScalarType, text string) (Scalar, error) {
	switch {
	case t == ir.Bool:
		switch text {
		case "true", "1":
			return Bool(true), nil
		case "false", "0":
			return Bool(false), nil
		}
		return Scalar{}, fmt.Errorf("parse %q as bool", text)
	case t.IsFloat():
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Scalar{}, fmt.Errorf("parse %q as %s: %w", text, t, err)
		}
		return Scalar{Type: t, F: ir.NormFloat(t, f)}, nil
	case t.IsInt():
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(text, 64)
			if ferr != nil {
				return Scalar{}, fmt.Errorf("parse %q as %s: %w", text, t, err)
			}
			return Scalar{Type: t, I: ir.FloatToInt(t, f)}, nil
		}
		return Scalar{Type: t, I: ir.NormInt(t, i)}, nil
	default:
		return Scalar{}, fmt.Errorf("cannot parse values of type %s", t)
	}
}

// Float returns the value as a float64 regardless of type.
func (s Scalar) Float() float64 {
	if s.Type.IsFloat() {
		return s.F
	}
	return float64(s.I)
}

// Int returns the value as an int64, truncating floats toward zero.
func (s Scalar) Int() int64 {
	if s.Type.IsFloat() {
		return ir.FloatToInt(ir.Int64, s.F)
	}
	return s.I
}

// Convert casts s to type t. The result is always rounded to t, so
// converting a hand-built Scalar to its own type normalizes it.
func (s Scalar) Convert(t ir.ScalarType) Scalar {
	switch {
	case t.IsFloat():
		return Scalar{Type: t, F: ir.NormFloat(t, s.Float())}
	case s.Type.IsFloat():
		return Scalar{Type: t, I: ir.FloatToInt(t, s.F)}
	default:
		return Scalar{Type: t, I: ir.NormInt(t, s.I)}
	}
}

func (s Scalar) String() string {
	return ir.Const{Type: s.Type, I: s.I, F: s.F}.String()
}
