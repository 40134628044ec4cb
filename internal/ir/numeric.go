package ir

import "math"

// Values are carried in one of two registers: int64 for Bool/Int32/Int64 and
// float64 for Float32/Float64. The helpers below normalise a register value
// to the precision of its declared type and implement every operator, so the
// emitter and any reference evaluator agree bit-for-bit.

// NormInt wraps v to the width of t. Bool normalises to 0 or 1.
func NormInt(t ScalarType, v int64) int64 {
	switch t {
	case Bool:
		if v != 0 {
			return 1
		}
		return 0
	case Int32:
		return int64(int32(v))
	default:
		return v
	}
}

// NormFloat rounds v to the precision of t.
func NormFloat(t ScalarType, v float64) float64 {
	if t == Float32 {
		return float64(float32(v))
	}
	return v
}

// ApplyInt evaluates op over integer operands of result type t.
// Comparison and logical operators return 0 or 1.
// Division and modulo by zero return 0.
func ApplyInt(op Op, t ScalarType, a, b int64) int64 {
	var r int64
	switch op {
	case OpAdd:
		r = a + b
	case OpSub:
		r = a - b
	case OpMul:
		r = a * b
	case OpDiv:
		if b == 0 {
			return 0
		}
		r = a / b
	case OpMod:
		if b == 0 {
			return 0
		}
		r = a % b
	case OpMin:
		r = min(a, b)
	case OpMax:
		r = max(a, b)
	case OpLT:
		return boolInt(a < b)
	case OpLE:
		return boolInt(a <= b)
	case OpEQ:
		return boolInt(a == b)
	case OpNE:
		return boolInt(a != b)
	case OpAnd:
		return boolInt(a != 0 && b != 0)
	case OpOr:
		return boolInt(a != 0 || b != 0)
	}
	return NormInt(t, r)
}

// ApplyFloat evaluates an arithmetic op over float operands of type t.
func ApplyFloat(op Op, t ScalarType, a, b float64) float64 {
	var r float64
	switch op {
	case OpAdd:
		r = a + b
	case OpSub:
		r = a - b
	case OpMul:
		r = a * b
	case OpDiv:
		r = a / b
	case OpMod:
		r = math.Mod(a, b)
	case OpMin:
		r = math.Min(a, b)
	case OpMax:
		r = math.Max(a, b)
	}
	return NormFloat(t, r)
}

// CompareFloat evaluates a comparison op over float operands.
func CompareFloat(op Op, a, b float64) int64 {
	switch op {
	case OpLT:
		return boolInt(a < b)
	case OpLE:
		return boolInt(a <= b)
	case OpEQ:
		return boolInt(a == b)
	case OpNE:
		return boolInt(a != b)
	}
	return 0
}

// FloatToInt truncates v toward zero and wraps to t. NaN converts to 0.
func FloatToInt(t ScalarType, v float64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	if t == Bool {
		return boolInt(v != 0)
	}
	switch {
	case v >= math.MaxInt64:
		return NormInt(t, math.MaxInt64)
	case v <= math.MinInt64:
		return NormInt(t, math.MinInt64)
	}
	return NormInt(t, int64(v))
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
