package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a scalar expression tree.
//
// This is a sealed interface: only the node types in this file implement it,
// so the lowering engine and the emitter can switch over it exhaustively.
// Expressions are pure descriptions; nothing is evaluated at construction.
//
// Node types:
//   - Const: typed literal
//   - ParamRef: scalar Parameter
//   - BufferRead: element of an ImageParam or of another Function
//   - VarRef: index variable
//   - BinaryOp: arithmetic, comparison or logical operator
//   - Cast: explicit conversion
type Expr interface {
	exprNode()
	String() string
}

// FuncID is a stable handle into a Graph's function arena.
type FuncID int

// NoFunc marks a BufferRead whose source is an ImageParam.
const NoFunc FuncID = -1

// Const is a typed literal. Integer and bool values live in I, floats in F.
type Const struct {
	Type ScalarType
	I    int64
	F    float64
}

// ParamRef references a scalar Parameter by name.
type ParamRef struct {
	Name string
	Type ScalarType
}

// BufferRead reads one element of a buffer. Buffer names either an
// ImageParam (Func == NoFunc, Elem set) or a Function (Func set).
type BufferRead struct {
	Buffer string
	Func   FuncID
	Elem   ScalarType
	Args   []Expr
}

// VarRef references an index variable.
type VarRef struct {
	Name string
}

// Op is a binary operator.
type Op uint8

const (
	OpAdd Op = iota + 1
	OpSub
	OpMul
	OpDiv
	OpMod
	OpMin
	OpMax
	OpLT
	OpLE
	OpEQ
	OpNE
	OpAnd
	OpOr
)

var opSymbols = map[Op]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpMin: "min", OpMax: "max",
	OpLT: "<", OpLE: "<=", OpEQ: "==", OpNE: "!=",
	OpAnd: "&&", OpOr: "||",
}

func (o Op) String() string {
	if s, ok := opSymbols[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// IsComparison reports whether o yields a bool from two numeric operands.
func (o Op) IsComparison() bool { return o >= OpLT && o <= OpNE }

// IsLogical reports whether o combines two bools.
func (o Op) IsLogical() bool { return o == OpAnd || o == OpOr }

// BinaryOp applies Op to two operands.
type BinaryOp struct {
	Op    Op
	Left  Expr
	Right Expr
}

// Cast converts Value to Type. Casts may narrow; implicit promotion never does.
type Cast struct {
	Type  ScalarType
	Value Expr
}

func (Const) exprNode()      {}
func (ParamRef) exprNode()   {}
func (BufferRead) exprNode() {}
func (VarRef) exprNode()     {}
func (BinaryOp) exprNode()   {}
func (Cast) exprNode()       {}

// Constructors.

// Int returns an int32 constant.
func Int(v int64) Const { return Const{Type: Int32, I: NormInt(Int32, v)} }

// Int64Const returns an int64 constant.
func Int64Const(v int64) Const { return Const{Type: Int64, I: v} }

// Float returns a float32 constant.
func Float(v float64) Const { return Const{Type: Float32, F: NormFloat(Float32, v)} }

// Float64Const returns a float64 constant.
func Float64Const(v float64) Const { return Const{Type: Float64, F: v} }

// BoolConst returns a bool constant.
func BoolConst(v bool) Const { return Const{Type: Bool, I: boolInt(v)} }

// V references index variable name.
func V(name string) VarRef { return VarRef{Name: name} }

// Bin builds a BinaryOp.
func Bin(op Op, l, r Expr) BinaryOp { return BinaryOp{Op: op, Left: l, Right: r} }

// Add builds l + r.
func Add(l, r Expr) BinaryOp { return Bin(OpAdd, l, r) }

// Sub builds l - r.
func Sub(l, r Expr) BinaryOp { return Bin(OpSub, l, r) }

// Mul builds l * r.
func Mul(l, r Expr) BinaryOp { return Bin(OpMul, l, r) }

// Div builds l / r.
func Div(l, r Expr) BinaryOp { return Bin(OpDiv, l, r) }

// Min builds min(l, r).
func Min(l, r Expr) BinaryOp { return Bin(OpMin, l, r) }

// Max builds max(l, r).
func Max(l, r Expr) BinaryOp { return Bin(OpMax, l, r) }

// Lt builds l < r.
func Lt(l, r Expr) BinaryOp { return Bin(OpLT, l, r) }

// Convert builds an explicit cast.
func Convert(t ScalarType, e Expr) Cast { return Cast{Type: t, Value: e} }

// String renders.

func (c Const) String() string {
	switch {
	case c.Type == Bool:
		return strconv.FormatBool(c.I != 0)
	case c.Type.IsFloat():
		s := strconv.FormatFloat(c.F, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		if c.Type == Float64 {
			return "float64(" + s + ")"
		}
		return s
	case c.Type == Int64:
		return "int64(" + strconv.FormatInt(c.I, 10) + ")"
	default:
		return strconv.FormatInt(c.I, 10)
	}
}

func (p ParamRef) String() string { return p.Name }

func (b BufferRead) String() string {
	args := make([]string, len(b.Args))
	for i, a := range b.Args {
		args[i] = a.String()
	}
	return b.Buffer + "(" + strings.Join(args, ", ") + ")"
}

func (v VarRef) String() string { return v.Name }

func (b BinaryOp) String() string {
	if b.Op == OpMin || b.Op == OpMax {
		return fmt.Sprintf("%s(%s, %s)", b.Op, b.Left, b.Right)
	}
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

func (c Cast) String() string { return fmt.Sprintf("%s(%s)", c.Type, c.Value) }
