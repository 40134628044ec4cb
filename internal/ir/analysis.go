package ir

import (
	"errors"
	"slices"
)

// FuncTypes resolves the value type of a Function read. ok is false when the
// Function has no definition yet.
type FuncTypes func(id FuncID) (t ScalarType, ok bool)

// errPendingType is returned by TypeOf when a read refers to a Function
// whose type is not yet known.
var errPendingType = errors.New("producer type not yet resolved")

// TypeOf returns the resolved scalar type of e, or a TypeError.
func TypeOf(e Expr, funcs FuncTypes) (ScalarType, error) {
	switch n := e.(type) {
	case Const:
		if n.Type == Invalid {
			return Invalid, Errorf(KindType, "constant %s has no type", n)
		}
		return n.Type, nil
	case ParamRef:
		if n.Type == Invalid {
			return Invalid, Errorf(KindType, "parameter %q has no type", n.Name)
		}
		return n.Type, nil
	case VarRef:
		return Int32, nil
	case BufferRead:
		for _, a := range n.Args {
			t, err := TypeOf(a, funcs)
			if err != nil {
				return Invalid, err
			}
			if !t.IsInt() {
				return Invalid, Errorf(KindType, "index %s of %s has type %s, want an integer type", a, n.Buffer, t)
			}
		}
		if n.Func == NoFunc {
			if n.Elem == Invalid {
				return Invalid, Errorf(KindType, "buffer %q has no element type", n.Buffer)
			}
			return n.Elem, nil
		}
		if funcs == nil {
			return Invalid, errPendingType
		}
		t, ok := funcs(n.Func)
		if !ok {
			return Invalid, errPendingType
		}
		return t, nil
	case BinaryOp:
		lt, err := TypeOf(n.Left, funcs)
		if err != nil {
			return Invalid, err
		}
		rt, err := TypeOf(n.Right, funcs)
		if err != nil {
			return Invalid, err
		}
		return binaryType(n, lt, rt)
	case Cast:
		if _, err := TypeOf(n.Value, funcs); err != nil {
			return Invalid, err
		}
		if n.Type == Invalid {
			return Invalid, Errorf(KindType, "cast of %s to invalid type", n.Value)
		}
		return n.Type, nil
	default:
		return Invalid, Errorf(KindUnsupportedConstruct, "unknown expression node %T", e)
	}
}

func binaryType(n BinaryOp, lt, rt ScalarType) (ScalarType, error) {
	switch {
	case n.Op.IsLogical():
		if lt != Bool || rt != Bool {
			return Invalid, Errorf(KindType, "operator %s needs bool operands, got %s and %s in %s", n.Op, lt, rt, n)
		}
		return Bool, nil
	case n.Op == OpEQ || n.Op == OpNE:
		if lt == Bool && rt == Bool {
			return Bool, nil
		}
		if _, ok := Promote(lt, rt); !ok {
			return Invalid, Errorf(KindType, "cannot compare %s with %s in %s", lt, rt, n)
		}
		return Bool, nil
	case n.Op.IsComparison():
		if _, ok := Promote(lt, rt); !ok {
			return Invalid, Errorf(KindType, "cannot compare %s with %s in %s", lt, rt, n)
		}
		return Bool, nil
	default:
		t, ok := Promote(lt, rt)
		if !ok {
			return Invalid, Errorf(KindType, "operator %s is not defined for %s and %s in %s", n.Op, lt, rt, n)
		}
		return t, nil
	}
}

// OperandType returns the type both operands of n are promoted to before the
// operator is applied. For comparisons this differs from the result type.
func OperandType(n BinaryOp, funcs FuncTypes) (ScalarType, error) {
	lt, err := TypeOf(n.Left, funcs)
	if err != nil {
		return Invalid, err
	}
	rt, err := TypeOf(n.Right, funcs)
	if err != nil {
		return Invalid, err
	}
	_, operand, err := ResultType(n, lt, rt)
	return operand, err
}

// ResultType types n given already-resolved operand types: result is the
// type of the whole expression and operand the type both sides are promoted
// to first.
func ResultType(n BinaryOp, lt, rt ScalarType) (result, operand ScalarType, err error) {
	result, err = binaryType(n, lt, rt)
	if err != nil {
		return Invalid, Invalid, err
	}
	if lt == Bool && rt == Bool {
		return result, Bool, nil
	}
	operand, _ = Promote(lt, rt)
	return result, operand, nil
}

// FreeVariables returns the sorted, de-duplicated names of index variables
// referenced by e.
func FreeVariables(e Expr) []string {
	seen := make(map[string]bool)
	Walk(e, func(n Expr) {
		if v, ok := n.(VarRef); ok {
			seen[v.Name] = true
		}
	})
	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	slices.Sort(vars)
	return vars
}

// Reads returns every BufferRead in e, in pre-order.
func Reads(e Expr) []BufferRead {
	var reads []BufferRead
	Walk(e, func(n Expr) {
		if r, ok := n.(BufferRead); ok {
			reads = append(reads, r)
		}
	})
	return reads
}

// Walk visits e and its sub-expressions in pre-order.
func Walk(e Expr, visit func(Expr)) {
	visit(e)
	switch n := e.(type) {
	case BufferRead:
		for _, a := range n.Args {
			Walk(a, visit)
		}
	case BinaryOp:
		Walk(n.Left, visit)
		Walk(n.Right, visit)
	case Cast:
		Walk(n.Value, visit)
	}
}

// Substitute replaces index variables simultaneously according to binding.
// Variables without a binding are left unchanged.
func Substitute(e Expr, binding map[string]Expr) Expr {
	return Rewrite(e, func(n Expr) (Expr, bool) {
		if v, ok := n.(VarRef); ok {
			if r, ok := binding[v.Name]; ok {
				return r, true
			}
		}
		return nil, false
	})
}

// Rewrite rebuilds e bottom-up. fn is tried on every node first; when it
// returns ok the replacement is used as-is and its children are not visited.
func Rewrite(e Expr, fn func(Expr) (Expr, bool)) Expr {
	if r, ok := fn(e); ok {
		return r
	}
	switch n := e.(type) {
	case BufferRead:
		args := make([]Expr, len(n.Args))
		for i, a := range n.Args {
			args[i] = Rewrite(a, fn)
		}
		n.Args = args
		return n
	case BinaryOp:
		n.Left = Rewrite(n.Left, fn)
		n.Right = Rewrite(n.Right, fn)
		return n
	case Cast:
		n.Value = Rewrite(n.Value, fn)
		return n
	default:
		return e
	}
}
