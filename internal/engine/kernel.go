package engine

import (
	"github.com/roach88/nestc/internal/ir"
)

// frame is the per-goroutine state of one stage execution: the values of the
// stage's loop and let variables by slot, and the shared invocation.
type frame struct {
	vars []int64
	inv  *invocation
}

func (f *frame) clone() *frame {
	return &frame{vars: append([]int64(nil), f.vars...), inv: f.inv}
}

type intFn func(*frame) int64

type floatFn func(*frame) float64

// kernel is a compiled expression. Exactly one of i and f is set: i for
// Bool and integer types, f for floating-point types.
type kernel struct {
	t ir.ScalarType
	i intFn
	f floatFn
}

// scope resolves names while the loop nest of one stage is compiled.
type scope struct {
	stage    string
	vars     map[string]int
	scalars  map[string]int
	scalarT  []ir.ScalarType
	buffers  map[string]int
	bufT     []ir.ScalarType
	bufRank  []int
	bufInput []bool
}

// expr compiles e into a kernel. Every expression kind has a lowering here;
// unresolved names are UnsupportedConstruct errors.
func (s *scope) expr(e ir.Expr) (kernel, error) {
	switch n := e.(type) {
	case ir.Const:
		if n.Type.IsFloat() {
			v := n.F
			return kernel{t: n.Type, f: func(*frame) float64 { return v }}, nil
		}
		v := n.I
		return kernel{t: n.Type, i: func(*frame) int64 { return v }}, nil

	case ir.ParamRef:
		k, ok := s.scalars[n.Name]
		if !ok {
			return kernel{}, s.unsupported("reference to unknown scalar %q", n.Name)
		}
		t := s.scalarT[k]
		if t.IsFloat() {
			return kernel{t: t, f: func(fr *frame) float64 { return fr.inv.scalars[k].F }}, nil
		}
		return kernel{t: t, i: func(fr *frame) int64 { return fr.inv.scalars[k].I }}, nil

	case ir.VarRef:
		k, ok := s.vars[n.Name]
		if !ok {
			return kernel{}, s.unsupported("variable %q is not bound by an enclosing loop", n.Name)
		}
		return kernel{t: ir.Int32, i: func(fr *frame) int64 { return fr.vars[k] }}, nil

	case ir.BufferRead:
		return s.read(n)

	case ir.BinaryOp:
		return s.binary(n)

	case ir.Cast:
		v, err := s.expr(n.Value)
		if err != nil {
			return kernel{}, err
		}
		return convert(v, n.Type), nil

	default:
		return kernel{}, s.unsupported("no lowering for expression node %T", e)
	}
}

func (s *scope) unsupported(format string, args ...any) *ir.Error {
	return ir.Errorf(ir.KindUnsupportedConstruct, format, args...).InFunc(s.stage)
}

// index compiles coordinate expressions into integer kernels.
func (s *scope) index(args []ir.Expr) ([]intFn, error) {
	out := make([]intFn, len(args))
	for i, a := range args {
		k, err := s.expr(a)
		if err != nil {
			return nil, err
		}
		if !k.t.IsInt() {
			return nil, s.unsupported("index %s has type %s", a, k.t)
		}
		out[i] = k.i
	}
	return out, nil
}

func (s *scope) buffer(name string, rank int) (int, error) {
	k, ok := s.buffers[name]
	if !ok {
		return 0, s.unsupported("access to unknown buffer %q", name)
	}
	if s.bufRank[k] != rank {
		return 0, s.unsupported("buffer %q has rank %d, accessed with %d coordinates", name, s.bufRank[k], rank)
	}
	return k, nil
}

func (s *scope) read(n ir.BufferRead) (kernel, error) {
	k, err := s.buffer(n.Buffer, len(n.Args))
	if err != nil {
		return kernel{}, err
	}
	idx, err := s.index(n.Args)
	if err != nil {
		return kernel{}, err
	}
	t := s.bufT[k]
	off := offsetFn(k, idx)
	if t.IsFloat() {
		return kernel{t: t, f: func(fr *frame) float64 { return fr.inv.buffers[k].floats[off(fr)] }}, nil
	}
	return kernel{t: t, i: func(fr *frame) int64 { return fr.inv.buffers[k].ints[off(fr)] }}, nil
}

// offsetFn returns the flat element offset of a buffer access. Rank 1 and 2
// accesses skip the coordinate slice.
func offsetFn(buf int, idx []intFn) func(*frame) int {
	switch len(idx) {
	case 0:
		return func(*frame) int { return 0 }
	case 1:
		x := idx[0]
		return func(fr *frame) int {
			b := fr.inv.buffers[buf]
			return b.checked(0, x(fr))
		}
	case 2:
		x, y := idx[0], idx[1]
		return func(fr *frame) int {
			b := fr.inv.buffers[buf]
			return b.checked(0, x(fr)) + b.checked(1, y(fr))
		}
	default:
		return func(fr *frame) int {
			b := fr.inv.buffers[buf]
			off := 0
			for d, f := range idx {
				off += b.checked(d, f(fr))
			}
			return off
		}
	}
}

func (s *scope) binary(n ir.BinaryOp) (kernel, error) {
	l, err := s.expr(n.Left)
	if err != nil {
		return kernel{}, err
	}
	r, err := s.expr(n.Right)
	if err != nil {
		return kernel{}, err
	}
	result, operand, err := ir.ResultType(n, l.t, r.t)
	if err != nil {
		if e, ok := err.(*ir.Error); ok {
			return kernel{}, e.InFunc(s.stage)
		}
		return kernel{}, err
	}
	l, r = convert(l, operand), convert(r, operand)
	op := n.Op

	if operand.IsFloat() {
		lf, rf := l.f, r.f
		if op.IsComparison() {
			return kernel{t: result, i: func(fr *frame) int64 { return ir.CompareFloat(op, lf(fr), rf(fr)) }}, nil
		}
		switch op {
		case ir.OpAdd:
			return kernel{t: result, f: func(fr *frame) float64 { return ir.NormFloat(operand, lf(fr)+rf(fr)) }}, nil
		case ir.OpMul:
			return kernel{t: result, f: func(fr *frame) float64 { return ir.NormFloat(operand, lf(fr)*rf(fr)) }}, nil
		}
		return kernel{t: result, f: func(fr *frame) float64 { return ir.ApplyFloat(op, operand, lf(fr), rf(fr)) }}, nil
	}

	li, ri := l.i, r.i
	switch op {
	case ir.OpAnd:
		return kernel{t: result, i: func(fr *frame) int64 {
			if li(fr) == 0 {
				return 0
			}
			return ir.NormInt(ir.Bool, ri(fr))
		}}, nil
	case ir.OpOr:
		return kernel{t: result, i: func(fr *frame) int64 {
			if li(fr) != 0 {
				return 1
			}
			return ir.NormInt(ir.Bool, ri(fr))
		}}, nil
	}
	return kernel{t: result, i: func(fr *frame) int64 { return ir.ApplyInt(op, operand, li(fr), ri(fr)) }}, nil
}

// convert casts k to t with the shared numeric rules.
func convert(k kernel, t ir.ScalarType) kernel {
	switch {
	case k.t == t:
		return k
	case t.IsFloat() && k.t.IsFloat():
		f := k.f
		return kernel{t: t, f: func(fr *frame) float64 { return ir.NormFloat(t, f(fr)) }}
	case t.IsFloat():
		i := k.i
		return kernel{t: t, f: func(fr *frame) float64 { return ir.NormFloat(t, float64(i(fr))) }}
	case k.t.IsFloat():
		f := k.f
		return kernel{t: t, i: func(fr *frame) int64 { return ir.FloatToInt(t, f(fr)) }}
	default:
		i := k.i
		return kernel{t: t, i: func(fr *frame) int64 { return ir.NormInt(t, i(fr)) }}
	}
}
