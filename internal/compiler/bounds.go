package compiler

import (
	"fmt"

	"github.com/roach88/nestc/internal/ir"
)

// affine is c + sum(coeff[v] * v) over index variables.
type affine struct {
	coeff map[string]int64
	c     int64
}

func constant(c int64) affine { return affine{coeff: map[string]int64{}, c: c} }

func (a affine) isConst() bool {
	for _, k := range a.coeff {
		if k != 0 {
			return false
		}
	}
	return true
}

func (a affine) scale(k int64) affine {
	out := constant(a.c * k)
	for v, c := range a.coeff {
		out.coeff[v] = c * k
	}
	return out
}

func (a affine) plus(b affine) affine {
	out := constant(a.c + b.c)
	for v, c := range a.coeff {
		out.coeff[v] += c
	}
	for v, c := range b.coeff {
		out.coeff[v] += c
	}
	return out
}

// toAffine decomposes an index expression. Only integer constants, index
// variables, +, - and multiplication by a constant are affine; anything else
// (parameters, reads, division, min/max, floats) reports ok=false.
func toAffine(e ir.Expr) (affine, bool) {
	switch n := e.(type) {
	case ir.Const:
		if !n.Type.IsInt() {
			return affine{}, false
		}
		return constant(n.I), true
	case ir.VarRef:
		a := constant(0)
		a.coeff[n.Name] = 1
		return a, true
	case ir.Cast:
		if !n.Type.IsInt() {
			return affine{}, false
		}
		return toAffine(n.Value)
	case ir.BinaryOp:
		l, ok := toAffine(n.Left)
		if !ok {
			return affine{}, false
		}
		r, ok := toAffine(n.Right)
		if !ok {
			return affine{}, false
		}
		switch n.Op {
		case ir.OpAdd:
			return l.plus(r), true
		case ir.OpSub:
			return l.plus(r.scale(-1)), true
		case ir.OpMul:
			switch {
			case l.isConst():
				return r.scale(l.c), true
			case r.isConst():
				return l.scale(r.c), true
			}
		}
		return affine{}, false
	default:
		return affine{}, false
	}
}

// box maps each index variable of a consumer to the range it iterates.
type box map[string]ir.Range

// interval returns the inclusive [lo, hi] an affine index takes over b.
func (a affine) interval(b box) (lo, hi int64, err error) {
	lo, hi = a.c, a.c
	for v, k := range a.coeff {
		if k == 0 {
			continue
		}
		r, ok := b[v]
		if !ok {
			return 0, 0, fmt.Errorf("variable %q has no range", v)
		}
		x0, x1 := k*r.Min, k*r.Max()
		lo += min(x0, x1)
		hi += max(x0, x1)
	}
	return lo, hi, nil
}

// footprint accumulates the union of coordinates read from each buffer.
type footprint struct {
	lo, hi map[string][]int64
}

func newFootprint() *footprint {
	return &footprint{lo: make(map[string][]int64), hi: make(map[string][]int64)}
}

// addReads extends the footprint with every buffer read in body, where the
// consumer iterates over b. consumer names the reading function for errors.
func (fp *footprint) addReads(consumer string, body ir.Expr, b box) error {
	for _, r := range ir.Reads(body) {
		lo := make([]int64, len(r.Args))
		hi := make([]int64, len(r.Args))
		for i, arg := range r.Args {
			a, ok := toAffine(arg)
			if !ok {
				return ir.Errorf(ir.KindUnboundedDomain,
					"index %s of %s is not affine in the loop variables; bounds cannot be inferred", arg, r.Buffer).InFunc(consumer)
			}
			l, h, err := a.interval(b)
			if err != nil {
				return ir.Errorf(ir.KindUnboundedDomain, "index %s of %s: %v", arg, r.Buffer, err).InFunc(consumer)
			}
			lo[i], hi[i] = l, h
		}
		if prev, ok := fp.lo[r.Buffer]; ok {
			for i := range prev {
				fp.lo[r.Buffer][i] = min(prev[i], lo[i])
				fp.hi[r.Buffer][i] = max(fp.hi[r.Buffer][i], hi[i])
			}
			continue
		}
		fp.lo[r.Buffer] = lo
		fp.hi[r.Buffer] = hi
	}
	return nil
}

// region returns the footprint of buffer as ranges, ok=false if it is never
// read.
func (fp *footprint) region(buffer string) ([]ir.Range, bool) {
	lo, ok := fp.lo[buffer]
	if !ok {
		return nil, false
	}
	out := make([]ir.Range, len(lo))
	for i := range lo {
		out[i] = ir.Range{Min: lo[i], Extent: fp.hi[buffer][i] - lo[i] + 1}
	}
	return out, true
}

// covers reports whether inner lies within outer in every dimension.
func covers(outer, inner []ir.Range) bool {
	if len(outer) != len(inner) {
		return false
	}
	for i := range outer {
		if inner[i].Min < outer[i].Min || inner[i].Max() > outer[i].Max() {
			return false
		}
	}
	return true
}
