package compiler

import (
	"log/slog"
	"math"
	"slices"

	"github.com/roach88/nestc/internal/ir"
	"github.com/roach88/nestc/internal/loopnest"
)

// Lower validates g and lowers it, with every attached schedule, into a
// loop-nest program.
//
// Functions are visited producer-first. A function read by exactly one
// consumer and not marked compute_root is inlined into that consumer; every
// other function is materialized into its own buffer, whose region is the
// union of the coordinates its consumers read.
func Lower(g *ir.Graph, opts ...Option) (*loopnest.Program, error) {
	o := newOptions(opts)
	a, err := analyze(g)
	if err != nil {
		return nil, err
	}
	l := &lowerer{
		analysis: a,
		bodies:   make(map[ir.FuncID]ir.Expr),
		regions:  make(map[ir.FuncID][]ir.Range),
		log:      o.logger,
	}
	if err := l.inlineAll(); err != nil {
		return nil, err
	}
	fp, err := l.inferBounds()
	if err != nil {
		return nil, err
	}
	return l.program(fp)
}

type lowerer struct {
	*analysis
	bodies  map[ir.FuncID]ir.Expr // bodies with inlined producers substituted
	regions map[ir.FuncID][]ir.Range
	log     *slog.Logger
}

// inlineAll computes the inlined body of every function in producer-first
// order, so each producer body is final before a consumer substitutes it.
func (l *lowerer) inlineAll() error {
	for _, id := range l.order {
		f := l.g.Func(id)
		if !l.materialized(id) && f.Schedule.HasLoopDirectives() {
			var first ir.Directive
			for _, d := range f.Schedule.Directives() {
				if _, ok := d.(ir.ComputeRoot); !ok {
					first = d
					break
				}
			}
			return ir.Errorf(ir.KindUnsupportedConstruct,
				"function is inlined into %s, so its loop directives have no loops to act on; mark it compute_root",
				l.g.Func(l.consumers[id][0]).Name).InFunc(f.Name).WithDirective(first)
		}
		l.bodies[id] = l.inline(f.Body)
	}
	return nil
}

func (l *lowerer) inline(e ir.Expr) ir.Expr {
	return ir.Rewrite(e, func(n ir.Expr) (ir.Expr, bool) {
		r, ok := n.(ir.BufferRead)
		if !ok {
			return nil, false
		}
		args := make([]ir.Expr, len(r.Args))
		for i, a := range r.Args {
			args[i] = l.inline(a)
		}
		if r.Func == ir.NoFunc || l.materialized(r.Func) {
			r.Args = args
			return r, true
		}
		p := l.g.Func(r.Func)
		binding := make(map[string]ir.Expr, len(p.Domain))
		for i, v := range p.Domain {
			binding[v] = args[i]
		}
		return ir.Substitute(l.bodies[r.Func], binding), true
	})
}

// inferBounds assigns a region to every materialized function, consumers
// first, and returns the footprint of all reads including image reads.
func (l *lowerer) inferBounds() (*footprint, error) {
	fp := newFootprint()
	for i := len(l.order) - 1; i >= 0; i-- {
		id := l.order[i]
		if !l.materialized(id) {
			continue
		}
		f := l.g.Func(id)
		read, isRead := fp.region(f.Name)

		var region []ir.Range
		if out, ok := l.outputs[id]; ok {
			region = out.Region
			if isRead && !covers(region, read) {
				return nil, ir.Errorf(ir.KindUnboundedDomain,
					"consumers read %s, outside the requested output region %s",
					formatRanges(read), formatRanges(region)).InFunc(f.Name)
			}
		} else {
			if !isRead {
				return nil, ir.Errorf(ir.KindUnboundedDomain, "no consumer reads this function").InFunc(f.Name)
			}
			region = read
		}
		for d, r := range region {
			if r.Min < math.MinInt32 || r.Min+r.Extent > math.MaxInt32 {
				return nil, ir.Errorf(ir.KindUnsupportedConstruct,
					"region %s does not fit 32-bit loop indices", r).InFunc(f.Name).OnVar(f.Domain[d])
			}
		}
		l.regions[id] = region

		b := make(box, len(f.Domain))
		for d, v := range f.Domain {
			b[v] = region[d]
		}
		if err := fp.addReads(f.Name, l.bodies[id], b); err != nil {
			return nil, err
		}
		l.log.Debug("inferred bounds", "func", f.Name, "region", formatRanges(region))
	}
	return fp, nil
}

func (l *lowerer) program(fp *footprint) (*loopnest.Program, error) {
	p := &loopnest.Program{Name: l.g.Name}
	l.g.Inputs(func(param *ir.Param, img *ir.ImageParam) {
		if param != nil {
			p.Args = append(p.Args, loopnest.Arg{
				Name: param.Name, Kind: loopnest.ArgScalar, Type: param.Type, Default: param.Default,
			})
			return
		}
		region, _ := fp.region(img.Name)
		p.Args = append(p.Args, loopnest.Arg{
			Name: img.Name, Kind: loopnest.ArgInput, Type: img.Elem, Rank: img.Rank, Region: region,
		})
	})
	for _, out := range l.g.Outputs() {
		f := l.g.Func(out.Func)
		p.Args = append(p.Args, loopnest.Arg{
			Name: f.Name, Kind: loopnest.ArgOutput, Type: l.types[out.Func], Rank: len(f.Domain), Region: out.Region,
		})
	}

	for _, id := range l.order {
		if !l.materialized(id) {
			continue
		}
		f := l.g.Func(id)
		p.Realizations = append(p.Realizations, loopnest.Realization{
			Func: f.Name, Type: l.types[id], Region: l.regions[id], Output: l.isOutput(id),
		})
		body, err := l.stage(f)
		if err != nil {
			return nil, err
		}
		p.Stages = append(p.Stages, loopnest.Stage{Func: f.Name, Body: body})
	}
	return p, nil
}

// dim is one loop of a function's nest while directives are replayed.
type dim struct {
	min    int64
	extent int64
	eff    ir.Expr // trip count when it can fall short of extent, else nil
}

// binding defines a split-away variable in terms of its outer and inner loops.
type binding struct {
	v     string
	value ir.Expr
}

// stage builds the loop nest of one materialized function by replaying its
// splits over the function's region and nesting the loops in the order the
// schedule ended with.
func (l *lowerer) stage(f *ir.Func) ([]loopnest.Stmt, error) {
	region := l.regions[f.ID]
	dims := make(map[string]*dim, len(f.Domain))
	for i, v := range f.Domain {
		dims[v] = &dim{min: region[i].Min, extent: region[i].Extent}
	}

	var defs []binding
	split := func(v, outer, inner string, factor int) {
		d := dims[v]
		delete(dims, v)
		k := int64(factor)
		o := &dim{extent: ceilDiv(d.extent, k)}
		in := &dim{extent: k}

		var remaining ir.Expr = ir.Int(d.extent)
		switch {
		case d.eff != nil:
			// d.eff counts what is left of the parent's range and may exceed
			// the parent's own trip count
			remaining = ir.Min(d.eff, ir.Int(d.extent))
			in.extent = min(k, d.extent)
			o.eff = ir.Div(ir.Add(remaining, ir.Int(k-1)), ir.Int(k))
			in.eff = ir.Sub(remaining, ir.Mul(ir.V(outer), ir.Int(k)))
		case k >= d.extent:
			in.extent = d.extent
		case d.extent%k != 0:
			in.eff = ir.Sub(remaining, ir.Mul(ir.V(outer), ir.Int(k)))
		}
		dims[outer], dims[inner] = o, in

		var value ir.Expr = ir.Add(ir.Mul(ir.V(outer), ir.Int(k)), ir.V(inner))
		if d.min != 0 {
			value = ir.Add(ir.Int(d.min), value)
		}
		defs = append(defs, binding{v: v, value: value})
	}
	for _, d := range f.Schedule.Directives() {
		switch d := d.(type) {
		case ir.Split:
			split(d.Var, d.Outer, d.Inner, d.Factor)
		case ir.Tile:
			split(d.X, d.XOuter, d.XInner, d.XFactor)
			split(d.Y, d.YOuter, d.YInner, d.YFactor)
		}
	}

	vars := f.Schedule.Vars()
	if err := l.checkParallelInner(f, vars); err != nil {
		return nil, err
	}

	outerFirst := slices.Clone(vars)
	slices.Reverse(outerFirst)
	depth := make(map[string]int, len(outerFirst))
	loops := make([]*loopnest.Loop, len(outerFirst))
	var guards []ir.Expr
	for p, name := range outerFirst {
		depth[name] = p
		d := dims[name]
		st := f.Schedule.Strategy(name)
		loops[p] = &loopnest.Loop{
			Var: name, Min: d.min, Extent: d.extent,
			Parallel: st.Parallel, Mode: st.Mode, Factor: st.Factor,
		}
		if d.eff == nil {
			continue
		}
		hoistable := true
		for _, v := range ir.FreeVariables(d.eff) {
			if dp, ok := depth[v]; !ok || dp >= p {
				hoistable = false
			}
		}
		if hoistable {
			loops[p].Clamp = d.eff
		} else {
			guards = append(guards, ir.Lt(ir.V(name), d.eff))
		}
	}

	// Later splits refine variables that earlier bindings are written in, so
	// bindings are evaluated newest first.
	for i := len(defs) - 1; i >= 0; i-- {
		def := defs[i]
		at := -1
		for _, v := range ir.FreeVariables(def.value) {
			at = max(at, depth[v])
		}
		depth[def.v] = at
		loops[at].Lets = append(loops[at].Lets, loopnest.Let{Var: def.v, Value: def.value})
	}

	index := make([]ir.Expr, len(f.Domain))
	for i, v := range f.Domain {
		index[i] = ir.V(v)
	}
	store := &loopnest.Store{Buffer: f.Name, Index: index, Value: l.bodies[f.ID], Guards: guards}

	l.log.Debug("lowered function", "func", f.Name, "loops", outerFirst, "guards", len(guards))
	if len(loops) == 0 {
		return []loopnest.Stmt{store}, nil
	}
	for p := 0; p < len(loops)-1; p++ {
		loops[p].Body = []loopnest.Stmt{loops[p+1]}
	}
	loops[len(loops)-1].Body = []loopnest.Stmt{store}
	return []loopnest.Stmt{loops[0]}, nil
}

// checkParallelInner rejects a parallel innermost loop that also carries a
// lockstep strategy: vector and unroll strategies need a fixed inner loop.
func (l *lowerer) checkParallelInner(f *ir.Func, vars []string) error {
	if len(vars) == 0 {
		return nil
	}
	inner := vars[0]
	st := f.Schedule.Strategy(inner)
	if !st.Parallel || st.Mode == ir.Serial {
		return nil
	}
	var directive ir.Directive
	for _, d := range f.Schedule.Directives() {
		if p, ok := d.(ir.Parallelize); ok && p.Var == inner {
			directive = p
		}
	}
	return ir.Errorf(ir.KindInvalidParallelInner,
		"%q is the innermost loop and is %s; only an outer loop may also be parallel", inner, st.Mode).
		InFunc(f.Name).OnVar(inner).WithDirective(directive)
}

func ceilDiv(a, b int64) int64 { return (a + b - 1) / b }

func formatRanges(rs []ir.Range) string {
	if len(rs) == 0 {
		return "scalar"
	}
	s := ""
	for i, r := range rs {
		if i > 0 {
			s += " x "
		}
		s += r.String()
	}
	return s
}
