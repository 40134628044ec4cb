package engine

import (
	"log/slog"

	"github.com/roach88/nestc/internal/ir"
	"github.com/roach88/nestc/internal/loopnest"
)

// Backend limits. Loops beyond them are UnsupportedConstruct errors at
// emission time.
const (
	MaxVectorWidth  = 64
	MaxUnrollFactor = 256
)

// step runs one statement against a frame.
type step func(fr *frame) error

// rangeRunner runs iterations [lo, hi) of a loop, counted from the loop's
// minimum.
type rangeRunner func(fr *frame, lo, hi int64) error

// stageCompiler turns the loop nest of one stage into closures.
type stageCompiler struct {
	*scope
	pool     *pool
	log      *slog.Logger
	nslots   int
	parallel int // enclosing parallel loops
}

func (c *stageCompiler) bind(name string) (int, error) {
	if _, ok := c.vars[name]; ok {
		return 0, c.unsupported("variable %q is bound twice in one loop nest", name)
	}
	slot := c.nslots
	c.vars[name] = slot
	c.nslots++
	return slot, nil
}

func (c *stageCompiler) stmts(body []loopnest.Stmt) (step, error) {
	steps := make([]step, 0, len(body))
	for _, st := range body {
		switch st := st.(type) {
		case *loopnest.Loop:
			s, err := c.loop(st)
			if err != nil {
				return nil, err
			}
			steps = append(steps, s)
		case *loopnest.Store:
			sp, err := c.store(st)
			if err != nil {
				return nil, err
			}
			steps = append(steps, func(fr *frame) error {
				sp.exec(fr)
				return nil
			})
		default:
			return nil, c.unsupported("no lowering for statement %T", st)
		}
	}
	if len(steps) == 1 {
		return steps[0], nil
	}
	return func(fr *frame) error {
		for _, s := range steps {
			if err := s(fr); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

// lane is one evaluated store: the element offset and value, or ok=false
// when a guard rejected the iteration.
type lane struct {
	off int
	i   int64
	f   float64
	ok  bool
}

type storePlan struct {
	buf    int
	off    func(*frame) int
	value  kernel
	guards []intFn
}

func (c *stageCompiler) store(st *loopnest.Store) (*storePlan, error) {
	k, err := c.buffer(st.Buffer, len(st.Index))
	if err != nil {
		return nil, err
	}
	if c.bufInput[k] {
		return nil, c.unsupported("store into input buffer %q", st.Buffer)
	}
	idx, err := c.index(st.Index)
	if err != nil {
		return nil, err
	}
	v, err := c.expr(st.Value)
	if err != nil {
		return nil, err
	}
	sp := &storePlan{buf: k, off: offsetFn(k, idx), value: convert(v, c.bufT[k])}
	for _, g := range st.Guards {
		gk, err := c.expr(g)
		if err != nil {
			return nil, err
		}
		if gk.t != ir.Bool {
			return nil, c.unsupported("store guard %s has type %s, want bool", g, gk.t)
		}
		sp.guards = append(sp.guards, gk.i)
	}
	return sp, nil
}

func (s *storePlan) eval(fr *frame) lane {
	for _, g := range s.guards {
		if g(fr) == 0 {
			return lane{}
		}
	}
	l := lane{off: s.off(fr), ok: true}
	if s.value.f != nil {
		l.f = s.value.f(fr)
	} else {
		l.i = s.value.i(fr)
	}
	return l
}

func (s *storePlan) commit(fr *frame, l lane) {
	if !l.ok {
		return
	}
	b := fr.inv.buffers[s.buf]
	if s.value.f != nil {
		b.floats[l.off] = l.f
	} else {
		b.ints[l.off] = l.i
	}
	b.countWrite(l.off)
}

func (s *storePlan) exec(fr *frame) { s.commit(fr, s.eval(fr)) }

type letPlan struct {
	slot  int
	value intFn
}

func (c *stageCompiler) loop(l *loopnest.Loop) (step, error) {
	var clamp intFn
	if l.Clamp != nil {
		k, err := c.expr(l.Clamp)
		if err != nil {
			return nil, err
		}
		if !k.t.IsInt() {
			return nil, c.unsupported("clamp %s of loop %q has type %s", l.Clamp, l.Var, k.t)
		}
		clamp = k.i
	}

	slot, err := c.bind(l.Var)
	if err != nil {
		return nil, err
	}
	bound := []string{l.Var}
	defer func() {
		for _, v := range bound {
			delete(c.vars, v)
		}
	}()

	lets := make([]letPlan, 0, len(l.Lets))
	for _, let := range l.Lets {
		k, err := c.expr(let.Value)
		if err != nil {
			return nil, err
		}
		if !k.t.IsInt() {
			return nil, c.unsupported("let %s has type %s", let.Var, k.t)
		}
		s, err := c.bind(let.Var)
		if err != nil {
			return nil, err
		}
		bound = append(bound, let.Var)
		lets = append(lets, letPlan{slot: s, value: k.i})
	}
	enter := func(fr *frame, x int64) {
		fr.vars[slot] = x
		for _, let := range lets {
			fr.vars[let.slot] = let.value(fr)
		}
	}

	parallel := l.Parallel && c.parallel == 0
	if l.Parallel && !parallel {
		c.log.Debug("nested parallel loop runs serially", "func", c.stage, "var", l.Var)
	}
	if parallel {
		c.parallel++
		defer func() { c.parallel-- }()
	}

	var run rangeRunner
	switch l.Mode {
	case ir.Serial:
		body, err := c.stmts(l.Body)
		if err != nil {
			return nil, err
		}
		run = serialRunner(l.Min, enter, body)
	case ir.Vectorized:
		if run, err = c.vectorRunner(l, enter); err != nil {
			return nil, err
		}
	case ir.Unrolled:
		if l.Factor < 1 || l.Factor > MaxUnrollFactor {
			return nil, c.unsupported("unroll factor %d of %q is outside [1, %d]", l.Factor, l.Var, MaxUnrollFactor).OnVar(l.Var)
		}
		body, err := c.stmts(l.Body)
		if err != nil {
			return nil, err
		}
		run = unrolledRunner(l.Min, int64(l.Factor), enter, body)
	default:
		return nil, c.unsupported("loop %q has unknown mode %d", l.Var, l.Mode).OnVar(l.Var)
	}

	extent := l.Extent
	trips := func(fr *frame) int64 {
		n := extent
		if clamp != nil {
			n = min(n, clamp(fr))
		}
		return max(n, 0)
	}
	if parallel {
		p := c.pool
		return func(fr *frame) error { return p.run(fr, trips(fr), run) }, nil
	}
	return func(fr *frame) error { return run(fr, 0, trips(fr)) }, nil
}

func serialRunner(base int64, enter func(*frame, int64), body step) rangeRunner {
	return func(fr *frame, lo, hi int64) error {
		for i := lo; i < hi; i++ {
			enter(fr, base+i)
			if err := body(fr); err != nil {
				return err
			}
		}
		return nil
	}
}

// unrolledRunner replicates the body factor times per block and finishes
// with a remainder loop.
func unrolledRunner(base, factor int64, enter func(*frame, int64), body step) rangeRunner {
	copies := make([]func(*frame, int64) error, factor)
	for k := range copies {
		off := int64(k)
		copies[k] = func(fr *frame, at int64) error {
			enter(fr, at+off)
			return body(fr)
		}
	}
	return func(fr *frame, lo, hi int64) error {
		i := lo
		for ; i+factor <= hi; i += factor {
			for _, cp := range copies {
				if err := cp(fr, base+i); err != nil {
					return err
				}
			}
		}
		for ; i < hi; i++ {
			enter(fr, base+i)
			if err := body(fr); err != nil {
				return err
			}
		}
		return nil
	}
}

// vectorRunner evaluates width lanes of an innermost loop before storing
// any of them, then finishes the tail one lane at a time.
func (c *stageCompiler) vectorRunner(l *loopnest.Loop, enter func(*frame, int64)) (rangeRunner, error) {
	if !l.Innermost() {
		return nil, c.unsupported("vectorized loop %q must be innermost", l.Var).OnVar(l.Var)
	}
	if l.Factor < 1 || l.Factor > MaxVectorWidth {
		return nil, c.unsupported("vector width %d of %q is outside [1, %d]", l.Factor, l.Var, MaxVectorWidth).OnVar(l.Var)
	}
	stores := make([]*storePlan, 0, len(l.Body))
	for _, st := range l.Body {
		s, ok := st.(*loopnest.Store)
		if !ok {
			return nil, c.unsupported("vectorized loop %q contains %T", l.Var, st).OnVar(l.Var)
		}
		sp, err := c.store(s)
		if err != nil {
			return nil, err
		}
		stores = append(stores, sp)
	}

	base, width, ns := l.Min, int64(l.Factor), int64(len(stores))
	return func(fr *frame, lo, hi int64) error {
		lanes := make([]lane, width*ns)
		i := lo
		for ; i+width <= hi; i += width {
			for j := int64(0); j < width; j++ {
				enter(fr, base+i+j)
				for s, sp := range stores {
					lanes[j*ns+int64(s)] = sp.eval(fr)
				}
			}
			for j := int64(0); j < width; j++ {
				for s, sp := range stores {
					sp.commit(fr, lanes[j*ns+int64(s)])
				}
			}
		}
		for ; i < hi; i++ {
			enter(fr, base+i)
			for _, sp := range stores {
				sp.exec(fr)
			}
		}
		return nil
	}, nil
}
