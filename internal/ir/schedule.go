package ir

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Directive is one scheduling transformation attached to a Function.
//
// This is a sealed interface. Directives compose left-to-right: each one is a
// structural rewrite of the loop nest produced by the ones before it.
type Directive interface {
	directive()
	String() string
}

// Split replaces Var with Outer (ceil(extent/Factor) iterations) enclosing
// Inner (Factor iterations, clamped on the final outer iteration).
type Split struct {
	Var, Outer, Inner string
	Factor            int
}

// Reorder sets the nesting order. Vars lists every current loop variable,
// innermost first.
type Reorder struct {
	Vars []string
}

// Vectorize executes Var's loop in lockstep blocks of Width lanes.
type Vectorize struct {
	Var   string
	Width int
}

// Parallelize distributes Var's iterations over the worker pool.
type Parallelize struct {
	Var string
}

// Unroll replicates Var's loop body Factor times.
type Unroll struct {
	Var    string
	Factor int
}

// Tile splits X and Y and nests the two inner loops inside the two outer ones.
type Tile struct {
	X, Y             string
	XOuter, YOuter   string
	XInner, YInner   string
	XFactor, YFactor int
}

// ComputeRoot materializes the Function into its own buffer instead of
// inlining it into its consumer.
type ComputeRoot struct{}

func (Split) directive()       {}
func (Reorder) directive()     {}
func (Vectorize) directive()   {}
func (Parallelize) directive() {}
func (Unroll) directive()      {}
func (Tile) directive()        {}
func (ComputeRoot) directive() {}

func (d Split) String() string {
	return fmt.Sprintf("split(%s, %s, %s, %d)", d.Var, d.Outer, d.Inner, d.Factor)
}
func (d Reorder) String() string   { return "reorder(" + strings.Join(d.Vars, ", ") + ")" }
func (d Vectorize) String() string { return fmt.Sprintf("vectorize(%s, %d)", d.Var, d.Width) }
func (d Parallelize) String() string {
	return "parallel(" + d.Var + ")"
}
func (d Unroll) String() string { return fmt.Sprintf("unroll(%s, %d)", d.Var, d.Factor) }
func (d Tile) String() string {
	return fmt.Sprintf("tile(%s, %s, %s, %s, %s, %s, %d, %d)",
		d.X, d.Y, d.XOuter, d.YOuter, d.XInner, d.YInner, d.XFactor, d.YFactor)
}
func (ComputeRoot) String() string { return "compute_root()" }

// LoopMode is the lockstep execution strategy of a loop.
type LoopMode uint8

const (
	Serial LoopMode = iota
	Vectorized
	Unrolled
)

func (m LoopMode) String() string {
	switch m {
	case Vectorized:
		return "vectorized"
	case Unrolled:
		return "unrolled"
	default:
		return "serial"
	}
}

// Strategy is the execution strategy attached to one loop variable.
type Strategy struct {
	Mode     LoopMode
	Factor   int // lanes for Vectorized, copies for Unrolled
	Parallel bool
}

// Schedule is a Function's ordered directive list together with the loop
// variable set those directives have produced so far.
type Schedule struct {
	directives  []Directive
	vars        []string // innermost first
	strategies  map[string]Strategy
	used        map[string]bool // every loop name ever introduced
	computeRoot bool
}

func newSchedule(domain []string) *Schedule {
	used := make(map[string]bool, len(domain))
	for _, v := range domain {
		used[v] = true
	}
	return &Schedule{
		vars:       slices.Clone(domain),
		strategies: make(map[string]Strategy),
		used:       used,
	}
}

// Directives returns the attached directives in attachment order.
func (s *Schedule) Directives() []Directive { return slices.Clone(s.directives) }

// Vars returns the current loop variables, innermost first.
func (s *Schedule) Vars() []string { return slices.Clone(s.vars) }

// Strategy returns the strategy attached to loop variable v.
func (s *Schedule) Strategy(v string) Strategy { return s.strategies[v] }

// IsComputeRoot reports whether the ComputeRoot marker was attached.
func (s *Schedule) IsComputeRoot() bool { return s.computeRoot }

// HasLoopDirectives reports whether any directive other than ComputeRoot is
// attached.
func (s *Schedule) HasLoopDirectives() bool {
	for _, d := range s.directives {
		if _, ok := d.(ComputeRoot); !ok {
			return true
		}
	}
	return false
}

// attach validates d against the current variable set, applies it and
// records it. The schedule is unchanged when an error is returned.
func (s *Schedule) attach(d Directive) error {
	next := &Schedule{
		vars:        slices.Clone(s.vars),
		strategies:  maps.Clone(s.strategies),
		used:        maps.Clone(s.used),
		computeRoot: s.computeRoot,
	}
	if err := next.apply(d); err != nil {
		return err.WithDirective(d)
	}
	s.vars = next.vars
	s.strategies = next.strategies
	s.used = next.used
	s.computeRoot = next.computeRoot
	s.directives = append(s.directives, d)
	return nil
}

func (s *Schedule) apply(d Directive) *Error {
	switch d := d.(type) {
	case Split:
		return s.split(d.Var, d.Outer, d.Inner, d.Factor)
	case Reorder:
		return s.reorder(d.Vars)
	case Vectorize:
		return s.setMode(d.Var, Vectorized, d.Width)
	case Unroll:
		return s.setMode(d.Var, Unrolled, d.Factor)
	case Parallelize:
		if err := s.require(d.Var); err != nil {
			return err
		}
		st := s.strategies[d.Var]
		st.Parallel = true
		s.strategies[d.Var] = st
		return nil
	case Tile:
		if d.X == d.Y {
			return Errorf(KindUnsupportedConstruct, "tile needs two distinct variables").OnVar(d.X)
		}
		if err := s.split(d.X, d.XOuter, d.XInner, d.XFactor); err != nil {
			return err
		}
		if err := s.split(d.Y, d.YOuter, d.YInner, d.YFactor); err != nil {
			return err
		}
		s.nestTile(d)
		return nil
	case ComputeRoot:
		s.computeRoot = true
		return nil
	default:
		return Errorf(KindUnsupportedConstruct, "unknown directive %T", d)
	}
}

func (s *Schedule) require(v string) *Error {
	if !slices.Contains(s.vars, v) {
		return Errorf(KindUnknownScheduleVariable, "no loop variable %q; current loops are [%s]",
			v, strings.Join(s.vars, ", ")).OnVar(v)
	}
	return nil
}

func (s *Schedule) split(v, outer, inner string, factor int) *Error {
	if err := s.require(v); err != nil {
		return err
	}
	if factor <= 0 {
		return Errorf(KindUnsupportedConstruct, "split factor must be positive, got %d", factor).OnVar(v)
	}
	if outer == "" || inner == "" || outer == inner {
		return Errorf(KindUnsupportedConstruct, "split of %q needs two distinct new names", v).OnVar(v)
	}
	for _, n := range []string{outer, inner} {
		if s.used[n] {
			return Errorf(KindUnsupportedConstruct, "split name %q is already used by this function", n).OnVar(v)
		}
	}
	if st, ok := s.strategies[v]; ok && st != (Strategy{}) {
		return Errorf(KindConflictingStrategy, "cannot split %q after attaching an execution strategy to it", v).OnVar(v)
	}
	i := slices.Index(s.vars, v)
	s.vars = slices.Replace(s.vars, i, i+1, inner, outer)
	s.used[outer] = true
	s.used[inner] = true
	delete(s.strategies, v)
	return nil
}

func (s *Schedule) reorder(order []string) *Error {
	if len(order) != len(s.vars) {
		return Errorf(KindReorderMismatch, "reorder lists %d variables, function has %d loops [%s]",
			len(order), len(s.vars), strings.Join(s.vars, ", "))
	}
	seen := make(map[string]bool, len(order))
	for _, v := range order {
		if seen[v] {
			return Errorf(KindReorderMismatch, "reorder lists %q twice", v).OnVar(v)
		}
		seen[v] = true
		if !slices.Contains(s.vars, v) {
			return Errorf(KindReorderMismatch, "reorder lists %q, which is not a loop of this function", v).OnVar(v)
		}
	}
	s.vars = slices.Clone(order)
	return nil
}

func (s *Schedule) setMode(v string, mode LoopMode, factor int) *Error {
	if err := s.require(v); err != nil {
		return err
	}
	if factor <= 0 {
		return Errorf(KindUnsupportedConstruct, "%s factor must be positive, got %d", mode, factor).OnVar(v)
	}
	st := s.strategies[v]
	if st.Mode != Serial {
		return Errorf(KindConflictingStrategy, "%q is already %s; a loop may be vectorized or unrolled, not both", v, st.Mode).OnVar(v)
	}
	st.Mode = mode
	st.Factor = factor
	s.strategies[v] = st
	return nil
}

// nestTile moves the four tile loops into xi, yi, xo, yo order while other
// loops keep their positions.
func (s *Schedule) nestTile(d Tile) {
	tile := []string{d.XInner, d.YInner, d.XOuter, d.YOuter}
	next := 0
	for i, v := range s.vars {
		if slices.Contains(tile, v) {
			s.vars[i] = tile[next]
			next++
		}
	}
}
