package loopnest

import (
	"github.com/roach88/nestc/internal/ir"
)

// Stmt is a node of the loop-nest tree.
//
// This is a sealed interface - only *Loop and *Store implement it, so the
// emitter can dispatch exhaustively.
type Stmt interface {
	stmtNode()
}

// Loop iterates Var over [Min, Min+n) where n = Extent, or
// min(Extent, Clamp) when Clamp is set. Clamp is an integer expression over
// variables bound by enclosing loops.
//
// Lets are evaluated in order at the top of every iteration, after Var is
// bound and before Body runs.
type Loop struct {
	Var      string
	Min      int64
	Extent   int64
	Clamp    ir.Expr
	Parallel bool
	Mode     ir.LoopMode
	Factor   int
	Lets     []Let
	Body     []Stmt
}

// Let binds a split-derived variable.
type Let struct {
	Var   string
	Value ir.Expr
}

// Store writes Value into Buffer at Index. The store is skipped for an
// iteration in which any guard evaluates to false.
type Store struct {
	Buffer string
	Index  []ir.Expr
	Value  ir.Expr
	Guards []ir.Expr
}

func (*Loop) stmtNode()  {}
func (*Store) stmtNode() {}

// ArgKind distinguishes the three kinds of signature entries.
type ArgKind uint8

const (
	ArgScalar ArgKind = iota + 1
	ArgInput
	ArgOutput
)

func (k ArgKind) String() string {
	switch k {
	case ArgScalar:
		return "scalar"
	case ArgInput:
		return "input"
	case ArgOutput:
		return "output"
	default:
		return "unknown"
	}
}

// Arg is one entry of a compiled artifact's signature.
//
// For ArgInput, Region is the inferred region the pipeline reads; a bound
// buffer must cover it. For ArgOutput, Region is the exact output domain.
type Arg struct {
	Name    string
	Kind    ArgKind
	Type    ir.ScalarType
	Rank    int
	Region  []ir.Range
	Default *ir.Const
}

// Realization is storage for a materialized Function: either a caller
// supplied output or an intermediate allocated per invocation.
type Realization struct {
	Func   string
	Type   ir.ScalarType
	Region []ir.Range
	Output bool
}

// Stage computes one materialized Function.
type Stage struct {
	Func string
	Body []Stmt
}

// Program is the lowered pipeline: a signature, the storage it needs and
// the stages in producer-before-consumer order.
type Program struct {
	Name         string
	Args         []Arg
	Realizations []Realization
	Stages       []Stage
}

// Scalars returns the scalar signature entries in declaration order.
func (p *Program) Scalars() []Arg { return p.argsOf(ArgScalar) }

// Buffers returns the input then output signature entries in declaration
// order.
func (p *Program) Buffers() []Arg {
	return append(p.argsOf(ArgInput), p.argsOf(ArgOutput)...)
}

func (p *Program) argsOf(kind ArgKind) []Arg {
	var out []Arg
	for _, a := range p.Args {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// Walk visits every statement of stmts in pre-order.
func Walk(stmts []Stmt, visit func(Stmt)) {
	for _, s := range stmts {
		visit(s)
		if l, ok := s.(*Loop); ok {
			Walk(l.Body, visit)
		}
	}
}

// Innermost reports whether l contains no nested loops.
func (l *Loop) Innermost() bool {
	for _, s := range l.Body {
		if _, ok := s.(*Loop); ok {
			return false
		}
	}
	return true
}
