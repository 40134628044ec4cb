package loopnest

import (
	"bytes"
	"fmt"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/nestc/internal/ir"
)

// programSchema is bumped whenever the wire layout below changes.
const programSchema uint16 = 1

type wireProgram struct {
	Schema       uint16
	IRVersion    string
	Name         string
	Args         []wireArg
	Realizations []wireRealization
	Stages       []wireStage
}

type wireArg struct {
	Name    string
	Kind    uint8
	Type    uint8
	Rank    uint32
	Region  []ir.Range
	Default *wireExpr
}

type wireRealization struct {
	Func   string
	Type   uint8
	Region []ir.Range
	Output bool
}

type wireStage struct {
	Func string
	Body []wireStmt
}

// wireStmt holds exactly one of Loop and Store.
type wireStmt struct {
	Loop  *wireLoop  `msgpack:",omitempty"`
	Store *wireStore `msgpack:",omitempty"`
}

type wireLoop struct {
	Var      string
	Min      int64
	Extent   int64
	Clamp    *wireExpr
	Parallel bool
	Mode     uint8
	Factor   uint32
	Lets     []wireLet
	Body     []wireStmt
}

type wireLet struct {
	Var   string
	Value wireExpr
}

type wireStore struct {
	Buffer string
	Index  []wireExpr
	Value  wireExpr
	Guards []wireExpr
}

// Expression node tags.
const (
	tagConst uint8 = iota + 1
	tagParam
	tagRead
	tagVar
	tagBinary
	tagCast
)

// wireExpr is the tagged form of every ir.Expr node. Children live in Args:
// read coordinates, the two operands of a binary op, or the cast operand.
type wireExpr struct {
	Tag  uint8
	Type uint8      `msgpack:",omitempty"`
	I    int64      `msgpack:",omitempty"`
	F    float64    `msgpack:",omitempty"`
	Name string     `msgpack:",omitempty"`
	Func int32      `msgpack:",omitempty"`
	Op   uint8      `msgpack:",omitempty"`
	Args []wireExpr `msgpack:",omitempty"`
}

// Encode serializes p with msgpack. Equal programs encode to equal bytes.
func Encode(p *Program) ([]byte, error) {
	w := wireProgram{Schema: programSchema, IRVersion: ir.IRVersion, Name: p.Name}
	for _, a := range p.Args {
		rank, err := safecast.Conv[uint32](a.Rank)
		if err != nil {
			return nil, fmt.Errorf("encode arg %s: rank: %w", a.Name, err)
		}
		wa := wireArg{Name: a.Name, Kind: uint8(a.Kind), Type: uint8(a.Type), Rank: rank, Region: a.Region}
		if a.Default != nil {
			d, err := encodeExpr(*a.Default)
			if err != nil {
				return nil, err
			}
			wa.Default = &d
		}
		w.Args = append(w.Args, wa)
	}
	for _, r := range p.Realizations {
		w.Realizations = append(w.Realizations, wireRealization{
			Func: r.Func, Type: uint8(r.Type), Region: r.Region, Output: r.Output,
		})
	}
	for _, s := range p.Stages {
		body, err := encodeStmts(s.Body)
		if err != nil {
			return nil, fmt.Errorf("encode stage %s: %w", s.Func, err)
		}
		w.Stages = append(w.Stages, wireStage{Func: s.Func, Body: body})
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&w); err != nil {
		return nil, fmt.Errorf("encode program: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses bytes produced by Encode.
func Decode(data []byte) (*Program, error) {
	var w wireProgram
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&w); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	if w.Schema != programSchema {
		return nil, fmt.Errorf("decode program: schema %d, want %d", w.Schema, programSchema)
	}
	if w.IRVersion != ir.IRVersion {
		return nil, fmt.Errorf("decode program: IR version %q, want %q", w.IRVersion, ir.IRVersion)
	}

	p := &Program{Name: w.Name}
	for _, wa := range w.Args {
		rank, err := safecast.Conv[int](wa.Rank)
		if err != nil {
			return nil, fmt.Errorf("decode arg %s: rank: %w", wa.Name, err)
		}
		a := Arg{Name: wa.Name, Kind: ArgKind(wa.Kind), Type: ir.ScalarType(wa.Type), Rank: rank, Region: wa.Region}
		if wa.Default != nil {
			e, err := decodeExpr(*wa.Default)
			if err != nil {
				return nil, err
			}
			c, ok := e.(ir.Const)
			if !ok {
				return nil, fmt.Errorf("decode arg %s: default is %T, want a constant", wa.Name, e)
			}
			a.Default = &c
		}
		p.Args = append(p.Args, a)
	}
	for _, wr := range w.Realizations {
		p.Realizations = append(p.Realizations, Realization{
			Func: wr.Func, Type: ir.ScalarType(wr.Type), Region: wr.Region, Output: wr.Output,
		})
	}
	for _, ws := range w.Stages {
		body, err := decodeStmts(ws.Body)
		if err != nil {
			return nil, fmt.Errorf("decode stage %s: %w", ws.Func, err)
		}
		p.Stages = append(p.Stages, Stage{Func: ws.Func, Body: body})
	}
	return p, nil
}

func encodeStmts(stmts []Stmt) ([]wireStmt, error) {
	out := make([]wireStmt, 0, len(stmts))
	for _, s := range stmts {
		switch s := s.(type) {
		case *Loop:
			factor, err := safecast.Conv[uint32](s.Factor)
			if err != nil {
				return nil, fmt.Errorf("loop %s: factor: %w", s.Var, err)
			}
			wl := &wireLoop{
				Var: s.Var, Min: s.Min, Extent: s.Extent,
				Parallel: s.Parallel, Mode: uint8(s.Mode), Factor: factor,
			}
			if s.Clamp != nil {
				c, err := encodeExpr(s.Clamp)
				if err != nil {
					return nil, err
				}
				wl.Clamp = &c
			}
			for _, l := range s.Lets {
				v, err := encodeExpr(l.Value)
				if err != nil {
					return nil, err
				}
				wl.Lets = append(wl.Lets, wireLet{Var: l.Var, Value: v})
			}
			if wl.Body, err = encodeStmts(s.Body); err != nil {
				return nil, err
			}
			out = append(out, wireStmt{Loop: wl})
		case *Store:
			ws := &wireStore{Buffer: s.Buffer}
			var err error
			if ws.Index, err = encodeExprs(s.Index); err != nil {
				return nil, err
			}
			if ws.Value, err = encodeExpr(s.Value); err != nil {
				return nil, err
			}
			if ws.Guards, err = encodeExprs(s.Guards); err != nil {
				return nil, err
			}
			out = append(out, wireStmt{Store: ws})
		default:
			return nil, fmt.Errorf("unknown statement %T", s)
		}
	}
	return out, nil
}

func decodeStmts(ws []wireStmt) ([]Stmt, error) {
	out := make([]Stmt, 0, len(ws))
	for _, w := range ws {
		switch {
		case w.Loop != nil:
			factor, err := safecast.Conv[int](w.Loop.Factor)
			if err != nil {
				return nil, err
			}
			l := &Loop{
				Var: w.Loop.Var, Min: w.Loop.Min, Extent: w.Loop.Extent,
				Parallel: w.Loop.Parallel, Mode: ir.LoopMode(w.Loop.Mode), Factor: factor,
			}
			if w.Loop.Clamp != nil {
				if l.Clamp, err = decodeExpr(*w.Loop.Clamp); err != nil {
					return nil, err
				}
			}
			for _, wl := range w.Loop.Lets {
				v, err := decodeExpr(wl.Value)
				if err != nil {
					return nil, err
				}
				l.Lets = append(l.Lets, Let{Var: wl.Var, Value: v})
			}
			if l.Body, err = decodeStmts(w.Loop.Body); err != nil {
				return nil, err
			}
			out = append(out, l)
		case w.Store != nil:
			s := &Store{Buffer: w.Store.Buffer}
			var err error
			if s.Index, err = decodeExprs(w.Store.Index); err != nil {
				return nil, err
			}
			if s.Value, err = decodeExpr(w.Store.Value); err != nil {
				return nil, err
			}
			if s.Guards, err = decodeExprs(w.Store.Guards); err != nil {
				return nil, err
			}
			out = append(out, s)
		default:
			return nil, fmt.Errorf("empty statement")
		}
	}
	return out, nil
}

func encodeExprs(es []ir.Expr) ([]wireExpr, error) {
	if len(es) == 0 {
		return nil, nil
	}
	out := make([]wireExpr, len(es))
	for i, e := range es {
		w, err := encodeExpr(e)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

func decodeExprs(ws []wireExpr) ([]ir.Expr, error) {
	if len(ws) == 0 {
		return nil, nil
	}
	out := make([]ir.Expr, len(ws))
	for i, w := range ws {
		e, err := decodeExpr(w)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func encodeExpr(e ir.Expr) (wireExpr, error) {
	switch n := e.(type) {
	case ir.Const:
		return wireExpr{Tag: tagConst, Type: uint8(n.Type), I: n.I, F: n.F}, nil
	case ir.ParamRef:
		return wireExpr{Tag: tagParam, Type: uint8(n.Type), Name: n.Name}, nil
	case ir.VarRef:
		return wireExpr{Tag: tagVar, Name: n.Name}, nil
	case ir.BufferRead:
		fn, err := safecast.Conv[int32](int(n.Func))
		if err != nil {
			return wireExpr{}, fmt.Errorf("read of %s: %w", n.Buffer, err)
		}
		args, err := encodeExprs(n.Args)
		if err != nil {
			return wireExpr{}, err
		}
		return wireExpr{Tag: tagRead, Type: uint8(n.Elem), Name: n.Buffer, Func: fn, Args: args}, nil
	case ir.BinaryOp:
		l, err := encodeExpr(n.Left)
		if err != nil {
			return wireExpr{}, err
		}
		r, err := encodeExpr(n.Right)
		if err != nil {
			return wireExpr{}, err
		}
		return wireExpr{Tag: tagBinary, Op: uint8(n.Op), Args: []wireExpr{l, r}}, nil
	case ir.Cast:
		v, err := encodeExpr(n.Value)
		if err != nil {
			return wireExpr{}, err
		}
		return wireExpr{Tag: tagCast, Type: uint8(n.Type), Args: []wireExpr{v}}, nil
	default:
		return wireExpr{}, fmt.Errorf("unknown expression node %T", e)
	}
}

func decodeExpr(w wireExpr) (ir.Expr, error) {
	switch w.Tag {
	case tagConst:
		return ir.Const{Type: ir.ScalarType(w.Type), I: w.I, F: w.F}, nil
	case tagParam:
		return ir.ParamRef{Name: w.Name, Type: ir.ScalarType(w.Type)}, nil
	case tagVar:
		return ir.VarRef{Name: w.Name}, nil
	case tagRead:
		args, err := decodeExprs(w.Args)
		if err != nil {
			return nil, err
		}
		return ir.BufferRead{Buffer: w.Name, Func: ir.FuncID(w.Func), Elem: ir.ScalarType(w.Type), Args: args}, nil
	case tagBinary:
		if len(w.Args) != 2 {
			return nil, fmt.Errorf("binary node has %d operands", len(w.Args))
		}
		l, err := decodeExpr(w.Args[0])
		if err != nil {
			return nil, err
		}
		r, err := decodeExpr(w.Args[1])
		if err != nil {
			return nil, err
		}
		return ir.BinaryOp{Op: ir.Op(w.Op), Left: l, Right: r}, nil
	case tagCast:
		if len(w.Args) != 1 {
			return nil, fmt.Errorf("cast node has %d operands", len(w.Args))
		}
		v, err := decodeExpr(w.Args[0])
		if err != nil {
			return nil, err
		}
		return ir.Cast{Type: ir.ScalarType(w.Type), Value: v}, nil
	default:
		return nil, fmt.Errorf("unknown expression tag %d", w.Tag)
	}
}
