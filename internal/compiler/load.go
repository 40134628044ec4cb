package compiler

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/nestc/internal/ir"
)

// DefaultVectorBits is the vector register width assumed when neither the
// pipeline file nor the caller names one.
const DefaultVectorBits = 256

// Generator is one named pipeline definition from a CUE file. It is turned
// into a graph by Build once generator params are fixed.
type Generator struct {
	Name string

	// Params are the generator params with their declared defaults, in
	// declaration order.
	Params []GeneratorParam

	// VectorBits is the file's target.vector_bits, or 0 if unset.
	VectorBits int

	value cue.Value
}

// GeneratorParam is a boolean build-time switch used by `when` on schedule
// entries.
type GeneratorParam struct {
	Name    string
	Default bool
}

// BuildOptions fixes the build-time choices of a generator.
type BuildOptions struct {
	// Set overrides generator params by name.
	Set map[string]bool

	// VectorBits overrides the target vector width when > 0.
	VectorBits int
}

// CompileError is an error in a pipeline file, with its source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}

// LoadGenerators reads every generator under the top-level `pipeline` field
// of a .cue file, or of the CUE package in a directory.
func LoadGenerators(path string) ([]*Generator, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	ctx := cuecontext.New()
	var value cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, fmt.Errorf("load %s: no CUE instances", path)
		}
		if instances[0].Err != nil {
			return nil, formatCUEError(instances[0].Err)
		}
		value = ctx.BuildInstance(instances[0])
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		value = ctx.CompileBytes(data, cue.Filename(path))
	}
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return generatorsFrom(value)
}

// LoadGeneratorsString is LoadGenerators for in-memory CUE source.
func LoadGeneratorsString(src, filename string) ([]*Generator, error) {
	value := cuecontext.New().CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return generatorsFrom(value)
}

func generatorsFrom(value cue.Value) ([]*Generator, error) {
	root := value.LookupPath(cue.ParsePath("pipeline"))
	if !root.Exists() {
		return nil, &CompileError{Field: "pipeline", Message: "no pipeline definitions found", Pos: value.Pos()}
	}
	iter, err := root.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var gens []*Generator
	for iter.Next() {
		v := iter.Value()
		gen := &Generator{Name: iter.Selector().Unquoted(), value: v}

		if params := v.LookupPath(cue.ParsePath("generator_params")); params.Exists() {
			pi, err := params.Fields()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for pi.Next() {
				b, err := pi.Value().Bool()
				if err != nil {
					return nil, &CompileError{Field: "generator_params." + pi.Selector().Unquoted(), Message: "must be a bool", Pos: pi.Value().Pos()}
				}
				gen.Params = append(gen.Params, GeneratorParam{Name: pi.Selector().Unquoted(), Default: b})
			}
		}

		if bits := v.LookupPath(cue.ParsePath("target.vector_bits")); bits.Exists() {
			n, err := bits.Int64()
			if err != nil || n <= 0 {
				return nil, &CompileError{Field: "target.vector_bits", Message: "must be a positive integer", Pos: bits.Pos()}
			}
			gen.VectorBits = int(n)
		}
		gens = append(gens, gen)
	}
	return gens, nil
}

// FindGenerator selects a generator by name. An empty name selects the only
// generator when there is exactly one.
func FindGenerator(gens []*Generator, name string) (*Generator, error) {
	if name == "" {
		if len(gens) == 1 {
			return gens[0], nil
		}
		names := make([]string, len(gens))
		for i, g := range gens {
			names[i] = g.Name
		}
		return nil, fmt.Errorf("%d generators defined (%s); select one by name", len(gens), strings.Join(names, ", "))
	}
	for _, g := range gens {
		if g.Name == name {
			return g, nil
		}
	}
	return nil, fmt.Errorf("no generator named %q", name)
}

// Build constructs the graph described by the generator. Graph, schedule
// and output errors are returned as *ir.Error; malformed file content as
// *CompileError.
func (gen *Generator) Build(opts BuildOptions) (*ir.Graph, error) {
	params := make(map[string]bool, len(gen.Params))
	for _, p := range gen.Params {
		params[p.Name] = p.Default
	}
	for name, val := range opts.Set {
		if _, ok := params[name]; !ok {
			return nil, fmt.Errorf("generator %s has no generator param %q", gen.Name, name)
		}
		params[name] = val
	}
	bits := DefaultVectorBits
	switch {
	case opts.VectorBits > 0:
		bits = opts.VectorBits
	case gen.VectorBits > 0:
		bits = gen.VectorBits
	}

	b := &builder{gen: gen, g: ir.NewGraph(gen.Name), params: params, vectorBits: bits}
	for _, step := range []func() error{b.inputs, b.funcs, b.schedules, b.outputs} {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return b.g, nil
}

type builder struct {
	gen        *Generator
	g          *ir.Graph
	params     map[string]bool
	vectorBits int
}

func (b *builder) fields(path string) (*cue.Iterator, cue.Value, error) {
	v := b.gen.value.LookupPath(cue.ParsePath(path))
	if !v.Exists() {
		return nil, v, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, v, formatCUEError(err)
	}
	return iter, v, nil
}

func (b *builder) inputs() error {
	iter, _, err := b.fields("inputs")
	if err != nil || iter == nil {
		return err
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		v := iter.Value()
		field := "inputs." + name
		kind, err := stringField(v, "kind", field)
		if err != nil {
			return err
		}
		typName, err := stringField(v, "type", field)
		if err != nil {
			return err
		}
		typ, err := ir.ParseScalarType(typName)
		if err != nil {
			return &CompileError{Field: field + ".type", Message: err.Error(), Pos: v.Pos()}
		}

		switch kind {
		case "param":
			def := v.LookupPath(cue.ParsePath("default"))
			if !def.Exists() {
				if _, err := b.g.DeclareParam(name, typ); err != nil {
					return err
				}
				continue
			}
			c, err := constFrom(def, typ, field+".default")
			if err != nil {
				return err
			}
			if _, err := b.g.DeclareParamDefault(name, c); err != nil {
				return err
			}
		case "image":
			rank, err := intField(v, "rank", field)
			if err != nil {
				return err
			}
			if _, err := b.g.DeclareImage(name, typ, rank); err != nil {
				return err
			}
		default:
			return &CompileError{Field: field + ".kind", Message: fmt.Sprintf("kind must be \"param\" or \"image\", got %q", kind), Pos: v.Pos()}
		}
	}
	return nil
}

func (b *builder) funcs() error {
	iter, _, err := b.fields("funcs")
	if err != nil || iter == nil {
		return err
	}
	type pending struct {
		id   ir.FuncID
		expr cue.Value
		name string
	}
	var defs []pending
	for iter.Next() {
		name := iter.Selector().Unquoted()
		v := iter.Value()
		vars, err := stringList(v.LookupPath(cue.ParsePath("vars")), "funcs."+name+".vars")
		if err != nil {
			return err
		}
		id, err := b.g.Declare(name, vars...)
		if err != nil {
			return err
		}
		defs = append(defs, pending{id: id, expr: v.LookupPath(cue.ParsePath("expr")), name: name})
	}

	// every function is declared before any body is parsed, so bodies may
	// read functions defined later in the file
	for _, d := range defs {
		field := "funcs." + d.name + ".expr"
		src, err := d.expr.String()
		if err != nil {
			return &CompileError{Field: field, Message: "expr must be a string", Pos: d.expr.Pos()}
		}
		e, err := ParseExpr(src, b.g)
		if err != nil {
			return &CompileError{Field: field, Message: err.Error(), Pos: d.expr.Pos()}
		}
		if err := b.g.Define(d.id, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) schedules() error {
	iter, _, err := b.fields("funcs")
	if err != nil || iter == nil {
		return err
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		sched := iter.Value().LookupPath(cue.ParsePath("schedule"))
		if !sched.Exists() {
			continue
		}
		id, _ := b.g.FuncByName(name)
		list, err := sched.List()
		if err != nil {
			return formatCUEError(err)
		}
		for i := 0; list.Next(); i++ {
			field := fmt.Sprintf("funcs.%s.schedule[%d]", name, i)
			d, skip, err := b.directive(id, list.Value(), field)
			if err != nil {
				return err
			}
			if skip {
				continue
			}
			if err := b.g.Attach(id, d); err != nil {
				return err
			}
		}
	}
	return nil
}

var directiveKeys = []string{"split", "reorder", "vectorize", "parallel", "unroll", "tile", "compute_root"}

// directive decodes one schedule entry. skip is true when the entry's
// `when` generator param is false.
func (b *builder) directive(id ir.FuncID, v cue.Value, field string) (d ir.Directive, skip bool, err error) {
	if when := v.LookupPath(cue.ParsePath("when")); when.Exists() {
		param, err := when.String()
		if err != nil {
			return nil, false, &CompileError{Field: field + ".when", Message: "must name a generator param", Pos: when.Pos()}
		}
		on, ok := b.params[param]
		if !ok {
			return nil, false, &CompileError{Field: field + ".when", Message: fmt.Sprintf("unknown generator param %q", param), Pos: when.Pos()}
		}
		if !on {
			return nil, true, nil
		}
	}

	var key string
	for _, k := range directiveKeys {
		if v.LookupPath(cue.ParsePath(k)).Exists() {
			if key != "" {
				return nil, false, &CompileError{Field: field, Message: fmt.Sprintf("entry names both %s and %s", key, k), Pos: v.Pos()}
			}
			key = k
		}
	}

	switch key {
	case "split":
		var s ir.Split
		if s.Var, err = stringField(v, "split", field); err != nil {
			return nil, false, err
		}
		if s.Outer, err = stringField(v, "outer", field); err != nil {
			return nil, false, err
		}
		if s.Inner, err = stringField(v, "inner", field); err != nil {
			return nil, false, err
		}
		if s.Factor, err = intField(v, "factor", field); err != nil {
			return nil, false, err
		}
		return s, false, nil
	case "reorder":
		vars, err := stringList(v.LookupPath(cue.ParsePath("reorder")), field+".reorder")
		if err != nil {
			return nil, false, err
		}
		return ir.Reorder{Vars: vars}, false, nil
	case "vectorize":
		vec := ir.Vectorize{}
		if vec.Var, err = stringField(v, "vectorize", field); err != nil {
			return nil, false, err
		}
		if vec.Width, err = b.width(id, v, field); err != nil {
			return nil, false, err
		}
		return vec, false, nil
	case "parallel":
		p := ir.Parallelize{}
		if p.Var, err = stringField(v, "parallel", field); err != nil {
			return nil, false, err
		}
		return p, false, nil
	case "unroll":
		u := ir.Unroll{}
		if u.Var, err = stringField(v, "unroll", field); err != nil {
			return nil, false, err
		}
		if u.Factor, err = intField(v, "factor", field); err != nil {
			return nil, false, err
		}
		return u, false, nil
	case "tile":
		return b.tile(v, field)
	case "compute_root":
		on, err := v.LookupPath(cue.ParsePath("compute_root")).Bool()
		if err != nil || !on {
			return nil, false, &CompileError{Field: field + ".compute_root", Message: "must be true", Pos: v.Pos()}
		}
		return ir.ComputeRoot{}, false, nil
	default:
		return nil, false, &CompileError{
			Field:   field,
			Message: "entry names no directive; expected one of " + strings.Join(directiveKeys, ", "),
			Pos:     v.Pos(),
		}
	}
}

// width resolves a vectorize width: an integer, or "natural" for the number
// of lanes of the function's type that fit the target vector width.
func (b *builder) width(id ir.FuncID, v cue.Value, field string) (int, error) {
	w := v.LookupPath(cue.ParsePath("width"))
	if s, err := w.String(); err == nil {
		if s != "natural" {
			return 0, &CompileError{Field: field + ".width", Message: fmt.Sprintf("width must be an integer or \"natural\", got %q", s), Pos: w.Pos()}
		}
		typ, err := b.g.FuncType(id)
		if err != nil {
			return 0, err
		}
		return max(1, b.vectorBits/typ.Bits()), nil
	}
	return intField(v, "width", field)
}

func (b *builder) tile(v cue.Value, field string) (ir.Directive, bool, error) {
	vars, err := stringList(v.LookupPath(cue.ParsePath("tile")), field+".tile")
	if err != nil {
		return nil, false, err
	}
	outer, err := stringList(v.LookupPath(cue.ParsePath("outer")), field+".outer")
	if err != nil {
		return nil, false, err
	}
	inner, err := stringList(v.LookupPath(cue.ParsePath("inner")), field+".inner")
	if err != nil {
		return nil, false, err
	}
	factors := v.LookupPath(cue.ParsePath("factors"))
	var fs []int
	if list, err := factors.List(); err == nil {
		for list.Next() {
			n, err := list.Value().Int64()
			if err != nil {
				return nil, false, &CompileError{Field: field + ".factors", Message: "factors must be integers", Pos: factors.Pos()}
			}
			fs = append(fs, int(n))
		}
	}
	if len(vars) != 2 || len(outer) != 2 || len(inner) != 2 || len(fs) != 2 {
		return nil, false, &CompileError{Field: field, Message: "tile needs two vars, outer names, inner names and factors", Pos: v.Pos()}
	}
	return ir.Tile{
		X: vars[0], Y: vars[1],
		XOuter: outer[0], YOuter: outer[1],
		XInner: inner[0], YInner: inner[1],
		XFactor: fs[0], YFactor: fs[1],
	}, false, nil
}

func (b *builder) outputs() error {
	iter, v, err := b.fields("outputs")
	if err != nil {
		return err
	}
	if iter == nil {
		return &CompileError{Field: "outputs", Message: "at least one output with an explicit region is required", Pos: v.Pos()}
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		field := "outputs." + name
		id, ok := b.g.FuncByName(name)
		if !ok {
			return &CompileError{Field: field, Message: fmt.Sprintf("no function named %q", name), Pos: iter.Value().Pos()}
		}
		list, err := iter.Value().List()
		if err != nil {
			return formatCUEError(err)
		}
		var region []ir.Range
		for list.Next() {
			rv := list.Value()
			lo, err := int64Field(rv, "min", field)
			if err != nil {
				return err
			}
			ext, err := int64Field(rv, "extent", field)
			if err != nil {
				return err
			}
			region = append(region, ir.Range{Min: lo, Extent: ext})
		}
		if err := b.g.SetOutput(id, region...); err != nil {
			return err
		}
	}
	return nil
}

func stringField(v cue.Value, key, field string) (string, error) {
	f := v.LookupPath(cue.ParsePath(key))
	if !f.Exists() {
		return "", &CompileError{Field: field + "." + key, Message: key + " is required", Pos: v.Pos()}
	}
	s, err := f.String()
	if err != nil {
		return "", &CompileError{Field: field + "." + key, Message: "must be a string", Pos: f.Pos()}
	}
	return s, nil
}

func int64Field(v cue.Value, key, field string) (int64, error) {
	f := v.LookupPath(cue.ParsePath(key))
	if !f.Exists() {
		return 0, &CompileError{Field: field + "." + key, Message: key + " is required", Pos: v.Pos()}
	}
	n, err := f.Int64()
	if err != nil {
		return 0, &CompileError{Field: field + "." + key, Message: "must be an integer", Pos: f.Pos()}
	}
	return n, nil
}

func intField(v cue.Value, key, field string) (int, error) {
	n, err := int64Field(v, key, field)
	return int(n), err
}

func stringList(v cue.Value, field string) ([]string, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: field, Message: "is required", Pos: v.Pos()}
	}
	list, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: v.Pos()}
	}
	var out []string
	for list.Next() {
		s, err := list.Value().String()
		if err != nil {
			return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: list.Value().Pos()}
		}
		out = append(out, s)
	}
	return out, nil
}

// constFrom converts a CUE number or bool to a constant of type t.
func constFrom(v cue.Value, t ir.ScalarType, field string) (ir.Const, error) {
	switch {
	case t == ir.Bool:
		b, err := v.Bool()
		if err != nil {
			return ir.Const{}, &CompileError{Field: field, Message: "must be a bool", Pos: v.Pos()}
		}
		return ir.BoolConst(b), nil
	case t.IsFloat():
		f, err := v.Float64()
		if err != nil {
			return ir.Const{}, &CompileError{Field: field, Message: "must be a number", Pos: v.Pos()}
		}
		return ir.Const{Type: t, F: ir.NormFloat(t, f)}, nil
	default:
		n, err := v.Int64()
		if err != nil {
			return ir.Const{}, &CompileError{Field: field, Message: "must be an integer", Pos: v.Pos()}
		}
		return ir.Const{Type: t, I: ir.NormInt(t, n)}, nil
	}
}

// IsCompileError reports whether err is a pipeline file error.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// ParamNames returns the generator param names in declaration order.
func (gen *Generator) ParamNames() []string {
	names := make([]string, len(gen.Params))
	for i, p := range gen.Params {
		names[i] = p.Name
	}
	return slices.Clip(names)
}
