package ir

import (
	"fmt"
	"slices"
	"strings"
)

// Param is a named scalar input. Default is nil unless explicitly given.
type Param struct {
	Name    string
	Type    ScalarType
	Default *Const
}

// ImageParam is a named buffer input of a fixed element type and rank.
type ImageParam struct {
	Name string
	Elem ScalarType
	Rank int
}

// Range is a half-open integer interval [Min, Min+Extent).
type Range struct {
	Min    int64 `msgpack:"min" json:"min"`
	Extent int64 `msgpack:"extent" json:"extent"`
}

// Max returns the last coordinate inside r.
func (r Range) Max() int64 { return r.Min + r.Extent - 1 }

func (r Range) String() string { return fmt.Sprintf("[%d, %d)", r.Min, r.Min+r.Extent) }

// Func is one pipeline function: a name, an ordered domain (innermost
// variable first) and exactly one defining expression.
type Func struct {
	ID       FuncID
	Name     string
	Domain   []string
	Body     Expr
	Schedule *Schedule
}

// Defined reports whether the Function has a body.
func (f *Func) Defined() bool { return f.Body != nil }

// Output is a Function requested by the caller together with its explicit
// domain, one Range per domain variable.
type Output struct {
	Func   FuncID
	Region []Range
}

// inputKind distinguishes the two kinds of declared inputs.
type inputKind uint8

const (
	inputParam inputKind = iota + 1
	inputImage
)

type input struct {
	kind  inputKind
	index int
}

// Graph is an arena of Functions addressed by FuncID, together with the
// Parameters and ImageParams they reference.
//
// Graph construction is single-threaded. The graph owns its Functions and
// their expressions; schedules are owned by the Function they are attached to.
type Graph struct {
	Name string

	funcs   []*Func
	byName  map[string]FuncID
	params  []Param
	images  []ImageParam
	inputs  []input // declaration order across params and images
	outputs []Output
}

// NewGraph creates an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{Name: name, byName: make(map[string]FuncID)}
}

// DeclareParam declares a scalar input.
func (g *Graph) DeclareParam(name string, t ScalarType) (ParamRef, error) {
	return g.declareParam(Param{Name: name, Type: t})
}

// DeclareParamDefault declares a scalar input with a default value.
func (g *Graph) DeclareParamDefault(name string, def Const) (ParamRef, error) {
	d := def
	return g.declareParam(Param{Name: name, Type: def.Type, Default: &d})
}

func (g *Graph) declareParam(p Param) (ParamRef, error) {
	if err := g.checkName(p.Name); err != nil {
		return ParamRef{}, err
	}
	if p.Type == Invalid {
		return ParamRef{}, Errorf(KindType, "parameter %q needs a type", p.Name)
	}
	g.params = append(g.params, p)
	g.inputs = append(g.inputs, input{kind: inputParam, index: len(g.params) - 1})
	return ParamRef{Name: p.Name, Type: p.Type}, nil
}

// DeclareImage declares a buffer input.
func (g *Graph) DeclareImage(name string, elem ScalarType, rank int) (ImageParam, error) {
	if err := g.checkName(name); err != nil {
		return ImageParam{}, err
	}
	if elem == Invalid {
		return ImageParam{}, Errorf(KindType, "image %q needs an element type", name)
	}
	if rank < 0 {
		return ImageParam{}, Errorf(KindType, "image %q has negative rank %d", name, rank)
	}
	img := ImageParam{Name: name, Elem: elem, Rank: rank}
	g.images = append(g.images, img)
	g.inputs = append(g.inputs, input{kind: inputImage, index: len(g.images) - 1})
	return img, nil
}

// Read builds a BufferRead of this image.
func (p ImageParam) Read(args ...Expr) BufferRead {
	return BufferRead{Buffer: p.Name, Func: NoFunc, Elem: p.Elem, Args: args}
}

// Declare adds a Function with the given domain variables, innermost first.
func (g *Graph) Declare(name string, domain ...string) (FuncID, error) {
	if err := g.checkName(name); err != nil {
		return NoFunc, err
	}
	seen := make(map[string]bool, len(domain))
	for _, v := range domain {
		if v == "" || seen[v] {
			return NoFunc, Errorf(KindUndeclaredDomain, "domain of %q repeats or omits a variable name", name).InFunc(name).OnVar(v)
		}
		seen[v] = true
	}
	id := FuncID(len(g.funcs))
	g.funcs = append(g.funcs, &Func{
		ID:       id,
		Name:     name,
		Domain:   slices.Clone(domain),
		Schedule: newSchedule(domain),
	})
	g.byName[name] = id
	return id, nil
}

func (g *Graph) checkName(name string) error {
	if name == "" {
		return Errorf(KindRedefinition, "empty name")
	}
	if _, ok := g.byName[name]; ok {
		return Errorf(KindRedefinition, "%q is already declared as a function", name).InFunc(name)
	}
	for _, p := range g.params {
		if p.Name == name {
			return Errorf(KindRedefinition, "%q is already declared as a parameter", name)
		}
	}
	for _, img := range g.images {
		if img.Name == name {
			return Errorf(KindRedefinition, "%q is already declared as an image", name)
		}
	}
	return nil
}

// Call builds a BufferRead of Function id.
func (g *Graph) Call(id FuncID, args ...Expr) BufferRead {
	return BufferRead{Buffer: g.funcs[id].Name, Func: id, Args: args}
}

// Define attaches the body of Function id.
//
// Fails with RedefinitionError if the Function already has a body, and with
// UndeclaredDomainError if the body uses an index variable outside the
// Function's domain or reads a buffer with the wrong number of coordinates.
// Reads of Functions that are not yet defined are accepted; their types are
// checked by Validate.
func (g *Graph) Define(id FuncID, body Expr) error {
	f, err := g.lookup(id)
	if err != nil {
		return err
	}
	if f.Defined() {
		return Errorf(KindRedefinition, "function already has a definition").InFunc(f.Name)
	}
	if body == nil {
		return Errorf(KindType, "definition is nil").InFunc(f.Name)
	}
	for _, v := range FreeVariables(body) {
		if !slices.Contains(f.Domain, v) {
			return Errorf(KindUndeclaredDomain, "variable %q is not in the domain (%s)",
				v, strings.Join(f.Domain, ", ")).InFunc(f.Name).OnVar(v)
		}
	}
	if err := g.checkReads(f, body); err != nil {
		return err
	}
	if _, err := TypeOf(body, g.knownType); err != nil && err != errPendingType {
		return g.inFunc(err, f.Name)
	}
	f.Body = body
	return nil
}

func (g *Graph) checkReads(f *Func, body Expr) error {
	for _, r := range Reads(body) {
		if r.Func == NoFunc {
			img, ok := g.Image(r.Buffer)
			if !ok {
				return Errorf(KindType, "read of undeclared image %q", r.Buffer).InFunc(f.Name)
			}
			if img.Elem != r.Elem {
				return Errorf(KindType, "image %q has element type %s, read as %s", r.Buffer, img.Elem, r.Elem).InFunc(f.Name)
			}
			if len(r.Args) != img.Rank {
				return Errorf(KindUndeclaredDomain, "image %q has rank %d, read with %d coordinates",
					r.Buffer, img.Rank, len(r.Args)).InFunc(f.Name)
			}
			continue
		}
		p, err := g.lookup(r.Func)
		if err != nil {
			return g.inFunc(err, f.Name)
		}
		if len(r.Args) != len(p.Domain) {
			return Errorf(KindUndeclaredDomain, "function %q has %d domain variables, read with %d coordinates",
				p.Name, len(p.Domain), len(r.Args)).InFunc(f.Name)
		}
	}
	var missing error
	Walk(body, func(e Expr) {
		pr, ok := e.(ParamRef)
		if !ok || missing != nil {
			return
		}
		p, found := g.Param(pr.Name)
		switch {
		case !found:
			missing = Errorf(KindType, "reference to undeclared parameter %q", pr.Name).InFunc(f.Name)
		case p.Type != pr.Type:
			missing = Errorf(KindType, "parameter %q has type %s, referenced as %s", pr.Name, p.Type, pr.Type).InFunc(f.Name)
		}
	})
	return missing
}

func (g *Graph) inFunc(err error, name string) error {
	if e, ok := err.(*Error); ok && e.Func == "" {
		e.Func = name
	}
	return err
}

// knownType resolves the type of Functions whose bodies are type-checkable
// without recursion into undefined producers.
func (g *Graph) knownType(id FuncID) (ScalarType, bool) {
	return g.resolveType(id, make(map[FuncID]bool))
}

func (g *Graph) resolveType(id FuncID, visiting map[FuncID]bool) (ScalarType, bool) {
	if int(id) < 0 || int(id) >= len(g.funcs) || visiting[id] {
		return Invalid, false
	}
	f := g.funcs[id]
	if !f.Defined() {
		return Invalid, false
	}
	visiting[id] = true
	defer delete(visiting, id)
	t, err := TypeOf(f.Body, func(p FuncID) (ScalarType, bool) { return g.resolveType(p, visiting) })
	if err != nil {
		return Invalid, false
	}
	return t, true
}

// FuncType returns the value type of Function id once its body and every
// producer it reads are defined and acyclic.
func (g *Graph) FuncType(id FuncID) (ScalarType, error) {
	f, err := g.lookup(id)
	if err != nil {
		return Invalid, err
	}
	if !f.Defined() {
		return Invalid, Errorf(KindType, "function has no definition").InFunc(f.Name)
	}
	t, err := TypeOf(f.Body, g.knownType)
	if err == errPendingType {
		return Invalid, Errorf(KindType, "type depends on a function without a definition").InFunc(f.Name)
	}
	if err != nil {
		return Invalid, g.inFunc(err, f.Name)
	}
	return t, nil
}

// Attach appends a scheduling directive to Function id.
func (g *Graph) Attach(id FuncID, d Directive) error {
	f, err := g.lookup(id)
	if err != nil {
		return err
	}
	if err := f.Schedule.attach(d); err != nil {
		return g.inFunc(err, f.Name)
	}
	return nil
}

// SetOutput requests Function id as a pipeline output over region, one
// Range per domain variable.
func (g *Graph) SetOutput(id FuncID, region ...Range) error {
	f, err := g.lookup(id)
	if err != nil {
		return err
	}
	if len(region) != len(f.Domain) {
		return Errorf(KindUnboundedDomain, "output region has %d ranges, function has %d domain variables",
			len(region), len(f.Domain)).InFunc(f.Name)
	}
	for i, r := range region {
		if r.Extent < 1 {
			return Errorf(KindUnboundedDomain, "output extent %d is empty", r.Extent).InFunc(f.Name).OnVar(f.Domain[i])
		}
	}
	for _, o := range g.outputs {
		if o.Func == id {
			return Errorf(KindRedefinition, "function is already an output").InFunc(f.Name)
		}
	}
	g.outputs = append(g.outputs, Output{Func: id, Region: slices.Clone(region)})
	return nil
}

func (g *Graph) lookup(id FuncID) (*Func, error) {
	if int(id) < 0 || int(id) >= len(g.funcs) {
		return nil, Errorf(KindUndeclaredDomain, "unknown function handle %d", id)
	}
	return g.funcs[id], nil
}

// Func returns Function id. It panics on an invalid handle.
func (g *Graph) Func(id FuncID) *Func { return g.funcs[id] }

// FuncByName looks up a Function handle by name.
func (g *Graph) FuncByName(name string) (FuncID, bool) {
	id, ok := g.byName[name]
	return id, ok
}

// Funcs returns every Function in declaration order.
func (g *Graph) Funcs() []*Func { return slices.Clone(g.funcs) }

// Outputs returns the requested outputs in request order.
func (g *Graph) Outputs() []Output { return slices.Clone(g.outputs) }

// Param looks up a declared Parameter.
func (g *Graph) Param(name string) (Param, bool) {
	for _, p := range g.params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Image looks up a declared ImageParam.
func (g *Graph) Image(name string) (ImageParam, bool) {
	for _, img := range g.images {
		if img.Name == name {
			return img, true
		}
	}
	return ImageParam{}, false
}

// Inputs calls visit for every declared input in declaration order. Exactly
// one of p and img is non-nil.
func (g *Graph) Inputs(visit func(p *Param, img *ImageParam)) {
	for _, in := range g.inputs {
		switch in.kind {
		case inputParam:
			p := g.params[in.index]
			visit(&p, nil)
		case inputImage:
			img := g.images[in.index]
			visit(nil, &img)
		}
	}
}
