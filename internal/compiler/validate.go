package compiler

import (
	"slices"

	"github.com/roach88/nestc/internal/ir"
)

// analysis is the validated view of a graph that lowering works from.
type analysis struct {
	g         *ir.Graph
	order     []ir.FuncID // producers before consumers
	deps      dependencyGraph
	consumers map[ir.FuncID][]ir.FuncID
	types     map[ir.FuncID]ir.ScalarType
	outputs   map[ir.FuncID]ir.Output
}

// Validate checks a finished graph: every function is defined, the
// producer-consumer graph is acyclic, every body type-checks and every
// function is either an output or read by another function.
//
// Validate is also the first phase of Lower, so callers that compile need
// not call it separately.
func Validate(g *ir.Graph) error {
	_, err := analyze(g)
	return err
}

func analyze(g *ir.Graph) (*analysis, error) {
	funcs := g.Funcs()
	for _, f := range funcs {
		if !f.Defined() {
			return nil, ir.Errorf(ir.KindType, "function has no definition").InFunc(f.Name)
		}
	}

	deps := buildDependencyGraph(g)
	if err := checkCycles(g, deps); err != nil {
		return nil, err
	}

	a := &analysis{
		g:         g,
		order:     topoOrder(deps),
		deps:      deps,
		consumers: make(map[ir.FuncID][]ir.FuncID),
		types:     make(map[ir.FuncID]ir.ScalarType),
		outputs:   make(map[ir.FuncID]ir.Output),
	}
	for _, id := range a.order {
		t, err := g.FuncType(id)
		if err != nil {
			return nil, err
		}
		a.types[id] = t
		for _, p := range deps[id] {
			a.consumers[p] = append(a.consumers[p], id)
		}
	}

	outs := g.Outputs()
	if len(outs) == 0 {
		return nil, ir.Errorf(ir.KindUnboundedDomain, "pipeline %q requests no outputs", g.Name)
	}
	for _, o := range outs {
		a.outputs[o.Func] = o
	}
	for _, f := range funcs {
		if _, isOutput := a.outputs[f.ID]; !isOutput && len(a.consumers[f.ID]) == 0 {
			return nil, ir.Errorf(ir.KindUnboundedDomain,
				"function is neither an output nor read by another function, so its domain is unknown").InFunc(f.Name)
		}
	}
	return a, nil
}

// topoOrder returns every function with producers before consumers. Ties are
// broken by handle so the order is deterministic. deps must be acyclic.
func topoOrder(deps dependencyGraph) []ir.FuncID {
	order := make([]ir.FuncID, 0, len(deps))
	done := make([]bool, len(deps))
	var visit func(ir.FuncID)
	visit = func(id ir.FuncID) {
		if done[id] {
			return
		}
		done[id] = true
		producers := slices.Clone(deps[id])
		slices.Sort(producers)
		for _, p := range producers {
			visit(p)
		}
		order = append(order, id)
	}
	for id := range deps {
		visit(ir.FuncID(id))
	}
	return order
}

func (a *analysis) isOutput(id ir.FuncID) bool {
	_, ok := a.outputs[id]
	return ok
}

// materialized reports whether id gets its own buffer and loop nest: outputs,
// functions marked compute_root and functions read by more than one consumer.
// Everything else is inlined into its single consumer.
func (a *analysis) materialized(id ir.FuncID) bool {
	return a.isOutput(id) ||
		a.g.Func(id).Schedule.IsComputeRoot() ||
		len(a.consumers[id]) > 1
}
