package compiler

import (
	"slices"
	"strings"

	"github.com/roach88/nestc/internal/ir"
)

// dependencyGraph maps each function to the distinct producers its body reads,
// in first-read order.
type dependencyGraph [][]ir.FuncID

// buildDependencyGraph collects the producer-consumer edges of g.
// Image reads are not edges.
func buildDependencyGraph(g *ir.Graph) dependencyGraph {
	funcs := g.Funcs()
	deps := make(dependencyGraph, len(funcs))
	for _, f := range funcs {
		deps[f.ID] = []ir.FuncID{}
		if !f.Defined() {
			continue
		}
		for _, r := range ir.Reads(f.Body) {
			if r.Func != ir.NoFunc && !slices.Contains(deps[f.ID], r.Func) {
				deps[f.ID] = append(deps[f.ID], r.Func)
			}
		}
	}
	return deps
}

// checkCycles reports the first dependency cycle of g as a
// CyclicDependencyError. A DAG returns nil.
//
// Strongly connected components are found with Tarjan's algorithm; an SCC of
// size > 1, or a single function reading itself, is a cycle.
func checkCycles(g *ir.Graph, deps dependencyGraph) error {
	for _, scc := range tarjanSCC(deps) {
		if len(scc) == 1 && !slices.Contains(deps[scc[0]], scc[0]) {
			continue
		}
		path := reconstructCyclePath(scc, deps)
		names := make([]string, len(path))
		for i, id := range path {
			names[i] = g.Func(id).Name
		}
		err := ir.Errorf(ir.KindCyclicDependency, "function depends on its own output: %s", strings.Join(names, " → "))
		err.Func = names[0]
		err.Cycle = names
		return err
	}
	return nil
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in handle order so the result is deterministic.
func tarjanSCC(deps dependencyGraph) [][]ir.FuncID {
	var (
		index   = 0
		stack   []ir.FuncID
		indices = make(map[ir.FuncID]int)
		lowlink = make(map[ir.FuncID]int)
		onStack = make(map[ir.FuncID]bool)
		sccs    [][]ir.FuncID
	)

	var strongConnect func(ir.FuncID)
	strongConnect = func(v ir.FuncID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range deps[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack into an SCC
		if lowlink[v] == indices[v] {
			var scc []ir.FuncID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	for node := range deps {
		id := ir.FuncID(node)
		if _, visited := indices[id]; !visited {
			strongConnect(id)
		}
	}
	return sccs
}

// reconstructCyclePath returns the shortest cycle through the lowest handle
// of the SCC, found by breadth-first search over edges inside the SCC. The
// start is repeated at the end of the path.
func reconstructCyclePath(scc []ir.FuncID, deps dependencyGraph) []ir.FuncID {
	start := scc[0]
	inSCC := make(map[ir.FuncID]bool, len(scc))
	for _, id := range scc {
		inSCC[id] = true
	}

	parent := make(map[ir.FuncID]ir.FuncID)
	queue := []ir.FuncID{start}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range deps[v] {
			if w == start {
				path := []ir.FuncID{start}
				for n := v; n != start; n = parent[n] {
					path = append(path, n)
				}
				slices.Reverse(path[1:])
				return append(path, start)
			}
			if _, seen := parent[w]; seen || !inSCC[w] {
				continue
			}
			parent[w] = v
			queue = append(queue, w)
		}
	}
	return []ir.FuncID{start, start}
}
