package analysis

import "github.com/chrysante/scatha-sub008/internal/ir"

// CallGraph is the module's static call graph: an edge Caller -> Callee for
// every direct CallInst (foreign calls are not edges — the callee is
// outside this module).
type CallGraph struct {
	Edges map[*ir.Function]map[*ir.Function]bool
	nodes []*ir.Function
}

// Build constructs the call graph of every function defined in m.
func Build(m *ir.Module) *CallGraph {
	g := &CallGraph{Edges: make(map[*ir.Function]map[*ir.Function]bool)}
	for _, f := range m.Functions {
		g.Edges[f] = map[*ir.Function]bool{}
		g.nodes = append(g.nodes, f)
	}
	for _, f := range m.Functions {
		if f.External {
			continue
		}
		for _, b := range f.Blocks {
			for _, inst := range b.Instructions() {
				call, ok := inst.(*ir.CallInst)
				if !ok || call.Callee == nil {
					continue
				}
				g.Edges[f][call.Callee] = true
			}
		}
	}
	return g
}

// SCCs returns the call graph's strongly connected components via Tarjan's
// algorithm, each in reverse topological order (callees of a component
// precede the component itself) — the order globaldce/inline want to walk
// a module bottom-up.
func (g *CallGraph) SCCs() [][]*ir.Function {
	index := 0
	indices := map[*ir.Function]int{}
	lowlink := map[*ir.Function]int{}
	onStack := map[*ir.Function]bool{}
	var stack []*ir.Function
	var result [][]*ir.Function

	var strongconnect func(v *ir.Function)
	strongconnect = func(v *ir.Function) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for w := range g.Edges[v] {
			if _, seen := indices[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var comp []*ir.Function
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			result = append(result, comp)
		}
	}

	for _, f := range g.nodes {
		if _, seen := indices[f]; !seen {
			strongconnect(f)
		}
	}
	return result
}
