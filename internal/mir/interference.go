package mir

import "sort"

// InterferenceGraph is the undirected graph over a function's registers
// whose edges join registers that are live at the same time; two registers
// joined by an edge may not share a hardware color.
type InterferenceGraph struct {
	Nodes []*Register
	adj   map[*Register]map[*Register]bool
}

// BuildInterference constructs the graph by the standard backward walk: per
// block, start from LiveOut, and at each instruction mark the destination as
// interfering with the current live set, then remove the destination and add
// the sources.
func BuildInterference(fn *Function, live *Liveness) *InterferenceGraph {
	g := &InterferenceGraph{adj: make(map[*Register]map[*Register]bool)}
	for _, r := range fn.Registers() {
		g.addNode(r)
	}
	for _, b := range fn.Blocks {
		cur := map[*Register]bool{}
		for r := range live.LiveOut[b] {
			cur[r] = true
		}
		for n := len(b.Insts) - 1; n >= 0; n-- {
			inst := b.Insts[n]
			if d := inst.Dest; d != nil && tracked(d) {
				for r := range cur {
					if r != d {
						g.AddEdge(d, r)
					}
				}
				delete(cur, d)
			}
			if inst.Op == Phi {
				continue
			}
			for _, r := range inst.UsedRegs() {
				if tracked(r) {
					cur[r] = true
				}
			}
		}
	}
	return g
}

func (g *InterferenceGraph) addNode(r *Register) {
	if _, ok := g.adj[r]; ok {
		return
	}
	g.adj[r] = make(map[*Register]bool)
	g.Nodes = append(g.Nodes, r)
}

// AddEdge joins a and b; edges are undirected and self-loops are ignored.
func (g *InterferenceGraph) AddEdge(a, b *Register) {
	if a == b {
		return
	}
	g.addNode(a)
	g.addNode(b)
	g.adj[a][b] = true
	g.adj[b][a] = true
}

// Interferes reports whether a and b share an edge.
func (g *InterferenceGraph) Interferes(a, b *Register) bool { return g.adj[a][b] }

// Neighbors returns a's adjacency set.
func (g *InterferenceGraph) Neighbors(a *Register) []*Register {
	out := make([]*Register, 0, len(g.adj[a]))
	for r := range g.adj[a] {
		out = append(out, r)
	}
	return out
}

// Degree is the number of neighbors of a.
func (g *InterferenceGraph) Degree(a *Register) int { return len(g.adj[a]) }

// SimplicialOrder runs maximum cardinality search over the graph and
// reports whether the resulting order is a perfect elimination ordering —
// true exactly when the graph is chordal, the common case after SSA
// destruction with split critical edges. The order is returned
// either way; greedy coloring along it is optimal when chordal and still a
// sound heuristic when not.
func (g *InterferenceGraph) SimplicialOrder() (order []*Register, chordal bool) {
	weight := make(map[*Register]int, len(g.Nodes))
	picked := make(map[*Register]bool, len(g.Nodes))
	order = make([]*Register, 0, len(g.Nodes))
	for range g.Nodes {
		var best *Register
		for _, r := range g.Nodes {
			if picked[r] {
				continue
			}
			if best == nil || weight[r] > weight[best] ||
				(weight[r] == weight[best] && less(r, best)) {
				best = r
			}
		}
		picked[best] = true
		order = append(order, best)
		for n := range g.adj[best] {
			if !picked[n] {
				weight[n]++
			}
		}
	}
	// Perfect elimination check: in reverse order, every node's earlier
	// neighbors must form a clique.
	pos := make(map[*Register]int, len(order))
	for i, r := range order {
		pos[r] = i
	}
	chordal = true
outer:
	for i := len(order) - 1; i >= 0; i-- {
		r := order[i]
		var earlier []*Register
		for n := range g.adj[r] {
			if pos[n] < i {
				earlier = append(earlier, n)
			}
		}
		sort.Slice(earlier, func(a, b int) bool { return pos[earlier[a]] > pos[earlier[b]] })
		if len(earlier) < 2 {
			continue
		}
		closest := earlier[0]
		for _, other := range earlier[1:] {
			if !g.adj[closest][other] {
				chordal = false
				break outer
			}
		}
	}
	return order, chordal
}

// less is a deterministic tie-break so that allocation is reproducible.
func less(a, b *Register) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.Num < b.Num
}
