// Package analysis computes CFG-derived facts over internal/ir functions:
// dominance, loop nesting, liveness, and the module call graph. No result
// is cached: every entry point recomputes from the current CFG on each
// call. A DomTree records the Function's CFGVersion it was built from, so
// its Stale method can report a CFG edit made after it was computed.
package analysis

import "github.com/chrysante/scatha-sub008/internal/ir"

// DomTree is the immediate-dominator tree of a function, computed by the
// standard iterative fixed-point algorithm (Cooper/Harvey/Kennedy): no
// bit-vector set representation is needed at this scale, so each block's
// dominator set is tracked directly as the path to the root through IDom.
type DomTree struct {
	fn       *ir.Function
	version  int
	idom     map[*ir.BasicBlock]*ir.BasicBlock
	children map[*ir.BasicBlock][]*ir.BasicBlock
	order    map[*ir.BasicBlock]int // reverse-postorder index, for the fast-intersect walk
}

// Dominators computes a fresh DomTree for fn on every call.
func Dominators(fn *ir.Function) *DomTree {
	rpo := fn.ReversePostorder()
	order := make(map[*ir.BasicBlock]int, len(rpo))
	for i, b := range rpo {
		order[b] = i
	}
	idom := make(map[*ir.BasicBlock]*ir.BasicBlock)
	if len(rpo) == 0 {
		return &DomTree{fn: fn, version: fn.CFGVersion(), idom: idom, children: map[*ir.BasicBlock][]*ir.BasicBlock{}, order: order}
	}
	entry := rpo[0]
	idom[entry] = entry
	changed := true
	for changed {
		changed = false
		for _, b := range rpo[1:] {
			var newIdom *ir.BasicBlock
			for _, p := range b.Predecessors {
				if idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(idom, order, newIdom, p)
			}
			if newIdom != nil && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	children := make(map[*ir.BasicBlock][]*ir.BasicBlock)
	for b, d := range idom {
		if b == entry {
			continue
		}
		children[d] = append(children[d], b)
	}
	return &DomTree{fn: fn, version: fn.CFGVersion(), idom: idom, children: children, order: order}
}

func intersect(idom map[*ir.BasicBlock]*ir.BasicBlock, order map[*ir.BasicBlock]int, a, b *ir.BasicBlock) *ir.BasicBlock {
	for a != b {
		for order[a] > order[b] {
			a = idom[a]
		}
		for order[b] > order[a] {
			b = idom[b]
		}
	}
	return a
}

// Stale reports whether fn's CFG has changed since this tree was computed.
func (d *DomTree) Stale() bool { return d.fn.CFGVersion() != d.version }

// IDom returns b's immediate dominator, or b itself for the entry block.
func (d *DomTree) IDom(b *ir.BasicBlock) *ir.BasicBlock { return d.idom[b] }

// Dominates reports whether a dominates b (reflexively: a dominates a).
func (d *DomTree) Dominates(a, b *ir.BasicBlock) bool {
	for b != nil {
		if b == a {
			return true
		}
		if d.idom[b] == b {
			return b == a
		}
		b = d.idom[b]
	}
	return false
}

// Children returns b's immediate dominance-tree children.
func (d *DomTree) Children(b *ir.BasicBlock) []*ir.BasicBlock { return d.children[b] }

// Frontier returns b's dominance frontier: every block reachable along one
// CFG edge from a block b dominates, that b itself does not strictly
// dominate — the set mem2reg uses to place phis.
func (d *DomTree) Frontier(b *ir.BasicBlock) []*ir.BasicBlock {
	var out []*ir.BasicBlock
	seen := make(map[*ir.BasicBlock]bool)
	for candidate := range d.order {
		for _, pred := range candidate.Predecessors {
			if d.Dominates(b, pred) && !d.strictlyDominates(b, candidate) {
				if !seen[candidate] {
					seen[candidate] = true
					out = append(out, candidate)
				}
			}
		}
	}
	return out
}

func (d *DomTree) strictlyDominates(a, b *ir.BasicBlock) bool {
	return a != b && d.Dominates(a, b)
}
