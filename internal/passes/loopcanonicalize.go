package passes

import (
	"github.com/chrysante/scatha-sub008/internal/analysis"
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/passmgr"
)

func init() {
	passmgr.RegisterFunctionPass(LoopCanonicalizePass{})
}

// LoopCanonicalizePass leaves every loop header with at most one
// predecessor from outside the loop: where a header has two or more
// external predecessors, a preheader is inserted in their place and the
// header's phi incoming edges from them are rewritten to the preheader. A
// header with exactly one external predecessor is left as it is, even when
// that predecessor has other successors.
type LoopCanonicalizePass struct{}

func (LoopCanonicalizePass) Name() string              { return "loop-canonicalize" }
func (LoopCanonicalizePass) Category() passmgr.Category { return passmgr.Canonicalization }

func (LoopCanonicalizePass) RunOnFunction(fn *ir.Function) (bool, error) {
	forest := analysis.Loops(fn)
	changed := false
	var visit func(l *analysis.Loop)
	visit = func(l *analysis.Loop) {
		if canonicalizeHeader(fn, l) {
			changed = true
		}
		for _, n := range l.Nested {
			visit(n)
		}
	}
	for _, l := range forest.Top {
		visit(l)
	}
	return changed, nil
}

// canonicalizeHeader inserts a preheader for l if it does not already have
// exactly one external predecessor.
func canonicalizeHeader(fn *ir.Function, l *analysis.Loop) bool {
	header := l.Header
	var external []*ir.BasicBlock
	for _, p := range header.Predecessors {
		if !l.Body[p] {
			external = append(external, p)
		}
	}
	if len(external) <= 1 {
		return false
	}

	preheader := fn.InsertBlockAfter(firstExternal(fn, external), "preheader")
	b := ir.NewBuilder(fn.Module.Context, fn)
	b.SetCurrentBlock(preheader)
	b.Goto(header)

	// Each header phi may disagree across the external predecessors being
	// merged into one; reintroduce that distinction one level up with a
	// phi in the preheader, then feed the header phi a single edge from
	// the preheader carrying that merged value.
	for _, phi := range header.Phis() {
		preheaderPhi := b.Phi(phi.Type(), preheader, phi.Name()+".ph")
		for _, p := range external {
			preheaderPhi.SetIncoming(p, phi.ValueFor(p))
			phi.RemoveIncoming(p)
		}
		phi.SetIncoming(preheader, preheaderPhi)
	}

	for _, p := range external {
		redirectTerminator(fn, p, header, preheader)
	}
	return true
}

// firstExternal returns the earliest-laid-out external predecessor so the
// new preheader's position in the block list stays deterministic.
func firstExternal(fn *ir.Function, external []*ir.BasicBlock) *ir.BasicBlock {
	best := external[0]
	bestIdx := blockIndex(fn, best)
	for _, p := range external[1:] {
		if idx := blockIndex(fn, p); idx < bestIdx {
			best, bestIdx = p, idx
		}
	}
	return best
}

func blockIndex(fn *ir.Function, b *ir.BasicBlock) int {
	for i, x := range fn.Blocks {
		if x == b {
			return i
		}
	}
	return -1
}

func redirectTerminator(fn *ir.Function, p, from, to *ir.BasicBlock) {
	b := ir.NewBuilder(fn.Module.Context, fn)
	b.SetCurrentBlock(p)
	switch t := p.Terminator().(type) {
	case *ir.GotoInst:
		b.Goto(to)
	case *ir.BranchInst:
		ifTrue, ifFalse := t.IfTrue(), t.IfFalse()
		if ifTrue == from {
			ifTrue = to
		}
		if ifFalse == from {
			ifFalse = to
		}
		b.Branch(t.Condition(), ifTrue, ifFalse)
	}
}
