package passes

import (
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/passmgr"
)

func init() {
	passmgr.RegisterFunctionPass(SplitCriticalEdgesPass{})
}

// SplitCriticalEdgesPass inserts an empty block on every critical edge — an
// edge whose source has more than one successor and whose target has more
// than one predecessor. SSA destruction and loop-canonicalize both need the
// guarantee that no such edge survives: a phi copy inserted at the end of a
// multi-successor source would run on a path the other successor doesn't
// want, and a preheader can't be the sole external predecessor of a header
// that's also reached along a critical edge.
type SplitCriticalEdgesPass struct{}

func (SplitCriticalEdgesPass) Name() string              { return "split-critical-edges" }
func (SplitCriticalEdgesPass) Category() passmgr.Category { return passmgr.Canonicalization }

func (SplitCriticalEdgesPass) RunOnFunction(fn *ir.Function) (bool, error) {
	changed := false
	for _, blk := range append([]*ir.BasicBlock(nil), fn.Blocks...) {
		br, ok := blk.Terminator().(*ir.BranchInst)
		if !ok {
			continue
		}
		if len(br.IfTrue().Predecessors) > 1 {
			splitEdge(fn, blk, br, true)
			changed = true
			br, _ = blk.Terminator().(*ir.BranchInst)
		}
		if br != nil && len(br.IfFalse().Predecessors) > 1 {
			splitEdge(fn, blk, br, false)
			changed = true
		}
	}
	return changed, nil
}

// splitEdge inserts a fresh block between blk and whichever branch arm
// isTrue selects, redirecting that arm through it and repointing the
// target's phi edges from blk to the new block.
func splitEdge(fn *ir.Function, blk *ir.BasicBlock, br *ir.BranchInst, isTrue bool) {
	target := br.IfFalse()
	if isTrue {
		target = br.IfTrue()
	}
	edge := fn.InsertBlockAfter(blk, "critedge")
	b := ir.NewBuilder(fn.Module.Context, fn)
	b.SetCurrentBlock(edge)
	b.Goto(target)

	for _, phi := range target.Phis() {
		v := phi.ValueFor(blk)
		phi.RemoveIncoming(blk)
		phi.SetIncoming(edge, v)
	}

	b.SetCurrentBlock(blk)
	if isTrue {
		b.Branch(br.Condition(), edge, br.IfFalse())
	} else {
		b.Branch(br.Condition(), br.IfTrue(), edge)
	}
}
