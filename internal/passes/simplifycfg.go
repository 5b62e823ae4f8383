package passes

import (
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/passmgr"
)

func init() {
	passmgr.RegisterFunctionPass(SimplifyCFGPass{})
}

// SimplifyCFGPass folds control flow that carries no information: a Branch
// whose two arms agree becomes a Goto, and a block that does nothing but
// jump onward (a "trampoline", common after phi resolution or inlining) is
// skipped by redirecting its predecessors straight to its target.
type SimplifyCFGPass struct{}

func (SimplifyCFGPass) Name() string              { return "simplify-cfg" }
func (SimplifyCFGPass) Category() passmgr.Category { return passmgr.Simplification }

func (SimplifyCFGPass) RunOnFunction(fn *ir.Function) (bool, error) {
	changed := false
	for {
		c1 := foldDegenerateBranches(fn)
		c2 := skipTrampolineBlocks(fn)
		if !c1 && !c2 {
			break
		}
		changed = true
	}
	return changed, nil
}

func foldDegenerateBranches(fn *ir.Function) bool {
	changed := false
	b := ir.NewBuilder(fn.Module.Context, fn)
	for _, blk := range fn.Blocks {
		br, ok := blk.Terminator().(*ir.BranchInst)
		if !ok || br.IfTrue() != br.IfFalse() {
			continue
		}
		target := br.IfTrue()
		b.SetCurrentBlock(blk)
		b.Goto(target)
		changed = true
	}
	return changed
}

// skipTrampolineBlocks removes blocks whose entire body is a single
// unconditional Goto and that define no phis, redirecting every predecessor
// straight to the target and replicating the target's phi edges for them.
func skipTrampolineBlocks(fn *ir.Function) bool {
	changed := false
	entry := fn.Entry()
	b := ir.NewBuilder(fn.Module.Context, fn)
	for _, blk := range append([]*ir.BasicBlock(nil), fn.Blocks...) {
		if blk == entry || len(blk.Phis()) != 0 || len(blk.NonPhis()) != 0 {
			continue
		}
		g, ok := blk.Terminator().(*ir.GotoInst)
		if !ok || g.Target() == blk {
			continue
		}
		target := g.Target()
		preds := append([]*ir.BasicBlock(nil), blk.Predecessors...)
		if len(preds) == 0 {
			continue
		}
		for _, p := range preds {
			valuesForBlk := map[*ir.PhiInst]ir.Value{}
			for _, phi := range target.Phis() {
				valuesForBlk[phi] = phi.ValueFor(blk)
			}
			redirect(b, p, blk, target)
			for phi, v := range valuesForBlk {
				phi.SetIncoming(p, v)
			}
		}
		for _, phi := range target.Phis() {
			phi.RemoveIncoming(blk)
		}
		blk.DetachTerminator()
		fn.RemoveBlock(blk)
		changed = true
	}
	return changed
}

// redirect rewrites p's terminator so that every edge naming from becomes to.
func redirect(b *ir.Builder, p, from, to *ir.BasicBlock) {
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
