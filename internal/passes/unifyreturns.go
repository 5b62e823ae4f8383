package passes

import (
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/passmgr"
)

func init() {
	passmgr.RegisterFunctionPass(UnifyReturnsPass{})
	passmgr.RegisterFunctionPass(SplitReturnsPass{})
}

// UnifyReturnsPass introduces a single exit block that every original
// return site jumps to instead of returning directly: a phi merges the
// return values (for a non-void function) and the exit block carries the
// one surviving Return, so the function is left with exactly one return
// site.
type UnifyReturnsPass struct{}

func (UnifyReturnsPass) Name() string              { return "unify-returns" }
func (UnifyReturnsPass) Category() passmgr.Category { return passmgr.Canonicalization }

func (UnifyReturnsPass) RunOnFunction(fn *ir.Function) (bool, error) {
	var returns []*ir.ReturnInst
	for _, blk := range fn.Blocks {
		if r, ok := blk.Terminator().(*ir.ReturnInst); ok {
			returns = append(returns, r)
		}
	}
	if len(returns) <= 1 {
		return false, nil
	}

	b := ir.NewBuilder(fn.Module.Context, fn)
	exit := fn.AppendBlock("exit")
	isVoid := fn.ReturnType == fn.Module.Context.Void()

	var phi *ir.PhiInst
	if !isVoid {
		phi = b.Phi(fn.ReturnType, exit, "retval")
	}
	for _, r := range returns {
		blk := r.Block()
		if phi != nil {
			phi.SetIncoming(blk, r.Value_())
		}
		blk.DetachTerminator()
		b.SetCurrentBlock(blk)
		b.Goto(exit)
	}
	b.SetCurrentBlock(exit)
	if isVoid {
		b.Return(nil)
	} else {
		b.Return(phi)
	}
	return true, nil
}

// SplitReturnsPass is unify-returns's inverse: a block holding nothing but
// a Return (of no value, or of a phi defined in that block), reached only
// from predecessors that end in an unconditional Goto, is removed and each
// predecessor returns directly (its own phi incoming value). It is a cleanup step for late pipelines
// that no longer need a single return site and prefer fewer blocks for
// jump elision to work with.
type SplitReturnsPass struct{}

func (SplitReturnsPass) Name() string              { return "split-returns" }
func (SplitReturnsPass) Category() passmgr.Category { return passmgr.Canonicalization }

func (SplitReturnsPass) RunOnFunction(fn *ir.Function) (bool, error) {
	changed := false
	for _, blk := range append([]*ir.BasicBlock(nil), fn.Blocks...) {
		ret, ok := blk.Terminator().(*ir.ReturnInst)
		if !ok || len(blk.NonPhis()) != 0 {
			continue
		}
		phi, isPhi := ret.Value_().(*ir.PhiInst)
		retUsesPhi := ret.Value_() != nil && isPhi && phi.Block() == blk
		if ret.Value_() != nil && !retUsesPhi {
			continue
		}
		preds := append([]*ir.BasicBlock(nil), blk.Predecessors...)
		allUnconditionalGoto := true
		for _, p := range preds {
			if _, ok := p.Terminator().(*ir.GotoInst); !ok {
				allUnconditionalGoto = false
				break
			}
		}
		if !allUnconditionalGoto || len(preds) == 0 {
			continue
		}
		b := ir.NewBuilder(fn.Module.Context, fn)
		for _, p := range preds {
			var v ir.Value
			if retUsesPhi {
				v = phi.ValueFor(p)
			}
			p.DetachTerminator()
			b.SetCurrentBlock(p)
			b.Return(v)
		}
		blk.DetachTerminator()
		if retUsesPhi {
			phi.Block().EraseInst(phi)
		}
		fn.RemoveBlock(blk)
		changed = true
	}
	return changed, nil
}
