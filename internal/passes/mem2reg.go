package passes

import (
	"github.com/chrysante/scatha-sub008/internal/analysis"
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/passmgr"
	"github.com/chrysante/scatha-sub008/internal/types"
)

func init() {
	passmgr.RegisterFunctionPass(Mem2RegPass{})
}

// Mem2RegPass promotes stack slots that are only ever loaded and stored as a
// whole (never addressed into with a GEP, never escaped to a call) into SSA
// values, inserting phis at the iterated dominance frontier of their
// defining stores — the standard Cytron et al. construction, driven by
// internal/analysis's dominator tree.
type Mem2RegPass struct{}

func (Mem2RegPass) Name() string { return "mem2reg" }

func (Mem2RegPass) RunOnFunction(fn *ir.Function) (bool, error) {
	entry := fn.Entry()
	if entry == nil {
		return false, nil
	}
	allocas := promotableAllocas(entry)
	if len(allocas) == 0 {
		return false, nil
	}
	dom := analysis.Dominators(fn)
	b := ir.NewBuilder(fn.Module.Context, fn)
	for _, a := range allocas {
		promoteAlloca(fn, b, a, dom)
	}
	return true, nil
}

func promotableAllocas(entry *ir.BasicBlock) []*ir.AllocaInst {
	var out []*ir.AllocaInst
	for _, inst := range entry.Instructions() {
		a, ok := inst.(*ir.AllocaInst)
		if !ok || a.Count() != nil {
			continue
		}
		if isPromotable(a) {
			out = append(out, a)
		}
	}
	return out
}

func isPromotable(a *ir.AllocaInst) bool {
	for _, u := range a.Uses() {
		switch inst := u.User.(type) {
		case *ir.LoadInst:
			if inst.Address() != ir.Value(a) || !sameType(inst.ValueType, a.AllocatedType) {
				return false
			}
		case *ir.StoreInst:
			if u.Index != 0 || !sameType(inst.StoredValue().Type(), a.AllocatedType) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func sameType(a, b types.Type) bool { return a == b }

func promoteAlloca(fn *ir.Function, b *ir.Builder, alloca *ir.AllocaInst, dom *analysis.DomTree) {
	defBlocks := map[*ir.BasicBlock]bool{}
	for _, u := range alloca.Uses() {
		if s, ok := u.User.(*ir.StoreInst); ok {
			defBlocks[s.Block()] = true
		}
	}

	phiOf := map[*ir.BasicBlock]*ir.PhiInst{}
	var worklist []*ir.BasicBlock
	for blk := range defBlocks {
		worklist = append(worklist, blk)
	}
	for len(worklist) > 0 {
		n := len(worklist) - 1
		blk := worklist[n]
		worklist = worklist[:n]
		for _, y := range dom.Frontier(blk) {
			if phiOf[y] != nil {
				continue
			}
			phiOf[y] = b.Phi(alloca.AllocatedType, y, alloca.Name())
			if !defBlocks[y] {
				defBlocks[y] = true
				worklist = append(worklist, y)
			}
		}
	}

	undef := fn.Module.ConstantValue(fn.Module.Context.Undef(alloca.AllocatedType))

	var toErase []ir.Instruction
	var visit func(blk *ir.BasicBlock, incoming ir.Value)
	visit = func(blk *ir.BasicBlock, incoming ir.Value) {
		current := incoming
		if phi, ok := phiOf[blk]; ok {
			current = ir.Value(phi)
		}
		for _, inst := range blk.Instructions() {
			switch v := inst.(type) {
			case *ir.LoadInst:
				if v.Address() == ir.Value(alloca) {
					ir.ReplaceAllUsesWith(v, current)
					toErase = append(toErase, v)
				}
			case *ir.StoreInst:
				if v.Address() == ir.Value(alloca) {
					current = v.StoredValue()
					toErase = append(toErase, v)
				}
			}
		}
		for _, s := range blk.Successors {
			if phi, ok := phiOf[s]; ok {
				phi.SetIncoming(blk, current)
			}
		}
		for _, c := range dom.Children(blk) {
			visit(c, current)
		}
	}
	visit(fn.Entry(), undef)

	for _, inst := range toErase {
		inst.Block().EraseInst(inst)
	}
	alloca.Block().EraseInst(alloca)
}
