package passes

import (
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/passmgr"
)

func init() {
	passmgr.RegisterFunctionPass(TailRecElimPass{})
}

// TailRecElimPass rewrites a direct self-recursive call in tail position
// (the call's result, unmodified, is what the enclosing Return yields, or
// the call is void and immediately followed by a void Return) as argument
// phis at the entry block plus a jump back to entry — turning recursion
// into iteration so the VM never grows a call stack for it.
type TailRecElimPass struct{}

func (TailRecElimPass) Name() string { return "tail-rec-elim" }

func (TailRecElimPass) RunOnFunction(fn *ir.Function) (bool, error) {
	entry := fn.Entry()
	if entry == nil {
		return false, nil
	}
	var tailCalls []*ir.CallInst
	for _, b := range fn.Blocks {
		ret, ok := b.Terminator().(*ir.ReturnInst)
		if !ok {
			continue
		}
		call, ok := tailCallOf(ret)
		if !ok || call.Callee != fn {
			continue
		}
		tailCalls = append(tailCalls, call)
	}
	if len(tailCalls) == 0 {
		return false, nil
	}

	b := ir.NewBuilder(fn.Module.Context, fn)
	loopHeader := fn.InsertBlockAfter(entry, "tailrec.loop")
	argPhis := make([]*ir.PhiInst, len(fn.Params))
	for i, p := range fn.Params {
		argPhis[i] = b.Phi(p.Type(), loopHeader, p.Name()+".tr")
	}
	b.SetCurrentBlock(entry)
	b.Goto(loopHeader)
	// Redirect every existing use of each parameter to its phi before
	// wiring the phi's own entry-edge back to the parameter — otherwise
	// ReplaceAllUsesWith would also rewrite that just-created edge onto
	// itself.
	for i, p := range fn.Params {
		ir.ReplaceAllUsesWith(p, argPhis[i])
	}
	for i, p := range fn.Params {
		argPhis[i].SetIncoming(entry, p)
	}

	for _, call := range tailCalls {
		blk := call.Block()
		args := append([]ir.Value(nil), call.Args()...)
		blk.DetachTerminator()
		b.SetCurrentBlock(blk)
		for i, phi := range argPhis {
			phi.SetIncoming(blk, args[i])
		}
		b.Goto(loopHeader)
		if len(call.Uses()) == 0 {
			blk.EraseInst(call)
		}
	}
	return true, nil
}

// tailCallOf reports whether ret's return value is exactly the result of a
// direct call with no intervening uses, or (for a void function) the block
// containing ret ends with a bare void call immediately before it.
func tailCallOf(ret *ir.ReturnInst) (*ir.CallInst, bool) {
	if v := ret.Value_(); v != nil {
		call, ok := v.(*ir.CallInst)
		if !ok || len(call.Uses()) != 1 {
			return nil, false
		}
		return call, true
	}
	insts := ret.Block().Instructions()
	for i := len(insts) - 1; i >= 0; i-- {
		if insts[i] == ir.Instruction(ret) {
			if i == 0 {
				return nil, false
			}
			if call, ok := insts[i-1].(*ir.CallInst); ok {
				return call, true
			}
			return nil, false
		}
	}
	return nil, false
}

