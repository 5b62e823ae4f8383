package passes

import (
	"github.com/chrysante/scatha-sub008/internal/analysis"
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/passmgr"
)

func init() {
	passmgr.RegisterModulePass(InlinePass{})
}

// inlineSizeThreshold bounds the callee instruction count inline will
// consider; larger callees are left as calls rather than risk code-size
// blowup the benefit heuristic can't yet see past.
const inlineSizeThreshold = 24

// InlinePass drives inlining by an SCC traversal of the call graph:
// processing a callee's own SCC before its callers means a
// small leaf function already has its own calls resolved by the time a
// caller two levels up is visited.
type InlinePass struct{}

func (InlinePass) Name() string { return "inline" }

func (InlinePass) RunOnModule(m *ir.Module) (bool, error) {
	g := analysis.Build(m)
	changed := false
	for _, scc := range g.SCCs() {
		mutuallyRecursive := len(scc) > 1
		for _, caller := range scc {
			if caller.External {
				continue
			}
			for {
				call := findInlinableCall(caller, mutuallyRecursive, scc)
				if call == nil {
					break
				}
				inlineCall(m, call)
				changed = true
			}
		}
	}
	return changed, nil
}

func findInlinableCall(caller *ir.Function, skipSCCRecursive bool, scc []*ir.Function) *ir.CallInst {
	for _, b := range caller.Blocks {
		for _, inst := range b.Instructions() {
			call, ok := inst.(*ir.CallInst)
			if !ok || call.Callee == nil || call.Callee.External {
				continue
			}
			if call.Callee == caller {
				continue // direct self-recursion: tail-rec-elim's job, not inline's
			}
			if skipSCCRecursive && inSCC(call.Callee, scc) {
				continue // mutual recursion within the current SCC would never terminate
			}
			if countInstructions(call.Callee) > inlineSizeThreshold {
				continue
			}
			return call
		}
	}
	return nil
}

func inSCC(f *ir.Function, scc []*ir.Function) bool {
	for _, x := range scc {
		if x == f {
			return true
		}
	}
	return false
}

func countInstructions(fn *ir.Function) int {
	n := 0
	for _, b := range fn.Blocks {
		n += len(b.Instructions())
	}
	return n
}

// inlineCall splices a clone of call.Callee's body into caller at the call
// site. The call's own block is split immediately after the call so the
// remainder of the original block (and its terminator) becomes the
// continuation; the callee's blocks are cloned, with parameters mapped to
// the call's arguments, and every cloned Return becomes a Goto to the
// continuation, merging results through a phi when the callee has more
// than one return and the call result is used.
func inlineCall(m *ir.Module, call *ir.CallInst) {
	caller := call.Block().Func
	callee := call.Callee
	origBlock := call.Block()
	continuation := origBlock.SplitAfter(call, origBlock.Name()+".cont")

	b := ir.NewBuilder(m.Context, caller)
	valueMap := map[ir.Value]ir.Value{}
	for i, p := range callee.Params {
		valueMap[p] = call.Args()[i]
	}

	blockMap := make(map[*ir.BasicBlock]*ir.BasicBlock, len(callee.Blocks))
	after := continuation
	for _, src := range callee.Blocks {
		cloned := caller.InsertBlockAfter(after, "inl."+src.Name())
		blockMap[src] = cloned
		after = cloned
	}

	type pendingPhi struct {
		src, cloned *ir.PhiInst
	}
	var pendingPhis []pendingPhi
	var retValues []ir.Value
	var retBlocks []*ir.BasicBlock

	for _, src := range callee.Blocks {
		cloned := blockMap[src]
		b.SetCurrentBlock(cloned)
		for _, inst := range src.Instructions() {
			if phi, ok := inst.(*ir.PhiInst); ok {
				np := b.Phi(phi.Type(), cloned, phi.Name()+".inl")
				valueMap[phi] = np
				pendingPhis = append(pendingPhis, pendingPhi{phi, np})
				continue
			}
			cloneNonPhi(b, inst, valueMap, blockMap)
		}
		if ret, ok := cloned.Terminator().(*ir.ReturnInst); ok {
			retValues = append(retValues, mapValue(valueMap, ret.Value_()))
			retBlocks = append(retBlocks, cloned)
		}
	}

	for _, pp := range pendingPhis {
		for _, e := range pp.src.Incoming {
			pred := blockMap[e.Pred]
			pp.cloned.SetIncoming(pred, mapValue(valueMap, e.Value()))
		}
	}

	for _, rb := range retBlocks {
		rb.DetachTerminator()
		b.SetCurrentBlock(rb)
		b.Goto(continuation)
	}

	if len(call.Uses()) > 0 {
		var result ir.Value
		if len(retBlocks) == 1 {
			result = retValues[0]
		} else {
			phi := b.Phi(call.Type(), continuation, call.Name()+".inl")
			for i, rb := range retBlocks {
				phi.SetIncoming(rb, retValues[i])
			}
			result = phi
		}
		ir.ReplaceAllUsesWith(call, result)
	}

	origBlock.EraseInst(call)
	b.SetCurrentBlock(origBlock)
	// origBlock's terminator is still the Goto to continuation that
	// SplitAfter installed; Goto's setTerminator call replaces it in place
	// with a jump into the callee's cloned entry block instead.
	b.Goto(blockMap[callee.Entry()])
}

// mapValue resolves v through valueMap, defaulting to v itself for operands
// that are not part of the callee's cloned body (globals, other functions'
// constants, the module's own Globals/Structs).
func mapValue(valueMap map[ir.Value]ir.Value, v ir.Value) ir.Value {
	if v == nil {
		return nil
	}
	if mapped, ok := valueMap[v]; ok {
		return mapped
	}
	return v
}

func mapBlock(blockMap map[*ir.BasicBlock]*ir.BasicBlock, b *ir.BasicBlock) *ir.BasicBlock {
	if mapped, ok := blockMap[b]; ok {
		return mapped
	}
	return b
}

// cloneNonPhi clones every non-phi, non-terminator-specific instruction
// kind through the Builder, mapping operands and block references.
func cloneNonPhi(b *ir.Builder, inst ir.Instruction, valueMap map[ir.Value]ir.Value, blockMap map[*ir.BasicBlock]*ir.BasicBlock) {
	mv := func(v ir.Value) ir.Value { return mapValue(valueMap, v) }
	mb := func(blk *ir.BasicBlock) *ir.BasicBlock { return mapBlock(blockMap, blk) }

	switch v := inst.(type) {
	case *ir.AllocaInst:
		var cloned *ir.AllocaInst
		if c := v.Count(); c != nil {
			cloned = b.DynamicAlloca(v.AllocatedType, mv(c), v.Name())
		} else {
			cloned = b.Alloca(v.AllocatedType, v.Name())
		}
		valueMap[v] = cloned
	case *ir.LoadInst:
		cloned := b.Load(mv(v.Address()), v.ValueType, v.Name())
		valueMap[v] = cloned
	case *ir.StoreInst:
		b.Store(mv(v.Address()), mv(v.StoredValue()))
	case *ir.GEPInstruction:
		var dyn ir.Value
		if d := v.DynamicIndex(); d != nil {
			dyn = mv(d)
		}
		cloned := b.GEP(v.SourceType, mv(v.Base()), dyn, v.MemberIndices, v.Name())
		valueMap[v] = cloned
	case *ir.InsertValueInst:
		cloned := b.InsertValue(mv(v.Aggregate()), mv(v.Inserted()), v.Indices, v.Name())
		valueMap[v] = cloned
	case *ir.ExtractValueInst:
		cloned := b.ExtractValue(mv(v.Aggregate()), v.Indices, v.Type(), v.Name())
		valueMap[v] = cloned
	case *ir.ArithmeticInst:
		cloned := b.Arithmetic(v.Op, mv(v.LHS()), mv(v.RHS()), v.Name())
		valueMap[v] = cloned
	case *ir.UnaryArithmeticInst:
		cloned := b.UnaryArithmetic(v.Op, mv(v.Operand()), v.Name())
		valueMap[v] = cloned
	case *ir.ConversionInst:
		cloned := b.Convert(v.Op, mv(v.Operand()), v.Type(), v.Name())
		valueMap[v] = cloned
	case *ir.CompareInst:
		cloned := b.Compare(v.Mode, v.Op, mv(v.LHS()), mv(v.RHS()), v.Name())
		valueMap[v] = cloned
	case *ir.CallInst:
		args := make([]ir.Value, len(v.Args()))
		for i, a := range v.Args() {
			args[i] = mv(a)
		}
		if v.Foreign != nil {
			cloned := b.CallForeign(v.Foreign, v.Type(), args, v.Name())
			valueMap[v] = cloned
		} else {
			cloned := b.Call(v.Callee, args, v.Name())
			valueMap[v] = cloned
		}
	case *ir.GotoInst:
		b.Goto(mb(v.Target()))
	case *ir.BranchInst:
		b.Branch(mv(v.Condition()), mb(v.IfTrue()), mb(v.IfFalse()))
	case *ir.ReturnInst:
		var rv ir.Value
		if v.Value_() != nil {
			rv = mv(v.Value_())
		}
		b.Return(rv)
	}
}
