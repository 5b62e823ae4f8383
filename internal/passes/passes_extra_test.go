package passes

import (
	"testing"

	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/types"
)

func TestSplitCriticalEdgesInsertsEdgeBlock(t *testing.T) {
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	fn := m.DefineFunction("f", ctx.Void(), []types.Type{ctx.IntType(1)}, []string{"cond"})
	b := ir.NewBuilder(ctx, fn)
	entry := fn.AppendBlock("entry")
	other := fn.AppendBlock("other")
	join := fn.AppendBlock("join")

	b.SetCurrentBlock(entry)
	b.Branch(fn.Params[0], join, join)
	b.SetCurrentBlock(other)
	b.Goto(join)
	b.SetCurrentBlock(join)
	b.Return(nil)
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	changed, err := (SplitCriticalEdgesPass{}).RunOnFunction(fn)
	if err != nil {
		t.Fatalf("RunOnFunction: %v", err)
	}
	if !changed {
		t.Fatal("expected split-critical-edges to report a change")
	}
	br, ok := entry.Terminator().(*ir.BranchInst)
	if !ok {
		t.Fatalf("expected entry to still end in a branch, got %v", entry.Terminator())
	}
	if br.IfTrue() == join || br.IfFalse() == join {
		t.Fatal("expected both branch arms to be redirected through edge blocks")
	}
}

func TestUnifyReturnsMergesMultipleReturns(t *testing.T) {
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	fn := m.DefineFunction("f", ctx.IntType(64), []types.Type{ctx.IntType(1)}, []string{"cond"})
	b := ir.NewBuilder(ctx, fn)
	entry := fn.AppendBlock("entry")
	thenB := fn.AppendBlock("then")
	elseB := fn.AppendBlock("else")
	b.SetCurrentBlock(entry)
	b.Branch(fn.Params[0], thenB, elseB)
	b.SetCurrentBlock(thenB)
	b.Return(m.ConstantValue(ctx.IntConstant(64, 1)))
	b.SetCurrentBlock(elseB)
	b.Return(m.ConstantValue(ctx.IntConstant(64, 2)))
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	changed, err := (UnifyReturnsPass{}).RunOnFunction(fn)
	if err != nil {
		t.Fatalf("RunOnFunction: %v", err)
	}
	if !changed {
		t.Fatal("expected unify-returns to report a change")
	}
	returns := 0
	for _, blk := range fn.Blocks {
		if _, ok := blk.Terminator().(*ir.ReturnInst); ok {
			returns++
		}
	}
	if returns != 1 {
		t.Fatalf("expected exactly one return site, got %d", returns)
	}
}

func TestGVNDeduplicatesEquivalentExpressions(t *testing.T) {
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	fn := m.DefineFunction("f", ctx.IntType(64), []types.Type{ctx.IntType(64), ctx.IntType(64)}, []string{"a", "b"})
	b := ir.NewBuilder(ctx, fn)
	b.SetCurrentBlock(fn.AppendBlock("entry"))
	first := b.Arithmetic(ir.Add, fn.Params[0], fn.Params[1], "s1")
	second := b.Arithmetic(ir.Add, fn.Params[0], fn.Params[1], "s2")
	sum := b.Arithmetic(ir.Add, first, second, "sum")
	b.Return(sum)
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	changed, err := (GVNPass{}).RunOnFunction(fn)
	if err != nil {
		t.Fatalf("RunOnFunction: %v", err)
	}
	if !changed {
		t.Fatal("expected gvn to report a change")
	}
	if len(second.Uses()) != 0 {
		t.Fatal("expected the redundant computation to have been replaced")
	}
}

func TestInstCombineFoldsConstantsAndIdentities(t *testing.T) {
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	fn := m.DefineFunction("f", ctx.IntType(64), []types.Type{ctx.IntType(64)}, []string{"x"})
	b := ir.NewBuilder(ctx, fn)
	b.SetCurrentBlock(fn.AppendBlock("entry"))
	folded := b.Arithmetic(ir.Add, m.ConstantValue(ctx.IntConstant(64, 2)), m.ConstantValue(ctx.IntConstant(64, 3)), "folded")
	identity := b.Arithmetic(ir.Add, fn.Params[0], m.ConstantValue(ctx.IntConstant(64, 0)), "ident")
	sum := b.Arithmetic(ir.Add, folded, identity, "sum")
	b.Return(sum)
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	changed, err := (InstCombinePass{}).RunOnFunction(fn)
	if err != nil {
		t.Fatalf("RunOnFunction: %v", err)
	}
	if !changed {
		t.Fatal("expected inst-combine to report a change")
	}
	for _, inst := range fn.Blocks[0].Instructions() {
		if inst == ir.Instruction(folded) {
			t.Fatal("constant-folded arithmetic should have been erased")
		}
		if inst == ir.Instruction(identity) {
			t.Fatal("x+0 identity should have been erased")
		}
	}
}

func TestTailRecElimConvertsSelfCallToLoop(t *testing.T) {
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	fn := m.DefineFunction("f", ctx.IntType(64), []types.Type{ctx.IntType(64)}, []string{"n"})
	b := ir.NewBuilder(ctx, fn)
	entry := fn.AppendBlock("entry")
	b.SetCurrentBlock(entry)
	dec := b.Arithmetic(ir.Sub, fn.Params[0], m.ConstantValue(ctx.IntConstant(64, 1)), "dec")
	call := b.Call(fn, []ir.Value{dec}, "rec")
	b.Return(call)
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	changed, err := (TailRecElimPass{}).RunOnFunction(fn)
	if err != nil {
		t.Fatalf("RunOnFunction: %v", err)
	}
	if !changed {
		t.Fatal("expected tail-rec-elim to report a change")
	}
	for _, blk := range fn.Blocks {
		for _, inst := range blk.Instructions() {
			if c, ok := inst.(*ir.CallInst); ok && c.Callee == fn {
				t.Fatal("self-recursive tail call should have been eliminated")
			}
		}
	}
}

func TestInlineSplicesCalleeBody(t *testing.T) {
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	callee := m.DefineFunction("callee", ctx.IntType(64), []types.Type{ctx.IntType(64)}, []string{"x"})
	bc := ir.NewBuilder(ctx, callee)
	bc.SetCurrentBlock(callee.AppendBlock("entry"))
	doubled := bc.Arithmetic(ir.Add, callee.Params[0], callee.Params[0], "doubled")
	bc.Return(doubled)
	if err := bc.Finish(); err != nil {
		t.Fatalf("Finish callee: %v", err)
	}

	caller := m.DefineFunction("caller", ctx.IntType(64), []types.Type{ctx.IntType(64)}, []string{"a"})
	bca := ir.NewBuilder(ctx, caller)
	entry := caller.AppendBlock("entry")
	bca.SetCurrentBlock(entry)
	call := bca.Call(callee, []ir.Value{caller.Params[0]}, "r")
	plusOne := bca.Arithmetic(ir.Add, call, m.ConstantValue(ctx.IntConstant(64, 1)), "plusone")
	bca.Return(plusOne)
	if err := bca.Finish(); err != nil {
		t.Fatalf("Finish caller: %v", err)
	}

	inlineCall(m, call)

	for _, blk := range caller.Blocks {
		for _, inst := range blk.Instructions() {
			if c, ok := inst.(*ir.CallInst); ok && c.Callee == callee {
				t.Fatal("call to callee should have been inlined away")
			}
		}
	}
	if plusOne.LHS() == ir.Value(call) {
		t.Fatal("caller's use of the call result should have been rewired to the inlined value")
	}
}
