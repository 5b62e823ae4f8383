package passes

import (
	"testing"

	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/types"
)

func TestDCERemovesDeadArithmetic(t *testing.T) {
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	fn := m.DefineFunction("f", ctx.IntType(64), []types.Type{ctx.IntType(64)}, []string{"x"})
	b := ir.NewBuilder(ctx, fn)
	b.SetCurrentBlock(fn.AppendBlock("entry"))
	dead := b.Arithmetic(ir.Add, fn.Params[0], fn.Params[0], "dead")
	b.Return(fn.Params[0])
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	changed, err := (DCEPass{}).RunOnFunction(fn)
	if err != nil {
		t.Fatalf("RunOnFunction: %v", err)
	}
	if !changed {
		t.Fatal("expected DCE to report a change")
	}
	for _, inst := range fn.Blocks[0].Instructions() {
		if inst == ir.Instruction(dead) {
			t.Fatal("dead arithmetic instruction survived DCE")
		}
	}
}

func TestSimplifyCFGSkipsTrampolineBlock(t *testing.T) {
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	fn := m.DefineFunction("f", ctx.Void(), nil, nil)
	b := ir.NewBuilder(ctx, fn)
	entry := fn.AppendBlock("entry")
	trampoline := fn.AppendBlock("trampoline")
	exit := fn.AppendBlock("exit")
	b.SetCurrentBlock(entry)
	b.Goto(trampoline)
	b.SetCurrentBlock(trampoline)
	b.Goto(exit)
	b.SetCurrentBlock(exit)
	b.Return(nil)
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	changed, err := (SimplifyCFGPass{}).RunOnFunction(fn)
	if err != nil {
		t.Fatalf("RunOnFunction: %v", err)
	}
	if !changed {
		t.Fatal("expected simplify-cfg to report a change")
	}
	g, ok := entry.Terminator().(*ir.GotoInst)
	if !ok || g.Target() != exit {
		t.Fatalf("expected entry to jump directly to exit, got %v", entry.Terminator())
	}
	for _, blk := range fn.Blocks {
		if blk == trampoline {
			t.Fatal("trampoline block should have been removed")
		}
	}
}

func TestSimplifyCFGFoldsDegenerateBranch(t *testing.T) {
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	fn := m.DefineFunction("f", ctx.Void(), nil, nil)
	b := ir.NewBuilder(ctx, fn)
	entry := fn.AppendBlock("entry")
	exit := fn.AppendBlock("exit")
	b.SetCurrentBlock(entry)
	b.Branch(m.ConstantValue(ctx.BoolConstant(true)), exit, exit)
	b.SetCurrentBlock(exit)
	b.Return(nil)
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	changed, err := (SimplifyCFGPass{}).RunOnFunction(fn)
	if err != nil {
		t.Fatalf("RunOnFunction: %v", err)
	}
	if !changed {
		t.Fatal("expected simplify-cfg to report a change")
	}
	if _, ok := entry.Terminator().(*ir.GotoInst); !ok {
		t.Fatalf("expected degenerate branch to fold to goto, got %v", entry.Terminator())
	}
}

// buildIfElseWithLocal builds:
//
//	entry: %p = alloca i64; store 1, %p; br cond, then, else
//	then:  store 2, %p; goto join
//	else:  store 3, %p; goto join
//	join:  %v = load i64, %p; return %v
//
// so that mem2reg must insert exactly one phi in join.
func buildIfElseWithLocal(t *testing.T) (*ir.Function, *ir.AllocaInst) {
	t.Helper()
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	fn := m.DefineFunction("f", ctx.IntType(64), []types.Type{ctx.IntType(1)}, []string{"cond"})
	b := ir.NewBuilder(ctx, fn)
	entry := fn.AppendBlock("entry")
	thenB := fn.AppendBlock("then")
	elseB := fn.AppendBlock("else")
	join := fn.AppendBlock("join")

	b.SetCurrentBlock(entry)
	p := b.Alloca(ctx.IntType(64), "p")
	b.Store(p, m.ConstantValue(ctx.IntConstant(64, 1)))
	b.Branch(fn.Params[0], thenB, elseB)

	b.SetCurrentBlock(thenB)
	b.Store(p, m.ConstantValue(ctx.IntConstant(64, 2)))
	b.Goto(join)

	b.SetCurrentBlock(elseB)
	b.Store(p, m.ConstantValue(ctx.IntConstant(64, 3)))
	b.Goto(join)

	b.SetCurrentBlock(join)
	v := b.Load(p, ctx.IntType(64), "v")
	b.Return(v)

	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return fn, p
}

func TestMem2RegPromotesSimpleLocal(t *testing.T) {
	fn, alloca := buildIfElseWithLocal(t)
	changed, err := (Mem2RegPass{}).RunOnFunction(fn)
	if err != nil {
		t.Fatalf("RunOnFunction: %v", err)
	}
	if !changed {
		t.Fatal("expected mem2reg to report a change")
	}
	if len(alloca.Uses()) != 0 {
		t.Fatal("expected alloca to have no remaining uses")
	}
	var join *ir.BasicBlock
	for _, blk := range fn.Blocks {
		if blk.Name() == "join" {
			join = blk
		}
	}
	if join == nil {
		t.Fatal("join block missing")
	}
	if len(join.Phis()) != 1 {
		t.Fatalf("expected exactly one phi in join, got %d", len(join.Phis()))
	}
	for _, inst := range join.Instructions() {
		if _, ok := inst.(*ir.LoadInst); ok {
			t.Fatal("load should have been replaced by the phi")
		}
	}
}

func TestGlobalDCERemovesUnreachableFunction(t *testing.T) {
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	unreachable := m.DefineFunction("unused", ctx.Void(), nil, nil)
	bU := ir.NewBuilder(ctx, unreachable)
	bU.SetCurrentBlock(unreachable.AppendBlock("entry"))
	bU.Return(nil)
	if err := bU.Finish(); err != nil {
		t.Fatalf("Finish unused: %v", err)
	}

	main := m.DefineFunction("main", ctx.Void(), nil, nil)
	bM := ir.NewBuilder(ctx, main)
	bM.SetCurrentBlock(main.AppendBlock("entry"))
	bM.Return(nil)
	if err := bM.Finish(); err != nil {
		t.Fatalf("Finish main: %v", err)
	}

	changed, err := (GlobalDCEPass{}).RunOnModule(m)
	if err != nil {
		t.Fatalf("RunOnModule: %v", err)
	}
	if !changed {
		t.Fatal("expected globaldce to report a change")
	}
	for _, f := range m.Functions {
		if f == unreachable {
			t.Fatal("unreachable function should have been removed")
		}
	}
}
