package ir

import (
	"strings"
	"testing"

	"github.com/chrysante/scatha-sub008/internal/types"
)

func buildAddOne(t *testing.T) (*types.Context, *Module, *Function) {
	t.Helper()
	ctx := types.NewContext()
	m := NewModule(ctx)
	fn := m.DefineFunction("addOne", ctx.IntType(64), []types.Type{ctx.IntType(64)}, []string{"x"})
	b := NewBuilder(ctx, fn)
	entry := fn.AppendBlock("entry")
	b.SetCurrentBlock(entry)
	one := m.ConstantValue(ctx.IntConstant(64, 1))
	sum := b.Arithmetic(Add, fn.Params[0], one, "sum")
	b.Return(sum)
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return ctx, m, fn
}

func TestBuilderProducesValidFunction(t *testing.T) {
	_, _, fn := buildAddOne(t)
	if len(fn.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(fn.Blocks))
	}
	term := fn.Entry().Terminator()
	if term == nil {
		t.Fatal("entry block has no terminator")
	}
	if _, ok := term.(*ReturnInst); !ok {
		t.Fatalf("expected ReturnInst terminator, got %T", term)
	}
}

func TestUseBookkeepingTracksOperands(t *testing.T) {
	_, _, fn := buildAddOne(t)
	param := fn.Params[0]
	if len(param.Uses()) != 1 {
		t.Fatalf("expected 1 use of parameter, got %d", len(param.Uses()))
	}
	sum := fn.Entry().Instructions()[0].(*ArithmeticInst)
	if sum.LHS() != Value(param) {
		t.Fatalf("expected LHS to be the parameter")
	}
}

func TestReplaceAllUsesWithRewritesEveryOperand(t *testing.T) {
	ctx, m, fn := buildAddOne(t)
	entry := fn.Entry()
	sum := entry.Instructions()[0].(*ArithmeticInst)
	two := m.ConstantValue(ctx.IntConstant(64, 2))
	ReplaceAllUsesWith(fn.Params[0], two)
	if sum.LHS() != Value(two) {
		t.Fatalf("expected LHS replaced with constant 2, got %v", sum.LHS())
	}
	if len(fn.Params[0].Uses()) != 0 {
		t.Fatalf("expected parameter to have no remaining uses")
	}
}

func TestGotoTargetIsTrackedOperand(t *testing.T) {
	ctx := types.NewContext()
	m := NewModule(ctx)
	fn := m.DefineFunction("loop", ctx.Void(), nil, nil)
	b := NewBuilder(ctx, fn)
	entry := fn.AppendBlock("entry")
	body := fn.AppendBlock("body")
	b.SetCurrentBlock(entry)
	b.Goto(body)
	b.SetCurrentBlock(body)
	b.Return(nil)
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(body.Uses()) != 1 {
		t.Fatalf("expected the body block to have exactly one use (the goto), got %d", len(body.Uses()))
	}
	if len(body.Predecessors) != 1 || body.Predecessors[0] != entry {
		t.Fatalf("expected body's sole predecessor to be entry, got %v", body.Predecessors)
	}
}

func TestAllocaRelocatedToEntryOnFinish(t *testing.T) {
	ctx := types.NewContext()
	m := NewModule(ctx)
	fn := m.DefineFunction("f", ctx.Void(), nil, nil)
	b := NewBuilder(ctx, fn)
	entry := fn.AppendBlock("entry")
	other := fn.AppendBlock("other")
	b.SetCurrentBlock(entry)
	b.Goto(other)
	var a *AllocaInst
	b.WithBlockCurrent(other, func() {
		a = b.Alloca(ctx.IntType(32), "slot")
		b.Return(nil)
	})
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if a.Block() != entry {
		t.Fatalf("expected alloca relocated to entry block, got %s", a.Block().Name())
	}
}

func TestPhiIncomingMustCoverPredecessors(t *testing.T) {
	ctx := types.NewContext()
	m := NewModule(ctx)
	fn := m.DefineFunction("f", ctx.IntType(64), nil, nil)
	b := NewBuilder(ctx, fn)
	entry := fn.AppendBlock("entry")
	left := fn.AppendBlock("left")
	right := fn.AppendBlock("right")
	join := fn.AppendBlock("join")

	b.SetCurrentBlock(entry)
	b.Branch(m.ConstantValue(ctx.BoolConstant(true)), left, right)
	b.SetCurrentBlock(left)
	b.Goto(join)
	b.SetCurrentBlock(right)
	b.Goto(join)

	phi := b.Phi(ctx.IntType(64), join, "v")
	phi.SetIncoming(left, m.ConstantValue(ctx.IntConstant(64, 1)))
	// Deliberately omit the `right` edge to exercise SetupInvariants.
	b.SetCurrentBlock(join)
	b.Return(phi)

	if err := b.Finish(); err == nil {
		t.Fatal("expected Finish to reject an incomplete phi")
	}
	phi.SetIncoming(right, m.ConstantValue(ctx.IntConstant(64, 2)))
	if err := SetupInvariants(fn); err != nil {
		t.Fatalf("expected invariants to hold once every predecessor is covered: %v", err)
	}
}

func TestPrintParseRoundTrip(t *testing.T) {
	ctx, m, _ := buildAddOne(t)
	text := Print(m)
	if !strings.Contains(text, "func i64 @addOne") {
		t.Fatalf("printed text missing function signature: %s", text)
	}

	reparsed, err := Parse(ctx, text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	fn2 := reparsed.FunctionNamed("addOne")
	if fn2 == nil {
		t.Fatal("reparsed module missing function addOne")
	}
	text2 := Print(reparsed)
	if text != text2 {
		t.Fatalf("round trip mismatch:\n--- original ---\n%s\n--- reparsed ---\n%s", text, text2)
	}
}

func TestPrintParseRoundTripControlFlow(t *testing.T) {
	ctx := types.NewContext()
	m := NewModule(ctx)
	fn := m.DefineFunction("max", ctx.IntType(64), []types.Type{ctx.IntType(64), ctx.IntType(64)}, []string{"a", "b"})
	b := NewBuilder(ctx, fn)
	entry := fn.AppendBlock("entry")
	onTrue := fn.AppendBlock("onTrue")
	onFalse := fn.AppendBlock("onFalse")
	join := fn.AppendBlock("join")

	b.SetCurrentBlock(entry)
	cond := b.Compare(Signed, CmpGT, fn.Params[0], fn.Params[1], "cond")
	b.Branch(cond, onTrue, onFalse)

	b.SetCurrentBlock(onTrue)
	b.Goto(join)
	b.SetCurrentBlock(onFalse)
	b.Goto(join)

	b.SetCurrentBlock(join)
	phi := b.Phi(ctx.IntType(64), join, "result")
	phi.SetIncoming(onTrue, fn.Params[0])
	phi.SetIncoming(onFalse, fn.Params[1])
	b.Return(phi)

	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	text := Print(m)
	reparsed, err := Parse(ctx, text)
	if err != nil {
		t.Fatalf("Parse: %v\n%s", err, text)
	}
	text2 := Print(reparsed)
	if text != text2 {
		t.Fatalf("round trip mismatch:\n--- original ---\n%s\n--- reparsed ---\n%s", text, text2)
	}
}
