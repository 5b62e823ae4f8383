package analysis

import (
	"testing"

	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/types"
)

func buildDiamond(t *testing.T) *ir.Function {
	t.Helper()
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	fn := m.DefineFunction("f", ctx.IntType(64), []types.Type{ctx.IntType(64)}, []string{"x"})
	b := ir.NewBuilder(ctx, fn)
	entry := fn.AppendBlock("entry")
	left := fn.AppendBlock("left")
	right := fn.AppendBlock("right")
	join := fn.AppendBlock("join")

	b.SetCurrentBlock(entry)
	cond := b.Compare(ir.Signed, ir.CmpGT, fn.Params[0], fn.Params[0], "cond")
	b.Branch(cond, left, right)
	b.SetCurrentBlock(left)
	b.Goto(join)
	b.SetCurrentBlock(right)
	b.Goto(join)
	b.SetCurrentBlock(join)
	phi := b.Phi(ctx.IntType(64), join, "v")
	phi.SetIncoming(left, fn.Params[0])
	phi.SetIncoming(right, fn.Params[0])
	b.Return(phi)
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return fn
}

func TestDominatorsOnDiamond(t *testing.T) {
	fn := buildDiamond(t)
	dom := Dominators(fn)
	entry, left, right, join := fn.Blocks[0], fn.Blocks[1], fn.Blocks[2], fn.Blocks[3]
	if dom.IDom(join) != entry {
		t.Fatalf("expected join's immediate dominator to be entry, got %s", dom.IDom(join).Name())
	}
	if !dom.Dominates(entry, left) || !dom.Dominates(entry, right) {
		t.Fatal("expected entry to dominate both branches")
	}
	if dom.Dominates(left, right) || dom.Dominates(right, left) {
		t.Fatal("left and right must not dominate each other")
	}
}

func TestDominanceFrontierOfDiamond(t *testing.T) {
	fn := buildDiamond(t)
	dom := Dominators(fn)
	left, join := fn.Blocks[1], fn.Blocks[3]
	frontier := dom.Frontier(left)
	if len(frontier) != 1 || frontier[0] != join {
		t.Fatalf("expected left's dominance frontier to be {join}, got %v", frontier)
	}
}

func TestLoopForestFindsSelfLoop(t *testing.T) {
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	fn := m.DefineFunction("loop", ctx.Void(), nil, nil)
	b := ir.NewBuilder(ctx, fn)
	entry := fn.AppendBlock("entry")
	header := fn.AppendBlock("header")
	exit := fn.AppendBlock("exit")
	b.SetCurrentBlock(entry)
	b.Goto(header)
	b.SetCurrentBlock(header)
	b.Branch(m.ConstantValue(ctx.BoolConstant(true)), header, exit)
	b.SetCurrentBlock(exit)
	b.Return(nil)
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	forest := Loops(fn)
	l := forest.LoopFor(header)
	if l == nil {
		t.Fatal("expected header to be recognized as a loop")
	}
	if l.Header != header {
		t.Fatalf("expected loop header to be %s, got %s", header.Name(), l.Header.Name())
	}
}

func TestCallGraphEdgesAndSCCs(t *testing.T) {
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	callee := m.DefineFunction("callee", ctx.Void(), nil, nil)
	bCallee := ir.NewBuilder(ctx, callee)
	bCallee.SetCurrentBlock(callee.AppendBlock("entry"))
	bCallee.Return(nil)
	if err := bCallee.Finish(); err != nil {
		t.Fatalf("Finish callee: %v", err)
	}

	caller := m.DefineFunction("caller", ctx.Void(), nil, nil)
	bCaller := ir.NewBuilder(ctx, caller)
	bCaller.SetCurrentBlock(caller.AppendBlock("entry"))
	bCaller.Call(callee, nil, "")
	bCaller.Return(nil)
	if err := bCaller.Finish(); err != nil {
		t.Fatalf("Finish caller: %v", err)
	}

	g := Build(m)
	if !g.Edges[caller][callee] {
		t.Fatal("expected an edge from caller to callee")
	}
	sccs := g.SCCs()
	if len(sccs) != 2 {
		t.Fatalf("expected 2 trivial SCCs for an acyclic call graph, got %d", len(sccs))
	}
}
