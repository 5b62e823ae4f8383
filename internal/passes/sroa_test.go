package passes

import (
	"testing"

	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/types"
)

// buildStructLocal builds:
//
//	entry: %p = alloca {i64, i64}
//	       %f0 = gep %p, [0]; store 1, %f0
//	       %f1 = gep %p, [1]; store 2, %f1
//	       %a = load i64, gep %p [0]; %b = load i64, gep %p [1]
//	       return %a + %b
func buildStructLocal(t *testing.T) (*ir.Function, *ir.AllocaInst) {
	t.Helper()
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	st := ctx.AnonymousStruct([]types.Type{ctx.IntType(64), ctx.IntType(64)})
	fn := m.DefineFunction("f", ctx.IntType(64), nil, nil)
	b := ir.NewBuilder(ctx, fn)
	b.SetCurrentBlock(fn.AppendBlock("entry"))

	p := b.Alloca(st, "p")
	f0 := b.GEP(st, p, nil, []int{0}, "f0")
	b.Store(f0, m.ConstantValue(ctx.IntConstant(64, 1)))
	f1 := b.GEP(st, p, nil, []int{1}, "f1")
	b.Store(f1, m.ConstantValue(ctx.IntConstant(64, 2)))
	g0 := b.GEP(st, p, nil, []int{0}, "g0")
	a := b.Load(g0, ctx.IntType(64), "a")
	g1 := b.GEP(st, p, nil, []int{1}, "g1")
	bb := b.Load(g1, ctx.IntType(64), "b")
	sum := b.Arithmetic(ir.Add, a, bb, "sum")
	b.Return(sum)
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return fn, p
}

func TestSROASplitsAndPromotesStructLocal(t *testing.T) {
	fn, alloca := buildStructLocal(t)
	changed, err := (SROAPass{}).RunOnFunction(fn)
	if err != nil {
		t.Fatalf("RunOnFunction: %v", err)
	}
	if !changed {
		t.Fatal("expected sroa to report a change")
	}
	if len(alloca.Uses()) != 0 {
		t.Fatal("aggregate alloca still has uses")
	}
	// Splitting plus promotion leaves a pure register function: no allocas,
	// no loads, no stores, no geps.
	for _, blk := range fn.Blocks {
		for _, inst := range blk.Instructions() {
			switch inst.(type) {
			case *ir.AllocaInst, *ir.LoadInst, *ir.StoreInst, *ir.GEPInstruction:
				t.Fatalf("memory instruction survived sroa: %s", inst)
			}
		}
	}
}

func TestSROALeavesEscapedAllocaAlone(t *testing.T) {
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	st := ctx.AnonymousStruct([]types.Type{ctx.IntType(64)})
	callee := m.DeclareFunction("sink", ctx.Void(), []types.Type{ctx.Ptr()})
	fn := m.DefineFunction("f", ctx.Void(), nil, nil)
	b := ir.NewBuilder(ctx, fn)
	b.SetCurrentBlock(fn.AppendBlock("entry"))
	p := b.Alloca(st, "p")
	b.Call(callee, []ir.Value{p}, "")
	b.Return(nil)
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if _, err := (SROAPass{}).RunOnFunction(fn); err != nil {
		t.Fatalf("RunOnFunction: %v", err)
	}
	if p.Block() == nil {
		t.Fatal("escaped alloca must survive sroa")
	}
}

func TestSROAHandlesWholeAggregateLoadStore(t *testing.T) {
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	st := ctx.AnonymousStruct([]types.Type{ctx.IntType(64), ctx.IntType(32)})
	fn := m.DefineFunction("f", st, []types.Type{st}, []string{"v"})
	b := ir.NewBuilder(ctx, fn)
	b.SetCurrentBlock(fn.AppendBlock("entry"))
	p := b.Alloca(st, "p")
	b.Store(p, fn.Params[0])
	v := b.Load(p, st, "v")
	b.Return(v)
	if err := b.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	changed, err := (SROAPass{}).RunOnFunction(fn)
	if err != nil {
		t.Fatalf("RunOnFunction: %v", err)
	}
	if !changed {
		t.Fatal("expected sroa to split the whole-aggregate accesses")
	}
	for _, inst := range fn.Entry().Instructions() {
		if _, ok := inst.(*ir.AllocaInst); ok {
			t.Fatalf("alloca survived sroa: %s", inst)
		}
	}
	// The return value is now rebuilt with insert_value from the param.
	ret := fn.Entry().Terminator().(*ir.ReturnInst)
	if _, ok := ret.Value_().(*ir.InsertValueInst); !ok {
		t.Fatalf("expected insert_value chain as return value, got %T", ret.Value_())
	}
}
