package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chrysante/scatha-sub008/internal/asm"
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/mir"
	"github.com/chrysante/scatha-sub008/internal/types"
)

// buildMax builds max(a, b) with a phi join:
//
//	func i64 @max(i64 %a, i64 %b) {
//	  %entry: %cmp = scmp grt %a, %b; branch %cmp, %then, %else
//	  %then:  goto %join
//	  %else:  goto %join
//	  %join:  %r = phi [then: %a], [else: %b]; return %r
//	}
func buildMax(t *testing.T) (*ir.Module, *ir.Function) {
	t.Helper()
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	i64 := ctx.IntType(64)
	fn := m.DefineFunction("max", i64, []types.Type{i64, i64}, []string{"a", "b"})
	b := ir.NewBuilder(ctx, fn)
	entry := fn.AppendBlock("entry")
	thenB := fn.AppendBlock("then")
	elseB := fn.AppendBlock("else")
	join := fn.AppendBlock("join")

	b.SetCurrentBlock(entry)
	cmp := b.Compare(ir.Signed, ir.CmpGT, fn.Params[0], fn.Params[1], "cmp")
	b.Branch(cmp, thenB, elseB)
	b.SetCurrentBlock(thenB)
	b.Goto(join)
	b.SetCurrentBlock(elseB)
	b.Goto(join)
	b.SetCurrentBlock(join)
	phi := b.Phi(i64, join, "r")
	phi.SetIncoming(thenB, fn.Params[0])
	phi.SetIncoming(elseB, fn.Params[1])
	b.Return(phi)
	require.NoError(t, b.Finish())
	return m, fn
}

func TestLowerMaxSelectsExpectedShape(t *testing.T) {
	m, _ := buildMax(t)
	mm, err := Lower(m)
	require.NoError(t, err)
	fn := mm.FunctionNamed("max")
	require.NotNil(t, fn)
	require.Len(t, fn.Blocks, 4)

	// The join block starts with the phi until SSA destruction.
	join := fn.Blocks[3]
	require.NotEmpty(t, join.Phis())
	phi := join.Phis()[0]
	require.Len(t, phi.Operands, 2)
	require.Len(t, phi.Preds, 2)
}

func TestDestroySSAReplacesPhiWithCopies(t *testing.T) {
	m, _ := buildMax(t)
	mm, err := Lower(m)
	require.NoError(t, err)
	fn := mm.FunctionNamed("max")
	DestroySSA(fn)

	for _, b := range fn.Blocks {
		require.Empty(t, b.Phis(), "block %s still has phis", b.Name)
	}
	// Each former predecessor of join now ends in a copy into the phi's
	// register, before its jump.
	copies := 0
	for _, b := range fn.Blocks {
		for _, i := range b.Insts {
			if i.Op == mir.Copy {
				copies++
			}
		}
	}
	require.GreaterOrEqual(t, copies, 2)
	for _, r := range fn.Registers() {
		require.NotEqual(t, mir.SSAReg, r.Kind, "SSA register survived destruction")
	}
}

func TestAllocateRespectsInterference(t *testing.T) {
	m, _ := buildMax(t)
	mm, err := Lower(m)
	require.NoError(t, err)
	fn := mm.FunctionNamed("max")
	DestroySSA(fn)
	g, _, err := Allocate(fn)
	require.NoError(t, err)

	for _, r := range g.Nodes {
		require.GreaterOrEqual(t, r.Color, 0, "register %s left uncolored", r)
		for _, n := range g.Neighbors(r) {
			require.NotEqual(t, r.Color, n.Color,
				"interfering registers %s and %s share color %d", r, n, r.Color)
		}
	}
}

func TestRunProducesAssemblableProgram(t *testing.T) {
	m, _ := buildMax(t)
	mm, err := Run(m)
	require.NoError(t, err)

	prog, err := Emit(mm, m)
	require.NoError(t, err)
	prog.Main = "max"
	bin, err := asm.Assemble(prog, nil)
	require.NoError(t, err)
	require.NotEmpty(t, bin.Bytes)
	require.Contains(t, bin.Symbols, "max")

	// Every emitted instruction decodes back.
	decoded, err := asm.Disassemble(bin.Text())
	require.NoError(t, err)
	require.NotEmpty(t, decoded)
}

func TestJumpElisionRemovesFallThroughGoto(t *testing.T) {
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	fn := m.DefineFunction("f", ctx.Void(), nil, nil)
	b := ir.NewBuilder(ctx, fn)
	entry := fn.AppendBlock("entry")
	next := fn.AppendBlock("next")
	b.SetCurrentBlock(entry)
	b.Goto(next)
	b.SetCurrentBlock(next)
	b.Return(nil)
	require.NoError(t, b.Finish())

	mm, err := Run(m)
	require.NoError(t, err)
	mfn := mm.FunctionNamed("f")
	first := mfn.Blocks[0]
	for _, i := range first.Insts {
		require.NotEqual(t, mir.Jump, i.Op, "fall-through goto should have been elided")
	}
	require.Equal(t, mfn.Blocks[1], first.FallThrough)
}

func TestGEPFoldsIntoLoadAddress(t *testing.T) {
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	st := ctx.AnonymousStruct([]types.Type{ctx.IntType(64), ctx.IntType(64)})
	fn := m.DefineFunction("f", ctx.IntType(64), []types.Type{ctx.Ptr()}, []string{"p"})
	b := ir.NewBuilder(ctx, fn)
	b.SetCurrentBlock(fn.AppendBlock("entry"))
	g := b.GEP(st, fn.Params[0], nil, []int{1}, "g")
	v := b.Load(g, ctx.IntType(64), "v")
	b.Return(v)
	require.NoError(t, b.Finish())

	mm, err := Lower(m)
	require.NoError(t, err)
	mfn := mm.FunctionNamed("f")
	// The single-use GEP must not appear as a separate LEA; its offset is
	// folded into the load's memory operand.
	for _, blk := range mfn.Blocks {
		for _, i := range blk.Insts {
			require.NotEqual(t, mir.LEA, i.Op, "GEP should have been folded into the load")
			if i.Op == mir.Load {
				mem := i.Operands[0].(mir.MemoryAddress)
				require.Equal(t, 8, mem.Offset)
			}
		}
	}
}

func TestNoOpConversionSharesRegister(t *testing.T) {
	ctx := types.NewContext()
	m := ir.NewModule(ctx)
	fn := m.DefineFunction("f", ctx.IntType(64), []types.Type{ctx.IntType(64)}, []string{"x"})
	b := ir.NewBuilder(ctx, fn)
	b.SetCurrentBlock(fn.AppendBlock("entry"))
	c := b.Convert(ir.Bitcast, fn.Params[0], ctx.FloatType(64), "c")
	c2 := b.Convert(ir.Bitcast, c, ctx.IntType(64), "c2")
	b.Return(c2)
	require.NoError(t, b.Finish())

	mm, err := Lower(m)
	require.NoError(t, err)
	mfn := mm.FunctionNamed("f")
	for _, blk := range mfn.Blocks {
		for _, i := range blk.Insts {
			require.NotEqual(t, mir.Convert, i.Op, "bitcast must not produce a Convert")
		}
	}
}
