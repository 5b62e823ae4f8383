package irgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysante/scatha-sub008/internal/ast"
	"github.com/chrysante/scatha-sub008/internal/ffi"
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/sema"
	"github.com/chrysante/scatha-sub008/internal/types"
)

func lowerProgram(t *testing.T, prog *ast.Program) (*Lowerer, *ir.Module) {
	t.Helper()
	ctx := types.NewContext()
	l := New(ctx, sema.NewSymbolTable(), sema.NewDecorations(), ffi.NewRegistry())
	require.NoError(t, l.LowerProgram(prog))
	return l, l.Module
}

func intType() ast.TypeExpr { return ast.TypeExpr{Name: "int"} }

func ident(name string) *ast.IdentExpr { return &ast.IdentExpr{Name: name} }

func TestLowerAddFunction(t *testing.T) {
	prog := &ast.Program{Functions: []*ast.FunctionDecl{{
		Name:       "add",
		Params:     []ast.Param{{Name: "a", Type: intType()}, {Name: "b", Type: intType()}},
		ReturnType: intType(),
		Body: &ast.BlockStmt{Stmts: []ast.Stmt{
			&ast.ReturnStmt{Value: &ast.BinaryExpr{Op: ast.OpAdd, Left: ident("a"), Right: ident("b")}},
		}},
	}}}
	_, m := lowerProgram(t, prog)

	fn := m.FunctionNamed("add")
	require.NotNil(t, fn)
	require.False(t, fn.External)
	assert.Len(t, fn.Params, 2)

	// The body loads both params (memory form), adds, stores into the
	// return slot, and reaches the exit block's return.
	var adds int
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions() {
			if a, ok := inst.(*ir.ArithmeticInst); ok && a.Op == ir.Add {
				adds++
			}
		}
	}
	assert.Equal(t, 1, adds)
	require.NoError(t, ir.SetupInvariants(fn))
}

func TestLowerWhileLoopShape(t *testing.T) {
	// fn count(n: int) -> int { let mut i = 0; while i < n { i = i + 1; } return i; }
	prog := &ast.Program{Functions: []*ast.FunctionDecl{{
		Name:       "count",
		Params:     []ast.Param{{Name: "n", Type: intType()}},
		ReturnType: intType(),
		Body: &ast.BlockStmt{Stmts: []ast.Stmt{
			&ast.LetStmt{Name: "i", Mutable: true, Value: &ast.IntLiteral{Value: 0, Bits: 64}},
			&ast.WhileStmt{
				Cond: &ast.BinaryExpr{Op: ast.OpLt, Left: ident("i"), Right: ident("n")},
				Body: &ast.BlockStmt{Stmts: []ast.Stmt{
					&ast.AssignStmt{Target: ident("i"),
						Value: &ast.BinaryExpr{Op: ast.OpAdd, Left: ident("i"), Right: &ast.IntLiteral{Value: 1, Bits: 64}}},
				}},
			},
			&ast.ReturnStmt{Value: ident("i")},
		}},
	}}}
	_, m := lowerProgram(t, prog)
	fn := m.FunctionNamed("count")
	require.NotNil(t, fn)

	names := map[string]bool{}
	for _, b := range fn.Blocks {
		names[b.Name()] = true
	}
	assert.True(t, names["while.header"], "missing loop header block")
	assert.True(t, names["while.body"], "missing loop body block")
	assert.True(t, names["while.exit"], "missing loop exit block")
	require.NoError(t, ir.SetupInvariants(fn))
}

func TestDeclarePhaseResolvesForwardCalls(t *testing.T) {
	// callee is declared after caller in source order.
	prog := &ast.Program{Functions: []*ast.FunctionDecl{
		{
			Name: "caller", ReturnType: intType(),
			Body: &ast.BlockStmt{Stmts: []ast.Stmt{
				&ast.ReturnStmt{Value: &ast.CallExpr{Callee: ident("callee")}},
			}},
		},
		{
			Name: "callee", ReturnType: intType(),
			Body: &ast.BlockStmt{Stmts: []ast.Stmt{
				&ast.ReturnStmt{Value: &ast.IntLiteral{Value: 7, Bits: 64}},
			}},
		},
	}}
	_, m := lowerProgram(t, prog)
	caller := m.FunctionNamed("caller")
	require.NotNil(t, caller)
	var call *ir.CallInst
	for _, b := range caller.Blocks {
		for _, inst := range b.Instructions() {
			if c, ok := inst.(*ir.CallInst); ok {
				call = c
			}
		}
	}
	require.NotNil(t, call)
	assert.Equal(t, m.FunctionNamed("callee"), call.Callee)
}

func TestForeignFunctionGetsSlotIndex(t *testing.T) {
	prog := &ast.Program{Functions: []*ast.FunctionDecl{
		{
			Name: "puts", Foreign: true, ForeignLibrary: "libc", ForeignIndex: 3,
			Params:     []ast.Param{{Name: "s", Type: ast.TypeExpr{Name: "ptr"}}},
			ReturnType: ast.TypeExpr{Name: "void"},
		},
		{
			Name: "main", ReturnType: ast.TypeExpr{Name: "void"},
			Body: &ast.BlockStmt{Stmts: []ast.Stmt{}},
		},
	}}
	l, m := lowerProgram(t, prog)

	decl := m.FunctionNamed("puts")
	require.NotNil(t, decl)
	assert.True(t, decl.External)

	ref, ok := l.Foreign.Resolve("libc", "puts")
	require.True(t, ok)
	assert.Equal(t, 0, ref.Slot)
	assert.Equal(t, 3, ref.Index)
}

func TestStructDeclAndFieldAccess(t *testing.T) {
	prog := &ast.Program{
		Structs: []*ast.StructDecl{{
			Name: "Pair",
			Fields: []ast.StructField{
				{Name: "x", Type: intType()},
				{Name: "y", Type: intType()},
			},
		}},
		Functions: []*ast.FunctionDecl{{
			Name:       "second",
			Params:     []ast.Param{{Name: "p", Type: ast.TypeExpr{Name: "Pair"}}},
			ReturnType: intType(),
			Body: &ast.BlockStmt{Stmts: []ast.Stmt{
				&ast.ReturnStmt{Value: &ast.FieldAccessExpr{Base: ident("p"), Field: "y"}},
			}},
		}},
	}
	l, m := lowerProgram(t, prog)

	se := l.Table.Structs["Pair"]
	require.NotNil(t, se)
	assert.Equal(t, 16, se.Type.Size())
	assert.Equal(t, []int{0, 8}, se.Type.Offsets)

	fn := m.FunctionNamed("second")
	require.NotNil(t, fn)
	found := false
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions() {
			if g, ok := inst.(*ir.GEPInstruction); ok && len(g.MemberIndices) == 1 && g.MemberIndices[0] == 1 {
				found = true
			}
		}
	}
	assert.True(t, found, "field access must lower to a member GEP")
	require.NoError(t, ir.SetupInvariants(fn))
}

func TestSourceLocationsStampLoweredInstructions(t *testing.T) {
	ret := &ast.ReturnStmt{Value: &ast.IntLiteral{Value: 1, Bits: 64}}
	ret.Position = ast.Position{Filename: "main.sc", Line: 3, Column: 5}
	prog := &ast.Program{Functions: []*ast.FunctionDecl{{
		Name:       "f",
		ReturnType: intType(),
		Body:       &ast.BlockStmt{Stmts: []ast.Stmt{ret}},
	}}}
	_, m := lowerProgram(t, prog)
	fn := m.FunctionNamed("f")
	require.NotNil(t, fn)
	stamped := false
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions() {
			if loc := inst.Source(); loc.Line == 3 && loc.File == "main.sc" {
				stamped = true
			}
		}
	}
	assert.True(t, stamped, "statement position must reach the lowered instructions")
}
