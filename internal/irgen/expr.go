package irgen

import (
	"fmt"

	"github.com/chrysante/scatha-sub008/internal/ast"
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/sema"
	"github.com/chrysante/scatha-sub008/internal/types"
)

// lowerExpr lowers e in register form, loading through memory when e
// names a storage location.
func (l *Lowerer) lowerExpr(fs *funcState, e ast.Expr) (ir.Value, error) {
	v, _, err := l.lowerExprTyped(fs, e)
	return v, err
}

// lowerExprTyped is lowerExpr plus the static type of the result, needed by
// LetStmt to size the local's alloca without a second lookup pass.
func (l *Lowerer) lowerExprTyped(fs *funcState, e ast.Expr) (ir.Value, types.Type, error) {
	switch v := e.(type) {
	case *ast.IntLiteral:
		ty := l.Ctx.IntType(v.Bits)
		return l.Module.ConstantValue(l.Ctx.IntConstant(v.Bits, v.Value)), ty, nil
	case *ast.FloatLiteral:
		bits := 64
		if !v.Double {
			bits = 32
		}
		ty := l.Ctx.FloatType(bits)
		return l.Module.ConstantValue(l.Ctx.FloatConstant(bits, v.Value)), ty, nil
	case *ast.BoolLiteral:
		ty := l.Ctx.IntType(1)
		return l.Module.ConstantValue(l.Ctx.BoolConstant(v.Value)), ty, nil
	case *ast.IdentExpr:
		return l.lowerIdent(fs, v)
	case *ast.ParenExpr:
		return l.lowerExprTyped(fs, v.Inner)
	case *ast.UnaryExpr:
		return l.lowerUnary(fs, v)
	case *ast.BinaryExpr:
		return l.lowerBinary(fs, v)
	case *ast.CallExpr:
		return l.lowerCall(fs, v)
	case *ast.FieldAccessExpr:
		addr, ty, err := l.lowerFieldAddr(fs, v)
		if err != nil {
			return nil, nil, err
		}
		return fs.b.Load(addr, ty, "field"), ty, nil
	case *ast.IndexExpr:
		addr, ty, err := l.lowerIndexAddr(fs, v)
		if err != nil {
			return nil, nil, err
		}
		return fs.b.Load(addr, ty, "elem"), ty, nil
	case *ast.StructLiteralExpr:
		return l.lowerStructLiteral(fs, v)
	case *ast.CondExpr:
		return l.lowerCond(fs, v)
	default:
		return nil, nil, fmt.Errorf("irgen: unsupported expression %T", e)
	}
}

func (l *Lowerer) localOf(fs *funcState, name string, e ast.Expr) *sema.LocalSymbol {
	if l.Deco != nil {
		if info := l.Deco.Info(e); info != nil && info.Local != nil {
			return info.Local
		}
	}
	return fs.currentScope().sema.Lookup(name)
}

func (l *Lowerer) lowerIdent(fs *funcState, id *ast.IdentExpr) (ir.Value, types.Type, error) {
	sym := l.localOf(fs, id.Name, id)
	if sym == nil {
		return nil, nil, fmt.Errorf("irgen: undefined identifier %q", id.Name)
	}
	addr, ok := fs.locals[sym]
	if !ok {
		return nil, nil, fmt.Errorf("irgen: identifier %q has no storage", id.Name)
	}
	return fs.b.Load(addr, sym.Type, id.Name), sym.Type, nil
}

// lowerLValue lowers e to the address of the storage location it names,
// for the left-hand side of an assignment.
func (l *Lowerer) lowerLValue(fs *funcState, e ast.Expr) (ir.Value, error) {
	switch v := e.(type) {
	case *ast.IdentExpr:
		sym := l.localOf(fs, v.Name, e)
		if sym == nil {
			return nil, fmt.Errorf("irgen: undefined identifier %q", v.Name)
		}
		addr, ok := fs.locals[sym]
		if !ok {
			return nil, fmt.Errorf("irgen: identifier %q has no storage", v.Name)
		}
		return addr, nil
	case *ast.FieldAccessExpr:
		addr, _, err := l.lowerFieldAddr(fs, v)
		return addr, err
	case *ast.IndexExpr:
		addr, _, err := l.lowerIndexAddr(fs, v)
		return addr, err
	case *ast.ParenExpr:
		return l.lowerLValue(fs, v.Inner)
	default:
		return nil, fmt.Errorf("irgen: %T is not assignable", e)
	}
}

func (l *Lowerer) lowerFieldAddr(fs *funcState, e *ast.FieldAccessExpr) (ir.Value, types.Type, error) {
	baseAddr, err := l.lowerLValue(fs, e.Base)
	if err != nil {
		return nil, nil, err
	}
	baseTy, err := l.exprType(fs, e.Base)
	if err != nil {
		return nil, nil, err
	}
	st, ok := baseTy.(*types.StructType)
	if !ok {
		return nil, nil, fmt.Errorf("irgen: field access on non-struct type %s", baseTy)
	}
	idx, ok := l.Table.Structs[st.Name].FieldIndex[e.Field]
	if !ok {
		return nil, nil, fmt.Errorf("irgen: struct %s has no field %q", st.Name, e.Field)
	}
	addr := fs.b.GEP(st, baseAddr, nil, []int{idx}, e.Field+".addr")
	return addr, st.Members[idx], nil
}

func (l *Lowerer) lowerIndexAddr(fs *funcState, e *ast.IndexExpr) (ir.Value, types.Type, error) {
	baseAddr, err := l.lowerLValue(fs, e.Base)
	if err != nil {
		return nil, nil, err
	}
	baseTy, err := l.exprType(fs, e.Base)
	if err != nil {
		return nil, nil, err
	}
	at, ok := baseTy.(*types.ArrayType)
	if !ok {
		return nil, nil, fmt.Errorf("irgen: index into non-array type %s", baseTy)
	}
	idxVal, err := l.lowerExpr(fs, e.Index)
	if err != nil {
		return nil, nil, err
	}
	addr := fs.b.GEP(at, baseAddr, idxVal, nil, "elem.addr")
	return addr, at.Element, nil
}

// exprType recovers the static type of e without re-lowering it, preferring
// the analyzer's decoration and falling back to re-lowering as a last
// resort for expressions the analyzer didn't annotate (e.g. in tests that
// drive irgen directly without a full Decorations map).
func (l *Lowerer) exprType(fs *funcState, e ast.Expr) (types.Type, error) {
	if l.Deco != nil {
		if info := l.Deco.Info(e); info != nil && info.Type != nil {
			return info.Type, nil
		}
	}
	_, ty, err := l.lowerExprTyped(fs, e)
	return ty, err
}

func (l *Lowerer) lowerUnary(fs *funcState, e *ast.UnaryExpr) (ir.Value, types.Type, error) {
	val, ty, err := l.lowerExprTyped(fs, e.Operand)
	if err != nil {
		return nil, nil, err
	}
	switch e.Op {
	case ast.OpNeg:
		return fs.b.UnaryArithmetic(ir.Neg, val, "neg"), ty, nil
	case ast.OpBitwiseNot:
		return fs.b.UnaryArithmetic(ir.BNot, val, "bnot"), ty, nil
	case ast.OpNot:
		return fs.b.UnaryArithmetic(ir.LNot, val, "lnot"), ty, nil
	default:
		return nil, nil, fmt.Errorf("irgen: unknown unary operator %v", e.Op)
	}
}

var binArith = map[ast.BinaryOp]struct{ signed, unsigned, float ir.ArithOp }{
	ast.OpAdd: {ir.Add, ir.Add, ir.FAdd},
	ast.OpSub: {ir.Sub, ir.Sub, ir.FSub},
	ast.OpMul: {ir.Mul, ir.Mul, ir.FMul},
	ast.OpDiv: {ir.SDiv, ir.UDiv, ir.FDiv},
	ast.OpRem: {ir.SRem, ir.URem, ir.FDiv},
	ast.OpAnd: {ir.And, ir.And, ir.And},
	ast.OpOr:  {ir.Or, ir.Or, ir.Or},
	ast.OpXor: {ir.Xor, ir.Xor, ir.Xor},
	ast.OpShl: {ir.Shl, ir.Shl, ir.Shl},
	ast.OpShr: {ir.AShr, ir.LShr, ir.AShr},
}

var binCompare = map[ast.BinaryOp]ir.CompareOp{
	ast.OpEq: ir.CmpEQ, ast.OpNe: ir.CmpNE,
	ast.OpLt: ir.CmpLT, ast.OpLe: ir.CmpLE,
	ast.OpGt: ir.CmpGT, ast.OpGe: ir.CmpGE,
}

func (l *Lowerer) lowerBinary(fs *funcState, e *ast.BinaryExpr) (ir.Value, types.Type, error) {
	if e.Op == ast.OpLogicalAnd || e.Op == ast.OpLogicalOr {
		return l.lowerShortCircuit(fs, e)
	}

	lhs, ty, err := l.lowerExprTyped(fs, e.Left)
	if err != nil {
		return nil, nil, err
	}
	rhs, err := l.lowerExpr(fs, e.Right)
	if err != nil {
		return nil, nil, err
	}

	if cmp, ok := binCompare[e.Op]; ok {
		mode := ir.Signed
		switch ty.(type) {
		case *types.FloatType:
			mode = ir.FloatOrdered
		}
		return fs.b.Compare(mode, cmp, lhs, rhs, "cmp"), l.Ctx.IntType(1), nil
	}

	ops, ok := binArith[e.Op]
	if !ok {
		return nil, nil, fmt.Errorf("irgen: unknown binary operator %v", e.Op)
	}
	op := ops.signed
	if _, isFloat := ty.(*types.FloatType); isFloat {
		op = ops.float
	}
	return fs.b.Arithmetic(op, lhs, rhs, "bin"), ty, nil
}

// lowerShortCircuit lowers && and || with branching so the right operand is
// only evaluated when it can affect the result.
func (l *Lowerer) lowerShortCircuit(fs *funcState, e *ast.BinaryExpr) (ir.Value, types.Type, error) {
	boolTy := l.Ctx.IntType(1)
	lhs, err := l.lowerExpr(fs, e.Left)
	if err != nil {
		return nil, nil, err
	}
	rhsBlock := fs.b.NewBlock("sc.rhs")
	joinBlock := fs.b.NewBlock("sc.join")
	lhsBlock := fs.b.CurrentBlock()

	if e.Op == ast.OpLogicalAnd {
		fs.b.Branch(lhs, rhsBlock, joinBlock)
	} else {
		fs.b.Branch(lhs, joinBlock, rhsBlock)
	}

	fs.b.SetCurrentBlock(rhsBlock)
	rhs, err := l.lowerExpr(fs, e.Right)
	if err != nil {
		return nil, nil, err
	}
	rhsBlock = fs.b.CurrentBlock()
	fs.b.Goto(joinBlock)

	fs.b.SetCurrentBlock(joinBlock)
	phi := fs.b.Phi(boolTy, joinBlock, "sc")
	phi.SetIncoming(lhsBlock, lhs)
	phi.SetIncoming(rhsBlock, rhs)
	return phi, boolTy, nil
}

func (l *Lowerer) lowerCall(fs *funcState, e *ast.CallExpr) (ir.Value, types.Type, error) {
	ident, ok := e.Callee.(*ast.IdentExpr)
	if !ok {
		return nil, nil, fmt.Errorf("irgen: indirect calls are not supported")
	}
	fe, ok := l.Table.Functions[ident.Name]
	if !ok {
		return nil, nil, fmt.Errorf("irgen: undefined function %q", ident.Name)
	}
	args := make([]ir.Value, 0, len(e.Args))
	for _, a := range e.Args {
		v, err := l.lowerExpr(fs, a)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, v)
	}
	if fe.Foreign {
		ref, ok := l.Foreign.Resolve(fe.ForeignLibrary, ident.Name)
		if !ok {
			return nil, nil, fmt.Errorf("irgen: unresolved foreign function %s.%s", fe.ForeignLibrary, ident.Name)
		}
		return fs.b.CallForeign(ref, fe.ReturnType, args, ident.Name+".call"), fe.ReturnType, nil
	}
	return fs.b.Call(fe.IR, args, ident.Name+".call"), fe.ReturnType, nil
}

func (l *Lowerer) lowerStructLiteral(fs *funcState, e *ast.StructLiteralExpr) (ir.Value, types.Type, error) {
	se, ok := l.Table.Structs[e.StructName]
	if !ok {
		return nil, nil, fmt.Errorf("irgen: undefined struct %q", e.StructName)
	}
	var agg ir.Value = l.Module.ConstantValue(l.Ctx.Undef(se.Type))
	for _, f := range e.Fields {
		idx, ok := se.FieldIndex[f.Name]
		if !ok {
			return nil, nil, fmt.Errorf("irgen: struct %s has no field %q", e.StructName, f.Name)
		}
		v, err := l.lowerExpr(fs, f.Value)
		if err != nil {
			return nil, nil, err
		}
		agg = fs.b.InsertValue(agg, v, []int{idx}, f.Name)
	}
	return agg, se.Type, nil
}

// lowerCond lowers the ternary `cond ? then : else` through a diamond with
// a shared join block, mirroring an if-statement that assigns a temporary.
func (l *Lowerer) lowerCond(fs *funcState, e *ast.CondExpr) (ir.Value, types.Type, error) {
	cond, err := l.lowerExpr(fs, e.Cond)
	if err != nil {
		return nil, nil, err
	}
	thenBlock := fs.b.NewBlock("cond.then")
	elseBlock := fs.b.NewBlock("cond.else")
	joinBlock := fs.b.NewBlock("cond.join")
	fs.b.Branch(cond, thenBlock, elseBlock)

	fs.b.SetCurrentBlock(thenBlock)
	thenVal, ty, err := l.lowerExprTyped(fs, e.Then)
	if err != nil {
		return nil, nil, err
	}
	thenBlock = fs.b.CurrentBlock()
	fs.b.Goto(joinBlock)

	fs.b.SetCurrentBlock(elseBlock)
	elseVal, err := l.lowerExpr(fs, e.Else)
	if err != nil {
		return nil, nil, err
	}
	elseBlock = fs.b.CurrentBlock()
	fs.b.Goto(joinBlock)

	fs.b.SetCurrentBlock(joinBlock)
	phi := fs.b.Phi(ty, joinBlock, "cond")
	phi.SetIncoming(thenBlock, thenVal)
	phi.SetIncoming(elseBlock, elseVal)
	return phi, ty, nil
}
