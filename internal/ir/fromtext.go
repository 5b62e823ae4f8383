package ir

import (
	"fmt"

	"github.com/chrysante/scatha-sub008/internal/types"
)

// buildModule is the semantic stage of the text-format reader: it walks the
// participle AST and drives the same low-level instruction constructors
// builder.go uses, so a parsed function is indistinguishable from one built
// directly. Gap: constant struct/array literals are not parsed anywhere —
// neither as a global initializer nor as an instruction operand — because
// bareValueAST and typedTailAST accept only registers and scalar literals,
// while Print can emit one in both places (RecordConstant.String()
// includes its own type). Instruction operands from this package's own
// Builder never take that shape: aggregates are materialized through a
// sequence of InsertValue instructions starting from undef.
func buildModule(ctx *types.Context, f *fileAST) (*Module, error) {
	m := NewModule(ctx)
	named := make(map[string]*types.StructType)
	for _, sd := range f.Structs {
		members := make([]types.Type, len(sd.Members))
		for i, mt := range sd.Members {
			ty, err := resolveType(ctx, named, mt)
			if err != nil {
				return nil, err
			}
			members[i] = ty
		}
		st := ctx.DeclareStruct(sd.Name, members)
		named[sd.Name] = st
		m.Structs = append(m.Structs, st)
	}
	for _, gd := range f.Globals {
		declared, err := resolveType(ctx, named, gd.Declared)
		if err != nil {
			return nil, err
		}
		var init types.Constant
		if gd.Init != nil {
			init, err = resolveScalarConst(ctx, declared, gd.Init.Val)
			if err != nil {
				return nil, err
			}
		}
		m.DeclareGlobal(gd.Name, declared, init)
	}
	for _, fd := range f.Functions {
		if err := buildFunction(m, named, fd); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func resolveType(ctx *types.Context, named map[string]*types.StructType, t *typeRefAST) (types.Type, error) {
	switch {
	case t.Array != nil:
		elem, err := resolveType(ctx, named, t.Array.Elem)
		if err != nil {
			return nil, err
		}
		return ctx.ArrayType(elem, t.Array.Count), nil
	case t.Struct != nil:
		members := make([]types.Type, len(t.Struct.Members))
		for i, mt := range t.Struct.Members {
			ty, err := resolveType(ctx, named, mt)
			if err != nil {
				return nil, err
			}
			members[i] = ty
		}
		return ctx.AnonymousStruct(members), nil
	case t.Named != "":
		if st, ok := named[t.Named]; ok {
			return st, nil
		}
		return nil, fmt.Errorf("ir: reference to undeclared struct @%s", t.Named)
	default:
		switch {
		case t.Prim == "void":
			return ctx.Void(), nil
		case t.Prim == "ptr":
			return ctx.Ptr(), nil
		case len(t.Prim) > 1 && t.Prim[0] == 'i':
			return ctx.IntType(mustAtoi(t.Prim[1:])), nil
		case len(t.Prim) > 1 && t.Prim[0] == 'f':
			return ctx.FloatType(mustAtoi(t.Prim[1:])), nil
		}
		return nil, fmt.Errorf("ir: unrecognized type %q", t.Prim)
	}
}

func mustAtoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func resolveScalarConst(ctx *types.Context, ty types.Type, v *bareValueAST) (types.Constant, error) {
	switch {
	case v.Null:
		return ctx.NullPointer(), nil
	case v.Undef:
		return ctx.Undef(ty), nil
	case v.Float != nil:
		ft, ok := ty.(*types.FloatType)
		if !ok {
			return nil, fmt.Errorf("ir: float literal against non-float type %s", ty)
		}
		return ctx.FloatConstant(ft.Bits, *v.Float), nil
	case v.Int != nil:
		it, ok := ty.(*types.IntType)
		if !ok {
			return nil, fmt.Errorf("ir: integer literal against non-integer type %s", ty)
		}
		return ctx.IntConstant(it.Bits, uint64(*v.Int)), nil
	}
	return nil, fmt.Errorf("ir: register reference is not a constant")
}

// funcScope resolves bareValueAST operands against the function currently
// under construction.
type funcScope struct {
	ctx    *types.Context
	m      *Module
	fn     *Function
	vals   map[string]Value
	blocks map[string]*BasicBlock
}

func (s *funcScope) value(v *bareValueAST, ty types.Type) (Value, error) {
	if v.Name != "" {
		if val, ok := s.vals[v.Name]; ok {
			return val, nil
		}
		return nil, fmt.Errorf("ir: reference to undefined value %%%s", v.Name)
	}
	c, err := resolveScalarConst(s.ctx, ty, v)
	if err != nil {
		return nil, err
	}
	return s.m.ConstantValue(c), nil
}

func (s *funcScope) block(name string) (*BasicBlock, error) {
	b, ok := s.blocks[name]
	if !ok {
		return nil, fmt.Errorf("ir: reference to undeclared block %%%s", name)
	}
	return b, nil
}

func buildFunction(m *Module, named map[string]*types.StructType, fd *funcAST) error {
	ctx := m.Context
	ret, err := resolveType(ctx, named, fd.Ret)
	if err != nil {
		return err
	}
	paramTypes := make([]types.Type, len(fd.Params))
	paramNames := make([]string, len(fd.Params))
	for i, p := range fd.Params {
		pt, err := resolveType(ctx, named, p.Ty)
		if err != nil {
			return err
		}
		paramTypes[i] = pt
		paramNames[i] = p.Name
	}

	switch {
	case fd.Decl != nil:
		m.DeclareFunction(fd.Name, ret, paramTypes)
		return nil
	case fd.Ext != nil:
		fn := m.DeclareFunction(fd.Name, ret, paramTypes)
		fn.Foreign = &ForeignRef{Slot: int(fd.Ext.Slot), Index: int(fd.Ext.Index), Name: fd.Name}
		return nil
	}

	fn := m.DefineFunction(fd.Name, ret, paramTypes, paramNames)
	scope := &funcScope{ctx: ctx, m: m, fn: fn, vals: make(map[string]Value), blocks: make(map[string]*BasicBlock)}
	for _, p := range fn.Params {
		scope.vals[p.Name()] = p
	}

	for _, bd := range fd.Body.Blocks {
		b := fn.AppendBlock(bd.Label)
		scope.blocks[bd.Label] = b
	}

	type pendingPhi struct {
		ast *phiAST
		phi *PhiInst
	}
	var pending []pendingPhi

	for _, bd := range fd.Body.Blocks {
		b := scope.blocks[bd.Label]
		for _, inst := range bd.Insts {
			if inst.Phi == nil {
				continue
			}
			ty, err := resolveType(ctx, named, inst.Phi.Ty)
			if err != nil {
				return err
			}
			name := ""
			if inst.Result != nil {
				name = *inst.Result
			}
			p := &PhiInst{instBase: newInstBase(fn.nextValueID(), ty, name, 0)}
			p.setOperandOwner(p)
			b.insertFrontAfterPhis(p)
			scope.vals[name] = p
			pending = append(pending, pendingPhi{ast: inst.Phi, phi: p})
		}
	}

	for _, bd := range fd.Body.Blocks {
		b := scope.blocks[bd.Label]
		for _, inst := range bd.Insts {
			if inst.Phi != nil {
				continue
			}
			if err := buildInstruction(scope, b, inst); err != nil {
				return err
			}
		}
	}

	for _, pp := range pending {
		for _, e := range pp.ast.Incoming {
			pred, err := scope.block(e.Pred)
			if err != nil {
				return err
			}
			v, err := scope.value(e.Val, pp.phi.Type())
			if err != nil {
				return err
			}
			pp.phi.SetIncoming(pred, v)
		}
	}

	return SetupInvariants(fn)
}

func resultName(inst *instAST) string {
	if inst.Result == nil {
		return ""
	}
	return *inst.Result
}

func buildInstruction(s *funcScope, b *BasicBlock, inst *instAST) error {
	fn := s.fn
	ctx := s.ctx
	name := resultName(inst)

	switch {
	case inst.Alloca != nil:
		ty, err := resolveType(ctx, s.structScope(), inst.Alloca.Ty)
		if err != nil {
			return err
		}
		n := 0
		if inst.Alloca.Count != nil {
			n = 1
		}
		base := newInstBase(fn.nextValueID(), ctx.Ptr(), name, n)
		a := &AllocaInst{instBase: base, AllocatedType: ty}
		a.setOperandOwner(a)
		if inst.Alloca.Count != nil {
			v, err := s.value(inst.Alloca.Count, ctx.IntType(64))
			if err != nil {
				return err
			}
			a.operands[0].set(v)
		}
		b.pushInst(a)
		s.vals[name] = a

	case inst.Load != nil:
		ty, err := resolveType(ctx, s.structScope(), inst.Load.Ty)
		if err != nil {
			return err
		}
		base := newInstBase(fn.nextValueID(), ty, name, 1)
		l := &LoadInst{instBase: base, ValueType: ty}
		l.setOperandOwner(l)
		addr, err := s.value(inst.Load.Addr, ctx.Ptr())
		if err != nil {
			return err
		}
		l.operands[0].set(addr)
		b.pushInst(l)
		s.vals[name] = l

	case inst.Store != nil:
		vty, err := resolveType(ctx, s.structScope(), inst.Store.Val.Ty)
		if err != nil {
			return err
		}
		base := newInstBase(fn.nextValueID(), ctx.Void(), "", 2)
		st := &StoreInst{instBase: base}
		st.setOperandOwner(st)
		val, err := s.value(inst.Store.Val.Val, vty)
		if err != nil {
			return err
		}
		addr, err := s.value(inst.Store.Addr, ctx.Ptr())
		if err != nil {
			return err
		}
		st.operands[0].set(addr)
		st.operands[1].set(val)
		b.pushInst(st)

	case inst.Gep != nil:
		srcTy, err := resolveType(ctx, s.structScope(), inst.Gep.Ty)
		if err != nil {
			return err
		}
		n := 1
		if inst.Gep.DynIdx != nil && (inst.Gep.DynIdx.Name != "" || inst.Gep.DynIdx.Int != nil || inst.Gep.DynIdx.Float != nil || inst.Gep.DynIdx.Null || inst.Gep.DynIdx.Undef) {
			n = 2
		}
		base := newInstBase(fn.nextValueID(), ctx.Ptr(), name, n)
		g := &GEPInstruction{instBase: base, SourceType: srcTy, MemberIndices: toInts(inst.Gep.Indices)}
		g.setOperandOwner(g)
		baseVal, err := s.value(inst.Gep.Base, ctx.Ptr())
		if err != nil {
			return err
		}
		g.operands[0].set(baseVal)
		if n == 2 {
			dyn, err := s.value(inst.Gep.DynIdx, ctx.IntType(64))
			if err != nil {
				return err
			}
			g.operands[1].set(dyn)
		}
		b.pushInst(g)
		s.vals[name] = g

	case inst.InsertV != nil:
		agg, err := s.value(inst.InsertV.Aggregate, nil)
		if err != nil {
			return err
		}
		ins, err := s.value(inst.InsertV.Inserted, nil)
		if err != nil {
			return err
		}
		base := newInstBase(fn.nextValueID(), agg.Type(), name, 2)
		v := &InsertValueInst{instBase: base, Indices: toInts(inst.InsertV.Indices)}
		v.setOperandOwner(v)
		v.operands[0].set(agg)
		v.operands[1].set(ins)
		b.pushInst(v)
		s.vals[name] = v

	case inst.ExtractV != nil:
		agg, err := s.value(inst.ExtractV.Aggregate, nil)
		if err != nil {
			return err
		}
		elemTy := extractElementType(agg.Type(), toInts(inst.ExtractV.Indices))
		base := newInstBase(fn.nextValueID(), elemTy, name, 1)
		v := &ExtractValueInst{instBase: base, Indices: toInts(inst.ExtractV.Indices)}
		v.setOperandOwner(v)
		v.operands[0].set(agg)
		b.pushInst(v)
		s.vals[name] = v

	case inst.Arith != nil:
		ty, err := resolveType(ctx, s.structScope(), inst.Arith.Ty)
		if err != nil {
			return err
		}
		lhs, err := s.value(inst.Arith.LHS, ty)
		if err != nil {
			return err
		}
		rhs, err := s.value(inst.Arith.RHS, ty)
		if err != nil {
			return err
		}
		base := newInstBase(fn.nextValueID(), ty, name, 2)
		a := &ArithmeticInst{instBase: base, Op: arithOpFromName(inst.Arith.Op)}
		a.setOperandOwner(a)
		a.operands[0].set(lhs)
		a.operands[1].set(rhs)
		b.pushInst(a)
		s.vals[name] = a

	case inst.Unary != nil:
		ty, err := resolveType(ctx, s.structScope(), inst.Unary.Ty)
		if err != nil {
			return err
		}
		v, err := s.value(inst.Unary.Val, ty)
		if err != nil {
			return err
		}
		base := newInstBase(fn.nextValueID(), ty, name, 1)
		u := &UnaryArithmeticInst{instBase: base, Op: unaryOpFromName(inst.Unary.Op)}
		u.setOperandOwner(u)
		u.operands[0].set(v)
		b.pushInst(u)
		s.vals[name] = u

	case inst.Conv != nil:
		srcTy, err := resolveType(ctx, s.structScope(), inst.Conv.Src.Ty)
		if err != nil {
			return err
		}
		dstTy, err := resolveType(ctx, s.structScope(), inst.Conv.Dst)
		if err != nil {
			return err
		}
		v, err := s.value(inst.Conv.Src.Val, srcTy)
		if err != nil {
			return err
		}
		base := newInstBase(fn.nextValueID(), dstTy, name, 1)
		c := &ConversionInst{instBase: base, Op: convOpFromName(inst.Conv.Op)}
		c.setOperandOwner(c)
		c.operands[0].set(v)
		b.pushInst(c)
		s.vals[name] = c

	case inst.Cmp != nil:
		ty, err := resolveType(ctx, s.structScope(), inst.Cmp.Ty)
		if err != nil {
			return err
		}
		lhs, err := s.value(inst.Cmp.LHS, ty)
		if err != nil {
			return err
		}
		rhs, err := s.value(inst.Cmp.RHS, ty)
		if err != nil {
			return err
		}
		base := newInstBase(fn.nextValueID(), ctx.IntType(1), name, 2)
		c := &CompareInst{instBase: base, Mode: cmpModeFromName(inst.Cmp.Mode), Op: cmpOpFromName(inst.Cmp.Op)}
		c.setOperandOwner(c)
		c.operands[0].set(lhs)
		c.operands[1].set(rhs)
		b.pushInst(c)
		s.vals[name] = c

	case inst.Goto != nil:
		target, err := s.block(inst.Goto.Target)
		if err != nil {
			return err
		}
		base := newInstBase(fn.nextValueID(), ctx.Void(), "", 1)
		g := &GotoInst{instBase: base}
		g.setOperandOwner(g)
		g.operands[0].set(target)
		b.setTerminator(g)

	case inst.Branch != nil:
		cond, err := s.value(inst.Branch.Cond, ctx.IntType(1))
		if err != nil {
			return err
		}
		ifTrue, err := s.block(inst.Branch.IfTrue)
		if err != nil {
			return err
		}
		ifFalse, err := s.block(inst.Branch.IfFalse)
		if err != nil {
			return err
		}
		base := newInstBase(fn.nextValueID(), ctx.Void(), "", 3)
		br := &BranchInst{instBase: base}
		br.setOperandOwner(br)
		br.operands[0].set(cond)
		br.operands[1].set(ifTrue)
		br.operands[2].set(ifFalse)
		b.setTerminator(br)

	case inst.Return != nil:
		n := 0
		if !inst.Return.Void {
			n = 1
		}
		base := newInstBase(fn.nextValueID(), ctx.Void(), "", n)
		r := &ReturnInst{instBase: base}
		r.setOperandOwner(r)
		if !inst.Return.Void {
			vty, err := resolveType(ctx, s.structScope(), inst.Return.Val.Ty)
			if err != nil {
				return err
			}
			v, err := s.value(inst.Return.Val.Val, vty)
			if err != nil {
				return err
			}
			r.operands[0].set(v)
		}
		b.setTerminator(r)

	case inst.Call != nil:
		ty, err := resolveType(ctx, s.structScope(), inst.Call.Ty)
		if err != nil {
			return err
		}
		args := make([]Value, len(inst.Call.Args))
		for i, a := range inst.Call.Args {
			aty, err := resolveType(ctx, s.structScope(), a.Ty)
			if err != nil {
				return err
			}
			v, err := s.value(a.Val, aty)
			if err != nil {
				return err
			}
			args[i] = v
		}
		base := newInstBase(fn.nextValueID(), ty, name, len(args))
		c := &CallInst{instBase: base}
		if inst.Call.ExtSlot != nil {
			c.Foreign = &ForeignRef{Slot: int(*inst.Call.ExtSlot), Index: int(*inst.Call.ExtIndex), Name: inst.Call.ExtName}
		} else {
			callee := s.m.FunctionNamed(inst.Call.Callee)
			if callee == nil {
				return fmt.Errorf("ir: call to undeclared function @%s", inst.Call.Callee)
			}
			c.Callee = callee
		}
		c.setOperandOwner(c)
		for i, a := range args {
			c.operands[i].set(a)
		}
		b.pushInst(c)
		if _, isVoid := ty.(*types.VoidType); !isVoid {
			s.vals[name] = c
		}

	default:
		return fmt.Errorf("ir: malformed instruction")
	}
	return nil
}

// structScope re-exposes the module's named-struct table so instruction
// construction can resolve "@Name" types the same way declarations do.
func (s *funcScope) structScope() map[string]*types.StructType {
	out := make(map[string]*types.StructType)
	for _, st := range s.m.Structs {
		out[st.Name] = st
	}
	return out
}

func toInts(xs []int64) []int {
	out := make([]int, len(xs))
	for i, x := range xs {
		out[i] = int(x)
	}
	return out
}

func extractElementType(agg types.Type, indices []int) types.Type {
	cur := agg
	for _, i := range indices {
		switch t := cur.(type) {
		case *types.StructType:
			cur = t.Members[i]
		case *types.ArrayType:
			cur = t.Element
		default:
			return cur
		}
	}
	return cur
}

func arithOpFromName(n string) ArithOp {
	for op, s := range arithOpNames {
		if s == n {
			return op
		}
	}
	return Add
}

func unaryOpFromName(n string) UnaryOp {
	switch n {
	case "neg":
		return Neg
	case "bnot":
		return BNot
	default:
		return LNot
	}
}

func convOpFromName(n string) ConvOp {
	for op, s := range convOpNames {
		if s == n {
			return op
		}
	}
	return Bitcast
}

func cmpModeFromName(n string) CompareMode {
	switch n {
	case "scmp":
		return Signed
	case "ucmp":
		return Unsigned
	default:
		return FloatOrdered
	}
}

func cmpOpFromName(n string) CompareOp {
	for op, s := range cmpOpNames {
		if s == n {
			return op
		}
	}
	return CmpEQ
}
