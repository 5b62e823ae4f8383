package passes

import (
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/passmgr"
	"github.com/chrysante/scatha-sub008/internal/types"
)

func init() {
	passmgr.RegisterFunctionPass(InstCombinePass{})
}

// InstCombinePass runs a fixed-point peephole pass over every instruction:
// identities (x+0, x*1, x&x), algebraic simplifications, constant folding,
// and GEP-of-GEP folding into a single inbounds computation. Each rule
// either replaces the instruction outright (ReplaceAllUsesWith + erase) or
// rewrites an operand in place; the pass repeats until a full sweep makes
// no change.
type InstCombinePass struct{}

func (InstCombinePass) Name() string { return "inst-combine" }

func (InstCombinePass) RunOnFunction(fn *ir.Function) (bool, error) {
	changed := false
	for {
		swept := false
		for _, b := range fn.Blocks {
			for _, inst := range append([]ir.Instruction(nil), b.NonPhis()...) {
				if combineOne(fn, b, inst) {
					swept = true
				}
			}
		}
		if !swept {
			break
		}
		changed = true
	}
	return changed, nil
}

func combineOne(fn *ir.Function, b *ir.BasicBlock, inst ir.Instruction) bool {
	switch v := inst.(type) {
	case *ir.ArithmeticInst:
		return combineArithmetic(fn, b, v)
	case *ir.GEPInstruction:
		return combineGEP(fn, b, v)
	case *ir.ConversionInst:
		return combineConversion(b, v)
	}
	return false
}

func constOperand(v ir.Value) (*types.IntegralConstant, bool) {
	c, ok := v.(*ir.Constant)
	if !ok {
		return nil, false
	}
	ic, ok := c.Value.(*types.IntegralConstant)
	return ic, ok
}

func combineArithmetic(fn *ir.Function, b *ir.BasicBlock, v *ir.ArithmeticInst) bool {
	ctx := fn.Module.Context
	lhs, rhs := v.LHS(), v.RHS()
	lc, lok := constOperand(lhs)
	rc, rok := constOperand(rhs)

	if lok && rok {
		folded, ok := foldIntArith(ctx, v.Op, lc, rc)
		if ok {
			replaceWithConstant(fn, b, v, folded)
			return true
		}
	}

	bits, isInt := v.Type().(*types.IntType)
	if !isInt {
		return false
	}
	width := bits.Bits

	switch v.Op {
	case ir.Add, ir.Sub, ir.Or, ir.Xor, ir.Shl, ir.LShr, ir.AShr:
		if rok && rc.Value == 0 {
			ir.ReplaceAllUsesWith(v, lhs)
			b.EraseInst(v)
			return true
		}
	case ir.Mul:
		if rok && rc.Value == 1 {
			ir.ReplaceAllUsesWith(v, lhs)
			b.EraseInst(v)
			return true
		}
		if rok && rc.Value == 0 {
			replaceWithConstant(fn, b, v, ctx.IntConstant(width, 0))
			return true
		}
	case ir.And:
		if rok && rc.Value == allOnes(width) {
			ir.ReplaceAllUsesWith(v, lhs)
			b.EraseInst(v)
			return true
		}
		if rok && rc.Value == 0 {
			replaceWithConstant(fn, b, v, ctx.IntConstant(width, 0))
			return true
		}
	}
	if v.Op == ir.Sub && lhs == rhs {
		replaceWithConstant(fn, b, v, ctx.IntConstant(width, 0))
		return true
	}
	if v.Op == ir.Xor && lhs == rhs {
		replaceWithConstant(fn, b, v, ctx.IntConstant(width, 0))
		return true
	}
	if v.Op == ir.And && lhs == rhs {
		ir.ReplaceAllUsesWith(v, lhs)
		b.EraseInst(v)
		return true
	}
	// Commutative canonicalization: when only the right operand is an
	// instruction, swap it to the left, so a constant or parameter operand
	// ends up on the right.
	if v.Op.IsCommutative() {
		if _, lIsInst := lhs.(ir.Instruction); !lIsInst {
			if _, rIsInst := rhs.(ir.Instruction); rIsInst {
				v.SetOperand(0, rhs)
				v.SetOperand(1, lhs)
				return true
			}
		}
	}
	return false
}

func allOnes(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

func foldIntArith(ctx *types.Context, op ir.ArithOp, l, r *types.IntegralConstant) (*types.IntegralConstant, bool) {
	width := l.Ty.Bits
	switch op {
	case ir.Add:
		return ctx.IntConstant(width, l.Value+r.Value), true
	case ir.Sub:
		return ctx.IntConstant(width, l.Value-r.Value), true
	case ir.Mul:
		return ctx.IntConstant(width, l.Value*r.Value), true
	case ir.And:
		return ctx.IntConstant(width, l.Value&r.Value), true
	case ir.Or:
		return ctx.IntConstant(width, l.Value|r.Value), true
	case ir.Xor:
		return ctx.IntConstant(width, l.Value^r.Value), true
	case ir.UDiv:
		if r.Value == 0 {
			return nil, false
		}
		return ctx.IntConstant(width, l.Value/r.Value), true
	case ir.URem:
		if r.Value == 0 {
			return nil, false
		}
		return ctx.IntConstant(width, l.Value%r.Value), true
	case ir.SDiv:
		if r.Value == 0 {
			return nil, false
		}
		return ctx.IntConstant(width, uint64(l.Signed()/r.Signed())), true
	case ir.SRem:
		if r.Value == 0 {
			return nil, false
		}
		return ctx.IntConstant(width, uint64(l.Signed()%r.Signed())), true
	case ir.Shl:
		if r.Value >= uint64(width) {
			return nil, false
		}
		return ctx.IntConstant(width, l.Value<<r.Value), true
	case ir.LShr:
		if r.Value >= uint64(width) {
			return nil, false
		}
		return ctx.IntConstant(width, l.Value>>r.Value), true
	case ir.AShr:
		if r.Value >= uint64(width) {
			return nil, false
		}
		return ctx.IntConstant(width, uint64(l.Signed()>>r.Value)), true
	default:
		return nil, false
	}
}

func replaceWithConstant(fn *ir.Function, b *ir.BasicBlock, v ir.Instruction, c types.Constant) {
	wrapped := fn.Module.ConstantValue(c)
	ir.ReplaceAllUsesWith(v, wrapped)
	b.EraseInst(v)
}

// combineGEP folds a GEP-of-GEP into a single inbounds computation when
// neither carries a dynamic index, simply concatenating the constant
// member-index lists.
func combineGEP(fn *ir.Function, b *ir.BasicBlock, v *ir.GEPInstruction) bool {
	inner, ok := v.Base().(*ir.GEPInstruction)
	if !ok || v.DynamicIndex() != nil || inner.DynamicIndex() != nil {
		return false
	}
	combined := append(append([]int(nil), inner.MemberIndices...), v.MemberIndices...)
	builder := ir.NewBuilder(fn.Module.Context, fn)
	builder.SetCurrentBlock(b)
	fused := builder.GEP(inner.SourceType, inner.Base(), nil, combined, v.Name())
	b.MoveBefore(v, fused)
	ir.ReplaceAllUsesWith(v, fused)
	b.EraseInst(v)
	return true
}

// combineConversion elides no-op conversions: zext/sext/trunc/bitcast whose
// operand already has the target type. A round trip through another type
// (such as a zext followed by a trunc back) is not folded.
func combineConversion(b *ir.BasicBlock, v *ir.ConversionInst) bool {
	if v.Operand().Type() == v.Type() {
		ir.ReplaceAllUsesWith(v, v.Operand())
		b.EraseInst(v)
		return true
	}
	return false
}
