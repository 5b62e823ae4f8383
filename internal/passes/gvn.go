package passes

import (
	"fmt"

	"github.com/chrysante/scatha-sub008/internal/analysis"
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/passmgr"
)

func init() {
	passmgr.RegisterFunctionPass(GVNPass{})
}

// GVNPass hashes pure instructions by (opcode, operand identity, type),
// normalizing commutative operands so that `a+b` and `b+a` land in the same
// bucket, and replaces a later instruction with an earlier one that
// dominates it whenever they hash and compare equal — global value
// numbering restricted to a single dominator-tree walk, which is sound for
// SSA values (every definition already dominates every use).
type GVNPass struct{}

func (GVNPass) Name() string { return "gvn" }

func (GVNPass) RunOnFunction(fn *ir.Function) (bool, error) {
	dom := analysis.Dominators(fn)
	table := map[string]ir.Instruction{}
	changed := false

	var visit func(b *ir.BasicBlock)
	visit = func(b *ir.BasicBlock) {
		for _, inst := range append([]ir.Instruction(nil), b.NonPhis()...) {
			key, ok := gvnKey(fn, inst)
			if !ok {
				continue
			}
			if existing, found := table[key]; found && dom.Dominates(existing.Block(), b) {
				ir.ReplaceAllUsesWith(inst, existing)
				b.EraseInst(inst)
				changed = true
				continue
			}
			table[key] = inst
		}
		for _, c := range dom.Children(b) {
			visit(c)
		}
	}
	if entry := fn.Entry(); entry != nil {
		visit(entry)
	}
	return changed, nil
}

// gvnKey computes a structural hash key for a pure instruction, or ok=false
// for anything with side effects or control dependence (loads, stores,
// calls, allocas — revisiting memory requires alias analysis this pass does
// not have).
func gvnKey(fn *ir.Function, inst ir.Instruction) (string, bool) {
	switch v := inst.(type) {
	case *ir.ArithmeticInst:
		lhs, rhs := operandKey(v.LHS()), operandKey(v.RHS())
		if v.Op.IsCommutative() && commutativeAssociative(fn, v.Op) && lhs > rhs {
			lhs, rhs = rhs, lhs
		}
		return fmt.Sprintf("arith:%s:%s:%s:%s", v.Op, v.Type(), lhs, rhs), true
	case *ir.UnaryArithmeticInst:
		return fmt.Sprintf("unary:%s:%s:%s", v.Op, v.Type(), operandKey(v.Operand())), true
	case *ir.ConversionInst:
		return fmt.Sprintf("conv:%s:%s:%s", v.Op, v.Type(), operandKey(v.Operand())), true
	case *ir.CompareInst:
		lhs, rhs := operandKey(v.LHS()), operandKey(v.RHS())
		op := v.Op
		if lhs > rhs {
			lhs, rhs = rhs, lhs
			op = op.Swapped()
		}
		return fmt.Sprintf("cmp:%s:%s:%s:%s", v.Mode, op, lhs, rhs), true
	case *ir.GEPInstruction:
		dyn := "-"
		if d := v.DynamicIndex(); d != nil {
			dyn = operandKey(d)
		}
		return fmt.Sprintf("gep:%s:%s:%s:%v", v.SourceType, operandKey(v.Base()), dyn, v.MemberIndices), true
	case *ir.ExtractValueInst:
		return fmt.Sprintf("extract:%s:%v", operandKey(v.Aggregate()), v.Indices), true
	default:
		return "", false
	}
}

// commutativeAssociative gates float-operand commutation on the context's
// associativity flag (integer/bitwise ops are always exactly commutative;
// float add/mul are commutative per-IEEE but combining them with a
// differently-rounded sibling requires the "treat as associative" opt-in).
func commutativeAssociative(fn *ir.Function, op ir.ArithOp) bool {
	if !op.IsFloat() {
		return true
	}
	return fn.Module.Context.AssociativeFloatArithmetic()
}

func operandKey(v ir.Value) string {
	if v == nil {
		return "<nil>"
	}
	if c, ok := v.(*ir.Constant); ok {
		return "c:" + c.Value.String()
	}
	return fmt.Sprintf("v:%p", v)
}
