package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chrysante/scatha-sub008/internal/types"
)

// Instruction is satisfied by every node that can appear in a BasicBlock's
// instruction list. An Instruction is itself a Value: its "result" identity
// and its operand-consuming identity are the same object, as in LLVM-style
// SSA IRs.
type Instruction interface {
	Value

	// Block is the basic block currently containing this instruction, or
	// nil if it has been removed.
	Block() *BasicBlock
	setBlock(b *BasicBlock)

	// Operands returns the ordered operand Value list.
	Operands() []Value
	// SetOperand rewrites operand slot i to name v, maintaining user sets
	// on both the old and new operand atomically.
	SetOperand(i int, v Value)

	// Source is the source position the instruction was lowered from; the
	// zero value means no position is known.
	Source() SourceLoc
	setSource(loc SourceLoc)

	// IsTerminator reports whether this instruction ends its block.
	IsTerminator() bool
	// HasSideEffects reports whether DCE may not remove this instruction
	// merely because it has no users.
	HasSideEffects() bool

	String() string

	// eraseFromParent unlinks the instruction from its block's list and
	// clears its operands, releasing its uses before the node itself is
	// dropped.
	eraseFromParent()
}

// SourceLoc is the source position an instruction was lowered from, carried
// through codegen and the assembler into the debug-info map. A zero Line
// means "no position" (the instruction was synthesized by a pass).
type SourceLoc struct {
	File string
	Line int
	Col  int
}

// instBase is embedded by every concrete instruction; it is itself a Value
// (the instruction's result, if any) and owns the ordered operand list.
type instBase struct {
	valueBase
	block    *BasicBlock
	operands []*Use
	loc      SourceLoc
	listNode
}

func newInstBase(id uint64, ty types.Type, name string, numOperands int) instBase {
	b := instBase{valueBase: valueBase{id: id, ty: ty, name: name}}
	b.operands = make([]*Use, numOperands)
	for i := range b.operands {
		b.operands[i] = &Use{Index: i}
	}
	return b
}

func (b *instBase) Block() *BasicBlock    { return b.block }
func (b *instBase) setBlock(bl *BasicBlock) { b.block = bl }

// Source returns the source position this instruction was lowered from.
func (b *instBase) Source() SourceLoc       { return b.loc }
func (b *instBase) setSource(loc SourceLoc) { b.loc = loc }

func (b *instBase) Operands() []Value {
	out := make([]Value, len(b.operands))
	for i, u := range b.operands {
		out[i] = u.value
	}
	return out
}

func (b *instBase) SetOperand(i int, v Value) {
	b.operands[i].set(v)
}

// setOperandOwner must be called once, right after the operand slots have
// been allocated, so that each Use knows which Instruction it belongs to.
func (b *instBase) setOperandOwner(self Instruction) {
	for _, u := range b.operands {
		u.User = self
	}
}

func (b *instBase) operandAt(i int) Value {
	if b.operands[i] == nil {
		return nil
	}
	return b.operands[i].value
}

func (b *instBase) eraseFromParentBase() {
	for _, u := range b.operands {
		u.set(nil)
	}
}

func (b *instBase) IsTerminator() bool    { return false }
func (b *instBase) HasSideEffects() bool  { return false }

// ---------------------------------------------------------------------------
// Opcodes
// ---------------------------------------------------------------------------

// ArithOp enumerates the binary arithmetic/bitwise opcodes of ArithmeticInst.
type ArithOp int

const (
	Add ArithOp = iota
	Sub
	Mul
	SDiv
	UDiv
	SRem
	URem
	FAdd
	FSub
	FMul
	FDiv
	Shl
	LShr
	AShr
	And
	Or
	Xor
)

var arithOpNames = map[ArithOp]string{
	Add: "add", Sub: "sub", Mul: "mul", SDiv: "sdiv", UDiv: "udiv",
	SRem: "srem", URem: "urem", FAdd: "fadd", FSub: "fsub", FMul: "fmul",
	FDiv: "fdiv", Shl: "shl", LShr: "lshr", AShr: "ashr", And: "and",
	Or: "or", Xor: "xor",
}

func (o ArithOp) String() string { return arithOpNames[o] }

// IsCommutative reports whether operand order does not affect the result,
// used by GVN/inst-combine canonicalization.
func (o ArithOp) IsCommutative() bool {
	switch o {
	case Add, Mul, FAdd, FMul, And, Or, Xor:
		return true
	default:
		return false
	}
}

func (o ArithOp) IsFloat() bool {
	switch o {
	case FAdd, FSub, FMul, FDiv:
		return true
	default:
		return false
	}
}

// UnaryOp enumerates the opcodes of UnaryArithmeticInst.
type UnaryOp int

const (
	Neg UnaryOp = iota
	BNot
	LNot
)

func (o UnaryOp) String() string {
	switch o {
	case Neg:
		return "neg"
	case BNot:
		return "bnot"
	default:
		return "lnot"
	}
}

// ConvOp enumerates the opcodes of ConversionInst.
type ConvOp int

const (
	Zext ConvOp = iota
	Sext
	Trunc
	Bitcast
	SIntToFloat
	UIntToFloat
	FloatToSInt
	FloatToUInt
	FloatExt
	FloatTrunc
)

var convOpNames = map[ConvOp]string{
	Zext: "zext", Sext: "sext", Trunc: "trunc", Bitcast: "bitcast",
	SIntToFloat: "stof", UIntToFloat: "utof", FloatToSInt: "ftos",
	FloatToUInt: "ftou", FloatExt: "fext", FloatTrunc: "ftrunc",
}

func (o ConvOp) String() string { return convOpNames[o] }

// CompareMode distinguishes signed, unsigned, and floating-point comparison
// semantics for CompareInst.
type CompareMode int

const (
	Signed CompareMode = iota
	Unsigned
	FloatOrdered
)

// CompareOp enumerates the six relational operators shared by all three
// CompareMode values.
type CompareOp int

const (
	CmpEQ CompareOp = iota
	CmpNE
	CmpLT
	CmpLE
	CmpGT
	CmpGE
)

var cmpOpNames = map[CompareOp]string{
	CmpEQ: "eq", CmpNE: "neq", CmpLT: "lss", CmpLE: "leq", CmpGT: "grt", CmpGE: "geq",
}

func (o CompareOp) String() string { return cmpOpNames[o] }

// Swapped returns the operator obtained by swapping the two operands, used
// by GVN's commutativity-aware normalization of comparisons.
func (o CompareOp) Swapped() CompareOp {
	switch o {
	case CmpLT:
		return CmpGT
	case CmpLE:
		return CmpGE
	case CmpGT:
		return CmpLT
	case CmpGE:
		return CmpLE
	default:
		return o
	}
}

func (m CompareMode) String() string {
	switch m {
	case Signed:
		return "scmp"
	case Unsigned:
		return "ucmp"
	default:
		return "fcmp"
	}
}

// ---------------------------------------------------------------------------
// Memory instructions
// ---------------------------------------------------------------------------

// AllocaInst reserves a fresh stack slot and yields a ptr to it. After
// Builder.Finish, every Alloca lives in the entry block.
// Count is non-nil only for a dynamically-sized array alloca, in which case
// it is the element count (an i64 Value) rather than a compile-time
// constant.
type AllocaInst struct {
	instBase
	AllocatedType types.Type
}

func (a *AllocaInst) Count() Value {
	if len(a.operands) == 0 {
		return nil
	}
	return a.operandAt(0)
}
func (a *AllocaInst) String() string {
	if c := a.Count(); c != nil {
		return fmt.Sprintf("%%%s = alloca %s, count %s", a.name, a.AllocatedType, valueRef(c))
	}
	return fmt.Sprintf("%%%s = alloca %s", a.name, a.AllocatedType)
}
func (a *AllocaInst) eraseFromParent() { a.eraseFromParentBase() }

// LoadInst reads ValueType from Address.
type LoadInst struct {
	instBase
	ValueType types.Type
}

func (l *LoadInst) Address() Value { return l.operandAt(0) }
func (l *LoadInst) String() string {
	return fmt.Sprintf("%%%s = load %s, ptr %s", l.name, l.ValueType, valueRef(l.Address()))
}
func (l *LoadInst) eraseFromParent() { l.eraseFromParentBase() }

// StoreInst writes Value to Address; it has no result.
type StoreInst struct{ instBase }

func (s *StoreInst) Address() Value      { return s.operandAt(0) }
func (s *StoreInst) StoredValue() Value  { return s.operandAt(1) }
func (s *StoreInst) HasSideEffects() bool { return true }
func (s *StoreInst) String() string {
	v := s.StoredValue()
	return fmt.Sprintf("store %s %s, ptr %s", v.Type(), valueRef(v), valueRef(s.Address()))
}
func (s *StoreInst) eraseFromParent() { s.eraseFromParentBase() }

// GEPInstruction computes an inbounds structural address: Base indexed
// first by DynamicIndex (an array/pointer offset, nil if absent) and then
// by the constant MemberIndices, matching the struct/array nesting of
// SourceType.
type GEPInstruction struct {
	instBase
	SourceType    types.Type
	MemberIndices []int
}

func (g *GEPInstruction) Base() Value { return g.operandAt(0) }
func (g *GEPInstruction) DynamicIndex() Value {
	if len(g.operands) > 1 {
		return g.operandAt(1)
	}
	return nil
}
func (g *GEPInstruction) String() string {
	idx := "0"
	if d := g.DynamicIndex(); d != nil {
		idx = valueRef(d)
	}
	return fmt.Sprintf("%%%s = gep inbounds %s, ptr %s, %s, %s",
		g.name, g.SourceType, valueRef(g.Base()), idx, formatIndices(g.MemberIndices))
}
func (g *GEPInstruction) eraseFromParent() { g.eraseFromParentBase() }

// InsertValueInst returns a new aggregate equal to Aggregate except that the
// element at Indices is replaced by Inserted.
type InsertValueInst struct {
	instBase
	Indices []int
}

func (i *InsertValueInst) Aggregate() Value { return i.operandAt(0) }
func (i *InsertValueInst) Inserted() Value  { return i.operandAt(1) }
func (i *InsertValueInst) String() string {
	return fmt.Sprintf("%%%s = insert_value %s, %s, %s", i.name, valueRef(i.Aggregate()), valueRef(i.Inserted()), formatIndices(i.Indices))
}
func (i *InsertValueInst) eraseFromParent() { i.eraseFromParentBase() }

// ExtractValueInst reads the element of Aggregate at Indices.
type ExtractValueInst struct {
	instBase
	Indices []int
}

func (e *ExtractValueInst) Aggregate() Value { return e.operandAt(0) }
func (e *ExtractValueInst) String() string {
	return fmt.Sprintf("%%%s = extract_value %s, %s", e.name, valueRef(e.Aggregate()), formatIndices(e.Indices))
}
func (e *ExtractValueInst) eraseFromParent() { e.eraseFromParentBase() }

func formatIndices(indices []int) string {
	s := "["
	for i, idx := range indices {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%d", idx)
	}
	return s + "]"
}

// ---------------------------------------------------------------------------
// Arithmetic instructions
// ---------------------------------------------------------------------------

// ArithmeticInst is a binary arithmetic or bitwise instruction; its two
// operands share a type and its result type equals that operand type.
type ArithmeticInst struct {
	instBase
	Op ArithOp
}

func (a *ArithmeticInst) LHS() Value { return a.operandAt(0) }
func (a *ArithmeticInst) RHS() Value { return a.operandAt(1) }
func (a *ArithmeticInst) String() string {
	return fmt.Sprintf("%%%s = %s %s %s, %s", a.name, a.Op, a.ty, valueRef(a.LHS()), valueRef(a.RHS()))
}
func (a *ArithmeticInst) eraseFromParent() { a.eraseFromParentBase() }

// UnaryArithmeticInst is neg/bnot/lnot.
type UnaryArithmeticInst struct {
	instBase
	Op UnaryOp
}

func (u *UnaryArithmeticInst) Operand() Value { return u.operandAt(0) }
func (u *UnaryArithmeticInst) String() string {
	return fmt.Sprintf("%%%s = %s %s %s", u.name, u.Op, u.ty, valueRef(u.Operand()))
}
func (u *UnaryArithmeticInst) eraseFromParent() { u.eraseFromParentBase() }

// ConversionInst performs zext/sext/trunc/bitcast/int<->float conversions.
type ConversionInst struct {
	instBase
	Op ConvOp
}

func (c *ConversionInst) Operand() Value { return c.operandAt(0) }
func (c *ConversionInst) String() string {
	return fmt.Sprintf("%%%s = %s %s %s to %s", c.name, c.Op, c.Operand().Type(), valueRef(c.Operand()), c.ty)
}
func (c *ConversionInst) eraseFromParent() { c.eraseFromParentBase() }

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

// CompareInst yields i1. Mode selects signed/unsigned/float ordering
// semantics independent of Op.
type CompareInst struct {
	instBase
	Mode CompareMode
	Op   CompareOp
}

func (c *CompareInst) LHS() Value { return c.operandAt(0) }
func (c *CompareInst) RHS() Value { return c.operandAt(1) }
func (c *CompareInst) String() string {
	return fmt.Sprintf("%%%s = %s %s %s, %s, %s", c.name, c.Mode, c.Op, c.LHS().Type(), valueRef(c.LHS()), valueRef(c.RHS()))
}
func (c *CompareInst) eraseFromParent() { c.eraseFromParentBase() }

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// Terminator is satisfied by every instruction that may end a basic block.
type Terminator interface {
	Instruction
	Successors() []*BasicBlock
}

// GotoInst unconditionally transfers control to Target. Target is operand 0,
// so it participates in the ordinary operand/user bookkeeping like any other
// instruction.
type GotoInst struct{ instBase }

func (g *GotoInst) Target() *BasicBlock       { return g.operandAt(0).(*BasicBlock) }
func (g *GotoInst) Successors() []*BasicBlock { return []*BasicBlock{g.Target()} }
func (g *GotoInst) IsTerminator() bool        { return true }
func (g *GotoInst) String() string            { return fmt.Sprintf("goto label %%%s", g.Target().Name()) }
func (g *GotoInst) eraseFromParent()          { g.eraseFromParentBase() }

// BranchInst transfers control to IfTrue when Condition is nonzero, else to
// IfFalse. Operand order is [Condition, IfTrue, IfFalse].
type BranchInst struct{ instBase }

func (b *BranchInst) Condition() Value     { return b.operandAt(0) }
func (b *BranchInst) IfTrue() *BasicBlock  { return b.operandAt(1).(*BasicBlock) }
func (b *BranchInst) IfFalse() *BasicBlock { return b.operandAt(2).(*BasicBlock) }
func (b *BranchInst) Successors() []*BasicBlock {
	return []*BasicBlock{b.IfTrue(), b.IfFalse()}
}
func (b *BranchInst) IsTerminator() bool { return true }
func (b *BranchInst) String() string {
	return fmt.Sprintf("branch i1 %s, label %%%s, label %%%s", valueRef(b.Condition()), b.IfTrue().Name(), b.IfFalse().Name())
}
func (b *BranchInst) eraseFromParent() { b.eraseFromParentBase() }

// ReturnInst ends a function, optionally yielding Value.
type ReturnInst struct{ instBase }

func (r *ReturnInst) Value_() Value {
	if len(r.operands) == 0 {
		return nil
	}
	return r.operandAt(0)
}
func (r *ReturnInst) Successors() []*BasicBlock { return nil }
func (r *ReturnInst) IsTerminator() bool         { return true }
func (r *ReturnInst) HasSideEffects() bool       { return true }
func (r *ReturnInst) String() string {
	if v := r.Value_(); v != nil {
		return fmt.Sprintf("return %s %s", v.Type(), valueRef(v))
	}
	return "return void"
}
func (r *ReturnInst) eraseFromParent() { r.eraseFromParentBase() }

// PhiEdge is one (predecessor, value) pair of a PhiInst.
type PhiEdge struct {
	Pred *BasicBlock
	use  *Use
}

func (e *PhiEdge) Value() Value { return e.use.value }

// PhiInst selects an incoming value based on which predecessor branched to
// its block; its incoming predecessor set must equal the block's
// predecessor set.
type PhiInst struct {
	instBase
	Incoming []*PhiEdge
}

func (p *PhiInst) ValueFor(pred *BasicBlock) Value {
	for _, e := range p.Incoming {
		if e.Pred == pred {
			return e.Value()
		}
	}
	return nil
}

// SetIncoming rewrites (or adds) the incoming value for pred.
func (p *PhiInst) SetIncoming(pred *BasicBlock, v Value) {
	for _, e := range p.Incoming {
		if e.Pred == pred {
			e.use.set(v)
			return
		}
	}
	u := &Use{Index: len(p.operands), User: p}
	u.set(v)
	p.operands = append(p.operands, u)
	p.Incoming = append(p.Incoming, &PhiEdge{Pred: pred, use: u})
}

// RemoveIncoming drops the edge from pred, used when a predecessor is
// removed from the CFG.
func (p *PhiInst) RemoveIncoming(pred *BasicBlock) {
	for i, e := range p.Incoming {
		if e.Pred == pred {
			e.use.set(nil)
			p.Incoming = append(p.Incoming[:i], p.Incoming[i+1:]...)
			p.rebuildOperands()
			return
		}
	}
}

func (p *PhiInst) rebuildOperands() {
	p.operands = p.operands[:0]
	for i, e := range p.Incoming {
		e.use.Index = i
		p.operands = append(p.operands, e.use)
	}
}

func (p *PhiInst) String() string {
	s := fmt.Sprintf("%%%s = phi %s", p.name, p.ty)
	for i, e := range p.Incoming {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf(" [label %%%s : %s]", e.Pred.Name(), valueRef(e.Value()))
	}
	return s
}
func (p *PhiInst) eraseFromParent() {
	for _, e := range p.Incoming {
		e.use.set(nil)
	}
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// ForeignRef identifies a foreign-function declaration by its (slot, index)
// pair into the FFI table.
type ForeignRef struct {
	Slot  int
	Index int
	Name  string
}

// CallInst invokes Callee (a direct call) or Foreign (a foreign-function
// call) with Args. A void-returning call yields a void Value usable only as
// an ordering token.
type CallInst struct {
	instBase
	Callee  *Function
	Foreign *ForeignRef
}

func (c *CallInst) Args() []Value { return c.Operands() }
func (c *CallInst) HasSideEffects() bool { return true }
func (c *CallInst) String() string {
	name := c.Foreign
	callee := ""
	if c.Callee != nil {
		callee = "@" + c.Callee.Name()
	} else if name != nil {
		callee = fmt.Sprintf("ext(%d,%d) @%s", name.Slot, name.Index, name.Name)
	}
	args := ""
	for i, a := range c.Args() {
		if i > 0 {
			args += ", "
		}
		args += fmt.Sprintf("%s %s", a.Type(), valueRef(a))
	}
	if _, isVoid := c.ty.(*types.VoidType); isVoid {
		return fmt.Sprintf("call void %s(%s)", callee, args)
	}
	return fmt.Sprintf("%%%s = call %s %s(%s)", c.name, c.ty, callee, args)
}
func (c *CallInst) eraseFromParent() { c.eraseFromParentBase() }

// valueRef renders an operand without repeating a type that the surrounding
// instruction text already states: a register is "%name", a constant is its
// bare literal ("5", "null", "undef"). Aggregate constants keep their full
// "type {...}" form since no surrounding context supplies their type.
func valueRef(v Value) string {
	if v == nil {
		return "<nil>"
	}
	c, ok := v.(*Constant)
	if !ok {
		return "%" + v.Name()
	}
	switch cv := c.Value.(type) {
	case *types.IntegralConstant:
		return fmt.Sprintf("%d", cv.Signed())
	case *types.FloatingPointConstant:
		s := strconv.FormatFloat(cv.Value, 'f', -1, 64)
		if !strings.ContainsRune(s, '.') {
			s += ".0"
		}
		return s
	case *types.NullPointerConstant:
		return "null"
	case *types.UndefValue:
		return "undef"
	default:
		return c.Value.String()
	}
}
