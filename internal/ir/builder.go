package ir

import (
	"fmt"

	"github.com/chrysante/scatha-sub008/internal/types"
)

// Builder provides ergonomic construction of blocks/instructions during
// lowering. It tracks a "current block" and buffers Alloca
// instructions so that Finish can relocate them to the entry block in
// source order.
type Builder struct {
	ctx     *types.Context
	fn      *Function
	current *BasicBlock

	pendingAllocas []*AllocaInst
	nameCounter    map[string]int
	loc            SourceLoc
}

// NewBuilder creates a Builder bound to ctx, ready to populate fn.
func NewBuilder(ctx *types.Context, fn *Function) *Builder {
	return &Builder{ctx: ctx, fn: fn, nameCounter: make(map[string]int)}
}

// Context returns the type/constant Context the builder allocates from.
func (b *Builder) Context() *types.Context { return b.ctx }

// Function returns the function under construction.
func (b *Builder) Function() *Function { return b.fn }

// CurrentBlock returns the block new instructions are appended to.
func (b *Builder) CurrentBlock() *BasicBlock { return b.current }

// SetCurrentBlock redirects subsequent Add calls to block.
func (b *Builder) SetCurrentBlock(block *BasicBlock) { b.current = block }

// NewBlock appends a fresh block to the function without making it current.
func (b *Builder) NewBlock(hint string) *BasicBlock { return b.fn.AppendBlock(hint) }

// WithBlockCurrent runs fn with block temporarily current, then restores the
// previous current block, so a lowering step can emit into another block
// without losing its place.
func (b *Builder) WithBlockCurrent(block *BasicBlock, fn func()) {
	prev := b.current
	b.current = block
	fn()
	b.current = prev
}

func (b *Builder) uniqueName(hint string) string {
	if hint == "" {
		hint = "v"
	}
	n := b.nameCounter[hint]
	b.nameCounter[hint] = n + 1
	if n == 0 {
		return hint
	}
	return fmt.Sprintf("%s.%d", hint, n)
}

// SetSourceLoc records the source position subsequent instructions are
// lowered from; it is stamped on every instruction the builder creates
// until the next call, and flows through codegen into the debug-info map.
func (b *Builder) SetSourceLoc(loc SourceLoc) { b.loc = loc }

func (b *Builder) add(i Instruction) {
	i.setSource(b.loc)
	i.setBlock(b.current)
	b.current.pushInst(i)
}

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

// Alloca reserves a fresh stack slot of allocatedType. The resulting
// instruction is buffered and relocated to the entry block by Finish.
func (b *Builder) Alloca(allocatedType types.Type, hint string) *AllocaInst {
	base := newInstBase(b.fn.nextValueID(), b.ctx.Ptr(), b.uniqueName(hint), 0)
	a := &AllocaInst{instBase: base, AllocatedType: allocatedType}
	a.setOperandOwner(a)
	b.pendingAllocas = append(b.pendingAllocas, a)
	// Alloca is added to its eventual home immediately so that it has a
	// valid position for dominance purposes even before Finish relocates it.
	b.add(a)
	return a
}

// DynamicAlloca is an array alloca whose element count is a runtime Value.
func (b *Builder) DynamicAlloca(allocatedType types.Type, count Value, hint string) *AllocaInst {
	a := b.Alloca(allocatedType, hint)
	a.operands = append(a.operands, &Use{Index: 0, User: a})
	a.operands[0].set(count)
	return a
}

// Load reads valueType from addr.
func (b *Builder) Load(addr Value, valueType types.Type, hint string) *LoadInst {
	base := newInstBase(b.fn.nextValueID(), valueType, b.uniqueName(hint), 1)
	l := &LoadInst{instBase: base, ValueType: valueType}
	l.setOperandOwner(l)
	l.operands[0].set(addr)
	b.add(l)
	return l
}

// Store writes value to addr.
func (b *Builder) Store(addr Value, value Value) *StoreInst {
	base := newInstBase(b.fn.nextValueID(), b.ctx.Void(), "", 2)
	s := &StoreInst{instBase: base}
	s.setOperandOwner(s)
	s.operands[0].set(addr)
	s.operands[1].set(value)
	b.add(s)
	return s
}

// GEP computes an inbounds address into sourceType starting at base,
// offset first by dynamicIndex (nil for none) and then by the constant
// memberIndices.
func (b *Builder) GEP(sourceType types.Type, base Value, dynamicIndex Value, memberIndices []int, hint string) *GEPInstruction {
	n := 1
	if dynamicIndex != nil {
		n = 2
	}
	ib := newInstBase(b.fn.nextValueID(), b.ctx.Ptr(), b.uniqueName(hint), n)
	g := &GEPInstruction{instBase: ib, SourceType: sourceType, MemberIndices: memberIndices}
	g.setOperandOwner(g)
	g.operands[0].set(base)
	if dynamicIndex != nil {
		g.operands[1].set(dynamicIndex)
	}
	b.add(g)
	return g
}

// InsertValue returns a new aggregate with element indices replaced by
// inserted.
func (b *Builder) InsertValue(aggregate Value, inserted Value, indices []int, hint string) *InsertValueInst {
	ib := newInstBase(b.fn.nextValueID(), aggregate.Type(), b.uniqueName(hint), 2)
	v := &InsertValueInst{instBase: ib, Indices: indices}
	v.setOperandOwner(v)
	v.operands[0].set(aggregate)
	v.operands[1].set(inserted)
	b.add(v)
	return v
}

// ExtractValue reads the element of aggregate at indices, whose type is
// resultType.
func (b *Builder) ExtractValue(aggregate Value, indices []int, resultType types.Type, hint string) *ExtractValueInst {
	ib := newInstBase(b.fn.nextValueID(), resultType, b.uniqueName(hint), 1)
	v := &ExtractValueInst{instBase: ib, Indices: indices}
	v.setOperandOwner(v)
	v.operands[0].set(aggregate)
	b.add(v)
	return v
}

// ---------------------------------------------------------------------------
// Arithmetic / comparison / conversion
// ---------------------------------------------------------------------------

// Arithmetic emits a binary arithmetic/bitwise instruction. lhs and rhs must
// share a type; the result type is that shared type, except for none of the
// arithmetic ops which always preserve it (logic results are i1 only via
// Compare, not Arithmetic).
func (b *Builder) Arithmetic(op ArithOp, lhs, rhs Value, hint string) *ArithmeticInst {
	ib := newInstBase(b.fn.nextValueID(), lhs.Type(), b.uniqueName(hint), 2)
	a := &ArithmeticInst{instBase: ib, Op: op}
	a.setOperandOwner(a)
	a.operands[0].set(lhs)
	a.operands[1].set(rhs)
	b.add(a)
	return a
}

// UnaryArithmetic emits neg/bnot/lnot.
func (b *Builder) UnaryArithmetic(op UnaryOp, operand Value, hint string) *UnaryArithmeticInst {
	ib := newInstBase(b.fn.nextValueID(), operand.Type(), b.uniqueName(hint), 1)
	u := &UnaryArithmeticInst{instBase: ib, Op: op}
	u.setOperandOwner(u)
	u.operands[0].set(operand)
	b.add(u)
	return u
}

// Convert emits a zext/sext/trunc/bitcast/int-float conversion to target.
func (b *Builder) Convert(op ConvOp, operand Value, target types.Type, hint string) *ConversionInst {
	ib := newInstBase(b.fn.nextValueID(), target, b.uniqueName(hint), 1)
	c := &ConversionInst{instBase: ib, Op: op}
	c.setOperandOwner(c)
	c.operands[0].set(operand)
	b.add(c)
	return c
}

// Compare emits a relational comparison, yielding i1.
func (b *Builder) Compare(mode CompareMode, op CompareOp, lhs, rhs Value, hint string) *CompareInst {
	ib := newInstBase(b.fn.nextValueID(), b.ctx.IntType(1), b.uniqueName(hint), 2)
	c := &CompareInst{instBase: ib, Mode: mode, Op: op}
	c.setOperandOwner(c)
	c.operands[0].set(lhs)
	c.operands[1].set(rhs)
	b.add(c)
	return c
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// Goto terminates the current block with an unconditional jump to target.
func (b *Builder) Goto(target *BasicBlock) *GotoInst {
	ib := newInstBase(b.fn.nextValueID(), b.ctx.Void(), "", 1)
	g := &GotoInst{instBase: ib}
	g.loc = b.loc
	g.setOperandOwner(g)
	g.operands[0].set(target)
	b.current.setTerminator(g)
	return g
}

// Branch terminates the current block, jumping to ifTrue when cond is
// nonzero and to ifFalse otherwise.
func (b *Builder) Branch(cond Value, ifTrue, ifFalse *BasicBlock) *BranchInst {
	ib := newInstBase(b.fn.nextValueID(), b.ctx.Void(), "", 3)
	br := &BranchInst{instBase: ib}
	br.loc = b.loc
	br.setOperandOwner(br)
	br.operands[0].set(cond)
	br.operands[1].set(ifTrue)
	br.operands[2].set(ifFalse)
	b.current.setTerminator(br)
	return br
}

// Return terminates the current block, optionally yielding value (nil for
// void functions).
func (b *Builder) Return(value Value) *ReturnInst {
	n := 0
	if value != nil {
		n = 1
	}
	ib := newInstBase(b.fn.nextValueID(), b.ctx.Void(), "", n)
	r := &ReturnInst{instBase: ib}
	r.loc = b.loc
	r.setOperandOwner(r)
	if value != nil {
		r.operands[0].set(value)
	}
	b.current.setTerminator(r)
	return r
}

// Phi creates an empty phi instruction at the front of block (after any
// existing phis), to be populated via PhiInst.SetIncoming as predecessors
// are discovered — the pattern used both by direct lowering and by
// mem2reg's renaming pass.
func (b *Builder) Phi(ty types.Type, block *BasicBlock, hint string) *PhiInst {
	ib := newInstBase(b.fn.nextValueID(), ty, b.uniqueName(hint), 0)
	p := &PhiInst{instBase: ib}
	p.loc = b.loc
	block.insertFrontAfterPhis(p)
	return p
}

// Call emits a direct call to callee with args.
func (b *Builder) Call(callee *Function, args []Value, hint string) *CallInst {
	ib := newInstBase(b.fn.nextValueID(), callee.ReturnType, b.uniqueName(hint), len(args))
	c := &CallInst{instBase: ib, Callee: callee}
	c.setOperandOwner(c)
	for i, a := range args {
		c.operands[i].set(a)
	}
	b.add(c)
	return c
}

// CallForeign emits a call through the (slot, index) FFI table.
func (b *Builder) CallForeign(ref *ForeignRef, retType types.Type, args []Value, hint string) *CallInst {
	ib := newInstBase(b.fn.nextValueID(), retType, b.uniqueName(hint), len(args))
	c := &CallInst{instBase: ib, Foreign: ref}
	c.setOperandOwner(c)
	for i, a := range args {
		c.operands[i].set(a)
	}
	b.add(c)
	return c
}

// ---------------------------------------------------------------------------
// Finish / invariants
// ---------------------------------------------------------------------------

// Finish relocates every buffered Alloca to the entry block in source
// order and validates the function's structural invariants. It must be
// called exactly once, after the function body has been fully lowered.
func (b *Builder) Finish() error {
	entry := b.fn.Entry()
	if entry == nil {
		return fmt.Errorf("ir: function %q has no entry block", b.fn.Name())
	}
	for i := len(b.pendingAllocas) - 1; i >= 0; i-- {
		a := b.pendingAllocas[i]
		if a.block == entry {
			continue
		}
		a.block.insts.Remove(a)
		entry.insts.PushFront(a)
		a.setBlock(entry)
	}
	b.pendingAllocas = nil
	return SetupInvariants(b.fn)
}

// SetupInvariants checks block-name uniqueness, terminator presence, phi
// consistency, and that every alloca sits in the entry block. It does not
// check that operands dominate their uses. It is exported so passes
// that restructure the CFG can re-validate without going through a Builder.
func SetupInvariants(f *Function) error {
	names := make(map[string]bool)
	for _, bl := range f.Blocks {
		if names[bl.Name()] {
			return fmt.Errorf("ir: duplicate block name %q in function %q", bl.Name(), f.Name())
		}
		names[bl.Name()] = true
		if bl.Terminator() == nil {
			return fmt.Errorf("ir: block %%%s has no terminator", bl.Name())
		}
		predSet := make(map[*BasicBlock]bool)
		for _, p := range bl.Predecessors {
			predSet[p] = true
		}
		for _, phi := range bl.Phis() {
			if len(phi.Incoming) != len(bl.Predecessors) {
				return fmt.Errorf("ir: phi %%%s incoming count %d does not match %d predecessors of %%%s",
					phi.Name(), len(phi.Incoming), len(bl.Predecessors), bl.Name())
			}
			seen := make(map[*BasicBlock]bool)
			for _, e := range phi.Incoming {
				if !predSet[e.Pred] {
					return fmt.Errorf("ir: phi %%%s names %%%s, which is not a predecessor of %%%s",
						phi.Name(), e.Pred.Name(), bl.Name())
				}
				seen[e.Pred] = true
			}
			if len(seen) != len(predSet) {
				return fmt.Errorf("ir: phi %%%s does not cover every predecessor of %%%s", phi.Name(), bl.Name())
			}
		}
	}
	for _, bl := range f.Blocks {
		for _, a := range bl.AllocaInstsNotInEntry(f.Entry()) {
			return fmt.Errorf("ir: alloca %%%s occurs outside the entry block", a)
		}
	}
	return nil
}

// AllocaInstsNotInEntry returns the names of any Alloca instructions in b
// that are not in entry, used by SetupInvariants.
func (b *BasicBlock) AllocaInstsNotInEntry(entry *BasicBlock) []string {
	if b == entry {
		return nil
	}
	var bad []string
	for _, i := range b.Instructions() {
		if a, ok := i.(*AllocaInst); ok {
			bad = append(bad, a.Name())
		}
	}
	return bad
}
