package ir

// BasicBlock is an intrusive list of Instructions ending in exactly one
// terminator. It is itself a Value so that Goto/Branch/Phi can name it as
// an operand, and it caches predecessor/successor links kept consistent by
// terminator mutation.
type BasicBlock struct {
	valueBase
	Func *Function

	insts InstList

	Predecessors []*BasicBlock
	Successors   []*BasicBlock

	prevBlock, nextBlock *BasicBlock
}

// Instructions returns the block's instructions (including any terminator)
// in order, front to back.
func (b *BasicBlock) Instructions() []Instruction { return b.insts.Slice() }

// NonPhis returns the block's instructions excluding its phi prefix and its
// terminator — the instructions an analysis usually cares about.
func (b *BasicBlock) NonPhis() []Instruction {
	var out []Instruction
	for i := b.insts.Front(); i != nil; i = Next(i) {
		if _, ok := i.(*PhiInst); ok {
			continue
		}
		if i.IsTerminator() {
			continue
		}
		out = append(out, i)
	}
	return out
}

// Phis returns the block's phi-instruction prefix.
func (b *BasicBlock) Phis() []*PhiInst {
	var out []*PhiInst
	for i := b.insts.Front(); i != nil; i = Next(i) {
		p, ok := i.(*PhiInst)
		if !ok {
			break
		}
		out = append(out, p)
	}
	return out
}

// Terminator returns the block's terminator, or nil if the block is
// malformed (only possible mid-construction, before Builder.Finish).
func (b *BasicBlock) Terminator() Terminator {
	if b.insts.tail == nil {
		return nil
	}
	if t, ok := b.insts.tail.(Terminator); ok {
		return t
	}
	return nil
}

// pushInst appends an instruction, keeping the terminator (if present) last.
func (b *BasicBlock) pushInst(i Instruction) {
	i.setBlock(b)
	if term := b.Terminator(); term != nil {
		b.insts.InsertBefore(term, i)
	} else {
		b.insts.PushBack(i)
	}
}

// insertBefore inserts i immediately before mark within this block.
func (b *BasicBlock) insertBefore(mark, i Instruction) {
	i.setBlock(b)
	b.insts.InsertBefore(mark, i)
}

func (b *BasicBlock) insertFrontAfterPhis(i Instruction) {
	i.setBlock(b)
	mark := Instruction(nil)
	for cur := b.insts.Front(); cur != nil; cur = Next(cur) {
		if _, ok := cur.(*PhiInst); !ok {
			mark = cur
			break
		}
	}
	b.insts.InsertBefore(mark, i)
}

// erase removes i from the block's list and releases its operands.
func (b *BasicBlock) erase(i Instruction) {
	b.insts.Remove(i)
	i.eraseFromParent()
	i.setBlock(nil)
}

// setTerminator replaces the block's terminator (if any) with t and
// recomputes Successors/Predecessors for both the old and new targets,
// maintaining the invariant that CFG edges mirror terminator operands.
func (b *BasicBlock) setTerminator(t Terminator) {
	if old := b.Terminator(); old != nil {
		for _, s := range old.Successors() {
			s.removePred(b)
		}
		b.insts.Remove(old.(Instruction))
		old.(Instruction).eraseFromParent()
	}
	t.(Instruction).setBlock(b)
	b.insts.PushBack(t.(Instruction))
	b.Successors = t.Successors()
	for _, s := range b.Successors {
		s.addPred(b)
	}
}

// EraseInst removes a non-terminator instruction from b, releasing its
// operand uses. Callers must first RAUW away any remaining uses of it.
func (b *BasicBlock) EraseInst(i Instruction) {
	b.erase(i)
	b.Func.invalidateCFGInfo()
}

// DetachTerminator removes b's terminator (if any) and clears its successor
// edges, leaving b without one. Used when deleting an unreachable block
// outright, after every former predecessor has been redirected elsewhere.
func (b *BasicBlock) DetachTerminator() {
	if old := b.Terminator(); old != nil {
		for _, s := range old.Successors() {
			s.removePred(b)
		}
		b.insts.Remove(old.(Instruction))
		old.(Instruction).eraseFromParent()
	}
	b.Successors = nil
	b.Func.invalidateCFGInfo()
}

// InsertFront inserts i as the first non-phi instruction of b.
func (b *BasicBlock) InsertFront(i Instruction) {
	b.insertFrontAfterPhis(i)
}

// InsertBeforeInst inserts i immediately before mark within b.
func (b *BasicBlock) InsertBeforeInst(mark, i Instruction) {
	b.insertBefore(mark, i)
}

// MoveBefore relocates inst, already present somewhere in b, to sit
// immediately before mark — used by passes that build a replacement
// instruction with the Builder (which always appends) but need it to land
// at a specific program point so definitions keep dominating their uses.
func (b *BasicBlock) MoveBefore(mark, inst Instruction) {
	if inst == mark {
		return
	}
	b.insts.Remove(inst)
	b.insts.InsertBefore(mark, inst)
}

// SetTerminator replaces b's terminator with t, keeping Successors and every
// target's Predecessors consistent. Passes that rewrite control flow (e.g.
// simplify-cfg folding a Branch into a Goto) go through this rather than
// poking operands directly so the CFG caches never drift from the IR.
func (b *BasicBlock) SetTerminator(t Terminator) {
	b.setTerminator(t)
	b.Func.invalidateCFGInfo()
}

func (b *BasicBlock) addPred(p *BasicBlock) {
	for _, x := range b.Predecessors {
		if x == p {
			return
		}
	}
	b.Predecessors = append(b.Predecessors, p)
}

func (b *BasicBlock) removePred(p *BasicBlock) {
	for i, x := range b.Predecessors {
		if x == p {
			b.Predecessors = append(b.Predecessors[:i], b.Predecessors[i+1:]...)
			return
		}
	}
}
