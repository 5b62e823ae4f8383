package ir

// SplitAfter splits b into two blocks at the point immediately after
// marker: marker and everything before it stay in b, everything after it
// (including b's terminator) moves into a freshly created block, and b
// gains a new unconditional Goto to that block. Every phi in a former
// successor of b that named b as a predecessor is rewritten to name the
// new block instead, since b's old terminator — and the CFG edge it
// defined — now lives there.
//
// This is the block-splitting primitive inlining needs: a call in the
// middle of a block must leave everything that follows it reachable
// exactly as before, just one block further along.
func (b *BasicBlock) SplitAfter(marker Instruction, hint string) *BasicBlock {
	tail := b.Func.InsertBlockAfter(b, hint)

	var moving []Instruction
	capture := false
	for _, inst := range b.Instructions() {
		if capture {
			moving = append(moving, inst)
		}
		if inst == marker {
			capture = true
		}
	}
	for _, inst := range moving {
		b.insts.Remove(inst)
		inst.setBlock(tail)
		tail.insts.PushBack(inst)
	}

	tail.Successors = b.Successors
	for _, s := range tail.Successors {
		s.removePred(b)
		s.addPred(tail)
		for _, phi := range s.Phis() {
			if v := phi.ValueFor(b); v != nil {
				phi.RemoveIncoming(b)
				phi.SetIncoming(tail, v)
			}
		}
	}

	g := &GotoInst{instBase: newInstBase(b.Func.nextValueID(), b.Func.Module.Context.Void(), "", 1)}
	g.setOperandOwner(g)
	g.operands[0].set(tail)
	b.insts.PushBack(g)
	g.setBlock(b)
	b.Successors = []*BasicBlock{tail}
	tail.addPred(b)

	b.Func.invalidateCFGInfo()
	return tail
}
