package mir

import (
	"fmt"
	"strings"
)

// BasicBlock is a straight-line MIR instruction sequence. Control leaves
// through the trailing Jump/CondJump/Ret instructions; Succs/Preds cache the
// CFG edges. After jump elision a block may end without an explicit Jump, in
// which case FallThrough names the layout successor control reaches
// implicitly.
type BasicBlock struct {
	Name  string
	Index int
	Insts []*Instruction

	Preds []*BasicBlock
	Succs []*BasicBlock

	FallThrough *BasicBlock

	fn         *Function
	begin, end int
}

// Func returns the owning function.
func (b *BasicBlock) Func() *Function { return b.fn }

// Begin and End are the block's instruction-number range after
// Function.Number.
func (b *BasicBlock) Begin() int { return b.begin }
func (b *BasicBlock) End() int   { return b.end }

// Append adds i at the end of the block.
func (b *BasicBlock) Append(i *Instruction) { b.Insts = append(b.Insts, i) }

// InsertBeforeTerminators inserts i before the block's trailing control
// instructions (CondJump/Jump/Ret), the position SSA destruction places phi
// copies at.
func (b *BasicBlock) InsertBeforeTerminators(i *Instruction) {
	pos := len(b.Insts)
	for pos > 0 {
		op := b.Insts[pos-1].Op
		if op == Jump || op == CondJump || op == Ret {
			pos--
			continue
		}
		break
	}
	b.Insts = append(b.Insts, nil)
	copy(b.Insts[pos+1:], b.Insts[pos:])
	b.Insts[pos] = i
	b.fn.numberingValid = false
}

// Remove deletes i from the block.
func (b *BasicBlock) Remove(i *Instruction) {
	for n, x := range b.Insts {
		if x == i {
			b.Insts = append(b.Insts[:n], b.Insts[n+1:]...)
			b.fn.numberingValid = false
			return
		}
	}
}

// AddEdge records a CFG edge from b to succ, once.
func (b *BasicBlock) AddEdge(succ *BasicBlock) {
	for _, s := range b.Succs {
		if s == succ {
			return
		}
	}
	b.Succs = append(b.Succs, succ)
	succ.Preds = append(succ.Preds, b)
}

// ReplaceEdge redirects the edge b->oldSucc to b->newSucc, updating jump
// targets and both predecessor lists. Used by critical-edge splitting.
func (b *BasicBlock) ReplaceEdge(oldSucc, newSucc *BasicBlock) {
	for n, s := range b.Succs {
		if s == oldSucc {
			b.Succs[n] = newSucc
		}
	}
	for n, p := range oldSucc.Preds {
		if p == b {
			oldSucc.Preds = append(oldSucc.Preds[:n], oldSucc.Preds[n+1:]...)
			break
		}
	}
	newSucc.Preds = append(newSucc.Preds, b)
	for _, i := range b.Insts {
		if (i.Op == Jump || i.Op == CondJump) && i.Target == oldSucc {
			i.Target = newSucc
		}
	}
}

// Phis returns the block's phi prefix.
func (b *BasicBlock) Phis() []*Instruction {
	var out []*Instruction
	for _, i := range b.Insts {
		if i.Op != Phi {
			break
		}
		out = append(out, i)
	}
	return out
}

func (b *BasicBlock) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:\n", b.Name)
	for _, i := range b.Insts {
		fmt.Fprintf(&sb, "  %s\n", i)
	}
	return sb.String()
}
