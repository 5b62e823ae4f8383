package codegen

import "github.com/chrysante/scatha-sub008/internal/mir"

// LayoutAndElideJumps reorders fn's blocks by greedy chaining (not a
// topological sort) so that each unconditional jump's target follows its
// source where possible, then
// removes the jumps the new layout makes redundant. A block
// whose trailing Jump is elided records the layout successor in
// FallThrough.
func LayoutAndElideJumps(fn *mir.Function) {
	placed := make(map[*mir.BasicBlock]bool, len(fn.Blocks))
	order := make([]*mir.BasicBlock, 0, len(fn.Blocks))

	place := func(b *mir.BasicBlock) {
		placed[b] = true
		order = append(order, b)
	}

	// Greedy chaining: start a chain at the first unplaced block in the
	// original order, then keep following the unconditional jump target
	// while it is still free.
	for _, start := range fn.Blocks {
		if placed[start] {
			continue
		}
		for b := start; b != nil && !placed[b]; {
			place(b)
			b = jumpTarget(b, placed)
		}
	}
	fn.Blocks = order

	for i, b := range order {
		var next *mir.BasicBlock
		if i+1 < len(order) {
			next = order[i+1]
		}
		if len(b.Insts) == 0 {
			continue
		}
		last := b.Insts[len(b.Insts)-1]
		if last.Op == mir.Jump && last.Target == next {
			b.Insts = b.Insts[:len(b.Insts)-1]
			b.FallThrough = next
		}
	}
}

// jumpTarget returns the unplaced block b's trailing unconditional jump
// leads to, or nil when the chain ends (conditional-only exits continue
// through the Jump that follows the CondJump, which is the last
// instruction).
func jumpTarget(b *mir.BasicBlock, placed map[*mir.BasicBlock]bool) *mir.BasicBlock {
	if len(b.Insts) == 0 {
		return nil
	}
	last := b.Insts[len(b.Insts)-1]
	if last.Op != mir.Jump || placed[last.Target] {
		return nil
	}
	return last.Target
}
