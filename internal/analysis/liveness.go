package analysis

import "github.com/chrysante/scatha-sub008/internal/ir"

// Liveness is the per-block live-in/live-out value sets of a function,
// computed by the standard backward fixed-point dataflow equations. Blocks
// are visited in reverse layout order (loop bodies need more than one pass
// to reach a fixed point, which the outer `for changed` loop provides
// regardless of visitation order).
type Liveness struct {
	LiveIn  map[*ir.BasicBlock]map[ir.Value]bool
	LiveOut map[*ir.BasicBlock]map[ir.Value]bool
}

// Compute runs liveness analysis over fn.
func Compute(fn *ir.Function) *Liveness {
	liveIn := make(map[*ir.BasicBlock]map[ir.Value]bool)
	liveOut := make(map[*ir.BasicBlock]map[ir.Value]bool)
	for _, b := range fn.Blocks {
		liveIn[b] = map[ir.Value]bool{}
		liveOut[b] = map[ir.Value]bool{}
	}
	changed := true
	for changed {
		changed = false
		for i := len(fn.Blocks) - 1; i >= 0; i-- {
			b := fn.Blocks[i]
			out := map[ir.Value]bool{}
			for _, s := range b.Successors {
				for v := range liveIn[s] {
					out[v] = true
				}
				for _, phi := range s.Phis() {
					if v := phi.ValueFor(b); v != nil && isLocalValue(v) {
						out[v] = true
					}
				}
			}
			in := map[ir.Value]bool{}
			for v := range out {
				in[v] = true
			}
			insts := b.Instructions()
			for i := len(insts) - 1; i >= 0; i-- {
				inst := insts[i]
				if _, isPhi := inst.(*ir.PhiInst); isPhi {
					delete(in, ir.Value(inst))
					continue
				}
				delete(in, ir.Value(inst))
				for _, op := range inst.Operands() {
					if op == nil {
						continue
					}
					if isLocalValue(op) {
						in[op] = true
					}
				}
			}
			for _, phi := range b.Phis() {
				delete(in, ir.Value(phi))
			}
			if !sameSet(in, liveIn[b]) || !sameSet(out, liveOut[b]) {
				liveIn[b] = in
				liveOut[b] = out
				changed = true
			}
		}
	}
	return &Liveness{LiveIn: liveIn, LiveOut: liveOut}
}

// isLocalValue reports whether v is a kind of Value liveness tracks
// (Parameters and Instruction results; BasicBlock/Global/Constant are not
// register-allocatable and never appear in a live set).
func isLocalValue(v ir.Value) bool {
	switch v.(type) {
	case *ir.BasicBlock, *ir.Global, *ir.Constant:
		return false
	default:
		return true
	}
}

func sameSet(a, b map[ir.Value]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if !b[v] {
			return false
		}
	}
	return true
}

// LiveAt returns the set of values live immediately before inst within its
// block, derived from the block's live-out set by walking backward.
func (l *Liveness) LiveAt(b *ir.BasicBlock, inst ir.Instruction) map[ir.Value]bool {
	live := map[ir.Value]bool{}
	for v := range l.LiveOut[b] {
		live[v] = true
	}
	insts := b.Instructions()
	idx := len(insts)
	for i, x := range insts {
		if x == inst {
			idx = i
			break
		}
	}
	for i := len(insts) - 1; i >= idx; i-- {
		cur := insts[i]
		delete(live, ir.Value(cur))
		if _, isPhi := cur.(*ir.PhiInst); isPhi {
			continue
		}
		for _, op := range cur.Operands() {
			if op != nil && isLocalValue(op) {
				live[op] = true
			}
		}
	}
	return live
}
