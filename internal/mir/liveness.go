package mir

// Liveness is the per-block live-in/live-out register sets of a MIR
// function, the machine-level counterpart of internal/analysis's IR
// liveness; it feeds interference-graph construction and copy coalescing.
type Liveness struct {
	LiveIn  map[*BasicBlock]map[*Register]bool
	LiveOut map[*BasicBlock]map[*Register]bool
}

// ComputeLiveness runs the backward fixed-point dataflow over fn. Phi
// operands count as uses at the end of their incoming predecessor; phi
// results are defined at the top of their block.
func ComputeLiveness(fn *Function) *Liveness {
	liveIn := make(map[*BasicBlock]map[*Register]bool)
	liveOut := make(map[*BasicBlock]map[*Register]bool)
	for _, b := range fn.Blocks {
		liveIn[b] = map[*Register]bool{}
		liveOut[b] = map[*Register]bool{}
	}
	changed := true
	for changed {
		changed = false
		for n := len(fn.Blocks) - 1; n >= 0; n-- {
			b := fn.Blocks[n]
			out := map[*Register]bool{}
			for _, s := range successorsWithFallThrough(b) {
				for r := range liveIn[s] {
					out[r] = true
				}
				for _, phi := range s.Phis() {
					for i, pred := range phi.Preds {
						if pred != b {
							continue
						}
						if r, ok := phi.Operands[i].(*Register); ok && tracked(r) {
							out[r] = true
						}
					}
				}
			}
			in := map[*Register]bool{}
			for r := range out {
				in[r] = true
			}
			for n := len(b.Insts) - 1; n >= 0; n-- {
				inst := b.Insts[n]
				if inst.Dest != nil {
					delete(in, inst.Dest)
				}
				if inst.Op == Phi {
					continue
				}
				for _, r := range inst.UsedRegs() {
					if tracked(r) {
						in[r] = true
					}
				}
			}
			if !sameRegSet(in, liveIn[b]) || !sameRegSet(out, liveOut[b]) {
				liveIn[b] = in
				liveOut[b] = out
				changed = true
			}
		}
	}
	return &Liveness{LiveIn: liveIn, LiveOut: liveOut}
}

func successorsWithFallThrough(b *BasicBlock) []*BasicBlock {
	if b.FallThrough == nil {
		return b.Succs
	}
	out := make([]*BasicBlock, 0, len(b.Succs)+1)
	out = append(out, b.Succs...)
	for _, s := range out {
		if s == b.FallThrough {
			return out
		}
	}
	return append(out, b.FallThrough)
}

// tracked reports whether r participates in allocation; callee-window
// registers are resolved positionally by the assembler and never compete
// for colors.
func tracked(r *Register) bool { return r.Kind != CalleeReg }

func sameRegSet(a, b map[*Register]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for r := range a {
		if !b[r] {
			return false
		}
	}
	return true
}

// ComputeIntervals numbers fn's instructions, then records one live interval
// per (register, block) stretch: from the register's last definition in the
// block (or the block top if live-in) to its last use (or the block end if
// live-out). The intervals land on each Register's Intervals list.
func ComputeIntervals(fn *Function, live *Liveness) {
	fn.Number()
	for _, r := range fn.Registers() {
		r.Intervals = r.Intervals[:0]
	}
	for _, b := range fn.Blocks {
		// lastUse/defPoint per register, walked backward.
		endOf := map[*Register]int{}
		for r := range live.LiveOut[b] {
			endOf[r] = b.end
		}
		for n := len(b.Insts) - 1; n >= 0; n-- {
			inst := b.Insts[n]
			if d := inst.Dest; d != nil && tracked(d) {
				if end, ok := endOf[d]; ok {
					d.Intervals = append(d.Intervals, Interval{Begin: inst.Index, End: end})
					delete(endOf, d)
				} else {
					// Dead definition: live for just its own point.
					d.Intervals = append(d.Intervals, Interval{Begin: inst.Index, End: inst.Index + 1})
				}
			}
			if inst.Op == Phi {
				continue
			}
			for _, r := range inst.UsedRegs() {
				if !tracked(r) {
					continue
				}
				if _, ok := endOf[r]; !ok {
					endOf[r] = inst.Index + 1
				}
			}
		}
		for r, end := range endOf {
			// Live-through or live-in: starts at block top.
			r.Intervals = append(r.Intervals, Interval{Begin: b.begin, End: end})
		}
	}
}
