package codegen

import "github.com/chrysante/scatha-sub008/internal/mir"

// DestroySSA replaces every phi with copies at the end of its incoming
// predecessors and demotes SSA registers to virtual registers, leaving the
// function in conventional (allocatable) form. Critical edges,
// if any remain after the IR-level pass, are split first so a copy never
// lands on a path it does not belong to.
func DestroySSA(fn *mir.Function) {
	splitCriticalEdges(fn)
	for _, b := range fn.Blocks {
		for _, phi := range b.Phis() {
			for i, pred := range phi.Preds {
				pred.InsertBeforeTerminators(&mir.Instruction{
					Op:       mir.Copy,
					Dest:     phi.Dest,
					Width:    phi.Width,
					Operands: []mir.Operand{phi.Operands[i]},
					Loc:      phi.Loc,
				})
			}
			b.Remove(phi)
		}
	}
	demoteSSARegs(fn)
}

func splitCriticalEdges(fn *mir.Function) {
	// Snapshot: splitting appends blocks while we iterate.
	blocks := append([]*mir.BasicBlock(nil), fn.Blocks...)
	for _, b := range blocks {
		if len(b.Succs) < 2 {
			continue
		}
		for _, succ := range append([]*mir.BasicBlock(nil), b.Succs...) {
			if len(succ.Preds) < 2 {
				continue
			}
			edge := fn.AppendBlock(b.Name + "." + succ.Name)
			b.ReplaceEdge(succ, edge)
			edge.Append(&mir.Instruction{Op: mir.Jump, Target: succ})
			edge.AddEdge(succ)
			for _, phi := range succ.Phis() {
				for i, pred := range phi.Preds {
					if pred == b {
						phi.Preds[i] = edge
					}
				}
			}
		}
	}
}

func demoteSSARegs(fn *mir.Function) {
	for _, r := range fn.Registers() {
		if r.Kind == mir.SSAReg {
			r.Kind = mir.VirtualReg
		}
	}
}
