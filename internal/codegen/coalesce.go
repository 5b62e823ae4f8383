package codegen

import "github.com/chrysante/scatha-sub008/internal/mir"

// Coalesce sweeps copy instructions after coloring: a copy d <- s between
// two registers with disjoint live ranges, neither pinned to the calling
// convention, is merged by renaming d to s throughout and deleting the copy
//. Pre-colored overlaps prevent the merge: s's color must be
// legal for everything d interferes with.
func Coalesce(fn *mir.Function, g *mir.InterferenceGraph) int {
	merged := 0
	for _, b := range fn.Blocks {
		for n := 0; n < len(b.Insts); n++ {
			inst := b.Insts[n]
			if inst.Op != mir.Copy {
				continue
			}
			s, ok := inst.Operands[0].(*mir.Register)
			if !ok {
				continue
			}
			d := inst.Dest
			if d == nil || d == s || d.Fixed || s.Fixed ||
				d.Kind == mir.CalleeReg || s.Kind == mir.CalleeReg {
				continue
			}
			if g.Interferes(d, s) {
				continue
			}
			if !colorLegalFor(g, d, s.Color) {
				continue
			}
			renameRegister(fn, d, s)
			for _, nb := range g.Neighbors(d) {
				g.AddEdge(s, nb)
			}
			b.Insts = append(b.Insts[:n], b.Insts[n+1:]...)
			n--
			merged++
		}
	}
	return merged
}

// colorLegalFor reports whether color is unused by every neighbor of d.
func colorLegalFor(g *mir.InterferenceGraph, d *mir.Register, color int) bool {
	for _, nb := range g.Neighbors(d) {
		if nb.Color == color {
			return false
		}
	}
	return true
}

func renameRegister(fn *mir.Function, old, new_ *mir.Register) {
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			if inst.Dest == old {
				inst.Dest = new_
			}
			replaceUses(inst, old, new_)
		}
	}
}
