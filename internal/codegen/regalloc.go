package codegen

import (
	"fmt"

	"github.com/chrysante/scatha-sub008/internal/mir"
)

// MaxHardwareRegs is the size of the VM's per-frame register window. The
// callee window of outgoing calls sits above the colors in use, so the two
// never collide.
const MaxHardwareRegs = 256

// maxSpillRounds bounds the spill-and-retry loop; each round strictly
// removes one high-degree node from contention, so hitting the bound means
// the function is beyond what the register file can ever hold.
const maxSpillRounds = 64

// Allocate colors fn's virtual registers over the interference graph built
// from live intervals: greedy along a lexicographic simplicial
// ordering when the graph is chordal, plain greedy with spilling otherwise.
// It returns the final graph and liveness for the coalescer.
func Allocate(fn *mir.Function) (*mir.InterferenceGraph, *mir.Liveness, error) {
	for round := 0; round < maxSpillRounds; round++ {
		live := mir.ComputeLiveness(fn)
		mir.ComputeIntervals(fn, live)
		g := mir.BuildInterference(fn, live)

		order, chordal := g.SimplicialOrder()
		if !chordal {
			order = g.Nodes
		}

		spilled := false
		maxColor := -1
		for _, r := range order {
			if r.Fixed {
				if r.Color > maxColor {
					maxColor = r.Color
				}
				continue
			}
			r.Color = -1
		}
		for _, r := range order {
			if r.Fixed {
				continue
			}
			taken := make(map[int]bool)
			for _, n := range g.Neighbors(r) {
				if n.Color >= 0 {
					taken[n.Color] = true
				}
			}
			c := 0
			for taken[c] {
				c++
			}
			if c >= MaxHardwareRegs {
				spill(fn, pickSpillVictim(g))
				spilled = true
				break
			}
			r.Color = c
			if c > maxColor {
				maxColor = c
			}
		}
		if spilled {
			continue
		}
		fn.NumColors = maxColor + 1
		return g, live, nil
	}
	return nil, nil, fmt.Errorf("codegen: register allocation did not converge for @%s", fn.Name)
}

// pickSpillVictim selects the unfixed register with the highest degree, the
// node whose removal relieves the most pressure.
func pickSpillVictim(g *mir.InterferenceGraph) *mir.Register {
	var victim *mir.Register
	for _, r := range g.Nodes {
		if r.Fixed {
			continue
		}
		if victim == nil || g.Degree(r) > g.Degree(victim) {
			victim = r
		}
	}
	return victim
}

// spill rewrites every definition of victim into a store to a fresh stack
// slot and every use into a reload through a short-lived temporary, so the
// next coloring round sees only tiny intervals in its place.
func spill(fn *mir.Function, victim *mir.Register) {
	slot := fn.NewVirtualReg()
	entry := fn.Entry()
	alloc := &mir.Instruction{Op: mir.AllocStack, Dest: slot, Width: 8,
		Operands: []mir.Operand{mir.Constant{Value: 8, Width: 2}}}
	entry.Insts = append([]*mir.Instruction{alloc}, entry.Insts...)

	for _, b := range fn.Blocks {
		for n := 0; n < len(b.Insts); n++ {
			inst := b.Insts[n]
			if inst == alloc {
				continue
			}
			if usesRegister(inst, victim) {
				tmp := fn.NewVirtualReg()
				reload := &mir.Instruction{Op: mir.Load, Dest: tmp, Width: 8,
					Operands: []mir.Operand{mir.MemoryAddress{Base: slot}}}
				b.Insts = append(b.Insts[:n], append([]*mir.Instruction{reload}, b.Insts[n:]...)...)
				n++
				replaceUses(inst, victim, tmp)
			}
			if inst.Dest == victim {
				tmp := fn.NewVirtualReg()
				inst.Dest = tmp
				save := &mir.Instruction{Op: mir.Store, Width: 8,
					Operands: []mir.Operand{mir.MemoryAddress{Base: slot}, tmp}}
				b.Insts = append(b.Insts[:n+1], append([]*mir.Instruction{save}, b.Insts[n+1:]...)...)
				n++
			}
		}
	}
}

func usesRegister(inst *mir.Instruction, r *mir.Register) bool {
	for _, u := range inst.UsedRegs() {
		if u == r {
			return true
		}
	}
	return false
}

func replaceUses(inst *mir.Instruction, old, new_ *mir.Register) {
	for n, op := range inst.Operands {
		switch v := op.(type) {
		case *mir.Register:
			if v == old {
				inst.Operands[n] = new_
			}
		case mir.MemoryAddress:
			if v.Base == old {
				v.Base = new_
			}
			if v.Index == old {
				v.Index = new_
			}
			inst.Operands[n] = v
		}
	}
}
