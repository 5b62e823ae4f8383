package mir

import "testing"

// buildDiamond builds
//
//	entry: a = 1; b = 2; bnz a -> left; jmp right
//	left:  c = a+b; jmp join
//	right: c2 = a-b; jmp join
//	join:  r = phi(c, c2); ret
func buildDiamond() (*Function, []*Register) {
	fn := NewFunction("f")
	entry := fn.AppendBlock("entry")
	left := fn.AppendBlock("left")
	right := fn.AppendBlock("right")
	join := fn.AppendBlock("join")
	entry.AddEdge(left)
	entry.AddEdge(right)
	left.AddEdge(join)
	right.AddEdge(join)

	a := fn.NewSSAReg()
	b := fn.NewSSAReg()
	c := fn.NewSSAReg()
	c2 := fn.NewSSAReg()
	r := fn.NewSSAReg()

	entry.Append(&Instruction{Op: Copy, Dest: a, Width: 8, Operands: []Operand{Constant{Value: 1, Width: 8}}})
	entry.Append(&Instruction{Op: Copy, Dest: b, Width: 8, Operands: []Operand{Constant{Value: 2, Width: 8}}})
	entry.Append(&Instruction{Op: CondJump, Operands: []Operand{a}, Target: left})
	entry.Append(&Instruction{Op: Jump, Target: right})
	left.Append(&Instruction{Op: Arith, Aux: 0, Dest: c, Width: 8, Operands: []Operand{a, b}})
	left.Append(&Instruction{Op: Jump, Target: join})
	right.Append(&Instruction{Op: Arith, Aux: 1, Dest: c2, Width: 8, Operands: []Operand{a, b}})
	right.Append(&Instruction{Op: Jump, Target: join})
	join.Append(&Instruction{Op: Phi, Dest: r, Width: 8,
		Operands: []Operand{c, c2}, Preds: []*BasicBlock{left, right}})
	join.Append(&Instruction{Op: Copy, Dest: fn.HardwareReg(0), Width: 8, Operands: []Operand{r}})
	join.Append(&Instruction{Op: Ret})

	return fn, []*Register{a, b, c, c2, r}
}

func TestLivenessAcrossDiamond(t *testing.T) {
	fn, regs := buildDiamond()
	a, b := regs[0], regs[1]
	live := ComputeLiveness(fn)

	entry := fn.Blocks[0]
	left := fn.Blocks[1]
	right := fn.Blocks[2]
	join := fn.Blocks[3]

	if !live.LiveOut[entry][a] || !live.LiveOut[entry][b] {
		t.Fatal("a and b must be live out of entry")
	}
	if !live.LiveIn[left][a] || !live.LiveIn[right][b] {
		t.Fatal("a and b must be live into both arms")
	}
	if live.LiveIn[join][a] || live.LiveIn[join][b] {
		t.Fatal("a and b die in the arms; they must not be live into join")
	}
	// Phi operands are live at the end of their predecessor only.
	c, c2 := regs[2], regs[3]
	if !live.LiveOut[left][c] || live.LiveOut[left][c2] {
		t.Fatal("phi edge values must be live out of exactly their own predecessor")
	}
}

func TestIntervalsCoverDefToLastUse(t *testing.T) {
	fn, regs := buildDiamond()
	a := regs[0]
	live := ComputeLiveness(fn)
	ComputeIntervals(fn, live)

	if len(a.Intervals) == 0 {
		t.Fatal("register a has no intervals")
	}
	// a is defined in entry and used in both arms: it must be live across
	// entry's terminator point.
	entry := fn.Blocks[0]
	condPoint := entry.Insts[2].Index
	if !a.LiveAcross(condPoint) {
		t.Fatalf("a must be live across the conditional jump at %d", condPoint)
	}
}

func TestInterferenceMatchesLiveRanges(t *testing.T) {
	fn, regs := buildDiamond()
	a, b, c, c2 := regs[0], regs[1], regs[2], regs[3]
	live := ComputeLiveness(fn)
	ComputeIntervals(fn, live)
	g := BuildInterference(fn, live)

	if !g.Interferes(a, b) {
		t.Fatal("a and b are simultaneously live; they must interfere")
	}
	if g.Interferes(c, c2) {
		t.Fatal("c and c2 live on disjoint paths; they must not interfere")
	}
	// b is defined while a is live (a used later), so the edge is mutual.
	if !g.Interferes(b, a) {
		t.Fatal("interference edges must be undirected")
	}
}

func TestSimplicialOrderOnChordalGraph(t *testing.T) {
	fn := NewFunction("g")
	g := &InterferenceGraph{adj: map[*Register]map[*Register]bool{}}
	// A triangle plus a pendant vertex is chordal.
	x, y, z, w := fn.NewVirtualReg(), fn.NewVirtualReg(), fn.NewVirtualReg(), fn.NewVirtualReg()
	g.AddEdge(x, y)
	g.AddEdge(y, z)
	g.AddEdge(x, z)
	g.AddEdge(z, w)
	order, chordal := g.SimplicialOrder()
	if !chordal {
		t.Fatal("triangle plus pendant must be chordal")
	}
	if len(order) != 4 {
		t.Fatalf("order has %d nodes, want 4", len(order))
	}
}

func TestSimplicialOrderDetectsHole(t *testing.T) {
	fn := NewFunction("g")
	g := &InterferenceGraph{adj: map[*Register]map[*Register]bool{}}
	// A chordless 4-cycle is the smallest non-chordal graph.
	regs := []*Register{fn.NewVirtualReg(), fn.NewVirtualReg(), fn.NewVirtualReg(), fn.NewVirtualReg()}
	for i := range regs {
		g.AddEdge(regs[i], regs[(i+1)%4])
	}
	if _, chordal := g.SimplicialOrder(); chordal {
		t.Fatal("a chordless 4-cycle must not be reported chordal")
	}
}

func TestNumberingAndBlockRanges(t *testing.T) {
	fn, _ := buildDiamond()
	total := fn.Number()
	if total == 0 {
		t.Fatal("numbering assigned no points")
	}
	prev := -1
	for _, b := range fn.Blocks {
		if b.Begin() < prev {
			t.Fatal("block ranges must be monotonic in layout order")
		}
		for _, i := range b.Insts {
			if i.Index < b.Begin() || i.Index >= b.End() {
				t.Fatalf("instruction %s numbered outside its block range", i)
			}
		}
		prev = b.End()
	}
}
