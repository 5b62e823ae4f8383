// Package mir is the machine-level intermediate representation: explicit
// registers, memory-address operands, and instructions in 1-to-1 relation to
// target opcodes. Codegen lowers internal/ir
// into this form, destroys SSA, allocates registers, and hands the result to
// the assembler.
package mir

import "fmt"

// RegKind distinguishes the four register variants a MIR Register moves
// through on its way to a hardware assignment.
type RegKind int

const (
	// SSAReg is a single-assignment register produced by IR lowering.
	SSAReg RegKind = iota
	// VirtualReg is an SSA register after phi destruction; it may have
	// several definitions but no hardware number yet.
	VirtualReg
	// HardwareReg is a physical register of the VM's register file.
	HardwareReg
	// CalleeReg addresses slot i of a callee's register window; the
	// assembler resolves it to the caller's frame size plus i.
	CalleeReg
)

// Register is a MIR value location. Num is unique per function within a
// kind. Color is the hardware register assigned by allocation (-1 before).
// Fixed registers (parameters, calling-convention slots) are pre-colored
// and may not be moved by coalescing.
type Register struct {
	Kind  RegKind
	Num   int
	Color int
	Fixed bool

	// Intervals is the register's live-interval list, filled in by
	// ComputeIntervals over the function's instruction numbering.
	Intervals []Interval
}

func (r *Register) String() string {
	switch r.Kind {
	case SSAReg:
		return fmt.Sprintf("%%s%d", r.Num)
	case VirtualReg:
		return fmt.Sprintf("%%v%d", r.Num)
	case HardwareReg:
		return fmt.Sprintf("%%r%d", r.Num)
	default:
		return fmt.Sprintf("%%cr%d", r.Num)
	}
}

func (r *Register) operand() {}

// LiveAcross reports whether any of r's intervals covers point p.
func (r *Register) LiveAcross(p int) bool {
	for _, iv := range r.Intervals {
		if iv.Begin <= p && p < iv.End {
			return true
		}
	}
	return false
}

// Interval is a half-open range [Begin, End) of instruction numbers where
// the register carries a needed value.
type Interval struct {
	Begin, End int
}

// Operand is a MIR instruction operand: a Register, a Constant, a
// MemoryAddress, or a GlobalRef.
type Operand interface {
	operand()
	String() string
}

// Constant is an immediate operand of the given byte width; floats are
// stored by bit pattern.
type Constant struct {
	Value uint64
	Width int
}

func (c Constant) operand()       {}
func (c Constant) String() string { return fmt.Sprintf("%d", int64(c.Value)) }

// GlobalRef names a module-scope storage location; the assembler resolves
// it to the global's data-section offset.
type GlobalRef struct {
	Name string
}

func (g GlobalRef) operand()       {}
func (g GlobalRef) String() string { return "@" + g.Name }

// MemoryAddress is the target's addressing form base + index*scale + offset.
// Index is nil when the address has no dynamic component.
type MemoryAddress struct {
	Base   *Register
	Index  *Register
	Scale  int
	Offset int
}

func (m MemoryAddress) operand() {}
func (m MemoryAddress) String() string {
	s := "[" + m.Base.String()
	if m.Index != nil {
		s += fmt.Sprintf(" + %s * %d", m.Index, m.Scale)
	}
	if m.Offset != 0 {
		s += fmt.Sprintf(" + %d", m.Offset)
	}
	return s + "]"
}

// Module is the MIR of a whole program.
type Module struct {
	Functions []*Function
}

// FunctionNamed looks up a function by name, or nil.
func (m *Module) FunctionNamed(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Function is a CFG of MIR blocks plus the register pools lowering and
// allocation draw from.
type Function struct {
	Name   string
	Params []*Register
	Blocks []*BasicBlock

	// NumColors is the number of hardware registers in use after
	// allocation; callee-register operands resolve to NumColors+i.
	NumColors int

	ssaCounter     int
	virtCounter    int
	hardwareRegs   map[int]*Register
	calleeRegs     map[int]*Register
	blockCounter   int
	numberingValid bool
}

func NewFunction(name string) *Function {
	return &Function{
		Name:         name,
		hardwareRegs: make(map[int]*Register),
		calleeRegs:   make(map[int]*Register),
	}
}

// NewSSAReg hands out a fresh SSA register.
func (f *Function) NewSSAReg() *Register {
	r := &Register{Kind: SSAReg, Num: f.ssaCounter, Color: -1}
	f.ssaCounter++
	return r
}

// NewVirtualReg hands out a fresh virtual register (used by spill rewriting,
// which runs after SSA destruction).
func (f *Function) NewVirtualReg() *Register {
	r := &Register{Kind: VirtualReg, Num: f.virtCounter, Color: -1}
	f.virtCounter++
	return r
}

// HardwareReg returns the canonical pre-colored register for physical slot n.
func (f *Function) HardwareReg(n int) *Register {
	if r, ok := f.hardwareRegs[n]; ok {
		return r
	}
	r := &Register{Kind: HardwareReg, Num: n, Color: n, Fixed: true}
	f.hardwareRegs[n] = r
	return r
}

// CalleeReg returns the canonical register for slot n of a callee's window.
func (f *Function) CalleeReg(n int) *Register {
	if r, ok := f.calleeRegs[n]; ok {
		return r
	}
	r := &Register{Kind: CalleeReg, Num: n, Color: -1, Fixed: true}
	f.calleeRegs[n] = r
	return r
}

// AppendBlock appends a fresh block to the function's layout.
func (f *Function) AppendBlock(name string) *BasicBlock {
	b := &BasicBlock{Name: name, Index: f.blockCounter, fn: f}
	f.blockCounter++
	f.Blocks = append(f.Blocks, b)
	f.numberingValid = false
	return b
}

// Entry returns the function's entry block.
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Number assigns a dense, layout-order number to every instruction (two
// apart, leaving odd points for copies inserted between instructions) and
// returns the total point count. Liveness and interval computation key off
// this numbering.
func (f *Function) Number() int {
	n := 0
	for _, b := range f.Blocks {
		b.begin = n
		for _, i := range b.Insts {
			i.Index = n
			n += 2
		}
		b.end = n
	}
	f.numberingValid = true
	return n
}

// Registers returns every distinct non-callee register appearing in the
// function (defs and uses), in first-appearance order — the node set of the
// interference graph.
func (f *Function) Registers() []*Register {
	var out []*Register
	seen := make(map[*Register]bool)
	add := func(r *Register) {
		if r != nil && r.Kind != CalleeReg && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	for _, p := range f.Params {
		add(p)
	}
	for _, b := range f.Blocks {
		for _, i := range b.Insts {
			add(i.Dest)
			for _, op := range i.Operands {
				switch v := op.(type) {
				case *Register:
					add(v)
				case MemoryAddress:
					add(v.Base)
					add(v.Index)
				}
			}
		}
	}
	return out
}
