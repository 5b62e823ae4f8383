// Package asm assembles the codegen-produced instruction stream into the
// final binary: block layout, label resolution through recorded jumpsites,
// and emission of the header, data section, text section, and FFI
// declaration list.
package asm

// Opcode enumerates the bytecode ISA. Every MIR instruction maps onto
// exactly one of these.
type Opcode byte

const (
	// Terminate halts the VM; the exit code is register 0 of the
	// outermost frame.
	Terminate Opcode = iota
	// Mov copies a full register: dest, src.
	Mov
	// MovImm loads a 64-bit immediate: dest, imm64.
	MovImm
	// Load reads width bytes at a memory operand: dest, mem, width.
	Load
	// Store writes width bytes of src at a memory operand: mem, src, width.
	Store
	// Lea materializes a memory operand's address: dest, mem.
	Lea
	// LIncSP bumps the stack pointer by a u16 byte count, yielding the old
	// pointer: dest, size.
	LIncSP
	// LIncSPR is LIncSP with the byte count in a register: dest, src.
	LIncSPR

	// Binary arithmetic, all encoded dest, lhs, rhs, width.
	Add
	Sub
	Mul
	SDiv
	UDiv
	SRem
	URem
	FAdd
	FSub
	FMul
	FDiv
	Shl
	LShr
	AShr
	And
	Or
	Xor

	// Unary arithmetic, encoded dest, src, width.
	Neg
	BNot
	LNot

	// Conv changes width/representation: aux (conversion kind), dest, src,
	// from-width, to-width.
	Conv
	// Cmp computes a 0/1 result: aux (mode<<4 | op), dest, lhs, rhs, width.
	Cmp

	// Jmp transfers control by a signed 32-bit offset relative to the
	// instruction's own address.
	Jmp
	// Bnz is Jmp taken only when the register operand is nonzero: reg, rel32.
	Bnz
	// Call pushes a frame whose register window starts regoffset registers
	// into the caller's, then jumps to an absolute text offset: regoffset,
	// dest32.
	Call
	// Ret pops the frame; in the outermost frame it halts like Terminate.
	Ret
	// CallExt transfers to host function (slot, index) with the argument
	// window at regoffset: regoffset, slot16, index16.
	CallExt
)

var opcodeNames = map[Opcode]string{
	Terminate: "terminate", Mov: "mov", MovImm: "movimm", Load: "load",
	Store: "store", Lea: "lea", LIncSP: "lincsp", LIncSPR: "lincspr",
	Add: "add", Sub: "sub", Mul: "mul", SDiv: "sdiv", UDiv: "udiv",
	SRem: "srem", URem: "urem", FAdd: "fadd", FSub: "fsub", FMul: "fmul",
	FDiv: "fdiv", Shl: "shl", LShr: "lshr", AShr: "ashr", And: "and",
	Or: "or", Xor: "xor", Neg: "neg", BNot: "bnot", LNot: "lnot",
	Conv: "cvt", Cmp: "cmp", Jmp: "jmp", Bnz: "bnz", Call: "call",
	Ret: "ret", CallExt: "callext",
}

func (o Opcode) String() string { return opcodeNames[o] }

// Size is the encoded byte length of an instruction with this opcode; the
// ISA has no variable-length encodings, which keeps layout a single pass.
func (o Opcode) Size() int {
	switch o {
	case Terminate, Ret:
		return 1
	case Mov, LIncSPR:
		return 3
	case MovImm:
		return 10
	case Load, Store:
		return 10
	case Lea:
		return 9
	case LIncSP:
		return 4
	case Neg, BNot, LNot:
		return 4
	case Conv:
		return 6
	case Cmp:
		return 6
	case Jmp:
		return 5
	case Bnz, Call, CallExt:
		return 6
	default: // binary arithmetic
		return 5
	}
}

// IsArith reports whether o is one of the binary arithmetic opcodes.
func (o Opcode) IsArith() bool { return o >= Add && o <= Xor }

// IsUnary reports whether o is one of the unary arithmetic opcodes.
func (o Opcode) IsUnary() bool { return o >= Neg && o <= LNot }
