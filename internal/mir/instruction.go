package mir

import (
	"fmt"
	"strings"

	"github.com/chrysante/scatha-sub008/internal/ir"
)

// Opcode enumerates MIR instructions. Each maps onto exactly one target
// opcode family; sub-operations (which arithmetic op, which comparison)
// travel in the instruction's auxiliary field.
type Opcode int

const (
	// Copy moves operand 0 into Dest.
	Copy Opcode = iota
	// Load reads Width bytes at the MemoryAddress operand into Dest.
	Load
	// Store writes operand 1 (Width bytes) to the MemoryAddress operand 0.
	Store
	// LEA materializes the MemoryAddress operand into Dest.
	LEA
	// AllocStack bumps the stack pointer by the operand (a Constant for
	// static allocas, a Register byte count for dynamic ones) and yields
	// the old stack pointer in Dest.
	AllocStack
	// Arith is a binary arithmetic/bitwise operation; Aux is an ir.ArithOp.
	Arith
	// UnaryArith is neg/bnot/lnot; Aux is an ir.UnaryOp.
	UnaryArith
	// Convert is a width/representation change; Aux is an ir.ConvOp,
	// SrcWidth the operand's byte width, Width the result's.
	Convert
	// Compare computes a 0/1 result; Aux packs (ir.CompareMode << 8 |
	// ir.CompareOp).
	Compare
	// Jump transfers control to Target unconditionally.
	Jump
	// CondJump transfers control to Target when operand 0 is nonzero and
	// falls through otherwise; codegen always follows it with a Jump unless
	// jump elision removed it.
	CondJump
	// Call invokes CalleeName with its arguments already placed in the
	// callee register window; RegOffset is resolved by the assembler.
	Call
	// CallExt invokes foreign function (ExtSlot, ExtIndex) the same way.
	CallExt
	// Ret returns to the caller; the return value, if any, sits in
	// hardware register 0.
	Ret
	// Phi is the SSA merge; it only exists between lowering and SSA
	// destruction. Preds parallels Operands.
	Phi
)

var opcodeNames = map[Opcode]string{
	Copy: "cpy", Load: "load", Store: "store", LEA: "lea",
	AllocStack: "lincsp", Arith: "arith", UnaryArith: "unary",
	Convert: "cvt", Compare: "cmp", Jump: "jmp", CondJump: "bnz",
	Call: "call", CallExt: "callext", Ret: "ret", Phi: "phi",
}

func (o Opcode) String() string { return opcodeNames[o] }

// Instruction is one MIR operation: opcode, optional destination register,
// ordered operands, byte width, and an auxiliary sub-opcode.
type Instruction struct {
	Op       Opcode
	Dest     *Register
	Operands []Operand
	Width    int
	SrcWidth int
	Aux      int

	Target *BasicBlock // Jump/CondJump

	CalleeName        string // Call
	ExtSlot, ExtIndex int    // CallExt
	NumArgs           int    // Call/CallExt: callee window slots occupied

	Preds []*BasicBlock // Phi: incoming block per operand

	// Index is the instruction's point in the function numbering, assigned
	// by Function.Number.
	Index int

	// Loc is the source position inherited from the IR instruction this
	// was selected from, carried through to the debug-info map.
	Loc ir.SourceLoc
}

// CmpAux packs a comparison's mode and operator into an Aux value.
func CmpAux(mode ir.CompareMode, op ir.CompareOp) int { return int(mode)<<8 | int(op) }

// CmpMode unpacks the comparison mode from an Aux value.
func CmpMode(aux int) ir.CompareMode { return ir.CompareMode(aux >> 8) }

// CmpOp unpacks the comparison operator from an Aux value.
func CmpOp(aux int) ir.CompareOp { return ir.CompareOp(aux & 0xff) }

// UsedRegs returns the registers this instruction reads, including address
// components; phi uses are reported here but are live at predecessor ends,
// which liveness accounts for separately.
func (i *Instruction) UsedRegs() []*Register {
	var out []*Register
	for _, op := range i.Operands {
		switch v := op.(type) {
		case *Register:
			out = append(out, v)
		case MemoryAddress:
			out = append(out, v.Base)
			if v.Index != nil {
				out = append(out, v.Index)
			}
		}
	}
	return out
}

func (i *Instruction) String() string {
	var sb strings.Builder
	if i.Dest != nil {
		fmt.Fprintf(&sb, "%s = ", i.Dest)
	}
	switch i.Op {
	case Arith:
		sb.WriteString(ir.ArithOp(i.Aux).String())
	case UnaryArith:
		sb.WriteString(ir.UnaryOp(i.Aux).String())
	case Convert:
		sb.WriteString(ir.ConvOp(i.Aux).String())
	case Compare:
		fmt.Fprintf(&sb, "%s %s", CmpMode(i.Aux), CmpOp(i.Aux))
	default:
		sb.WriteString(i.Op.String())
	}
	if i.Width != 0 {
		fmt.Fprintf(&sb, "%d", i.Width*8)
	}
	for n, op := range i.Operands {
		if n == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(op.String())
		if i.Op == Phi && n < len(i.Preds) {
			fmt.Fprintf(&sb, " [%s]", i.Preds[n].Name)
		}
	}
	switch i.Op {
	case Jump, CondJump:
		fmt.Fprintf(&sb, " -> %s", i.Target.Name)
	case Call:
		fmt.Fprintf(&sb, " @%s", i.CalleeName)
	case CallExt:
		fmt.Fprintf(&sb, " ext(%d,%d)", i.ExtSlot, i.ExtIndex)
	}
	return sb.String()
}

// IsTerminator reports whether the instruction ends its block's layout
// (Jump and Ret do; CondJump falls through, so it does not by itself).
func (i *Instruction) IsTerminator() bool {
	return i.Op == Jump || i.Op == Ret
}
