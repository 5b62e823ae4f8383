package asm

import (
	"encoding/binary"
	"fmt"
)

// Decoded is one disassembled instruction: its text-relative offset, the
// decoded fields, and for jump/call instructions the resolved displacement
// (relative for jumps, absolute for calls).
type Decoded struct {
	Offset int
	Op     Opcode
	Dest   byte
	A, B   byte
	Width  byte
	Aux    byte

	SrcWidth byte
	Imm      uint64
	Mem      Mem

	Disp      int32
	RegOffset byte
	Slot      uint16
	Index     uint16
	ImmSize   uint16
}

func (d Decoded) String() string {
	switch {
	case d.Op == Terminate || d.Op == Ret:
		return d.Op.String()
	case d.Op == Mov:
		return fmt.Sprintf("mov r%d, r%d", d.Dest, d.A)
	case d.Op == MovImm:
		return fmt.Sprintf("movimm r%d, %d", d.Dest, int64(d.Imm))
	case d.Op == Load:
		return fmt.Sprintf("load%d r%d, %s", d.Width*8, d.Dest, d.Mem)
	case d.Op == Store:
		return fmt.Sprintf("store%d %s, r%d", d.Width*8, d.Mem, d.A)
	case d.Op == Lea:
		return fmt.Sprintf("lea r%d, %s", d.Dest, d.Mem)
	case d.Op == LIncSP:
		return fmt.Sprintf("lincsp r%d, %d", d.Dest, d.ImmSize)
	case d.Op == LIncSPR:
		return fmt.Sprintf("lincspr r%d, r%d", d.Dest, d.A)
	case d.Op.IsArith():
		return fmt.Sprintf("%s%d r%d, r%d, r%d", d.Op, d.Width*8, d.Dest, d.A, d.B)
	case d.Op.IsUnary():
		return fmt.Sprintf("%s%d r%d, r%d", d.Op, d.Width*8, d.Dest, d.A)
	case d.Op == Conv:
		return fmt.Sprintf("cvt.%d r%d, r%d, %d -> %d", d.Aux, d.Dest, d.A, d.SrcWidth*8, d.Width*8)
	case d.Op == Cmp:
		return fmt.Sprintf("cmp.%d r%d, r%d, r%d", d.Aux, d.Dest, d.A, d.B)
	case d.Op == Jmp:
		return fmt.Sprintf("jmp %+d", d.Disp)
	case d.Op == Bnz:
		return fmt.Sprintf("bnz r%d, %+d", d.A, d.Disp)
	case d.Op == Call:
		return fmt.Sprintf("call +%d, %d", d.RegOffset, d.Disp)
	case d.Op == CallExt:
		return fmt.Sprintf("callext +%d, %d, %d", d.RegOffset, d.Slot, d.Index)
	}
	return fmt.Sprintf("<bad op %d>", d.Op)
}

// Disassemble decodes a text section back into instructions. It is the
// inverse of Assemble's emission: re-encoding the result reproduces the
// input byte for byte, and its instruction order is
// the index space of the debug-info source map.
func Disassemble(text []byte) ([]Decoded, error) {
	var out []Decoded
	off := 0
	for off < len(text) {
		op := Opcode(text[off])
		if _, known := opcodeNames[op]; !known {
			return nil, fmt.Errorf("asm: unknown opcode %d at offset %d", op, off)
		}
		size := op.Size()
		if off+size > len(text) {
			return nil, fmt.Errorf("asm: truncated %s at offset %d", op, off)
		}
		d := Decoded{Offset: off, Op: op}
		f := text[off+1 : off+size]
		switch {
		case op == Terminate || op == Ret:
		case op == Mov || op == LIncSPR:
			d.Dest, d.A = f[0], f[1]
		case op == MovImm:
			d.Dest = f[0]
			d.Imm = binary.LittleEndian.Uint64(f[1:])
		case op == Load:
			d.Dest = f[0]
			d.Mem = decodeMem(f[1:8])
			d.Width = f[8]
		case op == Store:
			d.Mem = decodeMem(f[0:7])
			d.A = f[7]
			d.Width = f[8]
		case op == Lea:
			d.Dest = f[0]
			d.Mem = decodeMem(f[1:8])
		case op == LIncSP:
			d.Dest = f[0]
			d.ImmSize = binary.LittleEndian.Uint16(f[1:])
		case op.IsArith():
			d.Dest, d.A, d.B, d.Width = f[0], f[1], f[2], f[3]
		case op.IsUnary():
			d.Dest, d.A, d.Width = f[0], f[1], f[2]
		case op == Conv:
			d.Aux, d.Dest, d.A, d.SrcWidth, d.Width = f[0], f[1], f[2], f[3], f[4]
		case op == Cmp:
			d.Aux, d.Dest, d.A, d.B, d.Width = f[0], f[1], f[2], f[3], f[4]
		case op == Jmp:
			d.Disp = int32(binary.LittleEndian.Uint32(f[0:]))
		case op == Bnz:
			d.A = f[0]
			d.Disp = int32(binary.LittleEndian.Uint32(f[1:]))
		case op == Call:
			d.RegOffset = f[0]
			d.Disp = int32(binary.LittleEndian.Uint32(f[1:]))
		case op == CallExt:
			d.RegOffset = f[0]
			d.Slot = binary.LittleEndian.Uint16(f[1:])
			d.Index = binary.LittleEndian.Uint16(f[3:])
		}
		out = append(out, d)
		off += size
	}
	return out, nil
}

// Reassemble re-encodes disassembled instructions, the second leg of the
// binary round trip.
func Reassemble(insts []Decoded) ([]byte, error) {
	var text []byte
	for _, d := range insts {
		i := Instruction{
			Op: d.Op, Dest: d.Dest, A: d.A, B: d.B, Width: d.Width,
			Aux: d.Aux, SrcWidth: d.SrcWidth, Imm: d.Imm, Mem: d.Mem,
			RegOffset: d.RegOffset, Slot: d.Slot, Index: d.Index,
			ImmSize: d.ImmSize, Label: NoLabel,
		}
		start := len(text)
		var err error
		text, _, err = encode(text, nil, i)
		if err != nil {
			return nil, err
		}
		// Jump displacements were decoded, not labeled; patch them back
		// directly where encode left a placeholder.
		switch d.Op {
		case Jmp:
			binary.LittleEndian.PutUint32(text[start+1:], uint32(d.Disp))
		case Bnz:
			binary.LittleEndian.PutUint32(text[start+2:], uint32(d.Disp))
		case Call:
			binary.LittleEndian.PutUint32(text[start+2:], uint32(d.Disp))
		}
	}
	return text, nil
}

func decodeMem(f []byte) Mem {
	return Mem{
		Base:   f[0],
		Index:  f[1],
		Scale:  f[2],
		Offset: int32(binary.LittleEndian.Uint32(f[3:])),
	}
}
