package asm

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/chrysante/scatha-sub008/internal/ffi"
	"github.com/chrysante/scatha-sub008/internal/types"
)

// buildLoopProgram assembles a two-block function with a backward jump so
// that both forward and backward displacements get patched.
func buildLoopProgram() *Program {
	p := &Program{Main: "main"}
	l0, l1, l2 := p.NewLabel(), p.NewLabel(), p.NewLabel()
	f := &Function{Name: "main", Blocks: []*Block{
		{Label: l0, Name: "entry", Insts: []Instruction{
			{Op: MovImm, Dest: 0, Imm: 10, Label: NoLabel},
			{Op: Jmp, Label: l1},
		}},
		{Label: l1, Name: "loop", Insts: []Instruction{
			{Op: MovImm, Dest: 1, Imm: 1, Label: NoLabel},
			{Op: Sub, Dest: 0, A: 0, B: 1, Width: 8, Label: NoLabel},
			{Op: Bnz, A: 0, Label: l1},
			{Op: Jmp, Label: l2},
		}},
		{Label: l2, Name: "exit", Insts: []Instruction{
			{Op: Ret, Label: NoLabel},
		}},
	}}
	p.AddFunction(f)
	return p
}

func TestAssembleHeaderLayout(t *testing.T) {
	p := buildLoopProgram()
	p.Data = []byte{1, 2, 3, 4}
	bin, err := Assemble(p, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := binary.LittleEndian.Uint16(bin.Bytes[0:]); got != Magic {
		t.Fatalf("magic = %#x, want %#x", got, Magic)
	}
	if got := binary.LittleEndian.Uint64(bin.Bytes[16:]); got != uint64(len(bin.Bytes)) {
		t.Fatalf("total size field = %d, want %d", got, len(bin.Bytes))
	}
	if got := int(binary.LittleEndian.Uint64(bin.Bytes[32:])); got != HeaderSize {
		t.Fatalf("data offset = %d, want %d", got, HeaderSize)
	}
	if got := int(binary.LittleEndian.Uint64(bin.Bytes[40:])); got != HeaderSize+4 {
		t.Fatalf("text offset = %d, want %d", got, HeaderSize+4)
	}
	if !bytes.Equal(bin.Bytes[bin.DataOffset:bin.TextOffset], p.Data) {
		t.Fatal("data section does not round-trip")
	}
	if bin.StartAddress != 0 {
		t.Fatalf("start address = %d, want 0 (main is first)", bin.StartAddress)
	}
}

func TestJumpsitePatching(t *testing.T) {
	p := buildLoopProgram()
	bin, err := Assemble(p, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	decoded, err := Disassemble(bin.Text())
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	// Find the backward bnz: its displacement must point at the loop head.
	var loopHead int
	for _, d := range decoded {
		if d.Op == MovImm && d.Imm == 1 {
			loopHead = d.Offset
		}
	}
	for _, d := range decoded {
		if d.Op == Bnz {
			if d.Offset+int(d.Disp) != loopHead {
				t.Fatalf("bnz at %d jumps to %d, want %d", d.Offset, d.Offset+int(d.Disp), loopHead)
			}
		}
	}
}

func TestDisassembleRoundTrip(t *testing.T) {
	p := buildLoopProgram()
	bin, err := Assemble(p, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	text := bin.Text()
	decoded, err := Disassemble(text)
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	again, err := Reassemble(decoded)
	if err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if !bytes.Equal(text, again) {
		t.Fatal("binary -> disassembler -> binary round trip differs")
	}
}

func TestUnresolvedLabelIsAnError(t *testing.T) {
	p := &Program{Main: "main"}
	l := p.NewLabel()
	dangling := p.NewLabel()
	p.AddFunction(&Function{Name: "main", Blocks: []*Block{
		{Label: l, Name: "entry", Insts: []Instruction{{Op: Jmp, Label: dangling}}},
	}})
	if _, err := Assemble(p, nil); err == nil {
		t.Fatal("expected an unresolved-label error")
	}
}

func TestFFIDeclEncoding(t *testing.T) {
	ctx := types.NewContext()
	r := ffi.NewRegistry()
	lib := r.Library("libm")
	lib.Declare("sqrt", 0, []types.Type{ctx.FloatType(64)}, ctx.FloatType(64))
	lib.Declare("print", 1, []types.Type{ctx.Ptr(), ctx.IntType(64)}, ctx.Void())

	p := &Program{Main: "main"}
	l := p.NewLabel()
	p.AddFunction(&Function{Name: "main", Blocks: []*Block{
		{Label: l, Name: "entry", Insts: []Instruction{{Op: Ret, Label: NoLabel}}},
	}})
	bin, err := Assemble(p, r)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	decls := bin.Bytes[bin.FFIDeclOffset:]
	if got := binary.LittleEndian.Uint32(decls); got != 1 {
		t.Fatalf("library count = %d, want 1", got)
	}
	rest := decls[4:]
	if !bytes.HasPrefix(rest, []byte("libm\x00")) {
		t.Fatalf("library name not encoded as cstr: %q", rest[:8])
	}
	rest = rest[5:]
	if got := binary.LittleEndian.Uint32(rest); got != 2 {
		t.Fatalf("function count = %d, want 2", got)
	}
	rest = rest[4:]
	// sqrt: cstr, argc=1, Double, ret Double, index 0.
	want := append([]byte("sqrt\x00"), 1, ffiDouble, ffiDouble, 0, 0, 0, 0)
	if !bytes.HasPrefix(rest, want) {
		t.Fatalf("sqrt encoding mismatch: %v", rest[:len(want)])
	}
	rest = rest[len(want):]
	// print: cstr, argc=2, Pointer, Int64, ret Void, index 1.
	want = append([]byte("print\x00"), 2, ffiPointer, ffiInt64, ffiVoid, 1, 0, 0, 0)
	if !bytes.HasPrefix(rest, want) {
		t.Fatalf("print encoding mismatch: %v", rest[:len(want)])
	}
}

func TestEncodedSizesMatchOpcodeSize(t *testing.T) {
	samples := []Instruction{
		{Op: Terminate, Label: NoLabel},
		{Op: Mov, Dest: 1, A: 2, Label: NoLabel},
		{Op: MovImm, Dest: 1, Imm: 99, Label: NoLabel},
		{Op: Load, Dest: 1, Mem: Mem{Base: 2, Index: NoIndex}, Width: 8, Label: NoLabel},
		{Op: Store, Mem: Mem{Base: 2, Index: 3, Scale: 8, Offset: -16}, A: 1, Width: 4, Label: NoLabel},
		{Op: Lea, Dest: 1, Mem: Mem{Base: 2, Index: NoIndex, Offset: 24}, Label: NoLabel},
		{Op: LIncSP, Dest: 1, ImmSize: 64, Label: NoLabel},
		{Op: LIncSPR, Dest: 1, A: 2, Label: NoLabel},
		{Op: FMul, Dest: 1, A: 2, B: 3, Width: 8, Label: NoLabel},
		{Op: Neg, Dest: 1, A: 2, Width: 8, Label: NoLabel},
		{Op: Conv, Aux: 1, Dest: 1, A: 2, SrcWidth: 4, Width: 8, Label: NoLabel},
		{Op: Cmp, Aux: 0x12, Dest: 1, A: 2, B: 3, Width: 8, Label: NoLabel},
		{Op: CallExt, RegOffset: 4, Slot: 1, Index: 2, Label: NoLabel},
		{Op: Ret, Label: NoLabel},
	}
	var text []byte
	var err error
	offset := 0
	for _, s := range samples {
		text, _, err = encode(text, nil, s)
		if err != nil {
			t.Fatalf("encode %s: %v", s.Op, err)
		}
		if len(text)-offset != s.Op.Size() {
			t.Fatalf("%s encoded to %d bytes, want %d", s.Op, len(text)-offset, s.Op.Size())
		}
		offset = len(text)
	}
	decoded, err := Disassemble(text)
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("decoded %d instructions, want %d", len(decoded), len(samples))
	}
}
