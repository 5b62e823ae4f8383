package asm

import (
	"encoding/binary"
	"fmt"

	"github.com/chrysante/scatha-sub008/internal/ffi"
	"github.com/chrysante/scatha-sub008/internal/issue"
	"github.com/chrysante/scatha-sub008/internal/types"
)

// HeaderSize is the fixed byte length of the binary header: a 16-byte
// version field followed by five 8-byte offsets.
const HeaderSize = 56

// Magic is the first two bytes of the version field.
const Magic uint16 = 0x5CBF

// Version is the toolchain version embedded after the magic.
const Version = "scatha-0.1"

// Jumpsite records a placeholder emitted for an unresolved label: the text
// offset of the patch field, the label it names, the field width, and
// whether the patch is PC-relative (jumps) or absolute (calls).
type Jumpsite struct {
	CodeOffset int
	InstOffset int
	Label      int
	Width      int
	Relative   bool
}

// InstLoc pairs an emitted instruction's text-relative offset with its
// source position, the raw material of the debug-info map.
type InstLoc struct {
	Offset int
	Loc    SourceLoc
}

// FuncRange is a function's [Begin, End) text-relative extent.
type FuncRange struct {
	Name       string
	Begin, End int
}

// Binary is the assembled output plus the side tables the linker and
// debug-info producer consume.
type Binary struct {
	Bytes []byte

	DataOffset    int
	TextOffset    int
	FFIDeclOffset int
	StartAddress  int // main's offset within the text section

	Symbols     map[string]int
	FuncRanges  []FuncRange
	InstOffsets []InstLoc
}

// Text returns the text section of the binary.
func (b *Binary) Text() []byte { return b.Bytes[b.TextOffset:b.FFIDeclOffset] }

// Assemble resolves p into a binary. Phase 1 lays out blocks and records
// label offsets, phase 2 emits instruction bytes with placeholders and
// jumpsites, phase 3 patches every jumpsite. The three phases
// collapse into one emission pass plus patching because every encoding has
// a fixed length.
func Assemble(p *Program, foreign *ffi.Registry) (*Binary, error) {
	out := &Binary{Symbols: make(map[string]int)}

	labelOffsets := make(map[int]int)
	var jumpsites []Jumpsite
	var text []byte

	for _, f := range p.Functions {
		begin := len(text)
		out.Symbols[f.Name] = begin
		for _, b := range f.Blocks {
			if prev, dup := labelOffsets[b.Label]; dup {
				return nil, &issue.Issue{Level: issue.Error, Kind: issue.KindAssembly,
					Code:    issue.ErrInvariantViolation,
					Message: fmt.Sprintf("label %d defined at both %d and %d", b.Label, prev, len(text))}
			}
			labelOffsets[b.Label] = len(text)
			for _, inst := range b.Insts {
				out.InstOffsets = append(out.InstOffsets, InstLoc{Offset: len(text), Loc: inst.Loc})
				var err error
				text, jumpsites, err = encode(text, jumpsites, inst)
				if err != nil {
					return nil, err
				}
			}
		}
		out.FuncRanges = append(out.FuncRanges, FuncRange{Name: f.Name, Begin: begin, End: len(text)})
	}

	for _, js := range jumpsites {
		target, ok := labelOffsets[js.Label]
		if !ok {
			return nil, &issue.Issue{Level: issue.Error, Kind: issue.KindAssembly,
				Code:    issue.ErrJumpOutOfRange,
				Message: fmt.Sprintf("unresolved label %d at text offset %d", js.Label, js.InstOffset)}
		}
		value := int64(target)
		if js.Relative {
			value = int64(target - js.InstOffset)
		}
		if value < -1<<31 || value >= 1<<31 {
			return nil, &issue.Issue{Level: issue.Error, Kind: issue.KindAssembly,
				Code:    issue.ErrJumpOutOfRange,
				Message: fmt.Sprintf("jump displacement %d exceeds 32 bits", value)}
		}
		binary.LittleEndian.PutUint32(text[js.CodeOffset:], uint32(int32(value)))
	}

	start, ok := out.Symbols[p.Main]
	if !ok && p.Main != "" {
		return nil, &issue.Issue{Level: issue.Error, Kind: issue.KindAssembly,
			Code: issue.ErrInvariantViolation, Message: fmt.Sprintf("no function %q in program", p.Main)}
	}
	out.StartAddress = start

	ffiBytes, err := encodeFFIDecls(foreign)
	if err != nil {
		return nil, err
	}

	out.DataOffset = HeaderSize
	out.TextOffset = out.DataOffset + len(p.Data)
	out.FFIDeclOffset = out.TextOffset + len(text)
	total := out.FFIDeclOffset + len(ffiBytes)

	buf := make([]byte, 0, total)
	buf = append(buf, header(total, start, out.DataOffset, out.TextOffset, out.FFIDeclOffset)...)
	buf = append(buf, p.Data...)
	buf = append(buf, text...)
	buf = append(buf, ffiBytes...)
	out.Bytes = buf
	return out, nil
}

func header(total, start, dataOff, textOff, ffiOff int) []byte {
	h := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(h[0:], Magic)
	copy(h[2:16], Version)
	binary.LittleEndian.PutUint64(h[16:], uint64(total))
	binary.LittleEndian.PutUint64(h[24:], uint64(start))
	binary.LittleEndian.PutUint64(h[32:], uint64(dataOff))
	binary.LittleEndian.PutUint64(h[40:], uint64(textOff))
	binary.LittleEndian.PutUint64(h[48:], uint64(ffiOff))
	return h
}

func encode(text []byte, jumpsites []Jumpsite, i Instruction) ([]byte, []Jumpsite, error) {
	instOff := len(text)
	text = append(text, byte(i.Op))
	switch {
	case i.Op == Terminate || i.Op == Ret:
	case i.Op == Mov || i.Op == LIncSPR:
		text = append(text, i.Dest, i.A)
	case i.Op == MovImm:
		text = append(text, i.Dest)
		text = appendU64(text, i.Imm)
	case i.Op == Load:
		text = append(text, i.Dest)
		text = appendMem(text, i.Mem)
		text = append(text, i.Width)
	case i.Op == Store:
		text = appendMem(text, i.Mem)
		text = append(text, i.A, i.Width)
	case i.Op == Lea:
		text = append(text, i.Dest)
		text = appendMem(text, i.Mem)
	case i.Op == LIncSP:
		text = append(text, i.Dest)
		text = appendU16(text, i.ImmSize)
	case i.Op.IsArith():
		text = append(text, i.Dest, i.A, i.B, i.Width)
	case i.Op.IsUnary():
		text = append(text, i.Dest, i.A, i.Width)
	case i.Op == Conv:
		text = append(text, i.Aux, i.Dest, i.A, i.SrcWidth, i.Width)
	case i.Op == Cmp:
		text = append(text, i.Aux, i.Dest, i.A, i.B, i.Width)
	case i.Op == Jmp:
		jumpsites = append(jumpsites, Jumpsite{CodeOffset: len(text), InstOffset: instOff, Label: i.Label, Width: 4, Relative: true})
		text = appendU32(text, 0)
	case i.Op == Bnz:
		text = append(text, i.A)
		jumpsites = append(jumpsites, Jumpsite{CodeOffset: len(text), InstOffset: instOff, Label: i.Label, Width: 4, Relative: true})
		text = appendU32(text, 0)
	case i.Op == Call:
		text = append(text, i.RegOffset)
		jumpsites = append(jumpsites, Jumpsite{CodeOffset: len(text), InstOffset: instOff, Label: i.Label, Width: 4, Relative: false})
		text = appendU32(text, 0)
	case i.Op == CallExt:
		text = append(text, i.RegOffset)
		text = appendU16(text, i.Slot)
		text = appendU16(text, i.Index)
	default:
		return nil, nil, &issue.Issue{Level: issue.Error, Kind: issue.KindAssembly,
			Code: issue.ErrInvariantViolation, Message: fmt.Sprintf("unencodable opcode %d", i.Op)}
	}
	if got := len(text) - instOff; got != i.Op.Size() {
		return nil, nil, &issue.Issue{Level: issue.Error, Kind: issue.KindAssembly,
			Code:    issue.ErrInvariantViolation,
			Message: fmt.Sprintf("%s encoded to %d bytes, want %d", i.Op, got, i.Op.Size())}
	}
	return text, jumpsites, nil
}

func appendMem(b []byte, m Mem) []byte {
	b = append(b, m.Base, m.Index, m.Scale)
	return appendU32(b, uint32(m.Offset))
}

func appendU16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendU64(b []byte, v uint64) []byte {
	b = appendU32(b, uint32(v))
	return appendU32(b, uint32(v>>32))
}

// ---------------------------------------------------------------------------
// FFI declaration list
// ---------------------------------------------------------------------------

// Type codes of the FFI declaration encoding.
const (
	ffiVoid    byte = 0
	ffiInt8    byte = 1
	ffiInt16   byte = 2
	ffiInt32   byte = 3
	ffiInt64   byte = 4
	ffiFloat   byte = 5
	ffiDouble  byte = 6
	ffiPointer byte = 7
	ffiStruct  byte = 8
)

// encodeFFIDecls renders the registry as
// u32 library-count; per library: cstr name, u32 func-count;
// per function: cstr name, u8 argc, argtypes, u8 rettype, u32 index.
func encodeFFIDecls(r *ffi.Registry) ([]byte, error) {
	var out []byte
	if r == nil {
		return appendU32(out, 0), nil
	}
	libs := r.Libraries()
	out = appendU32(out, uint32(len(libs)))
	for _, lib := range libs {
		out = appendCStr(out, lib.Name)
		funcs := lib.Functions()
		out = appendU32(out, uint32(len(funcs)))
		for _, fn := range funcs {
			out = appendCStr(out, fn.Name)
			if len(fn.ParamTypes) > 255 {
				return nil, &issue.Issue{Level: issue.Error, Kind: issue.KindAssembly,
					Code:    issue.ErrFFISlotOverflow,
					Message: fmt.Sprintf("foreign function %s.%s has %d parameters", lib.Name, fn.Name, len(fn.ParamTypes))}
			}
			out = append(out, byte(len(fn.ParamTypes)))
			for _, pt := range fn.ParamTypes {
				var err error
				out, err = encodeFFIType(out, pt)
				if err != nil {
					return nil, err
				}
			}
			var err error
			out, err = encodeFFIType(out, fn.ReturnType)
			if err != nil {
				return nil, err
			}
			out = appendU32(out, uint32(fn.Index))
		}
	}
	return out, nil
}

func encodeFFIType(out []byte, t types.Type) ([]byte, error) {
	switch v := t.(type) {
	case *types.VoidType:
		return append(out, ffiVoid), nil
	case *types.IntType:
		switch v.Size() {
		case 1:
			return append(out, ffiInt8), nil
		case 2:
			return append(out, ffiInt16), nil
		case 4:
			return append(out, ffiInt32), nil
		default:
			return append(out, ffiInt64), nil
		}
	case *types.FloatType:
		if v.Bits == 32 {
			return append(out, ffiFloat), nil
		}
		return append(out, ffiDouble), nil
	case *types.PointerType:
		return append(out, ffiPointer), nil
	case *types.StructType:
		out = append(out, ffiStruct)
		out = appendU16(out, uint16(len(v.Members)))
		for _, m := range v.Members {
			var err error
			out, err = encodeFFIType(out, m)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		return nil, &issue.Issue{Level: issue.Error, Kind: issue.KindAssembly,
			Code: issue.ErrFFISlotOverflow, Message: fmt.Sprintf("type %s has no FFI encoding", t)}
	}
}

func appendCStr(b []byte, s string) []byte {
	b = append(b, s...)
	return append(b, 0)
}
