package codegen

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chrysante/scatha-sub008/internal/asm"
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/mir"
	"github.com/chrysante/scatha-sub008/internal/types"
)

// Emit translates allocated MIR into the assembly stream, laying out the
// data section from the IR module's globals and resolving every register to
// its hardware number. Globals are addressed by their offset within the
// data section; the VM maps data at address zero.
func Emit(mm *mir.Module, irm *ir.Module) (*asm.Program, error) {
	p := &asm.Program{Main: "main"}

	globalOffsets, data, err := layoutData(irm)
	if err != nil {
		return nil, err
	}
	p.Data = data

	entryLabels := make(map[string]int)
	blockLabels := make(map[*mir.BasicBlock]int)
	for _, fn := range mm.Functions {
		for i, b := range fn.Blocks {
			blockLabels[b] = p.NewLabel()
			if i == 0 {
				entryLabels[fn.Name] = blockLabels[b]
			}
		}
	}

	for _, fn := range mm.Functions {
		af := &asm.Function{Name: fn.Name}
		for _, b := range fn.Blocks {
			ab := &asm.Block{Label: blockLabels[b], Name: fn.Name + "." + b.Name}
			for _, inst := range b.Insts {
				encoded, err := translate(fn, inst, blockLabels, entryLabels, globalOffsets)
				if err != nil {
					return nil, fmt.Errorf("codegen: @%s: %w", fn.Name, err)
				}
				ab.Insts = append(ab.Insts, encoded...)
			}
			af.Blocks = append(af.Blocks, ab)
		}
		p.AddFunction(af)
	}
	return p, nil
}

// hwNum resolves a register to its hardware slot: allocated color for
// virtual registers, the physical number for hardware registers, and the
// first slot past the frame's colors for callee-window registers.
func hwNum(fn *mir.Function, r *mir.Register) (byte, error) {
	n := -1
	switch r.Kind {
	case mir.CalleeReg:
		n = fn.NumColors + r.Num
	default:
		n = r.Color
	}
	if n < 0 {
		return 0, fmt.Errorf("register %s has no hardware assignment", r)
	}
	if n >= MaxHardwareRegs {
		return 0, fmt.Errorf("register %s resolves past the register file (%d)", r, n)
	}
	return byte(n), nil
}

func memOperand(fn *mir.Function, m mir.MemoryAddress) (asm.Mem, error) {
	base, err := hwNum(fn, m.Base)
	if err != nil {
		return asm.Mem{}, err
	}
	out := asm.Mem{Base: base, Index: asm.NoIndex, Offset: int32(m.Offset)}
	if m.Index != nil {
		idx, err := hwNum(fn, m.Index)
		if err != nil {
			return asm.Mem{}, err
		}
		out.Index = idx
		out.Scale = byte(m.Scale)
	}
	return out, nil
}

var arithOpcodes = map[ir.ArithOp]asm.Opcode{
	ir.Add: asm.Add, ir.Sub: asm.Sub, ir.Mul: asm.Mul, ir.SDiv: asm.SDiv,
	ir.UDiv: asm.UDiv, ir.SRem: asm.SRem, ir.URem: asm.URem,
	ir.FAdd: asm.FAdd, ir.FSub: asm.FSub, ir.FMul: asm.FMul, ir.FDiv: asm.FDiv,
	ir.Shl: asm.Shl, ir.LShr: asm.LShr, ir.AShr: asm.AShr,
	ir.And: asm.And, ir.Or: asm.Or, ir.Xor: asm.Xor,
}

var unaryOpcodes = map[ir.UnaryOp]asm.Opcode{
	ir.Neg: asm.Neg, ir.BNot: asm.BNot, ir.LNot: asm.LNot,
}

func translate(fn *mir.Function, inst *mir.Instruction, blockLabels map[*mir.BasicBlock]int,
	entryLabels map[string]int, globalOffsets map[string]int) ([]asm.Instruction, error) {

	loc := asm.SourceLoc{File: inst.Loc.File, Line: inst.Loc.Line, Col: inst.Loc.Col}
	one := func(i asm.Instruction) []asm.Instruction {
		i.Loc = loc
		if i.Label == 0 && i.Op != asm.Jmp && i.Op != asm.Bnz && i.Op != asm.Call {
			i.Label = asm.NoLabel
		}
		return []asm.Instruction{i}
	}

	switch inst.Op {
	case mir.Copy:
		dest, err := hwNum(fn, inst.Dest)
		if err != nil {
			return nil, err
		}
		switch src := inst.Operands[0].(type) {
		case *mir.Register:
			s, err := hwNum(fn, src)
			if err != nil {
				return nil, err
			}
			if s == dest {
				// Coalescing or coloring made the copy a no-op.
				return nil, nil
			}
			return one(asm.Instruction{Op: asm.Mov, Dest: dest, A: s}), nil
		case mir.Constant:
			return one(asm.Instruction{Op: asm.MovImm, Dest: dest, Imm: src.Value}), nil
		case mir.GlobalRef:
			off, ok := globalOffsets[src.Name]
			if !ok {
				return nil, fmt.Errorf("unknown global @%s", src.Name)
			}
			return one(asm.Instruction{Op: asm.MovImm, Dest: dest, Imm: uint64(off)}), nil
		}
		return nil, fmt.Errorf("copy of unsupported operand %T", inst.Operands[0])

	case mir.Load:
		dest, err := hwNum(fn, inst.Dest)
		if err != nil {
			return nil, err
		}
		m, err := memOperand(fn, inst.Operands[0].(mir.MemoryAddress))
		if err != nil {
			return nil, err
		}
		return one(asm.Instruction{Op: asm.Load, Dest: dest, Mem: m, Width: byte(inst.Width)}), nil

	case mir.Store:
		m, err := memOperand(fn, inst.Operands[0].(mir.MemoryAddress))
		if err != nil {
			return nil, err
		}
		src, err := hwNum(fn, inst.Operands[1].(*mir.Register))
		if err != nil {
			return nil, err
		}
		return one(asm.Instruction{Op: asm.Store, Mem: m, A: src, Width: byte(inst.Width)}), nil

	case mir.LEA:
		dest, err := hwNum(fn, inst.Dest)
		if err != nil {
			return nil, err
		}
		m, err := memOperand(fn, inst.Operands[0].(mir.MemoryAddress))
		if err != nil {
			return nil, err
		}
		return one(asm.Instruction{Op: asm.Lea, Dest: dest, Mem: m}), nil

	case mir.AllocStack:
		dest, err := hwNum(fn, inst.Dest)
		if err != nil {
			return nil, err
		}
		switch sz := inst.Operands[0].(type) {
		case mir.Constant:
			if sz.Value > 0xFFFF {
				return nil, fmt.Errorf("static alloca of %d bytes exceeds the u16 encoding", sz.Value)
			}
			return one(asm.Instruction{Op: asm.LIncSP, Dest: dest, ImmSize: uint16(sz.Value)}), nil
		case *mir.Register:
			s, err := hwNum(fn, sz)
			if err != nil {
				return nil, err
			}
			return one(asm.Instruction{Op: asm.LIncSPR, Dest: dest, A: s}), nil
		}
		return nil, fmt.Errorf("alloca size operand %T", inst.Operands[0])

	case mir.Arith:
		return translateThreeAddress(fn, inst, arithOpcodes[ir.ArithOp(inst.Aux)], loc)

	case mir.UnaryArith:
		dest, err := hwNum(fn, inst.Dest)
		if err != nil {
			return nil, err
		}
		src, err := hwNum(fn, inst.Operands[0].(*mir.Register))
		if err != nil {
			return nil, err
		}
		return one(asm.Instruction{Op: unaryOpcodes[ir.UnaryOp(inst.Aux)], Dest: dest, A: src, Width: byte(inst.Width)}), nil

	case mir.Convert:
		dest, err := hwNum(fn, inst.Dest)
		if err != nil {
			return nil, err
		}
		src, err := hwNum(fn, inst.Operands[0].(*mir.Register))
		if err != nil {
			return nil, err
		}
		return one(asm.Instruction{Op: asm.Conv, Aux: byte(inst.Aux), Dest: dest, A: src,
			SrcWidth: byte(inst.SrcWidth), Width: byte(inst.Width)}), nil

	case mir.Compare:
		aux := byte(int(mir.CmpMode(inst.Aux))<<4 | int(mir.CmpOp(inst.Aux)))
		dest, err := hwNum(fn, inst.Dest)
		if err != nil {
			return nil, err
		}
		lhs, err := hwNum(fn, inst.Operands[0].(*mir.Register))
		if err != nil {
			return nil, err
		}
		rhs, err := hwNum(fn, inst.Operands[1].(*mir.Register))
		if err != nil {
			return nil, err
		}
		return one(asm.Instruction{Op: asm.Cmp, Aux: aux, Dest: dest, A: lhs, B: rhs, Width: byte(inst.Width)}), nil

	case mir.Jump:
		return one(asm.Instruction{Op: asm.Jmp, Label: blockLabels[inst.Target]}), nil

	case mir.CondJump:
		cond, err := hwNum(fn, inst.Operands[0].(*mir.Register))
		if err != nil {
			return nil, err
		}
		return one(asm.Instruction{Op: asm.Bnz, A: cond, Label: blockLabels[inst.Target]}), nil

	case mir.Call:
		label, ok := entryLabels[inst.CalleeName]
		if !ok {
			return nil, fmt.Errorf("call to undefined function @%s", inst.CalleeName)
		}
		if fn.NumColors+inst.NumArgs > MaxHardwareRegs {
			return nil, fmt.Errorf("call to @%s overflows the register window", inst.CalleeName)
		}
		return one(asm.Instruction{Op: asm.Call, RegOffset: byte(fn.NumColors), Label: label}), nil

	case mir.CallExt:
		return one(asm.Instruction{Op: asm.CallExt, RegOffset: byte(fn.NumColors),
			Slot: uint16(inst.ExtSlot), Index: uint16(inst.ExtIndex)}), nil

	case mir.Ret:
		return one(asm.Instruction{Op: asm.Ret}), nil
	}
	return nil, fmt.Errorf("untranslatable MIR opcode %s", inst.Op)
}

func translateThreeAddress(fn *mir.Function, inst *mir.Instruction, op asm.Opcode, loc asm.SourceLoc) ([]asm.Instruction, error) {
	dest, err := hwNum(fn, inst.Dest)
	if err != nil {
		return nil, err
	}
	lhs, err := hwNum(fn, inst.Operands[0].(*mir.Register))
	if err != nil {
		return nil, err
	}
	rhs, err := hwNum(fn, inst.Operands[1].(*mir.Register))
	if err != nil {
		return nil, err
	}
	return []asm.Instruction{{Op: op, Dest: dest, A: lhs, B: rhs, Width: byte(inst.Width),
		Label: asm.NoLabel, Loc: loc}}, nil
}

// layoutData places every global at its natural alignment within the data
// section and renders initializers; uninitialized globals stay zero.
func layoutData(irm *ir.Module) (map[string]int, []byte, error) {
	offsets := make(map[string]int)
	var data []byte
	for _, g := range irm.Globals {
		align := g.Declared.Align()
		for len(data)%align != 0 {
			data = append(data, 0)
		}
		offsets[g.Name()] = len(data)
		bytes := make([]byte, g.Declared.Size())
		if g.Initializer != nil {
			if err := renderConstant(bytes, 0, g.Initializer); err != nil {
				return nil, nil, fmt.Errorf("global @%s: %w", g.Name(), err)
			}
		}
		data = append(data, bytes...)
	}
	return offsets, data, nil
}

func renderConstant(buf []byte, off int, c types.Constant) error {
	switch v := c.(type) {
	case *types.IntegralConstant:
		putLE(buf[off:], v.Value, v.Ty.Size())
	case *types.FloatingPointConstant:
		if v.Ty.Size() == 4 {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(v.Value)))
		} else {
			binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v.Value))
		}
	case *types.NullPointerConstant, *types.UndefValue:
		// Already zero.
	case *types.RecordConstant:
		switch ty := v.Ty.(type) {
		case *types.StructType:
			for i, e := range v.Elements {
				if err := renderConstant(buf, off+ty.Offsets[i], e); err != nil {
					return err
				}
			}
		case *types.ArrayType:
			for i, e := range v.Elements {
				if err := renderConstant(buf, off+i*ty.Element.Size(), e); err != nil {
					return err
				}
			}
		}
	default:
		return fmt.Errorf("constant %s has no data encoding", c.String())
	}
	return nil
}

func putLE(buf []byte, v uint64, width int) {
	for i := 0; i < width; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}
