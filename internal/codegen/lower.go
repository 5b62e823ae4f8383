// Package codegen lowers the SSA IR into MIR through per-block selection
// DAGs, destroys SSA form, colors registers over the interference graph,
// coalesces copies, and lays out blocks for jump elision. The
// result is handed to internal/asm for binary emission.
package codegen

import (
	"fmt"
	"math"
	"reflect"

	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/mir"
	"github.com/chrysante/scatha-sub008/internal/types"
)

// Lower translates every defined function of m into MIR with SSA registers.
func Lower(m *ir.Module) (*mir.Module, error) {
	out := &mir.Module{}
	for _, fn := range m.Functions {
		if fn.External {
			continue
		}
		mfn, err := lowerFunction(m, fn)
		if err != nil {
			return nil, fmt.Errorf("codegen: function @%s: %w", fn.Name(), err)
		}
		out.Functions = append(out.Functions, mfn)
	}
	return out, nil
}

// matcher is one selection case, registered per IR instruction type.
type matcher func(s *fnSelector, n *dagNode) error

// matchTable maps each IR instruction type to its selection case; it is
// populated at startup and frozen, the same self-registering table pattern
// the pass registry uses.
var matchTable = map[reflect.Type]matcher{}

func registerMatch(proto ir.Instruction, m matcher) {
	matchTable[reflect.TypeOf(proto)] = m
}

func init() {
	registerMatch(&ir.AllocaInst{}, (*fnSelector).matchAlloca)
	registerMatch(&ir.LoadInst{}, (*fnSelector).matchLoad)
	registerMatch(&ir.StoreInst{}, (*fnSelector).matchStore)
	registerMatch(&ir.GEPInstruction{}, (*fnSelector).matchGEP)
	registerMatch(&ir.InsertValueInst{}, (*fnSelector).matchInsertValue)
	registerMatch(&ir.ExtractValueInst{}, (*fnSelector).matchExtractValue)
	registerMatch(&ir.ArithmeticInst{}, (*fnSelector).matchArithmetic)
	registerMatch(&ir.UnaryArithmeticInst{}, (*fnSelector).matchUnary)
	registerMatch(&ir.ConversionInst{}, (*fnSelector).matchConversion)
	registerMatch(&ir.CompareInst{}, (*fnSelector).matchCompare)
	registerMatch(&ir.PhiInst{}, (*fnSelector).matchPhi)
	registerMatch(&ir.GotoInst{}, (*fnSelector).matchGoto)
	registerMatch(&ir.BranchInst{}, (*fnSelector).matchBranch)
	registerMatch(&ir.ReturnInst{}, (*fnSelector).matchReturn)
	registerMatch(&ir.CallInst{}, (*fnSelector).matchCall)
}

// fnSelector is the per-function lowering state: the value map from IR
// values to MIR operands, the block mirror, and the block currently being
// selected into.
type fnSelector struct {
	irm    *ir.Module
	irFn   *ir.Function
	fn     *mir.Function
	blocks map[*ir.BasicBlock]*mir.BasicBlock
	values map[ir.Value]mir.Operand
	phis   map[*ir.PhiInst]*mir.Instruction

	cur *mir.BasicBlock
	dag *selectionDAG
	loc ir.SourceLoc
}

func lowerFunction(m *ir.Module, irFn *ir.Function) (*mir.Function, error) {
	s := &fnSelector{
		irm:    m,
		irFn:   irFn,
		fn:     mir.NewFunction(irFn.Name()),
		blocks: make(map[*ir.BasicBlock]*mir.BasicBlock),
		values: make(map[ir.Value]mir.Operand),
		phis:   make(map[*ir.PhiInst]*mir.Instruction),
	}
	for _, b := range irFn.Blocks {
		s.blocks[b] = s.fn.AppendBlock(b.Name())
	}
	for _, b := range irFn.Blocks {
		mb := s.blocks[b]
		for _, succ := range b.Successors {
			mb.AddEdge(s.blocks[succ])
		}
	}

	s.cur = s.fn.Entry()
	if err := s.lowerParams(); err != nil {
		return nil, err
	}

	for _, b := range irFn.Blocks {
		s.cur = s.blocks[b]
		s.dag = newSelectionDAG(b)
		s.markAddressFolds()
		for _, n := range s.dag.topo() {
			if n.folded {
				continue
			}
			match, ok := matchTable[reflect.TypeOf(n.inst)]
			if !ok {
				return nil, fmt.Errorf("no selection case for %T", n.inst)
			}
			s.loc = n.inst.Source()
			if err := match(s, n); err != nil {
				return nil, err
			}
		}
	}

	s.resolvePhis()
	return s.fn, nil
}

// lowerParams binds each IR parameter to its incoming hardware register(s)
// per the calling convention: scalars occupy one word each, aggregates as
// many words as their rounded size; aggregate params are spilled into a
// stack slot so the rest of the function sees them uniformly as a pointer.
func (s *fnSelector) lowerParams() error {
	word := 0
	for _, p := range s.irFn.Params {
		if isAggregate(p.Type()) {
			size := roundUp8(p.Type().Size())
			slot := s.fn.NewSSAReg()
			s.emit(&mir.Instruction{Op: mir.AllocStack, Dest: slot,
				Operands: []mir.Operand{mir.Constant{Value: uint64(size), Width: 2}}, Width: 8})
			for w := 0; w < size/8; w++ {
				hw := s.fn.HardwareReg(word + w)
				s.fn.Params = append(s.fn.Params, hw)
				s.emit(&mir.Instruction{Op: mir.Store, Width: 8, Operands: []mir.Operand{
					mir.MemoryAddress{Base: slot, Offset: 8 * w}, hw}})
			}
			s.values[p] = slot
			word += size / 8
			continue
		}
		hw := s.fn.HardwareReg(word)
		s.fn.Params = append(s.fn.Params, hw)
		v := s.fn.NewSSAReg()
		s.emit(&mir.Instruction{Op: mir.Copy, Dest: v, Width: 8, Operands: []mir.Operand{hw}})
		s.values[p] = v
		word++
	}
	return nil
}

func (s *fnSelector) emit(i *mir.Instruction) {
	if i.Loc.Line == 0 {
		i.Loc = s.loc
	}
	s.cur.Append(i)
}

// operand translates an IR value into a MIR operand without forcing it into
// a register.
func (s *fnSelector) operand(v ir.Value) (mir.Operand, error) {
	if op, ok := s.values[v]; ok {
		return op, nil
	}
	switch c := v.(type) {
	case *ir.Constant:
		return constantOperand(c.Value)
	case *ir.Global:
		return mir.GlobalRef{Name: c.Name()}, nil
	}
	return nil, fmt.Errorf("value %%%s has no lowering", v.Name())
}

func constantOperand(c types.Constant) (mir.Operand, error) {
	switch cv := c.(type) {
	case *types.IntegralConstant:
		return mir.Constant{Value: cv.Value, Width: cv.Type().Size()}, nil
	case *types.FloatingPointConstant:
		if cv.Type().Size() == 4 {
			return mir.Constant{Value: uint64(math.Float32bits(float32(cv.Value))), Width: 4}, nil
		}
		return mir.Constant{Value: math.Float64bits(cv.Value), Width: 8}, nil
	case *types.NullPointerConstant:
		return mir.Constant{Value: 0, Width: 8}, nil
	case *types.UndefValue:
		return mir.Constant{Value: 0, Width: sizeOrWord(cv.Type())}, nil
	default:
		return nil, fmt.Errorf("constant %s cannot be a direct operand", c.String())
	}
}

// regOf translates v and materializes the result into a register if it is
// an immediate or a global address.
func (s *fnSelector) regOf(v ir.Value) (*mir.Register, error) {
	op, err := s.operand(v)
	if err != nil {
		return nil, err
	}
	return s.regOfOperand(op, sizeOrWord(v.Type())), nil
}

func (s *fnSelector) regOfOperand(op mir.Operand, width int) *mir.Register {
	if r, ok := op.(*mir.Register); ok {
		return r
	}
	r := s.fn.NewSSAReg()
	s.emit(&mir.Instruction{Op: mir.Copy, Dest: r, Width: width, Operands: []mir.Operand{op}})
	return r
}

// ---------------------------------------------------------------------------
// Match cases
// ---------------------------------------------------------------------------

func (s *fnSelector) matchAlloca(n *dagNode) error {
	a := n.inst.(*ir.AllocaInst)
	dest := s.fn.NewSSAReg()
	size := roundUp8(a.AllocatedType.Size())
	if count := a.Count(); count != nil {
		cr, err := s.regOf(count)
		if err != nil {
			return err
		}
		bytes := s.fn.NewSSAReg()
		s.emit(&mir.Instruction{Op: mir.Arith, Aux: int(ir.Mul), Dest: bytes, Width: 8,
			Operands: []mir.Operand{cr, s.regOfOperand(mir.Constant{Value: uint64(size), Width: 8}, 8)}})
		s.emit(&mir.Instruction{Op: mir.AllocStack, Dest: dest, Width: 8, Operands: []mir.Operand{bytes}})
	} else {
		s.emit(&mir.Instruction{Op: mir.AllocStack, Dest: dest, Width: 8,
			Operands: []mir.Operand{mir.Constant{Value: uint64(size), Width: 2}}})
	}
	s.values[a] = dest
	return nil
}

// markAddressFolds decides folding before the selection walk: a GEP whose
// single use is a scalar load/store in its own block is matched as part of
// that consumer's memory operand, so it must be skipped as a standalone
// node (it precedes its consumer in the walk order).
func (s *fnSelector) markAddressFolds() {
	for _, n := range s.dag.order {
		switch inst := n.inst.(type) {
		case *ir.LoadInst:
			if isAggregate(inst.ValueType) {
				continue
			}
			if gep, ok := s.dag.foldableAddress(inst.Address(), inst); ok {
				s.dag.markFolded(gep)
			}
		case *ir.StoreInst:
			if isAggregate(inst.StoredValue().Type()) {
				continue
			}
			if gep, ok := s.dag.foldableAddress(inst.Address(), inst); ok {
				s.dag.markFolded(gep)
			}
		}
	}
}

// address computes the memory operand for addr as seen by consumer, folding
// a single-use same-block GEP into the base/index/scale/offset form.
func (s *fnSelector) address(addr ir.Value, consumer ir.Instruction) (mir.MemoryAddress, error) {
	if gep, ok := s.dag.foldableAddress(addr, consumer); ok {
		m, err := s.gepAddress(gep)
		if err != nil {
			return mir.MemoryAddress{}, err
		}
		s.dag.markFolded(gep)
		return m, nil
	}
	base, err := s.regOf(addr)
	if err != nil {
		return mir.MemoryAddress{}, err
	}
	return mir.MemoryAddress{Base: base}, nil
}

func (s *fnSelector) gepAddress(gep *ir.GEPInstruction) (mir.MemoryAddress, error) {
	base, err := s.regOf(gep.Base())
	if err != nil {
		return mir.MemoryAddress{}, err
	}
	offset := offsetOfIndices(gep.SourceType, gep.MemberIndices)
	m := mir.MemoryAddress{Base: base, Offset: offset}
	if d := gep.DynamicIndex(); d != nil {
		scale := gep.SourceType.Size()
		if c, ok := intConstant(d); ok {
			m.Offset += int(c) * scale
			return m, nil
		}
		idx, err := s.regOf(d)
		if err != nil {
			return mir.MemoryAddress{}, err
		}
		if scale > 255 {
			// The encoding's scale field is a byte; fold oversized strides
			// into an explicit multiply.
			scaled := s.fn.NewSSAReg()
			s.emit(&mir.Instruction{Op: mir.Arith, Aux: int(ir.Mul), Dest: scaled, Width: 8,
				Operands: []mir.Operand{idx, s.regOfOperand(mir.Constant{Value: uint64(scale), Width: 8}, 8)}})
			idx, scale = scaled, 1
		}
		m.Index, m.Scale = idx, scale
	}
	return m, nil
}

func (s *fnSelector) matchLoad(n *dagNode) error {
	l := n.inst.(*ir.LoadInst)
	if isAggregate(l.ValueType) {
		src, err := s.regOf(l.Address())
		if err != nil {
			return err
		}
		slot := s.fn.NewSSAReg()
		size := roundUp8(l.ValueType.Size())
		s.emit(&mir.Instruction{Op: mir.AllocStack, Dest: slot, Width: 8,
			Operands: []mir.Operand{mir.Constant{Value: uint64(size), Width: 2}}})
		s.emitMemCopy(slot, 0, src, 0, l.ValueType.Size())
		s.values[l] = slot
		return nil
	}
	m, err := s.address(l.Address(), l)
	if err != nil {
		return err
	}
	dest := s.fn.NewSSAReg()
	s.emit(&mir.Instruction{Op: mir.Load, Dest: dest, Width: l.ValueType.Size(), Operands: []mir.Operand{m}})
	s.values[l] = dest
	return nil
}

func (s *fnSelector) matchStore(n *dagNode) error {
	st := n.inst.(*ir.StoreInst)
	v := st.StoredValue()
	if isAggregate(v.Type()) {
		dst, err := s.regOf(st.Address())
		if err != nil {
			return err
		}
		src, err := s.regOf(v)
		if err != nil {
			return err
		}
		s.emitMemCopy(dst, 0, src, 0, v.Type().Size())
		return nil
	}
	m, err := s.address(st.Address(), st)
	if err != nil {
		return err
	}
	vr, err := s.regOf(v)
	if err != nil {
		return err
	}
	s.emit(&mir.Instruction{Op: mir.Store, Width: v.Type().Size(), Operands: []mir.Operand{m, vr}})
	return nil
}

func (s *fnSelector) matchGEP(n *dagNode) error {
	gep := n.inst.(*ir.GEPInstruction)
	m, err := s.gepAddress(gep)
	if err != nil {
		return err
	}
	dest := s.fn.NewSSAReg()
	s.emit(&mir.Instruction{Op: mir.LEA, Dest: dest, Width: 8, Operands: []mir.Operand{m}})
	s.values[gep] = dest
	return nil
}

func (s *fnSelector) matchInsertValue(n *dagNode) error {
	iv := n.inst.(*ir.InsertValueInst)
	aggTy := iv.Aggregate().Type()
	slot := s.fn.NewSSAReg()
	size := roundUp8(aggTy.Size())
	s.emit(&mir.Instruction{Op: mir.AllocStack, Dest: slot, Width: 8,
		Operands: []mir.Operand{mir.Constant{Value: uint64(size), Width: 2}}})
	// An undef source (the root of an insert_value chain) has no storage to
	// copy from; the fresh slot's contents are the undef value.
	if !isUndef(iv.Aggregate()) {
		src, err := s.regOf(iv.Aggregate())
		if err != nil {
			return err
		}
		s.emitMemCopy(slot, 0, src, 0, aggTy.Size())
	}

	off := offsetOfIndices(aggTy, iv.Indices)
	elemTy := elementAt(aggTy, iv.Indices)
	if isAggregate(elemTy) {
		er, err := s.regOf(iv.Inserted())
		if err != nil {
			return err
		}
		s.emitMemCopy(slot, off, er, 0, elemTy.Size())
	} else {
		er, err := s.regOf(iv.Inserted())
		if err != nil {
			return err
		}
		s.emit(&mir.Instruction{Op: mir.Store, Width: elemTy.Size(), Operands: []mir.Operand{
			mir.MemoryAddress{Base: slot, Offset: off}, er}})
	}
	s.values[iv] = slot
	return nil
}

func (s *fnSelector) matchExtractValue(n *dagNode) error {
	ev := n.inst.(*ir.ExtractValueInst)
	aggTy := ev.Aggregate().Type()
	src, err := s.regOf(ev.Aggregate())
	if err != nil {
		return err
	}
	off := offsetOfIndices(aggTy, ev.Indices)
	elemTy := elementAt(aggTy, ev.Indices)
	if isAggregate(elemTy) {
		slot := s.fn.NewSSAReg()
		size := roundUp8(elemTy.Size())
		s.emit(&mir.Instruction{Op: mir.AllocStack, Dest: slot, Width: 8,
			Operands: []mir.Operand{mir.Constant{Value: uint64(size), Width: 2}}})
		s.emitMemCopy(slot, 0, src, off, elemTy.Size())
		s.values[ev] = slot
		return nil
	}
	dest := s.fn.NewSSAReg()
	s.emit(&mir.Instruction{Op: mir.Load, Dest: dest, Width: elemTy.Size(), Operands: []mir.Operand{
		mir.MemoryAddress{Base: src, Offset: off}}})
	s.values[ev] = dest
	return nil
}

func (s *fnSelector) matchArithmetic(n *dagNode) error {
	a := n.inst.(*ir.ArithmeticInst)
	lhs, err := s.regOf(a.LHS())
	if err != nil {
		return err
	}
	rhs, err := s.regOf(a.RHS())
	if err != nil {
		return err
	}
	dest := s.fn.NewSSAReg()
	s.emit(&mir.Instruction{Op: mir.Arith, Aux: int(a.Op), Dest: dest,
		Width: a.Type().Size(), Operands: []mir.Operand{lhs, rhs}})
	s.values[a] = dest
	return nil
}

func (s *fnSelector) matchUnary(n *dagNode) error {
	u := n.inst.(*ir.UnaryArithmeticInst)
	op, err := s.regOf(u.Operand())
	if err != nil {
		return err
	}
	dest := s.fn.NewSSAReg()
	s.emit(&mir.Instruction{Op: mir.UnaryArith, Aux: int(u.Op), Dest: dest,
		Width: u.Type().Size(), Operands: []mir.Operand{op}})
	s.values[u] = dest
	return nil
}

func (s *fnSelector) matchConversion(n *dagNode) error {
	c := n.inst.(*ir.ConversionInst)
	srcW := sizeOrWord(c.Operand().Type())
	dstW := sizeOrWord(c.Type())
	// No-op conversions share the operand's register with the result.
	if c.Op == ir.Bitcast || ((c.Op == ir.Zext || c.Op == ir.Sext || c.Op == ir.Trunc) && srcW == dstW) {
		op, err := s.operand(c.Operand())
		if err != nil {
			return err
		}
		s.values[c] = op
		s.dag.markFolded(c)
		return nil
	}
	op, err := s.regOf(c.Operand())
	if err != nil {
		return err
	}
	dest := s.fn.NewSSAReg()
	s.emit(&mir.Instruction{Op: mir.Convert, Aux: int(c.Op), Dest: dest,
		Width: dstW, SrcWidth: srcW, Operands: []mir.Operand{op}})
	s.values[c] = dest
	return nil
}

func (s *fnSelector) matchCompare(n *dagNode) error {
	c := n.inst.(*ir.CompareInst)
	lhs, err := s.regOf(c.LHS())
	if err != nil {
		return err
	}
	rhs, err := s.regOf(c.RHS())
	if err != nil {
		return err
	}
	dest := s.fn.NewSSAReg()
	s.emit(&mir.Instruction{Op: mir.Compare, Aux: mir.CmpAux(c.Mode, c.Op), Dest: dest,
		Width: c.LHS().Type().Size(), Operands: []mir.Operand{lhs, rhs}})
	s.values[c] = dest
	return nil
}

// matchPhi creates the MIR phi with its destination only; operands are
// filled in by resolvePhis once every incoming value has been lowered
// (phis are the one place IR references values defined later in layout).
func (s *fnSelector) matchPhi(n *dagNode) error {
	p := n.inst.(*ir.PhiInst)
	dest := s.fn.NewSSAReg()
	inst := &mir.Instruction{Op: mir.Phi, Dest: dest, Width: sizeOrWord(p.Type())}
	s.emit(inst)
	s.values[p] = dest
	s.phis[p] = inst
	return nil
}

func (s *fnSelector) resolvePhis() {
	for p, inst := range s.phis {
		for _, e := range p.Incoming {
			op, err := s.operand(e.Value())
			if err != nil {
				// Incoming values are lowered by now; an unknown one is an
				// undef edge, which materializes as zero.
				op = mir.Constant{Value: 0, Width: inst.Width}
			}
			inst.Operands = append(inst.Operands, op)
			inst.Preds = append(inst.Preds, s.blocks[e.Pred])
		}
	}
}

func (s *fnSelector) matchGoto(n *dagNode) error {
	g := n.inst.(*ir.GotoInst)
	s.emit(&mir.Instruction{Op: mir.Jump, Target: s.blocks[g.Target()]})
	return nil
}

func (s *fnSelector) matchBranch(n *dagNode) error {
	br := n.inst.(*ir.BranchInst)
	cond, err := s.regOf(br.Condition())
	if err != nil {
		return err
	}
	s.emit(&mir.Instruction{Op: mir.CondJump, Operands: []mir.Operand{cond}, Target: s.blocks[br.IfTrue()]})
	s.emit(&mir.Instruction{Op: mir.Jump, Target: s.blocks[br.IfFalse()]})
	return nil
}

// matchReturn places the return value in the bottom of the register window
// (hardware register 0 upward for aggregates) and returns.
func (s *fnSelector) matchReturn(n *dagNode) error {
	r := n.inst.(*ir.ReturnInst)
	if v := r.Value_(); v != nil && v.Type() != s.irm.Context.Void() {
		if isAggregate(v.Type()) {
			src, err := s.regOf(v)
			if err != nil {
				return err
			}
			for w := 0; w < roundUp8(v.Type().Size())/8; w++ {
				s.emit(&mir.Instruction{Op: mir.Load, Dest: s.fn.HardwareReg(w), Width: 8,
					Operands: []mir.Operand{mir.MemoryAddress{Base: src, Offset: 8 * w}}})
			}
		} else {
			op, err := s.operand(v)
			if err != nil {
				return err
			}
			s.emit(&mir.Instruction{Op: mir.Copy, Dest: s.fn.HardwareReg(0), Width: 8,
				Operands: []mir.Operand{op}})
		}
	}
	s.emit(&mir.Instruction{Op: mir.Ret})
	return nil
}

// matchCall marshals arguments into the callee register window, emits the
// call, and recovers the result from the window's bottom slot(s).
func (s *fnSelector) matchCall(n *dagNode) error {
	c := n.inst.(*ir.CallInst)
	slot := 0
	for _, a := range c.Args() {
		if isAggregate(a.Type()) {
			src, err := s.regOf(a)
			if err != nil {
				return err
			}
			words := roundUp8(a.Type().Size()) / 8
			for w := 0; w < words; w++ {
				tmp := s.fn.NewSSAReg()
				s.emit(&mir.Instruction{Op: mir.Load, Dest: tmp, Width: 8,
					Operands: []mir.Operand{mir.MemoryAddress{Base: src, Offset: 8 * w}}})
				s.emit(&mir.Instruction{Op: mir.Copy, Dest: s.fn.CalleeReg(slot + w), Width: 8,
					Operands: []mir.Operand{tmp}})
			}
			slot += words
			continue
		}
		op, err := s.operand(a)
		if err != nil {
			return err
		}
		s.emit(&mir.Instruction{Op: mir.Copy, Dest: s.fn.CalleeReg(slot), Width: 8,
			Operands: []mir.Operand{op}})
		slot++
	}

	call := &mir.Instruction{NumArgs: slot}
	if c.Foreign != nil {
		call.Op = mir.CallExt
		call.ExtSlot = c.Foreign.Slot
		call.ExtIndex = c.Foreign.Index
	} else {
		call.Op = mir.Call
		call.CalleeName = c.Callee.Name()
	}
	s.emit(call)

	retTy := c.Type()
	if retTy == s.irm.Context.Void() {
		return nil
	}
	if isAggregate(retTy) {
		ret := s.fn.NewSSAReg()
		size := roundUp8(retTy.Size())
		s.emit(&mir.Instruction{Op: mir.AllocStack, Dest: ret, Width: 8,
			Operands: []mir.Operand{mir.Constant{Value: uint64(size), Width: 2}}})
		for w := 0; w < size/8; w++ {
			tmp := s.fn.NewSSAReg()
			s.emit(&mir.Instruction{Op: mir.Copy, Dest: tmp, Width: 8,
				Operands: []mir.Operand{s.fn.CalleeReg(w)}})
			s.emit(&mir.Instruction{Op: mir.Store, Width: 8,
				Operands: []mir.Operand{mir.MemoryAddress{Base: ret, Offset: 8 * w}, tmp}})
		}
		s.values[c] = ret
		return nil
	}
	dest := s.fn.NewSSAReg()
	s.emit(&mir.Instruction{Op: mir.Copy, Dest: dest, Width: 8,
		Operands: []mir.Operand{s.fn.CalleeReg(0)}})
	s.values[c] = dest
	return nil
}

// emitMemCopy copies size bytes between two stack/heap regions in the
// widest chunks the tail allows.
func (s *fnSelector) emitMemCopy(dst *mir.Register, dstOff int, src *mir.Register, srcOff int, size int) {
	off := 0
	for _, w := range []int{8, 4, 2, 1} {
		for size-off >= w {
			tmp := s.fn.NewSSAReg()
			s.emit(&mir.Instruction{Op: mir.Load, Dest: tmp, Width: w,
				Operands: []mir.Operand{mir.MemoryAddress{Base: src, Offset: srcOff + off}}})
			s.emit(&mir.Instruction{Op: mir.Store, Width: w,
				Operands: []mir.Operand{mir.MemoryAddress{Base: dst, Offset: dstOff + off}, tmp}})
			off += w
		}
	}
}

// ---------------------------------------------------------------------------
// Type helpers
// ---------------------------------------------------------------------------

func isAggregate(t types.Type) bool {
	switch t.(type) {
	case *types.StructType, *types.ArrayType:
		return true
	default:
		return false
	}
}

func sizeOrWord(t types.Type) int {
	if s := t.Size(); s > 0 {
		return s
	}
	return 8
}

func roundUp8(n int) int { return (n + 7) &^ 7 }

// offsetOfIndices resolves a constant member-index path into a byte offset.
func offsetOfIndices(t types.Type, indices []int) int {
	off := 0
	cur := t
	for _, i := range indices {
		switch v := cur.(type) {
		case *types.StructType:
			off += v.Offsets[i]
			cur = v.Members[i]
		case *types.ArrayType:
			off += i * v.Element.Size()
			cur = v.Element
		}
	}
	return off
}

// elementAt resolves a member-index path to the element's type.
func elementAt(t types.Type, indices []int) types.Type {
	cur := t
	for _, i := range indices {
		switch v := cur.(type) {
		case *types.StructType:
			cur = v.Members[i]
		case *types.ArrayType:
			cur = v.Element
		}
	}
	return cur
}

func isUndef(v ir.Value) bool {
	c, ok := v.(*ir.Constant)
	if !ok {
		return false
	}
	_, isU := c.Value.(*types.UndefValue)
	return isU
}

func intConstant(v ir.Value) (int64, bool) {
	c, ok := v.(*ir.Constant)
	if !ok {
		return 0, false
	}
	ic, ok := c.Value.(*types.IntegralConstant)
	if !ok {
		return 0, false
	}
	return ic.Signed(), true
}
