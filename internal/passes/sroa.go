package passes

import (
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/passmgr"
	"github.com/chrysante/scatha-sub008/internal/types"
)

func init() {
	passmgr.RegisterFunctionPass(SROAPass{})
}

// SROAPass is scalar replacement of aggregates: an aggregate alloca whose
// address never escapes is split into one alloca per member, whole-aggregate
// loads and stores are rewritten member-wise through extract_value and
// insert_value, and member GEPs are redirected at the member slots. The
// resulting scalar slots are then promoted with the same machinery mem2reg
// uses, which makes this the preferred SSA constructor: one run subsumes
// mem2reg for everything it can split.
type SROAPass struct{}

func (SROAPass) Name() string { return "sroa" }

func (SROAPass) RunOnFunction(fn *ir.Function) (bool, error) {
	entry := fn.Entry()
	if entry == nil {
		return false, nil
	}
	changed := false
	// Splitting a struct-of-structs exposes new aggregate allocas, so sweep
	// until no alloca is splittable anymore.
	for {
		split := false
		for _, inst := range entry.Instructions() {
			a, ok := inst.(*ir.AllocaInst)
			if !ok || a.Count() != nil {
				continue
			}
			if !isAggregate(a.AllocatedType) || !isSplittable(a) {
				continue
			}
			splitAlloca(fn, a)
			split = true
			changed = true
			break
		}
		if !split {
			break
		}
	}
	// Promote whatever is scalar now, including slots the split produced.
	promoted, err := Mem2RegPass{}.RunOnFunction(fn)
	return changed || promoted, err
}

func isAggregate(t types.Type) bool {
	switch t.(type) {
	case *types.StructType, *types.ArrayType:
		return true
	default:
		return false
	}
}

// isSplittable reports whether every use of a is a whole-aggregate load or
// store, or a member GEP with a constant-zero (or absent) dynamic index —
// i.e. the address never escapes and every access resolves to a member slot
// at compile time.
func isSplittable(a *ir.AllocaInst) bool {
	for _, u := range a.Uses() {
		switch inst := u.User.(type) {
		case *ir.LoadInst:
			if inst.ValueType != a.AllocatedType {
				return false
			}
		case *ir.StoreInst:
			if u.Index != 0 || inst.StoredValue().Type() != a.AllocatedType {
				return false
			}
		case *ir.GEPInstruction:
			if u.Index != 0 || inst.SourceType != a.AllocatedType {
				return false
			}
			if len(inst.MemberIndices) == 0 {
				return false
			}
			if d := inst.DynamicIndex(); d != nil {
				c, ok := constOperand(d)
				if !ok || c.Value != 0 {
					return false
				}
			}
		default:
			return false
		}
	}
	return true
}

func splitAlloca(fn *ir.Function, a *ir.AllocaInst) {
	ctx := fn.Module.Context
	b := ir.NewBuilder(ctx, fn)
	b.SetCurrentBlock(a.Block())

	memberTypes := aggregateMembers(a.AllocatedType)
	slots := make([]*ir.AllocaInst, len(memberTypes))
	for i, mt := range memberTypes {
		slots[i] = b.Alloca(mt, a.Name()+".m"+itoaIndex(i))
		a.Block().MoveBefore(a, slots[i])
	}

	for _, u := range a.Uses() {
		switch inst := u.User.(type) {
		case *ir.LoadInst:
			rewriteAggregateLoad(fn, b, inst, slots, memberTypes)
		case *ir.StoreInst:
			rewriteAggregateStore(fn, b, inst, slots, memberTypes)
		case *ir.GEPInstruction:
			rewriteMemberGEP(fn, b, inst, slots, memberTypes)
		}
	}
	a.Block().EraseInst(a)
	fn.Module.CleanConstants()
}

func aggregateMembers(t types.Type) []types.Type {
	switch v := t.(type) {
	case *types.StructType:
		return v.Members
	case *types.ArrayType:
		out := make([]types.Type, v.Count)
		for i := range out {
			out[i] = v.Element
		}
		return out
	default:
		return nil
	}
}

// rewriteAggregateLoad turns a whole-aggregate load into per-member loads
// chained through insert_value, placed where the original load sat.
func rewriteAggregateLoad(fn *ir.Function, b *ir.Builder, load *ir.LoadInst, slots []*ir.AllocaInst, memberTypes []types.Type) {
	blk := load.Block()
	b.WithBlockCurrent(blk, func() {
		agg := ir.Value(fn.Module.ConstantValue(fn.Module.Context.Undef(load.ValueType)))
		for i, slot := range slots {
			m := b.Load(slot, memberTypes[i], load.Name()+".m"+itoaIndex(i))
			blk.MoveBefore(load, m)
			iv := b.InsertValue(agg, m, []int{i}, load.Name()+".agg")
			blk.MoveBefore(load, iv)
			agg = iv
		}
		ir.ReplaceAllUsesWith(load, agg)
	})
	blk.EraseInst(load)
}

// rewriteAggregateStore turns a whole-aggregate store into extract_value
// plus a store per member.
func rewriteAggregateStore(fn *ir.Function, b *ir.Builder, store *ir.StoreInst, slots []*ir.AllocaInst, memberTypes []types.Type) {
	blk := store.Block()
	val := store.StoredValue()
	b.WithBlockCurrent(blk, func() {
		for i, slot := range slots {
			ev := b.ExtractValue(val, []int{i}, memberTypes[i], "sroa.ev")
			blk.MoveBefore(store, ev)
			st := b.Store(slot, ev)
			blk.MoveBefore(store, st)
		}
	})
	blk.EraseInst(store)
}

// rewriteMemberGEP redirects a member GEP at the member's own slot: a
// one-level GEP becomes the slot itself, a deeper one keeps its remaining
// index path rooted at the slot.
func rewriteMemberGEP(fn *ir.Function, b *ir.Builder, gep *ir.GEPInstruction, slots []*ir.AllocaInst, memberTypes []types.Type) {
	blk := gep.Block()
	first := gep.MemberIndices[0]
	rest := gep.MemberIndices[1:]
	if len(rest) == 0 {
		ir.ReplaceAllUsesWith(gep, slots[first])
	} else {
		b.WithBlockCurrent(blk, func() {
			sub := b.GEP(memberTypes[first], slots[first], nil, rest, gep.Name()+".sub")
			blk.MoveBefore(gep, sub)
			ir.ReplaceAllUsesWith(gep, sub)
		})
	}
	blk.EraseInst(gep)
}

func itoaIndex(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return itoaIndex(i/10) + string(rune('0'+i%10))
}
