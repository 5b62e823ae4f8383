// Package ir implements the SSA-form intermediate representation: a typed
// value model, a basic-block CFG, and the instruction hierarchy. Every
// entity that can be used as an operand is a Value; every
// operand slot that names a Value registers a back-edge in that Value's
// user set so that replaceAllUsesWith can rewrite both sides atomically.
package ir

import "github.com/chrysante/scatha-sub008/internal/types"

// Value is satisfied by every IR entity that can be named as an operand:
// Parameter, *BasicBlock, *Global, the Constant wrappers, and every
// Instruction.
type Value interface {
	// Type is the value's static type.
	Type() types.Type
	// Name is the value's display name, unique within its function (for
	// Parameters/Instructions/BasicBlocks) or module (for Globals).
	Name() string
	// Uses returns the value's current user set. The returned slice is a
	// private snapshot; mutating it does not affect the Value.
	Uses() []*Use

	addUse(u *Use)
	removeUse(u *Use)
}

// Use represents one operand slot naming a Value: a back-edge from the slot
// to the Value plus enough information to rewrite the slot in place.
type Use struct {
	value Value
	User  Instruction
	Index int
}

// Value returns the Value currently named by this operand slot.
func (u *Use) Value() Value { return u.value }

// set rewrites this operand slot to name v, updating both sides' user sets.
func (u *Use) set(v Value) {
	if u.value == v {
		return
	}
	if u.value != nil {
		u.value.removeUse(u)
	}
	u.value = v
	if v != nil {
		v.addUse(u)
	}
}

// valueBase implements the bookkeeping shared by every Value variant. It is
// embedded, never used directly.
type valueBase struct {
	id   uint64
	ty   types.Type
	name string
	uses []*Use
}

func (v *valueBase) Type() types.Type { return v.ty }
func (v *valueBase) Name() string     { return v.name }

func (v *valueBase) Uses() []*Use {
	out := make([]*Use, len(v.uses))
	copy(out, v.uses)
	return out
}

func (v *valueBase) addUse(u *Use) {
	v.uses = append(v.uses, u)
}

func (v *valueBase) removeUse(u *Use) {
	for i, x := range v.uses {
		if x == u {
			v.uses[i] = v.uses[len(v.uses)-1]
			v.uses = v.uses[:len(v.uses)-1]
			return
		}
	}
}

// ReplaceAllUsesWith rewrites every use of v to name replacement instead.
// This is the fundamental IR editing primitive: it walks a snapshot of
// v's current users so it is safe to call while those users are themselves
// being deleted.
func ReplaceAllUsesWith(v Value, replacement Value) {
	for _, u := range v.Uses() {
		u.set(replacement)
	}
}

// Parameter is a Value representing one formal argument of a Function.
type Parameter struct {
	valueBase
	Index int
}

// Constant wraps a types.Constant so that it participates in the IR's user
// tracking; the Module owns one Constant wrapper per distinct
// types.Constant so that identity (and therefore CleanConstants) works
// across the whole module.
type Constant struct {
	valueBase
	Value types.Constant
}

func (c *Constant) String() string { return c.Value.String() }
