// Package types implements the canonicalized type system shared by the IR
// and MIR: primitive, struct, array, pointer, and function types, uniqued
// per Context so that pointer equality implies structural equality.
package types

import (
	"fmt"
	"strings"
)

// Type is the common interface satisfied by every canonical type.
type Type interface {
	// String renders the type the way the IR printer emits it.
	String() string
	// Size is the type's size in bytes. Void has size 0.
	Size() int
	// Align is the type's required alignment in bytes, always a power of two.
	Align() int
	fmt.Stringer

	sealed()
}

// VoidType is the unique empty type, used for instructions that produce no
// usable value (e.g. Store, void-returning Call).
type VoidType struct{}

func (*VoidType) String() string { return "void" }
func (*VoidType) Size() int      { return 0 }
func (*VoidType) Align() int     { return 1 }
func (*VoidType) sealed()        {}

// PointerType is the unique opaque, pointer-sized type.
type PointerType struct {
	width int
}

func (p *PointerType) String() string { return "ptr" }
func (p *PointerType) Size() int      { return p.width }
func (p *PointerType) Align() int     { return p.width }
func (p *PointerType) sealed()        {}

// IntType is an integral type of 1..64 bits. A 1-bit IntType is the boolean
// type `i1` produced by comparisons and logical operators.
type IntType struct {
	Bits int
}

func (i *IntType) String() string { return fmt.Sprintf("i%d", i.Bits) }
func (i *IntType) Size() int      { return byteSize(i.Bits) }
func (i *IntType) Align() int {
	a := 1
	for a < i.Size() {
		a <<= 1
	}
	return a
}
func (i *IntType) sealed() {}

// FloatType is an IEEE-754 binary32 or binary64 type.
type FloatType struct {
	Bits int // 32 or 64
}

func (f *FloatType) String() string { return fmt.Sprintf("f%d", f.Bits) }
func (f *FloatType) Size() int      { return f.Bits / 8 }
func (f *FloatType) Align() int     { return f.Size() }
func (f *FloatType) sealed()        {}

// StructType is a sequence of members laid out by natural alignment.
// Anonymous structs (no declared name) are structurally uniqued by their
// member list; named structs are uniqued by identity only.
type StructType struct {
	Name    string // empty for anonymous/structural structs
	Members []Type
	Offsets []int
	size    int
	align   int
}

func (s *StructType) String() string {
	if s.Name != "" {
		return "@" + s.Name
	}
	parts := make([]string, len(s.Members))
	for i, m := range s.Members {
		parts[i] = m.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (s *StructType) Size() int  { return s.size }
func (s *StructType) Align() int { return s.align }
func (s *StructType) sealed()    {}

// ArrayType is a fixed-length homogeneous aggregate.
type ArrayType struct {
	Element Type
	Count   int
}

func (a *ArrayType) String() string { return fmt.Sprintf("[%s x %d]", a.Element, a.Count) }
func (a *ArrayType) Size() int      { return a.Element.Size() * a.Count }
func (a *ArrayType) Align() int     { return a.Element.Align() }
func (a *ArrayType) sealed()        {}

// FunctionType is the type of a callable entity; it is never the type of a
// Value operand directly (Functions are typed by the pointer-sized
// FunctionPointer convention used by Call), but is retained on the Function
// IR node and used by the assembler's FFI encoding.
type FunctionType struct {
	Return Type
	Params []Type
}

func (f *FunctionType) String() string {
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		parts[i] = p.String()
	}
	return fmt.Sprintf("%s(%s)", f.Return, strings.Join(parts, ", "))
}
func (f *FunctionType) Size() int  { return 0 }
func (f *FunctionType) Align() int { return 1 }
func (f *FunctionType) sealed()    {}

func byteSize(bits int) int {
	switch {
	case bits <= 1:
		return 1
	default:
		return (bits + 7) / 8
	}
}

// IsPowerOfTwo reports whether n is a power of two, the invariant required
// of every Align() result.
func IsPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }
