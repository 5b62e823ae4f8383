package types

import (
	"fmt"
	"strings"
)

// Context owns every type and constant for one compilation; all IR values
// reference them by pointer with program lifetime. A Context is
// never shared between compilations and is not safe for concurrent use.
type Context struct {
	voidTy *VoidType
	ptrTy  *PointerType

	ints   map[int]*IntType
	floats map[int]*FloatType

	arrays  map[arrayKey]*ArrayType
	structs map[string]*StructType // keyed by structural signature

	named map[string]*StructType // declared (named) struct types

	constants    map[constKey]Constant
	undefs       map[Type]*UndefValue
	stringLits   map[string]*ArrayConstant
	associativeFP bool
}

type arrayKey struct {
	elem  Type
	count int
}

// NewContext creates a Context with the primitive singletons pre-populated.
func NewContext() *Context {
	return &Context{
		voidTy:     &VoidType{},
		ptrTy:      &PointerType{width: 8},
		ints:       make(map[int]*IntType),
		floats:     make(map[int]*FloatType),
		arrays:     make(map[arrayKey]*ArrayType),
		structs:    make(map[string]*StructType),
		named:      make(map[string]*StructType),
		constants:  make(map[constKey]Constant),
		undefs:     make(map[Type]*UndefValue),
		stringLits: make(map[string]*ArrayConstant),
	}
}

// SetAssociativeFloatArithmetic toggles whether floating-point add/mul are
// treated as associative by optimization passes.
func (c *Context) SetAssociativeFloatArithmetic(v bool) { c.associativeFP = v }

// AssociativeFloatArithmetic reports the current setting.
func (c *Context) AssociativeFloatArithmetic() bool { return c.associativeFP }

func (c *Context) Void() *VoidType    { return c.voidTy }
func (c *Context) Ptr() *PointerType  { return c.ptrTy }

// IntType returns the unique integral type of the given bit width (1..64).
func (c *Context) IntType(bits int) *IntType {
	if bits < 1 || bits > 64 {
		panic(fmt.Sprintf("types: invalid integer width %d", bits))
	}
	if t, ok := c.ints[bits]; ok {
		return t
	}
	t := &IntType{Bits: bits}
	c.ints[bits] = t
	return t
}

// FloatType returns the unique floating-point type of the given precision
// (32 or 64 bits).
func (c *Context) FloatType(bits int) *FloatType {
	if bits != 32 && bits != 64 {
		panic(fmt.Sprintf("types: invalid float width %d", bits))
	}
	if t, ok := c.floats[bits]; ok {
		return t
	}
	t := &FloatType{Bits: bits}
	c.floats[bits] = t
	return t
}

// ArrayType returns the unique array type of element and count.
func (c *Context) ArrayType(elem Type, count int) *ArrayType {
	key := arrayKey{elem: elem, count: count}
	if t, ok := c.arrays[key]; ok {
		return t
	}
	t := &ArrayType{Element: elem, Count: count}
	c.arrays[key] = t
	return t
}

// AnonymousStruct returns the unique structural struct type for the given
// member list; two calls with equal member sequences return the same
// pointer, so pointer equality is structural equality.
func (c *Context) AnonymousStruct(members []Type) *StructType {
	key := structuralKey(members)
	if t, ok := c.structs[key]; ok {
		return t
	}
	t := layoutStruct("", members)
	c.structs[key] = t
	return t
}

// DeclareStruct creates a new named struct type with the given members in
// declaration order. Named structs are uniqued by name, not structure: two
// structs with identical members but different names remain distinct.
func (c *Context) DeclareStruct(name string, members []Type) *StructType {
	if t, ok := c.named[name]; ok {
		return t
	}
	t := layoutStruct(name, members)
	c.named[name] = t
	return t
}

func structuralKey(members []Type) string {
	parts := make([]string, len(members))
	for i, m := range members {
		parts[i] = m.String()
	}
	return strings.Join(parts, "|")
}

// layoutStruct computes member offsets by natural alignment: each member is
// placed at the next offset that is a multiple of its own alignment, the
// struct's alignment is the max member alignment, and the struct's size is
// padded up to a multiple of that alignment.
func layoutStruct(name string, members []Type) *StructType {
	offsets := make([]int, len(members))
	offset := 0
	align := 1
	for i, m := range members {
		a := m.Align()
		if a > align {
			align = a
		}
		offset = roundUp(offset, a)
		offsets[i] = offset
		offset += m.Size()
	}
	size := roundUp(offset, align)
	return &StructType{Name: name, Members: members, Offsets: offsets, size: size, align: align}
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
