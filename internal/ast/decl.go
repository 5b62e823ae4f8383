package ast

// TypeExpr is the surface syntax for a type reference: a primitive or
// struct Name, optionally wrapped in Pointer indirection and/or an Array
// of Len elements (Len == nil marks a dynamically sized array, which
// irgen pairs with an implicit i64 length argument).
type TypeExpr struct {
	Name    string
	Pointer bool
	Array   bool
	Len     *int
}

type Param struct {
	Name string
	Type TypeExpr
}

// FunctionDecl is a native function with a Body, or a foreign declaration
// (Body == nil) tagged with the host's (Library, Slot, Index) triple that
// internal/ffi.Registry resolves into a call-ext target.
type FunctionDecl struct {
	base
	Name       string
	Params     []Param
	ReturnType TypeExpr // Name == "void" for no return value

	Body *BlockStmt

	Foreign        bool
	ForeignLibrary string
	ForeignSlot    int
	ForeignIndex   int
}

func (*FunctionDecl) NodeType() NodeType { return FUNCTION_DECL }

type StructField struct {
	Name string
	Type TypeExpr
}

type StructDecl struct {
	base
	Name   string
	Fields []StructField

	// Lifetime hooks: function names resolved against the enclosing
	// Program's Functions, invoked by irgen's cleanup-stack mechanism
	// whenever a value of this type goes out of scope.
	Constructor string
	Destructor  string
}

func (*StructDecl) NodeType() NodeType { return STRUCT_DECL }

// Program is the parser's top-level output: every struct and function
// declared across the compiled source files.
type Program struct {
	base
	Structs   []*StructDecl
	Functions []*FunctionDecl
}

func (*Program) NodeType() NodeType { return PROGRAM }
