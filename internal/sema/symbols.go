// Package sema defines the minimal fixed-interface symbol table and
// AST-decoration map this compiler core consumes. The
// full semantic analyzer — name resolution, type checking, borrow/
// mutability analysis — is an external collaborator; this package only
// names the shapes irgen needs already resolved.
package sema

import (
	"github.com/chrysante/scatha-sub008/internal/ast"
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/types"
)

// ValueCategory distinguishes an expression that names a storage location
// (LValue, lowered in "memory form" to a ptr) from one that's a pure
// computed value (RValue, lowered in "register form").
type ValueCategory int

const (
	RValue ValueCategory = iota
	LValue
)

// LocalSymbol is a resolved local variable or parameter.
type LocalSymbol struct {
	Name    string
	Type    types.Type
	Mutable bool
}

// Scope is a lexical block of local bindings, nested under Parent. Function
// parameters live in the outermost scope of their function body.
type Scope struct {
	Parent *Scope
	locals map[string]*LocalSymbol
}

func NewScope(parent *Scope) *Scope {
	return &Scope{Parent: parent, locals: make(map[string]*LocalSymbol)}
}

func (s *Scope) Define(name string, ty types.Type, mutable bool) *LocalSymbol {
	sym := &LocalSymbol{Name: name, Type: ty, Mutable: mutable}
	s.locals[name] = sym
	return sym
}

func (s *Scope) Lookup(name string) *LocalSymbol {
	for sc := s; sc != nil; sc = sc.Parent {
		if sym, ok := sc.locals[name]; ok {
			return sym
		}
	}
	return nil
}

// StructEntity is a resolved struct declaration: its IR layout plus the
// field-name to index mapping GEP lowering needs, and its optional
// lifetime hooks.
type StructEntity struct {
	Decl        *ast.StructDecl
	Type        *types.StructType
	FieldIndex  map[string]int
	Constructor *FunctionEntity
	Destructor  *FunctionEntity
}

// HasLifetime reports whether values of this struct type need destructor
// calls emitted at scope exit.
func (s *StructEntity) HasLifetime() bool { return s.Destructor != nil }

// FunctionEntity is a resolved function declaration: its ABI-derived
// parameter/return types, ready for internal/irgen's declaration phase to
// turn into an ir.Function.
type FunctionEntity struct {
	Decl       *ast.FunctionDecl
	ParamTypes []types.Type
	ReturnType types.Type

	Foreign        bool
	ForeignLibrary string
	ForeignSlot    int
	ForeignIndex   int

	// IR is filled in by irgen's declaration phase: the ir.Function this
	// entity lowers to, already present (with its parameter list and
	// return type) by the time any call site is lowered.
	IR *ir.Function
}

// SymbolTable is the whole-program symbol table: global struct/function
// entities. Local bindings live in separate Scope values, not here.
type SymbolTable struct {
	Structs   map[string]*StructEntity
	Functions map[string]*FunctionEntity
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		Structs:   make(map[string]*StructEntity),
		Functions: make(map[string]*FunctionEntity),
	}
}
