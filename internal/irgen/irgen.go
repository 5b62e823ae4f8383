// Package irgen lowers a resolved AST into the SSA-form internal/ir module
//. It runs in two phases: DeclarePhase walks the symbol table
// creating every struct layout and function signature up front, so that a
// function body can reference a sibling declared later in source order;
// DefinePhase then lowers one function body at a time using internal/ir's
// Builder.
package irgen

import (
	"fmt"

	"github.com/chrysante/scatha-sub008/internal/ast"
	"github.com/chrysante/scatha-sub008/internal/ffi"
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/sema"
	"github.com/chrysante/scatha-sub008/internal/types"
)

// AggregateByValueThreshold is the ABI cutoff (in bytes): a struct
// parameter at or under this size is passed by value; larger ones are
// passed by a pointer plus, for dynamically sized arrays, a synthetic i64
// length argument.
const AggregateByValueThreshold = 16

// Lowerer holds the state threaded through both declaration and definition
// phases: the type/constant Context, the Module being built, the resolved
// symbol table, the AST decoration map the analyzer produced, and the
// foreign-function registry declarations resolve against.
type Lowerer struct {
	Ctx     *types.Context
	Module  *ir.Module
	Table   *sema.SymbolTable
	Deco    *sema.Decorations
	Foreign *ffi.Registry
}

func New(ctx *types.Context, table *sema.SymbolTable, deco *sema.Decorations, foreign *ffi.Registry) *Lowerer {
	return &Lowerer{
		Ctx:     ctx,
		Module:  ir.NewModule(ctx),
		Table:   table,
		Deco:    deco,
		Foreign: foreign,
	}
}

// LowerProgram runs both phases over prog and returns the finished Module.
func (l *Lowerer) LowerProgram(prog *ast.Program) error {
	if err := l.DeclarePhase(prog); err != nil {
		return err
	}
	return l.DefinePhase(prog)
}

// DeclarePhase maps every struct's members in declaration order and
// creates an ir.Function (defined or, for foreign functions, declared)
// for every FunctionDecl, so forward references within the same program
// resolve before any body is lowered.
func (l *Lowerer) DeclarePhase(prog *ast.Program) error {
	for _, sd := range prog.Structs {
		if err := l.declareStruct(sd); err != nil {
			return err
		}
	}
	for _, sd := range prog.Structs {
		se := l.Table.Structs[sd.Name]
		if sd.Constructor != "" {
			se.Constructor = l.Table.Functions[sd.Constructor]
		}
		if sd.Destructor != "" {
			se.Destructor = l.Table.Functions[sd.Destructor]
		}
	}
	for _, fd := range prog.Functions {
		if err := l.declareFunction(fd); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lowerer) declareStruct(sd *ast.StructDecl) error {
	members := make([]types.Type, len(sd.Fields))
	index := make(map[string]int, len(sd.Fields))
	for i, f := range sd.Fields {
		ty, err := l.ResolveType(f.Type)
		if err != nil {
			return fmt.Errorf("struct %s field %s: %w", sd.Name, f.Name, err)
		}
		members[i] = ty
		index[f.Name] = i
	}
	st := l.Ctx.DeclareStruct(sd.Name, members)
	l.Table.Structs[sd.Name] = &sema.StructEntity{Decl: sd, Type: st, FieldIndex: index}
	return nil
}

func (l *Lowerer) declareFunction(fd *ast.FunctionDecl) error {
	ret, err := l.ResolveType(fd.ReturnType)
	if err != nil {
		return fmt.Errorf("function %s return type: %w", fd.Name, err)
	}
	var paramTypes []types.Type
	var paramNames []string
	for _, p := range fd.Params {
		pt, err := l.ResolveType(p.Type)
		if err != nil {
			return fmt.Errorf("function %s param %s: %w", fd.Name, p.Name, err)
		}
		pt = l.abiParamType(pt)
		paramTypes = append(paramTypes, pt)
		paramNames = append(paramNames, p.Name)
		if isDynamicArray(p.Type) {
			paramTypes = append(paramTypes, l.Ctx.IntType(64))
			paramNames = append(paramNames, p.Name+".len")
		}
	}

	fe := &sema.FunctionEntity{
		Decl:       fd,
		ParamTypes: paramTypes,
		ReturnType: ret,
		Foreign:    fd.Foreign,
	}
	if fd.Foreign {
		fe.ForeignLibrary = fd.ForeignLibrary
		fe.ForeignSlot = fd.ForeignSlot
		fe.ForeignIndex = fd.ForeignIndex
		fe.IR = l.Module.DeclareFunction(fd.Name, ret, paramTypes)
		if l.Foreign != nil {
			l.Foreign.Library(fd.ForeignLibrary).Declare(fd.Name, fd.ForeignIndex, paramTypes, ret)
		}
	} else {
		fe.IR = l.Module.DefineFunction(fd.Name, ret, paramTypes, paramNames)
	}
	l.Table.Functions[fd.Name] = fe
	return nil
}

// abiParamType applies the aggregate-by-value threshold: a struct over the
// threshold is passed by pointer instead of by value.
func (l *Lowerer) abiParamType(t types.Type) types.Type {
	if st, ok := t.(*types.StructType); ok && st.Size() > AggregateByValueThreshold {
		return l.Ctx.Ptr()
	}
	return t
}

func isDynamicArray(t ast.TypeExpr) bool { return t.Array && t.Len == nil }

// ResolveType turns source-level type syntax into a canonical types.Type.
func (l *Lowerer) ResolveType(t ast.TypeExpr) (types.Type, error) {
	base, err := l.resolveBaseType(t.Name)
	if err != nil {
		return nil, err
	}
	if t.Array {
		if t.Len == nil {
			return l.Ctx.Ptr(), nil // paired with a synthetic i64 length
		}
		base = l.Ctx.ArrayType(base, *t.Len)
	}
	if t.Pointer {
		return l.Ctx.Ptr(), nil
	}
	return base, nil
}

func (l *Lowerer) resolveBaseType(name string) (types.Type, error) {
	switch name {
	case "void":
		return l.Ctx.Void(), nil
	case "bool":
		return l.Ctx.IntType(1), nil
	case "i8", "int8":
		return l.Ctx.IntType(8), nil
	case "i16", "int16":
		return l.Ctx.IntType(16), nil
	case "i32", "int32":
		return l.Ctx.IntType(32), nil
	case "i64", "int64", "int":
		return l.Ctx.IntType(64), nil
	case "f32", "float":
		return l.Ctx.FloatType(32), nil
	case "f64", "double":
		return l.Ctx.FloatType(64), nil
	case "ptr":
		return l.Ctx.Ptr(), nil
	}
	if se, ok := l.Table.Structs[name]; ok {
		return se.Type, nil
	}
	return nil, fmt.Errorf("unknown type %q", name)
}
