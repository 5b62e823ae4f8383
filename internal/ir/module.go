package ir

import "github.com/chrysante/scatha-sub008/internal/types"

// Global is a module-scope storage location with a fixed address, typed as
// a ptr to its declared type and optionally carrying a constant initializer.
type Global struct {
	valueBase
	Declared    types.Type
	Initializer types.Constant // nil for zero-initialized globals
}

// Module owns Functions, Globals, and named Structs with program lifetime;
// Functions own their BasicBlocks, BasicBlocks own their Instructions —
// destruction is nested and deterministic.
type Module struct {
	Context *types.Context

	Functions []*Function
	Globals   []*Global
	Structs   []*types.StructType

	constants map[types.Constant]*Constant

	funcNameCounter int
}

// NewModule creates an empty Module bound to ctx.
func NewModule(ctx *types.Context) *Module {
	return &Module{Context: ctx, constants: make(map[types.Constant]*Constant)}
}

// ConstantValue wraps a types.Constant into the IR value that can be used
// as an instruction operand, reusing any previously-wrapped instance so
// that CleanConstants can observe every user across the whole module.
func (m *Module) ConstantValue(c types.Constant) *Constant {
	if existing, ok := m.constants[c]; ok {
		return existing
	}
	wrapped := &Constant{valueBase: valueBase{ty: c.Type()}, Value: c}
	m.constants[c] = wrapped
	return wrapped
}

// CleanConstants drops wrapped constants with no remaining uses, then asks
// the type Context to do the same for the underlying types.Constant pool.
func (m *Module) CleanConstants() {
	for k, v := range m.constants {
		if len(v.Uses()) == 0 {
			delete(m.constants, k)
		}
	}
	m.Context.CleanConstants(func(c types.Constant) int {
		if w, ok := m.constants[c]; ok {
			return len(w.Uses())
		}
		return 0
	})
}

// DeclareFunction creates (or returns, if already declared) a Function
// named name with no body — used for foreign-function declarations and
// forward references during declaration-phase IR-gen.
func (m *Module) DeclareFunction(name string, ret types.Type, paramTypes []types.Type) *Function {
	if f := m.FunctionNamed(name); f != nil {
		return f
	}
	f := &Function{valueBase: valueBase{name: name}, Module: m, ReturnType: ret, External: true}
	for i, pt := range paramTypes {
		f.Params = append(f.Params, &Parameter{valueBase: valueBase{ty: pt, name: "arg" + itoa(i)}, Index: i})
	}
	m.Functions = append(m.Functions, f)
	return f
}

// DefineFunction creates a Function with an entry block ready for the
// Builder to populate.
func (m *Module) DefineFunction(name string, ret types.Type, paramTypes []types.Type, paramNames []string) *Function {
	f := &Function{valueBase: valueBase{name: name}, Module: m, ReturnType: ret}
	for i, pt := range paramTypes {
		n := "arg" + itoa(i)
		if i < len(paramNames) && paramNames[i] != "" {
			n = paramNames[i]
		}
		f.Params = append(f.Params, &Parameter{valueBase: valueBase{ty: pt, name: n, id: f.nextValueID()}, Index: i})
	}
	m.Functions = append(m.Functions, f)
	return f
}

// FunctionNamed looks up a function by name, or nil.
func (m *Module) FunctionNamed(name string) *Function {
	for _, f := range m.Functions {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

// DeclareGlobal adds a module-scope storage location.
func (m *Module) DeclareGlobal(name string, declared types.Type, init types.Constant) *Global {
	g := &Global{valueBase: valueBase{name: name, ty: m.Context.Ptr()}, Declared: declared, Initializer: init}
	m.Globals = append(m.Globals, g)
	return g
}
