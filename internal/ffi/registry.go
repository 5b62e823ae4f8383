// Package ffi is the foreign-function declaration table: a registry of
// host-provided libraries and the functions within them, each addressed
// by a (slot, index) pair the bytecode's call-ext instruction transfers
// control through.
package ffi

import (
	"sort"

	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/types"
)

// Function is one foreign function's signature, addressed by Index within
// its declaring Library.
type Function struct {
	Name       string
	Index      int
	ParamTypes []types.Type
	ReturnType types.Type // ctx.Void() for a void foreign function
}

// Library is a host-provided module of foreign functions, addressed by
// Slot within the registry.
type Library struct {
	Name      string
	Slot      int
	functions map[string]*Function
}

// Declare registers fn under name at index within l, mirroring
// stdlib.ModuleDefinition.Functions's (name -> FunctionDefinition) table.
func (l *Library) Declare(name string, index int, params []types.Type, ret types.Type) *Function {
	fn := &Function{Name: name, Index: index, ParamTypes: params, ReturnType: ret}
	l.functions[name] = fn
	return fn
}

func (l *Library) Lookup(name string) (*Function, bool) {
	fn, ok := l.functions[name]
	return fn, ok
}

// Functions returns l's functions ordered by Index, the order the
// assembler's FFI decl-list encoding requires.
func (l *Library) Functions() []*Function {
	out := make([]*Function, 0, len(l.functions))
	for _, fn := range l.functions {
		out = append(out, fn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Registry is the whole-program foreign-function table, built once from
// the `-L` library directories the driver resolves and consulted
// by irgen's declaration phase when lowering `extern` functions.
type Registry struct {
	libraries map[string]*Library
}

func NewRegistry() *Registry {
	return &Registry{libraries: make(map[string]*Library)}
}

// Library returns the named library, creating it (at the next free slot)
// if this is its first mention.
func (r *Registry) Library(name string) *Library {
	if l, ok := r.libraries[name]; ok {
		return l
	}
	l := &Library{Name: name, Slot: len(r.libraries), functions: make(map[string]*Function)}
	r.libraries[name] = l
	return l
}

func (r *Registry) Lookup(library, function string) (*Function, bool) {
	l, ok := r.libraries[library]
	if !ok {
		return nil, false
	}
	return l.Lookup(function)
}

// Resolve turns a (library, function) pair into the ForeignRef the IR's
// CallForeign instruction names, or ok=false if either side is undeclared.
func (r *Registry) Resolve(library, function string) (*ir.ForeignRef, bool) {
	l, ok := r.libraries[library]
	if !ok {
		return nil, false
	}
	fn, ok := l.Lookup(function)
	if !ok {
		return nil, false
	}
	return &ir.ForeignRef{Slot: l.Slot, Index: fn.Index, Name: fn.Name}, true
}

// Libraries returns the registry's libraries ordered by Slot, the order
// the assembler's FFI decl-list encoding requires.
func (r *Registry) Libraries() []*Library {
	out := make([]*Library, 0, len(r.libraries))
	for _, l := range r.libraries {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}
