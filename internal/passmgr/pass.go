// Package passmgr drives the optimization pipeline over internal/ir: a
// function pass runs once per defined function, a module pass runs once
// over the whole program; passes are named, self-registering, and combined
// by a small grammar ("mem2reg, gvn, dce" or "inline(sroa, mem2reg), dce")
// parsed with participle, the same library the IR text reader uses.
package passmgr

import (
	"github.com/chrysante/scatha-sub008/internal/ir"
)

// Category groups passes by their role in a pipeline; tooling uses it to
// report and order pipelines, the driver treats it as informational.
type Category string

const (
	Canonicalization Category = "canonicalization"
	Simplification   Category = "simplification"
	Optimization     Category = "optimization"
	Schedule         Category = "schedule"
)

// Categorized is optionally implemented by a pass to declare its Category;
// passes without it default to Optimization.
type Categorized interface {
	Category() Category
}

// CategoryOf reports a registered pass's category.
func CategoryOf(name string) Category {
	var p any
	if fp, ok := functionPasses[name]; ok {
		p = fp
	} else if mp, ok := modulePasses[name]; ok {
		p = mp
	}
	if c, ok := p.(Categorized); ok {
		return c.Category()
	}
	return Optimization
}

// FunctionPass transforms a single function in place. Report whether it
// changed anything so the driver can decide whether another fixed-point
// iteration is worthwhile.
type FunctionPass interface {
	Name() string
	RunOnFunction(fn *ir.Function) (changed bool, err error)
}

// ModulePass transforms an entire module (e.g. removing dead functions).
type ModulePass interface {
	Name() string
	RunOnModule(m *ir.Module) (changed bool, err error)
}

// registry is the process-wide set of passes available to a pipeline
// description, populated by each pass's init() — the self-registering
// pattern used for opcode/name tables throughout this codebase.
var (
	functionPasses = map[string]FunctionPass{}
	modulePasses   = map[string]ModulePass{}
)

// RegisterFunctionPass makes p available under p.Name() to pipeline text.
func RegisterFunctionPass(p FunctionPass) { functionPasses[p.Name()] = p }

// RegisterModulePass makes p available under p.Name() to pipeline text.
func RegisterModulePass(p ModulePass) { modulePasses[p.Name()] = p }

// Lookup returns a named pass and which kind it is ("function"/"module"),
// or ok=false if no pass is registered under that name.
func Lookup(name string) (fp FunctionPass, mp ModulePass, ok bool) {
	if p, found := functionPasses[name]; found {
		return p, nil, true
	}
	if p, found := modulePasses[name]; found {
		return nil, p, true
	}
	return nil, nil, false
}
