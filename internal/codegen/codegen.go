package codegen

import (
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/mir"
)

// Run lowers m through the whole backend pipeline: instruction selection,
// SSA destruction, register allocation, copy coalescing, and block layout
// with jump elision. The MIR it returns is ready for Emit.
func Run(m *ir.Module) (*mir.Module, error) {
	mm, err := Lower(m)
	if err != nil {
		return nil, err
	}
	for _, fn := range mm.Functions {
		DestroySSA(fn)
		g, _, err := Allocate(fn)
		if err != nil {
			return nil, err
		}
		Coalesce(fn, g)
		LayoutAndElideJumps(fn)
	}
	return mm, nil
}
