package ir

import (
	"fmt"
	"sort"
	"strings"
)

// Print renders m in the textual IR format: struct declarations,
// then globals, then functions each as a sequence of labeled blocks. The
// output is stable (functions/globals/structs print in declaration order)
// and round-trips through Parse.
func Print(m *Module) string {
	var sb strings.Builder
	for _, st := range m.Structs {
		fmt.Fprintf(&sb, "struct %s {\n", st.Name)
		for i, mem := range st.Members {
			fmt.Fprintf(&sb, "  %s, // offset %d\n", mem, st.Offsets[i])
		}
		sb.WriteString("}\n\n")
	}
	for _, g := range m.Globals {
		printGlobal(&sb, g)
	}
	if len(m.Globals) > 0 {
		sb.WriteString("\n")
	}
	for i, f := range m.Functions {
		if i > 0 {
			sb.WriteString("\n")
		}
		printFunction(&sb, f)
	}
	return sb.String()
}

func printGlobal(sb *strings.Builder, g *Global) {
	if g.Initializer != nil {
		fmt.Fprintf(sb, "global %s @%s = %s\n", g.Declared, g.Name(), valueRef(&Constant{Value: g.Initializer}))
		return
	}
	fmt.Fprintf(sb, "global %s @%s\n", g.Declared, g.Name())
}

func printFunction(sb *strings.Builder, f *Function) {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = fmt.Sprintf("%s %%%s", p.Type(), p.Name())
	}
	sig := fmt.Sprintf("func %s @%s(%s)", f.ReturnType, f.Name(), strings.Join(params, ", "))
	if f.External {
		if f.Foreign != nil {
			fmt.Fprintf(sb, "%s ext(%d,%d)\n", sig, f.Foreign.Slot, f.Foreign.Index)
		} else {
			fmt.Fprintf(sb, "%s declare\n", sig)
		}
		return
	}
	fmt.Fprintf(sb, "%s {\n", sig)
	for _, b := range f.Blocks {
		printBlock(sb, b)
	}
	sb.WriteString("}\n")
}

func printBlock(sb *strings.Builder, b *BasicBlock) {
	fmt.Fprintf(sb, "%%%s:", b.Name())
	if len(b.Predecessors) > 0 {
		names := make([]string, len(b.Predecessors))
		for i, p := range b.Predecessors {
			names[i] = "%" + p.Name()
		}
		sort.Strings(names)
		fmt.Fprintf(sb, " // preds: %s", strings.Join(names, ", "))
	}
	sb.WriteString("\n")
	for _, inst := range b.Instructions() {
		fmt.Fprintf(sb, "  %s\n", inst.String())
	}
}
