package passes

import (
	"github.com/chrysante/scatha-sub008/internal/analysis"
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/passmgr"
)

func init() {
	passmgr.RegisterModulePass(GlobalDCEPass{})
}

// GlobalDCEPass removes defined functions unreachable, by direct call, from
// every root of the module — a declaration (an external/foreign signature
// some other module links against) or the entry point "main". A function
// reachable only from another dead function is removed too, since
// reachability is computed transitively rather than by a one-hop caller
// count.
type GlobalDCEPass struct{}

func (GlobalDCEPass) Name() string { return "globaldce" }

func (GlobalDCEPass) RunOnModule(m *ir.Module) (bool, error) {
	g := analysis.Build(m)
	reachable := map[*ir.Function]bool{}
	var walk func(f *ir.Function)
	walk = func(f *ir.Function) {
		if reachable[f] {
			return
		}
		reachable[f] = true
		for callee := range g.Edges[f] {
			walk(callee)
		}
	}
	for _, f := range m.Functions {
		if f.External || f.Name() == "main" {
			walk(f)
		}
	}

	changed := false
	kept := make([]*ir.Function, 0, len(m.Functions))
	for _, f := range m.Functions {
		if f.External || reachable[f] {
			kept = append(kept, f)
			continue
		}
		changed = true
	}
	if changed {
		m.Functions = kept
	}
	return changed, nil
}
