package passmgr

import (
	"github.com/chrysante/scatha-sub008/internal/ir"
)

// maxFixedPointIterations bounds the repeat-until-unchanged loops below so a
// pass pair that keeps flipping the IR back and forth cannot hang the
// compiler; real passes converge in a handful of rounds.
const maxFixedPointIterations = 64

// RunPipeline executes the parsed pipeline over m in order. Every node
// repeats until a round reports no change (at most maxFixedPointIterations
// rounds). A leaf node's round runs its pass (a function pass over every
// defined function in turn, a module pass once over m); a node with
// children's round runs this node's own pass, then its nested pipeline —
// this is how composite entries like "inline(sroa, mem2reg, gvn)" express a
// local cleanup loop that runs alongside repeated inlining decisions.
func RunPipeline(m *ir.Module, nodes []*Node) (changed bool, err error) {
	for _, n := range nodes {
		c, err := runNode(m, n)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	return changed, nil
}

func runNode(m *ir.Module, n *Node) (bool, error) {
	anyChanged := false
	for i := 0; i < maxFixedPointIterations; i++ {
		c, err := runStepOnce(m, n.Name)
		if err != nil {
			return anyChanged, err
		}
		if len(n.Children) > 0 {
			c2, err := RunPipeline(m, n.Children)
			if err != nil {
				return anyChanged, err
			}
			c = c || c2
		}
		if c {
			anyChanged = true
		}
		if !c {
			break
		}
	}
	return anyChanged, nil
}

func runStepOnce(m *ir.Module, name string) (bool, error) {
	fp, mp, ok := Lookup(name)
	if !ok {
		return false, nil
	}
	if mp != nil {
		return mp.RunOnModule(m)
	}
	changed := false
	for _, fn := range m.Functions {
		if fn.External {
			continue
		}
		c, err := fp.RunOnFunction(fn)
		if err != nil {
			return changed, err
		}
		if c {
			changed = true
		}
	}
	return changed, nil
}
