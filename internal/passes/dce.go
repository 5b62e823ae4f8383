package passes

import (
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/passmgr"
)

func init() {
	passmgr.RegisterFunctionPass(DCEPass{})
}

// DCEPass deletes instructions with no users and no side effects, repeating
// until nothing more can go — erasing an unused instruction can leave its
// own operands without users in turn.
type DCEPass struct{}

func (DCEPass) Name() string              { return "dce" }
func (DCEPass) Category() passmgr.Category { return passmgr.Simplification }

func (DCEPass) RunOnFunction(fn *ir.Function) (bool, error) {
	changed := false
	for {
		removedThisRound := false
		for _, b := range fn.Blocks {
			for _, inst := range b.Instructions() {
				if inst.IsTerminator() || inst.HasSideEffects() {
					continue
				}
				if len(inst.Uses()) > 0 {
					continue
				}
				b.EraseInst(inst)
				removedThisRound = true
			}
		}
		if !removedThisRound {
			break
		}
		changed = true
	}
	return changed, nil
}
