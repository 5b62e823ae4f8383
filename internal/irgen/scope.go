package irgen

import (
	"github.com/chrysante/scatha-sub008/internal/ir"
	"github.com/chrysante/scatha-sub008/internal/sema"
)

// cleanupEntry is one pending destructor call: the address of a local
// whose type declares a destructor, recorded in declaration order so
// unwinding can invoke them in reverse.
type cleanupEntry struct {
	addr ir.Value
	dtor *sema.FunctionEntity
}

// blockScope is one lexical scope's cleanup obligations. Scopes nest with
// function-local scope stack, not with the IR's basic blocks: a single
// `if` arm, loop body, or the function's outermost block each push one.
type blockScope struct {
	sema     *sema.Scope
	cleanups []cleanupEntry
}

// loopContext names a loop's continue/break targets and how many scopes
// were active when it was entered, so `break`/`continue` know how many
// enclosing scopes' cleanups to unwind.
type loopContext struct {
	continueTarget *ir.BasicBlock
	breakTarget    *ir.BasicBlock
	scopeDepth     int
}

// funcState is the per-function lowering context: the Builder positioned
// at the block currently being filled, the canonical return slot and
// shared exit block (return stores into the slot and jumps to the exit),
// the active scope/loop stacks, and the address each local variable
// currently lives at.
type funcState struct {
	b    *ir.Builder
	fn   *ir.Function
	fe   *sema.FunctionEntity
	exit *ir.BasicBlock
	ret  *ir.AllocaInst // nil for a void function

	scopes []*blockScope
	loops  []*loopContext
	locals map[*sema.LocalSymbol]ir.Value
}

func (fs *funcState) pushScope(sc *sema.Scope) *blockScope {
	bs := &blockScope{sema: sc}
	fs.scopes = append(fs.scopes, bs)
	return bs
}

func (fs *funcState) popScope() {
	fs.scopes = fs.scopes[:len(fs.scopes)-1]
}

func (fs *funcState) currentScope() *blockScope {
	return fs.scopes[len(fs.scopes)-1]
}

// emitCleanupsFrom invokes destructors for every scope from the innermost
// active one down to and including index fromIndex, each scope's
// own locals torn down in reverse declaration order — a partial prefix of
// the full stack when called for break/continue/early return.
func (fs *funcState) emitCleanupsFrom(fromIndex int) {
	for i := len(fs.scopes) - 1; i >= fromIndex; i-- {
		sc := fs.scopes[i]
		for j := len(sc.cleanups) - 1; j >= 0; j-- {
			c := sc.cleanups[j]
			fs.b.Call(c.dtor.IR, []ir.Value{c.addr}, "")
		}
	}
}

func (fs *funcState) currentLoop() *loopContext {
	if len(fs.loops) == 0 {
		return nil
	}
	return fs.loops[len(fs.loops)-1]
}
