package ir

import "github.com/chrysante/scatha-sub008/internal/types"

// Function is an intrusive list of BasicBlocks whose first block is the
// entry. Its Parameters are Values of the function's argument types.
type Function struct {
	valueBase
	Module     *Module
	ReturnType types.Type
	Params     []*Parameter

	Blocks []*BasicBlock // in layout order; entry is Blocks[0]

	External bool // true for a foreign-function declaration with no body
	Foreign  *ForeignRef

	blockNameCounter int
	valueIDCounter   uint64

	cfgVersion int // bumped by invalidateCFGInfo; analyses compare against this
}

func (f *Function) Type() types.Type { return &types.FunctionType{Return: f.ReturnType, Params: paramTypes(f.Params)} }

func paramTypes(ps []*Parameter) []types.Type {
	out := make([]types.Type, len(ps))
	for i, p := range ps {
		out[i] = p.ty
	}
	return out
}

// Entry returns the function's entry block, or nil if it has no blocks (a
// declaration).
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// nextValueID hands out a monotonically increasing id, unique within the
// function, used by both the name factory and analyses that need a dense
// index.
func (f *Function) nextValueID() uint64 {
	f.valueIDCounter++
	return f.valueIDCounter
}

// invalidateCFGInfo must be called by any utility that edits the CFG. It
// only bumps the version counter; an analysis result that recorded an
// older version (see analysis.DomTree.Stale) is not recomputed by it.
func (f *Function) invalidateCFGInfo() { f.cfgVersion++ }

// CFGVersion exposes the version counter so that analysis caches (outside
// this package) can detect staleness.
func (f *Function) CFGVersion() int { return f.cfgVersion }

// AppendBlock appends a new, empty, uniquely-named basic block to the
// function and returns it. It is not yet linked into any CFG edges until a
// terminator names it.
func (f *Function) AppendBlock(hint string) *BasicBlock {
	name := f.uniqueBlockName(hint)
	b := &BasicBlock{valueBase: valueBase{id: f.nextValueID(), name: name}, Func: f}
	f.Blocks = append(f.Blocks, b)
	f.invalidateCFGInfo()
	return b
}

// InsertBlockAfter inserts a new block immediately after `after` in layout
// order (used by loop-canonicalize to add preheaders and by
// split-critical-edges to add edge blocks).
func (f *Function) InsertBlockAfter(after *BasicBlock, hint string) *BasicBlock {
	name := f.uniqueBlockName(hint)
	b := &BasicBlock{valueBase: valueBase{id: f.nextValueID(), name: name}, Func: f}
	idx := f.blockIndex(after)
	f.Blocks = append(f.Blocks, nil)
	copy(f.Blocks[idx+2:], f.Blocks[idx+1:])
	f.Blocks[idx+1] = b
	f.invalidateCFGInfo()
	return b
}

func (f *Function) blockIndex(b *BasicBlock) int {
	for i, x := range f.Blocks {
		if x == b {
			return i
		}
	}
	return -1
}

// RemoveBlock unlinks b from the function. The caller must have already
// removed b from every predecessor's Successors (e.g. by erasing its
// terminator first).
func (f *Function) RemoveBlock(b *BasicBlock) {
	idx := f.blockIndex(b)
	if idx < 0 {
		return
	}
	f.Blocks = append(f.Blocks[:idx], f.Blocks[idx+1:]...)
	f.invalidateCFGInfo()
}

func (f *Function) uniqueBlockName(hint string) string {
	if hint == "" {
		hint = "bb"
	}
	name := hint
	for f.blockNamed(name) != nil {
		f.blockNameCounter++
		name = hint + itoa(f.blockNameCounter)
	}
	return name
}

func (f *Function) blockNamed(name string) *BasicBlock {
	for _, b := range f.Blocks {
		if b.name == name {
			return b
		}
	}
	return nil
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// ReversePostorder computes the function's blocks in reverse-postorder from
// the entry, used by dominance computation and any pass that wants a
// forward-friendly visitation order.
func (f *Function) ReversePostorder() []*BasicBlock {
	entry := f.Entry()
	if entry == nil {
		return nil
	}
	visited := make(map[*BasicBlock]bool)
	var post []*BasicBlock
	var visit func(b *BasicBlock)
	visit = func(b *BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Successors {
			visit(s)
		}
		post = append(post, b)
	}
	visit(entry)
	rpo := make([]*BasicBlock, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	return rpo
}
