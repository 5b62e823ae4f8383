package codegen

import "github.com/chrysante/scatha-sub008/internal/ir"

// dagNode is one IR instruction in a block's selection DAG: operand edges
// point at the intra-block instructions whose results it consumes, and the
// chain edge orders it after the previous side-effecting node.
type dagNode struct {
	inst     ir.Instruction
	operands []*dagNode
	chain    *dagNode

	// localUses/totalUses drive folding decisions: a node consumed exactly
	// once, by an instruction in the same block, may be matched as part of
	// that consumer's pattern instead of selected on its own.
	localUses int
	totalUses int

	// folded marks a node that was absorbed into a consumer's match (a GEP
	// folded into a load/store address, a no-op conversion sharing its
	// operand's register); selection skips it.
	folded bool
}

// selectionDAG captures the data dependencies between the instructions of
// one basic block plus the chain through its side-effecting operations. It
// lives only for the duration of selecting that block.
type selectionDAG struct {
	block *ir.BasicBlock
	nodes map[ir.Instruction]*dagNode
	order []*dagNode
}

func newSelectionDAG(b *ir.BasicBlock) *selectionDAG {
	d := &selectionDAG{block: b, nodes: make(map[ir.Instruction]*dagNode)}
	var lastChain *dagNode
	for _, inst := range b.Instructions() {
		n := &dagNode{inst: inst}
		d.nodes[inst] = n
		for _, op := range inst.Operands() {
			opInst, ok := op.(ir.Instruction)
			if !ok {
				continue
			}
			if dep, inBlock := d.nodes[opInst]; inBlock {
				n.operands = append(n.operands, dep)
			}
		}
		if chains(inst) {
			n.chain = lastChain
			lastChain = n
		}
		d.order = append(d.order, n)
	}
	for _, n := range d.order {
		for _, u := range n.inst.Uses() {
			n.totalUses++
			if u.User.Block() == b {
				n.localUses++
			}
		}
	}
	return d
}

// chains reports whether inst participates in the chain edge: loads, stores,
// calls, and terminators must keep their relative order.
func chains(inst ir.Instruction) bool {
	if inst.HasSideEffects() || inst.IsTerminator() {
		return true
	}
	_, isLoad := inst.(*ir.LoadInst)
	return isLoad
}

// topo returns the selection order: a topological sort over operand and
// chain edges. Within a block SSA already lists definitions before uses, so
// this is the source order with folded nodes retained (selection skips them
// itself); the sort is kept explicit so DAG mutations cannot silently break
// the ordering contract.
func (d *selectionDAG) topo() []*dagNode {
	visited := make(map[*dagNode]bool, len(d.order))
	out := make([]*dagNode, 0, len(d.order))
	var visit func(n *dagNode)
	visit = func(n *dagNode) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, dep := range n.operands {
			visit(dep)
		}
		if n.chain != nil {
			visit(n.chain)
		}
		out = append(out, n)
	}
	for _, n := range d.order {
		visit(n)
	}
	return out
}

// foldableAddress reports whether addr can be matched into consumer's
// memory operand: it must be a GEP in the same block whose only use is the
// consumer.
func (d *selectionDAG) foldableAddress(addr ir.Value, consumer ir.Instruction) (*ir.GEPInstruction, bool) {
	gep, ok := addr.(*ir.GEPInstruction)
	if !ok {
		return nil, false
	}
	n, inBlock := d.nodes[gep]
	if !inBlock || n.totalUses != 1 || n.localUses != 1 {
		return nil, false
	}
	return gep, true
}

// markFolded records that inst was absorbed into another node's match.
func (d *selectionDAG) markFolded(inst ir.Instruction) {
	if n, ok := d.nodes[inst]; ok {
		n.folded = true
	}
}

func (d *selectionDAG) isFolded(inst ir.Instruction) bool {
	n, ok := d.nodes[inst]
	return ok && n.folded
}
