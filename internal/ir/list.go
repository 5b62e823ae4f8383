package ir

// listNode is the intrusive doubly-linked-list mixin embedded by instBase.
// Splicing is O(1); erasing the pointed-to element invalidates only that
// element's own node.
type listNode struct {
	prev, next Instruction
}

// InstList is an intrusive doubly-linked list of Instructions, used as a
// BasicBlock's instruction sequence.
type InstList struct {
	head, tail Instruction
	length     int
}

func nodeOf(i Instruction) *listNode {
	switch v := i.(type) {
	case *AllocaInst:
		return &v.listNode
	case *LoadInst:
		return &v.listNode
	case *StoreInst:
		return &v.listNode
	case *GEPInstruction:
		return &v.listNode
	case *InsertValueInst:
		return &v.listNode
	case *ExtractValueInst:
		return &v.listNode
	case *ArithmeticInst:
		return &v.listNode
	case *UnaryArithmeticInst:
		return &v.listNode
	case *ConversionInst:
		return &v.listNode
	case *CompareInst:
		return &v.listNode
	case *GotoInst:
		return &v.listNode
	case *BranchInst:
		return &v.listNode
	case *ReturnInst:
		return &v.listNode
	case *PhiInst:
		return &v.listNode
	case *CallInst:
		return &v.listNode
	default:
		panic("ir: unknown instruction kind in intrusive list")
	}
}

func (l *InstList) Len() int { return l.length }

func (l *InstList) Front() Instruction { return l.head }
func (l *InstList) Back() Instruction  { return l.tail }

func Next(i Instruction) Instruction { return nodeOf(i).next }
func Prev(i Instruction) Instruction { return nodeOf(i).prev }

// PushBack appends i to the end of the list.
func (l *InstList) PushBack(i Instruction) {
	n := nodeOf(i)
	n.prev, n.next = l.tail, nil
	if l.tail != nil {
		nodeOf(l.tail).next = i
	} else {
		l.head = i
	}
	l.tail = i
	l.length++
}

// PushFront prepends i to the start of the list.
func (l *InstList) PushFront(i Instruction) {
	n := nodeOf(i)
	n.prev, n.next = nil, l.head
	if l.head != nil {
		nodeOf(l.head).prev = i
	} else {
		l.tail = i
	}
	l.head = i
	l.length++
}

// InsertBefore inserts i immediately before mark. If mark is nil, i is
// appended.
func (l *InstList) InsertBefore(mark, i Instruction) {
	if mark == nil {
		l.PushBack(i)
		return
	}
	n := nodeOf(i)
	m := nodeOf(mark)
	n.prev, n.next = m.prev, mark
	if m.prev != nil {
		nodeOf(m.prev).next = i
	} else {
		l.head = i
	}
	m.prev = i
	l.length++
}

// InsertAfter inserts i immediately after mark.
func (l *InstList) InsertAfter(mark, i Instruction) {
	if mark == nil {
		l.PushFront(i)
		return
	}
	n := nodeOf(i)
	m := nodeOf(mark)
	n.prev, n.next = mark, m.next
	if m.next != nil {
		nodeOf(m.next).prev = i
	} else {
		l.tail = i
	}
	m.next = i
	l.length++
}

// Remove unlinks i from the list without touching its operands.
func (l *InstList) Remove(i Instruction) {
	n := nodeOf(i)
	if n.prev != nil {
		nodeOf(n.prev).next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		nodeOf(n.next).prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.length--
}

// Slice materializes the list into a plain slice, front to back.
func (l *InstList) Slice() []Instruction {
	out := make([]Instruction, 0, l.length)
	for i := l.head; i != nil; i = Next(i) {
		out = append(out, i)
	}
	return out
}
